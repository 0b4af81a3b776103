package combinator

import (
	"errors"
	"testing"

	"signalnet/internal/signal"
)

func TestReducerRegistry(t *testing.T) {
	t.Cleanup(resetReducerRegistryForTests)

	fn := func(inputs []signal.Value, _ signal.Width) (signal.Value, error) { return inputs[len(inputs)-1], nil }
	if err := RegisterReducer("last", fn, false); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := RegisterReducer("last", fn, false); !errors.Is(err, ErrReducerExists) {
		t.Fatalf("expected duplicate error, got %v", err)
	}
	spec, err := LookupReducer("last")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if spec.Commutative {
		t.Fatal("expected non-commutative spec")
	}
	if _, err := LookupReducer("nope"); !errors.Is(err, ErrReducerNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestMajorityReducer(t *testing.T) {
	spec, err := LookupReducer("majority")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	got, err := spec.Func([]signal.Value{0b110, 0b011, 0b010}, 3)
	if err != nil {
		t.Fatalf("majority: %v", err)
	}
	if got != 0b010 {
		t.Fatalf("majority: got %03b", got)
	}
}
