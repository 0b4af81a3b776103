package runner

import (
	"context"
	"errors"
	"testing"
	"time"

	"signalnet/internal/evaluator"
	sigio "signalnet/internal/io"
	"signalnet/internal/model"
	"signalnet/internal/netspec"
	"signalnet/internal/signal"
	"signalnet/internal/storage"
)

const thresholdYAML = `
name: threshold
nodes:
  - {id: in, kind: input, width: 8}
  - {id: gt5, kind: transformer, table: {builtin: greater-than-5}}
  - {id: out, kind: output, width: 1}
edges:
  - {from: in, to: gt5}
  - {from: gt5, to: out}
`

const counterYAML = `
name: counter
nodes:
  - {id: in, kind: input, width: 4}
  - {id: prev, kind: delay, width: 4}
  - {id: sum, kind: combinator, operator: sum, width: 4, overflow: fail}
  - {id: out, kind: output, width: 4}
edges:
  - {from: in, to: sum, to_port: 0}
  - {from: prev, to: sum, to_port: 1}
  - {from: sum, to: prev}
  - {from: sum, to: out}
`

const blinkerYAML = `
name: blinker
nodes:
  - {id: state, kind: delay, width: 1, initial: 0}
  - {id: not, kind: transformer, table: {input_width: 1, output_width: 1, values: [1, 0]}}
  - {id: out, kind: output, width: 1}
edges:
  - {from: state, to: not}
  - {from: not, to: state}
  - {from: state, to: out}
`

func compile(t *testing.T, doc string, opts ...evaluator.Option) *evaluator.Evaluator {
	t.Helper()
	desc, err := netspec.Parse([]byte(doc))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	net, err := netspec.Compile(desc)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	return evaluator.New(net, opts...)
}

func newStore(t *testing.T) storage.Store {
	t.Helper()
	store := storage.NewMemoryStore()
	if err := store.Init(context.Background()); err != nil {
		t.Fatalf("init store: %v", err)
	}
	return store
}

func fixedClock() func() time.Time {
	at := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time {
		at = at.Add(time.Second)
		return at
	}
}

func equalValues(a, b []signal.Value) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestRunUntilSourceIsExhausted(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	sink := sigio.NewRecordingSink()
	r := New(store, WithClock(fixedClock()))

	summary, err := r.Run(ctx, Request{
		Network:   "threshold",
		Evaluator: compile(t, thresholdYAML),
		Source:    sigio.NewSliceSource(map[string][]signal.Value{"in": {3, 6, 9}}),
		Sinks:     []sigio.Sink{sink},
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if summary.Run.Status != model.RunCompleted || summary.Run.Settled != 3 || summary.Run.ID == "" {
		t.Fatalf("unexpected summary: %+v", summary.Run)
	}
	if !summary.Run.FinishedAt.After(summary.Run.StartedAt) {
		t.Fatalf("finish must follow start: %+v", summary.Run)
	}
	if got := sink.Series("out"); !equalValues(got, []signal.Value{0, 1, 1}) {
		t.Fatalf("unexpected outputs: %v", got)
	}

	stored, ok, err := store.GetRun(ctx, summary.Run.ID)
	if err != nil || !ok || stored.Status != model.RunCompleted {
		t.Fatalf("stored run: %+v ok=%t err=%v", stored, ok, err)
	}
	trace, ok, err := store.GetTrace(ctx, summary.Run.ID)
	if err != nil || !ok || len(trace) != 3 {
		t.Fatalf("stored trace: %+v ok=%t err=%v", trace, ok, err)
	}
	if trace[1].Inputs["in"] != 6 || trace[1].Outputs["out"] != 1 {
		t.Fatalf("unexpected trace entry: %+v", trace[1])
	}
}

func TestErrorPolicies(t *testing.T) {
	inputs := map[string][]signal.Value{"in": {9, 9, 2}}
	cases := []struct {
		policy  ErrorPolicy
		want    []signal.Value
		status  string
		settled int
		skipped int
	}{
		{ErrorAbort, []signal.Value{9}, model.RunFailed, 1, 0},
		{ErrorSkip, []signal.Value{9, 11}, model.RunCompleted, 2, 1},
		{ErrorSubstitute, []signal.Value{9, 15, 11}, model.RunCompleted, 2, 1},
	}
	for _, tc := range cases {
		sink := sigio.NewRecordingSink()
		summary, err := New(nil).Run(context.Background(), Request{
			Network:    "counter",
			Evaluator:  compile(t, counterYAML),
			Source:     sigio.NewSliceSource(inputs),
			Sinks:      []sigio.Sink{sink},
			OnError:    tc.policy,
			Substitute: 15,
		})
		if tc.policy == ErrorAbort {
			var stepErr *evaluator.StepError
			if !errors.As(err, &stepErr) || stepErr.Node != "sum" || !errors.Is(err, signal.ErrOverflow) {
				t.Fatalf("%s: expected overflow step error, got %v", tc.policy, err)
			}
		} else if err != nil {
			t.Fatalf("%s: run: %v", tc.policy, err)
		}
		if got := sink.Series("out"); !equalValues(got, tc.want) {
			t.Fatalf("%s: outputs %v, want %v", tc.policy, got, tc.want)
		}
		run := summary.Run
		if run.Status != tc.status || run.Settled != tc.settled || run.Skipped != tc.skipped {
			t.Fatalf("%s: unexpected record %+v", tc.policy, run)
		}
		if last := summary.Trace[1]; !last.Skipped || last.Error == "" {
			t.Fatalf("%s: slot 1 should be traced as skipped: %+v", tc.policy, last)
		}
	}
}

func TestRunWithoutSource(t *testing.T) {
	sink := sigio.NewRecordingSink()
	summary, err := New(nil).Run(context.Background(), Request{
		Network:   "blinker",
		Evaluator: compile(t, blinkerYAML, evaluator.WithWorkers(4)),
		Sinks:     []sigio.Sink{sink},
		MaxSlots:  5,
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if summary.Run.Settled != 5 {
		t.Fatalf("unexpected summary: %+v", summary.Run)
	}
	if got := sink.Series("out"); !equalValues(got, []signal.Value{0, 1, 0, 1, 0}) {
		t.Fatalf("unexpected outputs: %v", got)
	}
}

func TestMissingInputsCountAsSubstituted(t *testing.T) {
	ev := compile(t, counterYAML, evaluator.WithMissingPolicy(evaluator.MissingSubstitute, 1))
	summary, err := New(nil).Run(context.Background(), Request{
		Evaluator: ev,
		Source:    sigio.MergeSources(sigio.NewSliceSource(map[string][]signal.Value{"in": {2}}), sigio.NewTextSource("other", "xyz")),
		OnError:   ErrorSkip,
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	// every slot feeds "other", which the network lacks, so each is skipped.
	if summary.Run.Skipped != 3 || summary.Run.Settled != 0 {
		t.Fatalf("unexpected summary: %+v", summary.Run)
	}
	for _, entry := range summary.Trace {
		if !entry.Skipped {
			t.Fatalf("unexpected trace entry: %+v", entry)
		}
	}

	ev = compile(t, counterYAML, evaluator.WithMissingPolicy(evaluator.MissingSubstitute, 1))
	summary, err = New(nil).Run(context.Background(), Request{Evaluator: ev, MaxSlots: 3})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if summary.Run.Substituted != 3 || summary.Trace[2].Outputs["out"] != 3 {
		t.Fatalf("unexpected summary: %+v trace=%+v", summary.Run, summary.Trace)
	}
}

func TestCancelledRunIsRecorded(t *testing.T) {
	store := newStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	summary, err := New(store).Run(ctx, Request{
		Network:   "threshold",
		Evaluator: compile(t, thresholdYAML),
		Source:    sigio.NewSliceSource(map[string][]signal.Value{"in": {1}}),
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	stored, ok, getErr := store.GetRun(context.Background(), summary.Run.ID)
	if getErr != nil || !ok || stored.Status != model.RunCancelled {
		t.Fatalf("stored run: %+v ok=%t err=%v", stored, ok, getErr)
	}
}

func TestRunValidatesRequest(t *testing.T) {
	r := New(nil)
	if _, err := r.Run(context.Background(), Request{}); err == nil {
		t.Fatal("expected error without evaluator")
	}
	if _, err := r.Run(context.Background(), Request{Evaluator: compile(t, thresholdYAML)}); err == nil {
		t.Fatal("expected error without source or max slots")
	}

	store := newStore(t)
	_, err := New(store).Run(context.Background(), Request{
		Evaluator:  compile(t, thresholdYAML),
		Source:     sigio.NewSliceSource(map[string][]signal.Value{"in": {3}}),
		OnError:    ErrorSubstitute,
		Substitute: 2,
	})
	if !errors.Is(err, signal.ErrDomain) {
		t.Fatalf("expected substitute wider than the 1-bit output to be rejected, got %v", err)
	}
	if runs, _ := store.ListRuns(context.Background()); len(runs) != 0 {
		t.Fatalf("rejected request should not be recorded: %+v", runs)
	}
}

func TestParseErrorPolicy(t *testing.T) {
	for _, p := range []ErrorPolicy{ErrorAbort, ErrorSkip, ErrorSubstitute} {
		got, err := ParseErrorPolicy(p.String())
		if err != nil || got != p {
			t.Fatalf("%s: got %s err=%v", p, got, err)
		}
	}
	if _, err := ParseErrorPolicy("retry"); err == nil {
		t.Fatal("expected error for unknown policy")
	}
}
