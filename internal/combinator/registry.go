package combinator

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"signalnet/internal/signal"
)

var (
	ErrReducerExists   = errors.New("reducer already registered")
	ErrReducerNotFound = errors.New("reducer not found")
)

// ReducerSpec is a named custom reducer that descriptions can reference.
type ReducerSpec struct {
	Name        string
	Func        Reducer
	Commutative bool
}

var reducerRegistry = struct {
	mu sync.RWMutex
	m  map[string]ReducerSpec
}{
	m: make(map[string]ReducerSpec),
}

func init() {
	initializeBuiltInReducers()
}

func initializeBuiltInReducers() {
	// difference folds left to right and stops at zero.
	MustRegisterReducer("difference", func(inputs []signal.Value, _ signal.Width) (signal.Value, error) {
		acc := inputs[0]
		for _, v := range inputs[1:] {
			if v >= acc {
				return 0, nil
			}
			acc -= v
		}
		return acc, nil
	}, false)
	// concat packs inputs so that the first port lands in the high bits.
	MustRegisterReducer("concat", func(inputs []signal.Value, width signal.Width) (signal.Value, error) {
		var acc signal.Value
		for _, v := range inputs {
			acc = acc<<width | v
		}
		return acc, nil
	}, false)
	MustRegisterReducer("majority", func(inputs []signal.Value, width signal.Width) (signal.Value, error) {
		var out signal.Value
		for bit := signal.Width(0); bit < width; bit++ {
			ones := 0
			for _, v := range inputs {
				if v&(1<<bit) != 0 {
					ones++
				}
			}
			if ones*2 > len(inputs) {
				out |= 1 << bit
			}
		}
		return out, nil
	}, true)
}

func RegisterReducer(name string, fn Reducer, commutative bool) error {
	if name == "" {
		return errors.New("reducer name is required")
	}
	if fn == nil {
		return errors.New("reducer function is required")
	}

	reducerRegistry.mu.Lock()
	defer reducerRegistry.mu.Unlock()

	if _, exists := reducerRegistry.m[name]; exists {
		return fmt.Errorf("%w: %s", ErrReducerExists, name)
	}
	reducerRegistry.m[name] = ReducerSpec{Name: name, Func: fn, Commutative: commutative}
	return nil
}

func MustRegisterReducer(name string, fn Reducer, commutative bool) {
	if err := RegisterReducer(name, fn, commutative); err != nil {
		panic(err)
	}
}

func LookupReducer(name string) (ReducerSpec, error) {
	reducerRegistry.mu.RLock()
	spec, ok := reducerRegistry.m[name]
	reducerRegistry.mu.RUnlock()
	if !ok {
		return ReducerSpec{}, fmt.Errorf("%w: %s", ErrReducerNotFound, name)
	}
	return spec, nil
}

func ListReducers() []string {
	reducerRegistry.mu.RLock()
	defer reducerRegistry.mu.RUnlock()

	names := make([]string, 0, len(reducerRegistry.m))
	for name := range reducerRegistry.m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func resetReducerRegistryForTests() {
	reducerRegistry.mu.Lock()
	reducerRegistry.m = make(map[string]ReducerSpec)
	reducerRegistry.mu.Unlock()
	initializeBuiltInReducers()
}
