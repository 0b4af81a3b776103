package lookup

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"signalnet/internal/signal"
)

var (
	ErrTableExists   = errors.New("table already registered")
	ErrTableNotFound = errors.New("table not found")
)

// Constructor builds a fresh table each time it is called.
type Constructor func() (Table, error)

var tableRegistry = struct {
	mu sync.RWMutex
	m  map[string]Constructor
}{
	m: make(map[string]Constructor),
}

func init() {
	initializeBuiltInTables()
}

func initializeBuiltInTables() {
	MustRegister("identity", func() (Table, error) {
		return FromFunc(8, 8, func(v signal.Value) signal.Value { return v })
	})
	MustRegister("lowercase", ranges(Range('a', 'z', 0xFF)))
	MustRegister("uppercase", ranges(Range('A', 'Z', 0xFF)))
	MustRegister("letters", ranges(Range('a', 'z', 0xFF), Range('A', 'Z', 0xFF)))
	MustRegister("letters-cased", ranges(Range('a', 'z', 0xFF), Range('A', 'Z', 0xF0)))
	// Printable punctuation first so digits and letters override their
	// sub-ranges of '!'..'~'.
	MustRegister("character", ranges(
		Range('!', '~', 0x08),
		Range('0', '9', 0x01),
		Range('a', 'z', 0x02),
		Range('A', 'Z', 0x04),
		Point(' ', 0x10),
		Point('\t', 0x10),
		Point('\n', 0x10),
	))
	MustRegister("pyramid", func() (Table, error) {
		return FromFunc(8, 8, func(v signal.Value) signal.Value {
			if v < 128 {
				return v
			}
			return 255 - v
		})
	})
	MustRegister("pyramid-inverted", func() (Table, error) {
		return FromFunc(8, 8, func(v signal.Value) signal.Value {
			if v < 128 {
				return 255 - v
			}
			return v
		})
	})
	MustRegister("greater-than-5", func() (Table, error) {
		return Build(8, 1, []Entry{Range(6, 255, 1)}, Default(0))
	})
	MustRegister("less-than-5", func() (Table, error) {
		return Build(8, 1, []Entry{Range(0, 4, 1)}, Default(0))
	})
	MustRegister("add-one", func() (Table, error) {
		return FromFunc(8, 8, func(v signal.Value) signal.Value { return (v + 1) & 0xFF })
	})
	MustRegister("double", func() (Table, error) {
		return FromFunc(8, 8, func(v signal.Value) signal.Value { return (v * 2) & 0xFF })
	})
	MustRegister("square", func() (Table, error) {
		return FromFunc(8, 8, func(v signal.Value) signal.Value { return (v * v) % 256 })
	})
}

func ranges(entries ...Entry) Constructor {
	return func() (Table, error) {
		return Build(8, 8, entries, Default(0))
	}
}

func Register(name string, fn Constructor) error {
	if name == "" {
		return errors.New("table name is required")
	}
	if fn == nil {
		return errors.New("table constructor is required")
	}

	tableRegistry.mu.Lock()
	defer tableRegistry.mu.Unlock()

	if _, exists := tableRegistry.m[name]; exists {
		return fmt.Errorf("%w: %s", ErrTableExists, name)
	}
	tableRegistry.m[name] = fn
	return nil
}

func MustRegister(name string, fn Constructor) {
	if err := Register(name, fn); err != nil {
		panic(err)
	}
}

// Get builds the table registered under name.
func Get(name string) (Table, error) {
	tableRegistry.mu.RLock()
	fn, ok := tableRegistry.m[name]
	tableRegistry.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTableNotFound, name)
	}
	t, err := fn()
	if err != nil {
		return nil, fmt.Errorf("build table %s: %w", name, err)
	}
	return t, nil
}

func List() []string {
	tableRegistry.mu.RLock()
	defer tableRegistry.mu.RUnlock()

	names := make([]string, 0, len(tableRegistry.m))
	for name := range tableRegistry.m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func resetTableRegistryForTests() {
	tableRegistry.mu.Lock()
	tableRegistry.m = make(map[string]Constructor)
	tableRegistry.mu.Unlock()
	initializeBuiltInTables()
}
