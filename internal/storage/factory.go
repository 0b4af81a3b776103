package storage

import "fmt"

// NewStore returns an uninitialized store. path is the database file of the
// sqlite and bolt backends.
func NewStore(kind, path string) (Store, error) {
	switch kind {
	case "", "memory":
		return NewMemoryStore(), nil
	case "sqlite":
		return newSQLiteStore(path)
	case "bolt":
		if path == "" {
			return nil, fmt.Errorf("bolt backend requires a path")
		}
		return NewBoltStore(path), nil
	default:
		return nil, fmt.Errorf("unsupported store backend: %s", kind)
	}
}

func CloseIfSupported(store Store) error {
	closer, ok := store.(interface{ Close() error })
	if !ok {
		return nil
	}
	return closer.Close()
}
