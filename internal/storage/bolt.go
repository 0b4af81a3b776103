package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"

	"signalnet/internal/model"
)

var (
	networksBucket = []byte("networks")
	runsBucket     = []byte("runs")
	tracesBucket   = []byte("traces")
)

// BoltStore keeps one bucket per record kind in a single bbolt file.
type BoltStore struct {
	path string

	mu sync.RWMutex
	db *bolt.DB
}

func NewBoltStore(path string) *BoltStore {
	return &BoltStore{path: path}
}

func (s *BoltStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		return nil
	}
	db, err := bolt.Open(s.path, 0o644, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return fmt.Errorf("open bolt store %s: %w", s.path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{networksBucket, runsBucket, tracesBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return err
	}
	s.db = db
	return nil
}

func (s *BoltStore) SaveNetwork(_ context.Context, desc model.NetworkDescription) error {
	payload, err := EncodeNetwork(desc)
	if err != nil {
		return err
	}
	return s.put(networksBucket, desc.Name, payload)
}

func (s *BoltStore) GetNetwork(_ context.Context, name string) (model.NetworkDescription, bool, error) {
	payload, err := s.get(networksBucket, name)
	if err != nil || payload == nil {
		return model.NetworkDescription{}, false, err
	}
	desc, err := DecodeNetwork(payload)
	if err != nil {
		return model.NetworkDescription{}, false, fmt.Errorf("decode network %s: %w", name, err)
	}
	return desc, true, nil
}

func (s *BoltStore) ListNetworks(_ context.Context) ([]string, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}
	var names []string
	err = db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(networksBucket).ForEach(func(k, _ []byte) error {
			names = append(names, string(k))
			return nil
		})
	})
	return names, err
}

func (s *BoltStore) SaveRun(_ context.Context, run model.RunRecord) error {
	payload, err := EncodeRun(run)
	if err != nil {
		return err
	}
	return s.put(runsBucket, run.ID, payload)
}

func (s *BoltStore) GetRun(_ context.Context, id string) (model.RunRecord, bool, error) {
	payload, err := s.get(runsBucket, id)
	if err != nil || payload == nil {
		return model.RunRecord{}, false, err
	}
	run, err := DecodeRun(payload)
	if err != nil {
		return model.RunRecord{}, false, fmt.Errorf("decode run %s: %w", id, err)
	}
	return run, true, nil
}

func (s *BoltStore) ListRuns(_ context.Context) ([]model.RunRecord, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}
	var runs []model.RunRecord
	err = db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(runsBucket).Cursor()
		for id, payload := c.First(); id != nil; id, payload = c.Next() {
			run, err := DecodeRun(payload)
			if err != nil {
				return fmt.Errorf("decode run %s: %w", id, err)
			}
			runs = append(runs, run)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sortRuns(runs)
	return runs, nil
}

func (s *BoltStore) SaveTrace(_ context.Context, runID string, trace []model.SlotRecord) error {
	payload, err := EncodeTrace(trace)
	if err != nil {
		return err
	}
	return s.put(tracesBucket, runID, payload)
}

func (s *BoltStore) GetTrace(_ context.Context, runID string) ([]model.SlotRecord, bool, error) {
	payload, err := s.get(tracesBucket, runID)
	if err != nil || payload == nil {
		return nil, false, err
	}
	trace, err := DecodeTrace(payload)
	if err != nil {
		return nil, false, fmt.Errorf("decode trace %s: %w", runID, err)
	}
	return trace, true, nil
}

func (s *BoltStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *BoltStore) put(bucket []byte, key string, payload []byte) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}
	return db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).Put([]byte(key), payload)
	})
}

// get returns nil without error when key is absent. Values are copied out
// of the transaction.
func (s *BoltStore) get(bucket []byte, key string) ([]byte, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}
	var payload []byte
	err = db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(bucket).Get([]byte(key)); v != nil {
			payload = append([]byte(nil), v...)
		}
		return nil
	})
	return payload, err
}

func (s *BoltStore) getDB() (*bolt.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, errors.New("store is not initialized")
	}
	return s.db, nil
}
