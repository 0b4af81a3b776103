package storage

import (
	"context"
	"sort"
	"sync"

	"signalnet/internal/model"
)

type MemoryStore struct {
	mu          sync.RWMutex
	initialized bool
	networks    map[string]model.NetworkDescription
	runs        map[string]model.RunRecord
	traces      map[string][]model.SlotRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.initialized = true
	s.networks = make(map[string]model.NetworkDescription)
	s.runs = make(map[string]model.RunRecord)
	s.traces = make(map[string][]model.SlotRecord)
	return nil
}

func (s *MemoryStore) SaveNetwork(_ context.Context, desc model.NetworkDescription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.networks[desc.Name] = cloneNetwork(desc)
	return nil
}

func (s *MemoryStore) GetNetwork(_ context.Context, name string) (model.NetworkDescription, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	desc, ok := s.networks[name]
	if !ok {
		return model.NetworkDescription{}, false, nil
	}
	return cloneNetwork(desc), true, nil
}

func (s *MemoryStore) ListNetworks(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.networks))
	for name := range s.networks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (s *MemoryStore) SaveRun(_ context.Context, run model.RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.runs[run.ID] = run
	return nil
}

func (s *MemoryStore) GetRun(_ context.Context, id string) (model.RunRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[id]
	return run, ok, nil
}

func (s *MemoryStore) ListRuns(_ context.Context) ([]model.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	runs := make([]model.RunRecord, 0, len(s.runs))
	for _, run := range s.runs {
		runs = append(runs, run)
	}
	sortRuns(runs)
	return runs, nil
}

func (s *MemoryStore) SaveTrace(_ context.Context, runID string, trace []model.SlotRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.traces[runID] = cloneTrace(trace)
	return nil
}

func (s *MemoryStore) GetTrace(_ context.Context, runID string) ([]model.SlotRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	trace, ok := s.traces[runID]
	if !ok {
		return nil, false, nil
	}
	return cloneTrace(trace), true, nil
}

func cloneNetwork(desc model.NetworkDescription) model.NetworkDescription {
	out := desc
	out.Nodes = make([]model.NodeSpec, len(desc.Nodes))
	for i, node := range desc.Nodes {
		if node.Table != nil {
			table := *node.Table
			table.Entries = append([]model.EntrySpec(nil), table.Entries...)
			table.Values = append([]uint64(nil), table.Values...)
			node.Table = &table
		}
		out.Nodes[i] = node
	}
	out.Edges = append([]model.EdgeSpec(nil), desc.Edges...)
	for i, edge := range out.Edges {
		if edge.ToPort != nil {
			port := *edge.ToPort
			out.Edges[i].ToPort = &port
		}
	}
	return out
}

func cloneTrace(trace []model.SlotRecord) []model.SlotRecord {
	out := make([]model.SlotRecord, len(trace))
	for i, record := range trace {
		record.Inputs = cloneValues(record.Inputs)
		record.Outputs = cloneValues(record.Outputs)
		record.Substituted = append([]string(nil), record.Substituted...)
		out[i] = record
	}
	return out
}

func cloneValues(m map[string]uint64) map[string]uint64 {
	if m == nil {
		return nil
	}
	out := make(map[string]uint64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func sortRuns(runs []model.RunRecord) {
	sort.Slice(runs, func(i, j int) bool {
		if !runs[i].StartedAt.Equal(runs[j].StartedAt) {
			return runs[i].StartedAt.Before(runs[j].StartedAt)
		}
		return runs[i].ID < runs[j].ID
	})
}
