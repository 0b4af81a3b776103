package storage

import (
	"context"
	"testing"
	"time"

	"signalnet/internal/model"
)

// exerciseStore runs the behaviour every backend shares.
func exerciseStore(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	if _, ok, err := store.GetNetwork(ctx, "missing"); err != nil || ok {
		t.Fatalf("get missing network: ok=%t err=%v", ok, err)
	}

	def := uint64(0)
	desc := model.NetworkDescription{
		VersionedRecord: CurrentVersion(),
		Name:            "threshold",
		Nodes: []model.NodeSpec{
			{ID: "in", Kind: "input", Width: 8},
			{ID: "gt5", Kind: "transformer", Table: &model.TableSpec{
				InputWidth: 8, OutputWidth: 1, Entries: []model.EntrySpec{{From: 6, Output: 1}}, Default: &def,
			}},
			{ID: "out", Kind: "output", Width: 1},
		},
		Edges: []model.EdgeSpec{{From: "in", To: "gt5"}, {From: "gt5", To: "out"}},
	}
	if err := store.SaveNetwork(ctx, desc); err != nil {
		t.Fatalf("save network: %v", err)
	}
	other := desc
	other.Name = "alpha"
	if err := store.SaveNetwork(ctx, other); err != nil {
		t.Fatalf("save network: %v", err)
	}
	loaded, ok, err := store.GetNetwork(ctx, "threshold")
	if err != nil || !ok {
		t.Fatalf("get network: ok=%t err=%v", ok, err)
	}
	if len(loaded.Nodes) != 3 || loaded.Nodes[1].Table == nil || *loaded.Nodes[1].Table.Default != 0 {
		t.Fatalf("unexpected network loaded: %+v", loaded)
	}
	names, err := store.ListNetworks(ctx)
	if err != nil {
		t.Fatalf("list networks: %v", err)
	}
	if len(names) != 2 || names[0] != "alpha" || names[1] != "threshold" {
		t.Fatalf("unexpected network names: %v", names)
	}

	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	late := model.RunRecord{VersionedRecord: CurrentVersion(), ID: "run-b", Network: "threshold", Status: model.RunRunning, StartedAt: start.Add(time.Minute)}
	early := model.RunRecord{VersionedRecord: CurrentVersion(), ID: "run-z", Network: "threshold", Status: model.RunCompleted, StartedAt: start, Settled: 3}
	for _, run := range []model.RunRecord{late, early} {
		if err := store.SaveRun(ctx, run); err != nil {
			t.Fatalf("save run: %v", err)
		}
	}
	late.Status = model.RunFailed
	late.Error = "slot 2: overflow"
	if err := store.SaveRun(ctx, late); err != nil {
		t.Fatalf("update run: %v", err)
	}
	run, ok, err := store.GetRun(ctx, "run-b")
	if err != nil || !ok || run.Status != model.RunFailed || run.Error == "" {
		t.Fatalf("get run: %+v ok=%t err=%v", run, ok, err)
	}
	runs, err := store.ListRuns(ctx)
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != "run-z" || runs[1].ID != "run-b" {
		t.Fatalf("runs must be ordered by start time: %+v", runs)
	}

	trace := []model.SlotRecord{
		{VersionedRecord: CurrentVersion(), Slot: 0, Inputs: map[string]uint64{"in": 3}, Outputs: map[string]uint64{"out": 0}},
		{VersionedRecord: CurrentVersion(), Slot: 1, Skipped: true, Error: "overflow"},
	}
	if err := store.SaveTrace(ctx, "run-z", trace); err != nil {
		t.Fatalf("save trace: %v", err)
	}
	trace[0].Inputs["in"] = 99
	got, ok, err := store.GetTrace(ctx, "run-z")
	if err != nil || !ok {
		t.Fatalf("get trace: ok=%t err=%v", ok, err)
	}
	if len(got) != 2 || got[0].Inputs["in"] != 3 || !got[1].Skipped {
		t.Fatalf("unexpected trace: %+v", got)
	}
	if _, ok, err := store.GetTrace(ctx, "run-b"); err != nil || ok {
		t.Fatalf("get missing trace: ok=%t err=%v", ok, err)
	}
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	if err := store.Init(context.Background()); err != nil {
		t.Fatalf("init: %v", err)
	}
	exerciseStore(t, store)
}

func TestNewStoreMemory(t *testing.T) {
	store, err := NewStore("memory", "")
	if err != nil {
		t.Fatalf("new memory store: %v", err)
	}
	if store == nil {
		t.Fatal("expected non-nil store")
	}
}

func TestNewStoreUnsupported(t *testing.T) {
	if _, err := NewStore("unknown", ""); err == nil {
		t.Fatal("expected unsupported store error")
	}
	if _, err := NewStore("bolt", ""); err == nil {
		t.Fatal("expected bolt store to require a path")
	}
}
