package storage

import (
	"context"
	"path/filepath"
	"testing"

	"signalnet/internal/model"
)

func TestBoltStore(t *testing.T) {
	store, err := NewStore("bolt", filepath.Join(t.TempDir(), "signalnet.bolt"))
	if err != nil {
		t.Fatalf("new bolt store: %v", err)
	}
	if err := store.Init(context.Background()); err != nil {
		t.Fatalf("init: %v", err)
	}
	t.Cleanup(func() {
		_ = CloseIfSupported(store)
	})
	exerciseStore(t, store)
}

func TestBoltStorePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "signalnet.bolt")

	store := NewBoltStore(path)
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	run := model.RunRecord{VersionedRecord: CurrentVersion(), ID: "run-1", Network: "n", Status: model.RunCompleted}
	if err := store.SaveRun(ctx, run); err != nil {
		t.Fatalf("save run: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, _, err := store.GetRun(ctx, "run-1"); err == nil {
		t.Fatal("closed store should refuse reads")
	}

	reopened := NewBoltStore(path)
	if err := reopened.Init(ctx); err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	loaded, ok, err := reopened.GetRun(ctx, "run-1")
	if err != nil || !ok || loaded.Status != model.RunCompleted {
		t.Fatalf("get run after reopen: %+v ok=%t err=%v", loaded, ok, err)
	}
}
