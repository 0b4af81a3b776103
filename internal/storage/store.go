package storage

import (
	"context"

	"signalnet/internal/model"
)

// Store persists network descriptions, run records and run traces.
type Store interface {
	Init(ctx context.Context) error
	SaveNetwork(ctx context.Context, desc model.NetworkDescription) error
	GetNetwork(ctx context.Context, name string) (model.NetworkDescription, bool, error)
	ListNetworks(ctx context.Context) ([]string, error)
	SaveRun(ctx context.Context, run model.RunRecord) error
	GetRun(ctx context.Context, id string) (model.RunRecord, bool, error)
	// ListRuns returns every run ordered by start time.
	ListRuns(ctx context.Context) ([]model.RunRecord, error)
	SaveTrace(ctx context.Context, runID string, trace []model.SlotRecord) error
	GetTrace(ctx context.Context, runID string) ([]model.SlotRecord, bool, error)
}
