package io

import (
	"context"

	"signalnet/internal/signal"
)

// Source supplies the input values of successive slots. Next returns io.EOF
// once it has nothing more to give; a port missing from a returned map is
// left to the evaluator's missing-input policy.
type Source interface {
	Name() string
	Next(ctx context.Context, slot signal.Slot) (map[string]signal.Value, error)
}

// Sink receives the output values of every settled slot.
type Sink interface {
	Name() string
	Write(ctx context.Context, slot signal.Slot, outputs map[string]signal.Value) error
}

// SnapshotSink is an optional sink capability used to inspect the most
// recent outputs.
type SnapshotSink interface {
	Last() map[string]signal.Value
}

// Params configures a registered source or sink.
type Params map[string]string
