package evaluator

import (
	"errors"
	"fmt"

	"signalnet/internal/network"
	"signalnet/internal/signal"
)

var (
	ErrUnknownPort   = errors.New("unknown port")
	ErrLateSignal    = errors.New("signal arrived after its slot settled")
	ErrDuplicateFeed = errors.New("conflicting value for slot")
	ErrMissingInput  = errors.New("input missing for slot")
	ErrNotSettled    = errors.New("slot not settled")
	ErrSlotEvicted   = errors.New("slot no longer retained")
	ErrSlotSkipped   = errors.New("slot was skipped")
	// ErrInternal marks failures that validated topology should rule out.
	ErrInternal = errors.New("evaluator invariant violated")
)

// StepError aborts one slot. Nothing about the evaluator changes when a
// step fails, so the caller may feed a substitute and step again, Skip the
// slot, or stop.
type StepError struct {
	Slot   signal.Slot
	Node   string
	Kind   network.Kind
	Inputs []signal.Value
	Err    error
}

func (e *StepError) Error() string {
	if e.Node == "" {
		return fmt.Sprintf("slot %d: %v", e.Slot, e.Err)
	}
	return fmt.Sprintf("slot %d: %s node %s inputs %v: %v", e.Slot, e.Kind, e.Node, e.Inputs, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }
