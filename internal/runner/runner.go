// Package runner drives an evaluator from a source to a set of sinks and
// records what happened.
package runner

import (
	"context"
	"errors"
	"fmt"
	stdio "io"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/inconshreveable/log15"

	"signalnet/internal/evaluator"
	sigio "signalnet/internal/io"
	"signalnet/internal/model"
	"signalnet/internal/signal"
	"signalnet/internal/storage"
)

// ErrorPolicy decides what a run does with a slot that cannot be fed or
// evaluated.
type ErrorPolicy int

const (
	// ErrorAbort stops the run.
	ErrorAbort ErrorPolicy = iota
	// ErrorSkip drops the slot; sinks never see it.
	ErrorSkip
	// ErrorSubstitute drops the slot and hands sinks the substitute value
	// on every output port instead.
	ErrorSubstitute
)

func (p ErrorPolicy) String() string {
	switch p {
	case ErrorAbort:
		return "abort"
	case ErrorSkip:
		return "skip"
	case ErrorSubstitute:
		return "substitute"
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}

func ParseErrorPolicy(name string) (ErrorPolicy, error) {
	switch name {
	case "", "abort":
		return ErrorAbort, nil
	case "skip":
		return ErrorSkip, nil
	case "substitute":
		return ErrorSubstitute, nil
	default:
		return 0, fmt.Errorf("unknown error policy: %q", name)
	}
}

type Request struct {
	// Network names the network in run records.
	Network   string
	Evaluator *evaluator.Evaluator
	// Source may be nil when MaxSlots is set, for networks driven by delays
	// alone or by the missing-input policy.
	Source sigio.Source
	Sinks  []sigio.Sink
	// MaxSlots bounds the run; zero runs until the source is exhausted.
	MaxSlots   int
	OnError    ErrorPolicy
	Substitute signal.Value
	Workers    int
}

type Summary struct {
	Run   model.RunRecord
	Trace []model.SlotRecord
}

type Option func(*Runner)

func WithLogger(l log15.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.log = l
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(r *Runner) {
		if now != nil {
			r.now = now
		}
	}
}

type Runner struct {
	store storage.Store
	log   log15.Logger
	now   func() time.Time
}

// New returns a runner that saves run records and traces to store, which
// may be nil.
func New(store storage.Store, opts ...Option) *Runner {
	discard := log15.New("module", "runner")
	discard.SetHandler(log15.DiscardHandler())
	r := &Runner{store: store, log: discard, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run evaluates slots until the source is exhausted, MaxSlots is reached,
// ctx is cancelled, or a failure the error policy does not absorb. The
// summary is returned and persisted in every case.
func (r *Runner) Run(ctx context.Context, req Request) (Summary, error) {
	if req.Evaluator == nil {
		return Summary{}, errors.New("evaluator is required")
	}
	if req.Source == nil && req.MaxSlots <= 0 {
		return Summary{}, errors.New("a run without source needs max slots")
	}
	if req.OnError == ErrorSubstitute {
		net := req.Evaluator.Network()
		for _, port := range net.Outputs() {
			node, _ := net.Node(port)
			if err := node.OutputWidth().Check(req.Substitute); err != nil {
				return Summary{}, fmt.Errorf("substitute value for output %s: %w", port, err)
			}
		}
	}

	record := model.RunRecord{
		VersionedRecord: storage.CurrentVersion(),
		ID:              uuid.NewString(),
		Network:         req.Network,
		Status:          model.RunRunning,
		StartedAt:       r.now().UTC(),
		Workers:         req.Workers,
	}
	log := r.log.New("run", record.ID, "network", req.Network)
	log.Info("run started", "max_slots", req.MaxSlots, "on_error", req.OnError)
	if err := r.saveRun(ctx, record); err != nil {
		return Summary{}, err
	}

	var trace []model.SlotRecord
	runErr := r.loop(ctx, req, &record, &trace, log)

	record.FinishedAt = r.now().UTC()
	switch {
	case runErr == nil:
		record.Status = model.RunCompleted
	case errors.Is(runErr, context.Canceled), errors.Is(runErr, context.DeadlineExceeded):
		record.Status = model.RunCancelled
		record.Error = runErr.Error()
	default:
		record.Status = model.RunFailed
		record.Error = runErr.Error()
	}

	// Persist with a fresh context so a cancelled run is still recorded.
	persistCtx := context.WithoutCancel(ctx)
	if err := r.saveRun(persistCtx, record); err != nil {
		return Summary{Run: record, Trace: trace}, errors.Join(runErr, err)
	}
	if r.store != nil {
		if err := r.store.SaveTrace(persistCtx, record.ID, trace); err != nil {
			return Summary{Run: record, Trace: trace}, errors.Join(runErr, fmt.Errorf("save trace: %w", err))
		}
	}

	if runErr != nil {
		log.Warn("run stopped", "status", record.Status, "settled", record.Settled, "err", runErr)
	} else {
		log.Info("run finished", "settled", record.Settled, "skipped", record.Skipped, "substituted", record.Substituted)
	}
	return Summary{Run: record, Trace: trace}, runErr
}

func (r *Runner) loop(ctx context.Context, req Request, record *model.RunRecord, trace *[]model.SlotRecord, log log15.Logger) error {
	ev := req.Evaluator
	outputs := ev.Network().Outputs()
	for n := 0; req.MaxSlots == 0 || n < req.MaxSlots; n++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		slot := ev.Slot()
		entry := model.SlotRecord{VersionedRecord: storage.CurrentVersion(), Slot: uint64(slot)}

		var inputs map[string]signal.Value
		if req.Source != nil {
			var err error
			inputs, err = req.Source.Next(ctx, slot)
			if err == stdio.EOF {
				return nil
			}
			if err != nil {
				return fmt.Errorf("source %s at slot %d: %w", req.Source.Name(), slot, err)
			}
			entry.Inputs = toRecord(inputs)
		}

		res, err := r.evaluate(ctx, ev, slot, inputs)
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		if err != nil {
			entry.Error = err.Error()
			entry.Skipped = true
			if req.OnError == ErrorAbort {
				*trace = append(*trace, entry)
				return err
			}
			ev.Skip()
			record.Skipped++
			log.Warn("slot skipped", "slot", slot, "err", err)
			if req.OnError == ErrorSkip {
				*trace = append(*trace, entry)
				continue
			}
			res = evaluator.StepResult{Slot: slot, Outputs: make(map[string]signal.Value, len(outputs))}
			for _, port := range outputs {
				res.Outputs[port] = req.Substitute
			}
		} else {
			record.Settled++
			record.Substituted += len(res.Substituted)
			entry.Substituted = res.Substituted
		}
		entry.Outputs = toRecord(res.Outputs)
		*trace = append(*trace, entry)

		for _, sink := range req.Sinks {
			if err := sink.Write(ctx, slot, res.Outputs); err != nil {
				return fmt.Errorf("sink %s at slot %d: %w", sink.Name(), slot, err)
			}
		}
	}
	return nil
}

// evaluate feeds inputs for slot and steps. Feeds for ports the network does
// not have fail the slot like any step error.
func (r *Runner) evaluate(ctx context.Context, ev *evaluator.Evaluator, slot signal.Slot, inputs map[string]signal.Value) (evaluator.StepResult, error) {
	ports := make([]string, 0, len(inputs))
	for port := range inputs {
		ports = append(ports, port)
	}
	sort.Strings(ports)
	for _, port := range ports {
		if err := ev.Feed(port, inputs[port], slot); err != nil {
			return evaluator.StepResult{}, err
		}
	}
	return ev.Step(ctx)
}

func (r *Runner) saveRun(ctx context.Context, record model.RunRecord) error {
	if r.store == nil {
		return nil
	}
	if err := r.store.SaveRun(ctx, record); err != nil {
		return fmt.Errorf("save run %s: %w", record.ID, err)
	}
	return nil
}

func toRecord(values map[string]signal.Value) map[string]uint64 {
	if len(values) == 0 {
		return nil
	}
	out := make(map[string]uint64, len(values))
	for port, v := range values {
		out[port] = uint64(v)
	}
	return out
}
