// Package evaluator drives a built network one slot at a time.
//
// Every slot goes through the same phases. Inputs are seeded from values fed
// for that slot and delay nodes emit what they buffered in the previous slot
// (Ready). Nodes then fire level by level; nodes of one level only read
// values settled by lower levels, so they may run concurrently (Firing).
// Once every node has fired, delay buffers and accumulator state are
// replaced at once and the slot counter advances (Settled). Slot t+1 never
// starts before slot t settles.
//
// Results do not depend on the number of workers or on the order in which
// nodes of a level run. When several nodes of one level fail, the error of
// the first one in declaration order is reported.
package evaluator

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/inconshreveable/log15"
	"golang.org/x/sync/errgroup"

	"signalnet/internal/combinator"
	"signalnet/internal/lookup"
	"signalnet/internal/network"
	"signalnet/internal/signal"
)

// MissingPolicy decides what a step does with an input nobody fed.
type MissingPolicy int

const (
	// MissingReject fails the step with ErrMissingInput.
	MissingReject MissingPolicy = iota
	// MissingSubstitute uses a fixed value.
	MissingSubstitute
	// MissingHoldLast repeats the input's previous value; the first slot
	// still fails.
	MissingHoldLast
)

func (p MissingPolicy) String() string {
	switch p {
	case MissingReject:
		return "reject"
	case MissingSubstitute:
		return "substitute"
	case MissingHoldLast:
		return "hold"
	default:
		return fmt.Sprintf("missing(%d)", int(p))
	}
}

func ParseMissingPolicy(name string) (MissingPolicy, error) {
	switch name {
	case "", "reject":
		return MissingReject, nil
	case "substitute", "default":
		return MissingSubstitute, nil
	case "hold", "hold-last":
		return MissingHoldLast, nil
	default:
		return 0, fmt.Errorf("unknown missing-input policy: %q", name)
	}
}

type Phase int32

const (
	PhaseIdle Phase = iota
	PhaseReady
	PhaseFiring
	PhaseSettled
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseReady:
		return "ready"
	case PhaseFiring:
		return "firing"
	case PhaseSettled:
		return "settled"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

type Option func(*Evaluator)

// WithWorkers bounds how many nodes of one level fire concurrently. One
// means strictly sequential firing.
func WithWorkers(n int) Option {
	return func(e *Evaluator) {
		if n > 0 {
			e.workers = n
		}
	}
}

func WithLogger(l log15.Logger) Option {
	return func(e *Evaluator) {
		if l != nil {
			e.log = l
		}
	}
}

// WithMissingPolicy sets the policy for unfed inputs. value is only used by
// MissingSubstitute.
func WithMissingPolicy(p MissingPolicy, value signal.Value) Option {
	return func(e *Evaluator) {
		e.missing = p
		e.substitute = value
	}
}

// WithRetention keeps output history for the last n settled slots; zero
// keeps everything.
func WithRetention(n int) Option {
	return func(e *Evaluator) {
		if n >= 0 {
			e.retention = n
		}
	}
}

// StepResult describes one settled slot.
type StepResult struct {
	Slot    signal.Slot
	Outputs map[string]signal.Value
	// Substituted lists inputs filled by the missing-input policy.
	Substituted []string
}

type Evaluator struct {
	net        *network.Network
	log        log15.Logger
	workers    int
	missing    MissingPolicy
	substitute signal.Value
	retention  int

	producers [][]int
	outputs   []int
	phase     atomic.Int32

	mu        sync.Mutex
	slot      signal.Slot
	pending   map[signal.Slot]map[int]signal.Value
	last      map[int]signal.Value
	delayBuf  []signal.Value
	accState  []signal.Value
	history   map[signal.Slot][]signal.Value
	historyLo signal.Slot
}

func New(net *network.Network, opts ...Option) *Evaluator {
	discard := log15.New("module", "evaluator")
	discard.SetHandler(log15.DiscardHandler())
	e := &Evaluator{
		net:     net,
		log:     discard,
		workers: runtime.GOMAXPROCS(0),
	}
	for _, opt := range opts {
		opt(e)
	}

	e.producers = make([][]int, net.Len())
	for i := range e.producers {
		e.producers[i] = net.Producers(i)
		if net.NodeAt(i).Kind() == network.KindOutput {
			e.outputs = append(e.outputs, i)
		}
	}
	e.resetLocked()
	return e
}

func (e *Evaluator) Network() *network.Network { return e.net }

// Slot returns the next slot Step will evaluate.
func (e *Evaluator) Slot() signal.Slot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.slot
}

// Phase returns the phase of the step in progress or last run.
func (e *Evaluator) Phase() Phase {
	return Phase(e.phase.Load())
}

// Reset returns to slot 0 with initial delay and accumulator state and
// drops fed inputs and output history.
func (e *Evaluator) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.resetLocked()
}

func (e *Evaluator) resetLocked() {
	n := e.net.Len()
	e.slot = 0
	e.pending = make(map[signal.Slot]map[int]signal.Value)
	e.last = make(map[int]signal.Value)
	e.delayBuf = make([]signal.Value, n)
	e.accState = make([]signal.Value, n)
	for i := 0; i < n; i++ {
		if node := e.net.NodeAt(i); node.Kind() == network.KindDelay {
			e.delayBuf[i] = node.Initial()
		}
	}
	e.history = make(map[signal.Slot][]signal.Value)
	e.historyLo = 0
	e.phase.Store(int32(PhaseIdle))
}

// Feed buffers value for input port at slot. Feeding the same value twice is
// harmless; a different value for a slot already fed is rejected, as is any
// value for a slot that has settled.
func (e *Evaluator) Feed(port string, value signal.Value, slot signal.Slot) error {
	i := e.net.Index(port)
	if i < 0 || e.net.NodeAt(i).Kind() != network.KindInput {
		return fmt.Errorf("%w: input %s", ErrUnknownPort, port)
	}
	if err := e.net.NodeAt(i).OutputWidth().Check(value); err != nil {
		return fmt.Errorf("input %s slot %d: %w", port, slot, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if slot < e.slot {
		return fmt.Errorf("%w: input %s slot %d, current slot %d", ErrLateSignal, port, slot, e.slot)
	}
	fed, ok := e.pending[slot]
	if !ok {
		fed = make(map[int]signal.Value)
		e.pending[slot] = fed
	}
	if prev, exists := fed[i]; exists && prev != value {
		return fmt.Errorf("%w: input %s slot %d has %d, got %d", ErrDuplicateFeed, port, slot, prev, value)
	}
	fed[i] = value
	return nil
}

// FeedSignal feeds every value of s starting at its first slot.
func (e *Evaluator) FeedSignal(port string, s signal.Signal) error {
	for slot := s.Start(); slot < s.End(); slot++ {
		v, _ := s.At(slot)
		if err := e.Feed(port, v, slot); err != nil {
			return err
		}
	}
	return nil
}

// Read returns what output port carried at a settled slot.
func (e *Evaluator) Read(port string, slot signal.Slot) (signal.Value, error) {
	i := e.net.Index(port)
	if i < 0 || e.net.NodeAt(i).Kind() != network.KindOutput {
		return 0, fmt.Errorf("%w: output %s", ErrUnknownPort, port)
	}
	ordinal := -1
	for k, idx := range e.outputs {
		if idx == i {
			ordinal = k
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if slot >= e.slot {
		return 0, fmt.Errorf("%w: slot %d, current slot %d", ErrNotSettled, slot, e.slot)
	}
	values, ok := e.history[slot]
	if !ok {
		return 0, fmt.Errorf("%w: slot %d", ErrSlotEvicted, slot)
	}
	if values == nil {
		return 0, fmt.Errorf("%w: slot %d", ErrSlotSkipped, slot)
	}
	return values[ordinal], nil
}

// Skip abandons the current slot: fed inputs for it are dropped, delay and
// accumulator state are kept, and the next Step evaluates the slot after.
func (e *Evaluator) Skip() signal.Slot {
	e.mu.Lock()
	defer e.mu.Unlock()

	slot := e.slot
	delete(e.pending, slot)
	e.history[slot] = nil
	e.advanceLocked()
	e.log.Info("slot skipped", "slot", slot)
	return slot
}

// Run steps through n slots, stopping at the first failure. Cancellation is
// only observed between slots.
func (e *Evaluator) Run(ctx context.Context, n int) (int, error) {
	for i := 0; i < n; i++ {
		if _, err := e.Step(ctx); err != nil {
			return i, err
		}
	}
	return n, nil
}

// Step evaluates the current slot.
func (e *Evaluator) Step(ctx context.Context) (StepResult, error) {
	if err := ctx.Err(); err != nil {
		return StepResult{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	slot := e.slot
	log := e.log.New("slot", slot)
	e.phase.Store(int32(PhaseReady))

	vals := make([]signal.Value, e.net.Len())
	substituted, err := e.seedLocked(slot, vals)
	if err != nil {
		e.phase.Store(int32(PhaseIdle))
		log.Warn("slot aborted", "err", err)
		return StepResult{}, err
	}
	tables, reducers := e.snapshot()

	e.phase.Store(int32(PhaseFiring))
	for depth, level := range e.net.Levels() {
		if err := e.fireLevel(slot, level, vals, tables, reducers); err != nil {
			e.phase.Store(int32(PhaseIdle))
			log.Warn("slot aborted", "level", depth, "err", err)
			return StepResult{}, err
		}
	}

	e.settleLocked(slot, vals)
	e.phase.Store(int32(PhaseSettled))

	result := StepResult{
		Slot:        slot,
		Outputs:     make(map[string]signal.Value, len(e.outputs)),
		Substituted: substituted,
	}
	for _, i := range e.outputs {
		result.Outputs[e.net.NodeAt(i).ID()] = vals[i]
	}
	log.Debug("slot settled", "outputs", len(result.Outputs), "substituted", len(substituted))
	return result, nil
}

func (e *Evaluator) seedLocked(slot signal.Slot, vals []signal.Value) ([]string, error) {
	fed := e.pending[slot]
	var substituted []string
	for i := 0; i < e.net.Len(); i++ {
		node := e.net.NodeAt(i)
		switch node.Kind() {
		case network.KindDelay:
			vals[i] = e.delayBuf[i]
		case network.KindInput:
			if v, ok := fed[i]; ok {
				vals[i] = v
				continue
			}
			v, err := e.fillMissing(i, node)
			if err != nil {
				return nil, &StepError{Slot: slot, Node: node.ID(), Kind: node.Kind(), Err: err}
			}
			vals[i] = v
			substituted = append(substituted, node.ID())
		}
	}
	return substituted, nil
}

func (e *Evaluator) fillMissing(i int, node network.Node) (signal.Value, error) {
	switch e.missing {
	case MissingSubstitute:
		if err := node.OutputWidth().Check(e.substitute); err != nil {
			return 0, fmt.Errorf("substitute value: %w", err)
		}
		return e.substitute, nil
	case MissingHoldLast:
		if v, ok := e.last[i]; ok {
			return v, nil
		}
	}
	return 0, ErrMissingInput
}

// snapshot pins every table and reducer for the duration of one slot.
func (e *Evaluator) snapshot() (map[int]lookup.Table, map[int]combinator.Snapshot) {
	tables := make(map[int]lookup.Table)
	reducers := make(map[int]combinator.Snapshot)
	for i := 0; i < e.net.Len(); i++ {
		node := e.net.NodeAt(i)
		switch node.Kind() {
		case network.KindTransformer:
			tables[i] = node.Transformer().Table()
		case network.KindCombinator:
			reducers[i] = node.Combinator().Snapshot()
		}
	}
	return tables, reducers
}

func (e *Evaluator) fireLevel(
	slot signal.Slot,
	level []int,
	vals []signal.Value,
	tables map[int]lookup.Table,
	reducers map[int]combinator.Snapshot,
) error {
	errs := make([]error, len(level))
	if e.workers <= 1 || len(level) == 1 {
		for k, i := range level {
			errs[k] = e.fire(slot, i, vals, tables, reducers)
		}
	} else {
		var g errgroup.Group
		g.SetLimit(e.workers)
		for k, i := range level {
			k, i := k, i
			g.Go(func() error {
				errs[k] = e.fire(slot, i, vals, tables, reducers)
				return errs[k]
			})
		}
		_ = g.Wait()
	}
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// fire computes vals[i]. It reads only the entries of producers, which lower
// levels have already written, and writes only its own entry.
func (e *Evaluator) fire(
	slot signal.Slot,
	i int,
	vals []signal.Value,
	tables map[int]lookup.Table,
	reducers map[int]combinator.Snapshot,
) error {
	node := e.net.NodeAt(i)
	producers := e.producers[i]
	switch node.Kind() {
	case network.KindInput, network.KindDelay:
		return nil
	case network.KindOutput:
		vals[i] = vals[producers[0]]
		return nil
	}

	inputs := make([]signal.Value, len(producers))
	for port, p := range producers {
		inputs[port] = vals[p]
	}

	var (
		out signal.Value
		err error
	)
	switch node.Kind() {
	case network.KindTransformer:
		out, err = tables[i].Lookup(inputs[0])
	case network.KindCombinator:
		r := reducers[i]
		if node.Combinator().Stateful() {
			out, err = r.Accumulate(e.accState[i], inputs)
		} else {
			out, err = r.Combine(inputs)
		}
	default:
		err = fmt.Errorf("%w: unknown node kind %s", ErrInternal, node.Kind())
	}
	if err != nil {
		if errors.Is(err, signal.ErrArityMismatch) {
			err = fmt.Errorf("%w: %w", ErrInternal, err)
		}
		return &StepError{Slot: slot, Node: node.ID(), Kind: node.Kind(), Inputs: inputs, Err: err}
	}
	vals[i] = out
	return nil
}

func (e *Evaluator) settleLocked(slot signal.Slot, vals []signal.Value) {
	for i := 0; i < e.net.Len(); i++ {
		node := e.net.NodeAt(i)
		switch node.Kind() {
		case network.KindDelay:
			e.delayBuf[i] = vals[e.producers[i][0]]
		case network.KindCombinator:
			if node.Combinator().Stateful() {
				e.accState[i] = vals[i]
			}
		case network.KindInput:
			e.last[i] = vals[i]
		}
	}

	outputs := make([]signal.Value, len(e.outputs))
	for k, i := range e.outputs {
		outputs[k] = vals[i]
	}
	e.history[slot] = outputs
	delete(e.pending, slot)
	e.advanceLocked()
}

func (e *Evaluator) advanceLocked() {
	e.slot++
	if e.retention == 0 {
		return
	}
	for e.slot-e.historyLo > signal.Slot(e.retention) {
		delete(e.history, e.historyLo)
		e.historyLo++
	}
}
