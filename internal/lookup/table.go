// Package lookup holds the fixed-domain tables that transformer nodes apply.
//
// A table is a total function from [0, 2^in-1] to [0, 2^out-1]. It is built
// from an ordered list of entries, where later entries override earlier ones,
// plus an optional default that fills every input no entry mentions. Small
// domains are stored densely as an array indexed by the input; larger ones as
// sorted disjoint segments searched by binary search. Both strategies answer
// Lookup identically.
package lookup

import (
	"errors"
	"fmt"
	"sort"

	"signalnet/internal/signal"
)

// DenseLimit is the largest domain stored as an array by Build.
const DenseLimit = 1 << 16

var (
	ErrEntryRange = errors.New("table entry out of range")
	ErrIncomplete = errors.New("table is not total")
	ErrTooWide    = errors.New("domain too wide for a dense table")
)

type Strategy int

const (
	StrategyAuto Strategy = iota
	StrategyDense
	StrategySparse
)

func (s Strategy) String() string {
	switch s {
	case StrategyDense:
		return "dense"
	case StrategySparse:
		return "sparse"
	default:
		return "auto"
	}
}

func ParseStrategy(name string) (Strategy, error) {
	switch name {
	case "", "auto":
		return StrategyAuto, nil
	case "dense":
		return StrategyDense, nil
	case "sparse":
		return StrategySparse, nil
	default:
		return 0, fmt.Errorf("unknown table strategy: %q", name)
	}
}

// Table maps every input of its domain to exactly one output.
type Table interface {
	Lookup(v signal.Value) (signal.Value, error)
	InputWidth() signal.Width
	OutputWidth() signal.Width
	Strategy() Strategy
	// Len is the number of stored cells: domain size for dense tables,
	// segment count for sparse ones.
	Len() int
}

// Entry maps the inclusive input range [From, To] to Output.
type Entry struct {
	From   signal.Value
	To     signal.Value
	Output signal.Value
}

// Point is an Entry for a single input.
func Point(in, out signal.Value) Entry {
	return Entry{From: in, To: in, Output: out}
}

// Range is an Entry covering [from, to].
func Range(from, to, out signal.Value) Entry {
	return Entry{From: from, To: to, Output: out}
}

// IncompleteTableError reports a table without default whose entries leave
// inputs unmapped.
type IncompleteTableError struct {
	FirstMissing signal.Value
	Missing      uint64
}

func (e *IncompleteTableError) Error() string {
	return fmt.Sprintf("%v: %d inputs unmapped, first=%d", ErrIncomplete, e.Missing, e.FirstMissing)
}

func (e *IncompleteTableError) Is(target error) bool { return target == ErrIncomplete }

// Default returns a pointer suitable for the def argument of Build.
func Default(v signal.Value) *signal.Value {
	return &v
}

// Build resolves entries and an optional default into a total table.
func Build(in, out signal.Width, entries []Entry, def *signal.Value) (Table, error) {
	return BuildWithStrategy(StrategyAuto, in, out, entries, def)
}

// BuildWithStrategy is Build with an explicit backing strategy.
func BuildWithStrategy(strategy Strategy, in, out signal.Width, entries []Entry, def *signal.Value) (Table, error) {
	if err := in.Validate(); err != nil {
		return nil, fmt.Errorf("input width: %w", err)
	}
	if err := out.Validate(); err != nil {
		return nil, fmt.Errorf("output width: %w", err)
	}
	for i, e := range entries {
		if e.From > e.To || !in.Contains(e.To) {
			return nil, fmt.Errorf("%w: entry %d input [%d, %d] outside %d bits", ErrEntryRange, i, e.From, e.To, in)
		}
		if !out.Contains(e.Output) {
			return nil, fmt.Errorf("%w: entry %d output %d outside %d bits", ErrEntryRange, i, e.Output, out)
		}
	}
	if def != nil && !out.Contains(*def) {
		return nil, fmt.Errorf("%w: default %d outside %d bits", ErrEntryRange, *def, out)
	}

	if strategy == StrategyAuto {
		strategy = StrategySparse
		if in.DomainSize() <= DenseLimit {
			strategy = StrategyDense
		}
	}
	switch strategy {
	case StrategyDense:
		return buildDense(in, out, entries, def)
	case StrategySparse:
		return buildSparse(in, out, entries, def)
	default:
		return nil, fmt.Errorf("unknown table strategy: %d", strategy)
	}
}

// FromFunc builds a dense table by evaluating fn over the whole domain.
func FromFunc(in, out signal.Width, fn func(signal.Value) signal.Value) (Table, error) {
	if err := in.Validate(); err != nil {
		return nil, fmt.Errorf("input width: %w", err)
	}
	if err := out.Validate(); err != nil {
		return nil, fmt.Errorf("output width: %w", err)
	}
	if in.DomainSize() > DenseLimit {
		return nil, fmt.Errorf("%w: %d bits", ErrTooWide, in)
	}
	cells := make([]signal.Value, in.DomainSize())
	for i := range cells {
		v := fn(signal.Value(i))
		if !out.Contains(v) {
			return nil, fmt.Errorf("%w: f(%d)=%d outside %d bits", ErrEntryRange, i, v, out)
		}
		cells[i] = v
	}
	return &denseTable{in: in, out: out, cells: cells}, nil
}

// FromValues builds a dense table whose cell i is values[i]. The list must
// cover the whole domain.
func FromValues(in, out signal.Width, values []signal.Value) (Table, error) {
	if err := in.Validate(); err != nil {
		return nil, fmt.Errorf("input width: %w", err)
	}
	if in.DomainSize() > DenseLimit {
		return nil, fmt.Errorf("%w: %d bits", ErrTooWide, in)
	}
	if uint64(len(values)) < in.DomainSize() {
		return nil, &IncompleteTableError{
			FirstMissing: signal.Value(len(values)),
			Missing:      in.DomainSize() - uint64(len(values)),
		}
	}
	if uint64(len(values)) > in.DomainSize() {
		return nil, fmt.Errorf("%w: %d values for %d inputs", ErrEntryRange, len(values), in.DomainSize())
	}
	return FromFunc(in, out, func(v signal.Value) signal.Value { return values[v] })
}

type denseTable struct {
	in    signal.Width
	out   signal.Width
	cells []signal.Value
}

func buildDense(in, out signal.Width, entries []Entry, def *signal.Value) (Table, error) {
	if in.DomainSize() > DenseLimit {
		return nil, fmt.Errorf("%w: %d bits", ErrTooWide, in)
	}
	size := in.DomainSize()
	cells := make([]signal.Value, size)
	mapped := make([]bool, size)
	for _, e := range entries {
		for v := uint64(e.From); v <= uint64(e.To); v++ {
			cells[v] = e.Output
			mapped[v] = true
		}
	}

	var incomplete *IncompleteTableError
	for v, ok := range mapped {
		if ok {
			continue
		}
		if def != nil {
			cells[v] = *def
			continue
		}
		if incomplete == nil {
			incomplete = &IncompleteTableError{FirstMissing: signal.Value(v)}
		}
		incomplete.Missing++
	}
	if incomplete != nil {
		return nil, incomplete
	}
	return &denseTable{in: in, out: out, cells: cells}, nil
}

func (t *denseTable) Lookup(v signal.Value) (signal.Value, error) {
	if !t.in.Contains(v) {
		return 0, &signal.DomainError{Value: v, Width: t.in}
	}
	return t.cells[v], nil
}

func (t *denseTable) InputWidth() signal.Width  { return t.in }
func (t *denseTable) OutputWidth() signal.Width { return t.out }
func (t *denseTable) Strategy() Strategy        { return StrategyDense }
func (t *denseTable) Len() int                  { return len(t.cells) }

type segment struct {
	lo, hi signal.Value
	out    signal.Value
}

type sparseTable struct {
	in       signal.Width
	out      signal.Width
	segments []segment
	fallback signal.Value
}

func buildSparse(in, out signal.Width, entries []Entry, def *signal.Value) (Table, error) {
	var segments []segment
	for _, e := range entries {
		segments = overlay(segments, segment{lo: e.From, hi: e.To, out: e.Output})
	}
	t := &sparseTable{in: in, out: out, segments: segments}
	if def != nil {
		t.fallback = *def
		return t, nil
	}
	if err := coverage(segments, in.Max()); err != nil {
		return nil, err
	}
	return t, nil
}

// overlay inserts s over existing, cutting whatever it overlaps.
func overlay(existing []segment, s segment) []segment {
	out := make([]segment, 0, len(existing)+2)
	for _, cur := range existing {
		if cur.hi < s.lo || cur.lo > s.hi {
			out = append(out, cur)
			continue
		}
		if cur.lo < s.lo {
			out = append(out, segment{lo: cur.lo, hi: s.lo - 1, out: cur.out})
		}
		if cur.hi > s.hi {
			out = append(out, segment{lo: s.hi + 1, hi: cur.hi, out: cur.out})
		}
	}
	out = append(out, s)
	sort.Slice(out, func(i, j int) bool { return out[i].lo < out[j].lo })
	return out
}

func coverage(segments []segment, max signal.Value) error {
	var (
		incomplete *IncompleteTableError
		next       signal.Value
		done       bool
	)
	miss := func(from, to signal.Value) {
		if incomplete == nil {
			incomplete = &IncompleteTableError{FirstMissing: from}
		}
		n := uint64(to - from)
		if n == ^uint64(0) || incomplete.Missing+n+1 < incomplete.Missing {
			incomplete.Missing = ^uint64(0)
			return
		}
		incomplete.Missing += n + 1
	}
	for _, s := range segments {
		if s.lo > next {
			miss(next, s.lo-1)
		}
		if s.hi == max {
			done = true
			break
		}
		next = s.hi + 1
	}
	if !done {
		miss(next, max)
	}
	if incomplete != nil {
		return incomplete
	}
	return nil
}

func (t *sparseTable) Lookup(v signal.Value) (signal.Value, error) {
	if !t.in.Contains(v) {
		return 0, &signal.DomainError{Value: v, Width: t.in}
	}
	i := sort.Search(len(t.segments), func(i int) bool { return t.segments[i].hi >= v })
	if i < len(t.segments) && t.segments[i].lo <= v {
		return t.segments[i].out, nil
	}
	return t.fallback, nil
}

func (t *sparseTable) InputWidth() signal.Width  { return t.in }
func (t *sparseTable) OutputWidth() signal.Width { return t.out }
func (t *sparseTable) Strategy() Strategy        { return StrategySparse }
func (t *sparseTable) Len() int                  { return len(t.segments) }
