// Package combinator implements the merge node: an ordered list of inputs
// reduced to one output value.
//
// Built-in operators are commutative. A Custom reducer is a caller-supplied
// function; the engine checks arity and widths around it but cannot check
// that it is pure, so callers must not give it hidden state. When a custom
// reducer is not commutative, the order of the input ports is part of the
// combinator's identity.
package combinator

import (
	"errors"
	"fmt"
	"math/bits"
	"sort"
	"sync/atomic"

	"signalnet/internal/signal"
)

var (
	ErrArity         = errors.New("combinator arity must be >= 1")
	ErrMissingCustom = errors.New("custom operator requires a reducer")
	ErrUnexpected    = errors.New("reducer given for a built-in operator")
)

// Reducer is a user-supplied reduction. width is the declared input width.
type Reducer func(inputs []signal.Value, width signal.Width) (signal.Value, error)

type Config struct {
	Operator Operator
	Arity    int
	// Width is the declared width of every input.
	Width signal.Width
	// OutputWidth defaults to Width when zero.
	OutputWidth signal.Width
	Overflow    OverflowPolicy
	Rounding    Rounding
	Custom      Reducer
	// Commutative marks a Custom reducer as order-independent. Built-in
	// operators are always commutative.
	Commutative bool
	// Accumulate adds the previous slot's output to every new result.
	Accumulate bool
}

type Combinator struct {
	cfg atomic.Pointer[Config]
}

func New(cfg Config) (*Combinator, error) {
	if cfg.Arity < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrArity, cfg.Arity)
	}
	if err := cfg.Width.Validate(); err != nil {
		return nil, fmt.Errorf("input width: %w", err)
	}
	if cfg.OutputWidth == 0 {
		cfg.OutputWidth = cfg.Width
	}
	if err := cfg.OutputWidth.Validate(); err != nil {
		return nil, fmt.Errorf("output width: %w", err)
	}
	if _, ok := operatorNames[cfg.Operator]; !ok {
		return nil, fmt.Errorf("unknown combinator operator: %d", cfg.Operator)
	}
	if cfg.Operator == OpCustom && cfg.Custom == nil {
		return nil, ErrMissingCustom
	}
	if cfg.Operator != OpCustom && cfg.Custom != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnexpected, cfg.Operator)
	}
	c := &Combinator{}
	c.cfg.Store(&cfg)
	return c, nil
}

// Config returns a copy of the current configuration.
func (c *Combinator) Config() Config {
	return *c.cfg.Load()
}

func (c *Combinator) Arity() int                { return c.cfg.Load().Arity }
func (c *Combinator) Width() signal.Width       { return c.cfg.Load().Width }
func (c *Combinator) OutputWidth() signal.Width { return c.cfg.Load().OutputWidth }
func (c *Combinator) Stateful() bool            { return c.cfg.Load().Accumulate }

// Commutative reports whether input order can be ignored.
func (c *Combinator) Commutative() bool {
	cfg := c.cfg.Load()
	return cfg.Operator != OpCustom || cfg.Commutative
}

// SwapCustom atomically replaces the reducer of a Custom combinator.
func (c *Combinator) SwapCustom(fn Reducer, commutative bool) error {
	if fn == nil {
		return ErrMissingCustom
	}
	for {
		cur := c.cfg.Load()
		if cur.Operator != OpCustom {
			return fmt.Errorf("swap reducer on %s combinator", cur.Operator)
		}
		next := *cur
		next.Custom = fn
		next.Commutative = commutative
		if c.cfg.CompareAndSwap(cur, &next) {
			return nil
		}
	}
}

// Combine reduces inputs, ordered by input port, into one value.
func (c *Combinator) Combine(inputs []signal.Value) (signal.Value, error) {
	return c.Snapshot().Combine(inputs)
}

// Accumulate combines inputs and adds prev under the overflow policy.
func (c *Combinator) Accumulate(prev signal.Value, inputs []signal.Value) (signal.Value, error) {
	return c.Snapshot().Accumulate(prev, inputs)
}

// Snapshot pins the current configuration so a whole slot sees one reducer.
func (c *Combinator) Snapshot() Snapshot {
	return Snapshot{cfg: c.cfg.Load()}
}

// Snapshot is an immutable view of a Combinator's configuration.
type Snapshot struct {
	cfg *Config
}

func (s Snapshot) Combine(inputs []signal.Value) (signal.Value, error) {
	cfg := s.cfg
	if len(inputs) != cfg.Arity {
		return 0, &signal.ArityMismatchError{Want: cfg.Arity, Got: len(inputs)}
	}
	for _, v := range inputs {
		if err := cfg.Width.Check(v); err != nil {
			return 0, err
		}
	}
	raw, carried, err := reduce(cfg, inputs)
	if err != nil {
		return 0, err
	}
	return fit(cfg, cfg.Operator.String(), raw, carried, inputs)
}

func (s Snapshot) Accumulate(prev signal.Value, inputs []signal.Value) (signal.Value, error) {
	v, err := s.Combine(inputs)
	if err != nil {
		return 0, err
	}
	sum, carry := bits.Add64(uint64(prev), uint64(v), 0)
	return fit(s.cfg, "accumulate", signal.Value(sum), carry != 0, []signal.Value{prev, v})
}

// fit applies the overflow policy. carried marks a raw value that already
// lost bits beyond 64.
func fit(cfg *Config, op string, raw signal.Value, carried bool, inputs []signal.Value) (signal.Value, error) {
	if !carried && cfg.OutputWidth.Contains(raw) {
		return raw, nil
	}
	switch cfg.Overflow {
	case OverflowSaturate:
		return cfg.OutputWidth.Max(), nil
	case OverflowFail:
		return 0, &signal.OverflowError{
			Operator: op,
			Inputs:   append([]signal.Value(nil), inputs...),
			Width:    cfg.OutputWidth,
		}
	default:
		return cfg.OutputWidth.Truncate(raw), nil
	}
}

func reduce(cfg *Config, inputs []signal.Value) (signal.Value, bool, error) {
	switch cfg.Operator {
	case OpSum:
		hi, lo := sum(inputs)
		return signal.Value(lo), hi != 0, nil
	case OpProduct:
		acc := uint64(1)
		carried := false
		for _, v := range inputs {
			hi, lo := bits.Mul64(acc, uint64(v))
			if hi != 0 {
				carried = true
			}
			acc = lo
		}
		return signal.Value(acc), carried, nil
	case OpAverage:
		hi, lo := sum(inputs)
		return divide(hi, lo, uint64(len(inputs)), cfg.Rounding), false, nil
	case OpMedian:
		sorted := append([]signal.Value(nil), inputs...)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
		mid := len(sorted) / 2
		if len(sorted)%2 == 1 {
			return sorted[mid], false, nil
		}
		hi, lo := sum(sorted[mid-1 : mid+1])
		return divide(hi, lo, 2, cfg.Rounding), false, nil
	case OpMin:
		acc := inputs[0]
		for _, v := range inputs[1:] {
			if v < acc {
				acc = v
			}
		}
		return acc, false, nil
	case OpMax:
		acc := inputs[0]
		for _, v := range inputs[1:] {
			if v > acc {
				acc = v
			}
		}
		return acc, false, nil
	case OpAnd, OpNand:
		acc := inputs[0]
		for _, v := range inputs[1:] {
			acc &= v
		}
		return complementIf(cfg, cfg.Operator == OpNand, acc), false, nil
	case OpOr, OpNor:
		acc := inputs[0]
		for _, v := range inputs[1:] {
			acc |= v
		}
		return complementIf(cfg, cfg.Operator == OpNor, acc), false, nil
	case OpXor, OpXnor:
		acc := inputs[0]
		for _, v := range inputs[1:] {
			acc ^= v
		}
		return complementIf(cfg, cfg.Operator == OpXnor, acc), false, nil
	case OpCustom:
		v, err := cfg.Custom(append([]signal.Value(nil), inputs...), cfg.Width)
		if err != nil {
			return 0, false, err
		}
		return v, false, nil
	default:
		return 0, false, fmt.Errorf("unknown combinator operator: %d", cfg.Operator)
	}
}

func complementIf(cfg *Config, ok bool, v signal.Value) signal.Value {
	if !ok {
		return v
	}
	return cfg.OutputWidth.Truncate(^v)
}

// sum adds inputs into a 128-bit accumulator.
func sum(inputs []signal.Value) (hi, lo uint64) {
	for _, v := range inputs {
		var carry uint64
		lo, carry = bits.Add64(lo, uint64(v), 0)
		hi += carry
	}
	return hi, lo
}

// divide requires hi < n, which holds for the sum of n 64-bit values.
func divide(hi, lo, n uint64, mode Rounding) signal.Value {
	q, r := bits.Div64(hi, lo, n)
	switch mode {
	case RoundCeiling:
		if r > 0 {
			q++
		}
	case RoundNearest:
		if r >= n-r {
			q++
		}
	}
	return signal.Value(q)
}
