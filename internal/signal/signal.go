// Package signal defines the values that flow through a network: bit widths,
// per-slot values and immutable signals spanning a run of slots.
package signal

import (
	"fmt"
	"strings"
)

// MaxWidth is the widest value a single port can carry.
const MaxWidth Width = 64

// Width is the number of bits a port carries per slot.
type Width uint8

// Value is one sample of a port at one slot.
type Value uint64

// Slot is the discrete logical time index.
type Slot uint64

// Validate reports whether w is a usable width.
func (w Width) Validate() error {
	if w == 0 || w > MaxWidth {
		return fmt.Errorf("%w: %d", ErrWidth, w)
	}
	return nil
}

// Max returns the largest value representable in w bits.
func (w Width) Max() Value {
	if w >= MaxWidth {
		return ^Value(0)
	}
	return Value(1)<<w - 1
}

// DomainSize returns 2^w, saturating at the largest uint64.
func (w Width) DomainSize() uint64 {
	if w >= MaxWidth {
		return ^uint64(0)
	}
	return uint64(1) << w
}

// Contains reports whether v fits in w bits.
func (w Width) Contains(v Value) bool {
	return v <= w.Max()
}

// Check returns a DomainError when v does not fit in w bits.
func (w Width) Check(v Value) error {
	if !w.Contains(v) {
		return &DomainError{Value: v, Width: w}
	}
	return nil
}

// Truncate masks v to its low w bits.
func (w Width) Truncate(v Value) Value {
	return v & w.Max()
}

// Saturate clamps v to the largest value of w.
func (w Width) Saturate(v Value) Value {
	if v > w.Max() {
		return w.Max()
	}
	return v
}

// Bits returns the w low bits of v, least significant first.
func Bits(v Value, w Width) []bool {
	out := make([]bool, w)
	for i := range out {
		out[i] = v&(1<<uint(i)) != 0
	}
	return out
}

// Signal is a run of per-slot values of one width. A Signal is never mutated
// after construction; Append returns a new Signal.
type Signal struct {
	width  Width
	start  Slot
	values []Value
}

// New builds a Signal whose first value belongs to slot start.
func New(width Width, start Slot, values ...Value) (Signal, error) {
	if err := width.Validate(); err != nil {
		return Signal{}, err
	}
	for i, v := range values {
		if err := width.Check(v); err != nil {
			return Signal{}, fmt.Errorf("slot %d: %w", start+Slot(i), err)
		}
	}
	return Signal{width: width, start: start, values: append([]Value(nil), values...)}, nil
}

func (s Signal) Width() Width { return s.width }
func (s Signal) Start() Slot  { return s.start }
func (s Signal) Len() int     { return len(s.values) }

// End returns the slot just past the last value.
func (s Signal) End() Slot {
	return s.start + Slot(len(s.values))
}

// At returns the value carried at slot.
func (s Signal) At(slot Slot) (Value, bool) {
	if slot < s.start || slot >= s.End() {
		return 0, false
	}
	return s.values[slot-s.start], true
}

// Bits returns the binary samples at slot, least significant first.
func (s Signal) Bits(slot Slot) ([]bool, bool) {
	v, ok := s.At(slot)
	if !ok {
		return nil, false
	}
	return Bits(v, s.width), true
}

// Values returns a copy of the carried values.
func (s Signal) Values() []Value {
	return append([]Value(nil), s.values...)
}

// Append returns a new Signal extended by v at slot End().
func (s Signal) Append(v Value) (Signal, error) {
	if err := s.width.Check(v); err != nil {
		return Signal{}, err
	}
	values := make([]Value, len(s.values), len(s.values)+1)
	copy(values, s.values)
	return Signal{width: s.width, start: s.start, values: append(values, v)}, nil
}

func (s Signal) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "w%d@%d[", s.width, s.start)
	for i, v := range s.values {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%d", v)
	}
	b.WriteByte(']')
	return b.String()
}
