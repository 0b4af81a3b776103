package signal

import (
	"errors"
	"fmt"
)

var (
	ErrWidth         = errors.New("invalid width")
	ErrDomain        = errors.New("value outside domain")
	ErrOverflow      = errors.New("value overflow")
	ErrArityMismatch = errors.New("arity mismatch")
)

// DomainError reports an input outside [0, 2^Width-1].
type DomainError struct {
	Value Value
	Width Width
}

func (e *DomainError) Error() string {
	return fmt.Sprintf("%v: %d does not fit in %d bits", ErrDomain, e.Value, e.Width)
}

func (e *DomainError) Is(target error) bool { return target == ErrDomain }

// OverflowError reports a reduction whose result does not fit the output
// width while the overflow policy is fail.
type OverflowError struct {
	Operator string
	Inputs   []Value
	Width    Width
}

func (e *OverflowError) Error() string {
	return fmt.Sprintf("%v: %s over %v exceeds %d bits", ErrOverflow, e.Operator, e.Inputs, e.Width)
}

func (e *OverflowError) Is(target error) bool { return target == ErrOverflow }

// ArityMismatchError reports an input count that disagrees with a declared
// arity.
type ArityMismatchError struct {
	Want int
	Got  int
}

func (e *ArityMismatchError) Error() string {
	return fmt.Sprintf("%v: want=%d got=%d", ErrArityMismatch, e.Want, e.Got)
}

func (e *ArityMismatchError) Is(target error) bool { return target == ErrArityMismatch }
