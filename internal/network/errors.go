package network

import (
	"errors"
	"fmt"
	"strings"

	"signalnet/internal/signal"
)

var (
	ErrTopology         = errors.New("invalid topology")
	ErrInvalidNode      = errors.New("invalid node")
	ErrDuplicateNode    = errors.New("duplicate node id")
	ErrUnknownNode      = errors.New("unknown node")
	ErrUnknownPort      = errors.New("unknown port")
	ErrPortConflict     = errors.New("input port driven twice")
	ErrWidthMismatch    = errors.New("edge width mismatch")
	ErrCyclicDependency = errors.New("cycle without delay")
	ErrUnconnectedPort  = errors.New("unconnected port")
	ErrUnreachable      = errors.New("node neither reachable from an input nor feeding an output")
)

// TopologyError is returned by Build for every structural problem.
type TopologyError struct {
	Node string
	Err  error
}

func (e *TopologyError) Error() string {
	if e.Node == "" {
		return fmt.Sprintf("%v: %v", ErrTopology, e.Err)
	}
	return fmt.Sprintf("%v: node %s: %v", ErrTopology, e.Node, e.Err)
}

func (e *TopologyError) Unwrap() error { return e.Err }

func (e *TopologyError) Is(target error) bool { return target == ErrTopology }

// ArityMismatchError reports a node whose connected input ports disagree
// with its declared arity.
type ArityMismatchError struct {
	Node string
	Want int
	Got  int
}

func (e *ArityMismatchError) Error() string {
	return fmt.Sprintf("%v: node %s declares %d inputs, %d connected", signal.ErrArityMismatch, e.Node, e.Want, e.Got)
}

func (e *ArityMismatchError) Is(target error) bool { return target == signal.ErrArityMismatch }

// CyclicDependencyError lists one zero-delay cycle, first node repeated last.
type CyclicDependencyError struct {
	Cycle []string
}

func (e *CyclicDependencyError) Error() string {
	return fmt.Sprintf("%v: %s", ErrCyclicDependency, strings.Join(e.Cycle, " -> "))
}

func (e *CyclicDependencyError) Is(target error) bool { return target == ErrCyclicDependency }

// UnconnectedPortError reports a port with no edge.
type UnconnectedPortError struct {
	Port string
	Kind Kind
}

func (e *UnconnectedPortError) Error() string {
	return fmt.Sprintf("%v: %s port %s", ErrUnconnectedPort, e.Kind, e.Port)
}

func (e *UnconnectedPortError) Is(target error) bool { return target == ErrUnconnectedPort }

// Warning is a non-fatal finding of Build.
type Warning struct {
	Node string
	Err  error
}

func (w Warning) String() string {
	return fmt.Sprintf("node %s: %v", w.Node, w.Err)
}
