package network

import (
	"fmt"

	"signalnet/internal/combinator"
	"signalnet/internal/signal"
	"signalnet/internal/transformer"
)

// Kind tags the closed set of node variants.
type Kind int

const (
	KindInput Kind = iota
	KindOutput
	KindTransformer
	KindCombinator
	KindDelay
)

func (k Kind) String() string {
	switch k {
	case KindInput:
		return "input"
	case KindOutput:
		return "output"
	case KindTransformer:
		return "transformer"
	case KindCombinator:
		return "combinator"
	case KindDelay:
		return "delay"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

func ParseKind(name string) (Kind, error) {
	for k := KindInput; k <= KindDelay; k++ {
		if k.String() == name {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown node kind: %q", name)
}

// Node is one vertex of a network. Exactly one of the payload fields is used,
// selected by kind.
type Node struct {
	id      string
	kind    Kind
	width   signal.Width
	initial signal.Value

	transformer *transformer.Transformer
	combinator  *combinator.Combinator
}

func NewInput(id string, width signal.Width) Node {
	return Node{id: id, kind: KindInput, width: width}
}

func NewOutput(id string, width signal.Width) Node {
	return Node{id: id, kind: KindOutput, width: width}
}

func NewTransformer(id string, t *transformer.Transformer) Node {
	return Node{id: id, kind: KindTransformer, transformer: t}
}

func NewCombinator(id string, c *combinator.Combinator) Node {
	return Node{id: id, kind: KindCombinator, combinator: c}
}

// NewDelay builds a node that emits, at slot t, the value it received at
// slot t-1; at slot 0 it emits initial.
func NewDelay(id string, width signal.Width, initial signal.Value) Node {
	return Node{id: id, kind: KindDelay, width: width, initial: initial}
}

func (n Node) ID() string                            { return n.id }
func (n Node) Kind() Kind                            { return n.kind }
func (n Node) Initial() signal.Value                 { return n.initial }
func (n Node) Transformer() *transformer.Transformer { return n.transformer }
func (n Node) Combinator() *combinator.Combinator    { return n.combinator }

// Arity is the number of input ports.
func (n Node) Arity() int {
	switch n.kind {
	case KindInput:
		return 0
	case KindCombinator:
		return n.combinator.Arity()
	default:
		return 1
	}
}

// HasOutput reports whether the node drives an output port.
func (n Node) HasOutput() bool {
	return n.kind != KindOutput
}

func (n Node) InputWidth() signal.Width {
	switch n.kind {
	case KindTransformer:
		return n.transformer.InputWidth()
	case KindCombinator:
		return n.combinator.Width()
	default:
		return n.width
	}
}

func (n Node) OutputWidth() signal.Width {
	switch n.kind {
	case KindTransformer:
		return n.transformer.OutputWidth()
	case KindCombinator:
		return n.combinator.OutputWidth()
	default:
		return n.width
	}
}

func (n Node) validate() error {
	if n.id == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidNode)
	}
	switch n.kind {
	case KindInput, KindOutput:
		if err := n.width.Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidNode, err)
		}
	case KindDelay:
		if err := n.width.Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidNode, err)
		}
		if err := n.width.Check(n.initial); err != nil {
			return fmt.Errorf("%w: initial value: %v", ErrInvalidNode, err)
		}
	case KindTransformer:
		if n.transformer == nil {
			return fmt.Errorf("%w: missing transformer", ErrInvalidNode)
		}
	case KindCombinator:
		if n.combinator == nil {
			return fmt.Errorf("%w: missing combinator", ErrInvalidNode)
		}
	default:
		return fmt.Errorf("%w: unknown kind %d", ErrInvalidNode, n.kind)
	}
	return nil
}

// Edge connects the output port of From to input port ToPort of To. Only
// port 0 exists on the producing side.
type Edge struct {
	From     string
	FromPort int
	To       string
	ToPort   int
}

func (e Edge) String() string {
	return fmt.Sprintf("%s:%d->%s:%d", e.From, e.FromPort, e.To, e.ToPort)
}
