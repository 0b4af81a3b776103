// Package network owns the topology of a signal network: which nodes exist,
// how their ports are wired, and in which order they may fire within a slot.
//
// A Network is validated once by Build and is immutable afterwards. Tables
// inside transformer nodes and reducers inside custom combinators may still be
// swapped; the topology, including every width, may not.
//
// Edges into a delay node do not count as same-slot dependencies. Removing
// them must leave a DAG; Build partitions that DAG into levels so that every
// node's producers sit in strictly lower levels.
package network

import (
	"fmt"
	"sort"
)

type buildOptions struct {
	strictInputs bool
}

type Option func(*buildOptions)

// WithStrictInputs makes an input port without consumers a build error
// instead of a warning.
func WithStrictInputs() Option {
	return func(o *buildOptions) { o.strictInputs = true }
}

type Network struct {
	nodes     []Node
	index     map[string]int
	producers [][]int
	consumers [][]int
	levels    [][]int
	inputs    []int
	outputs   []int
	delays    []int
	warnings  []Warning
}

// Build validates nodes and edges and returns the network. Nothing is
// returned on failure; the error is always a *TopologyError.
func Build(nodes []Node, edges []Edge, opts ...Option) (*Network, error) {
	var cfg buildOptions
	for _, opt := range opts {
		opt(&cfg)
	}

	n := &Network{
		nodes: append([]Node(nil), nodes...),
		index: make(map[string]int, len(nodes)),
	}
	for i, node := range n.nodes {
		if err := node.validate(); err != nil {
			return nil, &TopologyError{Node: node.id, Err: err}
		}
		if _, exists := n.index[node.id]; exists {
			return nil, &TopologyError{Node: node.id, Err: ErrDuplicateNode}
		}
		n.index[node.id] = i
		switch node.kind {
		case KindInput:
			n.inputs = append(n.inputs, i)
		case KindOutput:
			n.outputs = append(n.outputs, i)
		case KindDelay:
			n.delays = append(n.delays, i)
		}
	}

	if err := n.wire(edges); err != nil {
		return nil, err
	}
	if err := n.checkPorts(cfg); err != nil {
		return nil, err
	}
	if err := n.partition(); err != nil {
		return nil, err
	}
	n.checkReachability()
	return n, nil
}

func (n *Network) wire(edges []Edge) error {
	n.producers = make([][]int, len(n.nodes))
	n.consumers = make([][]int, len(n.nodes))
	for i, node := range n.nodes {
		ports := make([]int, node.Arity())
		for p := range ports {
			ports[p] = -1
		}
		n.producers[i] = ports
	}
	incoming := make(map[string]int)
	for _, e := range edges {
		incoming[e.To]++
	}

	for _, e := range edges {
		from, ok := n.index[e.From]
		if !ok {
			return &TopologyError{Node: e.From, Err: fmt.Errorf("%w: edge %s", ErrUnknownNode, e)}
		}
		to, ok := n.index[e.To]
		if !ok {
			return &TopologyError{Node: e.To, Err: fmt.Errorf("%w: edge %s", ErrUnknownNode, e)}
		}
		src, dst := n.nodes[from], n.nodes[to]
		if !src.HasOutput() || e.FromPort != 0 {
			return &TopologyError{Node: e.From, Err: fmt.Errorf("%w: output %d of %s node", ErrUnknownPort, e.FromPort, src.kind)}
		}
		// A combinator fed by more edges than it declares is an arity
		// error whichever port the surplus edge names.
		overfed := dst.kind == KindCombinator && incoming[e.To] > dst.Arity()
		if overfed && e.ToPort >= 0 && (e.ToPort >= dst.Arity() || n.producers[to][e.ToPort] >= 0) {
			return &TopologyError{Node: e.To, Err: &ArityMismatchError{Node: e.To, Want: dst.Arity(), Got: incoming[e.To]}}
		}
		if e.ToPort < 0 || e.ToPort >= dst.Arity() {
			return &TopologyError{Node: e.To, Err: fmt.Errorf("%w: input %d of %s node with %d inputs", ErrUnknownPort, e.ToPort, dst.kind, dst.Arity())}
		}
		if from == to && dst.kind != KindDelay {
			return &TopologyError{Node: e.To, Err: &CyclicDependencyError{Cycle: []string{e.From, e.To}}}
		}
		if n.producers[to][e.ToPort] >= 0 {
			return &TopologyError{Node: e.To, Err: fmt.Errorf("%w: input %d", ErrPortConflict, e.ToPort)}
		}
		if src.OutputWidth() != dst.InputWidth() {
			return &TopologyError{Node: e.To, Err: fmt.Errorf("%w: %s carries %d bits, %s expects %d",
				ErrWidthMismatch, e.From, src.OutputWidth(), e.To, dst.InputWidth())}
		}
		n.producers[to][e.ToPort] = from
		n.consumers[from] = append(n.consumers[from], to)
	}
	return nil
}

func (n *Network) checkPorts(cfg buildOptions) error {
	for _, i := range n.outputs {
		if n.producers[i][0] < 0 {
			return &TopologyError{Node: n.nodes[i].id, Err: &UnconnectedPortError{Port: n.nodes[i].id, Kind: KindOutput}}
		}
	}
	for i, node := range n.nodes {
		connected := 0
		for _, p := range n.producers[i] {
			if p >= 0 {
				connected++
			}
		}
		if connected != node.Arity() {
			return &TopologyError{Node: node.id, Err: &ArityMismatchError{Node: node.id, Want: node.Arity(), Got: connected}}
		}
	}
	for _, i := range n.inputs {
		if len(n.consumers[i]) > 0 {
			continue
		}
		err := &UnconnectedPortError{Port: n.nodes[i].id, Kind: KindInput}
		if cfg.strictInputs {
			return &TopologyError{Node: n.nodes[i].id, Err: err}
		}
		n.warnings = append(n.warnings, Warning{Node: n.nodes[i].id, Err: err})
	}
	return nil
}

// partition assigns levels over the delay-free dependency graph and rejects
// any cycle left in it. A node's level is the length of the longest
// delay-free path reaching it.
func (n *Network) partition() error {
	indegree := make([]int, len(n.nodes))
	for i, node := range n.nodes {
		if node.kind == KindDelay {
			continue
		}
		indegree[i] = len(n.producers[i])
	}

	placed := make([]bool, len(n.nodes))
	var frontier []int
	for i := range n.nodes {
		if indegree[i] == 0 {
			frontier = append(frontier, i)
		}
	}
	count := 0
	for len(frontier) > 0 {
		n.levels = append(n.levels, frontier)
		var next []int
		for _, i := range frontier {
			placed[i] = true
			count++
			for _, c := range n.consumers[i] {
				if n.nodes[c].kind == KindDelay {
					continue
				}
				indegree[c]--
				if indegree[c] == 0 {
					next = append(next, c)
				}
			}
		}
		sort.Ints(next)
		frontier = next
	}
	if count == len(n.nodes) {
		return nil
	}

	cycle := n.findCycle(placed)
	return &TopologyError{Node: cycle[0], Err: &CyclicDependencyError{Cycle: cycle}}
}

// findCycle walks producers among the nodes partition could not place. Each
// of them has an unplaced producer, so the walk must come back on itself.
func (n *Network) findCycle(placed []bool) []string {
	start := -1
	for i := range n.nodes {
		if !placed[i] {
			start = i
			break
		}
	}
	seen := make(map[int]int)
	var path []int
	for cur := start; ; {
		if at, ok := seen[cur]; ok {
			path = path[at:]
			break
		}
		seen[cur] = len(path)
		path = append(path, cur)
		next := -1
		for _, p := range n.producers[cur] {
			if p >= 0 && !placed[p] {
				next = p
				break
			}
		}
		cur = next
	}

	// path follows producers; report it in signal direction.
	names := make([]string, 0, len(path)+1)
	for i := len(path) - 1; i >= 0; i-- {
		names = append(names, n.nodes[path[i]].id)
	}
	return append(names, names[0])
}

// checkReachability warns about nodes that no input reaches and that feed no
// output.
func (n *Network) checkReachability() {
	fromInputs := n.walk(n.inputs, func(i int) []int { return n.consumers[i] })
	toOutputs := n.walk(n.outputs, func(i int) []int {
		var ps []int
		for _, p := range n.producers[i] {
			if p >= 0 {
				ps = append(ps, p)
			}
		}
		return ps
	})
	for i, node := range n.nodes {
		if node.kind == KindInput || fromInputs[i] || toOutputs[i] {
			continue
		}
		n.warnings = append(n.warnings, Warning{Node: node.id, Err: ErrUnreachable})
	}
}

func (n *Network) walk(roots []int, next func(int) []int) []bool {
	seen := make([]bool, len(n.nodes))
	stack := append([]int(nil), roots...)
	for len(stack) > 0 {
		i := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[i] {
			continue
		}
		seen[i] = true
		stack = append(stack, next(i)...)
	}
	return seen
}

func (n *Network) Len() int { return len(n.nodes) }

// Nodes returns the nodes in declaration order.
func (n *Network) Nodes() []Node {
	return append([]Node(nil), n.nodes...)
}

// NodeAt returns the node with declaration index i.
func (n *Network) NodeAt(i int) Node {
	return n.nodes[i]
}

func (n *Network) Node(id string) (Node, bool) {
	i, ok := n.index[id]
	if !ok {
		return Node{}, false
	}
	return n.nodes[i], true
}

// Index returns the declaration index of id, or -1.
func (n *Network) Index(id string) int {
	i, ok := n.index[id]
	if !ok {
		return -1
	}
	return i
}

// Producers returns, per input port of node i, the index of the driving node.
func (n *Network) Producers(i int) []int {
	return append([]int(nil), n.producers[i]...)
}

// Levels returns node indices grouped by firing level, each group sorted.
func (n *Network) Levels() [][]int {
	out := make([][]int, len(n.levels))
	for i, level := range n.levels {
		out[i] = append([]int(nil), level...)
	}
	return out
}

func (n *Network) Inputs() []string  { return n.ids(n.inputs) }
func (n *Network) Outputs() []string { return n.ids(n.outputs) }
func (n *Network) Delays() []string  { return n.ids(n.delays) }

func (n *Network) Warnings() []Warning {
	return append([]Warning(nil), n.warnings...)
}

func (n *Network) ids(indices []int) []string {
	out := make([]string, len(indices))
	for i, idx := range indices {
		out[i] = n.nodes[idx].id
	}
	return out
}
