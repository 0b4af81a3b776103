// Package netspec reads network descriptions and compiles them into
// validated networks.
//
// Descriptions are YAML documents; JSON is accepted as well since it is
// valid YAML. Unknown fields are rejected.
package netspec

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v2"

	"signalnet/internal/combinator"
	"signalnet/internal/lookup"
	"signalnet/internal/model"
	"signalnet/internal/network"
	"signalnet/internal/signal"
	"signalnet/internal/transformer"
)

var ErrInvalidDescription = errors.New("invalid network description")

func Load(path string) (model.NetworkDescription, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.NetworkDescription{}, fmt.Errorf("read network description: %w", err)
	}
	desc, err := Parse(data)
	if err != nil {
		return model.NetworkDescription{}, fmt.Errorf("%s: %w", path, err)
	}
	return desc, nil
}

func Parse(data []byte) (model.NetworkDescription, error) {
	var desc model.NetworkDescription
	if err := yaml.UnmarshalStrict(data, &desc); err != nil {
		return model.NetworkDescription{}, fmt.Errorf("%w: %v", ErrInvalidDescription, err)
	}
	if desc.Name == "" {
		return model.NetworkDescription{}, fmt.Errorf("%w: name is required", ErrInvalidDescription)
	}
	if len(desc.Nodes) == 0 {
		return model.NetworkDescription{}, fmt.Errorf("%w: no nodes", ErrInvalidDescription)
	}
	return desc, nil
}

func Encode(desc model.NetworkDescription) ([]byte, error) {
	return yaml.Marshal(desc)
}

// Compile builds every node of desc and validates the resulting topology.
// A combinator without arity takes one input per edge it receives.
func Compile(desc model.NetworkDescription, opts ...network.Option) (*network.Network, error) {
	edges := assignPorts(desc.Edges)
	arities := inferArities(edges)
	nodes := make([]network.Node, 0, len(desc.Nodes))
	for _, spec := range desc.Nodes {
		node, err := compileNode(spec, arities[spec.ID])
		if err != nil {
			return nil, fmt.Errorf("%w: node %q: %v", ErrInvalidDescription, spec.ID, err)
		}
		nodes = append(nodes, node)
	}
	return network.Build(nodes, edges, opts...)
}

// assignPorts gives every edge without a to_port the lowest free port of its
// destination, in edge order. Explicit ports are kept as written.
func assignPorts(specs []model.EdgeSpec) []network.Edge {
	taken := make(map[string]map[int]bool)
	for _, e := range specs {
		if e.ToPort == nil {
			continue
		}
		if taken[e.To] == nil {
			taken[e.To] = make(map[int]bool)
		}
		taken[e.To][*e.ToPort] = true
	}

	next := make(map[string]int)
	edges := make([]network.Edge, len(specs))
	for i, e := range specs {
		edges[i] = network.Edge{From: e.From, FromPort: e.FromPort, To: e.To}
		if e.ToPort != nil {
			edges[i].ToPort = *e.ToPort
			continue
		}
		port := next[e.To]
		for taken[e.To][port] {
			port++
		}
		edges[i].ToPort = port
		next[e.To] = port + 1
	}
	return edges
}

// inferArities returns the ports each destination's edges need: one per
// edge, more when explicit ports leave gaps.
func inferArities(edges []network.Edge) map[string]int {
	arities := make(map[string]int)
	counts := make(map[string]int)
	for _, e := range edges {
		counts[e.To]++
		if e.ToPort+1 > arities[e.To] {
			arities[e.To] = e.ToPort + 1
		}
	}
	for to, n := range counts {
		if n > arities[to] {
			arities[to] = n
		}
	}
	return arities
}

func compileNode(spec model.NodeSpec, inferredArity int) (network.Node, error) {
	kind, err := network.ParseKind(spec.Kind)
	if err != nil {
		return network.Node{}, err
	}
	width := signal.Width(spec.Width)

	switch kind {
	case network.KindInput:
		return network.NewInput(spec.ID, width), nil
	case network.KindOutput:
		return network.NewOutput(spec.ID, width), nil
	case network.KindDelay:
		return network.NewDelay(spec.ID, width, signal.Value(spec.Initial)), nil
	case network.KindTransformer:
		if spec.Table == nil {
			return network.Node{}, errors.New("transformer requires a table")
		}
		table, err := CompileTable(*spec.Table)
		if err != nil {
			return network.Node{}, err
		}
		tr, err := transformer.New(table)
		if err != nil {
			return network.Node{}, err
		}
		return network.NewTransformer(spec.ID, tr), nil
	case network.KindCombinator:
		cfg, err := combinatorConfig(spec, inferredArity)
		if err != nil {
			return network.Node{}, err
		}
		c, err := combinator.New(cfg)
		if err != nil {
			return network.Node{}, err
		}
		return network.NewCombinator(spec.ID, c), nil
	default:
		return network.Node{}, fmt.Errorf("unsupported kind %s", kind)
	}
}

func combinatorConfig(spec model.NodeSpec, inferredArity int) (combinator.Config, error) {
	cfg := combinator.Config{
		Arity:       spec.Arity,
		Width:       signal.Width(spec.Width),
		OutputWidth: signal.Width(spec.OutputWidth),
		Accumulate:  spec.Accumulate,
	}
	if cfg.Arity == 0 {
		cfg.Arity = inferredArity
	}

	var err error
	if spec.Reducer != "" {
		if spec.Operator != "" && spec.Operator != combinator.OpCustom.String() {
			return combinator.Config{}, fmt.Errorf("reducer %q given with operator %q", spec.Reducer, spec.Operator)
		}
		reducer, err := combinator.LookupReducer(spec.Reducer)
		if err != nil {
			return combinator.Config{}, err
		}
		cfg.Operator = combinator.OpCustom
		cfg.Custom = reducer.Func
		cfg.Commutative = reducer.Commutative
	} else if cfg.Operator, err = combinator.ParseOperator(spec.Operator); err != nil {
		return combinator.Config{}, err
	}
	if cfg.Overflow, err = combinator.ParseOverflowPolicy(spec.Overflow); err != nil {
		return combinator.Config{}, err
	}
	if cfg.Rounding, err = combinator.ParseRounding(spec.Rounding); err != nil {
		return combinator.Config{}, err
	}
	return cfg, nil
}

// CompileTable builds the table a TableSpec describes.
func CompileTable(spec model.TableSpec) (lookup.Table, error) {
	in, out := signal.Width(spec.InputWidth), signal.Width(spec.OutputWidth)

	sources := 0
	if spec.Builtin != "" {
		sources++
	}
	if len(spec.Values) > 0 {
		sources++
	}
	if len(spec.Entries) > 0 || spec.Default != nil {
		sources++
	}
	if sources != 1 {
		return nil, errors.New("table needs exactly one of builtin, values, or entries/default")
	}

	switch {
	case spec.Builtin != "":
		table, err := lookup.Get(spec.Builtin)
		if err != nil {
			return nil, err
		}
		if (in != 0 && in != table.InputWidth()) || (out != 0 && out != table.OutputWidth()) {
			return nil, fmt.Errorf("builtin %s maps %d to %d bits, description says %d to %d",
				spec.Builtin, table.InputWidth(), table.OutputWidth(), in, out)
		}
		return table, nil
	case len(spec.Values) > 0:
		values := make([]signal.Value, len(spec.Values))
		for i, v := range spec.Values {
			values[i] = signal.Value(v)
		}
		return lookup.FromValues(in, out, values)
	default:
		strategy, err := lookup.ParseStrategy(spec.Strategy)
		if err != nil {
			return nil, err
		}
		entries := make([]lookup.Entry, len(spec.Entries))
		for i, e := range spec.Entries {
			to := e.From
			if e.To != nil {
				to = *e.To
			}
			entries[i] = lookup.Range(signal.Value(e.From), signal.Value(to), signal.Value(e.Output))
		}
		var def *signal.Value
		if spec.Default != nil {
			def = lookup.Default(signal.Value(*spec.Default))
		}
		return lookup.BuildWithStrategy(strategy, in, out, entries, def)
	}
}
