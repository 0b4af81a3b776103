package signalnet

import (
	"context"
	"errors"
	"fmt"
	stdio "io"
	"os"
	"sort"
	"time"

	"github.com/inconshreveable/log15"

	"signalnet/internal/combinator"
	"signalnet/internal/evaluator"
	sigio "signalnet/internal/io"
	"signalnet/internal/lookup"
	"signalnet/internal/model"
	"signalnet/internal/netspec"
	"signalnet/internal/network"
	"signalnet/internal/runner"
	"signalnet/internal/signal"
	"signalnet/internal/storage"
)

const (
	defaultStoreKind = "memory"
	defaultDBPath    = "signalnet.db"
	defaultRunsLimit = 20
)

var ErrNetworkNotFound = errors.New("network not found")

type Options struct {
	StoreKind string
	DBPath    string
	Logger    log15.Logger
}

type Client struct {
	store storage.Store
	log   log15.Logger
}

// ComponentSpec names a registered source or sink and its parameters.
type ComponentSpec struct {
	Kind   string            `yaml:"kind"`
	Params map[string]string `yaml:"params,omitempty"`
}

type RunRequest struct {
	// Network is the name of an imported network; NetworkPath loads a
	// description file instead. Exactly one must be set.
	Network      string
	NetworkPath  string
	StrictInputs bool

	MaxSlots  int
	Workers   int
	Retention int

	MissingPolicy string
	MissingValue  uint64
	ErrorPolicy   string
	ErrorValue    uint64

	Sources []ComponentSpec
	Sinks   []ComponentSpec
	// Output receives printing sinks; defaults to stdout.
	Output stdio.Writer
}

type RunSummary struct {
	RunID       string
	Network     string
	Status      string
	Settled     int
	Skipped     int
	Substituted int
	Duration    time.Duration
	// Last holds the outputs of the final slot.
	Last map[string]uint64
}

type NetworkSummary struct {
	Name     string
	Nodes    int
	Edges    int
	Levels   int
	Inputs   []string
	Outputs  []string
	Delays   []string
	Warnings []string
}

type RunsRequest struct {
	Limit   int
	Network string
}

type TraceRequest struct {
	RunID  string
	Latest bool
	Limit  int
}

type TableItem struct {
	Name        string
	InputWidth  int
	OutputWidth int
	Strategy    string
	Cells       int
}

type ReducerItem struct {
	Name        string
	Commutative bool
}

func New(opts Options) (*Client, error) {
	storeKind := opts.StoreKind
	if storeKind == "" {
		storeKind = defaultStoreKind
	}
	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = defaultDBPath
	}

	store, err := storage.NewStore(storeKind, dbPath)
	if err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = log15.New()
		logger.SetHandler(log15.DiscardHandler())
	}
	return &Client{store: store, log: logger}, nil
}

func (c *Client) Close() error {
	return storage.CloseIfSupported(c.store)
}

func (c *Client) Init(ctx context.Context) error {
	return c.store.Init(ctx)
}

// Validate compiles the description at path without storing it.
func (c *Client) Validate(_ context.Context, path string, strict bool) (NetworkSummary, error) {
	desc, err := netspec.Load(path)
	if err != nil {
		return NetworkSummary{}, err
	}
	net, err := netspec.Compile(desc, buildOptions(strict)...)
	if err != nil {
		return NetworkSummary{}, err
	}
	return summarize(desc.Name, net), nil
}

// ImportNetwork validates the description at path and stores it under its
// name, replacing any network of that name.
func (c *Client) ImportNetwork(ctx context.Context, path string) (NetworkSummary, error) {
	desc, err := netspec.Load(path)
	if err != nil {
		return NetworkSummary{}, err
	}
	net, err := netspec.Compile(desc)
	if err != nil {
		return NetworkSummary{}, err
	}
	desc.VersionedRecord = storage.CurrentVersion()
	if err := c.store.SaveNetwork(ctx, desc); err != nil {
		return NetworkSummary{}, err
	}
	c.log.Info("network imported", "network", desc.Name, "nodes", net.Len())
	return summarize(desc.Name, net), nil
}

func (c *Client) Networks(ctx context.Context) ([]string, error) {
	return c.store.ListNetworks(ctx)
}

func (c *Client) Run(ctx context.Context, req RunRequest) (RunSummary, error) {
	desc, err := c.resolveNetwork(ctx, req)
	if err != nil {
		return RunSummary{}, err
	}
	net, err := netspec.Compile(desc, buildOptions(req.StrictInputs)...)
	if err != nil {
		return RunSummary{}, err
	}
	for _, w := range net.Warnings() {
		c.log.Warn("network warning", "network", desc.Name, "node", w.Node, "err", w.Err)
	}

	missing, err := evaluator.ParseMissingPolicy(req.MissingPolicy)
	if err != nil {
		return RunSummary{}, err
	}
	onError, err := runner.ParseErrorPolicy(req.ErrorPolicy)
	if err != nil {
		return RunSummary{}, err
	}
	evOpts := []evaluator.Option{
		evaluator.WithLogger(c.log.New("network", desc.Name)),
		evaluator.WithMissingPolicy(missing, signal.Value(req.MissingValue)),
		evaluator.WithRetention(req.Retention),
	}
	if req.Workers > 0 {
		evOpts = append(evOpts, evaluator.WithWorkers(req.Workers))
	}

	source, err := resolveSources(req.Sources)
	if err != nil {
		return RunSummary{}, err
	}
	out := req.Output
	if out == nil {
		out = os.Stdout
	}
	sinks := make([]sigio.Sink, 0, len(req.Sinks)+1)
	for _, spec := range req.Sinks {
		sink, err := sigio.ResolveSink(spec.Kind, spec.Params, out)
		if err != nil {
			return RunSummary{}, err
		}
		sinks = append(sinks, sink)
	}
	last := sigio.NewRecordingSink()
	sinks = append(sinks, last)

	r := runner.New(c.store, runner.WithLogger(c.log))
	summary, err := r.Run(ctx, runner.Request{
		Network:    desc.Name,
		Evaluator:  evaluator.New(net, evOpts...),
		Source:     source,
		Sinks:      sinks,
		MaxSlots:   req.MaxSlots,
		OnError:    onError,
		Substitute: signal.Value(req.ErrorValue),
		Workers:    req.Workers,
	})
	result := RunSummary{
		RunID:       summary.Run.ID,
		Network:     desc.Name,
		Status:      summary.Run.Status,
		Settled:     summary.Run.Settled,
		Skipped:     summary.Run.Skipped,
		Substituted: summary.Run.Substituted,
		Duration:    summary.Run.FinishedAt.Sub(summary.Run.StartedAt),
	}
	if values := last.Last(); values != nil {
		result.Last = make(map[string]uint64, len(values))
		for port, v := range values {
			result.Last[port] = uint64(v)
		}
	}
	return result, err
}

// Runs lists recorded runs, newest first.
func (c *Client) Runs(ctx context.Context, req RunsRequest) ([]model.RunRecord, error) {
	if req.Limit <= 0 {
		req.Limit = defaultRunsLimit
	}
	runs, err := c.store.ListRuns(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]model.RunRecord, 0, len(runs))
	for i := len(runs) - 1; i >= 0 && len(out) < req.Limit; i-- {
		if req.Network != "" && runs[i].Network != req.Network {
			continue
		}
		out = append(out, runs[i])
	}
	return out, nil
}

func (c *Client) Trace(ctx context.Context, req TraceRequest) ([]model.SlotRecord, error) {
	if req.RunID != "" && req.Latest {
		return nil, errors.New("use either run id or latest")
	}
	if req.RunID == "" && !req.Latest {
		return nil, errors.New("trace requires run id or latest")
	}
	if req.Limit < 0 {
		return nil, errors.New("limit must be >= 0")
	}

	runID := req.RunID
	if req.Latest {
		runs, err := c.Runs(ctx, RunsRequest{Limit: 1})
		if err != nil {
			return nil, err
		}
		if len(runs) == 0 {
			return nil, errors.New("no runs recorded")
		}
		runID = runs[0].ID
	}

	trace, ok, err := c.store.GetTrace(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("trace not found for run %s", runID)
	}
	if req.Limit > 0 && len(trace) > req.Limit {
		trace = trace[:req.Limit]
	}
	return trace, nil
}

// Tables describes every registered lookup table.
func (c *Client) Tables() ([]TableItem, error) {
	names := lookup.List()
	out := make([]TableItem, 0, len(names))
	for _, name := range names {
		table, err := lookup.Get(name)
		if err != nil {
			return nil, err
		}
		out = append(out, TableItem{
			Name:        name,
			InputWidth:  int(table.InputWidth()),
			OutputWidth: int(table.OutputWidth()),
			Strategy:    table.Strategy().String(),
			Cells:       table.Len(),
		})
	}
	return out, nil
}

func (c *Client) Reducers() ([]ReducerItem, error) {
	names := combinator.ListReducers()
	out := make([]ReducerItem, 0, len(names))
	for _, name := range names {
		spec, err := combinator.LookupReducer(name)
		if err != nil {
			return nil, err
		}
		out = append(out, ReducerItem{Name: name, Commutative: spec.Commutative})
	}
	return out, nil
}

func (c *Client) resolveNetwork(ctx context.Context, req RunRequest) (model.NetworkDescription, error) {
	switch {
	case req.Network != "" && req.NetworkPath != "":
		return model.NetworkDescription{}, errors.New("use either network or network path")
	case req.NetworkPath != "":
		return netspec.Load(req.NetworkPath)
	case req.Network != "":
		desc, ok, err := c.store.GetNetwork(ctx, req.Network)
		if err != nil {
			return model.NetworkDescription{}, err
		}
		if !ok {
			return model.NetworkDescription{}, fmt.Errorf("%w: %s", ErrNetworkNotFound, req.Network)
		}
		return desc, nil
	default:
		return model.NetworkDescription{}, errors.New("run requires a network or network path")
	}
}

func resolveSources(specs []ComponentSpec) (sigio.Source, error) {
	if len(specs) == 0 {
		return nil, nil
	}
	sources := make([]sigio.Source, 0, len(specs))
	for _, spec := range specs {
		source, err := sigio.ResolveSource(spec.Kind, spec.Params)
		if err != nil {
			return nil, err
		}
		sources = append(sources, source)
	}
	if len(sources) == 1 {
		return sources[0], nil
	}
	return sigio.MergeSources(sources...), nil
}

func buildOptions(strict bool) []network.Option {
	if strict {
		return []network.Option{network.WithStrictInputs()}
	}
	return nil
}

func summarize(name string, net *network.Network) NetworkSummary {
	edges := 0
	for i := 0; i < net.Len(); i++ {
		edges += len(net.Producers(i))
	}
	warnings := make([]string, 0, len(net.Warnings()))
	for _, w := range net.Warnings() {
		warnings = append(warnings, w.String())
	}
	sort.Strings(warnings)
	return NetworkSummary{
		Name:     name,
		Nodes:    net.Len(),
		Edges:    edges,
		Levels:   len(net.Levels()),
		Inputs:   net.Inputs(),
		Outputs:  net.Outputs(),
		Delays:   net.Delays(),
		Warnings: warnings,
	}
}
