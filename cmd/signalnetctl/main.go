package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"signalnet/internal/storage"
	"signalnet/pkg/signalnet"
)

func main() {
	if err := run(context.Background(), os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return usageError("missing command")
	}

	switch args[0] {
	case "init":
		return runInit(ctx, args[1:])
	case "import":
		return runImport(ctx, args[1:])
	case "validate":
		return runValidate(ctx, args[1:])
	case "networks":
		return runNetworks(ctx, args[1:])
	case "run":
		return runRun(ctx, args[1:])
	case "runs":
		return runRuns(ctx, args[1:])
	case "trace":
		return runTrace(ctx, args[1:])
	case "tables":
		return runTables(ctx, args[1:])
	case "reducers":
		return runReducers(ctx, args[1:])
	default:
		return usageError(fmt.Sprintf("unknown command: %s", args[0]))
	}
}

type commonFlags struct {
	storeKind *string
	dbPath    *string
	logLevel  *string
}

func addCommonFlags(fs *flag.FlagSet) commonFlags {
	return commonFlags{
		storeKind: fs.String("store", storage.DefaultStoreKind(), "store backend: memory|bolt|sqlite"),
		dbPath:    fs.String("db-path", "signalnet.db", "bolt or sqlite database path"),
		logLevel:  fs.String("log-level", "warn", "log level: debug|info|warn|error|crit"),
	}
}

func (c commonFlags) open(ctx context.Context) (*signalnet.Client, error) {
	logger, err := newLogger(*c.logLevel, os.Stderr)
	if err != nil {
		return nil, err
	}
	client, err := signalnet.New(signalnet.Options{
		StoreKind: *c.storeKind,
		DBPath:    *c.dbPath,
		Logger:    logger,
	})
	if err != nil {
		return nil, err
	}
	if err := client.Init(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

func runInit(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	common := addCommonFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := common.open(ctx)
	if err != nil {
		return err
	}
	if err := client.Close(); err != nil {
		return err
	}

	if *common.storeKind == "memory" {
		fmt.Printf("initialized store=%s\n", *common.storeKind)
		return nil
	}
	size := "n/a"
	if info, err := os.Stat(*common.dbPath); err == nil {
		size = humanize.Bytes(uint64(info.Size()))
	}
	fmt.Printf("initialized store=%s path=%s size=%s\n", *common.storeKind, *common.dbPath, size)
	return nil
}

func runImport(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("import", flag.ContinueOnError)
	common := addCommonFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return errors.New("import requires at least one description file")
	}

	client, err := common.open(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	for _, path := range fs.Args() {
		summary, err := client.ImportNetwork(ctx, path)
		if err != nil {
			return err
		}
		fmt.Printf("imported network=%s nodes=%d edges=%d levels=%d\n", summary.Name, summary.Nodes, summary.Edges, summary.Levels)
	}
	return nil
}

func runValidate(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("validate", flag.ContinueOnError)
	strict := fs.Bool("strict", false, "reject unconnected inputs instead of warning")
	jsonOut := fs.Bool("json", false, "emit summary as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("validate requires exactly one description file")
	}

	client, err := signalnet.New(signalnet.Options{StoreKind: "memory"})
	if err != nil {
		return err
	}
	summary, err := client.Validate(ctx, fs.Arg(0), *strict)
	if err != nil {
		return err
	}
	if *jsonOut {
		return writeJSON(summary)
	}

	fmt.Printf("network=%s nodes=%d edges=%d levels=%d inputs=%s outputs=%s delays=%s\n",
		summary.Name,
		summary.Nodes,
		summary.Edges,
		summary.Levels,
		strings.Join(summary.Inputs, ","),
		strings.Join(summary.Outputs, ","),
		strings.Join(summary.Delays, ","),
	)
	for _, w := range summary.Warnings {
		fmt.Printf("warning: %s\n", w)
	}
	return nil
}

func runNetworks(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("networks", flag.ContinueOnError)
	common := addCommonFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := common.open(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	names, err := client.Networks(ctx)
	if err != nil {
		return err
	}
	if len(names) == 0 {
		fmt.Println("no networks imported")
		return nil
	}
	for _, name := range names {
		fmt.Println(name)
	}
	return nil
}

func runRun(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	common := addCommonFlags(fs)
	configPath := fs.String("config", "", "optional run config YAML path")
	networkName := fs.String("network", "", "imported network name")
	networkPath := fs.String("file", "", "network description path, used instead of -network")
	strict := fs.Bool("strict", false, "reject unconnected inputs instead of warning")
	maxSlots := fs.Int("max-slots", 0, "stop after N slots (0 runs until sources are exhausted)")
	workers := fs.Int("workers", 0, "nodes fired concurrently per level (0 uses GOMAXPROCS)")
	retention := fs.Int("retention", 0, "settled slots kept for reads (0 keeps all)")
	missing := fs.String("missing", "reject", "missing input policy: reject|substitute|hold")
	missingValue := fs.Uint64("missing-value", 0, "value used by -missing=substitute")
	onError := fs.String("on-error", "abort", "slot error policy: abort|skip|substitute")
	errorValue := fs.Uint64("error-value", 0, "value sinks receive under -on-error=substitute")
	jsonOut := fs.Bool("json", false, "emit run summary as JSON")
	var inputs, texts, sinks listFlag
	fs.Var(&inputs, "in", "input values as port=v1,v2,... (repeatable)")
	fs.Var(&texts, "text", "text input as port=characters (repeatable)")
	fs.Var(&sinks, "sink", "sink as kind[,key=value...] (repeatable, default lines)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var req signalnet.RunRequest
	if *configPath != "" {
		loaded, err := loadRunRequestFromConfig(*configPath)
		if err != nil {
			return err
		}
		req = loaded
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "network":
			req.Network, req.NetworkPath = *networkName, ""
		case "file":
			req.NetworkPath, req.Network = *networkPath, ""
		case "strict":
			req.StrictInputs = *strict
		case "max-slots":
			req.MaxSlots = *maxSlots
		case "workers":
			req.Workers = *workers
		case "retention":
			req.Retention = *retention
		case "missing":
			req.MissingPolicy = *missing
		case "missing-value":
			req.MissingValue = *missingValue
		case "on-error":
			req.ErrorPolicy = *onError
		case "error-value":
			req.ErrorValue = *errorValue
		}
	})
	if *maxSlots < 0 || *workers < 0 || *retention < 0 {
		return errors.New("max-slots, workers and retention must be >= 0")
	}

	for _, raw := range inputs {
		port, values, err := splitAssignment(raw)
		if err != nil {
			return fmt.Errorf("-in: %w", err)
		}
		req.Sources = append(req.Sources, signalnet.ComponentSpec{Kind: "values", Params: map[string]string{"port": port, "values": values}})
	}
	for _, raw := range texts {
		port, text, err := splitAssignment(raw)
		if err != nil {
			return fmt.Errorf("-text: %w", err)
		}
		req.Sources = append(req.Sources, signalnet.ComponentSpec{Kind: "text", Params: map[string]string{"port": port, "text": text}})
	}
	for _, raw := range sinks {
		spec, err := parseComponent(raw)
		if err != nil {
			return fmt.Errorf("-sink: %w", err)
		}
		req.Sinks = append(req.Sinks, spec)
	}
	if len(req.Sinks) == 0 {
		req.Sinks = []signalnet.ComponentSpec{{Kind: "lines"}}
	}
	req.Output = os.Stdout

	client, err := common.open(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	summary, err := client.Run(ctx, req)
	if summary.RunID == "" {
		return err
	}
	if *jsonOut {
		if jsonErr := writeJSON(summary); jsonErr != nil {
			return errors.Join(err, jsonErr)
		}
		return err
	}
	fmt.Printf("run_id=%s network=%s status=%s settled=%s skipped=%s substituted=%s duration=%s\n",
		summary.RunID,
		summary.Network,
		summary.Status,
		humanize.Comma(int64(summary.Settled)),
		humanize.Comma(int64(summary.Skipped)),
		humanize.Comma(int64(summary.Substituted)),
		summary.Duration.Round(time.Microsecond),
	)
	return err
}

func runRuns(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("runs", flag.ContinueOnError)
	common := addCommonFlags(fs)
	limit := fs.Int("limit", 20, "max runs to list")
	networkName := fs.String("network", "", "only runs of this network")
	jsonOut := fs.Bool("json", false, "emit runs list as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *limit <= 0 {
		return errors.New("limit must be > 0")
	}

	client, err := common.open(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	runs, err := client.Runs(ctx, signalnet.RunsRequest{Limit: *limit, Network: *networkName})
	if err != nil {
		return err
	}
	if *jsonOut {
		return writeJSON(runs)
	}
	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}
	for _, r := range runs {
		fmt.Printf("run_id=%s network=%s status=%s settled=%s skipped=%s started=%q\n",
			r.ID,
			r.Network,
			r.Status,
			humanize.Comma(int64(r.Settled)),
			humanize.Comma(int64(r.Skipped)),
			humanize.Time(r.StartedAt),
		)
	}
	return nil
}

func runTrace(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("trace", flag.ContinueOnError)
	common := addCommonFlags(fs)
	runID := fs.String("run-id", "", "run id")
	latest := fs.Bool("latest", false, "use the most recent run")
	limit := fs.Int("limit", 0, "max slots to show (0 shows all)")
	jsonOut := fs.Bool("json", false, "emit trace as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := common.open(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	trace, err := client.Trace(ctx, signalnet.TraceRequest{RunID: *runID, Latest: *latest, Limit: *limit})
	if err != nil {
		return err
	}
	if *jsonOut {
		return writeJSON(trace)
	}
	for _, entry := range trace {
		line := fmt.Sprintf("slot=%d inputs=%s outputs=%s", entry.Slot, formatValues(entry.Inputs), formatValues(entry.Outputs))
		if len(entry.Substituted) > 0 {
			line += " substituted=" + strings.Join(entry.Substituted, ",")
		}
		if entry.Skipped {
			line += fmt.Sprintf(" skipped error=%q", entry.Error)
		}
		fmt.Println(line)
	}
	return nil
}

func runTables(_ context.Context, args []string) error {
	fs := flag.NewFlagSet("tables", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	client, err := signalnet.New(signalnet.Options{StoreKind: "memory"})
	if err != nil {
		return err
	}
	tables, err := client.Tables()
	if err != nil {
		return err
	}
	for _, t := range tables {
		fmt.Printf("%s in=%d out=%d strategy=%s cells=%s\n", t.Name, t.InputWidth, t.OutputWidth, t.Strategy, humanize.Comma(int64(t.Cells)))
	}
	return nil
}

func runReducers(_ context.Context, args []string) error {
	fs := flag.NewFlagSet("reducers", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	client, err := signalnet.New(signalnet.Options{StoreKind: "memory"})
	if err != nil {
		return err
	}
	reducers, err := client.Reducers()
	if err != nil {
		return err
	}
	for _, r := range reducers {
		fmt.Printf("%s commutative=%t\n", r.Name, r.Commutative)
	}
	return nil
}

func usageError(msg string) error {
	return fmt.Errorf("%s\nusage: signalnetctl <init|import|validate|networks|run|runs|trace|tables|reducers> [flags]", msg)
}

type listFlag []string

func (l *listFlag) String() string { return strings.Join(*l, " ") }

func (l *listFlag) Set(v string) error {
	*l = append(*l, v)
	return nil
}

func splitAssignment(raw string) (string, string, error) {
	key, value, ok := strings.Cut(raw, "=")
	if !ok || key == "" {
		return "", "", fmt.Errorf("expected port=value, got %q", raw)
	}
	return key, value, nil
}

// parseComponent reads kind[,key=value...].
func parseComponent(raw string) (signalnet.ComponentSpec, error) {
	parts := strings.Split(raw, ",")
	spec := signalnet.ComponentSpec{Kind: strings.TrimSpace(parts[0])}
	if spec.Kind == "" {
		return signalnet.ComponentSpec{}, errors.New("component kind is required")
	}
	for _, part := range parts[1:] {
		key, value, err := splitAssignment(part)
		if err != nil {
			return signalnet.ComponentSpec{}, err
		}
		if spec.Params == nil {
			spec.Params = make(map[string]string)
		}
		spec.Params[key] = value
	}
	return spec, nil
}

func formatValues(values map[string]uint64) string {
	if len(values) == 0 {
		return "-"
	}
	ports := make([]string, 0, len(values))
	for port := range values {
		ports = append(ports, port)
	}
	sort.Strings(ports)
	parts := make([]string, len(ports))
	for i, port := range ports {
		parts[i] = fmt.Sprintf("%s:%d", port, values[port])
	}
	return strings.Join(parts, ",")
}

func writeJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
