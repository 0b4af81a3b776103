package signalnet

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"

	"signalnet/internal/model"
	"signalnet/internal/network"
)

func networkPath(name string) string {
	return filepath.Join("..", "..", "testdata", "networks", name)
}

func newClient(t *testing.T, opts Options) *Client {
	t.Helper()
	client, err := New(opts)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if err := client.Init(context.Background()); err != nil {
		t.Fatalf("init: %v", err)
	}
	t.Cleanup(func() {
		_ = client.Close()
	})
	return client
}

func TestClientImportRunAndTrace(t *testing.T) {
	ctx := context.Background()
	client := newClient(t, Options{StoreKind: "memory"})

	imported, err := client.ImportNetwork(ctx, networkPath("gt5-and.yaml"))
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if imported.Name != "gt5-and" || imported.Nodes != 6 || imported.Edges != 5 || imported.Levels != 4 {
		t.Fatalf("unexpected import summary: %+v", imported)
	}
	names, err := client.Networks(ctx)
	if err != nil || len(names) != 1 || names[0] != "gt5-and" {
		t.Fatalf("networks: %v err=%v", names, err)
	}

	var out bytes.Buffer
	summary, err := client.Run(ctx, RunRequest{
		Network: "gt5-and",
		Workers: 4,
		Sources: []ComponentSpec{
			{Kind: "values", Params: map[string]string{"port": "a", "values": "3,6,9"}},
			{Kind: "values", Params: map[string]string{"port": "b", "values": "7,7,2"}},
		},
		Sinks:  []ComponentSpec{{Kind: "stdout"}},
		Output: &out,
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if summary.Status != model.RunCompleted || summary.Settled != 3 || summary.Last["out"] != 0 {
		t.Fatalf("unexpected run summary: %+v", summary)
	}
	if got := out.String(); got != "0 out=0\n1 out=1\n2 out=0\n" {
		t.Fatalf("unexpected output: %q", got)
	}

	runs, err := client.Runs(ctx, RunsRequest{})
	if err != nil || len(runs) != 1 || runs[0].ID != summary.RunID {
		t.Fatalf("runs: %+v err=%v", runs, err)
	}
	trace, err := client.Trace(ctx, TraceRequest{Latest: true, Limit: 2})
	if err != nil {
		t.Fatalf("trace: %v", err)
	}
	if len(trace) != 2 || trace[1].Inputs["a"] != 6 || trace[1].Outputs["out"] != 1 {
		t.Fatalf("unexpected trace: %+v", trace)
	}
	if _, err := client.Trace(ctx, TraceRequest{RunID: "x", Latest: true}); err == nil {
		t.Fatal("expected error for run id with latest")
	}
}

func TestClientRunFromPathWithErrorPolicy(t *testing.T) {
	ctx := context.Background()
	client := newClient(t, Options{})

	summary, err := client.Run(ctx, RunRequest{
		NetworkPath: networkPath("counter.json"),
		Sources:     []ComponentSpec{{Kind: "values", Params: map[string]string{"port": "in", "values": "9 9 20 1"}}},
		ErrorPolicy: "skip",
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	// 20 does not fit the 4-bit input, so slot 2 is skipped; the sum
	// saturates at 15 before that.
	if summary.Settled != 3 || summary.Skipped != 1 || summary.Last["out"] != 15 {
		t.Fatalf("unexpected summary: %+v", summary)
	}

	if _, err := client.Run(ctx, RunRequest{Network: "nope", MaxSlots: 1}); !errors.Is(err, ErrNetworkNotFound) {
		t.Fatalf("expected network not found, got %v", err)
	}
	if _, err := client.Run(ctx, RunRequest{NetworkPath: networkPath("counter.json"), MaxSlots: 1, ErrorPolicy: "retry"}); err == nil {
		t.Fatal("expected error for unknown error policy")
	}
}

func TestClientValidate(t *testing.T) {
	ctx := context.Background()
	client := newClient(t, Options{})

	summary, err := client.Validate(ctx, networkPath("counter.json"), true)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if len(summary.Delays) != 1 || len(summary.Warnings) != 0 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if _, err := client.Validate(ctx, networkPath("missing.yaml"), false); err == nil {
		t.Fatal("expected error for missing file")
	}
	if _, err := client.Validate(ctx, networkPath("loop.yaml"), false); !errors.Is(err, network.ErrCyclicDependency) {
		t.Fatalf("expected cyclic dependency, got %v", err)
	}
}

func TestClientRegistries(t *testing.T) {
	client := newClient(t, Options{})
	tables, err := client.Tables()
	if err != nil {
		t.Fatalf("tables: %v", err)
	}
	found := false
	for _, table := range tables {
		if table.Name == "greater-than-5" {
			found = table.InputWidth == 8 && table.OutputWidth == 1 && table.Strategy == "dense" && table.Cells == 256
		}
	}
	if !found {
		t.Fatalf("greater-than-5 missing or wrong: %+v", tables)
	}
	reducers, err := client.Reducers()
	if err != nil || len(reducers) < 2 {
		t.Fatalf("reducers: %+v err=%v", reducers, err)
	}
}

func TestClientBoltStorePersistsNetworks(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "signalnet.bolt")

	client, err := New(Options{StoreKind: "bolt", DBPath: path})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if err := client.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	if _, err := client.ImportNetwork(ctx, networkPath("counter.json")); err != nil {
		t.Fatalf("import: %v", err)
	}
	if err := client.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened := newClient(t, Options{StoreKind: "bolt", DBPath: path})
	summary, err := reopened.Run(ctx, RunRequest{Network: "counter", MaxSlots: 4, MissingPolicy: "substitute", MissingValue: 2})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if summary.Last["out"] != 8 || summary.Substituted != 4 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
}
