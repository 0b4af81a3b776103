package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func networkPath(t *testing.T, name string) string {
	t.Helper()
	path, err := filepath.Abs(filepath.Join("..", "..", "testdata", "networks", name))
	if err != nil {
		t.Fatalf("abs: %v", err)
	}
	return path
}

func TestCommandsShareBoltStore(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "signalnet.db")
	store := []string{"-store", "bolt", "-db-path", dbPath}

	out, err := captureStdout(func() error {
		return run(ctx, append([]string{"init"}, store...))
	})
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if !strings.HasPrefix(out, "initialized store=bolt path="+dbPath) {
		t.Fatalf("unexpected init output: %q", out)
	}

	out, err = captureStdout(func() error {
		return run(ctx, append(append([]string{"import"}, store...), networkPath(t, "gt5-and.yaml"), networkPath(t, "counter.json")))
	})
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if !strings.Contains(out, "imported network=gt5-and nodes=6 edges=5 levels=4") || !strings.Contains(out, "imported network=counter") {
		t.Fatalf("unexpected import output: %q", out)
	}

	out, err = captureStdout(func() error {
		return run(ctx, append([]string{"networks"}, store...))
	})
	if err != nil || out != "counter\ngt5-and\n" {
		t.Fatalf("networks: %q err=%v", out, err)
	}

	out, err = captureStdout(func() error {
		return run(ctx, append(append([]string{"run"}, store...),
			"-network", "gt5-and", "-workers", "2", "-in", "a=3,6,9", "-in", "b=7,7,2"))
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.HasPrefix(out, "0 out=0\n1 out=1\n2 out=0\n") {
		t.Fatalf("unexpected run output: %q", out)
	}
	if !strings.Contains(out, "network=gt5-and status=completed settled=3 skipped=0") {
		t.Fatalf("missing run summary: %q", out)
	}

	out, err = captureStdout(func() error {
		return run(ctx, append([]string{"runs"}, store...))
	})
	if err != nil || !strings.Contains(out, "network=gt5-and status=completed settled=3") {
		t.Fatalf("runs: %q err=%v", out, err)
	}

	out, err = captureStdout(func() error {
		return run(ctx, append(append([]string{"trace"}, store...), "-latest", "-limit", "2"))
	})
	if err != nil {
		t.Fatalf("trace: %v", err)
	}
	want := "slot=0 inputs=a:3,b:7 outputs=out:0\nslot=1 inputs=a:6,b:7 outputs=out:1\n"
	if out != want {
		t.Fatalf("unexpected trace:\n%s\nwant:\n%s", out, want)
	}
}

func TestRunSkipsFailedSlots(t *testing.T) {
	out, err := captureStdout(func() error {
		return run(context.Background(), []string{
			"run", "-store", "memory",
			"-file", networkPath(t, "counter.json"),
			"-in", "in=9,20,1",
			"-on-error", "skip",
		})
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.HasPrefix(out, "0 out=9\n2 out=10\n") || !strings.Contains(out, "settled=2 skipped=1") {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestRunWithConfigAndOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "run.yaml")
	cfg := "network_path: " + networkPath(t, "counter.json") + `
max_slots: 3
missing_policy: substitute
missing_value: 1
sinks:
  - kind: lines
`
	if err := os.WriteFile(path, []byte(cfg), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	out, err := captureStdout(func() error {
		return run(context.Background(), []string{"run", "-store", "memory", "-config", path})
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.HasPrefix(out, "0 out=1\n1 out=2\n2 out=3\nrun_id=") || !strings.Contains(out, "substituted=3") {
		t.Fatalf("unexpected output: %q", out)
	}

	out, err = captureStdout(func() error {
		return run(context.Background(), []string{"run", "-store", "memory", "-config", path, "-max-slots", "1", "-missing-value", "4"})
	})
	if err != nil {
		t.Fatalf("run with overrides: %v", err)
	}
	if !strings.HasPrefix(out, "0 out=4\nrun_id=") {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestValidateCommand(t *testing.T) {
	out, err := captureStdout(func() error {
		return run(context.Background(), []string{"validate", networkPath(t, "counter.json")})
	})
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if out != "network=counter nodes=4 edges=4 levels=3 inputs=in outputs=out delays=prev\n" {
		t.Fatalf("unexpected output: %q", out)
	}

	if _, err := captureStdout(func() error {
		return run(context.Background(), []string{"validate", networkPath(t, "loop.yaml")})
	}); err == nil {
		t.Fatal("expected cycle error")
	}
}

func TestTablesAndReducers(t *testing.T) {
	out, err := captureStdout(func() error {
		return run(context.Background(), []string{"tables"})
	})
	if err != nil || !strings.Contains(out, "greater-than-5 in=8 out=1 strategy=dense cells=256\n") {
		t.Fatalf("tables: %q err=%v", out, err)
	}
	out, err = captureStdout(func() error {
		return run(context.Background(), []string{"reducers"})
	})
	if err != nil || !strings.Contains(out, "difference commutative=false\n") {
		t.Fatalf("reducers: %q err=%v", out, err)
	}
}

func TestCommandErrors(t *testing.T) {
	ctx := context.Background()
	cases := map[string][]string{
		"no command":      nil,
		"unknown command": {"launch"},
		"bad input flag":  {"run", "-store", "memory", "-file", networkPath(t, "counter.json"), "-in", "9,9"},
		"bad sink flag":   {"run", "-store", "memory", "-file", networkPath(t, "counter.json"), "-sink", ",port=out"},
		"bad log level":   {"runs", "-store", "memory", "-log-level", "loud"},
		"bad limit":       {"runs", "-store", "memory", "-limit", "0"},
		"trace without":   {"trace", "-store", "memory"},
		"import nothing":  {"import", "-store", "memory"},
	}
	for name, args := range cases {
		if _, err := captureStdout(func() error { return run(ctx, args) }); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestParseComponent(t *testing.T) {
	spec, err := parseComponent("text,port=out")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if spec.Kind != "text" || spec.Params["port"] != "out" {
		t.Fatalf("unexpected spec: %+v", spec)
	}
	if spec, err := parseComponent("lines"); err != nil || spec.Params != nil {
		t.Fatalf("bare kind: %+v err=%v", spec, err)
	}
}

func TestNewLoggerFiltersByLevel(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "log")
	if err != nil {
		t.Fatalf("create temp: %v", err)
	}
	defer f.Close()

	logger, err := newLogger("warn", f)
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	logger.Info("hidden message")
	logger.Warn("shown message", "slot", 3)

	data, err := os.ReadFile(f.Name())
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	text := string(data)
	if strings.Contains(text, "hidden message") || !strings.Contains(text, "lvl=warn") || !strings.Contains(text, "slot=3") {
		t.Fatalf("unexpected log output: %q", text)
	}
}

func captureStdout(fn func() error) (string, error) {
	origStdout := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		return "", err
	}

	os.Stdout = w
	runErr := fn()
	_ = w.Close()
	os.Stdout = origStdout

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		_ = r.Close()
		return "", err
	}
	_ = r.Close()
	return buf.String(), runErr
}
