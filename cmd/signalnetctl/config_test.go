package main

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "run.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadRunRequestFromConfig(t *testing.T) {
	path := writeConfig(t, `
network_path: nets/counter.json
strict_inputs: true
max_slots: 8
workers: 3
retention: 16
missing_policy: hold
error_policy: substitute
error_value: 7
sources:
  - kind: values
    params: {port: in, values: "1,2,3"}
sinks:
  - kind: text
    params: {port: out}
`)
	req, err := loadRunRequestFromConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if want := filepath.Join(filepath.Dir(path), "nets", "counter.json"); req.NetworkPath != want {
		t.Fatalf("network path: got %q want %q", req.NetworkPath, want)
	}
	if !req.StrictInputs || req.MaxSlots != 8 || req.Workers != 3 || req.Retention != 16 {
		t.Fatalf("unexpected limits: %+v", req)
	}
	if req.MissingPolicy != "hold" || req.ErrorPolicy != "substitute" || req.ErrorValue != 7 {
		t.Fatalf("unexpected policies: %+v", req)
	}
	if len(req.Sources) != 1 || req.Sources[0].Params["values"] != "1,2,3" {
		t.Fatalf("unexpected sources: %+v", req.Sources)
	}
	if len(req.Sinks) != 1 || req.Sinks[0].Kind != "text" || req.Sinks[0].Params["port"] != "out" {
		t.Fatalf("unexpected sinks: %+v", req.Sinks)
	}
}

func TestLoadRunRequestFromConfigRejectsBadConfigs(t *testing.T) {
	cases := map[string]string{
		"unknown field":  "network: counter\nseed: 3\n",
		"both networks":  "network: counter\nnetwork_path: counter.json\n",
		"negative slots": "network: counter\nmax_slots: -1\n",
		"kindless sink":  "network: counter\nsinks:\n  - params: {port: out}\n",
	}
	for name, body := range cases {
		if _, err := loadRunRequestFromConfig(writeConfig(t, body)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
	if _, err := loadRunRequestFromConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
