package main

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v2"

	"signalnet/pkg/signalnet"
)

// runConfig is the YAML form of a run. Flags given on the command line
// override it field by field.
type runConfig struct {
	Network      string `yaml:"network"`
	NetworkPath  string `yaml:"network_path"`
	StrictInputs bool   `yaml:"strict_inputs"`

	MaxSlots  int `yaml:"max_slots"`
	Workers   int `yaml:"workers"`
	Retention int `yaml:"retention"`

	MissingPolicy string `yaml:"missing_policy"`
	MissingValue  uint64 `yaml:"missing_value"`
	ErrorPolicy   string `yaml:"error_policy"`
	ErrorValue    uint64 `yaml:"error_value"`

	Sources []signalnet.ComponentSpec `yaml:"sources"`
	Sinks   []signalnet.ComponentSpec `yaml:"sinks"`
}

func loadRunRequestFromConfig(path string) (signalnet.RunRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return signalnet.RunRequest{}, err
	}
	var cfg runConfig
	if err := yaml.UnmarshalStrict(data, &cfg); err != nil {
		return signalnet.RunRequest{}, fmt.Errorf("run config %s: %w", path, err)
	}
	if cfg.Network != "" && cfg.NetworkPath != "" {
		return signalnet.RunRequest{}, fmt.Errorf("run config %s: network and network_path are exclusive", path)
	}
	if cfg.MaxSlots < 0 || cfg.Workers < 0 || cfg.Retention < 0 {
		return signalnet.RunRequest{}, fmt.Errorf("run config %s: max_slots, workers and retention must be >= 0", path)
	}

	// Description paths are relative to the config file.
	networkPath := cfg.NetworkPath
	if networkPath != "" && !filepath.IsAbs(networkPath) {
		networkPath = filepath.Join(filepath.Dir(path), networkPath)
	}
	for _, spec := range append(append([]signalnet.ComponentSpec(nil), cfg.Sources...), cfg.Sinks...) {
		if spec.Kind == "" {
			return signalnet.RunRequest{}, fmt.Errorf("run config %s: component without kind", path)
		}
	}

	return signalnet.RunRequest{
		Network:       cfg.Network,
		NetworkPath:   networkPath,
		StrictInputs:  cfg.StrictInputs,
		MaxSlots:      cfg.MaxSlots,
		Workers:       cfg.Workers,
		Retention:     cfg.Retention,
		MissingPolicy: cfg.MissingPolicy,
		MissingValue:  cfg.MissingValue,
		ErrorPolicy:   cfg.ErrorPolicy,
		ErrorValue:    cfg.ErrorValue,
		Sources:       cfg.Sources,
		Sinks:         cfg.Sinks,
	}, nil
}
