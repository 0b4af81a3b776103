package model

import "time"

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version" yaml:"schema_version,omitempty"`
	CodecVersion  int `json:"codec_version" yaml:"codec_version,omitempty"`
}

// NetworkDescription is the declarative form of a network, as written in
// description files and kept in stores.
type NetworkDescription struct {
	VersionedRecord `yaml:",inline"`
	Name            string     `json:"name" yaml:"name"`
	Description     string     `json:"description,omitempty" yaml:"description,omitempty"`
	Nodes           []NodeSpec `json:"nodes" yaml:"nodes"`
	Edges           []EdgeSpec `json:"edges" yaml:"edges"`
}

// NodeSpec describes one node. Which fields apply depends on Kind.
type NodeSpec struct {
	ID    string `json:"id" yaml:"id"`
	Kind  string `json:"kind" yaml:"kind"`
	Width uint8  `json:"width,omitempty" yaml:"width,omitempty"`

	// delay
	Initial uint64 `json:"initial,omitempty" yaml:"initial,omitempty"`

	// transformer
	Table *TableSpec `json:"table,omitempty" yaml:"table,omitempty"`

	// combinator
	Operator    string `json:"operator,omitempty" yaml:"operator,omitempty"`
	Arity       int    `json:"arity,omitempty" yaml:"arity,omitempty"`
	OutputWidth uint8  `json:"output_width,omitempty" yaml:"output_width,omitempty"`
	Overflow    string `json:"overflow,omitempty" yaml:"overflow,omitempty"`
	Rounding    string `json:"rounding,omitempty" yaml:"rounding,omitempty"`
	Reducer     string `json:"reducer,omitempty" yaml:"reducer,omitempty"`
	Accumulate  bool   `json:"accumulate,omitempty" yaml:"accumulate,omitempty"`
}

// TableSpec describes a lookup table either by name, by entries, or by a
// dense list of outputs indexed by input.
type TableSpec struct {
	Builtin     string      `json:"builtin,omitempty" yaml:"builtin,omitempty"`
	InputWidth  uint8       `json:"input_width,omitempty" yaml:"input_width,omitempty"`
	OutputWidth uint8       `json:"output_width,omitempty" yaml:"output_width,omitempty"`
	Strategy    string      `json:"strategy,omitempty" yaml:"strategy,omitempty"`
	Entries     []EntrySpec `json:"entries,omitempty" yaml:"entries,omitempty"`
	Default     *uint64     `json:"default,omitempty" yaml:"default,omitempty"`
	Values      []uint64    `json:"values,omitempty" yaml:"values,omitempty"`
}

// EntrySpec maps From..To (inclusive) to Output. A nil To maps a single
// input.
type EntrySpec struct {
	From   uint64  `json:"from" yaml:"from"`
	To     *uint64 `json:"to,omitempty" yaml:"to,omitempty"`
	Output uint64  `json:"output" yaml:"output"`
}

// EdgeSpec connects two nodes. An edge without ToPort takes the lowest port
// of its destination that no other edge names, in edge order.
type EdgeSpec struct {
	From     string `json:"from" yaml:"from"`
	FromPort int    `json:"from_port,omitempty" yaml:"from_port,omitempty"`
	To       string `json:"to" yaml:"to"`
	ToPort   *int   `json:"to_port,omitempty" yaml:"to_port,omitempty"`
}

const (
	RunRunning   = "running"
	RunCompleted = "completed"
	RunFailed    = "failed"
	RunCancelled = "cancelled"
)

type RunRecord struct {
	VersionedRecord
	ID          string    `json:"id"`
	Network     string    `json:"network"`
	Status      string    `json:"status"`
	Error       string    `json:"error,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at,omitempty"`
	Workers     int       `json:"workers"`
	Settled     int       `json:"settled"`
	Skipped     int       `json:"skipped"`
	Substituted int       `json:"substituted"`
}

// SlotRecord is one line of a run trace.
type SlotRecord struct {
	VersionedRecord
	Slot        uint64            `json:"slot"`
	Inputs      map[string]uint64 `json:"inputs,omitempty"`
	Outputs     map[string]uint64 `json:"outputs,omitempty"`
	Substituted []string          `json:"substituted,omitempty"`
	Skipped     bool              `json:"skipped,omitempty"`
	Error       string            `json:"error,omitempty"`
}
