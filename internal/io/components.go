package io

import (
	"bufio"
	"context"
	"fmt"
	stdio "io"
	"sort"
	"strings"
	"sync"

	"signalnet/internal/signal"
)

const (
	SliceSourceName   = "values"
	TextSourceName    = "text"
	RecordingSinkName = "record"
	WriterSinkName    = "lines"
	TextSinkName      = "text"
)

// SliceSource replays fixed per-port sequences starting at slot 0. A port
// whose sequence is shorter than the others is simply absent from later
// slots.
type SliceSource struct {
	values map[string][]signal.Value
	length int
}

func NewSliceSource(values map[string][]signal.Value) *SliceSource {
	s := &SliceSource{values: make(map[string][]signal.Value, len(values))}
	for port, seq := range values {
		s.values[port] = append([]signal.Value(nil), seq...)
		if len(seq) > s.length {
			s.length = len(seq)
		}
	}
	return s
}

func (s *SliceSource) Name() string { return SliceSourceName }

func (s *SliceSource) Next(_ context.Context, slot signal.Slot) (map[string]signal.Value, error) {
	if slot >= signal.Slot(s.length) {
		return nil, stdio.EOF
	}
	out := make(map[string]signal.Value, len(s.values))
	for port, seq := range s.values {
		if slot < signal.Slot(len(seq)) {
			out[port] = seq[slot]
		}
	}
	return out, nil
}

// TextSource feeds one byte of text per slot into an 8-bit port.
type TextSource struct {
	port string
	text []byte
}

func NewTextSource(port, text string) *TextSource {
	return &TextSource{port: port, text: []byte(text)}
}

func (s *TextSource) Name() string { return TextSourceName }

func (s *TextSource) Next(_ context.Context, slot signal.Slot) (map[string]signal.Value, error) {
	if slot >= signal.Slot(len(s.text)) {
		return nil, stdio.EOF
	}
	return map[string]signal.Value{s.port: signal.Value(s.text[slot])}, nil
}

// MergeSources combines sources port by port. It is exhausted when every
// source is; a port offered by two sources for the same slot is an error.
func MergeSources(sources ...Source) Source {
	return &mergedSource{sources: sources, done: make([]bool, len(sources))}
}

type mergedSource struct {
	sources []Source
	done    []bool
}

func (m *mergedSource) Name() string {
	names := make([]string, len(m.sources))
	for i, s := range m.sources {
		names[i] = s.Name()
	}
	return strings.Join(names, "+")
}

func (m *mergedSource) Next(ctx context.Context, slot signal.Slot) (map[string]signal.Value, error) {
	out := make(map[string]signal.Value)
	live := false
	for i, s := range m.sources {
		if m.done[i] {
			continue
		}
		values, err := s.Next(ctx, slot)
		if err == stdio.EOF {
			m.done[i] = true
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("source %s: %w", s.Name(), err)
		}
		live = true
		for port, v := range values {
			if _, dup := out[port]; dup {
				return nil, fmt.Errorf("port %s fed by more than one source at slot %d", port, slot)
			}
			out[port] = v
		}
	}
	if !live {
		return nil, stdio.EOF
	}
	return out, nil
}

// RecordingSink keeps every slot it receives in memory.
type RecordingSink struct {
	mu    sync.RWMutex
	slots []signal.Slot
	rows  []map[string]signal.Value
}

func NewRecordingSink() *RecordingSink {
	return &RecordingSink{}
}

func (s *RecordingSink) Name() string { return RecordingSinkName }

func (s *RecordingSink) Write(_ context.Context, slot signal.Slot, outputs map[string]signal.Value) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slots = append(s.slots, slot)
	s.rows = append(s.rows, copyValues(outputs))
	return nil
}

func (s *RecordingSink) Last() map[string]signal.Value {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.rows) == 0 {
		return nil
	}
	return copyValues(s.rows[len(s.rows)-1])
}

// Series returns what port carried in every recorded slot, in arrival
// order.
func (s *RecordingSink) Series(port string) []signal.Value {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]signal.Value, 0, len(s.rows))
	for _, row := range s.rows {
		out = append(out, row[port])
	}
	return out
}

// Slots returns the recorded slot numbers, in arrival order.
func (s *RecordingSink) Slots() []signal.Slot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]signal.Slot(nil), s.slots...)
}

// WriterSink prints one line per slot: the slot number followed by
// port=value pairs sorted by port.
type WriterSink struct {
	mu sync.Mutex
	w  *bufio.Writer
}

func NewWriterSink(w stdio.Writer) *WriterSink {
	return &WriterSink{w: bufio.NewWriter(w)}
}

func (s *WriterSink) Name() string { return WriterSinkName }

func (s *WriterSink) Write(_ context.Context, slot signal.Slot, outputs map[string]signal.Value) error {
	ports := make([]string, 0, len(outputs))
	for port := range outputs {
		ports = append(ports, port)
	}
	sort.Strings(ports)

	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.w, "%d", slot)
	for _, port := range ports {
		fmt.Fprintf(s.w, " %s=%d", port, outputs[port])
	}
	if err := s.w.WriteByte('\n'); err != nil {
		return err
	}
	return s.w.Flush()
}

// TextSink writes the low byte of one port per slot, turning a character
// pipeline back into text.
type TextSink struct {
	mu   sync.Mutex
	port string
	w    stdio.Writer
}

func NewTextSink(port string, w stdio.Writer) *TextSink {
	return &TextSink{port: port, w: w}
}

func (s *TextSink) Name() string { return TextSinkName }

func (s *TextSink) Write(_ context.Context, _ signal.Slot, outputs map[string]signal.Value) error {
	v, ok := outputs[s.port]
	if !ok {
		return fmt.Errorf("text sink: no output port %s", s.port)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.w.Write([]byte{byte(v)})
	return err
}

func copyValues(m map[string]signal.Value) map[string]signal.Value {
	out := make(map[string]signal.Value, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
