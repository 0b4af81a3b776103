package io

import (
	"context"
	"encoding/csv"
	"fmt"
	stdio "io"
	"sort"
	"strconv"
	"strings"
	"sync"

	"signalnet/internal/signal"
)

const (
	CSVSourceName = "csv"
	CSVSinkName   = "csv"
)

// CSVSource replays a table whose header names input ports and whose rows
// are successive slots. An empty cell leaves that port unfed for the slot.
type CSVSource struct {
	ports []string
	rows  [][]*signal.Value
}

// ReadCSVSource loads every row of in. When columns is non-empty only those
// header columns are fed.
func ReadCSVSource(in stdio.Reader, columns []string) (*CSVSource, error) {
	reader := csv.NewReader(in)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == stdio.EOF {
		return nil, fmt.Errorf("%w: csv input has no header", ErrBadParams)
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}

	index := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.TrimSpace(name)
		if _, dup := index[name]; dup {
			return nil, fmt.Errorf("%w: duplicate csv column %q", ErrBadParams, name)
		}
		index[name] = i
	}
	if len(columns) == 0 {
		columns = make([]string, len(header))
		for i, name := range header {
			columns[i] = strings.TrimSpace(name)
		}
	}
	picks := make([]int, len(columns))
	for i, name := range columns {
		col, ok := index[name]
		if !ok {
			return nil, fmt.Errorf("%w: csv column %q not found", ErrBadParams, name)
		}
		picks[i] = col
	}

	s := &CSVSource{ports: columns}
	for row := 2; ; row++ {
		record, err := reader.Read()
		if err == stdio.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv row %d: %w", row, err)
		}
		values := make([]*signal.Value, len(picks))
		for i, col := range picks {
			if col >= len(record) {
				continue
			}
			raw := strings.TrimSpace(record[col])
			if raw == "" {
				continue
			}
			v, err := strconv.ParseUint(raw, 0, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: csv row %d column %s: %v", ErrBadParams, row, columns[i], err)
			}
			value := signal.Value(v)
			values[i] = &value
		}
		s.rows = append(s.rows, values)
	}
	return s, nil
}

func (s *CSVSource) Name() string { return CSVSourceName }

func (s *CSVSource) Next(_ context.Context, slot signal.Slot) (map[string]signal.Value, error) {
	if slot >= signal.Slot(len(s.rows)) {
		return nil, stdio.EOF
	}
	out := make(map[string]signal.Value, len(s.ports))
	for i, v := range s.rows[slot] {
		if v != nil {
			out[s.ports[i]] = *v
		}
	}
	return out, nil
}

// CSVSink writes one row per settled slot. The header is fixed by the ports
// of the first write.
type CSVSink struct {
	mu    sync.Mutex
	w     *csv.Writer
	ports []string
}

func NewCSVSink(w stdio.Writer) *CSVSink {
	return &CSVSink{w: csv.NewWriter(w)}
}

func (s *CSVSink) Name() string { return CSVSinkName }

func (s *CSVSink) Write(_ context.Context, slot signal.Slot, outputs map[string]signal.Value) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ports == nil {
		s.ports = make([]string, 0, len(outputs))
		for port := range outputs {
			s.ports = append(s.ports, port)
		}
		sort.Strings(s.ports)
		if err := s.w.Write(append([]string{"slot"}, s.ports...)); err != nil {
			return err
		}
	}
	record := make([]string, 0, len(s.ports)+1)
	record = append(record, strconv.FormatUint(uint64(slot), 10))
	for _, port := range s.ports {
		v, ok := outputs[port]
		if !ok {
			record = append(record, "")
			continue
		}
		record = append(record, strconv.FormatUint(uint64(v), 10))
	}
	if err := s.w.Write(record); err != nil {
		return err
	}
	s.w.Flush()
	return s.w.Error()
}
