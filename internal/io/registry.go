package io

import (
	"errors"
	"fmt"
	stdio "io"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"

	"signalnet/internal/signal"
)

var (
	ErrSourceExists   = errors.New("source already registered")
	ErrSourceNotFound = errors.New("source not found")
	ErrSinkExists     = errors.New("sink already registered")
	ErrSinkNotFound   = errors.New("sink not found")
	ErrBadParams      = errors.New("invalid component parameters")
)

type SourceFactory func(params Params) (Source, error)

// SinkFactory builds a sink; out is where printing sinks write.
type SinkFactory func(params Params, out stdio.Writer) (Sink, error)

var sourceRegistry = struct {
	mu sync.RWMutex
	m  map[string]SourceFactory
}{
	m: make(map[string]SourceFactory),
}

var sinkRegistry = struct {
	mu sync.RWMutex
	m  map[string]SinkFactory
}{
	m: make(map[string]SinkFactory),
}

var sinkAliases = map[string]string{
	"stdout": WriterSinkName,
	"print":  WriterSinkName,
	"memory": RecordingSinkName,
}

func init() {
	initializeDefaultComponents()
}

func initializeDefaultComponents() {
	mustRegisterSource(SliceSourceName, func(p Params) (Source, error) {
		port, err := p.required("port")
		if err != nil {
			return nil, err
		}
		values, err := parseValues(p["values"])
		if err != nil {
			return nil, err
		}
		return NewSliceSource(map[string][]signal.Value{port: values}), nil
	})
	mustRegisterSource(TextSourceName, func(p Params) (Source, error) {
		port, err := p.required("port")
		if err != nil {
			return nil, err
		}
		text, hasText := p["text"]
		file, hasFile := p["file"]
		switch {
		case hasText == hasFile:
			return nil, fmt.Errorf("%w: text source needs exactly one of text or file", ErrBadParams)
		case hasFile:
			data, err := os.ReadFile(file)
			if err != nil {
				return nil, err
			}
			text = string(data)
		}
		return NewTextSource(port, text), nil
	})

	mustRegisterSource(CSVSourceName, func(p Params) (Source, error) {
		file, err := p.required("file")
		if err != nil {
			return nil, err
		}
		f, err := os.Open(file)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		var columns []string
		if raw := strings.TrimSpace(p["columns"]); raw != "" {
			columns = strings.FieldsFunc(raw, func(r rune) bool { return r == ',' || r == ' ' })
		}
		return ReadCSVSource(f, columns)
	})

	mustRegisterSink(RecordingSinkName, func(Params, stdio.Writer) (Sink, error) {
		return NewRecordingSink(), nil
	})
	mustRegisterSink(WriterSinkName, func(_ Params, out stdio.Writer) (Sink, error) {
		return NewWriterSink(out), nil
	})
	mustRegisterSink(CSVSinkName, func(_ Params, out stdio.Writer) (Sink, error) {
		return NewCSVSink(out), nil
	})
	mustRegisterSink(TextSinkName, func(p Params, out stdio.Writer) (Sink, error) {
		port, err := p.required("port")
		if err != nil {
			return nil, err
		}
		return NewTextSink(port, out), nil
	})
}

func RegisterSource(name string, factory SourceFactory) error {
	if name == "" {
		return errors.New("source name is required")
	}
	if factory == nil {
		return errors.New("source factory is required")
	}

	sourceRegistry.mu.Lock()
	defer sourceRegistry.mu.Unlock()

	if _, exists := sourceRegistry.m[name]; exists {
		return fmt.Errorf("%w: %s", ErrSourceExists, name)
	}
	sourceRegistry.m[name] = factory
	return nil
}

func ResolveSource(name string, params Params) (Source, error) {
	sourceRegistry.mu.RLock()
	factory, ok := sourceRegistry.m[strings.TrimSpace(name)]
	sourceRegistry.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSourceNotFound, name)
	}
	source, err := factory(params)
	if err != nil {
		return nil, fmt.Errorf("source %s: %w", name, err)
	}
	return source, nil
}

func ListSources() []string {
	sourceRegistry.mu.RLock()
	defer sourceRegistry.mu.RUnlock()

	names := make([]string, 0, len(sourceRegistry.m))
	for n := range sourceRegistry.m {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func RegisterSink(name string, factory SinkFactory) error {
	if name == "" {
		return errors.New("sink name is required")
	}
	if factory == nil {
		return errors.New("sink factory is required")
	}

	sinkRegistry.mu.Lock()
	defer sinkRegistry.mu.Unlock()

	if _, exists := sinkRegistry.m[name]; exists {
		return fmt.Errorf("%w: %s", ErrSinkExists, name)
	}
	sinkRegistry.m[name] = factory
	return nil
}

func ResolveSink(name string, params Params, out stdio.Writer) (Sink, error) {
	canonical := CanonicalSinkName(name)

	sinkRegistry.mu.RLock()
	factory, ok := sinkRegistry.m[canonical]
	sinkRegistry.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSinkNotFound, name)
	}
	sink, err := factory(params, out)
	if err != nil {
		return nil, fmt.Errorf("sink %s: %w", name, err)
	}
	return sink, nil
}

func ListSinks() []string {
	sinkRegistry.mu.RLock()
	defer sinkRegistry.mu.RUnlock()

	names := make([]string, 0, len(sinkRegistry.m))
	for n := range sinkRegistry.m {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func CanonicalSinkName(name string) string {
	trimmed := strings.TrimSpace(name)
	if canonical, ok := sinkAliases[strings.ToLower(trimmed)]; ok {
		return canonical
	}
	return trimmed
}

func mustRegisterSource(name string, factory SourceFactory) {
	if err := RegisterSource(name, factory); err != nil {
		panic(err)
	}
}

func mustRegisterSink(name string, factory SinkFactory) {
	if err := RegisterSink(name, factory); err != nil {
		panic(err)
	}
}

func (p Params) required(key string) (string, error) {
	v := strings.TrimSpace(p[key])
	if v == "" {
		return "", fmt.Errorf("%w: %s is required", ErrBadParams, key)
	}
	return v, nil
}

// parseValues reads a comma or space separated list of unsigned integers in
// any base strconv understands.
func parseValues(raw string) ([]signal.Value, error) {
	fields := strings.FieldsFunc(raw, func(r rune) bool { return r == ',' || r == ' ' || r == '\t' || r == '\n' })
	values := make([]signal.Value, 0, len(fields))
	for _, f := range fields {
		v, err := strconv.ParseUint(f, 0, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: value %q: %v", ErrBadParams, f, err)
		}
		values = append(values, signal.Value(v))
	}
	return values, nil
}

func resetRegistriesForTests() {
	sourceRegistry.mu.Lock()
	sourceRegistry.m = make(map[string]SourceFactory)
	sourceRegistry.mu.Unlock()

	sinkRegistry.mu.Lock()
	sinkRegistry.m = make(map[string]SinkFactory)
	sinkRegistry.mu.Unlock()

	initializeDefaultComponents()
}
