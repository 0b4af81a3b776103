// Package transformer implements the lookup node: one input value in, one
// output value out, through a table that can be replaced atomically.
package transformer

import (
	"errors"
	"fmt"
	"sync/atomic"

	"signalnet/internal/lookup"
	"signalnet/internal/signal"
)

var (
	ErrNilTable  = errors.New("transformer table is required")
	ErrSwapWidth = errors.New("swapped table changes widths")
)

// Transformer is stateless; its only mutable part is the published table.
type Transformer struct {
	table atomic.Pointer[tableRef]
}

type tableRef struct {
	t lookup.Table
}

func New(table lookup.Table) (*Transformer, error) {
	if table == nil {
		return nil, ErrNilTable
	}
	tr := &Transformer{}
	tr.table.Store(&tableRef{t: table})
	return tr, nil
}

// Process maps v through the current table.
func (tr *Transformer) Process(v signal.Value) (signal.Value, error) {
	return tr.Table().Lookup(v)
}

// Table returns the currently published table. Callers that need several
// lookups against one consistent table should hold on to the snapshot.
func (tr *Transformer) Table() lookup.Table {
	return tr.table.Load().t
}

func (tr *Transformer) InputWidth() signal.Width  { return tr.Table().InputWidth() }
func (tr *Transformer) OutputWidth() signal.Width { return tr.Table().OutputWidth() }

// Swap publishes table and returns the one it replaced. Widths are part of
// the network topology, so the replacement must keep them.
func (tr *Transformer) Swap(table lookup.Table) (lookup.Table, error) {
	if table == nil {
		return nil, ErrNilTable
	}
	for {
		cur := tr.table.Load()
		if cur.t.InputWidth() != table.InputWidth() || cur.t.OutputWidth() != table.OutputWidth() {
			return nil, fmt.Errorf("%w: have %d->%d, got %d->%d", ErrSwapWidth,
				cur.t.InputWidth(), cur.t.OutputWidth(), table.InputWidth(), table.OutputWidth())
		}
		if tr.table.CompareAndSwap(cur, &tableRef{t: table}) {
			return cur.t, nil
		}
	}
}
