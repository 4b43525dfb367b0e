// Package core defines the connector contracts every Strata source and
// sink implements. Sources expose a schema and a set of independently
// readable parts; sinks accept a schema followed by a stream of rows.
package core

import (
	"context"
	"io"

	"github.com/strata-etl/strata/pkg/schema"
)

// ConnectorType represents the type of connector
type ConnectorType string

const (
	ConnectorTypeSource ConnectorType = "source"
	ConnectorTypeSink   ConnectorType = "sink"
)

// RowIterator is a single-pass, forward-only row sequence. Next returns
// io.EOF once the sequence is exhausted; any other error is terminal.
// Iterators are not safe for concurrent use.
type RowIterator interface {
	Next() (*schema.Row, error)
	Close() error
}

// Part is an independently readable slice of a source, typically one file
// of a multi-file dataset or one range of a table. Parts may be opened
// concurrently by independent workers.
type Part interface {
	// Name identifies the part for logging and metrics
	Name() string
	// Open starts reading the part from its beginning
	Open(ctx context.Context) (RowIterator, error)
}

// Source is the interface all source connectors implement. Schema must be
// callable before any part is opened; every part yields rows conforming
// to it.
type Source interface {
	// Schema reports the row schema shared by all parts
	Schema(ctx context.Context) (*schema.StructType, error)
	// Parts enumerates the independently readable slices of the source
	Parts(ctx context.Context) ([]Part, error)
	// Close releases source resources
	Close(ctx context.Context) error
}

// Sink is the interface all sink connectors implement. CreateSchema is
// called exactly once before the first Write; Close flushes and releases
// resources and is required even after a write error.
type Sink interface {
	// CreateSchema prepares the sink for rows of the given schema
	CreateSchema(ctx context.Context, s *schema.StructType) error
	// Write appends one row
	Write(ctx context.Context, row *schema.Row) error
	// Close flushes buffered rows and releases resources
	Close(ctx context.Context) error
}

// SliceIterator adapts an in-memory row slice to a RowIterator. It is
// used by tests and by sources that materialize small parts.
type SliceIterator struct {
	rows []*schema.Row
	pos  int
}

// NewSliceIterator returns an iterator over rows.
func NewSliceIterator(rows []*schema.Row) *SliceIterator {
	return &SliceIterator{rows: rows}
}

// Next returns the next row, or io.EOF at the end of the slice.
func (it *SliceIterator) Next() (*schema.Row, error) {
	if it.pos >= len(it.rows) {
		return nil, io.EOF
	}
	row := it.rows[it.pos]
	it.pos++
	return row, nil
}

// Close is a no-op.
func (it *SliceIterator) Close() error { return nil }
