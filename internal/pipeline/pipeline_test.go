package pipeline

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strata-etl/strata/pkg/connector/core"
	"github.com/strata-etl/strata/pkg/errors"
	"github.com/strata-etl/strata/pkg/schema"
	"github.com/strata-etl/strata/pkg/testutil"
)

// memPart serves a fixed row slice, optionally failing on Open.
type memPart struct {
	name    string
	rows    []*schema.Row
	openErr error
}

func (p *memPart) Name() string { return p.name }

func (p *memPart) Open(ctx context.Context) (core.RowIterator, error) {
	if p.openErr != nil {
		return nil, p.openErr
	}
	return core.NewSliceIterator(p.rows), nil
}

type memSource struct {
	schema *schema.StructType
	parts  []core.Part
}

func (s *memSource) Schema(ctx context.Context) (*schema.StructType, error) { return s.schema, nil }
func (s *memSource) Parts(ctx context.Context) ([]core.Part, error)         { return s.parts, nil }
func (s *memSource) Close(ctx context.Context) error                        { return nil }

// memSink collects written rows under a lock so it can observe the
// single-writer guarantee without data races.
type memSink struct {
	mu     sync.Mutex
	schema *schema.StructType
	rows   []*schema.Row
	closed bool
}

func (s *memSink) CreateSchema(ctx context.Context, st *schema.StructType) error {
	s.schema = st
	return nil
}

func (s *memSink) Write(ctx context.Context, row *schema.Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, row)
	return nil
}

func (s *memSink) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *memSink) values(idx int) []interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]interface{}, 0, len(s.rows))
	for _, row := range s.rows {
		out = append(out, row.Value(idx))
	}
	return out
}

func testRows(t *testing.T, st *schema.StructType, ids ...int64) []*schema.Row {
	t.Helper()
	rows := make([]*schema.Row, 0, len(ids))
	for _, id := range ids {
		rows = append(rows, testutil.MustRow(t, st, id))
	}
	return rows
}

func TestRunMovesAllRows(t *testing.T) {
	st := schema.MustStructType(schema.Field{Name: "id", Type: schema.Long})
	source := &memSource{schema: st, parts: []core.Part{
		&memPart{name: "a", rows: testRows(t, st, 1, 2, 3)},
		&memPart{name: "b", rows: testRows(t, st, 4, 5)},
	}}
	sink := &memSink{}

	p := New(source, sink, &Config{Workers: 2, BufferSize: 4}, testutil.TestLogger(t))
	ctx, cancel := testutil.TestContext(t)
	defer cancel()
	require.NoError(t, p.Run(ctx))

	assert.ElementsMatch(t, []interface{}{int64(1), int64(2), int64(3), int64(4), int64(5)}, sink.values(0))
	assert.True(t, sink.closed)
	assert.Equal(t, st, sink.schema)

	m := p.Metrics()
	assert.Equal(t, int64(5), m["records_processed"])
	assert.Equal(t, int64(0), m["records_failed"])
	assert.Equal(t, 2, m["workers"])
}

func TestFilterTransform(t *testing.T) {
	st := schema.MustStructType(schema.Field{Name: "id", Type: schema.Long})
	source := &memSource{schema: st, parts: []core.Part{
		&memPart{name: "a", rows: testRows(t, st, 1, 2, 3, 4, 5, 6)},
	}}
	sink := &memSink{}

	p := New(source, sink, &Config{Workers: 1, BufferSize: 4}, testutil.TestLogger(t))
	p.AddTransform(FilterTransform(func(row *schema.Row) bool {
		return row.Value(0).(int64)%2 == 0
	}))
	ctx, cancel := testutil.TestContext(t)
	defer cancel()
	require.NoError(t, p.Run(ctx))

	assert.ElementsMatch(t, []interface{}{int64(2), int64(4), int64(6)}, sink.values(0))
	assert.Equal(t, int64(3), p.Metrics()["records_processed"])
}

func TestChainedTransforms(t *testing.T) {
	st := schema.MustStructType(schema.Field{Name: "id", Type: schema.Long})
	source := &memSource{schema: st, parts: []core.Part{
		&memPart{name: "a", rows: testRows(t, st, 1, 2, 3)},
	}}
	sink := &memSink{}

	p := New(source, sink, &Config{Workers: 1, BufferSize: 4}, testutil.TestLogger(t))
	p.AddTransform(func(ctx context.Context, row *schema.Row) (*schema.Row, error) {
		return schema.NewRow(row.Schema(), row.Value(0).(int64)*10)
	})
	p.AddTransform(FilterTransform(func(row *schema.Row) bool {
		return row.Value(0).(int64) > 10
	}))
	ctx, cancel := testutil.TestContext(t)
	defer cancel()
	require.NoError(t, p.Run(ctx))

	assert.ElementsMatch(t, []interface{}{int64(20), int64(30)}, sink.values(0))
}

func TestTransformErrorContinuesWithoutFailFast(t *testing.T) {
	st := schema.MustStructType(schema.Field{Name: "id", Type: schema.Long})
	source := &memSource{schema: st, parts: []core.Part{
		&memPart{name: "a", rows: testRows(t, st, 1, 2, 3)},
	}}
	sink := &memSink{}

	p := New(source, sink, &Config{Workers: 1, BufferSize: 4}, testutil.TestLogger(t))
	p.AddTransform(func(ctx context.Context, row *schema.Row) (*schema.Row, error) {
		if row.Value(0).(int64) == 2 {
			return nil, errors.New(errors.ErrorTypeData, "bad row")
		}
		return row, nil
	})
	ctx, cancel := testutil.TestContext(t)
	defer cancel()
	require.NoError(t, p.Run(ctx))

	assert.ElementsMatch(t, []interface{}{int64(1), int64(3)}, sink.values(0))
	m := p.Metrics()
	assert.Equal(t, int64(2), m["records_processed"])
	assert.Equal(t, int64(1), m["records_failed"])
}

func TestTransformErrorAbortsWithFailFast(t *testing.T) {
	st := schema.MustStructType(schema.Field{Name: "id", Type: schema.Long})
	source := &memSource{schema: st, parts: []core.Part{
		&memPart{name: "a", rows: testRows(t, st, 1, 2, 3)},
	}}
	sink := &memSink{}

	p := New(source, sink, &Config{Workers: 1, BufferSize: 4, FailFast: true}, testutil.TestLogger(t))
	p.AddTransform(func(ctx context.Context, row *schema.Row) (*schema.Row, error) {
		return nil, errors.New(errors.ErrorTypeData, "bad row")
	})
	ctx, cancel := testutil.TestContext(t)
	defer cancel()
	assert.Error(t, p.Run(ctx))
	assert.True(t, sink.closed)
}

func TestPartOpenFailure(t *testing.T) {
	st := schema.MustStructType(schema.Field{Name: "id", Type: schema.Long})
	source := &memSource{schema: st, parts: []core.Part{
		&memPart{name: "good", rows: testRows(t, st, 1)},
		&memPart{name: "broken", openErr: errors.New(errors.ErrorTypeConnection, "no such part")},
	}}
	sink := &memSink{}

	p := New(source, sink, &Config{Workers: 1, BufferSize: 4}, testutil.TestLogger(t))
	ctx, cancel := testutil.TestContext(t)
	defer cancel()
	assert.Error(t, p.Run(ctx))
	assert.True(t, sink.closed)
}

func TestNilConfigUsesDefaults(t *testing.T) {
	st := schema.MustStructType(schema.Field{Name: "id", Type: schema.Long})
	source := &memSource{schema: st, parts: []core.Part{
		&memPart{name: "a", rows: testRows(t, st, 7)},
	}}
	sink := &memSink{}

	p := New(source, sink, nil, nil)
	ctx, cancel := testutil.TestContext(t)
	defer cancel()
	require.NoError(t, p.Run(ctx))
	assert.Equal(t, []interface{}{int64(7)}, sink.values(0))
}
