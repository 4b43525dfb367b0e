package parquet

import (
	"io"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strata-etl/strata/pkg/config"
	sink "github.com/strata-etl/strata/pkg/connector/destinations/parquet"
	"github.com/strata-etl/strata/pkg/schema"
	"github.com/strata-etl/strata/pkg/testutil"
)

func writeColumnarFile(t *testing.T, path string, st *schema.StructType, rows []*schema.Row) {
	t.Helper()
	cfg := config.NewBaseConfig("writer", "parquet")
	cfg.File.Path = path

	s, err := sink.NewSink(cfg)
	require.NoError(t, err)

	ctx, cancel := testutil.TestContext(t)
	defer cancel()
	require.NoError(t, s.CreateSchema(ctx, st))
	for _, row := range rows {
		require.NoError(t, s.Write(ctx, row))
	}
	require.NoError(t, s.Close(ctx))
}

func TestSinkToSourceRoundTrip(t *testing.T) {
	st := schema.MustStructType(
		schema.Field{Name: "id", Type: schema.Long},
		schema.Field{Name: "name", Type: schema.String, Nullable: true},
		schema.Field{Name: "amount", Type: schema.Decimal(10, 2)},
	)
	path := filepath.Join(t.TempDir(), "data.parquet")
	writeColumnarFile(t, path, st, []*schema.Row{
		testutil.MustRow(t, st, int64(1), "alice", decimal.RequireFromString("10.50")),
		testutil.MustRow(t, st, int64(2), nil, decimal.RequireFromString("-3.25")),
	})

	cfg := config.NewBaseConfig("reader", "parquet")
	cfg.File.Path = path
	src, err := NewSource(cfg)
	require.NoError(t, err)

	ctx, cancel := testutil.TestContext(t)
	defer cancel()

	got, err := src.Schema(ctx)
	require.NoError(t, err)
	assert.True(t, st.Equal(got))

	parts, err := src.Parts(ctx)
	require.NoError(t, err)
	require.Len(t, parts, 1)
	assert.Equal(t, path, parts[0].Name())

	it, err := parts[0].Open(ctx)
	require.NoError(t, err)
	defer it.Close()

	first, err := it.Next()
	require.NoError(t, err)
	assert.Equal(t, int64(1), first.Value(0))
	assert.Equal(t, "alice", first.Value(1))
	assert.True(t, decimal.RequireFromString("10.50").Equal(first.Value(2).(decimal.Decimal)))

	second, err := it.Next()
	require.NoError(t, err)
	assert.Nil(t, second.Value(1))
	assert.True(t, decimal.RequireFromString("-3.25").Equal(second.Value(2).(decimal.Decimal)))

	_, err = it.Next()
	assert.Equal(t, io.EOF, err)
	require.NoError(t, src.Close(ctx))
}

func TestColumnPushdown(t *testing.T) {
	st := schema.MustStructType(
		schema.Field{Name: "id", Type: schema.Long},
		schema.Field{Name: "name", Type: schema.String},
		schema.Field{Name: "score", Type: schema.Double},
	)
	path := filepath.Join(t.TempDir(), "data.parquet")
	writeColumnarFile(t, path, st, []*schema.Row{
		testutil.MustRow(t, st, int64(1), "alice", 97.5),
	})

	cfg := config.NewBaseConfig("reader", "parquet")
	cfg.File.Path = path
	cfg.Columnar.Columns = []string{"name", "score"}
	src, err := NewSource(cfg)
	require.NoError(t, err)

	ctx, cancel := testutil.TestContext(t)
	defer cancel()

	got, err := src.Schema(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, got.Len())
	assert.Equal(t, "name", got.Field(0).Name)
	assert.Equal(t, "score", got.Field(1).Name)
}

func TestMultiFileParts(t *testing.T) {
	st := schema.MustStructType(schema.Field{Name: "id", Type: schema.Long})
	dir := t.TempDir()
	writeColumnarFile(t, filepath.Join(dir, "b.parquet"), st, []*schema.Row{testutil.MustRow(t, st, int64(2))})
	writeColumnarFile(t, filepath.Join(dir, "a.parquet"), st, []*schema.Row{testutil.MustRow(t, st, int64(1))})

	cfg := config.NewBaseConfig("reader", "parquet")
	cfg.File.Path = filepath.Join(dir, "*.parquet")
	src, err := NewSource(cfg)
	require.NoError(t, err)

	ctx, cancel := testutil.TestContext(t)
	defer cancel()
	parts, err := src.Parts(ctx)
	require.NoError(t, err)
	require.Len(t, parts, 2)
	assert.Equal(t, filepath.Join(dir, "a.parquet"), parts[0].Name())
	assert.Equal(t, filepath.Join(dir, "b.parquet"), parts[1].Name())
}

func TestRequiresPath(t *testing.T) {
	cfg := config.NewBaseConfig("reader", "parquet")
	cfg.File.Path = ""
	_, err := NewSource(cfg)
	assert.Error(t, err)
}
