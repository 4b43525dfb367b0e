package parquet

import (
	"io"
	"math/big"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strata-etl/strata/pkg/errors"
	"github.com/strata-etl/strata/pkg/schema"
)

func testSchema(t *testing.T) *schema.StructType {
	t.Helper()
	return schema.MustStructType(
		schema.Field{Name: "id", Type: schema.Long},
		schema.Field{Name: "flag", Type: schema.Boolean},
		schema.Field{Name: "count", Type: schema.UShort},
		schema.Field{Name: "name", Type: schema.String, Nullable: true},
		schema.Field{Name: "payload", Type: schema.Binary, Nullable: true},
		schema.Field{Name: "score", Type: schema.Double},
		schema.Field{Name: "born", Type: schema.Date},
		schema.Field{Name: "at", Type: schema.Timestamp},
		schema.Field{Name: "amount", Type: schema.Decimal(10, 2)},
		schema.Field{Name: "serial", Type: schema.BigInt, Nullable: true},
	)
}

func writeTestFile(t *testing.T, path string, st *schema.StructType, rows []*schema.Row, cfg WriterConfig) {
	t.Helper()
	w, err := NewWriter(path, st, cfg)
	require.NoError(t, err)
	for _, row := range rows {
		require.NoError(t, w.Append(row))
	}
	require.NoError(t, w.Close())
}

func drain(t *testing.T, r *Reader) []*schema.Row {
	t.Helper()
	var rows []*schema.Row
	for {
		row, err := r.Next()
		if err == io.EOF {
			return rows
		}
		require.NoError(t, err)
		rows = append(rows, row)
	}
}

func TestWriteReadRoundTrip(t *testing.T) {
	st := testSchema(t)
	born := time.Date(1987, 6, 5, 0, 0, 0, 0, time.UTC)
	at := time.Date(2024, 3, 15, 13, 45, 30, 123456789, time.UTC)
	serial := new(big.Int)
	serial.SetString("12345678901234567890123456789", 10)

	in := []*schema.Row{
		schema.MustNewRow(st,
			int64(1), true, uint16(65000), "alice", []byte{0xDE, 0xAD},
			99.5, born, at, decimal.RequireFromString("1234.56"), serial),
		schema.MustNewRow(st,
			int64(2), false, uint16(0), nil, nil,
			-1.25, born, at, decimal.RequireFromString("-0.01"), nil),
	}

	path := filepath.Join(t.TempDir(), "data.parquet")
	writeTestFile(t, path, st, in, DefaultWriterConfig())

	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()

	require.Equal(t, st.Len(), r.Schema().Len())
	out := drain(t, r)
	require.Len(t, out, 2)

	first := out[0]
	assert.Equal(t, int64(1), first.Value(0))
	assert.Equal(t, true, first.Value(1))
	assert.Equal(t, uint16(65000), first.Value(2))
	assert.Equal(t, "alice", first.Value(3))
	assert.Equal(t, []byte{0xDE, 0xAD}, first.Value(4))
	assert.Equal(t, 99.5, first.Value(5))
	assert.Equal(t, born, first.Value(6))
	assert.Equal(t, at, first.Value(7))

	amount, ok := first.Value(8).(decimal.Decimal)
	require.True(t, ok)
	assert.True(t, amount.Equal(decimal.RequireFromString("1234.56")), "got %s", amount)

	// BigInt reads back as decimal(38,0) per the round-trip mapping.
	got, ok := first.Value(9).(decimal.Decimal)
	require.True(t, ok)
	assert.Equal(t, serial.String(), got.String())

	second := out[1]
	assert.Nil(t, second.Value(3))
	assert.Nil(t, second.Value(4))
	assert.Nil(t, second.Value(9))
	neg, ok := second.Value(8).(decimal.Decimal)
	require.True(t, ok)
	assert.True(t, neg.Equal(decimal.RequireFromString("-0.01")), "got %s", neg)
}

func TestUnsignedWideRoundTrip(t *testing.T) {
	st := schema.MustStructType(
		schema.Field{Name: "small", Type: schema.UShort},
		schema.Field{Name: "medium", Type: schema.UInt},
		schema.Field{Name: "large", Type: schema.ULong},
		schema.Field{Name: "clock", Type: schema.Time},
	)

	// Values above the signed maximum exercise the raw bit-pattern casts
	// the unsigned columns travel through.
	clock := time.Date(1970, 1, 1, 23, 59, 59, 123000000, time.UTC)
	in := []*schema.Row{
		schema.MustNewRow(st, uint16(65535), uint32(3_000_000_000), uint64(18_000_000_000_000_000_000), clock),
		schema.MustNewRow(st, uint16(0), uint32(0), uint64(0), time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC)),
	}

	path := filepath.Join(t.TempDir(), "unsigned.parquet")
	writeTestFile(t, path, st, in, DefaultWriterConfig())

	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()
	out := drain(t, r)
	require.Len(t, out, 2)

	assert.Equal(t, uint16(65535), out[0].Value(0))
	assert.Equal(t, uint32(3_000_000_000), out[0].Value(1))
	assert.Equal(t, uint64(18_000_000_000_000_000_000), out[0].Value(2))
	assert.Equal(t, clock, out[0].Value(3))

	assert.Equal(t, uint32(0), out[1].Value(1))
	assert.Equal(t, uint64(0), out[1].Value(2))
	assert.Equal(t, time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC), out[1].Value(3))
}

func TestNestedRoundTrip(t *testing.T) {
	point := schema.Struct(
		schema.Field{Name: "x", Type: schema.Int},
		schema.Field{Name: "y", Type: schema.Int},
	)
	pointSchema := schema.MustStructType(point.Fields...)
	st := schema.MustStructType(
		schema.Field{Name: "id", Type: schema.Long},
		schema.Field{Name: "point", Type: point, Nullable: true},
		schema.Field{Name: "tags", Type: schema.Array(schema.String), Nullable: true},
		schema.Field{Name: "attrs", Type: schema.Map(schema.String, schema.Long), Nullable: true},
	)

	in := []*schema.Row{
		schema.MustNewRow(st,
			int64(1),
			schema.MustNewRow(pointSchema, int32(3), int32(4)),
			[]interface{}{"red", "blue"},
			map[interface{}]interface{}{"weight": int64(12)}),
		schema.MustNewRow(st, int64(2), nil, nil, nil),
	}

	path := filepath.Join(t.TempDir(), "nested.parquet")
	writeTestFile(t, path, st, in, DefaultWriterConfig())

	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()

	out := drain(t, r)
	require.Len(t, out, 2)

	nested, ok := out[0].Value(1).(*schema.Row)
	require.True(t, ok)
	assert.Equal(t, int32(3), nested.Value(0))
	assert.Equal(t, int32(4), nested.Value(1))

	assert.Equal(t, []interface{}{"red", "blue"}, out[0].Value(2))
	assert.Equal(t, map[interface{}]interface{}{"weight": int64(12)}, out[0].Value(3))

	assert.Nil(t, out[1].Value(1))
}

func TestCompressionCodecs(t *testing.T) {
	st := schema.MustStructType(
		schema.Field{Name: "n", Type: schema.Long},
		schema.Field{Name: "text", Type: schema.String},
	)
	rows := make([]*schema.Row, 100)
	for i := range rows {
		rows[i] = schema.MustNewRow(st, int64(i), "repetitive payload for the codec to chew on")
	}

	for _, codec := range []Compression{CompressionNone, CompressionSnappy, CompressionGzip, CompressionZstd} {
		t.Run(string(codec), func(t *testing.T) {
			cfg := DefaultWriterConfig()
			cfg.Compression = codec
			path := filepath.Join(t.TempDir(), "c.parquet")
			writeTestFile(t, path, st, rows, cfg)

			r, err := Open(path)
			require.NoError(t, err)
			defer r.Close()
			out := drain(t, r)
			require.Len(t, out, 100)
			assert.Equal(t, int64(99), out[99].Value(0))
		})
	}

	t.Run("unknown codec rejected", func(t *testing.T) {
		cfg := DefaultWriterConfig()
		cfg.Compression = "brotli"
		_, err := NewWriter(filepath.Join(t.TempDir(), "x.parquet"), st, cfg)
		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
	})
}

func TestRoundingModeRejected(t *testing.T) {
	st := schema.MustStructType(schema.Field{Name: "amount", Type: schema.Decimal(10, 2)})

	for _, mode := range []RoundingMode{RoundUp, RoundDown, RoundHalfUp, RoundHalfEven, RoundCeiling, RoundFloor} {
		t.Run(string(mode), func(t *testing.T) {
			cfg := DefaultWriterConfig()
			cfg.Rounding = mode
			w, err := NewWriter(filepath.Join(t.TempDir(), "r.parquet"), st, cfg)
			require.NoError(t, err)
			require.NoError(t, w.Close())
		})
	}

	t.Run("unknown mode rejected", func(t *testing.T) {
		cfg := DefaultWriterConfig()
		cfg.Rounding = "stochastic"
		_, err := NewWriter(filepath.Join(t.TempDir(), "r.parquet"), st, cfg)
		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
	})
}

func TestProjection(t *testing.T) {
	st := testSchema(t)
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rows := []*schema.Row{
		schema.MustNewRow(st,
			int64(1), true, uint16(5), "n", nil, 1.0, at, at,
			decimal.RequireFromString("1.00"), nil),
	}
	path := filepath.Join(t.TempDir(), "p.parquet")
	writeTestFile(t, path, st, rows, DefaultWriterConfig())

	t.Run("subset in requested order", func(t *testing.T) {
		r, err := Open(path, WithProjection("name", "ID"))
		require.NoError(t, err)
		defer r.Close()

		require.Equal(t, 2, r.Schema().Len())
		assert.Equal(t, "name", r.Schema().Field(0).Name)
		assert.Equal(t, "id", r.Schema().Field(1).Name)

		out := drain(t, r)
		require.Len(t, out, 1)
		assert.Equal(t, "n", out[0].Value(0))
		assert.Equal(t, int64(1), out[0].Value(1))
	})

	t.Run("unknown field fails open", func(t *testing.T) {
		_, err := Open(path, WithProjection("nonexistent"))
		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrorTypeFieldNotFound))
	})
}

func TestPredicate(t *testing.T) {
	st := schema.MustStructType(schema.Field{Name: "n", Type: schema.Long})
	rows := make([]*schema.Row, 10)
	for i := range rows {
		rows[i] = schema.MustNewRow(st, int64(i))
	}
	path := filepath.Join(t.TempDir(), "f.parquet")
	writeTestFile(t, path, st, rows, DefaultWriterConfig())

	r, err := Open(path, WithPredicate(func(row *schema.Row) bool {
		return row.Value(0).(int64)%2 == 0
	}))
	require.NoError(t, err)
	defer r.Close()

	out := drain(t, r)
	require.Len(t, out, 5)
	for i, row := range out {
		assert.Equal(t, int64(2*i), row.Value(0))
	}
}

func TestMultiFileRead(t *testing.T) {
	st := schema.MustStructType(schema.Field{Name: "n", Type: schema.Long})
	dir := t.TempDir()

	writeTestFile(t, filepath.Join(dir, "part-1.parquet"), st,
		[]*schema.Row{schema.MustNewRow(st, int64(1)), schema.MustNewRow(st, int64(2))},
		DefaultWriterConfig())
	writeTestFile(t, filepath.Join(dir, "part-0.parquet"), st,
		[]*schema.Row{schema.MustNewRow(st, int64(0))},
		DefaultWriterConfig())

	t.Run("glob concatenates in path order", func(t *testing.T) {
		r, err := Open(filepath.Join(dir, "part-*.parquet"))
		require.NoError(t, err)
		defer r.Close()

		out := drain(t, r)
		require.Len(t, out, 3)
		assert.Equal(t, int64(0), out[0].Value(0))
		assert.Equal(t, int64(1), out[1].Value(0))
		assert.Equal(t, int64(2), out[2].Value(0))
	})

	t.Run("directory reads its parquet entries", func(t *testing.T) {
		r, err := Open(dir)
		require.NoError(t, err)
		defer r.Close()
		assert.Len(t, drain(t, r), 3)
	})

	t.Run("no matches fails", func(t *testing.T) {
		_, err := Open(filepath.Join(dir, "missing-*.parquet"))
		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrorTypeFile))
	})
}

func TestReaderCloseIdempotent(t *testing.T) {
	st := schema.MustStructType(schema.Field{Name: "n", Type: schema.Long})
	path := filepath.Join(t.TempDir(), "c.parquet")
	writeTestFile(t, path, st, []*schema.Row{schema.MustNewRow(st, int64(1))}, DefaultWriterConfig())

	r, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, r.Close())
	require.NoError(t, r.Close())

	_, err = r.Next()
	assert.Equal(t, io.EOF, err)
}

func TestWriterValidation(t *testing.T) {
	st := schema.MustStructType(schema.Field{Name: "n", Type: schema.Long})
	cfg := DefaultWriterConfig()
	cfg.Validation = true

	w, err := NewWriter(filepath.Join(t.TempDir(), "v.parquet"), st, cfg)
	require.NoError(t, err)
	defer w.Close()

	err = w.Append(schema.MustNewRow(st, "not a long"))
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))

	require.NoError(t, w.Append(schema.MustNewRow(st, int64(1))))
	assert.Equal(t, int64(1), w.Rows())
}

func TestNullContainerElementRejected(t *testing.T) {
	st := schema.MustStructType(
		schema.Field{Name: "tags", Type: schema.Array(schema.String), Nullable: true},
	)
	row := schema.MustNewRow(st, []interface{}{"a", nil})

	t.Run("with validation", func(t *testing.T) {
		cfg := DefaultWriterConfig()
		cfg.Validation = true
		w, err := NewWriter(filepath.Join(t.TempDir(), "n.parquet"), st, cfg)
		require.NoError(t, err)
		defer w.Close()

		err = w.Append(row)
		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
	})

	t.Run("without validation", func(t *testing.T) {
		w, err := NewWriter(filepath.Join(t.TempDir(), "n.parquet"), st, DefaultWriterConfig())
		require.NoError(t, err)
		defer w.Close()

		err = w.Append(row)
		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrorTypeData))
	})
}

func TestWriterCloseIdempotent(t *testing.T) {
	st := schema.MustStructType(schema.Field{Name: "n", Type: schema.Long})
	w, err := NewWriter(filepath.Join(t.TempDir(), "w.parquet"), st, DefaultWriterConfig())
	require.NoError(t, err)

	require.NoError(t, w.Close())
	require.NoError(t, w.Close())

	err = w.Append(schema.MustNewRow(st, int64(1)))
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeFile))
}

func TestDecimalOverflowAbortsAppend(t *testing.T) {
	st := schema.MustStructType(schema.Field{Name: "d", Type: schema.Decimal(2, 0)})
	w, err := NewWriter(filepath.Join(t.TempDir(), "o.parquet"), st, DefaultWriterConfig())
	require.NoError(t, err)
	defer w.Close()

	err = w.Append(schema.MustNewRow(st, decimal.RequireFromString("500")))
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeDecimalOverflow))
}

func TestMetadataInFooter(t *testing.T) {
	st := schema.MustStructType(schema.Field{Name: "n", Type: schema.Long})
	cfg := DefaultWriterConfig()
	cfg.Metadata = map[string]string{"origin": "unit-test"}
	path := filepath.Join(t.TempDir(), "m.parquet")
	writeTestFile(t, path, st, []*schema.Row{schema.MustNewRow(st, int64(1))}, cfg)

	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()
	assert.Len(t, drain(t, r), 1)
}
