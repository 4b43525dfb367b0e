package parquet

import (
	"math/big"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strata-etl/strata/pkg/errors"
	"github.com/strata-etl/strata/pkg/schema"
)

func TestPackUnscaled(t *testing.T) {
	cases := []struct {
		name  string
		value int64
		width int
		want  []byte
	}{
		{"zero", 0, 2, []byte{0x00, 0x00}},
		{"positive", 300, 2, []byte{0x01, 0x2C}},
		{"negative one", -1, 2, []byte{0xFF, 0xFF}},
		{"negative", -300, 2, []byte{0xFE, 0xD4}},
		{"max", 32767, 2, []byte{0x7F, 0xFF}},
		{"min", -32768, 2, []byte{0x80, 0x00}},
		{"sign extension", -1, 4, []byte{0xFF, 0xFF, 0xFF, 0xFF}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			buf, err := packUnscaled(big.NewInt(tc.value), tc.width, "f")
			require.NoError(t, err)
			assert.Equal(t, tc.want, buf)
			assert.Equal(t, tc.value, unpackUnscaled(buf).Int64())
		})
	}
}

func TestPackUnscaledOverflow(t *testing.T) {
	_, err := packUnscaled(big.NewInt(32768), 2, "amount")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeDecimalOverflow))

	_, err = packUnscaled(big.NewInt(-32769), 2, "amount")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeDecimalOverflow))
}

func TestPackDecimalRescaling(t *testing.T) {
	// Fewer fractional digits than the declared scale pads exactly.
	d := decimal.RequireFromString("1.5")
	buf, err := packDecimal(d, 3, 4, RoundHalfUp, "f")
	require.NoError(t, err)
	assert.Equal(t, int64(1500), unpackUnscaled(buf).Int64())

	// Excess digits are rounded, not truncated blindly.
	d = decimal.RequireFromString("1.2345")
	buf, err = packDecimal(d, 2, 4, RoundHalfUp, "f")
	require.NoError(t, err)
	assert.Equal(t, int64(123), unpackUnscaled(buf).Int64())
}

func TestRoundToScale(t *testing.T) {
	cases := []struct {
		mode  RoundingMode
		in    string
		scale int32
		want  string
	}{
		{RoundHalfUp, "2.345", 2, "2.35"},
		{RoundHalfUp, "-2.345", 2, "-2.35"},
		{RoundHalfEven, "2.345", 2, "2.34"},
		{RoundHalfEven, "2.335", 2, "2.34"},
		{RoundDown, "2.349", 2, "2.34"},
		{RoundDown, "-2.349", 2, "-2.34"},
		{RoundUp, "2.341", 2, "2.35"},
		{RoundUp, "-2.341", 2, "-2.35"},
		{RoundCeiling, "2.341", 2, "2.35"},
		{RoundCeiling, "-2.349", 2, "-2.34"},
		{RoundFloor, "2.349", 2, "2.34"},
		{RoundFloor, "-2.341", 2, "-2.35"},
	}
	for _, tc := range cases {
		t.Run(string(tc.mode)+"_"+tc.in, func(t *testing.T) {
			got := roundToScale(decimal.RequireFromString(tc.in), tc.scale, tc.mode)
			assert.Equal(t, tc.want, got.StringFixed(2))
		})
	}
}

func TestInt96Timestamp(t *testing.T) {
	t.Run("epoch", func(t *testing.T) {
		b := timestampToInt96(time.Unix(0, 0).UTC())
		assert.Equal(t, time.Unix(0, 0).UTC(), int96ToTimestamp(b))
	})

	t.Run("round trip with nanos", func(t *testing.T) {
		ts := time.Date(2024, 3, 15, 13, 45, 30, 123456789, time.UTC)
		assert.Equal(t, ts, int96ToTimestamp(timestampToInt96(ts)))
	})

	t.Run("pre-epoch", func(t *testing.T) {
		ts := time.Date(1969, 12, 31, 23, 0, 0, 500, time.UTC)
		assert.Equal(t, ts, int96ToTimestamp(timestampToInt96(ts)))
	})

	t.Run("non-utc input normalizes", func(t *testing.T) {
		loc := time.FixedZone("plus2", 2*3600)
		ts := time.Date(2024, 1, 1, 2, 0, 0, 0, loc)
		assert.Equal(t, ts.UTC(), int96ToTimestamp(timestampToInt96(ts)))
	})
}

func TestDateConversion(t *testing.T) {
	d := time.Date(2024, 6, 1, 15, 30, 0, 0, time.UTC)
	days := daysSinceEpoch(d)
	back := dateFromDays(days)
	assert.Equal(t, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), back)

	assert.Equal(t, int32(0), daysSinceEpoch(time.Unix(0, 0).UTC()))
	assert.Equal(t, int32(1), daysSinceEpoch(time.Date(1970, 1, 2, 23, 59, 59, 0, time.UTC)))
}

func TestTimeOfDayConversion(t *testing.T) {
	tm := time.Date(1970, 1, 1, 10, 30, 45, 123000000, time.UTC)
	ms := millisOfDay(tm)
	assert.Equal(t, int32(((10*60+30)*60+45)*1000+123), ms)
	assert.Equal(t, tm, timeFromMillis(int64(ms)))
	assert.Equal(t, tm, timeFromMicros(int64(ms)*1000))
}

func TestEncodeRowOmitsNulls(t *testing.T) {
	st := schema.MustStructType(
		schema.Field{Name: "a", Type: schema.Int},
		schema.Field{Name: "b", Type: schema.String, Nullable: true},
	)
	row := schema.MustNewRow(st, int32(1), nil)

	data, err := encodeRow(st, row, RoundHalfUp)
	require.NoError(t, err)
	assert.Equal(t, int32(1), data["a"])
	_, present := data["b"]
	assert.False(t, present)
}

func TestEncodeValueShapeMismatch(t *testing.T) {
	_, err := encodeValue(schema.Int, "not an int", "f", RoundHalfUp)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeData))
}

func TestEncodeListAndMapShapes(t *testing.T) {
	enc, err := encodeValue(schema.Array(schema.Int), []interface{}{int32(1), int32(2)}, "f", RoundHalfUp)
	require.NoError(t, err)
	wrapper, ok := enc.(map[string]interface{})
	require.True(t, ok)
	entries, ok := wrapper["list"].([]map[string]interface{})
	require.True(t, ok)
	require.Len(t, entries, 2)
	assert.Equal(t, int32(1), entries[0]["element"])

	enc, err = encodeValue(schema.Map(schema.String, schema.Long),
		map[interface{}]interface{}{"k": int64(7)}, "f", RoundHalfUp)
	require.NoError(t, err)
	wrapper, ok = enc.(map[string]interface{})
	require.True(t, ok)
	pairs, ok := wrapper["key_value"].([]map[string]interface{})
	require.True(t, ok)
	require.Len(t, pairs, 1)
	assert.Equal(t, []byte("k"), pairs[0]["key"])
	assert.Equal(t, int64(7), pairs[0]["value"])
}
