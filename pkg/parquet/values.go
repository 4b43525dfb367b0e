package parquet

import (
	"encoding/binary"
	"fmt"
	"math/big"
	"time"

	"github.com/fraugster/parquet-go/parquet"
	"github.com/fraugster/parquet-go/parquetschema"
	"github.com/shopspring/decimal"

	"github.com/strata-etl/strata/pkg/errors"
	"github.com/strata-etl/strata/pkg/schema"
)

// RoundingMode selects how decimal values are truncated when a value's
// scale exceeds the schema's declared scale. Rounding applies only to that
// truncation; values already at or below the declared scale are encoded
// exactly.
type RoundingMode string

const (
	// RoundUp rounds away from zero.
	RoundUp RoundingMode = "up"
	// RoundDown rounds towards zero.
	RoundDown RoundingMode = "down"
	// RoundHalfUp rounds to nearest, ties away from zero. The default.
	RoundHalfUp RoundingMode = "half-up"
	// RoundHalfEven rounds to nearest, ties to the even neighbor.
	RoundHalfEven RoundingMode = "half-even"
	// RoundCeiling rounds towards positive infinity.
	RoundCeiling RoundingMode = "ceiling"
	// RoundFloor rounds towards negative infinity.
	RoundFloor RoundingMode = "floor"
)

// julianDayOfEpoch is the Julian day number of 1970-01-01, the reference
// point of the legacy INT96 timestamp encoding.
const julianDayOfEpoch = 2440588

const secondsPerDay = 86400

// encodeRow translates a row into the nested map representation the
// underlying parquet encoder consumes. Null values are omitted.
func encodeRow(s *schema.StructType, r *schema.Row, mode RoundingMode) (map[string]interface{}, error) {
	data := make(map[string]interface{}, s.Len())
	for i, f := range s.Fields() {
		v := r.Value(i)
		if v == nil {
			continue
		}
		enc, err := encodeValue(f.Type, v, f.Name, mode)
		if err != nil {
			return nil, err
		}
		data[f.Name] = enc
	}
	return data, nil
}

func encodeValue(dt schema.DataType, v interface{}, path string, mode RoundingMode) (interface{}, error) {
	// Nullable fields are skipped by the callers before encoding; a nil here
	// sits in a required container position the layout cannot represent.
	if v == nil {
		return nil, errors.Newf(errors.ErrorTypeData,
			"field %q: null value in a required position", path)
	}
	switch dt.ID {
	case schema.TypeBoolean:
		if b, ok := v.(bool); ok {
			return b, nil
		}
	case schema.TypeByte:
		switch n := v.(type) {
		case int8:
			return int32(n), nil
		case int:
			return int32(int8(n)), nil
		}
	case schema.TypeShort:
		switch n := v.(type) {
		case int16:
			return int32(n), nil
		case uint16:
			return int32(n), nil
		case int:
			return int32(n), nil
		}
	case schema.TypeInt:
		switch n := v.(type) {
		case int32:
			return n, nil
		case uint32:
			// Unsigned values travel as their raw 32-bit pattern.
			return int32(n), nil
		case int:
			return int32(n), nil
		}
	case schema.TypeLong:
		switch n := v.(type) {
		case int64:
			return n, nil
		case uint64:
			return int64(n), nil
		case int:
			return int64(n), nil
		}
	case schema.TypeFloat:
		if f, ok := v.(float32); ok {
			return f, nil
		}
	case schema.TypeDouble:
		switch f := v.(type) {
		case float64:
			return f, nil
		case float32:
			return float64(f), nil
		}
	case schema.TypeString:
		if s, ok := v.(string); ok {
			return []byte(s), nil
		}
	case schema.TypeBinary:
		if b, ok := v.([]byte); ok {
			return b, nil
		}
	case schema.TypeDate:
		if t, ok := v.(time.Time); ok {
			return daysSinceEpoch(t), nil
		}
	case schema.TypeTime:
		if t, ok := v.(time.Time); ok {
			return millisOfDay(t), nil
		}
	case schema.TypeTimestamp:
		if t, ok := v.(time.Time); ok {
			return timestampToInt96(t), nil
		}
	case schema.TypeDecimal:
		d, err := coerceDecimal(v)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeData,
				fmt.Sprintf("field %q is not a decimal", path))
		}
		return packDecimal(d, dt.Scale, schema.DecimalByteWidth(dt.Precision), mode, path)
	case schema.TypeBigInt:
		bi, ok := v.(*big.Int)
		if !ok {
			break
		}
		return packUnscaled(bi, schema.BigIntByteWidth, path)
	case schema.TypeStruct:
		sub, ok := v.(*schema.Row)
		if !ok {
			break
		}
		nested := make(map[string]interface{}, len(dt.Fields))
		for i, f := range dt.Fields {
			cv := sub.Value(i)
			if cv == nil {
				continue
			}
			enc, err := encodeValue(f.Type, cv, path+"."+f.Name, mode)
			if err != nil {
				return nil, err
			}
			nested[f.Name] = enc
		}
		return nested, nil
	case schema.TypeArray:
		elems, ok := v.([]interface{})
		if !ok {
			break
		}
		entries := make([]map[string]interface{}, 0, len(elems))
		for _, e := range elems {
			enc, err := encodeValue(*dt.Elem, e, path+"."+listElemName, mode)
			if err != nil {
				return nil, err
			}
			entries = append(entries, map[string]interface{}{listElemName: enc})
		}
		return map[string]interface{}{listGroupName: entries}, nil
	case schema.TypeMap:
		pairs, ok := v.(map[interface{}]interface{})
		if !ok {
			break
		}
		entries := make([]map[string]interface{}, 0, len(pairs))
		for k, mv := range pairs {
			ek, err := encodeValue(*dt.Key, k, path+"."+mapKeyName, mode)
			if err != nil {
				return nil, err
			}
			ev, err := encodeValue(*dt.Value, mv, path+"."+mapValueName, mode)
			if err != nil {
				return nil, err
			}
			entries = append(entries, map[string]interface{}{mapKeyName: ek, mapValueName: ev})
		}
		return map[string]interface{}{mapGroupName: entries}, nil
	default:
		return nil, errors.UnsupportedType(dt.String(), "")
	}

	return nil, errors.Newf(errors.ErrorTypeData,
		"field %q: value %T is not encodable as %s", path, v, dt)
}

func coerceDecimal(v interface{}) (decimal.Decimal, error) {
	switch d := v.(type) {
	case decimal.Decimal:
		return d, nil
	case string:
		return decimal.NewFromString(d)
	case float64:
		return decimal.NewFromFloat(d), nil
	case int64:
		return decimal.NewFromInt(d), nil
	case int:
		return decimal.NewFromInt(int64(d)), nil
	default:
		return decimal.Decimal{}, fmt.Errorf("cannot interpret %T as decimal", v)
	}
}

// packDecimal rescales d to the declared scale, applying the rounding mode
// only when the value carries excess fractional digits, and packs the
// unscaled result into a two's complement big-endian array of the given
// width. Overflow is fatal, never a silent truncation.
func packDecimal(d decimal.Decimal, scale, width int, mode RoundingMode, path string) ([]byte, error) {
	if int(-d.Exponent()) > scale {
		d = roundToScale(d, int32(scale), mode)
	}
	unscaled := d.Shift(int32(scale)).BigInt()
	return packUnscaled(unscaled, width, path)
}

func roundToScale(d decimal.Decimal, scale int32, mode RoundingMode) decimal.Decimal {
	switch mode {
	case RoundUp:
		return d.RoundUp(scale)
	case RoundDown:
		return d.RoundDown(scale)
	case RoundHalfEven:
		return d.RoundBank(scale)
	case RoundCeiling:
		return d.RoundCeil(scale)
	case RoundFloor:
		return d.RoundFloor(scale)
	default:
		return d.Round(scale)
	}
}

// packUnscaled writes bi as two's complement, big-endian, sign-extended to
// exactly width bytes.
func packUnscaled(bi *big.Int, width int, path string) ([]byte, error) {
	if bi.BitLen() > 8*width-1 {
		return nil, errors.DecimalOverflow(path, width)
	}
	buf := make([]byte, width)
	if bi.Sign() >= 0 {
		bi.FillBytes(buf)
		return buf, nil
	}
	wrapped := new(big.Int).Lsh(big.NewInt(1), uint(8*width))
	wrapped.Add(wrapped, bi)
	wrapped.FillBytes(buf)
	return buf, nil
}

// unpackUnscaled reads a two's complement big-endian fixed-width array.
func unpackUnscaled(buf []byte) *big.Int {
	bi := new(big.Int).SetBytes(buf)
	if len(buf) > 0 && buf[0]&0x80 != 0 {
		wrap := new(big.Int).Lsh(big.NewInt(1), uint(8*len(buf)))
		bi.Sub(bi, wrap)
	}
	return bi
}

func daysSinceEpoch(t time.Time) int32 {
	t = t.UTC()
	midnight := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return int32(midnight.Unix() / secondsPerDay)
}

func dateFromDays(days int32) time.Time {
	return time.Unix(int64(days)*secondsPerDay, 0).UTC()
}

func millisOfDay(t time.Time) int32 {
	t = t.UTC()
	return int32(((t.Hour()*60+t.Minute())*60+t.Second())*1000 + t.Nanosecond()/1e6)
}

func timeFromMillis(ms int64) time.Time {
	return time.Unix(0, 0).UTC().Add(time.Duration(ms) * time.Millisecond)
}

func timeFromMicros(us int64) time.Time {
	return time.Unix(0, 0).UTC().Add(time.Duration(us) * time.Microsecond)
}

// timestampToInt96 encodes an instant in the legacy INT96 layout:
// nanoseconds within the day (little-endian int64) followed by the Julian
// day number (little-endian uint32).
func timestampToInt96(t time.Time) [12]byte {
	t = t.UTC()
	secs := t.Unix()
	days := secs / secondsPerDay
	rem := secs - days*secondsPerDay
	if rem < 0 {
		days--
		rem += secondsPerDay
	}
	nanos := rem*int64(time.Second) + int64(t.Nanosecond())

	var b [12]byte
	binary.LittleEndian.PutUint64(b[:8], uint64(nanos))
	binary.LittleEndian.PutUint32(b[8:], uint32(days+julianDayOfEpoch))
	return b
}

func int96ToTimestamp(b [12]byte) time.Time {
	nanos := int64(binary.LittleEndian.Uint64(b[:8]))
	days := int64(int32(binary.LittleEndian.Uint32(b[8:]))) - julianDayOfEpoch
	return time.Unix(days*secondsPerDay, nanos).UTC()
}

// decodeRow assembles a row from the nested map representation the decoder
// produces, restricted to (and ordered by) the fields of s. defs carries
// the matching external column definitions so annotation-dependent units
// (time and timestamp widths) decode correctly.
func decodeRow(s *schema.StructType, defs map[string]*parquetschema.ColumnDefinition, raw map[string]interface{}) (*schema.Row, error) {
	values := make([]interface{}, s.Len())
	for i, f := range s.Fields() {
		rv, present := raw[f.Name]
		if !present || rv == nil {
			values[i] = nil
			continue
		}
		v, err := decodeValue(f.Type, defs[f.Name], rv, f.Name)
		if err != nil {
			return nil, err
		}
		values[i] = v
	}
	return schema.NewRow(s, values...)
}

func decodeValue(dt schema.DataType, def *parquetschema.ColumnDefinition, raw interface{}, path string) (interface{}, error) {
	switch dt.ID {
	case schema.TypeBoolean:
		if b, ok := raw.(bool); ok {
			return b, nil
		}
	case schema.TypeByte:
		if n, ok := raw.(int32); ok {
			return int8(n), nil
		}
	case schema.TypeShort:
		if n, ok := raw.(int32); ok {
			if dt.Unsigned {
				return uint16(n), nil
			}
			return int16(n), nil
		}
	case schema.TypeInt:
		if n, ok := raw.(int32); ok {
			if dt.Unsigned {
				return uint32(n), nil
			}
			return n, nil
		}
	case schema.TypeLong:
		if n, ok := raw.(int64); ok {
			if dt.Unsigned {
				return uint64(n), nil
			}
			return n, nil
		}
	case schema.TypeFloat:
		if f, ok := raw.(float32); ok {
			return f, nil
		}
	case schema.TypeDouble:
		if f, ok := raw.(float64); ok {
			return f, nil
		}
	case schema.TypeString:
		if b, ok := raw.([]byte); ok {
			return string(b), nil
		}
	case schema.TypeBinary:
		if b, ok := raw.([]byte); ok {
			return b, nil
		}
	case schema.TypeDate:
		if n, ok := raw.(int32); ok {
			return dateFromDays(n), nil
		}
	case schema.TypeTime:
		return decodeTime(def, raw, path)
	case schema.TypeTimestamp:
		return decodeTimestamp(def, raw, path)
	case schema.TypeDecimal:
		return decodeDecimal(dt, raw, path)
	case schema.TypeBigInt:
		if b, ok := raw.([]byte); ok {
			return unpackUnscaled(b), nil
		}
	case schema.TypeStruct:
		nested, ok := raw.(map[string]interface{})
		if !ok {
			break
		}
		sub, err := schema.NewStructType(dt.Fields...)
		if err != nil {
			return nil, err
		}
		return decodeRow(sub, childDefs(def), nested)
	case schema.TypeArray:
		wrapper, ok := raw.(map[string]interface{})
		if !ok {
			break
		}
		entries, err := repeatedEntries(wrapper[listGroupName])
		if err != nil {
			return nil, errors.MalformedRecord(err, fmt.Sprintf("field %q: bad list shape", path))
		}
		elemDef := containerChild(def, 0)
		out := make([]interface{}, 0, len(entries))
		for _, entry := range entries {
			ev, present := entry[listElemName]
			if !present || ev == nil {
				out = append(out, nil)
				continue
			}
			v, err := decodeValue(*dt.Elem, elemDef, ev, path+"."+listElemName)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	case schema.TypeMap:
		wrapper, ok := raw.(map[string]interface{})
		if !ok {
			break
		}
		entries, err := repeatedEntries(wrapper[mapGroupName])
		if err != nil {
			return nil, errors.MalformedRecord(err, fmt.Sprintf("field %q: bad map shape", path))
		}
		keyDef := containerChild(def, 0)
		valueDef := containerChild(def, 1)
		out := make(map[interface{}]interface{}, len(entries))
		for _, entry := range entries {
			k, err := decodeValue(*dt.Key, keyDef, entry[mapKeyName], path+"."+mapKeyName)
			if err != nil {
				return nil, err
			}
			var v interface{}
			if mv, present := entry[mapValueName]; present && mv != nil {
				v, err = decodeValue(*dt.Value, valueDef, mv, path+"."+mapValueName)
				if err != nil {
					return nil, err
				}
			}
			out[k] = v
		}
		return out, nil
	default:
		return nil, errors.UnsupportedType(dt.String(), "")
	}

	return nil, errors.MalformedRecord(nil,
		fmt.Sprintf("field %q: cannot decode %T as %s", path, raw, dt))
}

func decodeTime(def *parquetschema.ColumnDefinition, raw interface{}, path string) (interface{}, error) {
	micros := annotated(def, parquet.ConvertedType_TIME_MICROS)
	switch n := raw.(type) {
	case int32:
		if micros {
			return timeFromMicros(int64(n)), nil
		}
		return timeFromMillis(int64(n)), nil
	case int64:
		if micros {
			return timeFromMicros(n), nil
		}
		return timeFromMillis(n), nil
	}
	return nil, errors.MalformedRecord(nil, fmt.Sprintf("field %q: cannot decode %T as time", path, raw))
}

func decodeTimestamp(def *parquetschema.ColumnDefinition, raw interface{}, path string) (interface{}, error) {
	switch n := raw.(type) {
	case [12]byte:
		return int96ToTimestamp(n), nil
	case int64:
		if annotated(def, parquet.ConvertedType_TIMESTAMP_MICROS) {
			return time.UnixMicro(n).UTC(), nil
		}
		return time.UnixMilli(n).UTC(), nil
	}
	return nil, errors.MalformedRecord(nil, fmt.Sprintf("field %q: cannot decode %T as timestamp", path, raw))
}

func decodeDecimal(dt schema.DataType, raw interface{}, path string) (interface{}, error) {
	switch v := raw.(type) {
	case []byte:
		return decimal.NewFromBigInt(unpackUnscaled(v), int32(-dt.Scale)), nil
	case int32:
		return decimal.New(int64(v), int32(-dt.Scale)), nil
	case int64:
		return decimal.New(v, int32(-dt.Scale)), nil
	}
	return nil, errors.MalformedRecord(nil, fmt.Sprintf("field %q: cannot decode %T as decimal", path, raw))
}

// repeatedEntries normalizes the decoder's representation of a repeated
// group, which may surface as a typed or untyped slice.
func repeatedEntries(raw interface{}) ([]map[string]interface{}, error) {
	switch entries := raw.(type) {
	case nil:
		return nil, nil
	case []map[string]interface{}:
		return entries, nil
	case []interface{}:
		out := make([]map[string]interface{}, 0, len(entries))
		for _, e := range entries {
			m, ok := e.(map[string]interface{})
			if !ok {
				return nil, fmt.Errorf("repeated entry is %T, not a group", e)
			}
			out = append(out, m)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("repeated group is %T, not a slice", raw)
	}
}

func annotated(def *parquetschema.ColumnDefinition, ct parquet.ConvertedType) bool {
	if def == nil || def.SchemaElement == nil || def.SchemaElement.ConvertedType == nil {
		return false
	}
	return *def.SchemaElement.ConvertedType == ct
}

// containerChild digs the i-th grandchild definition out of a LIST or MAP
// wrapper group; nil when the definition is unavailable.
func containerChild(def *parquetschema.ColumnDefinition, i int) *parquetschema.ColumnDefinition {
	if def == nil || len(def.Children) != 1 || len(def.Children[0].Children) <= i {
		return nil
	}
	return def.Children[0].Children[i]
}

func childDefs(def *parquetschema.ColumnDefinition) map[string]*parquetschema.ColumnDefinition {
	if def == nil {
		return nil
	}
	out := make(map[string]*parquetschema.ColumnDefinition, len(def.Children))
	for _, c := range def.Children {
		out[c.SchemaElement.Name] = c
	}
	return out
}
