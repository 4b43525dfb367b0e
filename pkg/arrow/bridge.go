// Package arrow bridges flat row batches to Arrow record batches for
// interchange with Arrow-native tooling. Nested field types are outside
// its scope; callers flatten or reject them first.
package arrow

import (
	"math/big"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/decimal128"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/shopspring/decimal"

	"github.com/strata-etl/strata/pkg/errors"
	"github.com/strata-etl/strata/pkg/schema"
)

// ToArrowSchema converts a flat schema to its Arrow equivalent.
func ToArrowSchema(st *schema.StructType) (*arrow.Schema, error) {
	fields := make([]arrow.Field, st.Len())
	for i, f := range st.Fields() {
		at, err := arrowType(f.Type)
		if err != nil {
			return nil, err
		}
		fields[i] = arrow.Field{Name: f.Name, Type: at, Nullable: f.Nullable}
	}
	return arrow.NewSchema(fields, nil), nil
}

func arrowType(t schema.DataType) (arrow.DataType, error) {
	switch t.ID {
	case schema.TypeBoolean:
		return arrow.FixedWidthTypes.Boolean, nil
	case schema.TypeByte:
		return arrow.PrimitiveTypes.Int8, nil
	case schema.TypeShort:
		if t.Unsigned {
			return arrow.PrimitiveTypes.Uint16, nil
		}
		return arrow.PrimitiveTypes.Int16, nil
	case schema.TypeInt:
		if t.Unsigned {
			return arrow.PrimitiveTypes.Uint32, nil
		}
		return arrow.PrimitiveTypes.Int32, nil
	case schema.TypeLong:
		if t.Unsigned {
			return arrow.PrimitiveTypes.Uint64, nil
		}
		return arrow.PrimitiveTypes.Int64, nil
	case schema.TypeFloat:
		return arrow.PrimitiveTypes.Float32, nil
	case schema.TypeDouble:
		return arrow.PrimitiveTypes.Float64, nil
	case schema.TypeString:
		return arrow.BinaryTypes.String, nil
	case schema.TypeBinary:
		return arrow.BinaryTypes.Binary, nil
	case schema.TypeDate:
		return arrow.FixedWidthTypes.Date32, nil
	case schema.TypeTime:
		return arrow.FixedWidthTypes.Time64us, nil
	case schema.TypeTimestamp:
		return arrow.FixedWidthTypes.Timestamp_ns, nil
	case schema.TypeDecimal:
		return &arrow.Decimal128Type{Precision: int32(t.Precision), Scale: int32(t.Scale)}, nil
	case schema.TypeBigInt:
		return &arrow.Decimal128Type{Precision: 38, Scale: 0}, nil
	default:
		return nil, errors.UnsupportedType(t.String(), "arrow bridge")
	}
}

// FromArrowSchema converts a flat Arrow schema back.
func FromArrowSchema(as *arrow.Schema) (*schema.StructType, error) {
	fields := make([]schema.Field, len(as.Fields()))
	for i, f := range as.Fields() {
		t, err := dataType(f.Type)
		if err != nil {
			return nil, err
		}
		fields[i] = schema.Field{Name: f.Name, Type: t, Nullable: f.Nullable}
	}
	return schema.NewStructType(fields...)
}

func dataType(at arrow.DataType) (schema.DataType, error) {
	switch at := at.(type) {
	case *arrow.BooleanType:
		return schema.Boolean, nil
	case *arrow.Int8Type:
		return schema.Byte, nil
	case *arrow.Int16Type:
		return schema.Short, nil
	case *arrow.Uint16Type:
		return schema.UShort, nil
	case *arrow.Int32Type:
		return schema.Int, nil
	case *arrow.Uint32Type:
		return schema.UInt, nil
	case *arrow.Int64Type:
		return schema.Long, nil
	case *arrow.Uint64Type:
		return schema.ULong, nil
	case *arrow.Float32Type:
		return schema.Float, nil
	case *arrow.Float64Type:
		return schema.Double, nil
	case *arrow.StringType:
		return schema.String, nil
	case *arrow.BinaryType:
		return schema.Binary, nil
	case *arrow.Date32Type:
		return schema.Date, nil
	case *arrow.Time64Type:
		return schema.Time, nil
	case *arrow.TimestampType:
		return schema.Timestamp, nil
	case *arrow.Decimal128Type:
		return schema.Decimal(int(at.Precision), int(at.Scale)), nil
	default:
		return schema.DataType{}, errors.UnsupportedType(at.Name(), "arrow bridge")
	}
}

// RecordFromRows builds one Arrow record batch from rows. The caller is
// responsible for releasing the returned record.
func RecordFromRows(mem memory.Allocator, st *schema.StructType, rows []*schema.Row) (arrow.Record, error) {
	if mem == nil {
		mem = memory.DefaultAllocator
	}
	as, err := ToArrowSchema(st)
	if err != nil {
		return nil, err
	}

	rb := array.NewRecordBuilder(mem, as)
	defer rb.Release()

	for _, row := range rows {
		for i := 0; i < st.Len(); i++ {
			if err := appendValue(rb.Field(i), row.Value(i)); err != nil {
				return nil, err
			}
		}
	}
	return rb.NewRecord(), nil
}

func appendValue(builder array.Builder, value interface{}) error {
	if value == nil {
		builder.AppendNull()
		return nil
	}

	switch b := builder.(type) {
	case *array.BooleanBuilder:
		if v, ok := value.(bool); ok {
			b.Append(v)
			return nil
		}
	case *array.Int8Builder:
		if v, ok := value.(int8); ok {
			b.Append(v)
			return nil
		}
	case *array.Int16Builder:
		if v, ok := value.(int16); ok {
			b.Append(v)
			return nil
		}
	case *array.Uint16Builder:
		if v, ok := value.(uint16); ok {
			b.Append(v)
			return nil
		}
	case *array.Int32Builder:
		if v, ok := value.(int32); ok {
			b.Append(v)
			return nil
		}
	case *array.Uint32Builder:
		if v, ok := value.(uint32); ok {
			b.Append(v)
			return nil
		}
	case *array.Int64Builder:
		if v, ok := value.(int64); ok {
			b.Append(v)
			return nil
		}
	case *array.Uint64Builder:
		if v, ok := value.(uint64); ok {
			b.Append(v)
			return nil
		}
	case *array.Float32Builder:
		if v, ok := value.(float32); ok {
			b.Append(v)
			return nil
		}
	case *array.Float64Builder:
		if v, ok := value.(float64); ok {
			b.Append(v)
			return nil
		}
	case *array.StringBuilder:
		if v, ok := value.(string); ok {
			b.Append(v)
			return nil
		}
	case *array.BinaryBuilder:
		if v, ok := value.([]byte); ok {
			b.Append(v)
			return nil
		}
	case *array.Date32Builder:
		if v, ok := value.(time.Time); ok {
			b.Append(arrow.Date32FromTime(v))
			return nil
		}
	case *array.Time64Builder:
		if v, ok := value.(time.Time); ok {
			b.Append(arrow.Time64(microsOfDay(v)))
			return nil
		}
	case *array.TimestampBuilder:
		if v, ok := value.(time.Time); ok {
			b.Append(arrow.Timestamp(v.UnixNano()))
			return nil
		}
	case *array.Decimal128Builder:
		switch v := value.(type) {
		case decimal.Decimal:
			dt := b.Type().(*arrow.Decimal128Type)
			scaled := v.Shift(dt.Scale).BigInt()
			b.Append(decimal128.FromBigInt(scaled))
			return nil
		case *big.Int:
			b.Append(decimal128.FromBigInt(v))
			return nil
		}
	}
	return errors.Newf(errors.ErrorTypeData,
		"value %T does not fit arrow builder %T", value, builder)
}

func microsOfDay(t time.Time) int64 {
	t = t.UTC()
	midnight := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return t.Sub(midnight).Microseconds()
}

// RowsFromRecord converts one Arrow record batch back to rows.
func RowsFromRecord(st *schema.StructType, rec arrow.Record) ([]*schema.Row, error) {
	rows := make([]*schema.Row, 0, rec.NumRows())
	for i := 0; i < int(rec.NumRows()); i++ {
		values := make([]interface{}, st.Len())
		for c := 0; c < st.Len(); c++ {
			col := rec.Column(c)
			if col.IsNull(i) {
				continue
			}
			v, err := columnValue(st.Field(c), col, i)
			if err != nil {
				return nil, err
			}
			values[c] = v
		}
		row, err := schema.NewRow(st, values...)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func columnValue(field schema.Field, col arrow.Array, i int) (interface{}, error) {
	switch col := col.(type) {
	case *array.Boolean:
		return col.Value(i), nil
	case *array.Int8:
		return col.Value(i), nil
	case *array.Int16:
		return col.Value(i), nil
	case *array.Uint16:
		return col.Value(i), nil
	case *array.Int32:
		return col.Value(i), nil
	case *array.Uint32:
		return col.Value(i), nil
	case *array.Int64:
		return col.Value(i), nil
	case *array.Uint64:
		return col.Value(i), nil
	case *array.Float32:
		return col.Value(i), nil
	case *array.Float64:
		return col.Value(i), nil
	case *array.String:
		return col.Value(i), nil
	case *array.Binary:
		return col.Value(i), nil
	case *array.Date32:
		return col.Value(i).ToTime(), nil
	case *array.Time64:
		return time.UnixMicro(int64(col.Value(i))).UTC(), nil
	case *array.Timestamp:
		return time.Unix(0, int64(col.Value(i))).UTC(), nil
	case *array.Decimal128:
		num := col.Value(i)
		unscaled := num.BigInt()
		if field.Type.ID == schema.TypeBigInt {
			return unscaled, nil
		}
		dt := col.DataType().(*arrow.Decimal128Type)
		return decimal.NewFromBigInt(unscaled, -dt.Scale), nil
	default:
		return nil, errors.UnsupportedType(col.DataType().Name(), "arrow bridge")
	}
}
