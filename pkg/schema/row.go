package schema

import (
	"fmt"
	"math/big"
	"time"

	"github.com/shopspring/decimal"

	"github.com/strata-etl/strata/pkg/errors"
)

// Row is an ordered tuple of typed values bound to a schema. Values are
// positional: Values()[i] belongs to Schema().Field(i).
//
// Rows are immutable value objects constructed per record during decode and
// discarded after consumption by the downstream sink; nothing retains
// ownership beyond one pass, which is what makes streaming possible.
//
// The runtime shape expected per DataType:
//
//	Boolean          bool
//	Byte             int8
//	Short            int16 (uint16 when unsigned)
//	Int              int32 (uint32 when unsigned)
//	Long             int64 (uint64 when unsigned)
//	Float            float32
//	Double           float64
//	String           string
//	Binary           []byte
//	Date, Time,
//	Timestamp        time.Time
//	Decimal          decimal.Decimal
//	BigInt           *big.Int
//	Struct           *Row
//	Array            []interface{}
//	Map              map[interface{}]interface{}
//
// A nil value is permitted for any nullable field. Array elements, map keys
// and map values are never nil; the columnar layout stores them as required
// positions.
type Row struct {
	schema *StructType
	values []interface{}
}

// NewRow binds ordered values to a schema. The value count must match the
// schema's field count. Value shapes are not checked here; use Validate for
// the structural check.
func NewRow(s *StructType, values ...interface{}) (*Row, error) {
	if len(values) != s.Len() {
		return nil, errors.Newf(errors.ErrorTypeValidation,
			"row has %d values for %d schema fields", len(values), s.Len())
	}
	owned := make([]interface{}, len(values))
	copy(owned, values)
	return &Row{schema: s, values: owned}, nil
}

// MustNewRow is NewRow for statically known rows; it panics on arity
// mismatch.
func MustNewRow(s *StructType, values ...interface{}) *Row {
	r, err := NewRow(s, values...)
	if err != nil {
		panic(err)
	}
	return r
}

// Schema returns the schema the row is bound to.
func (r *Row) Schema() *StructType { return r.schema }

// Len returns the number of values.
func (r *Row) Len() int { return len(r.values) }

// Value returns the value at position i.
func (r *Row) Value(i int) interface{} { return r.values[i] }

// ValueByName returns the value of the named field, resolved
// case-insensitively.
func (r *Row) ValueByName(name string) (interface{}, bool) {
	i, ok := r.schema.FieldIndex(name)
	if !ok {
		return nil, false
	}
	return r.values[i], true
}

// Values returns a copy of the ordered value tuple.
func (r *Row) Values() []interface{} {
	out := make([]interface{}, len(r.values))
	copy(out, r.values)
	return out
}

// Project produces a new row restricted to the named fields in the caller's
// requested order. The original row is left untouched.
func (r *Row) Project(names ...string) (*Row, error) {
	projected, err := r.schema.Project(names...)
	if err != nil {
		return nil, err
	}
	values := make([]interface{}, 0, len(names))
	for _, name := range names {
		i, _ := r.schema.FieldIndex(name)
		values = append(values, r.values[i])
	}
	return &Row{schema: projected, values: values}, nil
}

// Validate checks every value's runtime shape against the corresponding
// field's DataType, recursing into nested structs, arrays and maps.
func (r *Row) Validate() error {
	for i, f := range r.schema.fields {
		if err := checkValue(f.Type, f.Nullable, r.values[i]); err != nil {
			return errors.Wrap(err, errors.ErrorTypeValidation,
				fmt.Sprintf("field %q has incompatible value", f.Name))
		}
	}
	return nil
}

func checkValue(dt DataType, nullable bool, v interface{}) error {
	if v == nil {
		if !nullable {
			return errors.New(errors.ErrorTypeValidation, "null value for non-nullable field")
		}
		return nil
	}

	ok := false
	switch dt.ID {
	case TypeBoolean:
		_, ok = v.(bool)
	case TypeByte:
		_, ok = v.(int8)
	case TypeShort:
		if dt.Unsigned {
			_, ok = v.(uint16)
		} else {
			_, ok = v.(int16)
		}
	case TypeInt:
		if dt.Unsigned {
			_, ok = v.(uint32)
		} else {
			_, ok = v.(int32)
		}
	case TypeLong:
		if dt.Unsigned {
			_, ok = v.(uint64)
		} else {
			_, ok = v.(int64)
		}
	case TypeFloat:
		_, ok = v.(float32)
	case TypeDouble:
		_, ok = v.(float64)
	case TypeString:
		_, ok = v.(string)
	case TypeBinary:
		_, ok = v.([]byte)
	case TypeDate, TypeTime, TypeTimestamp:
		_, ok = v.(time.Time)
	case TypeDecimal:
		_, ok = v.(decimal.Decimal)
	case TypeBigInt:
		_, ok = v.(*big.Int)
	case TypeStruct:
		sub, isRow := v.(*Row)
		if !isRow {
			return errors.Newf(errors.ErrorTypeValidation, "expected nested row, got %T", v)
		}
		if sub.Len() != len(dt.Fields) {
			return errors.Newf(errors.ErrorTypeValidation,
				"nested row has %d values for %d fields", sub.Len(), len(dt.Fields))
		}
		for i, f := range dt.Fields {
			if err := checkValue(f.Type, f.Nullable, sub.Value(i)); err != nil {
				return err
			}
		}
		return nil
	case TypeArray:
		elems, isSlice := v.([]interface{})
		if !isSlice {
			return errors.Newf(errors.ErrorTypeValidation, "expected slice, got %T", v)
		}
		for _, e := range elems {
			if e == nil {
				return errors.New(errors.ErrorTypeValidation, "null array element is not representable")
			}
			if err := checkValue(*dt.Elem, false, e); err != nil {
				return err
			}
		}
		return nil
	case TypeMap:
		entries, isMap := v.(map[interface{}]interface{})
		if !isMap {
			return errors.Newf(errors.ErrorTypeValidation, "expected map, got %T", v)
		}
		for k, mv := range entries {
			if err := checkValue(*dt.Key, false, k); err != nil {
				return err
			}
			if mv == nil {
				return errors.New(errors.ErrorTypeValidation, "null map value is not representable")
			}
			if err := checkValue(*dt.Value, false, mv); err != nil {
				return err
			}
		}
		return nil
	default:
		return errors.Newf(errors.ErrorTypeValidation, "unknown type id %d", dt.ID)
	}

	if !ok {
		return errors.Newf(errors.ErrorTypeValidation, "value %T is not a %s", v, dt)
	}
	return nil
}
