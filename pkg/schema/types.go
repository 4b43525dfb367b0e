// Package schema provides the typed, nullable, nested schema model that all
// Strata connectors exchange data through. A StructType describes the shape
// of a row stream; DataType is a recursive tagged variant covering primitive,
// temporal, decimal and container types.
//
// Schemas are immutable once constructed. Derived schemas (projections) are
// new values, never in-place mutations, so a StructType may be shared freely
// between concurrent readers.
package schema

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/strata-etl/strata/pkg/errors"
)

// TypeID identifies a DataType variant.
type TypeID uint8

const (
	// TypeBoolean is a true/false value.
	TypeBoolean TypeID = iota
	// TypeByte is a signed 8-bit integer.
	TypeByte
	// TypeShort is a 16-bit integer, signed or unsigned.
	TypeShort
	// TypeInt is a 32-bit integer, signed or unsigned.
	TypeInt
	// TypeLong is a 64-bit integer, signed or unsigned.
	TypeLong
	// TypeFloat is a 32-bit IEEE float.
	TypeFloat
	// TypeDouble is a 64-bit IEEE float.
	TypeDouble
	// TypeString is a UTF-8 string.
	TypeString
	// TypeBinary is an arbitrary byte sequence.
	TypeBinary
	// TypeDate is a calendar date without a time component.
	TypeDate
	// TypeTime is a time of day without a date component.
	TypeTime
	// TypeTimestamp is an instant with date and time components.
	TypeTimestamp
	// TypeDecimal is a fixed-precision decimal number.
	TypeDecimal
	// TypeBigInt is an unbounded integer. It is persisted as a fixed
	// 20-byte decimal with precision 38 and scale 0.
	TypeBigInt
	// TypeStruct is an ordered collection of named fields.
	TypeStruct
	// TypeArray is a variable-length sequence of one element type.
	TypeArray
	// TypeMap is a key/value mapping.
	TypeMap
)

// String returns the lower-case name of the type variant.
func (id TypeID) String() string {
	switch id {
	case TypeBoolean:
		return "boolean"
	case TypeByte:
		return "byte"
	case TypeShort:
		return "short"
	case TypeInt:
		return "int"
	case TypeLong:
		return "long"
	case TypeFloat:
		return "float"
	case TypeDouble:
		return "double"
	case TypeString:
		return "string"
	case TypeBinary:
		return "binary"
	case TypeDate:
		return "date"
	case TypeTime:
		return "time"
	case TypeTimestamp:
		return "timestamp"
	case TypeDecimal:
		return "decimal"
	case TypeBigInt:
		return "bigint"
	case TypeStruct:
		return "struct"
	case TypeArray:
		return "array"
	case TypeMap:
		return "map"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(id))
	}
}

// DataType is a recursive tagged variant describing the type of a single
// column. Only the fields relevant to the variant identified by ID are set;
// the zero value of the remaining fields is ignored.
type DataType struct {
	// ID selects the variant.
	ID TypeID
	// Unsigned distinguishes the unsigned flavors of Short, Int and Long.
	Unsigned bool
	// Precision and Scale describe Decimal types.
	Precision int
	Scale     int
	// Elem is the element type of an Array.
	Elem *DataType
	// Key and Value are the component types of a Map.
	Key   *DataType
	Value *DataType
	// Fields are the ordered members of a Struct.
	Fields []Field
}

// Primitive type values shared across the codebase. These are values, not
// pointers, so they can be copied freely.
var (
	Boolean   = DataType{ID: TypeBoolean}
	Byte      = DataType{ID: TypeByte}
	Short     = DataType{ID: TypeShort}
	UShort    = DataType{ID: TypeShort, Unsigned: true}
	Int       = DataType{ID: TypeInt}
	UInt      = DataType{ID: TypeInt, Unsigned: true}
	Long      = DataType{ID: TypeLong}
	ULong     = DataType{ID: TypeLong, Unsigned: true}
	Float     = DataType{ID: TypeFloat}
	Double    = DataType{ID: TypeDouble}
	String    = DataType{ID: TypeString}
	Binary    = DataType{ID: TypeBinary}
	Date      = DataType{ID: TypeDate}
	Time      = DataType{ID: TypeTime}
	Timestamp = DataType{ID: TypeTimestamp}
	BigInt    = DataType{ID: TypeBigInt}
)

// Decimal returns a decimal type with the given precision and scale.
func Decimal(precision, scale int) DataType {
	return DataType{ID: TypeDecimal, Precision: precision, Scale: scale}
}

// Array returns an array type with the given element type.
func Array(elem DataType) DataType {
	return DataType{ID: TypeArray, Elem: &elem}
}

// Map returns a map type with the given key and value types.
func Map(key, value DataType) DataType {
	return DataType{ID: TypeMap, Key: &key, Value: &value}
}

// Struct returns a struct type with the given ordered fields.
func Struct(fields ...Field) DataType {
	return DataType{ID: TypeStruct, Fields: fields}
}

// String renders the type in a compact human-readable form.
func (dt DataType) String() string {
	switch dt.ID {
	case TypeShort, TypeInt, TypeLong:
		if dt.Unsigned {
			return "u" + dt.ID.String()
		}
		return dt.ID.String()
	case TypeDecimal:
		return fmt.Sprintf("decimal(%d,%d)", dt.Precision, dt.Scale)
	case TypeArray:
		return fmt.Sprintf("array<%s>", dt.Elem)
	case TypeMap:
		return fmt.Sprintf("map<%s,%s>", dt.Key, dt.Value)
	case TypeStruct:
		names := make([]string, len(dt.Fields))
		for i, f := range dt.Fields {
			names[i] = f.Name + ":" + f.Type.String()
		}
		return "struct<" + strings.Join(names, ",") + ">"
	default:
		return dt.ID.String()
	}
}

// Equal reports whether two types are structurally identical, including
// signedness, precision/scale and nested field names and nullability.
func (dt DataType) Equal(other DataType) bool {
	if dt.ID != other.ID || dt.Unsigned != other.Unsigned {
		return false
	}
	switch dt.ID {
	case TypeDecimal:
		return dt.Precision == other.Precision && dt.Scale == other.Scale
	case TypeArray:
		return dt.Elem.Equal(*other.Elem)
	case TypeMap:
		return dt.Key.Equal(*other.Key) && dt.Value.Equal(*other.Value)
	case TypeStruct:
		if len(dt.Fields) != len(other.Fields) {
			return false
		}
		for i := range dt.Fields {
			if !dt.Fields[i].Equal(other.Fields[i]) {
				return false
			}
		}
		return true
	default:
		return true
	}
}

// Field is a named, typed, optionally nullable member of a StructType.
type Field struct {
	Name     string
	Type     DataType
	Nullable bool
}

// Equal reports whether two fields match in name, type and nullability.
func (f Field) Equal(other Field) bool {
	return f.Name == other.Name && f.Nullable == other.Nullable && f.Type.Equal(other.Type)
}

// StructType is an ordered, immutable sequence of fields. Field order is
// semantically significant: it defines physical column order and projection
// ordering.
type StructType struct {
	fields []Field
	// byName maps lower-cased field names to positions for the
	// case-insensitive lookups backing stores require.
	byName map[string]int
}

// NewStructType builds a schema from ordered fields. Field names must be
// unique within the struct, compared case-insensitively since backing stores
// may normalize case.
func NewStructType(fields ...Field) (*StructType, error) {
	byName := make(map[string]int, len(fields))
	for i, f := range fields {
		if f.Name == "" {
			return nil, errors.New(errors.ErrorTypeValidation, "schema field name must not be empty")
		}
		key := strings.ToLower(f.Name)
		if _, dup := byName[key]; dup {
			return nil, errors.New(errors.ErrorTypeValidation,
				fmt.Sprintf("duplicate field name %q in schema", f.Name))
		}
		byName[key] = i
	}
	owned := make([]Field, len(fields))
	copy(owned, fields)
	return &StructType{fields: owned, byName: byName}, nil
}

// MustStructType is NewStructType for statically known schemas; it panics on
// invalid field lists.
func MustStructType(fields ...Field) *StructType {
	s, err := NewStructType(fields...)
	if err != nil {
		panic(err)
	}
	return s
}

// Len returns the number of fields.
func (s *StructType) Len() int { return len(s.fields) }

// Field returns the field at position i.
func (s *StructType) Field(i int) Field { return s.fields[i] }

// Fields returns a copy of the ordered field list.
func (s *StructType) Fields() []Field {
	out := make([]Field, len(s.fields))
	copy(out, s.fields)
	return out
}

// FieldIndex resolves a field name to its position. The match is
// case-insensitive. The second return value is false if no field matches.
func (s *StructType) FieldIndex(name string) (int, bool) {
	i, ok := s.byName[strings.ToLower(name)]
	return i, ok
}

// FieldByName resolves a field by name, case-insensitively.
func (s *StructType) FieldByName(name string) (Field, bool) {
	i, ok := s.FieldIndex(name)
	if !ok {
		return Field{}, false
	}
	return s.fields[i], true
}

// Project derives a new schema restricted to the named fields, preserving
// the caller's requested order. Names resolve case-insensitively; the
// resulting schema keeps the declared field names, not the requested
// spelling. Unknown names fail with a field-not-found error.
func (s *StructType) Project(names ...string) (*StructType, error) {
	projected := make([]Field, 0, len(names))
	for _, name := range names {
		i, ok := s.FieldIndex(name)
		if !ok {
			return nil, errors.FieldNotFound(name)
		}
		projected = append(projected, s.fields[i])
	}
	return NewStructType(projected...)
}

// Equal reports whether two schemas have identical ordered fields.
func (s *StructType) Equal(other *StructType) bool {
	if s.Len() != other.Len() {
		return false
	}
	for i := range s.fields {
		if !s.fields[i].Equal(other.fields[i]) {
			return false
		}
	}
	return true
}

// String renders the schema as a struct type literal.
func (s *StructType) String() string {
	return Struct(s.fields...).String()
}

// BigIntByteWidth is the fixed byte width used to persist TypeBigInt values.
// Unbounded integers are always stored as a 20-byte decimal(38,0) so that
// conforming external readers can decode them without a dedicated type.
const BigIntByteWidth = 20

// DecimalByteWidth returns the smallest byte width w such that
// floor(log10(2^(8w-1) - 1)) >= precision, i.e. the narrowest two's
// complement fixed-length byte array that can hold any unscaled value of the
// given decimal precision.
func DecimalByteWidth(precision int) int {
	one := big.NewInt(1)
	for w := 1; ; w++ {
		max := new(big.Int).Lsh(one, uint(8*w-1))
		max.Sub(max, one)
		// floor(log10(max)) is the digit count minus one.
		if len(max.Text(10))-1 >= precision {
			return w
		}
	}
}
