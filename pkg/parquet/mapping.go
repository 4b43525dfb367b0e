// Package parquet implements the columnar codec at the center of Strata: a
// bidirectional, round-trip-safe mapping between the internal schema model
// and the parquet physical/logical type system, a lazy streaming reader with
// projection and predicate pushdown, and a streaming writer with
// configurable compression, sizing and encoding options.
package parquet

import (
	"github.com/fraugster/parquet-go/parquet"
	"github.com/fraugster/parquet-go/parquetschema"

	"github.com/strata-etl/strata/pkg/errors"
	"github.com/strata-etl/strata/pkg/schema"
)

// Names used for the container group conventions the writer emits. Files
// stay readable by conforming third-party readers because these follow the
// standard LIST and MAP group shapes.
const (
	listGroupName  = "list"
	listElemName   = "element"
	mapGroupName   = "key_value"
	mapKeyName     = "key"
	mapValueName   = "value"
	rootSchemaName = "strata_schema"
)

// Default precision/scale assumed when an integer column carries a decimal
// annotation without separately recorded metadata.
const (
	defaultInt32DecimalPrecision = 9
	defaultInt64DecimalPrecision = 18
	defaultIntDecimalScale       = 2
)

// ExternalTypeOf translates an internal field into a parquet column
// definition (physical type plus logical annotation). The mapping is total
// for representable types; an unknown DataType yields a typed
// unsupported-type failure before any bytes are written.
func ExternalTypeOf(f schema.Field) (*parquetschema.ColumnDefinition, error) {
	rep := parquet.FieldRepetitionType_REQUIRED
	if f.Nullable {
		rep = parquet.FieldRepetitionType_OPTIONAL
	}
	return columnOf(f.Name, f.Type, rep)
}

func columnOf(name string, dt schema.DataType, rep parquet.FieldRepetitionType) (*parquetschema.ColumnDefinition, error) {
	elem := &parquet.SchemaElement{
		Name:           name,
		RepetitionType: parquet.FieldRepetitionTypePtr(rep),
	}
	def := &parquetschema.ColumnDefinition{SchemaElement: elem}

	switch dt.ID {
	case schema.TypeBoolean:
		elem.Type = parquet.TypePtr(parquet.Type_BOOLEAN)
	case schema.TypeByte:
		elem.Type = parquet.TypePtr(parquet.Type_INT32)
		elem.ConvertedType = parquet.ConvertedTypePtr(parquet.ConvertedType_INT_8)
	case schema.TypeShort:
		elem.Type = parquet.TypePtr(parquet.Type_INT32)
		if dt.Unsigned {
			// Both unsigned short widths annotate as UINT_16 on
			// write; the two precisions are indistinguishable after
			// a round trip. Known lossy mapping, kept for external
			// reader compatibility.
			elem.ConvertedType = parquet.ConvertedTypePtr(parquet.ConvertedType_UINT_16)
		} else {
			elem.ConvertedType = parquet.ConvertedTypePtr(parquet.ConvertedType_INT_16)
		}
	case schema.TypeInt:
		elem.Type = parquet.TypePtr(parquet.Type_INT32)
		if dt.Unsigned {
			elem.ConvertedType = parquet.ConvertedTypePtr(parquet.ConvertedType_UINT_32)
		}
	case schema.TypeLong:
		elem.Type = parquet.TypePtr(parquet.Type_INT64)
		if dt.Unsigned {
			elem.ConvertedType = parquet.ConvertedTypePtr(parquet.ConvertedType_UINT_64)
		}
	case schema.TypeFloat:
		elem.Type = parquet.TypePtr(parquet.Type_FLOAT)
	case schema.TypeDouble:
		elem.Type = parquet.TypePtr(parquet.Type_DOUBLE)
	case schema.TypeString:
		elem.Type = parquet.TypePtr(parquet.Type_BYTE_ARRAY)
		elem.ConvertedType = parquet.ConvertedTypePtr(parquet.ConvertedType_UTF8)
	case schema.TypeBinary:
		elem.Type = parquet.TypePtr(parquet.Type_BYTE_ARRAY)
	case schema.TypeDate:
		elem.Type = parquet.TypePtr(parquet.Type_INT32)
		elem.ConvertedType = parquet.ConvertedTypePtr(parquet.ConvertedType_DATE)
	case schema.TypeTime:
		elem.Type = parquet.TypePtr(parquet.Type_INT32)
		elem.ConvertedType = parquet.ConvertedTypePtr(parquet.ConvertedType_TIME_MILLIS)
	case schema.TypeTimestamp:
		// INT96 deliberately carries no logical annotation in either
		// direction, for backward-compatible reader support.
		elem.Type = parquet.TypePtr(parquet.Type_INT96)
	case schema.TypeDecimal:
		width := schema.DecimalByteWidth(dt.Precision)
		elem.Type = parquet.TypePtr(parquet.Type_FIXED_LEN_BYTE_ARRAY)
		elem.TypeLength = int32Ptr(int32(width))
		elem.ConvertedType = parquet.ConvertedTypePtr(parquet.ConvertedType_DECIMAL)
		elem.Precision = int32Ptr(int32(dt.Precision))
		elem.Scale = int32Ptr(int32(dt.Scale))
	case schema.TypeBigInt:
		elem.Type = parquet.TypePtr(parquet.Type_FIXED_LEN_BYTE_ARRAY)
		elem.TypeLength = int32Ptr(schema.BigIntByteWidth)
		elem.ConvertedType = parquet.ConvertedTypePtr(parquet.ConvertedType_DECIMAL)
		elem.Precision = int32Ptr(38)
		elem.Scale = int32Ptr(0)
	case schema.TypeStruct:
		for _, child := range dt.Fields {
			childDef, err := ExternalTypeOf(child)
			if err != nil {
				return nil, err
			}
			def.Children = append(def.Children, childDef)
		}
	case schema.TypeArray:
		elem.ConvertedType = parquet.ConvertedTypePtr(parquet.ConvertedType_LIST)
		elemDef, err := columnOf(listElemName, *dt.Elem, parquet.FieldRepetitionType_REQUIRED)
		if err != nil {
			return nil, err
		}
		def.Children = []*parquetschema.ColumnDefinition{{
			SchemaElement: &parquet.SchemaElement{
				Name:           listGroupName,
				RepetitionType: parquet.FieldRepetitionTypePtr(parquet.FieldRepetitionType_REPEATED),
			},
			Children: []*parquetschema.ColumnDefinition{elemDef},
		}}
	case schema.TypeMap:
		elem.ConvertedType = parquet.ConvertedTypePtr(parquet.ConvertedType_MAP)
		keyDef, err := columnOf(mapKeyName, *dt.Key, parquet.FieldRepetitionType_REQUIRED)
		if err != nil {
			return nil, err
		}
		valueDef, err := columnOf(mapValueName, *dt.Value, parquet.FieldRepetitionType_REQUIRED)
		if err != nil {
			return nil, err
		}
		def.Children = []*parquetschema.ColumnDefinition{{
			SchemaElement: &parquet.SchemaElement{
				Name:           mapGroupName,
				RepetitionType: parquet.FieldRepetitionTypePtr(parquet.FieldRepetitionType_REPEATED),
				ConvertedType:  parquet.ConvertedTypePtr(parquet.ConvertedType_MAP_KEY_VALUE),
			},
			Children: []*parquetschema.ColumnDefinition{keyDef, valueDef},
		}}
	default:
		return nil, errors.UnsupportedType(dt.String(), "")
	}

	return def, nil
}

// InternalTypeOf translates a parquet column definition back into an
// internal field via an exhaustive match over the (physical type,
// annotation) pair. Combinations outside the mapping table fail with a
// typed unsupported-type error; the type is never guessed.
func InternalTypeOf(def *parquetschema.ColumnDefinition) (schema.Field, error) {
	elem := def.SchemaElement
	nullable := elem.GetRepetitionType() == parquet.FieldRepetitionType_OPTIONAL

	if elem.Type == nil {
		dt, err := groupType(def)
		if err != nil {
			return schema.Field{}, err
		}
		return schema.Field{Name: elem.Name, Type: dt, Nullable: nullable}, nil
	}

	dt, err := primitiveType(elem)
	if err != nil {
		return schema.Field{}, err
	}
	return schema.Field{Name: elem.Name, Type: dt, Nullable: nullable}, nil
}

func groupType(def *parquetschema.ColumnDefinition) (schema.DataType, error) {
	elem := def.SchemaElement

	if elem.ConvertedType != nil {
		switch *elem.ConvertedType {
		case parquet.ConvertedType_LIST:
			if len(def.Children) == 1 && len(def.Children[0].Children) == 1 {
				elemField, err := InternalTypeOf(def.Children[0].Children[0])
				if err != nil {
					return schema.DataType{}, err
				}
				return schema.Array(elemField.Type), nil
			}
			return schema.DataType{}, errors.UnsupportedType("group", "LIST with non-standard shape")
		case parquet.ConvertedType_MAP, parquet.ConvertedType_MAP_KEY_VALUE:
			if len(def.Children) == 1 && len(def.Children[0].Children) == 2 {
				keyField, err := InternalTypeOf(def.Children[0].Children[0])
				if err != nil {
					return schema.DataType{}, err
				}
				valueField, err := InternalTypeOf(def.Children[0].Children[1])
				if err != nil {
					return schema.DataType{}, err
				}
				return schema.Map(keyField.Type, valueField.Type), nil
			}
			return schema.DataType{}, errors.UnsupportedType("group", "MAP with non-standard shape")
		}
	}

	fields := make([]schema.Field, 0, len(def.Children))
	for _, child := range def.Children {
		f, err := InternalTypeOf(child)
		if err != nil {
			return schema.DataType{}, err
		}
		fields = append(fields, f)
	}
	return schema.Struct(fields...), nil
}

func primitiveType(elem *parquet.SchemaElement) (schema.DataType, error) {
	physical := elem.GetType()
	annotation := ""
	if elem.ConvertedType != nil {
		annotation = elem.ConvertedType.String()
	}

	switch physical {
	case parquet.Type_BOOLEAN:
		if elem.ConvertedType == nil {
			return schema.Boolean, nil
		}
	case parquet.Type_FLOAT:
		if elem.ConvertedType == nil {
			return schema.Float, nil
		}
	case parquet.Type_DOUBLE:
		if elem.ConvertedType == nil {
			return schema.Double, nil
		}
	case parquet.Type_BYTE_ARRAY:
		if elem.ConvertedType == nil {
			return schema.Binary, nil
		}
		if *elem.ConvertedType == parquet.ConvertedType_UTF8 {
			return schema.String, nil
		}
	case parquet.Type_FIXED_LEN_BYTE_ARRAY:
		if elem.ConvertedType == nil {
			return schema.Binary, nil
		}
		if *elem.ConvertedType == parquet.ConvertedType_DECIMAL {
			return schema.Decimal(int(elem.GetPrecision()), int(elem.GetScale())), nil
		}
	case parquet.Type_INT32:
		if elem.ConvertedType == nil {
			return schema.Int, nil
		}
		switch *elem.ConvertedType {
		case parquet.ConvertedType_UINT_32:
			return schema.UInt, nil
		case parquet.ConvertedType_UINT_16, parquet.ConvertedType_UINT_8:
			return schema.UShort, nil
		case parquet.ConvertedType_INT_16, parquet.ConvertedType_INT_8:
			return schema.Short, nil
		case parquet.ConvertedType_TIME_MILLIS, parquet.ConvertedType_TIME_MICROS:
			return schema.Time, nil
		case parquet.ConvertedType_DATE:
			return schema.Date, nil
		case parquet.ConvertedType_DECIMAL:
			return int32Decimal(elem), nil
		}
	case parquet.Type_INT64:
		if elem.ConvertedType == nil {
			return schema.Long, nil
		}
		switch *elem.ConvertedType {
		case parquet.ConvertedType_UINT_64:
			return schema.ULong, nil
		case parquet.ConvertedType_TIME_MILLIS, parquet.ConvertedType_TIME_MICROS:
			return schema.Time, nil
		case parquet.ConvertedType_TIMESTAMP_MILLIS, parquet.ConvertedType_TIMESTAMP_MICROS:
			return schema.Timestamp, nil
		case parquet.ConvertedType_DECIMAL:
			return int64Decimal(elem), nil
		}
	case parquet.Type_INT96:
		// Legacy timestamp encoding; the format never tags INT96.
		if elem.ConvertedType == nil {
			return schema.Timestamp, nil
		}
	}

	return schema.DataType{}, errors.UnsupportedType(physical.String(), annotation)
}

func int32Decimal(elem *parquet.SchemaElement) schema.DataType {
	if elem.Precision != nil && elem.GetPrecision() > 0 {
		return schema.Decimal(int(elem.GetPrecision()), int(elem.GetScale()))
	}
	return schema.Decimal(defaultInt32DecimalPrecision, defaultIntDecimalScale)
}

func int64Decimal(elem *parquet.SchemaElement) schema.DataType {
	if elem.Precision != nil && elem.GetPrecision() > 0 {
		return schema.Decimal(int(elem.GetPrecision()), int(elem.GetScale()))
	}
	return schema.Decimal(defaultInt64DecimalPrecision, defaultIntDecimalScale)
}

// ToSchemaDefinition translates a full schema into the parquet schema
// definition embedded in a file footer.
func ToSchemaDefinition(s *schema.StructType) (*parquetschema.SchemaDefinition, error) {
	root := &parquetschema.ColumnDefinition{
		SchemaElement: &parquet.SchemaElement{Name: rootSchemaName},
	}
	for _, f := range s.Fields() {
		def, err := ExternalTypeOf(f)
		if err != nil {
			return nil, err
		}
		root.Children = append(root.Children, def)
	}
	return &parquetschema.SchemaDefinition{RootColumn: root}, nil
}

// FromSchemaDefinition translates an embedded footer schema into the
// internal schema model, field by field.
func FromSchemaDefinition(sd *parquetschema.SchemaDefinition) (*schema.StructType, error) {
	if sd == nil || sd.RootColumn == nil {
		return nil, errors.New(errors.ErrorTypeMalformedRecord, "file carries no schema definition")
	}
	fields := make([]schema.Field, 0, len(sd.RootColumn.Children))
	for _, child := range sd.RootColumn.Children {
		f, err := InternalTypeOf(child)
		if err != nil {
			return nil, err
		}
		fields = append(fields, f)
	}
	return schema.NewStructType(fields...)
}

func int32Ptr(v int32) *int32 { return &v }
