// Package json provides the line-delimited JSON source connector. One
// object per line; the schema is inferred from the first object.
package json

import (
	"bufio"
	"context"
	"io"
	"os"
	"sort"

	gojson "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/strata-etl/strata/pkg/config"
	"github.com/strata-etl/strata/pkg/connector/core"
	"github.com/strata-etl/strata/pkg/errors"
	"github.com/strata-etl/strata/pkg/logger"
	"github.com/strata-etl/strata/pkg/schema"
)

// Source reads line-delimited JSON. Scalar JSON types map to Boolean,
// Double and String; nested objects and arrays are carried as their JSON
// text. Fields missing from a record decode as null.
type Source struct {
	cfg    *config.BaseConfig
	schema *schema.StructType
	log    *zap.Logger
}

// NewSource creates a JSON source from configuration.
func NewSource(cfg *config.BaseConfig) (core.Source, error) {
	if cfg.File.Path == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "json source requires file.path")
	}
	return &Source{
		cfg: cfg,
		log: logger.Get().With(
			zap.String("component", "json_source"),
			zap.String("path", cfg.File.Path)),
	}, nil
}

// Schema infers the schema from the first object in the file. Field names
// are sorted for a deterministic column order.
func (s *Source) Schema(ctx context.Context) (*schema.StructType, error) {
	if s.schema != nil {
		return s.schema, nil
	}

	f, err := os.Open(s.cfg.File.Path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line, err := nextLine(scanner)
	if err == io.EOF {
		return nil, errors.New(errors.ErrorTypeData, "json file is empty")
	}
	if err != nil {
		return nil, err
	}

	var obj map[string]interface{}
	if err := gojson.Unmarshal(line, &obj); err != nil {
		return nil, errors.MalformedRecord(err, "failed to parse first json object")
	}

	names := make([]string, 0, len(obj))
	for name := range obj {
		names = append(names, name)
	}
	sort.Strings(names)

	fields := make([]schema.Field, len(names))
	for i, name := range names {
		fields[i] = schema.Field{Name: name, Type: inferType(obj[name]), Nullable: true}
	}
	st, err := schema.NewStructType(fields...)
	if err != nil {
		return nil, err
	}
	s.schema = st
	return st, nil
}

// nextLine skips blank lines and returns io.EOF at end of input.
func nextLine(scanner *bufio.Scanner) ([]byte, error) {
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) > 0 {
			return line, nil
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}

func inferType(v interface{}) schema.DataType {
	switch v.(type) {
	case bool:
		return schema.Boolean
	case float64:
		return schema.Double
	default:
		return schema.String
	}
}

// Parts returns the file as a single part.
func (s *Source) Parts(ctx context.Context) ([]core.Part, error) {
	if _, err := s.Schema(ctx); err != nil {
		return nil, err
	}
	return []core.Part{&filePart{src: s, path: s.cfg.File.Path}}, nil
}

// Close releases source resources.
func (s *Source) Close(ctx context.Context) error { return nil }

type filePart struct {
	src  *Source
	path string
}

func (p *filePart) Name() string { return p.path }

func (p *filePart) Open(ctx context.Context) (core.RowIterator, error) {
	f, err := os.Open(p.path)
	if err != nil {
		return nil, err
	}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	return &rowIterator{src: p.src, file: f, scanner: scanner}, nil
}

type rowIterator struct {
	src     *Source
	file    *os.File
	scanner *bufio.Scanner
}

func (it *rowIterator) Next() (*schema.Row, error) {
	line, err := nextLine(it.scanner)
	if err != nil {
		return nil, err
	}

	var obj map[string]interface{}
	if err := gojson.Unmarshal(line, &obj); err != nil {
		return nil, errors.MalformedRecord(err, "failed to parse json object")
	}

	st := it.src.schema
	values := make([]interface{}, st.Len())
	for i, field := range st.Fields() {
		raw, ok := obj[field.Name]
		if !ok || raw == nil {
			continue
		}
		v, err := coerce(field, raw)
		if err != nil {
			return nil, err
		}
		values[i] = v
	}
	return schema.NewRow(st, values...)
}

func coerce(field schema.Field, raw interface{}) (interface{}, error) {
	switch field.Type.ID {
	case schema.TypeBoolean:
		if b, ok := raw.(bool); ok {
			return b, nil
		}
	case schema.TypeDouble:
		if f, ok := raw.(float64); ok {
			return f, nil
		}
	case schema.TypeString:
		if s, ok := raw.(string); ok {
			return s, nil
		}
		// Nested objects and arrays travel as their JSON text.
		text, err := gojson.Marshal(raw)
		if err != nil {
			return nil, errors.MalformedRecord(err, "failed to re-encode nested value")
		}
		return string(text), nil
	}
	return nil, errors.Newf(errors.ErrorTypeData,
		"field %s: value %T does not match inferred type %s", field.Name, raw, field.Type)
}

func (it *rowIterator) Close() error { return it.file.Close() }
