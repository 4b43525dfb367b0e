// Package csv provides the delimited-text source connector. Every column
// is surfaced as a nullable string; downstream transforms or sinks apply
// any stronger typing.
package csv

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/strata-etl/strata/pkg/config"
	"github.com/strata-etl/strata/pkg/connector/core"
	"github.com/strata-etl/strata/pkg/errors"
	"github.com/strata-etl/strata/pkg/logger"
	"github.com/strata-etl/strata/pkg/schema"
)

// Source reads a delimited text file. The delimiter is a single
// configurable rune so formats like "1>2>3>4" parse with Delimiter ">".
type Source struct {
	cfg    *config.BaseConfig
	schema *schema.StructType
	log    *zap.Logger
}

// NewSource creates a CSV source from configuration.
func NewSource(cfg *config.BaseConfig) (core.Source, error) {
	if cfg.File.Path == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "csv source requires file.path")
	}
	if len([]rune(delimiter(cfg))) != 1 {
		return nil, errors.New(errors.ErrorTypeConfig, "csv delimiter must be a single character")
	}
	return &Source{
		cfg: cfg,
		log: logger.Get().With(
			zap.String("component", "csv_source"),
			zap.String("path", cfg.File.Path)),
	}, nil
}

func delimiter(cfg *config.BaseConfig) string {
	if cfg.File.Delimiter == "" {
		return ","
	}
	return cfg.File.Delimiter
}

// Schema reads the header row and reports every column as a nullable
// string. Headerless files get generated column names.
func (s *Source) Schema(ctx context.Context) (*schema.StructType, error) {
	if s.schema != nil {
		return s.schema, nil
	}

	f, err := os.Open(s.cfg.File.Path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := s.newReader(f)
	first, err := r.Read()
	if err == io.EOF {
		return nil, errors.New(errors.ErrorTypeData, "csv file is empty")
	}
	if err != nil {
		return nil, errors.MalformedRecord(err, "failed to read csv header")
	}

	names := make([]string, len(first))
	if s.cfg.File.HasHeader {
		copy(names, first)
	} else {
		for i := range first {
			names[i] = generatedName(i)
		}
	}

	fields := make([]schema.Field, len(names))
	for i, name := range names {
		fields[i] = schema.Field{Name: name, Type: schema.String, Nullable: true}
	}
	st, err := schema.NewStructType(fields...)
	if err != nil {
		return nil, err
	}
	s.schema = st
	return st, nil
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

func (s *Source) newReader(f *os.File) *csv.Reader {
	r := csv.NewReader(f)
	r.Comma = []rune(delimiter(s.cfg))[0]
	r.FieldsPerRecord = -1
	return r
}

func generatedName(i int) string {
	return fmt.Sprintf("column_%d", i)
}

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
	r := p.src.newReader(f)
	if p.src.cfg.File.HasHeader {
		if _, err := r.Read(); err != nil && err != io.EOF {
			f.Close()
			return nil, errors.MalformedRecord(err, "failed to skip csv header")
		}
	}
	return &rowIterator{src: p.src, file: f, reader: r}, nil
}

type rowIterator struct {
	src    *Source
	file   *os.File
	reader *csv.Reader
}

func (it *rowIterator) Next() (*schema.Row, error) {
	record, err := it.reader.Read()
	if err == io.EOF {
		return nil, io.EOF
	}
	if err != nil {
		return nil, errors.MalformedRecord(err, "failed to parse csv record")
	}

	st := it.src.schema
	values := make([]interface{}, st.Len())
	for i := range values {
		if i >= len(record) {
			continue
		}
		v := record[i]
		if it.src.cfg.File.TrimSpaces {
			v = strings.TrimSpace(v)
		}
		if it.isNull(v) {
			continue
		}
		values[i] = v
	}
	return schema.NewRow(st, values...)
}

func (it *rowIterator) isNull(v string) bool {
	for _, nv := range it.src.cfg.File.NullValues {
		if v == nv {
			return true
		}
	}
	return false
}

func (it *rowIterator) Close() error { return it.file.Close() }
