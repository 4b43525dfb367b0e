// Package json provides the line-delimited JSON sink connector.
package json

import (
	"bufio"
	"context"
	"math/big"
	"os"
	"path/filepath"
	"time"

	gojson "github.com/goccy/go-json"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/strata-etl/strata/pkg/config"
	"github.com/strata-etl/strata/pkg/connector/core"
	"github.com/strata-etl/strata/pkg/errors"
	"github.com/strata-etl/strata/pkg/logger"
	"github.com/strata-etl/strata/pkg/schema"
)

// Sink writes one JSON object per line. Decimals and big integers render
// as strings to avoid float precision loss; timestamps render as RFC 3339.
type Sink struct {
	cfg    *config.BaseConfig
	file   *os.File
	writer *bufio.Writer
	schema *schema.StructType
	rows   int64
	log    *zap.Logger
}

// NewSink creates a JSON sink from configuration.
func NewSink(cfg *config.BaseConfig) (core.Sink, error) {
	if cfg.File.Path == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "json sink requires file.path")
	}
	return &Sink{
		cfg: cfg,
		log: logger.Get().With(
			zap.String("component", "json_sink"),
			zap.String("path", cfg.File.Path)),
	}, nil
}

// CreateSchema opens the output file.
func (s *Sink) CreateSchema(ctx context.Context, st *schema.StructType) error {
	if s.file != nil {
		return errors.New(errors.ErrorTypeInternal, "schema already created")
	}
	if s.cfg.File.CreateDirs {
		if err := os.MkdirAll(filepath.Dir(s.cfg.File.Path), 0o755); err != nil {
			return err
		}
	}

	f, err := os.Create(s.cfg.File.Path)
	if err != nil {
		return err
	}
	s.file = f
	s.writer = bufio.NewWriter(f)
	s.schema = st
	return nil
}

// Write appends one row as a JSON object line.
func (s *Sink) Write(ctx context.Context, row *schema.Row) error {
	if s.writer == nil {
		return errors.New(errors.ErrorTypeInternal, "CreateSchema must be called before Write")
	}

	obj := make(map[string]interface{}, s.schema.Len())
	for i, field := range s.schema.Fields() {
		obj[field.Name] = jsonValue(row.Value(i))
	}
	text, err := gojson.Marshal(obj)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeData, "failed to encode row")
	}
	if _, err := s.writer.Write(append(text, '\n')); err != nil {
		return err
	}
	s.rows++
	return nil
}

// jsonValue rewrites row values into JSON-marshalable shapes.
func jsonValue(v interface{}) interface{} {
	switch v := v.(type) {
	case decimal.Decimal:
		return v.String()
	case *big.Int:
		return v.String()
	case time.Time:
		return v.Format(time.RFC3339Nano)
	case *schema.Row:
		out := make(map[string]interface{}, v.Len())
		for i, field := range v.Schema().Fields() {
			out[field.Name] = jsonValue(v.Value(i))
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, e := range v {
			out[i] = jsonValue(e)
		}
		return out
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(v))
		for k, e := range v {
			out[stringKey(k)] = jsonValue(e)
		}
		return out
	default:
		return v
	}
}

func stringKey(k interface{}) string {
	if s, ok := k.(string); ok {
		return s
	}
	text, err := gojson.Marshal(jsonValue(k))
	if err != nil {
		return ""
	}
	return string(text)
}

// Close flushes buffered output and closes the file.
func (s *Sink) Close(ctx context.Context) error {
	if s.file == nil {
		return nil
	}
	err := s.writer.Flush()
	if cerr := s.file.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		s.log.Info("json file written", zap.Int64("rows", s.rows))
	}
	s.file, s.writer = nil, nil
	return err
}
