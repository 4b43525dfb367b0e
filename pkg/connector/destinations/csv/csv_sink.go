// Package csv provides the delimited-text sink connector.
package csv

import (
	"context"
	"encoding/base64"
	"encoding/csv"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strconv"
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

// Sink writes rows as delimited text. Scalars render with their natural
// textual forms; binary values render as base64 and nested values as
// their JSON text.
type Sink struct {
	cfg    *config.BaseConfig
	file   *os.File
	writer *csv.Writer
	schema *schema.StructType
	rows   int64
	log    *zap.Logger
}

// NewSink creates a CSV sink from configuration.
func NewSink(cfg *config.BaseConfig) (core.Sink, error) {
	if cfg.File.Path == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "csv sink requires file.path")
	}
	if cfg.File.Delimiter != "" && len([]rune(cfg.File.Delimiter)) != 1 {
		return nil, errors.New(errors.ErrorTypeConfig, "csv delimiter must be a single character")
	}
	return &Sink{
		cfg: cfg,
		log: logger.Get().With(
			zap.String("component", "csv_sink"),
			zap.String("path", cfg.File.Path)),
	}, nil
}

// CreateSchema opens the output file and writes the header row.
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
	s.writer = csv.NewWriter(f)
	if s.cfg.File.Delimiter != "" {
		s.writer.Comma = []rune(s.cfg.File.Delimiter)[0]
	}
	s.schema = st

	if s.cfg.File.WriteHeader {
		header := make([]string, st.Len())
		for i, field := range st.Fields() {
			header[i] = field.Name
		}
		if err := s.writer.Write(header); err != nil {
			return err
		}
	}
	return nil
}

// Write appends one row.
func (s *Sink) Write(ctx context.Context, row *schema.Row) error {
	if s.writer == nil {
		return errors.New(errors.ErrorTypeInternal, "CreateSchema must be called before Write")
	}

	record := make([]string, s.schema.Len())
	for i := 0; i < s.schema.Len(); i++ {
		text, err := formatValue(row.Value(i))
		if err != nil {
			return err
		}
		record[i] = text
	}
	if err := s.writer.Write(record); err != nil {
		return err
	}
	s.rows++
	return nil
}

// formatValue renders one row value as text. Nil renders as the empty
// string.
func formatValue(v interface{}) (string, error) {
	switch v := v.(type) {
	case nil:
		return "", nil
	case bool:
		return strconv.FormatBool(v), nil
	case int8:
		return strconv.FormatInt(int64(v), 10), nil
	case int16:
		return strconv.FormatInt(int64(v), 10), nil
	case uint16:
		return strconv.FormatUint(uint64(v), 10), nil
	case int32:
		return strconv.FormatInt(int64(v), 10), nil
	case uint32:
		return strconv.FormatUint(uint64(v), 10), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case uint64:
		return strconv.FormatUint(v, 10), nil
	case float32:
		return strconv.FormatFloat(float64(v), 'g', -1, 32), nil
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64), nil
	case string:
		return v, nil
	case []byte:
		return base64.StdEncoding.EncodeToString(v), nil
	case time.Time:
		return v.Format(time.RFC3339Nano), nil
	case decimal.Decimal:
		return v.String(), nil
	case *big.Int:
		return v.String(), nil
	default:
		text, err := gojson.Marshal(plainValue(v))
		if err != nil {
			return "", errors.Wrap(err, errors.ErrorTypeData, "failed to render nested value")
		}
		return string(text), nil
	}
}

// plainValue rewrites nested row values into JSON-marshalable shapes.
func plainValue(v interface{}) interface{} {
	switch v := v.(type) {
	case *schema.Row:
		out := make(map[string]interface{}, v.Len())
		for i, field := range v.Schema().Fields() {
			out[field.Name] = plainValue(v.Value(i))
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, e := range v {
			out[i] = plainValue(e)
		}
		return out
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(v))
		for k, e := range v {
			key, err := formatValue(k)
			if err != nil {
				key = fmt.Sprint(k)
			}
			out[key] = plainValue(e)
		}
		return out
	case decimal.Decimal:
		return v.String()
	case *big.Int:
		return v.String()
	case time.Time:
		return v.Format(time.RFC3339Nano)
	default:
		return v
	}
}

// Close flushes buffered rows and closes the file.
func (s *Sink) Close(ctx context.Context) error {
	if s.file == nil {
		return nil
	}
	s.writer.Flush()
	err := s.writer.Error()
	if cerr := s.file.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		s.log.Info("csv file written", zap.Int64("rows", s.rows))
	}
	s.file, s.writer = nil, nil
	return err
}
