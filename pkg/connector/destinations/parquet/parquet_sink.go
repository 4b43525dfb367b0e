// Package parquet provides the columnar file sink connector.
package parquet

import (
	"context"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/strata-etl/strata/pkg/config"
	"github.com/strata-etl/strata/pkg/connector/core"
	"github.com/strata-etl/strata/pkg/errors"
	"github.com/strata-etl/strata/pkg/logger"
	"github.com/strata-etl/strata/pkg/parquet"
	"github.com/strata-etl/strata/pkg/schema"
)

// Sink streams rows into one columnar file. Page, block, compression,
// validation and rounding settings come from the columnar config section.
type Sink struct {
	cfg    *config.BaseConfig
	writer *parquet.Writer
	log    *zap.Logger
}

// NewSink creates a columnar file sink from configuration.
func NewSink(cfg *config.BaseConfig) (core.Sink, error) {
	if cfg.File.Path == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "parquet sink requires file.path")
	}
	return &Sink{
		cfg: cfg,
		log: logger.Get().With(
			zap.String("component", "parquet_sink"),
			zap.String("path", cfg.File.Path)),
	}, nil
}

// CreateSchema opens the output file for rows of the given schema.
func (s *Sink) CreateSchema(ctx context.Context, st *schema.StructType) error {
	if s.writer != nil {
		return errors.New(errors.ErrorTypeInternal, "schema already created")
	}
	if s.cfg.File.CreateDirs {
		if err := os.MkdirAll(filepath.Dir(s.cfg.File.Path), 0o755); err != nil {
			return err
		}
	}

	wc := parquet.WriterConfig{
		Compression:        parquet.Compression(s.cfg.Columnar.Compression),
		PageSize:           s.cfg.Columnar.PageSize,
		BlockSize:          s.cfg.Columnar.BlockSize,
		DictionaryEncoding: s.cfg.Columnar.DictionaryEncoding,
		Validation:         s.cfg.Columnar.Validation,
		Rounding:           parquet.RoundingMode(s.cfg.Columnar.Rounding),
		Metadata:           s.cfg.Columnar.Metadata,
	}
	w, err := parquet.NewWriter(s.cfg.File.Path, st, wc)
	if err != nil {
		return err
	}
	s.writer = w
	return nil
}

// Write appends one row.
func (s *Sink) Write(ctx context.Context, row *schema.Row) error {
	if s.writer == nil {
		return errors.New(errors.ErrorTypeInternal, "CreateSchema must be called before Write")
	}
	return s.writer.Append(row)
}

// Close finalizes the file footer.
func (s *Sink) Close(ctx context.Context) error {
	if s.writer == nil {
		return nil
	}
	err := s.writer.Close()
	if err == nil {
		s.log.Info("columnar file written", zap.Int64("rows", s.writer.Rows()))
	}
	s.writer = nil
	return err
}
