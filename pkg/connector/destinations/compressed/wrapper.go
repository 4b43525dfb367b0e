// Package compressed provides a compression wrapper for file-based sink
// connectors. The inner sink writes an uncompressed staging file; on
// Close the wrapper streams it through the configured codec into the
// final path.
package compressed

import (
	"context"
	"io"
	"os"

	"go.uber.org/zap"

	"github.com/strata-etl/strata/pkg/compression"
	"github.com/strata-etl/strata/pkg/config"
	"github.com/strata-etl/strata/pkg/connector/core"
	"github.com/strata-etl/strata/pkg/connector/registry"
	"github.com/strata-etl/strata/pkg/errors"
	"github.com/strata-etl/strata/pkg/logger"
	"github.com/strata-etl/strata/pkg/schema"
)

// Sink wraps another file sink and compresses its finished output.
type Sink struct {
	inner     core.Sink
	finalPath string
	stagePath string
	algorithm compression.Algorithm
	level     compression.Level
	log       *zap.Logger
}

// NewSink creates a compressed wrapper around the sink named by
// advanced.inner_type.
func NewSink(cfg *config.BaseConfig) (core.Sink, error) {
	if cfg.File.Path == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "compressed sink requires file.path")
	}
	innerType := cfg.Advanced.InnerType
	if innerType == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "compressed sink requires advanced.inner_type")
	}

	algorithm := compression.Algorithm(cfg.Advanced.CompressionAlgorithm)
	if algorithm == "" {
		algorithm = compression.Gzip
	}

	// The inner sink writes an uncompressed staging file next to the
	// final path.
	finalPath := cfg.File.Path
	stagePath := finalPath + ".staging"
	innerCfg := *cfg
	innerCfg.Type = innerType
	innerCfg.File.Path = stagePath
	innerCfg.Advanced.EnableCompression = false

	inner, err := registry.CreateSink(innerType, &innerCfg)
	if err != nil {
		return nil, err
	}

	return &Sink{
		inner:     inner,
		finalPath: finalPath,
		stagePath: stagePath,
		algorithm: algorithm,
		level:     compression.LevelFromInt(cfg.Advanced.CompressionLevel),
		log: logger.Get().With(
			zap.String("component", "compressed_sink"),
			zap.String("path", finalPath),
			zap.String("algorithm", string(algorithm))),
	}, nil
}

// CreateSchema forwards to the inner sink.
func (s *Sink) CreateSchema(ctx context.Context, st *schema.StructType) error {
	return s.inner.CreateSchema(ctx, st)
}

// Write forwards to the inner sink.
func (s *Sink) Write(ctx context.Context, row *schema.Row) error {
	return s.inner.Write(ctx, row)
}

// Close finalizes the inner sink, compresses the staging file into the
// final path and removes the staging file.
func (s *Sink) Close(ctx context.Context) error {
	if err := s.inner.Close(ctx); err != nil {
		return err
	}
	defer os.Remove(s.stagePath)

	src, err := os.Open(s.stagePath)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.Create(s.finalPath)
	if err != nil {
		return err
	}

	cw, err := compression.NewWriter(s.algorithm, s.level, dst)
	if err != nil {
		dst.Close()
		return err
	}
	if _, err := io.Copy(cw, src); err != nil {
		dst.Close()
		return err
	}
	if err := cw.Close(); err != nil {
		dst.Close()
		return err
	}
	if err := dst.Close(); err != nil {
		return err
	}

	s.log.Info("compressed output written")
	return nil
}
