// Package parquet provides the columnar file source connector. A path
// may name one file, a glob pattern or a directory; each matched file
// becomes an independently readable part.
package parquet

import (
	"context"

	"go.uber.org/zap"

	"github.com/strata-etl/strata/pkg/config"
	"github.com/strata-etl/strata/pkg/connector/core"
	"github.com/strata-etl/strata/pkg/errors"
	"github.com/strata-etl/strata/pkg/logger"
	"github.com/strata-etl/strata/pkg/parquet"
	"github.com/strata-etl/strata/pkg/schema"
)

// Source reads columnar files. The configured column list is pushed down
// so unselected columns are never decoded.
type Source struct {
	cfg    *config.BaseConfig
	schema *schema.StructType
	log    *zap.Logger
}

// NewSource creates a columnar file source from configuration.
func NewSource(cfg *config.BaseConfig) (core.Source, error) {
	if cfg.File.Path == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "parquet source requires file.path")
	}
	return &Source{
		cfg: cfg,
		log: logger.Get().With(
			zap.String("component", "parquet_source"),
			zap.String("path", cfg.File.Path)),
	}, nil
}

func (s *Source) options() []parquet.ReaderOption {
	var opts []parquet.ReaderOption
	if len(s.cfg.Columnar.Columns) > 0 {
		opts = append(opts, parquet.WithProjection(s.cfg.Columnar.Columns...))
	}
	return opts
}

// Schema opens the first matched file and reports its translated schema,
// reduced by the configured column list.
func (s *Source) Schema(ctx context.Context) (*schema.StructType, error) {
	if s.schema != nil {
		return s.schema, nil
	}
	r, err := parquet.Open(s.cfg.File.Path, s.options()...)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	s.schema = r.Schema()
	return s.schema, nil
}

// Parts returns one part per matched file, in lexicographic path order.
func (s *Source) Parts(ctx context.Context) ([]core.Part, error) {
	if _, err := s.Schema(ctx); err != nil {
		return nil, err
	}
	paths, err := parquet.ExpandPath(s.cfg.File.Path)
	if err != nil {
		return nil, err
	}
	parts := make([]core.Part, len(paths))
	for i, path := range paths {
		parts[i] = &filePart{src: s, path: path}
	}
	return parts, nil
}

// Close releases source resources.
func (s *Source) Close(ctx context.Context) error { return nil }

type filePart struct {
	src  *Source
	path string
}

func (p *filePart) Name() string { return p.path }

func (p *filePart) Open(ctx context.Context) (core.RowIterator, error) {
	return parquet.Open(p.path, p.src.options()...)
}
