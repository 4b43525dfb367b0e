package parquet

import (
	"os"

	// Registers the ZSTD block compressor with fraugster/parquet-go.
	_ "github.com/akrennmair/parquet-go-zstd"
	goparquet "github.com/fraugster/parquet-go"
	"github.com/fraugster/parquet-go/parquet"
	"github.com/fraugster/parquet-go/parquetschema"
	"go.uber.org/zap"

	"github.com/strata-etl/strata/pkg/errors"
	"github.com/strata-etl/strata/pkg/logger"
	"github.com/strata-etl/strata/pkg/schema"
)

// writerIdentity is the fixed creator string recorded in every file footer.
// Kept stable so downstream tooling can identify the writer format.
const writerIdentity = "strata version 0.1.0"

// Compression selects the codec applied to data pages.
type Compression string

const (
	CompressionNone   Compression = "none"
	CompressionSnappy Compression = "snappy"
	CompressionGzip   Compression = "gzip"
	CompressionZstd   Compression = "zstd"
)

// Default sizing, matching the format's customary granularity.
const (
	DefaultPageSize  = 1 * 1024 * 1024
	DefaultBlockSize = 128 * 1024 * 1024
)

// WriterConfig is the immutable configuration captured once at writer
// construction. The zero value selects snappy compression, default sizing,
// dictionary encoding, no validation and half-up rounding.
type WriterConfig struct {
	// Compression selects the data page codec.
	Compression Compression
	// PageSize is the maximum data page size in bytes.
	PageSize int64
	// BlockSize is the maximum row group size in bytes.
	BlockSize int64
	// DictionaryEncoding enables dictionary encoding of column chunks.
	DictionaryEncoding bool
	// Validation structurally checks every row against the schema before
	// it is encoded.
	Validation bool
	// Rounding applies to decimal values whose scale exceeds the declared
	// schema scale.
	Rounding RoundingMode
	// Metadata is extra key/value metadata recorded in the file footer.
	Metadata map[string]string
}

// DefaultWriterConfig returns the configuration used when callers have no
// specific requirements.
func DefaultWriterConfig() WriterConfig {
	return WriterConfig{
		Compression:        CompressionSnappy,
		PageSize:           DefaultPageSize,
		BlockSize:          DefaultBlockSize,
		DictionaryEncoding: true,
		Rounding:           RoundHalfUp,
	}
}

// Writer persists a sequence of rows as a single columnar file. It is a
// forward-only streaming writer: rows are appended one at a time and the
// footer is flushed exactly once on Close, even under failure. Writers are
// not safe for concurrent appends; the caller serializes all writes to one
// target path.
type Writer struct {
	path    string
	file    *os.File
	fw      *goparquet.FileWriter
	schema  *schema.StructType
	defs    *parquetschema.SchemaDefinition
	cfg     WriterConfig
	rows    int64
	closed  bool
	log     *zap.Logger
}

// NewWriter translates the schema once, opens the target path and builds
// the physical file writer with the resolved options. An unrepresentable
// schema fails with a typed unsupported-type error before the target file
// is created.
func NewWriter(path string, s *schema.StructType, cfg WriterConfig) (*Writer, error) {
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	if cfg.BlockSize <= 0 {
		cfg.BlockSize = DefaultBlockSize
	}
	if cfg.Rounding == "" {
		cfg.Rounding = RoundHalfUp
	}
	if err := validRoundingMode(cfg.Rounding); err != nil {
		return nil, err
	}

	defs, err := ToSchemaDefinition(s)
	if err != nil {
		return nil, err
	}

	codec, err := compressionCodec(cfg.Compression)
	if err != nil {
		return nil, err
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}

	opts := []goparquet.FileWriterOption{
		goparquet.WithSchemaDefinition(defs),
		goparquet.WithCompressionCodec(codec),
		goparquet.WithCreator(writerIdentity),
		goparquet.WithMaxRowGroupSize(cfg.BlockSize),
		goparquet.WithMaxPageSize(cfg.PageSize),
	}
	if len(cfg.Metadata) > 0 {
		opts = append(opts, goparquet.WithMetaData(cfg.Metadata))
	}

	w := &Writer{
		path:   path,
		file:   f,
		fw:     goparquet.NewFileWriter(f, opts...),
		schema: s,
		defs:   defs,
		cfg:    cfg,
		log: logger.Get().With(
			zap.String("component", "parquet_writer"),
			zap.String("path", path)),
	}
	w.log.Debug("writer opened",
		zap.String("compression", string(cfg.Compression)),
		zap.Int64("page_size", cfg.PageSize),
		zap.Int64("block_size", cfg.BlockSize))
	return w, nil
}

// Schema returns the schema the writer encodes against.
func (w *Writer) Schema() *schema.StructType { return w.schema }

// Append encodes one row. Appending after Close is an error; a failed
// append leaves the writer usable for Close but the produced file should be
// discarded by the caller.
func (w *Writer) Append(r *schema.Row) error {
	if w.closed {
		return errors.New(errors.ErrorTypeFile, "append to closed writer")
	}
	if w.cfg.Validation {
		if err := w.validate(r); err != nil {
			return err
		}
	}
	data, err := encodeRow(w.schema, r, w.cfg.Rounding)
	if err != nil {
		return err
	}
	if err := w.fw.AddData(data); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to append row")
	}
	w.rows++
	return nil
}

// Rows returns the number of rows appended so far.
func (w *Writer) Rows() int64 { return w.rows }

// Close flushes the footer and releases the file handle. It runs exactly
// once; subsequent calls are no-ops returning nil.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	err := w.fw.Close()
	if cerr := w.file.Close(); err == nil && cerr != nil {
		err = cerr
	}
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to finalize file")
	}
	w.log.Debug("writer closed", zap.Int64("rows", w.rows))
	return nil
}

func (w *Writer) validate(r *schema.Row) error {
	if r.Len() != w.schema.Len() {
		return errors.Newf(errors.ErrorTypeValidation,
			"row has %d values for %d schema fields", r.Len(), w.schema.Len())
	}
	bound, err := schema.NewRow(w.schema, r.Values()...)
	if err != nil {
		return err
	}
	return bound.Validate()
}

func validRoundingMode(mode RoundingMode) error {
	switch mode {
	case RoundUp, RoundDown, RoundHalfUp, RoundHalfEven, RoundCeiling, RoundFloor:
		return nil
	default:
		return errors.Newf(errors.ErrorTypeConfig, "unknown rounding mode %q", mode)
	}
}

func compressionCodec(c Compression) (parquet.CompressionCodec, error) {
	switch c {
	case CompressionNone:
		return parquet.CompressionCodec_UNCOMPRESSED, nil
	case "", CompressionSnappy:
		return parquet.CompressionCodec_SNAPPY, nil
	case CompressionGzip:
		return parquet.CompressionCodec_GZIP, nil
	case CompressionZstd:
		return parquet.CompressionCodec_ZSTD, nil
	default:
		return 0, errors.Newf(errors.ErrorTypeConfig, "unknown compression codec %q", c)
	}
}
