package parquet

import (
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	goparquet "github.com/fraugster/parquet-go"
	"github.com/fraugster/parquet-go/parquetschema"
	"go.uber.org/zap"

	"github.com/strata-etl/strata/pkg/errors"
	"github.com/strata-etl/strata/pkg/logger"
	"github.com/strata-etl/strata/pkg/schema"
)

// Predicate is a row-level filter pushed into the decoder: rows it rejects
// are skipped before they are surfaced to the consumer.
type Predicate func(*schema.Row) bool

// ReaderOption configures a Reader at open time.
type ReaderOption func(*Reader)

// WithProjection restricts the read to the named top-level fields,
// preserving the caller's requested order. Names resolve case-insensitively
// against the discovered schema; unknown names fail Open with a typed
// field-not-found error. The selection is pushed down so unselected columns
// are never decoded.
func WithProjection(names ...string) ReaderOption {
	return func(r *Reader) { r.projection = names }
}

// WithPredicate installs a row-level skip-ahead filter.
func WithPredicate(p Predicate) ReaderOption {
	return func(r *Reader) { r.predicate = p }
}

// Reader decodes one or more columnar files into a lazy, single-pass,
// forward-only sequence of rows. When the path denotes a glob pattern or a
// directory, the matched files are concatenated in lexicographic path order
// behind a single schema taken from the first file; mismatched schemas
// across files are a caller error and are not validated here.
//
// The reader owns its file handles: they are released when the sequence is
// exhausted, on Close, and on decode failure. A Reader is not safe for
// concurrent use; independent files may be processed in parallel by
// independent Reader instances.
type Reader struct {
	paths      []string
	next       int
	file       *os.File
	fr         *goparquet.FileReader
	fullSchema *schema.StructType
	outSchema  *schema.StructType
	defs       map[string]*parquetschema.ColumnDefinition
	projection []string
	selected   []string
	predicate  Predicate
	closed     bool
	log        *zap.Logger
}

// Open discovers the schema from the first matched file's footer,
// translates every field through the type mapping, applies the projection
// and returns a reader positioned before the first row.
func Open(path string, opts ...ReaderOption) (*Reader, error) {
	r := &Reader{
		log: logger.Get().With(
			zap.String("component", "parquet_reader"),
			zap.String("path", path)),
	}
	for _, opt := range opts {
		opt(r)
	}

	paths, err := ExpandPath(path)
	if err != nil {
		return nil, err
	}
	r.paths = paths
	r.next = 1

	if err := r.discoverSchema(); err != nil {
		return nil, err
	}
	r.log.Debug("reader opened",
		zap.Int("files", len(r.paths)),
		zap.Int("fields", r.outSchema.Len()))
	return r, nil
}

// ExpandPath resolves a file path, glob pattern or directory into a sorted
// list of concrete file paths. Directories match their *.parquet entries.
func ExpandPath(path string) ([]string, error) {
	var paths []string
	switch {
	case strings.ContainsAny(path, "*?["):
		matches, err := filepath.Glob(path)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeFile, "bad glob pattern")
		}
		paths = matches
	default:
		info, err := os.Stat(path)
		if err != nil {
			return nil, err
		}
		if info.IsDir() {
			matches, err := filepath.Glob(filepath.Join(path, "*.parquet"))
			if err != nil {
				return nil, errors.Wrap(err, errors.ErrorTypeFile, "bad directory listing")
			}
			paths = matches
		} else {
			paths = []string{path}
		}
	}
	if len(paths) == 0 {
		return nil, errors.Newf(errors.ErrorTypeFile, "no files matched %q", path)
	}
	sort.Strings(paths)
	return paths, nil
}

// discoverSchema reads the first file's footer, translates it, resolves the
// projection against it and reopens the file with the pushed-down column
// selection.
func (r *Reader) discoverSchema() error {
	f, err := os.Open(r.paths[0])
	if err != nil {
		return err
	}

	fr, err := goparquet.NewFileReader(f)
	if err != nil {
		f.Close()
		return errors.MalformedRecord(err, "failed to read file footer")
	}

	full, err := FromSchemaDefinition(fr.GetSchemaDefinition())
	if err != nil {
		f.Close()
		return err
	}
	r.fullSchema = full
	r.outSchema = full

	defs := childDefs(fr.GetSchemaDefinition().RootColumn)

	if len(r.projection) > 0 {
		projected, err := full.Project(r.projection...)
		if err != nil {
			f.Close()
			return err
		}
		r.outSchema = projected
		for _, pf := range projected.Fields() {
			r.selected = append(r.selected, pf.Name)
		}
	}

	r.defs = make(map[string]*parquetschema.ColumnDefinition, r.outSchema.Len())
	for _, pf := range r.outSchema.Fields() {
		r.defs[pf.Name] = defs[pf.Name]
	}

	if len(r.selected) == 0 {
		// No projection: keep the already-open reader.
		r.file, r.fr = f, fr
		return nil
	}

	// Reopen from the start with the column selection applied.
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		f.Close()
		return err
	}
	fr, err = goparquet.NewFileReader(f, r.selected...)
	if err != nil {
		f.Close()
		return errors.MalformedRecord(err, "failed to reopen with projection")
	}
	r.file, r.fr = f, fr
	return nil
}

// Schema returns the schema rows are decoded against: the first file's
// translated schema, reduced and reordered by the projection when one was
// supplied.
func (r *Reader) Schema() *schema.StructType { return r.outSchema }

// Next returns the next row, or io.EOF when every matched file is
// exhausted. Any decode failure closes the reader and surfaces a typed
// malformed-record error; the reader does not skip and continue.
func (r *Reader) Next() (*schema.Row, error) {
	if r.closed {
		return nil, io.EOF
	}
	for {
		if r.fr == nil {
			if err := r.advance(); err != nil {
				return nil, err
			}
		}

		raw, err := r.fr.NextRow()
		if err == io.EOF {
			r.closeCurrent()
			continue
		}
		if err != nil {
			r.Close()
			return nil, errors.MalformedRecord(err, "failed to decode record")
		}

		row, err := decodeRow(r.outSchema, r.defs, raw)
		if err != nil {
			r.Close()
			return nil, err
		}
		if r.predicate != nil && !r.predicate(row) {
			continue
		}
		return row, nil
	}
}

// advance opens the next matched file, or finishes the sequence with io.EOF
// once all files are consumed.
func (r *Reader) advance() error {
	if r.next >= len(r.paths) {
		r.Close()
		return io.EOF
	}
	path := r.paths[r.next]
	r.next++

	f, err := os.Open(path)
	if err != nil {
		r.Close()
		return err
	}
	fr, err := goparquet.NewFileReader(f, r.selected...)
	if err != nil {
		f.Close()
		r.Close()
		return errors.MalformedRecord(err, "failed to read file footer")
	}
	r.file, r.fr = f, fr
	return nil
}

func (r *Reader) closeCurrent() {
	if r.file != nil {
		r.file.Close()
	}
	r.file, r.fr = nil, nil
}

// Close releases the current file handle. It is idempotent and safe to call
// at any point, including before exhaustion.
func (r *Reader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	r.closeCurrent()
	return nil
}
