// Package postgresql provides the PostgreSQL source connector built on
// pgx. It reads a table or an explicit query as a single part.
package postgresql

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/strata-etl/strata/pkg/config"
	"github.com/strata-etl/strata/pkg/connector/core"
	"github.com/strata-etl/strata/pkg/errors"
	"github.com/strata-etl/strata/pkg/logger"
	"github.com/strata-etl/strata/pkg/schema"
)

// Source reads rows from PostgreSQL. Column types are translated from
// their OIDs; numeric typmods carry precision and scale through.
type Source struct {
	cfg    *config.BaseConfig
	conn   *pgx.Conn
	schema *schema.StructType
	log    *zap.Logger
}

// NewSource creates a PostgreSQL source from configuration.
func NewSource(cfg *config.BaseConfig) (core.Source, error) {
	if cfg.Database.DSN == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "postgresql source requires database.dsn")
	}
	if cfg.Database.Table == "" && cfg.Database.Query == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "postgresql source requires database.table or database.query")
	}
	return &Source{
		cfg: cfg,
		log: logger.Get().With(
			zap.String("component", "postgresql_source"),
			zap.String("table", cfg.Database.Table)),
	}, nil
}

func (s *Source) query() string {
	if s.cfg.Database.Query != "" {
		return s.cfg.Database.Query
	}
	return fmt.Sprintf("SELECT * FROM %s", pgx.Identifier{s.cfg.Database.Table}.Sanitize())
}

func (s *Source) connect(ctx context.Context) (*pgx.Conn, error) {
	if s.conn != nil {
		return s.conn, nil
	}
	dialCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeouts.Connection)
	defer cancel()

	conn, err := pgx.Connect(dialCtx, s.cfg.Database.DSN)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to connect to postgresql")
	}
	s.conn = conn
	return conn, nil
}

// Schema runs the query with a LIMIT 0 wrapper and translates the result
// descriptor.
func (s *Source) Schema(ctx context.Context) (*schema.StructType, error) {
	if s.schema != nil {
		return s.schema, nil
	}
	conn, err := s.connect(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := conn.Query(ctx, fmt.Sprintf("SELECT * FROM (%s) q LIMIT 0", s.query()))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "schema discovery query failed")
	}
	defer rows.Close()

	st, err := schemaFromDescriptions(rows.FieldDescriptions())
	if err != nil {
		return nil, err
	}
	s.schema = st
	return st, nil
}

func schemaFromDescriptions(descs []pgconn.FieldDescription) (*schema.StructType, error) {
	fields := make([]schema.Field, len(descs))
	for i, d := range descs {
		fields[i] = schema.Field{
			Name:     d.Name,
			Type:     typeForOID(d.DataTypeOID, d.TypeModifier),
			Nullable: true,
		}
	}
	return schema.NewStructType(fields...)
}

func typeForOID(oid uint32, typmod int32) schema.DataType {
	switch oid {
	case pgtype.BoolOID:
		return schema.Boolean
	case pgtype.Int2OID:
		return schema.Short
	case pgtype.Int4OID:
		return schema.Int
	case pgtype.Int8OID:
		return schema.Long
	case pgtype.Float4OID:
		return schema.Float
	case pgtype.Float8OID:
		return schema.Double
	case pgtype.ByteaOID:
		return schema.Binary
	case pgtype.DateOID:
		return schema.Date
	case pgtype.TimeOID:
		return schema.Time
	case pgtype.TimestampOID, pgtype.TimestamptzOID:
		return schema.Timestamp
	case pgtype.NumericOID:
		if typmod >= 4 {
			precision := int(((typmod - 4) >> 16) & 0xFFFF)
			scale := int((typmod - 4) & 0xFFFF)
			return schema.Decimal(precision, scale)
		}
		// Unconstrained numeric: widest supported precision.
		return schema.Decimal(38, 9)
	default:
		return schema.String
	}
}

// Parts returns the query as a single part.
func (s *Source) Parts(ctx context.Context) ([]core.Part, error) {
	if _, err := s.Schema(ctx); err != nil {
		return nil, err
	}
	return []core.Part{&queryPart{src: s}}, nil
}

// Close terminates the connection.
func (s *Source) Close(ctx context.Context) error {
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close(ctx)
	s.conn = nil
	return err
}

type queryPart struct {
	src *Source
}

func (p *queryPart) Name() string { return p.src.query() }

func (p *queryPart) Open(ctx context.Context) (core.RowIterator, error) {
	conn, err := p.src.connect(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := conn.Query(ctx, p.src.query())
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "source query failed")
	}
	return &rowIterator{src: p.src, rows: rows}, nil
}

type rowIterator struct {
	src  *Source
	rows pgx.Rows
}

func (it *rowIterator) Next() (*schema.Row, error) {
	if !it.rows.Next() {
		if err := it.rows.Err(); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeData, "row fetch failed")
		}
		return nil, io.EOF
	}

	raw, err := it.rows.Values()
	if err != nil {
		return nil, errors.MalformedRecord(err, "failed to decode row")
	}

	st := it.src.schema
	values := make([]interface{}, st.Len())
	for i, field := range st.Fields() {
		if i >= len(raw) || raw[i] == nil {
			continue
		}
		v, err := convertValue(field, raw[i])
		if err != nil {
			return nil, err
		}
		values[i] = v
	}
	return schema.NewRow(st, values...)
}

// convertValue maps pgx native values onto the row value shapes.
func convertValue(field schema.Field, raw interface{}) (interface{}, error) {
	switch v := raw.(type) {
	case pgtype.Numeric:
		if !v.Valid || v.Int == nil {
			return nil, nil
		}
		return decimal.NewFromBigInt(v.Int, v.Exp), nil
	case pgtype.Time:
		if !v.Valid {
			return nil, nil
		}
		return timeOfDay(v.Microseconds), nil
	default:
		return raw, nil
	}
}

// timeOfDay anchors a microseconds-of-day value on the epoch date, the
// convention time-typed row values use.
func timeOfDay(micros int64) time.Time {
	return time.UnixMicro(micros).UTC()
}

func (it *rowIterator) Close() error {
	it.rows.Close()
	return nil
}
