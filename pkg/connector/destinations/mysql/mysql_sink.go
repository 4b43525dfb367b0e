// Package mysql provides the MySQL sink connector built on database/sql
// and the go-sql-driver. Rows are buffered and flushed as multi-row
// INSERT statements inside a transaction.
package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"math/big"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	gojson "github.com/goccy/go-json"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/strata-etl/strata/pkg/config"
	"github.com/strata-etl/strata/pkg/connector/core"
	"github.com/strata-etl/strata/pkg/errors"
	"github.com/strata-etl/strata/pkg/logger"
	"github.com/strata-etl/strata/pkg/schema"
)

// Sink writes rows into a MySQL table, creating it first when configured
// to do so.
type Sink struct {
	cfg    *config.BaseConfig
	db     *sql.DB
	schema *schema.StructType
	batch  [][]interface{}
	rows   int64
	log    *zap.Logger
}

// NewSink creates a MySQL sink from configuration.
func NewSink(cfg *config.BaseConfig) (core.Sink, error) {
	if cfg.Database.DSN == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "mysql sink requires database.dsn")
	}
	if cfg.Database.Table == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "mysql sink requires database.table")
	}
	return &Sink{
		cfg: cfg,
		log: logger.Get().With(
			zap.String("component", "mysql_sink"),
			zap.String("table", cfg.Database.Table)),
	}, nil
}

// CreateSchema connects, optionally creates the target table and prepares
// for buffered writes.
func (s *Sink) CreateSchema(ctx context.Context, st *schema.StructType) error {
	if s.db != nil {
		return errors.New(errors.ErrorTypeInternal, "schema already created")
	}

	db, err := sql.Open("mysql", s.cfg.Database.DSN)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, "failed to open mysql connection")
	}
	db.SetMaxOpenConns(s.cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(s.cfg.Database.MaxIdleConns)

	pingCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeouts.Connection)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return errors.Wrap(err, errors.ErrorTypeConnection, "mysql ping failed")
	}

	s.db = db
	s.schema = st

	if s.cfg.Database.CreateTable {
		if _, err := db.ExecContext(ctx, createTableDDL(s.cfg.Database.Table, st)); err != nil {
			return errors.Wrap(err, errors.ErrorTypeData, "failed to create table")
		}
	}
	return nil
}

// createTableDDL renders CREATE TABLE IF NOT EXISTS for the schema.
func createTableDDL(table string, st *schema.StructType) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS `%s` (", table)
	for i, field := range st.Fields() {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "`%s` %s", field.Name, columnType(field.Type))
		if !field.Nullable {
			b.WriteString(" NOT NULL")
		}
	}
	b.WriteString(")")
	return b.String()
}

func columnType(t schema.DataType) string {
	switch t.ID {
	case schema.TypeBoolean:
		return "TINYINT(1)"
	case schema.TypeByte:
		return "TINYINT"
	case schema.TypeShort:
		if t.Unsigned {
			return "SMALLINT UNSIGNED"
		}
		return "SMALLINT"
	case schema.TypeInt:
		if t.Unsigned {
			return "INT UNSIGNED"
		}
		return "INT"
	case schema.TypeLong:
		if t.Unsigned {
			return "BIGINT UNSIGNED"
		}
		return "BIGINT"
	case schema.TypeFloat:
		return "FLOAT"
	case schema.TypeDouble:
		return "DOUBLE"
	case schema.TypeBinary:
		return "BLOB"
	case schema.TypeDate:
		return "DATE"
	case schema.TypeTime:
		return "TIME(6)"
	case schema.TypeTimestamp:
		return "DATETIME(6)"
	case schema.TypeDecimal:
		return fmt.Sprintf("DECIMAL(%d,%d)", t.Precision, t.Scale)
	case schema.TypeBigInt:
		return "DECIMAL(38,0)"
	case schema.TypeStruct, schema.TypeArray, schema.TypeMap:
		return "JSON"
	default:
		return "TEXT"
	}
}

// Write buffers one row, flushing when the batch is full.
func (s *Sink) Write(ctx context.Context, row *schema.Row) error {
	if s.db == nil {
		return errors.New(errors.ErrorTypeInternal, "CreateSchema must be called before Write")
	}

	args := make([]interface{}, s.schema.Len())
	for i := 0; i < s.schema.Len(); i++ {
		v, err := driverValue(row.Value(i))
		if err != nil {
			return err
		}
		args[i] = v
	}
	s.batch = append(s.batch, args)

	if len(s.batch) >= s.cfg.Performance.BatchSize {
		return s.flush(ctx)
	}
	return nil
}

// driverValue maps row values onto types the mysql driver accepts.
func driverValue(v interface{}) (interface{}, error) {
	switch v := v.(type) {
	case nil, bool, int8, int16, uint16, int32, uint32, int64, uint64,
		float32, float64, string, []byte, time.Time:
		return v, nil
	case decimal.Decimal:
		return v.String(), nil
	case *big.Int:
		return v.String(), nil
	default:
		text, err := gojson.Marshal(jsonValue(v))
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to encode nested value")
		}
		return string(text), nil
	}
}

// jsonValue rewrites nested row values into JSON-marshalable shapes.
func jsonValue(v interface{}) interface{} {
	switch v := v.(type) {
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
			out[fmt.Sprint(jsonValue(k))] = jsonValue(e)
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

// flush writes the buffered batch as one multi-row INSERT.
func (s *Sink) flush(ctx context.Context) error {
	if len(s.batch) == 0 {
		return nil
	}

	cols := make([]string, s.schema.Len())
	for i, field := range s.schema.Fields() {
		cols[i] = "`" + field.Name + "`"
	}
	placeholder := "(" + strings.TrimSuffix(strings.Repeat("?,", s.schema.Len()), ",") + ")"

	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO `%s` (%s) VALUES ", s.cfg.Database.Table, strings.Join(cols, ", "))
	args := make([]interface{}, 0, len(s.batch)*s.schema.Len())
	for i, rowArgs := range s.batch {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(placeholder)
		args = append(args, rowArgs...)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, "failed to begin transaction")
	}
	if _, err := tx.ExecContext(ctx, b.String(), args...); err != nil {
		tx.Rollback()
		return errors.Wrap(err, errors.ErrorTypeData, "batch insert failed")
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeData, "commit failed")
	}

	s.rows += int64(len(s.batch))
	s.batch = s.batch[:0]
	return nil
}

// Close flushes the remaining batch and closes the connection pool.
func (s *Sink) Close(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	err := s.flush(ctx)
	if cerr := s.db.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		s.log.Info("mysql load complete", zap.Int64("rows", s.rows))
	}
	s.db = nil
	return err
}
