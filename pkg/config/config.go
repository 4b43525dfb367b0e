// Package config provides the unified configuration system for Strata.
// It defines a single BaseConfig structure that all connectors use, so a
// pipeline definition can describe any source or sink with the same shape.
//
// The configuration is organized into logical sections:
//   - Performance: batch sizes, workers, flush intervals
//   - Timeouts: connection and operation timeouts
//   - Reliability: retry logic and failure policy
//   - Observability: metrics and logging
//   - File: settings for file-backed connectors (CSV, JSON, columnar)
//   - Database: settings for SQL-backed connectors
//   - Columnar: page, block, compression and rounding settings for
//     columnar files
//   - Advanced: optional stream compression for file sinks
//
// Example usage:
//
//	cfg := config.NewBaseConfig("orders", "csv")
//	cfg.File.Path = "orders.csv"
//	cfg.File.Delimiter = "|"
//
//	if err := cfg.Validate(); err != nil {
//	    log.Fatal(err)
//	}
package config

import (
	"fmt"
	"runtime"
	"time"
)

// BaseConfig is the single configuration structure shared by every
// connector. Sections a connector does not need are simply left at their
// defaults.
type BaseConfig struct {
	// Name identifies the connector instance
	Name string `yaml:"name" json:"name"`
	// Type selects the connector implementation (e.g. "csv", "parquet")
	Type string `yaml:"type" json:"type"`
	// Version indicates the configuration version
	Version string `yaml:"version" json:"version"`

	// Performance settings control throughput and resource usage
	Performance PerformanceConfig `yaml:"performance" json:"performance"`

	// Timeouts define operation timeout durations
	Timeouts TimeoutConfig `yaml:"timeouts" json:"timeouts"`

	// Reliability settings for error handling
	Reliability ReliabilityConfig `yaml:"reliability" json:"reliability"`

	// Observability settings for monitoring and debugging
	Observability ObservabilityConfig `yaml:"observability" json:"observability"`

	// File settings for file-backed connectors
	File FileConfig `yaml:"file" json:"file"`

	// Database settings for SQL-backed connectors
	Database DatabaseConfig `yaml:"database" json:"database"`

	// Columnar settings for columnar file connectors
	Columnar ColumnarConfig `yaml:"columnar" json:"columnar"`

	// Advanced optional features
	Advanced AdvancedConfig `yaml:"advanced" json:"advanced"`
}

// PerformanceConfig contains throughput and concurrency settings.
type PerformanceConfig struct {
	// BatchSize controls the number of rows processed together
	BatchSize int `yaml:"batch_size" json:"batch_size"`
	// BufferSize sets the size of internal channels
	BufferSize int `yaml:"buffer_size" json:"buffer_size"`
	// Workers defines the number of concurrent workers
	Workers int `yaml:"workers" json:"workers"`
	// FlushInterval triggers periodic batch flushes
	FlushInterval time.Duration `yaml:"flush_interval" json:"flush_interval"`
}

// TimeoutConfig contains timeout settings that keep operations from
// hanging indefinitely.
type TimeoutConfig struct {
	// Request timeout for individual operations
	Request time.Duration `yaml:"request" json:"request"`
	// Connection timeout for establishing connections
	Connection time.Duration `yaml:"connection" json:"connection"`
}

// ReliabilityConfig contains retry and failure policy settings.
type ReliabilityConfig struct {
	// RetryAttempts sets maximum retry attempts for failed operations
	RetryAttempts int `yaml:"retry_attempts" json:"retry_attempts"`
	// RetryDelay is the initial delay between retries
	RetryDelay time.Duration `yaml:"retry_delay" json:"retry_delay"`
	// RetryMultiplier increases delay exponentially
	RetryMultiplier float64 `yaml:"retry_multiplier" json:"retry_multiplier"`
	// MaxRetryDelay caps the maximum retry delay
	MaxRetryDelay time.Duration `yaml:"max_retry_delay" json:"max_retry_delay"`
	// FailFast stops on first error instead of continuing
	FailFast bool `yaml:"fail_fast" json:"fail_fast"`
}

// ObservabilityConfig contains monitoring settings.
type ObservabilityConfig struct {
	// EnableMetrics activates metrics collection
	EnableMetrics bool `yaml:"enable_metrics" json:"enable_metrics"`
	// EnableLogging controls logging output
	EnableLogging bool `yaml:"enable_logging" json:"enable_logging"`
	// LogLevel sets logging verbosity (debug, info, warn, error)
	LogLevel string `yaml:"log_level" json:"log_level"`
}

// FileConfig contains settings for file-backed connectors. Path accepts a
// concrete file, a glob pattern or a directory for sources that support
// multi-file reads.
type FileConfig struct {
	// Path to the input or output file
	Path string `yaml:"path" json:"path"`
	// Delimiter is the field separator for delimited text (default ",")
	Delimiter string `yaml:"delimiter" json:"delimiter"`
	// HasHeader indicates whether delimited input carries a header row
	HasHeader bool `yaml:"has_header" json:"has_header"`
	// WriteHeader emits a header row on delimited output
	WriteHeader bool `yaml:"write_header" json:"write_header"`
	// NullValues lists strings decoded as null
	NullValues []string `yaml:"null_values" json:"null_values"`
	// TrimSpaces strips surrounding whitespace from delimited values
	TrimSpaces bool `yaml:"trim_spaces" json:"trim_spaces"`
	// CreateDirs creates missing parent directories on output
	CreateDirs bool `yaml:"create_dirs" json:"create_dirs"`
}

// DatabaseConfig contains settings for SQL-backed connectors.
type DatabaseConfig struct {
	// DSN is the database connection string
	DSN string `yaml:"dsn" json:"dsn"`
	// Table names the table to read from or write to
	Table string `yaml:"table" json:"table"`
	// Query overrides Table with an explicit SELECT on sources
	Query string `yaml:"query" json:"query"`
	// FetchSize controls server-side cursor batching on sources
	FetchSize int `yaml:"fetch_size" json:"fetch_size"`
	// CreateTable issues CREATE TABLE IF NOT EXISTS on sinks
	CreateTable bool `yaml:"create_table" json:"create_table"`
	// MaxOpenConns caps the connection pool
	MaxOpenConns int `yaml:"max_open_conns" json:"max_open_conns"`
	// MaxIdleConns caps idle pooled connections
	MaxIdleConns int `yaml:"max_idle_conns" json:"max_idle_conns"`
}

// ColumnarConfig contains encoder and decoder settings for columnar file
// connectors.
type ColumnarConfig struct {
	// Compression selects the codec (none, snappy, gzip, zstd)
	Compression string `yaml:"compression" json:"compression"`
	// PageSize sets the target data page size in bytes
	PageSize int64 `yaml:"page_size" json:"page_size"`
	// BlockSize sets the target row group size in bytes
	BlockSize int64 `yaml:"block_size" json:"block_size"`
	// DictionaryEncoding enables dictionary encoding on the encoder
	DictionaryEncoding bool `yaml:"dictionary_encoding" json:"dictionary_encoding"`
	// Validation checks every row against the schema before encoding
	Validation bool `yaml:"validation" json:"validation"`
	// Rounding selects the decimal rounding mode (up, down, half-up,
	// half-even, ceiling, floor)
	Rounding string `yaml:"rounding" json:"rounding"`
	// Columns restricts a source to the named fields
	Columns []string `yaml:"columns" json:"columns"`
	// Metadata is embedded into the file footer as key-value pairs
	Metadata map[string]string `yaml:"metadata" json:"metadata"`
}

// AdvancedConfig contains optional advanced features.
type AdvancedConfig struct {
	// EnableCompression wraps file sink output in a compressed stream
	EnableCompression bool `yaml:"enable_compression" json:"enable_compression"`
	// CompressionAlgorithm selects the stream codec (gzip, snappy, s2,
	// lz4, zstd, deflate)
	CompressionAlgorithm string `yaml:"compression_algorithm" json:"compression_algorithm"`
	// CompressionLevel trades ratio against speed
	CompressionLevel int `yaml:"compression_level" json:"compression_level"`
	// InnerType names the sink wrapped by the compressed sink
	InnerType string `yaml:"inner_type" json:"inner_type"`
}

// NewBaseConfig creates a BaseConfig with defaults that work for most
// pipelines. Connectors override the sections they care about.
func NewBaseConfig(name, connectorType string) *BaseConfig {
	return &BaseConfig{
		Name:    name,
		Type:    connectorType,
		Version: "1.0.0",
		Performance: PerformanceConfig{
			BatchSize:     1000,
			BufferSize:    10000,
			Workers:       runtime.NumCPU(),
			FlushInterval: 10 * time.Second,
		},
		Timeouts: TimeoutConfig{
			Request:    30 * time.Second,
			Connection: 10 * time.Second,
		},
		Reliability: ReliabilityConfig{
			RetryAttempts:   3,
			RetryDelay:      time.Second,
			RetryMultiplier: 2.0,
			MaxRetryDelay:   60 * time.Second,
			FailFast:        false,
		},
		Observability: ObservabilityConfig{
			EnableMetrics: true,
			EnableLogging: true,
			LogLevel:      "info",
		},
		File: FileConfig{
			Delimiter:   ",",
			HasHeader:   true,
			WriteHeader: true,
			TrimSpaces:  true,
			CreateDirs:  true,
		},
		Database: DatabaseConfig{
			FetchSize:    1000,
			CreateTable:  true,
			MaxOpenConns: 10,
			MaxIdleConns: 2,
		},
		Columnar: ColumnarConfig{
			Compression: "snappy",
			Rounding:    "half-up",
			Validation:  true,
		},
		Advanced: AdvancedConfig{
			CompressionAlgorithm: "gzip",
			CompressionLevel:     6,
		},
	}
}

// Validate checks required fields and value ranges. Connectors call this
// after loading configuration to catch errors early.
func (bc *BaseConfig) Validate() error {
	if bc.Name == "" {
		return fmt.Errorf("name is required")
	}
	if bc.Type == "" {
		return fmt.Errorf("type is required")
	}
	if bc.Performance.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be positive")
	}
	if bc.Performance.BufferSize <= 0 {
		return fmt.Errorf("buffer_size must be positive")
	}
	if bc.Reliability.RetryAttempts < 0 {
		return fmt.Errorf("retry_attempts cannot be negative")
	}
	if bc.Columnar.PageSize < 0 || bc.Columnar.BlockSize < 0 {
		return fmt.Errorf("page_size and block_size cannot be negative")
	}
	return nil
}

// GetWorkers returns the number of workers, ensuring it's at least 1
func (p *PerformanceConfig) GetWorkers() int {
	if p.Workers <= 0 {
		return runtime.NumCPU()
	}
	return p.Workers
}

// IsCompressionEnabled returns true if stream compression should be used
func (a *AdvancedConfig) IsCompressionEnabled() bool {
	return a.EnableCompression && a.CompressionAlgorithm != ""
}
