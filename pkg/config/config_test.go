package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBaseConfigDefaults(t *testing.T) {
	cfg := NewBaseConfig("orders", "csv")

	assert.Equal(t, "orders", cfg.Name)
	assert.Equal(t, "csv", cfg.Type)
	assert.Equal(t, 1000, cfg.Performance.BatchSize)
	assert.Equal(t, 10000, cfg.Performance.BufferSize)
	assert.Equal(t, 10*time.Second, cfg.Performance.FlushInterval)
	assert.Equal(t, ",", cfg.File.Delimiter)
	assert.True(t, cfg.File.HasHeader)
	assert.True(t, cfg.File.WriteHeader)
	assert.Equal(t, "snappy", cfg.Columnar.Compression)
	assert.Equal(t, "half-up", cfg.Columnar.Rounding)
	assert.True(t, cfg.Columnar.Validation)
	assert.Equal(t, 3, cfg.Reliability.RetryAttempts)
	assert.False(t, cfg.Advanced.IsCompressionEnabled())
}

func TestValidate(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		assert.NoError(t, NewBaseConfig("n", "t").Validate())
	})

	t.Run("missing name", func(t *testing.T) {
		cfg := NewBaseConfig("", "t")
		assert.Error(t, cfg.Validate())
	})

	t.Run("missing type", func(t *testing.T) {
		cfg := NewBaseConfig("n", "")
		assert.Error(t, cfg.Validate())
	})

	t.Run("non-positive batch size", func(t *testing.T) {
		cfg := NewBaseConfig("n", "t")
		cfg.Performance.BatchSize = 0
		assert.Error(t, cfg.Validate())
	})

	t.Run("negative retries", func(t *testing.T) {
		cfg := NewBaseConfig("n", "t")
		cfg.Reliability.RetryAttempts = -1
		assert.Error(t, cfg.Validate())
	})

	t.Run("negative sizing", func(t *testing.T) {
		cfg := NewBaseConfig("n", "t")
		cfg.Columnar.BlockSize = -1
		assert.Error(t, cfg.Validate())
	})
}

func TestGetWorkers(t *testing.T) {
	p := PerformanceConfig{Workers: 8}
	assert.Equal(t, 8, p.GetWorkers())

	p.Workers = 0
	assert.Greater(t, p.GetWorkers(), 0)
}

func TestIsCompressionEnabled(t *testing.T) {
	a := AdvancedConfig{EnableCompression: true, CompressionAlgorithm: "gzip"}
	assert.True(t, a.IsCompressionEnabled())

	a.CompressionAlgorithm = ""
	assert.False(t, a.IsCompressionEnabled())
}

func TestLoad(t *testing.T) {
	t.Run("env var substitution", func(t *testing.T) {
		t.Setenv("TEST_DATA_PATH", "/data/in.csv")
		t.Setenv("TEST_DELIM", "|")

		path := filepath.Join(t.TempDir(), "source.yaml")
		body := `
name: orders
type: csv
file:
  path: ${TEST_DATA_PATH}
  delimiter: "${TEST_DELIM}"
`
		require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

		cfg := NewBaseConfig("", "")
		require.NoError(t, Load(path, cfg))
		assert.Equal(t, "orders", cfg.Name)
		assert.Equal(t, "/data/in.csv", cfg.File.Path)
		assert.Equal(t, "|", cfg.File.Delimiter)
		// Untouched sections keep their defaults.
		assert.Equal(t, 1000, cfg.Performance.BatchSize)
	})

	t.Run("unset var becomes empty", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "c.yaml")
		require.NoError(t, os.WriteFile(path, []byte("name: \"x${DOES_NOT_EXIST_VAR}y\"\ntype: t\n"), 0o644))

		cfg := NewBaseConfig("", "")
		require.NoError(t, Load(path, cfg))
		assert.Equal(t, "xy", cfg.Name)
	})

	t.Run("missing file", func(t *testing.T) {
		cfg := NewBaseConfig("", "")
		assert.Error(t, Load(filepath.Join(t.TempDir(), "missing.yaml"), cfg))
	})

	t.Run("malformed yaml", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte(":\n  - ]["), 0o644))
		cfg := NewBaseConfig("", "")
		assert.Error(t, Load(path, cfg))
	})
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sink.yaml")

	cfg := NewBaseConfig("target", "parquet")
	cfg.File.Path = "/out/data.parquet"
	cfg.Columnar.Compression = "zstd"
	cfg.Columnar.Metadata = map[string]string{"origin": "test"}
	require.NoError(t, Save(path, cfg))

	loaded := NewBaseConfig("", "")
	require.NoError(t, Load(path, loaded))
	assert.Equal(t, cfg.Name, loaded.Name)
	assert.Equal(t, cfg.File.Path, loaded.File.Path)
	assert.Equal(t, "zstd", loaded.Columnar.Compression)
	assert.Equal(t, "test", loaded.Columnar.Metadata["origin"])
}
