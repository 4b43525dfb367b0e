package main

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/strata-etl/strata/internal/pipeline"
	"github.com/strata-etl/strata/pkg/config"
	"github.com/strata-etl/strata/pkg/connector/registry"
	"github.com/strata-etl/strata/pkg/logger"

	// Import all available connectors to register them
	_ "github.com/strata-etl/strata/pkg/connector/destinations"
	_ "github.com/strata-etl/strata/pkg/connector/sources"
)

var version = "0.1.0"

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:   "strata",
		Short: "Strata - columnar data interchange engine",
		Long: `Strata moves rows between delimited text, JSON, SQL databases and
columnar files, preserving types through a unified schema model.`,
	}

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("Strata v%s\n", version)
			fmt.Printf("Go version: %s\n", runtime.Version())
			fmt.Printf("OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List available connectors",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("Available Source Connectors:")
			for _, source := range registry.ListSources() {
				fmt.Printf("  - %s\n", source)
			}
			fmt.Println("\nAvailable Sink Connectors:")
			for _, sink := range registry.ListSinks() {
				fmt.Printf("  - %s\n", sink)
			}
		},
	})

	var sourceConfigFile, sinkConfigFile string
	var workers, bufferSize int
	var timeout time.Duration
	var logLevel string
	var failFast bool

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run a data pipeline",
		Long: `Run a data pipeline with the specified source and sink configurations.
Configuration files are YAML; ${VAR} references resolve against the
environment before parsing.

Example:
  strata run --source source.yaml --sink sink.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(sourceConfigFile, sinkConfigFile, &pipeline.Config{
				Workers:    workers,
				BufferSize: bufferSize,
				FailFast:   failFast,
			}, timeout, logLevel)
		},
	}

	runCmd.Flags().StringVarP(&sourceConfigFile, "source", "s", "", "Path to source configuration YAML file (required)")
	runCmd.Flags().StringVarP(&sinkConfigFile, "sink", "d", "", "Path to sink configuration YAML file (required)")
	_ = runCmd.MarkFlagRequired("source")
	_ = runCmd.MarkFlagRequired("sink")

	runCmd.Flags().IntVar(&workers, "workers", runtime.NumCPU(), "Number of source parts read concurrently")
	runCmd.Flags().IntVar(&bufferSize, "buffer-size", 10000, "Row channel capacity between readers and the writer")
	runCmd.Flags().DurationVar(&timeout, "timeout", 30*time.Minute, "Pipeline timeout")
	runCmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	runCmd.Flags().BoolVar(&failFast, "fail-fast", false, "Abort on the first row error")

	root.AddCommand(runCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConnectorConfig loads and validates a BaseConfig from a YAML file.
func loadConnectorConfig(filename string) (*config.BaseConfig, error) {
	cfg := config.NewBaseConfig("", "")
	if err := config.Load(filename, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration %s: %w", filename, err)
	}
	return cfg, nil
}

// runPipeline executes the data pipeline with the given configurations.
func runPipeline(sourceConfigFile, sinkConfigFile string, pcfg *pipeline.Config, timeout time.Duration, logLevel string) error {
	if err := logger.Init(logger.Config{Level: logLevel}); err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	sourceConfig, err := loadConnectorConfig(sourceConfigFile)
	if err != nil {
		return fmt.Errorf("source configuration error: %w", err)
	}
	sinkConfig, err := loadConnectorConfig(sinkConfigFile)
	if err != nil {
		return fmt.Errorf("sink configuration error: %w", err)
	}

	log := logger.Get().With(
		zap.String("component", "strata-cli"),
		zap.String("source", sourceConfig.Type),
		zap.String("sink", sinkConfig.Type),
	)

	source, err := registry.CreateSource(sourceConfig.Type, sourceConfig)
	if err != nil {
		return fmt.Errorf("failed to create source connector '%s': %w", sourceConfig.Type, err)
	}
	sink, err := registry.CreateSink(sinkConfig.Type, sinkConfig)
	if err != nil {
		return fmt.Errorf("failed to create sink connector '%s': %w", sinkConfig.Type, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	pcfg.SourceName = sourceConfig.Type
	pcfg.SinkName = sinkConfig.Type
	p := pipeline.New(source, sink, pcfg, log)

	log.Info("executing pipeline")
	start := time.Now()
	if err := p.Run(ctx); err != nil {
		return fmt.Errorf("pipeline execution failed: %w", err)
	}

	duration := time.Since(start)
	stats := p.Metrics()
	processed := stats["records_processed"].(int64)

	log.Info("pipeline completed successfully",
		zap.Duration("duration", duration),
		zap.Int64("records_processed", processed),
		zap.Float64("records_per_second", float64(processed)/duration.Seconds()))

	return nil
}
