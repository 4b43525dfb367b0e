// Package pipeline provides the execution engine that moves rows from a
// source to a sink. Parts are read by parallel workers; a single writer
// goroutine feeds the sink, which keeps sinks free of locking.
//
// Basic usage:
//
//	p := pipeline.New(source, sink, &pipeline.Config{
//	    Workers:    4,
//	    BufferSize: 10000,
//	}, logger)
//	p.AddTransform(pipeline.FilterTransform(keep))
//	err := p.Run(ctx)
package pipeline

import (
	"context"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/strata-etl/strata/pkg/connector/core"
	"github.com/strata-etl/strata/pkg/errors"
	"github.com/strata-etl/strata/pkg/metrics"
	"github.com/strata-etl/strata/pkg/schema"
)

// Transform modifies rows in flight. Returning a nil row filters the row
// out; transforms are applied sequentially in the order added.
type Transform func(ctx context.Context, row *schema.Row) (*schema.Row, error)

// Config controls pipeline parallelism and buffering.
type Config struct {
	// Workers is the number of parts read concurrently
	Workers int
	// BufferSize is the row channel capacity between readers and the writer
	BufferSize int
	// FailFast aborts the run on the first row error instead of logging
	// and continuing
	FailFast bool
	// SourceName and SinkName label metrics
	SourceName string
	SinkName   string
}

// DefaultConfig returns a configuration suitable for most pipelines.
func DefaultConfig() *Config {
	return &Config{
		Workers:    4,
		BufferSize: 10000,
	}
}

// Pipeline orchestrates one source-to-sink run.
type Pipeline struct {
	source     core.Source
	sink       core.Sink
	transforms []Transform
	cfg        *Config
	log        *zap.Logger

	processed int64
	failed    int64
	mu        sync.Mutex
}

// New creates a pipeline. Call Run to execute it.
func New(source core.Source, sink core.Sink, cfg *Config, log *zap.Logger) *Pipeline {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Pipeline{
		source: source,
		sink:   sink,
		cfg:    cfg,
		log:    log,
	}
}

// AddTransform appends a transform. Transforms run on reader workers, so
// they must be safe for concurrent use.
func (p *Pipeline) AddTransform(t Transform) {
	p.transforms = append(p.transforms, t)
}

// Run executes the pipeline until the source is exhausted or a fatal
// error occurs. The sink is always closed, even on failure.
func (p *Pipeline) Run(ctx context.Context) error {
	start := time.Now()
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	st, err := p.source.Schema(runCtx)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeData, "source schema discovery failed")
	}
	if err := p.sink.CreateSchema(runCtx, st); err != nil {
		return errors.Wrap(err, errors.ErrorTypeData, "sink schema creation failed")
	}

	parts, err := p.source.Parts(runCtx)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeData, "source part enumeration failed")
	}

	p.log.Info("starting pipeline",
		zap.Int("parts", len(parts)),
		zap.Int("workers", p.cfg.Workers),
		zap.Int("transforms", len(p.transforms)))

	rowChan := make(chan *schema.Row, p.cfg.BufferSize)
	errChan := make(chan error, len(parts)+1)
	tracker := metrics.NewThroughputTracker(p.cfg.SourceName, p.cfg.SinkName)

	// Reader workers pull parts from a shared queue.
	partChan := make(chan core.Part)
	var readers sync.WaitGroup
	for i := 0; i < p.cfg.Workers; i++ {
		readers.Add(1)
		go func(id int) {
			defer readers.Done()
			for part := range partChan {
				if err := p.readPart(runCtx, part, rowChan); err != nil {
					errChan <- err
					if p.cfg.FailFast {
						cancel()
					}
				}
			}
		}(i)
	}

	go func() {
		defer close(partChan)
		for _, part := range parts {
			select {
			case partChan <- part:
			case <-runCtx.Done():
				return
			}
		}
	}()

	go func() {
		readers.Wait()
		close(rowChan)
	}()

	// Periodic throughput publication.
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	tickerDone := make(chan struct{})
	go func() {
		defer close(tickerDone)
		for {
			select {
			case <-ticker.C:
				tracker.Publish()
			case <-runCtx.Done():
				return
			}
		}
	}()

	writeErr := p.writeRows(runCtx, rowChan, tracker)
	cancel()
	<-tickerDone

	if writeErr == nil {
		select {
		case writeErr = <-errChan:
		default:
		}
	}

	if cerr := p.source.Close(ctx); cerr != nil && writeErr == nil {
		writeErr = cerr
	}
	if cerr := p.sink.Close(ctx); cerr != nil && writeErr == nil {
		writeErr = cerr
	}

	duration := time.Since(start)
	p.mu.Lock()
	processed, failed := p.processed, p.failed
	p.mu.Unlock()

	status := "success"
	if writeErr != nil {
		status = "failure"
	}
	metrics.RecordsProcessed.WithLabelValues(p.cfg.SourceName, p.cfg.SinkName, status).Add(float64(processed))

	p.log.Info("pipeline completed",
		zap.Int64("records_processed", processed),
		zap.Int64("records_failed", failed),
		zap.Duration("duration", duration),
		zap.Float64("throughput_rps", float64(processed)/duration.Seconds()))

	return writeErr
}

// readPart streams one part through the transforms into rowChan.
func (p *Pipeline) readPart(ctx context.Context, part core.Part, rowChan chan<- *schema.Row) error {
	timer := metrics.NewTimer("read_part")
	it, err := part.Open(ctx)
	if err != nil {
		metrics.PartsRead.WithLabelValues(p.cfg.SourceName, "failure").Inc()
		return errors.Wrap(err, errors.ErrorTypeData, "failed to open part "+part.Name())
	}
	defer it.Close()
	metrics.PartsRead.WithLabelValues(p.cfg.SourceName, "success").Inc()

	for {
		row, err := it.Next()
		if err == io.EOF {
			metrics.ProcessingLatency.WithLabelValues("read", p.cfg.SourceName, p.cfg.SinkName).
				Observe(float64(timer.Stop().Nanoseconds()))
			return nil
		}
		if err != nil {
			return err
		}

		row, err = p.applyTransforms(ctx, row)
		if err != nil {
			p.mu.Lock()
			p.failed++
			p.mu.Unlock()
			if p.cfg.FailFast {
				return err
			}
			p.log.Error("transform failed", zap.Error(err))
			continue
		}
		if row == nil {
			continue
		}

		select {
		case rowChan <- row:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (p *Pipeline) applyTransforms(ctx context.Context, row *schema.Row) (*schema.Row, error) {
	for _, t := range p.transforms {
		var err error
		row, err = t(ctx, row)
		if err != nil {
			return nil, err
		}
		if row == nil {
			return nil, nil
		}
	}
	return row, nil
}

// writeRows drains rowChan into the sink.
func (p *Pipeline) writeRows(ctx context.Context, rowChan <-chan *schema.Row, tracker *metrics.ThroughputTracker) error {
	for {
		select {
		case row, ok := <-rowChan:
			if !ok {
				tracker.Publish()
				return nil
			}
			if err := p.sink.Write(ctx, row); err != nil {
				return errors.Wrap(err, errors.ErrorTypeData, "sink write failed")
			}
			tracker.Increment(1)
			p.mu.Lock()
			p.processed++
			p.mu.Unlock()

		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Metrics returns run counters for inspection after Run returns.
func (p *Pipeline) Metrics() map[string]interface{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return map[string]interface{}{
		"records_processed": p.processed,
		"records_failed":    p.failed,
		"workers":           p.cfg.Workers,
		"transforms":        len(p.transforms),
	}
}

// Common transforms

// FilterTransform keeps only rows the predicate accepts. Transforms must
// not change the row schema; column projection belongs on the source.
func FilterTransform(predicate func(*schema.Row) bool) Transform {
	return func(ctx context.Context, row *schema.Row) (*schema.Row, error) {
		if predicate(row) {
			return row, nil
		}
		return nil, nil
	}
}
