// Package metrics provides Prometheus metrics for Strata pipelines:
// throughput, latency and per-connector progress counters.
//
// Example:
//
//	metrics.RecordsProcessed.WithLabelValues("csv", "parquet", "success").Add(1000)
//
//	timer := metrics.NewTimer("write_batch")
//	writeBatch(rows)
//	metrics.ProcessingLatency.WithLabelValues("write", "csv", "parquet").
//	    Observe(float64(timer.Stop().Nanoseconds()))
package metrics

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RecordsProcessed tracks the total number of rows moved across all
	// pipelines. Labels: source, sink, status (success/failure).
	RecordsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "strata_records_processed_total",
			Help: "Total number of rows processed",
		},
		[]string{"source", "sink", "status"},
	)

	// ProcessingLatency tracks the distribution of per-operation
	// latencies in nanoseconds. Labels: operation (read/write), source,
	// sink.
	ProcessingLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "strata_processing_latency_nanoseconds",
			Help: "Processing latency in nanoseconds",
			Buckets: []float64{
				1000,   // 1μs
				10000,  // 10μs
				100000, // 100μs
				1e6,    // 1ms
				1e7,    // 10ms
				1e8,    // 100ms
				1e9,    // 1s
			},
		},
		[]string{"operation", "source", "sink"},
	)

	// PartsRead counts source parts opened. Labels: source, status.
	PartsRead = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "strata_parts_read_total",
			Help: "Total number of source parts opened",
		},
		[]string{"source", "status"},
	)

	// Throughput tracks rows per second per pipeline.
	Throughput = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "strata_throughput_records_per_second",
			Help: "Current throughput in rows per second",
		},
		[]string{"source", "sink"},
	)
)

// Timer measures operation durations. It captures the start time on
// creation and calculates elapsed time on Stop.
type Timer struct {
	start time.Time
	name  string
}

// NewTimer creates a timer and starts timing immediately.
func NewTimer(name string) *Timer {
	return &Timer{start: time.Now(), name: name}
}

// Stop returns the elapsed duration since creation. It may be called
// multiple times.
func (t *Timer) Stop() time.Duration {
	return time.Since(t.start)
}

// ThroughputTracker tracks rows per second over the window since the
// last reset. It is safe for concurrent use.
type ThroughputTracker struct {
	source string
	sink   string
	count  int64
	mu     sync.Mutex
	since  time.Time
}

// NewThroughputTracker creates a tracker labeled with the pipeline's
// source and sink names.
func NewThroughputTracker(source, sink string) *ThroughputTracker {
	return &ThroughputTracker{source: source, sink: sink, since: time.Now()}
}

// Increment adds n rows to the current window.
func (t *ThroughputTracker) Increment(n int64) {
	atomic.AddInt64(&t.count, n)
}

// Publish computes the window's rows per second, publishes it to the
// Throughput gauge and starts a new window.
func (t *ThroughputTracker) Publish() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	elapsed := time.Since(t.since).Seconds()
	count := atomic.SwapInt64(&t.count, 0)
	t.since = time.Now()

	if elapsed <= 0 {
		return 0
	}
	rps := float64(count) / elapsed
	Throughput.WithLabelValues(t.source, t.sink).Set(rps)
	return rps
}
