package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestTimer(t *testing.T) {
	timer := NewTimer("test_op")
	time.Sleep(time.Millisecond)
	first := timer.Stop()
	assert.GreaterOrEqual(t, first, time.Millisecond)

	// Stop is repeatable and keeps measuring from the same start.
	second := timer.Stop()
	assert.GreaterOrEqual(t, second, first)
}

func TestThroughputTracker(t *testing.T) {
	tracker := NewThroughputTracker("csv", "parquet")
	tracker.Increment(500)
	tracker.Increment(500)
	time.Sleep(10 * time.Millisecond)

	rps := tracker.Publish()
	assert.Greater(t, rps, 0.0)
	assert.Equal(t, rps, testutil.ToFloat64(Throughput.WithLabelValues("csv", "parquet")))

	// The window resets after publishing.
	time.Sleep(time.Millisecond)
	assert.Zero(t, tracker.Publish())
}

func TestCounters(t *testing.T) {
	before := testutil.ToFloat64(RecordsProcessed.WithLabelValues("a", "b", "success"))
	RecordsProcessed.WithLabelValues("a", "b", "success").Add(42)
	assert.Equal(t, before+42, testutil.ToFloat64(RecordsProcessed.WithLabelValues("a", "b", "success")))

	before = testutil.ToFloat64(PartsRead.WithLabelValues("a", "success"))
	PartsRead.WithLabelValues("a", "success").Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(PartsRead.WithLabelValues("a", "success")))
}
