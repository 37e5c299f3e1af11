package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryReturnsSameMetric(t *testing.T) {
	r := NewRegistry("keebie")

	c := r.Counter("macros_total", "Macros started")
	c.Inc()
	r.Counter("macros_total", "ignored").Add(2)

	assert.Equal(t, uint64(3), c.Value())
	assert.Same(t, r.Gauge("open", ""), r.Gauge("open", ""))
}

func TestHistogramBuckets(t *testing.T) {
	r := NewRegistry("")
	h := r.Histogram("latency", "Latency", []float64{1, 0.1})

	h.Observe(0.05)
	h.Observe(0.1)
	h.Observe(0.5)
	h.Observe(3)

	assert.Equal(t, uint64(4), h.Count())
	assert.InDelta(t, 0.9125, h.Mean(), 1e-9)
	assert.Equal(t, []uint64{2, 3, 4}, h.cumulative())
}

func TestSnapshot(t *testing.T) {
	m := NewDaemonMetrics(nil)
	m.MacrosTotal.Inc()
	m.DevicesOpen.Set(2)
	m.PollDuration.ObserveDuration(2 * time.Millisecond)

	snap := m.Registry().Snapshot()
	assert.Equal(t, 1.0, snap["keebie_macros_total"])
	assert.Equal(t, 2.0, snap["keebie_devices_open"])
	assert.Equal(t, 1.0, snap["keebie_poll_duration_seconds_count"])
	assert.InDelta(t, 0.002, snap["keebie_poll_duration_seconds_mean"], 1e-9)
}

func TestWritePrometheus(t *testing.T) {
	r := NewRegistry("keebie")
	r.Counter("b_total", "B").Inc()
	r.Counter("a_total", "A")
	r.Histogram("poll_seconds", "Poll", []float64{0.5}).Observe(0.25)

	var b strings.Builder
	require.NoError(t, r.WritePrometheus(&b))
	out := b.String()

	assert.Less(t, strings.Index(out, "keebie_a_total"), strings.Index(out, "keebie_b_total"))
	assert.Contains(t, out, "# TYPE keebie_b_total counter\nkeebie_b_total 1\n")
	assert.Contains(t, out, "keebie_poll_seconds_bucket{le=\"0.5\"} 1\n")
	assert.Contains(t, out, "keebie_poll_seconds_bucket{le=\"+Inf\"} 1\n")
	assert.Contains(t, out, "keebie_poll_seconds_count 1\n")
}

func TestMetricTypeString(t *testing.T) {
	assert.Equal(t, "counter", TypeCounter.String())
	assert.Equal(t, "histogram", TypeHistogram.String())
	assert.Equal(t, "unknown", MetricType(9).String())
}
