// Package metrics provides Prometheus-style counters, gauges and histograms.
//
// The daemon publishes a snapshot of its registry in its state file, so the
// values can be read from another process without a network endpoint.
package metrics

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// MetricType represents the type of metric.
type MetricType int

const (
	// TypeCounter is a monotonically increasing counter.
	TypeCounter MetricType = iota
	// TypeGauge is a value that can go up and down.
	TypeGauge
	// TypeHistogram is a distribution of values.
	TypeHistogram
)

// String returns the string representation of the metric type.
func (t MetricType) String() string {
	switch t {
	case TypeCounter:
		return "counter"
	case TypeGauge:
		return "gauge"
	case TypeHistogram:
		return "histogram"
	default:
		return "unknown"
	}
}

// Counter is a monotonically increasing counter.
type Counter struct {
	name  string
	help  string
	value atomic.Uint64
}

// Inc increments the counter by 1.
func (c *Counter) Inc() {
	c.value.Add(1)
}

// Add adds v to the counter.
func (c *Counter) Add(v uint64) {
	c.value.Add(v)
}

// Value returns the current value.
func (c *Counter) Value() uint64 {
	return c.value.Load()
}

// Gauge is a value that can go up and down.
type Gauge struct {
	name  string
	help  string
	value atomic.Int64
}

// Set sets the gauge to v.
func (g *Gauge) Set(v int64) {
	g.value.Store(v)
}

// Value returns the current value.
func (g *Gauge) Value() int64 {
	return g.value.Load()
}

// Histogram tracks the distribution of values.
type Histogram struct {
	name    string
	help    string
	buckets []float64

	mu     sync.Mutex
	counts []uint64 // per bucket, last is +Inf
	sum    float64
	count  uint64
}

// DurationBuckets are buckets for duration histograms, in seconds.
var DurationBuckets = []float64{
	0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1,
}

// Observe records a value.
func (h *Histogram) Observe(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.sum += v
	h.count++
	h.counts[sort.SearchFloat64s(h.buckets, v)]++
}

// ObserveDuration records a duration in seconds.
func (h *Histogram) ObserveDuration(d time.Duration) {
	h.Observe(d.Seconds())
}

// Count returns the number of observations.
func (h *Histogram) Count() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.count
}

// Mean returns the mean of observed values.
func (h *Histogram) Mean() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.count == 0 {
		return 0
	}
	return h.sum / float64(h.count)
}

// cumulative returns the Prometheus bucket counts.
func (h *Histogram) cumulative() []uint64 {
	out := make([]uint64, len(h.counts))
	var total uint64
	for i, c := range h.counts {
		total += c
		out[i] = total
	}
	return out
}

// Registry holds named metrics.
type Registry struct {
	mu         sync.RWMutex
	namespace  string
	counters   map[string]*Counter
	gauges     map[string]*Gauge
	histograms map[string]*Histogram
}

// NewRegistry creates a registry prefixing names with namespace.
func NewRegistry(namespace string) *Registry {
	return &Registry{
		namespace:  namespace,
		counters:   make(map[string]*Counter),
		gauges:     make(map[string]*Gauge),
		histograms: make(map[string]*Histogram),
	}
}

func (r *Registry) fullName(name string) string {
	if r.namespace == "" {
		return name
	}
	return r.namespace + "_" + name
}

// Counter returns the counter name, registering it on first use.
func (r *Registry) Counter(name, help string) *Counter {
	r.mu.Lock()
	defer r.mu.Unlock()
	full := r.fullName(name)
	if c, ok := r.counters[full]; ok {
		return c
	}
	c := &Counter{name: full, help: help}
	r.counters[full] = c
	return c
}

// Gauge returns the gauge name, registering it on first use.
func (r *Registry) Gauge(name, help string) *Gauge {
	r.mu.Lock()
	defer r.mu.Unlock()
	full := r.fullName(name)
	if g, ok := r.gauges[full]; ok {
		return g
	}
	g := &Gauge{name: full, help: help}
	r.gauges[full] = g
	return g
}

// Histogram returns the histogram name, registering it on first use.
func (r *Registry) Histogram(name, help string, buckets []float64) *Histogram {
	r.mu.Lock()
	defer r.mu.Unlock()
	full := r.fullName(name)
	if h, ok := r.histograms[full]; ok {
		return h
	}
	if buckets == nil {
		buckets = DurationBuckets
	}
	sorted := slices.Clone(buckets)
	slices.Sort(sorted)
	h := &Histogram{
		name:    full,
		help:    help,
		buckets: sorted,
		counts:  make([]uint64, len(sorted)+1),
	}
	r.histograms[full] = h
	return h
}

// Snapshot returns every value by name. Histograms contribute _count and
// _mean entries.
func (r *Registry) Snapshot() map[string]float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snapshot := make(map[string]float64, len(r.counters)+len(r.gauges)+2*len(r.histograms))
	for name, c := range r.counters {
		snapshot[name] = float64(c.Value())
	}
	for name, g := range r.gauges {
		snapshot[name] = float64(g.Value())
	}
	for name, h := range r.histograms {
		snapshot[name+"_count"] = float64(h.Count())
		snapshot[name+"_mean"] = h.Mean()
	}
	return snapshot
}

// WritePrometheus writes every metric in the Prometheus text format,
// sorted by name.
func (r *Registry) WritePrometheus(w io.Writer) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var b strings.Builder
	for _, name := range slices.Sorted(maps.Keys(r.counters)) {
		c := r.counters[name]
		writeHeader(&b, name, c.help, TypeCounter)
		fmt.Fprintf(&b, "%s %d\n", name, c.Value())
	}
	for _, name := range slices.Sorted(maps.Keys(r.gauges)) {
		g := r.gauges[name]
		writeHeader(&b, name, g.help, TypeGauge)
		fmt.Fprintf(&b, "%s %d\n", name, g.Value())
	}
	for _, name := range slices.Sorted(maps.Keys(r.histograms)) {
		h := r.histograms[name]
		h.mu.Lock()
		writeHeader(&b, name, h.help, TypeHistogram)
		cum := h.cumulative()
		for i, bound := range h.buckets {
			fmt.Fprintf(&b, "%s_bucket{le=\"%g\"} %d\n", name, bound, cum[i])
		}
		fmt.Fprintf(&b, "%s_bucket{le=\"+Inf\"} %d\n", name, cum[len(cum)-1])
		fmt.Fprintf(&b, "%s_sum %g\n", name, h.sum)
		fmt.Fprintf(&b, "%s_count %d\n", name, h.count)
		h.mu.Unlock()
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func writeHeader(b *strings.Builder, name, help string, t MetricType) {
	fmt.Fprintf(b, "# HELP %s %s\n", name, help)
	fmt.Fprintf(b, "# TYPE %s %s\n", name, t)
}
