// Package metrics provides a lightweight, Prometheus-compatible metrics
// collector for the advisor gateway. It outputs text/plain in Prometheus
// exposition format without requiring the heavy prometheus/client_golang
// dependency.
package metrics

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Collector is the global metrics collector.
var Collector = NewMetricsCollector()

// MetricsCollector aggregates counters, gauges, and histograms.
type MetricsCollector struct {
	counters   sync.Map // key -> *Counter
	gauges     sync.Map // key -> *Gauge
	histograms sync.Map // key -> *Histogram
	startTime  time.Time
}

// NewMetricsCollector creates a new collector.
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{startTime: time.Now()}
}

// Uptime returns how long the collector has been running.
func (c *MetricsCollector) Uptime() time.Duration {
	return time.Since(c.startTime)
}

// Counter is a monotonically increasing counter.
type Counter struct {
	name   string
	help   string
	labels string
	value  atomic.Int64
}

// Inc increments the counter by 1.
func (c *Counter) Inc() { c.value.Add(1) }

// Add increments the counter by n.
func (c *Counter) Add(n int64) { c.value.Add(n) }

// Value returns the current counter value.
func (c *Counter) Value() int64 { return c.value.Load() }

// Gauge is a value that can go up and down.
type Gauge struct {
	name   string
	help   string
	labels string
	value  atomic.Int64
}

// Set sets the gauge to the given value.
func (g *Gauge) Set(v int64) { g.value.Store(v) }

// Inc increments the gauge by 1.
func (g *Gauge) Inc() { g.value.Add(1) }

// Dec decrements the gauge by 1.
func (g *Gauge) Dec() { g.value.Add(-1) }

// Value returns the current gauge value.
func (g *Gauge) Value() int64 { return g.value.Load() }

// Histogram tracks the distribution of values.
type Histogram struct {
	name    string
	help    string
	labels  string
	mu      sync.Mutex
	count   int64
	sum     float64
	buckets []histBucket
}

type histBucket struct {
	le    float64
	count int64
}

// Observe records a value in the histogram.
func (h *Histogram) Observe(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
	h.sum += v
	for i := range h.buckets {
		if v <= h.buckets[i].le {
			h.buckets[i].count++
		}
	}
}

// --- Registration helpers ---

// Counter returns or creates a counter with the given name.
func (c *MetricsCollector) Counter(name, help, labels string) *Counter {
	key := name + "{" + labels + "}"
	if v, ok := c.counters.Load(key); ok {
		return v.(*Counter)
	}
	ctr := &Counter{name: name, help: help, labels: labels}
	actual, _ := c.counters.LoadOrStore(key, ctr)
	return actual.(*Counter)
}

// Gauge returns or creates a gauge with the given name.
func (c *MetricsCollector) Gauge(name, help, labels string) *Gauge {
	key := name + "{" + labels + "}"
	if v, ok := c.gauges.Load(key); ok {
		return v.(*Gauge)
	}
	g := &Gauge{name: name, help: help, labels: labels}
	actual, _ := c.gauges.LoadOrStore(key, g)
	return actual.(*Gauge)
}

// defaultBuckets covers external-service latencies in seconds.
var defaultBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}

// Histogram returns or creates a histogram with the given name.
func (c *MetricsCollector) Histogram(name, help, labels string) *Histogram {
	key := name + "{" + labels + "}"
	if v, ok := c.histograms.Load(key); ok {
		return v.(*Histogram)
	}
	buckets := make([]histBucket, len(defaultBuckets))
	for i, le := range defaultBuckets {
		buckets[i] = histBucket{le: le}
	}
	h := &Histogram{name: name, help: help, labels: labels, buckets: buckets}
	actual, _ := c.histograms.LoadOrStore(key, h)
	return actual.(*Histogram)
}

// --- Exposition ---

// Handler serves the collected metrics in Prometheus text format.
func (c *MetricsCollector) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		fmt.Fprint(w, c.Render())
	})
}

// Render produces the Prometheus exposition text for all metrics.
func (c *MetricsCollector) Render() string {
	var b strings.Builder

	var lines []string
	c.counters.Range(func(_, v any) bool {
		ctr := v.(*Counter)
		lines = append(lines, expoLine(ctr.name, ctr.help, "counter", ctr.labels, fmt.Sprintf("%d", ctr.Value())))
		return true
	})
	c.gauges.Range(func(_, v any) bool {
		g := v.(*Gauge)
		lines = append(lines, expoLine(g.name, g.help, "gauge", g.labels, fmt.Sprintf("%d", g.Value())))
		return true
	})
	c.histograms.Range(func(_, v any) bool {
		h := v.(*Histogram)
		lines = append(lines, h.render())
		return true
	})
	sort.Strings(lines)

	for _, l := range lines {
		b.WriteString(l)
	}
	fmt.Fprintf(&b, "# HELP process_uptime_seconds Time since the collector started.\n")
	fmt.Fprintf(&b, "# TYPE process_uptime_seconds gauge\n")
	fmt.Fprintf(&b, "process_uptime_seconds %.0f\n", c.Uptime().Seconds())
	return b.String()
}

func expoLine(name, help, typ, labels, value string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# HELP %s %s\n# TYPE %s %s\n", name, help, name, typ)
	if labels != "" {
		fmt.Fprintf(&b, "%s{%s} %s\n", name, labels, value)
	} else {
		fmt.Fprintf(&b, "%s %s\n", name, value)
	}
	return b.String()
}

func (h *Histogram) render() string {
	h.mu.Lock()
	defer h.mu.Unlock()

	var b strings.Builder
	fmt.Fprintf(&b, "# HELP %s %s\n# TYPE %s histogram\n", h.name, h.help, h.name)
	label := func(le string) string {
		if h.labels != "" {
			return h.labels + ",le=\"" + le + "\""
		}
		return "le=\"" + le + "\""
	}
	for _, bkt := range h.buckets {
		fmt.Fprintf(&b, "%s_bucket{%s} %d\n", h.name, label(fmt.Sprintf("%g", bkt.le)), bkt.count)
	}
	fmt.Fprintf(&b, "%s_bucket{%s} %d\n", h.name, label("+Inf"), h.count)
	if h.labels != "" {
		fmt.Fprintf(&b, "%s_sum{%s} %g\n", h.name, h.labels, h.sum)
		fmt.Fprintf(&b, "%s_count{%s} %d\n", h.name, h.labels, h.count)
	} else {
		fmt.Fprintf(&b, "%s_sum %g\n", h.name, h.sum)
		fmt.Fprintf(&b, "%s_count %d\n", h.name, h.count)
	}
	return b.String()
}
