// Package promadapters implements the subsystem metrics interface on Prometheus client collectors.
package promadapters

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/AntonStoeckl/subsystem-go/subsystem"
)

// DefaultBuckets spans 1ms to about 16s.
var DefaultBuckets = prometheus.ExponentialBuckets(0.001, 2, 15)

// MetricsCollector implements subsystem.MetricsCollector with Prometheus vectors.
//
// A vector is created and registered the first time a metric name is seen. Its label names are the
// keys of that first call; later calls fill missing labels with "" and drop unknown ones.
type MetricsCollector struct {
	registerer prometheus.Registerer
	buckets    []float64

	mu         sync.Mutex
	histograms map[string]*labeled[*prometheus.HistogramVec]
	counters   map[string]*labeled[*prometheus.CounterVec]
	gauges     map[string]*labeled[*prometheus.GaugeVec]
}

type labeled[V any] struct {
	vec    V
	labels []string
}

// Option configures a MetricsCollector.
type Option func(*MetricsCollector)

// WithBuckets sets the histogram buckets, in seconds.
func WithBuckets(buckets []float64) Option {
	return func(c *MetricsCollector) {
		c.buckets = buckets
	}
}

// NewMetricsCollector creates a collector that registers its vectors with registerer.
func NewMetricsCollector(registerer prometheus.Registerer, opts ...Option) *MetricsCollector {
	c := &MetricsCollector{
		registerer: registerer,
		buckets:    DefaultBuckets,
		histograms: make(map[string]*labeled[*prometheus.HistogramVec]),
		counters:   make(map[string]*labeled[*prometheus.CounterVec]),
		gauges:     make(map[string]*labeled[*prometheus.GaugeVec]),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// RecordDuration observes duration in seconds.
func (c *MetricsCollector) RecordDuration(name string, duration time.Duration, labels map[string]string) {
	c.mu.Lock()
	h, ok := c.histograms[name]
	if !ok {
		names := labelNames(labels)
		vec := prometheus.NewHistogramVec(prometheus.HistogramOpts{Name: name, Help: "Duration of " + name, Buckets: c.buckets}, names)
		h = &labeled[*prometheus.HistogramVec]{vec: register(c.registerer, vec), labels: names}
		c.histograms[name] = h
	}
	c.mu.Unlock()

	if observer, err := h.vec.GetMetricWithLabelValues(labelValues(h.labels, labels)...); err == nil {
		observer.Observe(duration.Seconds())
	}
}

// IncrementCounter adds one to the counter.
func (c *MetricsCollector) IncrementCounter(name string, labels map[string]string) {
	c.mu.Lock()
	counter, ok := c.counters[name]
	if !ok {
		names := labelNames(labels)
		vec := prometheus.NewCounterVec(prometheus.CounterOpts{Name: name, Help: "Count of " + name}, names)
		counter = &labeled[*prometheus.CounterVec]{vec: register(c.registerer, vec), labels: names}
		c.counters[name] = counter
	}
	c.mu.Unlock()

	if metric, err := counter.vec.GetMetricWithLabelValues(labelValues(counter.labels, labels)...); err == nil {
		metric.Inc()
	}
}

// RecordValue sets the gauge.
func (c *MetricsCollector) RecordValue(name string, value float64, labels map[string]string) {
	c.mu.Lock()
	gauge, ok := c.gauges[name]
	if !ok {
		names := labelNames(labels)
		vec := prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: name, Help: "Current " + name}, names)
		gauge = &labeled[*prometheus.GaugeVec]{vec: register(c.registerer, vec), labels: names}
		c.gauges[name] = gauge
	}
	c.mu.Unlock()

	if metric, err := gauge.vec.GetMetricWithLabelValues(labelValues(gauge.labels, labels)...); err == nil {
		metric.Set(value)
	}
}

// register registers vec, or returns the equal collector that is already registered.
func register[V prometheus.Collector](registerer prometheus.Registerer, vec V) V {
	if registerer == nil {
		return vec
	}

	if err := registerer.Register(vec); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(V); ok {
				return existing
			}
		}
	}

	return vec
}

func labelNames(labels map[string]string) []string {
	names := make([]string, 0, len(labels))
	for name := range labels {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

func labelValues(names []string, labels map[string]string) []string {
	values := make([]string, len(names))
	for i, name := range names {
		values[i] = labels[name]
	}

	return values
}

var _ subsystem.MetricsCollector = (*MetricsCollector)(nil)
