package observability

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics provides counter, gauge, and histogram recording primitives.
type Metrics interface {
	IncCounter(name string, value float64, labels map[string]string)
	ObserveHistogram(name string, value float64, labels map[string]string)
	SetGauge(name string, value float64, labels map[string]string)
}

var defaultMetrics Metrics = noopMetrics{}

// SetMetrics overrides the global metrics implementation used by the system.
func SetMetrics(metrics Metrics) {
	if metrics == nil {
		defaultMetrics = noopMetrics{}
		return
	}
	defaultMetrics = metrics
}

// Telemetry returns the current global metrics collector.
func Telemetry() Metrics {
	return defaultMetrics
}

type noopMetrics struct{}

func (noopMetrics) IncCounter(string, float64, map[string]string)       {}
func (noopMetrics) ObserveHistogram(string, float64, map[string]string) {}
func (noopMetrics) SetGauge(string, float64, map[string]string)         {}

// OtelMetrics records measurements through an OpenTelemetry meter,
// creating instruments lazily on first use per name.
type OtelMetrics struct {
	meter metric.Meter

	mu         sync.Mutex
	counters   map[string]metric.Float64Counter
	histograms map[string]metric.Float64Histogram
	gauges     map[string]metric.Float64Gauge
}

// NewOtelMetrics wraps the provided meter in a Metrics implementation.
func NewOtelMetrics(meter metric.Meter) *OtelMetrics {
	return &OtelMetrics{
		meter:      meter,
		counters:   make(map[string]metric.Float64Counter),
		histograms: make(map[string]metric.Float64Histogram),
		gauges:     make(map[string]metric.Float64Gauge),
	}
}

// IncCounter adds value to the named counter.
func (m *OtelMetrics) IncCounter(name string, value float64, labels map[string]string) {
	m.mu.Lock()
	counter, ok := m.counters[name]
	if !ok {
		created, err := m.meter.Float64Counter(name)
		if err != nil {
			m.mu.Unlock()
			return
		}
		counter = created
		m.counters[name] = counter
	}
	m.mu.Unlock()
	counter.Add(context.Background(), value, metric.WithAttributes(attrs(labels)...))
}

// ObserveHistogram records value into the named histogram.
func (m *OtelMetrics) ObserveHistogram(name string, value float64, labels map[string]string) {
	m.mu.Lock()
	histogram, ok := m.histograms[name]
	if !ok {
		created, err := m.meter.Float64Histogram(name)
		if err != nil {
			m.mu.Unlock()
			return
		}
		histogram = created
		m.histograms[name] = histogram
	}
	m.mu.Unlock()
	histogram.Record(context.Background(), value, metric.WithAttributes(attrs(labels)...))
}

// SetGauge records the latest value for the named gauge.
func (m *OtelMetrics) SetGauge(name string, value float64, labels map[string]string) {
	m.mu.Lock()
	gauge, ok := m.gauges[name]
	if !ok {
		created, err := m.meter.Float64Gauge(name)
		if err != nil {
			m.mu.Unlock()
			return
		}
		gauge = created
		m.gauges[name] = gauge
	}
	m.mu.Unlock()
	gauge.Record(context.Background(), value, metric.WithAttributes(attrs(labels)...))
}

func attrs(labels map[string]string) []attribute.KeyValue {
	if len(labels) == 0 {
		return nil
	}
	kvs := make([]attribute.KeyValue, 0, len(labels))
	for k, v := range labels {
		kvs = append(kvs, attribute.String(k, v))
	}
	return kvs
}
