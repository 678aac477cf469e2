package observability

import (
	"context"
	"sync"
)

type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	With(fields ...Field) Logger
}

type Field interface {
	Key() string
	Value() interface{}
}

type field struct {
	key string
	val interface{}
}

func (f field) Key() string        { return f.key }
func (f field) Value() interface{} { return f.val }

func String(key, value string) Field        { return field{key, value} }
func Int(key string, value int) Field       { return field{key, value} }
func Int64(key string, value int64) Field   { return field{key, value} }
func Float(key string, value float64) Field { return field{key, value} }
func Bool(key string, value bool) Field     { return field{key, value} }
func Error(key string, err error) Field     { return field{key, err} }

type NopLogger struct{}

func (NopLogger) Debug(string, ...Field) {}
func (NopLogger) Info(string, ...Field)  {}
func (NopLogger) Warn(string, ...Field)  {}
func (NopLogger) Error(string, ...Field) {}
func (NopLogger) With(...Field) Logger   { return NopLogger{} }

// Tracer provides distributed tracing hooks for render and overlay operations.
type Tracer interface {
	StartSpan(ctx context.Context, name string) (context.Context, Span)
}

// Span represents a tracing span.
type Span interface {
	SetTag(key string, value interface{})
	SetError(err error)
	Finish()
}

type nopTracer struct{}

func (nopTracer) StartSpan(ctx context.Context, _ string) (context.Context, Span) {
	return ctx, nopSpan{}
}

// NopTracer returns a tracer that does nothing.
func NopTracer() Tracer { return nopTracer{} }

type nopSpan struct{}

func (nopSpan) SetTag(string, interface{}) {}
func (nopSpan) SetError(error)             {}
func (nopSpan) Finish()                    {}

// Metrics receives counters and observations emitted by the viewer core.
type Metrics interface {
	Count(name string, delta int64)
	Observe(name string, value float64)
}

type NopMetrics struct{}

func (NopMetrics) Count(string, int64)     {}
func (NopMetrics) Observe(string, float64) {}

// CounterMetrics keeps counters and the last observed value per name in memory.
type CounterMetrics struct {
	mu       sync.Mutex
	counters map[string]int64
	last     map[string]float64
}

func NewCounterMetrics() *CounterMetrics {
	return &CounterMetrics{
		counters: make(map[string]int64),
		last:     make(map[string]float64),
	}
}

func (m *CounterMetrics) Count(name string, delta int64) {
	m.mu.Lock()
	m.counters[name] += delta
	m.mu.Unlock()
}

func (m *CounterMetrics) Observe(name string, value float64) {
	m.mu.Lock()
	m.last[name] = value
	m.mu.Unlock()
}

// Counter returns the current value of a counter.
func (m *CounterMetrics) Counter(name string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counters[name]
}

// Snapshot copies all counters.
func (m *CounterMetrics) Snapshot() map[string]int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]int64, len(m.counters))
	for k, v := range m.counters {
		out[k] = v
	}
	return out
}

// Standard metric names emitted by the viewer core.
const (
	MetricRenderTime      = "render.duration"
	MetricRenderCount     = "render.count"
	MetricRenderFailures  = "render.failures"
	MetricCacheHits       = "cache.hits"
	MetricCacheMisses     = "cache.misses"
	MetricCacheEvictions  = "cache.evictions"
	MetricPrefetchQueued  = "prefetch.scheduled"
	MetricPrefetchSkipped = "prefetch.skipped"
	MetricPrefetchFailed  = "prefetch.failures"
	MetricOverlayTime     = "overlay.duration"
)
