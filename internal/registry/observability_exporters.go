package registry

import (
	"context"
	"encoding/json"
	"expvar"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ExpvarMetricsRecorder publishes per-operation counters and cumulative
// latency on an expvar map, readable from the default /debug/vars endpoint.
type ExpvarMetricsRecorder struct {
	vars *expvar.Map
}

var expvarMapSequence atomic.Int64

// NewExpvarMetricsRecorder publishes a fresh expvar map. Each recorder gets
// a unique map name because expvar forbids republishing.
func NewExpvarMetricsRecorder() *ExpvarMetricsRecorder {
	name := fmt.Sprintf("organcore_metrics_%d", expvarMapSequence.Add(1))
	return &ExpvarMetricsRecorder{vars: expvar.NewMap(name)}
}

// Observe records one operation outcome.
func (r *ExpvarMetricsRecorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	outcome := "success"
	if !success {
		outcome = "error"
	}
	r.vars.Add(operation+"_"+outcome+"_total", 1)
	r.vars.Add(operation+"_duration_ns", duration.Nanoseconds())
}

// String renders the underlying expvar map as JSON.
func (r *ExpvarMetricsRecorder) String() string { return r.vars.String() }

// PrometheusMetricsRecorder exports operation counts and latency histograms
// through a prometheus registry.
type PrometheusMetricsRecorder struct {
	durations *prometheus.HistogramVec
	outcomes  *prometheus.CounterVec
}

// NewPrometheusMetricsRecorder registers the collectors with reg. A nil reg
// falls back to the default registerer.
func NewPrometheusMetricsRecorder(reg prometheus.Registerer) *PrometheusMetricsRecorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &PrometheusMetricsRecorder{
		durations: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "organcore_operation_duration_seconds",
			Help:    "Latency of registry service operations.",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		outcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "organcore_operations_total",
			Help: "Registry service operations by outcome.",
		}, []string{"operation", "status"}),
	}
}

// Observe records one operation outcome.
func (r *PrometheusMetricsRecorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	status := "success"
	if !success {
		status = "error"
	}
	r.durations.WithLabelValues(operation).Observe(duration.Seconds())
	r.outcomes.WithLabelValues(operation, status).Inc()
}

// JSONTraceTracer emits one JSON line per finished span.
type JSONTraceTracer struct {
	mu  sync.Mutex
	out io.Writer
	enc *json.Encoder
}

// NewJSONTraceTracer writes trace events to out.
func NewJSONTraceTracer(out io.Writer) *JSONTraceTracer {
	return &JSONTraceTracer{out: out, enc: json.NewEncoder(out)}
}

type traceEvent struct {
	Operation string        `json:"operation"`
	Start     time.Time     `json:"start"`
	Duration  time.Duration `json:"duration"`
	Error     string        `json:"error,omitempty"`
}

type jsonSpan struct {
	tracer    *JSONTraceTracer
	operation string
	start     time.Time
}

// Start begins a span for operation.
func (t *JSONTraceTracer) Start(ctx context.Context, operation string) (context.Context, Span) {
	return ctx, &jsonSpan{tracer: t, operation: operation, start: time.Now()}
}

func (s *jsonSpan) End(err error) {
	event := traceEvent{
		Operation: s.operation,
		Start:     s.start,
		Duration:  time.Since(s.start),
	}
	if err != nil {
		event.Error = err.Error()
	}
	s.tracer.mu.Lock()
	defer s.tracer.mu.Unlock()
	_ = s.tracer.enc.Encode(event)
}

// MemoryAuditRecorder retains entries in memory, primarily for tests and
// demo wiring.
type MemoryAuditRecorder struct {
	mu      sync.Mutex
	entries []AuditEntry
}

// NewMemoryAuditRecorder returns an empty recorder.
func NewMemoryAuditRecorder() *MemoryAuditRecorder { return &MemoryAuditRecorder{} }

// Record appends entry.
func (r *MemoryAuditRecorder) Record(_ context.Context, entry AuditEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
}

// Entries returns a copy of the recorded entries.
func (r *MemoryAuditRecorder) Entries() []AuditEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]AuditEntry, len(r.entries))
	copy(out, r.entries)
	return out
}
