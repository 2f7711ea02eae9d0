package registry

import (
	"context"
	"time"

	"organcore/pkg/domain"
)

// Logger is the minimal structured logging surface the service writes to.
// Arguments follow the slog convention of alternating key/value pairs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// AuditStatus marks an audit entry outcome.
type AuditStatus string

// Audit entry outcomes.
const (
	AuditStatusSuccess AuditStatus = "success"
	AuditStatusError   AuditStatus = "error"
)

// AuditEntry captures one service operation for the audit trail.
type AuditEntry struct {
	Operation string            `json:"operation"`
	Entity    domain.EntityType `json:"entity"`
	Action    domain.Action     `json:"action"`
	EntityID  string            `json:"entity_id"`
	Status    AuditStatus       `json:"status"`
	Note      string            `json:"note,omitempty"`
	Error     string            `json:"error,omitempty"`
	Duration  time.Duration     `json:"duration"`
	Timestamp time.Time         `json:"timestamp"`
}

// AuditRecorder receives audit entries for durable trail keeping.
type AuditRecorder interface {
	Record(ctx context.Context, entry AuditEntry)
}

// MetricsRecorder aggregates operation timings and outcomes.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}

// Span ends a traced operation.
type Span interface {
	End(err error)
}

// Tracer starts spans around service operations.
type Tracer interface {
	Start(ctx context.Context, operation string) (context.Context, Span)
}

// Clock abstracts wall-clock reads for createdAt stamps and wait-time
// scoring.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to the Clock interface.
type ClockFunc func() time.Time

// Now returns the function's current time.
func (f ClockFunc) Now() time.Time { return f() }

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

type noopAuditRecorder struct{}

func (noopAuditRecorder) Record(context.Context, AuditEntry) {}

type noopMetricsRecorder struct{}

func (noopMetricsRecorder) Observe(context.Context, string, bool, time.Duration) {}

type noopSpan struct{}

func (noopSpan) End(error) {}

type noopTracer struct{}

func (noopTracer) Start(ctx context.Context, _ string) (context.Context, Span) {
	return ctx, noopSpan{}
}
