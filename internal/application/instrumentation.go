package application

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/example/attendance-tracker/internal/attendance"
)

const instrumentationName = "github.com/example/attendance-tracker/internal/application"

// Metrics receives domain events worth counting. Implementations must be safe
// for concurrent use.
type Metrics interface {
	ObserveTransition(action ScanAction, err error)
	ObserveCheckOut(zoneID string, breakdown attendance.Breakdown)
	ObserveGoalMet()
	ObserveBadgeTransition(from, to attendance.BadgeState)
}

type noopMetrics struct{}

func (noopMetrics) ObserveTransition(ScanAction, error)                                 {}
func (noopMetrics) ObserveCheckOut(string, attendance.Breakdown)                        {}
func (noopMetrics) ObserveGoalMet()                                                     {}
func (noopMetrics) ObserveBadgeTransition(attendance.BadgeState, attendance.BadgeState) {}

func defaultMetrics(m Metrics) Metrics {
	if m != nil {
		return m
	}
	return noopMetrics{}
}

// startSpan opens a span on the global tracer provider. Without a configured
// provider the span is a no-op.
func startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(instrumentationName).Start(ctx, name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, ErrorKind(err))
	}
	span.End()
}
