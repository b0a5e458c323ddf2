package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/xraph/mirror"

// Tracer provides OpenTelemetry spans for queued tasks, catch-up pages and
// event application.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer creates a tracer from the global provider.
func NewTracer() *Tracer {
	return &Tracer{
		tracer: otel.Tracer(tracerName),
	}
}

// StartTaskSpan starts a span for one attempt of a queued task.
func (t *Tracer) StartTaskSpan(ctx context.Context, taskID, kind string, attempt int) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "mirror.task",
		trace.WithAttributes(
			attribute.String("mirror.task_id", taskID),
			attribute.String("mirror.task_kind", kind),
			attribute.Int("mirror.attempt", attempt),
		),
	)
}

// StartPageSpan starts a span for one list-events round trip.
func (t *Tracer) StartPageSpan(ctx context.Context, after string, page int) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "mirror.catchup.page",
		trace.WithAttributes(
			attribute.String("mirror.after", after),
			attribute.Int("mirror.page", page),
		),
	)
}

// StartApplySpan starts a span for applying one event.
func (t *Tracer) StartApplySpan(ctx context.Context, eventID, eventType string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "mirror.apply",
		trace.WithAttributes(
			attribute.String("mirror.event_id", eventID),
			attribute.String("mirror.event_type", eventType),
		),
	)
}

// End finishes span, recording err when non-nil.
func (t *Tracer) End(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
