package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// tracerName identifies spans emitted by the fan-out run loop under the
// global TracerProvider installed by Init (or the noop default).
const tracerName = "github.com/flightscout/orchestrator/internal/worker"

// StartWorkerSpan opens a span covering one worker state, named after the
// state itself (e.g. "worker.PROBING"), tagged with the date-pair id.
// Callers end the span when the state transitions or the worker terminates.
func StartWorkerSpan(ctx context.Context, pairID int, state string) (context.Context, trace.Span) {
	tracer := otel.Tracer(tracerName)
	return tracer.Start(ctx, "worker."+state,
		trace.WithAttributes(
			attribute.Int("pair_id", pairID),
			attribute.String("worker.state", state),
		),
	)
}

// RecordStateTransition annotates span with an event marking the state
// machine moving from one named state to another.
func RecordStateTransition(span trace.Span, fromState, toState string) {
	span.AddEvent("state_transition", trace.WithAttributes(
		attribute.String("from_state", fromState),
		attribute.String("to_state", toState),
	))
}
