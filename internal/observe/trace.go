package observe

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// tracerName is the instrumentation scope name for duskmire spans.
const tracerName = "duskmire"

// Turn causes recorded on cognition-turn spans. Witness turns are triggered
// by a player event in the NPC's room; heartbeat turns fire on the profile's
// idle timer.
const (
	TurnCauseWitness   = "witness"
	TurnCauseHeartbeat = "heartbeat"
)

// StartTurnSpan opens a span covering one NPC cognition turn, from trigger
// through the model call to the applied actions. The span carries the NPC id
// and what woke it, so a slow model call in a trace points straight at the
// profile responsible. The caller must End the returned span.
func StartTurnSpan(ctx context.Context, npcID, cause string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "npc.cognition_turn",
		trace.WithAttributes(
			attribute.String("npc.id", npcID),
			attribute.String("turn.cause", cause),
		))
}

// StartSpan opens a span under duskmire's tracer scope. The diagnostics
// middleware uses it for per-request server spans; domain code prefers
// purpose-built helpers such as [StartTurnSpan].
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, name, opts...)
}

// CorrelationID returns the active trace id in ctx, or the empty string.
// The diagnostics middleware reflects it in the X-Correlation-ID header.
func CorrelationID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

// Logger returns an [slog.Logger] carrying the trace_id and span_id of the
// active span in ctx, so log lines written during a cognition turn join up
// with the turn's span. Without an active span it is the default logger.
func Logger(ctx context.Context) *slog.Logger {
	l := slog.Default()
	sc := trace.SpanContextFromContext(ctx)
	if sc.HasTraceID() {
		l = l.With(
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	return l
}
