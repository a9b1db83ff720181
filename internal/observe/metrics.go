// Package observe provides application-wide observability primitives for
// duskmire: OpenTelemetry metrics, tracing helpers, structured logging, and
// HTTP middleware for the diagnostics endpoint.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all duskmire metrics.
const meterName = "duskmire"

// Tick phase attribute values recorded on [Metrics.TickPhaseDuration].
const (
	PhaseHeartbeat = "heartbeat"
	PhaseCallout   = "callout"
	PhaseCombat    = "combat"
	PhaseInput     = "input"
	PhaseCognition = "cognition"
	PhaseDeliver   = "deliver"
)

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// TickPhaseDuration tracks per-phase world tick latency. Use with
	// attribute: attribute.String("phase", ...) — see the Phase* constants.
	TickPhaseDuration metric.Float64Histogram

	// LLMDuration tracks language-model request latency. Use with attribute:
	//   attribute.String("profile", ...)
	LLMDuration metric.Float64Histogram

	// HTTPRequestDuration tracks diagnostics endpoint latency. Use with
	// attributes: attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram

	// --- Counters ---

	// LLMRequests counts language-model calls. Use with attributes:
	//   attribute.String("profile", ...), attribute.String("status", ...)
	LLMRequests metric.Int64Counter

	// MemoryWrites counts asynchronous memory store writes. Use with
	// attribute: attribute.String("status", "ok"|"error")
	MemoryWrites metric.Int64Counter

	// MemoryQueueDropped counts memories discarded when the write queue
	// overflows (oldest-first drops).
	MemoryQueueDropped metric.Int64Counter

	// NPCTurns counts completed NPC cognition turns. Use with attribute:
	//   attribute.String("npc_id", ...)
	NPCTurns metric.Int64Counter

	// NPCActions counts executed NPC commands. Use with attributes:
	//   attribute.String("verb", ...), attribute.String("status", ...)
	NPCActions metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of connected player sessions.
	ActiveSessions metric.Int64UpDownCounter

	// meter is retained for late-bound observable registration
	// (see RegisterQueueDepth).
	meter metric.Meter
}

// tickBuckets defines histogram bucket boundaries (in seconds) for the world
// tick phases, which run well below a second when healthy.
var tickBuckets = []float64{
	0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 1,
}

// latencyBuckets defines histogram bucket boundaries (in seconds) for
// request-scale latencies such as LLM calls.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{meter: m}

	// Histograms.
	if met.TickPhaseDuration, err = m.Float64Histogram("duskmire.tick.phase.duration",
		metric.WithDescription("Latency of one world tick phase."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(tickBuckets...),
	); err != nil {
		return nil, err
	}
	if met.LLMDuration, err = m.Float64Histogram("duskmire.llm.duration",
		metric.WithDescription("Latency of language-model requests by profile."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("duskmire.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.LLMRequests, err = m.Int64Counter("duskmire.llm.requests",
		metric.WithDescription("Total language-model requests by profile and status."),
	); err != nil {
		return nil, err
	}
	if met.MemoryWrites, err = m.Int64Counter("duskmire.memory.writes",
		metric.WithDescription("Total asynchronous memory writes by status."),
	); err != nil {
		return nil, err
	}
	if met.MemoryQueueDropped, err = m.Int64Counter("duskmire.memory.write_queue.dropped",
		metric.WithDescription("Total memories dropped due to write queue overflow."),
	); err != nil {
		return nil, err
	}
	if met.NPCTurns, err = m.Int64Counter("duskmire.npc.turns",
		metric.WithDescription("Total completed NPC cognition turns by NPC ID."),
	); err != nil {
		return nil, err
	}
	if met.NPCActions, err = m.Int64Counter("duskmire.npc.actions",
		metric.WithDescription("Total executed NPC commands by verb and status."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("duskmire.sessions.active",
		metric.WithDescription("Number of connected player sessions."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// RegisterQueueDepth registers an observable gauge reporting the memory write
// queue depth through the supplied callback. Call it once after the writer is
// constructed; the callback must be safe for concurrent use.
func (m *Metrics) RegisterQueueDepth(depth func() int64) error {
	_, err := m.meter.Int64ObservableGauge("duskmire.memory.write_queue.depth",
		metric.WithDescription("Current depth of the asynchronous memory write queue."),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(depth())
			return nil
		}),
	)
	return err
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordTickPhase records one tick phase duration.
func (m *Metrics) RecordTickPhase(ctx context.Context, phase string, d time.Duration) {
	m.TickPhaseDuration.Record(ctx, d.Seconds(),
		metric.WithAttributes(attribute.String("phase", phase)),
	)
}

// RecordLLMRequest records one language-model request: a counter increment
// with profile and status, and the request duration with profile.
func (m *Metrics) RecordLLMRequest(ctx context.Context, profile, status string, d time.Duration) {
	m.LLMRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("profile", profile),
			attribute.String("status", status),
		),
	)
	m.LLMDuration.Record(ctx, d.Seconds(),
		metric.WithAttributes(attribute.String("profile", profile)),
	)
}

// RecordMemoryWrite records one asynchronous memory write outcome.
func (m *Metrics) RecordMemoryWrite(ctx context.Context, ok bool) {
	status := "ok"
	if !ok {
		status = "error"
	}
	m.MemoryWrites.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", status)),
	)
}

// RecordQueueDrop records one memory discarded on write queue overflow.
func (m *Metrics) RecordQueueDrop(ctx context.Context) {
	m.MemoryQueueDropped.Add(ctx, 1)
}

// RecordNPCTurn records one completed cognition turn.
func (m *Metrics) RecordNPCTurn(ctx context.Context, npcID string) {
	m.NPCTurns.Add(ctx, 1,
		metric.WithAttributes(attribute.String("npc_id", npcID)),
	)
}

// RecordNPCAction records one executed NPC command.
func (m *Metrics) RecordNPCAction(ctx context.Context, verb, status string) {
	m.NPCActions.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("verb", verb),
			attribute.String("status", status),
		),
	)
}
