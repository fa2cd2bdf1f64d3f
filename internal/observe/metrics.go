// Package observe provides application-wide observability primitives for the
// structuring engine: OpenTelemetry metrics, distributed tracing, structured
// logging, and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all engine metrics.
const meterName = "github.com/kestrelsoft/pse"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per engine stage ---

	// CompileDuration tracks schema-to-state-machine compilation latency.
	CompileDuration metric.Float64Histogram

	// ProcessLogitsDuration tracks mask-building latency per token step.
	ProcessLogitsDuration metric.Float64Histogram

	// SampleDuration tracks sampling + healing latency per token step.
	SampleDuration metric.Float64Histogram

	// GrammarValidateDuration tracks external grammar validator round-trip
	// latency (a subprocess call).
	GrammarValidateDuration metric.Float64Histogram

	// --- Counters ---

	// TokensConsumed counts tokens accepted by [engine.Engine.ConsumeTokens].
	TokensConsumed metric.Int64Counter

	// TokensHealed counts tokens that required [vocab] token healing.
	TokensHealed metric.Int64Counter

	// GrammarValidations counts external grammar validator invocations. Use
	// with attribute: attribute.String("status", ...).
	GrammarValidations metric.Int64Counter

	// --- Error counters ---

	// EngineErrors counts engine-level failures. Use with attributes:
	//   attribute.String("stage", ...), attribute.String("kind", ...)
	EngineErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveSteppers tracks the number of live stepper branches held by the
	// current engine stepper set.
	ActiveSteppers metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for per-token decoding latencies, which are much tighter than network RPCs.
var latencyBuckets = []float64{
	0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.CompileDuration, err = m.Float64Histogram("pse.compile.duration",
		metric.WithDescription("Latency of schema-to-state-machine compilation."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}
	if met.ProcessLogitsDuration, err = m.Float64Histogram("pse.process_logits.duration",
		metric.WithDescription("Latency of building the vocabulary mask for one token step."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SampleDuration, err = m.Float64Histogram("pse.sample.duration",
		metric.WithDescription("Latency of sampling and healing one token."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.GrammarValidateDuration, err = m.Float64Histogram("pse.grammar_validate.duration",
		metric.WithDescription("Latency of an external grammar validator round trip."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.TokensConsumed, err = m.Int64Counter("pse.tokens.consumed",
		metric.WithDescription("Total tokens accepted into a stepper set."),
	); err != nil {
		return nil, err
	}
	if met.TokensHealed, err = m.Int64Counter("pse.tokens.healed",
		metric.WithDescription("Total tokens rewritten by token healing."),
	); err != nil {
		return nil, err
	}
	if met.GrammarValidations, err = m.Int64Counter("pse.grammar.validations",
		metric.WithDescription("Total external grammar validator invocations by status."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.EngineErrors, err = m.Int64Counter("pse.engine.errors",
		metric.WithDescription("Total engine errors by stage and kind."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSteppers, err = m.Int64UpDownCounter("pse.active_steppers",
		metric.WithDescription("Number of live stepper branches in the current stepper set."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("pse.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
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

// RecordTokenConsumed is a convenience method that records a consumed-token
// counter increment.
func (m *Metrics) RecordTokenConsumed(ctx context.Context) {
	m.TokensConsumed.Add(ctx, 1)
}

// RecordTokenHealed is a convenience method that records a healed-token
// counter increment.
func (m *Metrics) RecordTokenHealed(ctx context.Context) {
	m.TokensHealed.Add(ctx, 1)
}

// RecordGrammarValidation is a convenience method that records a grammar
// validator invocation counter increment.
func (m *Metrics) RecordGrammarValidation(ctx context.Context, status string) {
	m.GrammarValidations.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", status)),
	)
}

// RecordEngineError is a convenience method that records an engine error
// counter increment.
func (m *Metrics) RecordEngineError(ctx context.Context, stage, kind string) {
	m.EngineErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("stage", stage),
			attribute.String("kind", kind),
		),
	)
}
