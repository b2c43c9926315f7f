// Package observe provides application-wide observability primitives for the
// EMR service: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is installed by [InitProvider] so that metrics can be
// scraped from the handler returned by [MetricsHandler]. A package-level
// default [Metrics] instance ([DefaultMetrics]) is provided for convenience;
// tests should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all EMR metrics.
const meterName = "github.com/nv-mldev/emr"

// Status attribute values.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// STTDuration tracks transcription latency of one uploaded recording,
	// including chunking and failover.
	STTDuration metric.Float64Histogram

	// LLMDuration tracks LLM completion latency (correction and extraction).
	LLMDuration metric.Float64Histogram

	// ExtractionDuration tracks transcript-to-record latency. Use with
	// attribute.String("strategy", ...).
	ExtractionDuration metric.Float64Histogram

	// --- Quality ---

	// ExtractionConfidence records the confidence score of every structured
	// record. Use with attribute.String("strategy", ...).
	ExtractionConfidence metric.Float64Histogram

	// --- Counters ---

	// ProviderRequests counts provider API calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// ReportsGenerated counts discharge summaries produced. Use with
	// attribute.String("strategy", ...).
	ReportsGenerated metric.Int64Counter

	// Corrections counts vocabulary corrections applied to transcripts. Use
	// with attribute.String("method", ...).
	Corrections metric.Int64Counter

	// ClientErrors counts errors reported by the browser front end.
	ClientErrors metric.Int64Counter

	// --- Error counters ---

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// --- Circuit breakers ---

	// BreakerTransitions counts circuit breaker state changes. Use with
	// attributes: attribute.String("breaker", ...), attribute.String("to", ...)
	BreakerTransitions metric.Int64Counter

	// OpenBreakers tracks the number of circuit breakers currently open.
	OpenBreakers metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...), attribute.Int("status", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) spanning a
// fast rule-based extraction up to a multi-chunk cloud transcription.
var latencyBuckets = []float64{
	0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60,
}

// confidenceBuckets match the four-probe confidence score.
var confidenceBuckets = []float64{0, 0.25, 0.5, 0.75, 1}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.STTDuration, err = m.Float64Histogram("emr.stt.duration",
		metric.WithDescription("Latency of transcribing one recording."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.LLMDuration, err = m.Float64Histogram("emr.llm.duration",
		metric.WithDescription("Latency of LLM completions."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ExtractionDuration, err = m.Float64Histogram("emr.extraction.duration",
		metric.WithDescription("Latency of structuring a transcript by strategy."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ExtractionConfidence, err = m.Float64Histogram("emr.extraction.confidence",
		metric.WithDescription("Confidence score of structured records by strategy."),
		metric.WithExplicitBucketBoundaries(confidenceBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.ProviderRequests, err = m.Int64Counter("emr.provider.requests",
		metric.WithDescription("Total provider API requests by provider, kind, and status."),
	); err != nil {
		return nil, err
	}
	if met.ReportsGenerated, err = m.Int64Counter("emr.reports.generated",
		metric.WithDescription("Total discharge summaries generated by strategy."),
	); err != nil {
		return nil, err
	}
	if met.Corrections, err = m.Int64Counter("emr.transcript.corrections",
		metric.WithDescription("Total vocabulary corrections by method."),
	); err != nil {
		return nil, err
	}
	if met.ClientErrors, err = m.Int64Counter("emr.client.errors",
		metric.WithDescription("Total errors reported by the front end."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.ProviderErrors, err = m.Int64Counter("emr.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}

	// Circuit breakers.
	if met.BreakerTransitions, err = m.Int64Counter("emr.breaker.transitions",
		metric.WithDescription("Total circuit breaker state changes by breaker and target state."),
	); err != nil {
		return nil, err
	}
	if met.OpenBreakers, err = m.Int64UpDownCounter("emr.breaker.open",
		metric.WithDescription("Number of circuit breakers currently open."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("emr.http.request.duration",
		metric.WithDescription("HTTP request latency by method, path, and status."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
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

// RecordProviderRequest records a provider request counter increment with the
// standard attribute set.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError records a provider error counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

// RecordExtraction records the latency and confidence of one structured
// record.
func (m *Metrics) RecordExtraction(ctx context.Context, strategy string, seconds, confidence float64) {
	attrs := metric.WithAttributes(attribute.String("strategy", strategy))
	m.ExtractionDuration.Record(ctx, seconds, attrs)
	m.ExtractionConfidence.Record(ctx, confidence, attrs)
}

// RecordReport records a generated discharge summary.
func (m *Metrics) RecordReport(ctx context.Context, strategy string) {
	m.ReportsGenerated.Add(ctx, 1,
		metric.WithAttributes(attribute.String("strategy", strategy)),
	)
}

// RecordCorrections adds n vocabulary corrections made by method.
func (m *Metrics) RecordCorrections(ctx context.Context, method string, n int) {
	if n <= 0 {
		return
	}
	m.Corrections.Add(ctx, int64(n),
		metric.WithAttributes(attribute.String("method", method)),
	)
}

// RecordClientError records an error reported by the front end.
func (m *Metrics) RecordClientError(ctx context.Context) {
	m.ClientErrors.Add(ctx, 1)
}

// RecordBreakerTransition records a circuit breaker moving between states.
// States are given by name ("closed", "open", "half-open") so this package
// stays independent of the breaker implementation.
func (m *Metrics) RecordBreakerTransition(ctx context.Context, breaker, from, to string) {
	m.BreakerTransitions.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("breaker", breaker),
			attribute.String("to", to),
		),
	)
	switch {
	case to == "open" && from != "open":
		m.OpenBreakers.Add(ctx, 1)
	case from == "open" && to != "open":
		m.OpenBreakers.Add(ctx, -1)
	}
}
