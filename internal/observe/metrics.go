// Package observe provides application-wide observability primitives for
// studylens: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
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

// meterName is the instrumentation scope name used for all studylens metrics.
const meterName = "github.com/MrWong99/studylens"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// OCRDuration tracks text recognition latency per capture.
	OCRDuration metric.Float64Histogram

	// LLMDuration tracks LLM inference latency. Use with attribute:
	//   attribute.String("kind", ...): notes, quiz, claims or verify.
	LLMDuration metric.Float64Histogram

	// --- Counters ---

	// ProviderRequests counts provider API calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// Captures counts frames stored by the capture loop.
	Captures metric.Int64Counter

	// Texts counts OCR results by gate outcome. Use with attribute:
	//   attribute.String("outcome", ...)
	Texts metric.Int64Counter

	// TranscriptSegments counts final utterances appended to a transcript.
	TranscriptSegments metric.Int64Counter

	// STTRestarts counts transcription stream restarts. Use with attribute:
	//   attribute.String("status", ...): ok or error.
	STTRestarts metric.Int64Counter

	// EventsDropped counts session events not delivered to a slow subscriber.
	EventsDropped metric.Int64Counter

	// BreakerTransitions counts circuit breaker state changes. Use with attributes:
	//   attribute.String("breaker", ...), attribute.String("state", ...)
	BreakerTransitions metric.Int64Counter

	// --- Error counters ---

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveRecordings tracks whether a recording is in progress (0 or 1).
	ActiveRecordings metric.Int64UpDownCounter

	// EventSubscribers tracks the number of connected event subscribers.
	EventSubscribers metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds). Local
// models answer in seconds to minutes, so the upper buckets are wide.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.OCRDuration, err = m.Float64Histogram("studylens.ocr.duration",
		metric.WithDescription("Latency of OCR text recognition."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.LLMDuration, err = m.Float64Histogram("studylens.llm.duration",
		metric.WithDescription("Latency of LLM inference by request kind."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.ProviderRequests, err = m.Int64Counter("studylens.provider.requests",
		metric.WithDescription("Total provider API requests by provider, kind, and status."),
	); err != nil {
		return nil, err
	}
	if met.Captures, err = m.Int64Counter("studylens.captures",
		metric.WithDescription("Total frames stored by the capture loop."),
	); err != nil {
		return nil, err
	}
	if met.Texts, err = m.Int64Counter("studylens.texts",
		metric.WithDescription("Total OCR results by acceptance gate outcome."),
	); err != nil {
		return nil, err
	}
	if met.TranscriptSegments, err = m.Int64Counter("studylens.transcript.segments",
		metric.WithDescription("Total final utterances appended to the transcript."),
	); err != nil {
		return nil, err
	}
	if met.STTRestarts, err = m.Int64Counter("studylens.stt.restarts",
		metric.WithDescription("Total transcription stream restarts by status."),
	); err != nil {
		return nil, err
	}
	if met.EventsDropped, err = m.Int64Counter("studylens.events.dropped",
		metric.WithDescription("Total session events dropped for slow subscribers."),
	); err != nil {
		return nil, err
	}
	if met.BreakerTransitions, err = m.Int64Counter("studylens.breaker.transitions",
		metric.WithDescription("Total circuit breaker state changes by breaker and new state."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.ProviderErrors, err = m.Int64Counter("studylens.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveRecordings, err = m.Int64UpDownCounter("studylens.active_recordings",
		metric.WithDescription("Number of recordings in progress."),
	); err != nil {
		return nil, err
	}
	if met.EventSubscribers, err = m.Int64UpDownCounter("studylens.event_subscribers",
		metric.WithDescription("Number of connected session event subscribers."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("studylens.http.request.duration",
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

// RecordProviderRequest is a convenience method that records a provider
// request counter increment with the standard attribute set.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError is a convenience method that records a provider error
// counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

// RecordTextOutcome records one OCR result passing through the acceptance
// gate. outcome is one of accepted, too_short, duplicate or ocr_error.
func (m *Metrics) RecordTextOutcome(ctx context.Context, outcome string) {
	m.Texts.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordLLM records the latency of one LLM request of the given kind.
func (m *Metrics) RecordLLM(ctx context.Context, kind string, seconds float64) {
	m.LLMDuration.Record(ctx, seconds, metric.WithAttributes(attribute.String("kind", kind)))
}

// RecordSTTRestart records a transcription stream restart attempt.
func (m *Metrics) RecordSTTRestart(ctx context.Context, status string) {
	m.STTRestarts.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

// RecordBreakerTransition records a circuit breaker entering state.
func (m *Metrics) RecordBreakerTransition(ctx context.Context, breaker, state string) {
	m.BreakerTransitions.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("breaker", breaker),
			attribute.String("state", state),
		),
	)
}
