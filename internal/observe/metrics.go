// Package observe provides application-wide observability primitives for
// Aula: OpenTelemetry metrics, distributed tracing, structured logging,
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

// meterName is the instrumentation scope name used for all Aula metrics.
const meterName = "github.com/MrWong99/aula"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per relay stage ---

	// STTDuration tracks speech-to-text transcription latency.
	STTDuration metric.Float64Histogram

	// TranslationDuration tracks per-language translation latency.
	TranslationDuration metric.Float64Histogram

	// TTSDuration tracks text-to-speech synthesis latency.
	TTSDuration metric.Float64Histogram

	// RelayDuration tracks the time from a teacher utterance arriving to the
	// last student broadcast being handed to the transport.
	RelayDuration metric.Float64Histogram

	// --- Counters ---

	// ProviderRequests counts provider tier calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// MessagesReceived counts inbound protocol messages. Use with attribute:
	//   attribute.String("type", ...)
	MessagesReceived metric.Int64Counter

	// Translations counts translations delivered to students. Use with attribute:
	//   attribute.String("target_language", ...)
	Translations metric.Int64Counter

	// --- Error counters ---

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// BreakerTrips counts tiers being marked down. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	BreakerTrips metric.Int64Counter

	// BroadcastFailures counts per-recipient send failures during fan-out.
	BroadcastFailures metric.Int64Counter

	// --- Gauges ---

	// ActiveConnections tracks open WebSocket connections. Use with attribute:
	//   attribute.String("role", ...)
	ActiveConnections metric.Int64UpDownCounter

	// ActiveSessions tracks teacher sessions held in memory.
	ActiveSessions metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets are histogram bounds in seconds. Relay stages range from
// tens of milliseconds (local tiers) to several seconds (remote TTS).
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// instruments creates instruments on one meter and keeps the first error.
type instruments struct {
	meter metric.Meter
	err   error
}

func (b *instruments) latency(name, desc string) metric.Float64Histogram {
	h, err := b.meter.Float64Histogram(name,
		metric.WithDescription(desc),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	)
	b.keep(err)
	return h
}

func (b *instruments) counter(name, desc string) metric.Int64Counter {
	c, err := b.meter.Int64Counter(name, metric.WithDescription(desc))
	b.keep(err)
	return c
}

func (b *instruments) gauge(name, desc string) metric.Int64UpDownCounter {
	g, err := b.meter.Int64UpDownCounter(name, metric.WithDescription(desc))
	b.keep(err)
	return g
}

func (b *instruments) keep(err error) {
	if err != nil && b.err == nil {
		b.err = err
	}
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	b := &instruments{meter: mp.Meter(meterName)}
	met := &Metrics{
		STTDuration:         b.latency("aula.stt.duration", "Latency of speech-to-text transcription."),
		TranslationDuration: b.latency("aula.translation.duration", "Latency of a single-language translation."),
		TTSDuration:         b.latency("aula.tts.duration", "Latency of text-to-speech synthesis."),
		RelayDuration:       b.latency("aula.relay.duration", "End-to-end latency from teacher utterance to student broadcast."),

		ProviderRequests: b.counter("aula.provider.requests", "Total provider tier calls by provider, kind, and status."),
		MessagesReceived: b.counter("aula.messages.received", "Total inbound protocol messages by type."),
		Translations:     b.counter("aula.translations", "Total translations delivered by target language."),

		ProviderErrors:    b.counter("aula.provider.errors", "Total provider errors by provider and kind."),
		BreakerTrips:      b.counter("aula.provider.breaker_trips", "Total times a provider tier was marked down."),
		BroadcastFailures: b.counter("aula.broadcast.failures", "Total per-recipient send failures during broadcast."),

		ActiveConnections: b.gauge("aula.active_connections", "Number of open WebSocket connections by role."),
		ActiveSessions:    b.gauge("aula.active_sessions", "Number of teacher sessions held in memory."),

		HTTPRequestDuration: b.latency("aula.http.request.duration", "HTTP request latency by method and route."),
	}
	if b.err != nil {
		return nil, b.err
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

// RecordBreakerTrip records a tier being marked down.
func (m *Metrics) RecordBreakerTrip(ctx context.Context, provider, kind string) {
	m.BreakerTrips.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

// RecordMessage records an inbound protocol message by type.
func (m *Metrics) RecordMessage(ctx context.Context, msgType string) {
	m.MessagesReceived.Add(ctx, 1,
		metric.WithAttributes(attribute.String("type", msgType)),
	)
}

// RecordTranslation records a translation delivered to students of one
// target language.
func (m *Metrics) RecordTranslation(ctx context.Context, targetLanguage string) {
	m.Translations.Add(ctx, 1,
		metric.WithAttributes(attribute.String("target_language", targetLanguage)),
	)
}
