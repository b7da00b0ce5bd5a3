// Package observe provides application-wide observability primitives for
// Chorale: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is installed by [InitProvider] so that metrics can be
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

// meterName is the instrumentation scope name used for all Chorale metrics.
const meterName = "github.com/MrWong99/chorale"

// Pipeline outcomes recorded on [Metrics.Pipelines].
const (
	OutcomeCompleted = "completed"
	OutcomeStopped   = "stopped"
	OutcomeFailed    = "failed"
)

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// Commands counts parsed chat commands. Use with attribute:
	//   attribute.String("kind", ...)
	Commands metric.Int64Counter

	// Pipelines counts finished playback pipelines. Use with attribute:
	//   attribute.String("outcome", ...)
	Pipelines metric.Int64Counter

	// FramesSent counts Opus packets forwarded to the voice session.
	FramesSent metric.Int64Counter

	// ResolverRequests counts source resolutions. Use with attributes:
	//   attribute.String("strategy", ...), attribute.String("status", ...)
	ResolverRequests metric.Int64Counter

	// PipelineDuration tracks the wall time of a pipeline run.
	PipelineDuration metric.Float64Histogram

	// QueueDepth tracks the number of pending sources.
	QueueDepth metric.Int64UpDownCounter

	// ActivePipelines is 1 while a pipeline is running, 0 otherwise.
	ActivePipelines metric.Int64UpDownCounter

	// HTTPRequestDuration tracks admin HTTP request processing time. Use with
	// attributes: attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// durationBuckets covers everything from a failed resolve to a long mix (seconds).
var durationBuckets = []float64{
	0.5, 1, 5, 15, 30, 60, 180, 300, 600, 1800, 3600,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Counters.
	if met.Commands, err = m.Int64Counter("chorale.commands",
		metric.WithDescription("Total chat commands by kind."),
	); err != nil {
		return nil, err
	}
	if met.Pipelines, err = m.Int64Counter("chorale.pipelines",
		metric.WithDescription("Total finished playback pipelines by outcome."),
	); err != nil {
		return nil, err
	}
	if met.FramesSent, err = m.Int64Counter("chorale.frames.sent",
		metric.WithDescription("Total Opus packets forwarded to the voice session."),
	); err != nil {
		return nil, err
	}
	if met.ResolverRequests, err = m.Int64Counter("chorale.resolver.requests",
		metric.WithDescription("Total source resolutions by strategy and status."),
	); err != nil {
		return nil, err
	}

	// Histograms.
	if met.PipelineDuration, err = m.Float64Histogram("chorale.pipeline.duration",
		metric.WithDescription("Wall time of a playback pipeline run."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBuckets...),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.QueueDepth, err = m.Int64UpDownCounter("chorale.queue.depth",
		metric.WithDescription("Number of sources waiting for playback."),
	); err != nil {
		return nil, err
	}
	if met.ActivePipelines, err = m.Int64UpDownCounter("chorale.active_pipelines",
		metric.WithDescription("Number of running playback pipelines."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("chorale.http.request.duration",
		metric.WithDescription("Admin HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails.
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

// RecordCommand increments the command counter for kind.
func (m *Metrics) RecordCommand(ctx context.Context, kind string) {
	m.Commands.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// RecordPipeline records a finished pipeline with its outcome and run time in
// seconds.
func (m *Metrics) RecordPipeline(ctx context.Context, outcome string, seconds float64) {
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	m.Pipelines.Add(ctx, 1, attrs)
	m.PipelineDuration.Record(ctx, seconds, attrs)
}

// RecordResolve increments the resolver counter for strategy and status.
func (m *Metrics) RecordResolve(ctx context.Context, strategy, status string) {
	m.ResolverRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("strategy", strategy),
			attribute.String("status", status),
		),
	)
}
