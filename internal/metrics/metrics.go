// Package metrics holds the OpenTelemetry instruments recorded by capwatch.
//
// Instruments are created from a metric.MeterProvider. Without InitProvider
// the global provider is a no-op, so recording is always safe. Tests should
// build their own Metrics with an sdkmetric.ManualReader.
package metrics

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/hazyhaar/capwatch"

// Metrics holds all instruments.
type Metrics struct {
	// Passes counts locate/classify passes. Attribute: action.
	Passes metric.Int64Counter

	// Dispatches counts guard decisions. Attribute: outcome.
	Dispatches metric.Int64Counter

	// TranslateDuration tracks translation round-trip latency in seconds.
	TranslateDuration metric.Float64Histogram

	// TranslateErrors counts failed translations that fell back to the
	// degraded display string.
	TranslateErrors metric.Int64Counter

	// SinkErrors counts sink delivery failures. Attribute: kind (result|audio).
	SinkErrors metric.Int64Counter

	// ActiveSessions tracks monitoring sessions currently running.
	ActiveSessions metric.Int64UpDownCounter
}

// New creates all instruments from mp.
func New(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var (
		out Metrics
		err error
	)
	if out.Passes, err = m.Int64Counter("capwatch.pipeline.passes",
		metric.WithDescription("Caption locate/classify passes by action.")); err != nil {
		return nil, err
	}
	if out.Dispatches, err = m.Int64Counter("capwatch.pipeline.dispatches",
		metric.WithDescription("Dispatch guard decisions by outcome.")); err != nil {
		return nil, err
	}
	if out.TranslateDuration, err = m.Float64Histogram("capwatch.translate.duration",
		metric.WithDescription("Translation request latency."),
		metric.WithUnit("s")); err != nil {
		return nil, err
	}
	if out.TranslateErrors, err = m.Int64Counter("capwatch.translate.errors",
		metric.WithDescription("Translations replaced by the fallback string.")); err != nil {
		return nil, err
	}
	if out.SinkErrors, err = m.Int64Counter("capwatch.sink.errors",
		metric.WithDescription("Sink delivery failures by kind.")); err != nil {
		return nil, err
	}
	if out.ActiveSessions, err = m.Int64UpDownCounter("capwatch.sessions.active",
		metric.WithDescription("Monitoring sessions currently running.")); err != nil {
		return nil, err
	}
	return &out, nil
}

var (
	defaultOnce sync.Once
	defaultM    *Metrics
)

// Default returns instruments bound to the global MeterProvider at first
// call. Call InitProvider before Default to export them.
func Default() *Metrics {
	defaultOnce.Do(func() {
		m, err := New(otel.GetMeterProvider())
		if err != nil {
			panic("metrics: create default instruments: " + err.Error())
		}
		defaultM = m
	})
	return defaultM
}

// RecordPass counts one pass.
func (m *Metrics) RecordPass(ctx context.Context, action string) {
	m.Passes.Add(ctx, 1, metric.WithAttributes(attribute.String("action", action)))
}

// RecordDispatch counts one guard decision.
func (m *Metrics) RecordDispatch(ctx context.Context, outcome string) {
	m.Dispatches.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordTranslate records latency and, when failed, an error.
func (m *Metrics) RecordTranslate(ctx context.Context, seconds float64, failed bool) {
	m.TranslateDuration.Record(ctx, seconds)
	if failed {
		m.TranslateErrors.Add(ctx, 1)
	}
}

// RecordSinkError counts one sink failure.
func (m *Metrics) RecordSinkError(ctx context.Context, kind string) {
	m.SinkErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}
