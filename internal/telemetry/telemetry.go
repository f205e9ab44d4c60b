// Package telemetry wires OpenTelemetry trace and metric export for relay.
//
// Spans and OTel metrics are created through the global providers, so
// instrumented packages need no reference to this package. When export is
// disabled the globals stay no-op.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/relay/internal/config"
	"github.com/fyrsmithlabs/relay/internal/logging"
)

const defaultShutdownTimeout = 5 * time.Second

// Telemetry owns the SDK providers. Export failures never stop relay; they
// mark the instance degraded instead.
type Telemetry struct {
	cfg    config.TelemetryConfig
	logger *logging.Logger

	tracerProvider *trace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider

	degraded atomic.Bool
}

// Option overrides exporters, mainly for tests.
type Option func(*options)

type options struct {
	spanExporter   trace.SpanExporter
	metricExporter sdkmetric.Exporter
}

// WithSpanExporter replaces the OTLP span exporter.
func WithSpanExporter(exp trace.SpanExporter) Option {
	return func(o *options) { o.spanExporter = exp }
}

// WithMetricExporter replaces the OTLP metric exporter.
func WithMetricExporter(exp sdkmetric.Exporter) Option {
	return func(o *options) { o.metricExporter = exp }
}

// New installs global providers when cfg.Enabled. version is reported as the
// service version.
func New(ctx context.Context, cfg config.TelemetryConfig, version string, logger *logging.Logger, opts ...Option) *Telemetry {
	if logger == nil {
		logger = logging.NewNop()
	}
	t := &Telemetry{cfg: cfg, logger: logger.Named("telemetry")}
	if !cfg.Enabled {
		return t
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}
	res := newResource(cfg, version)

	spanExp := o.spanExporter
	if spanExp == nil {
		var err error
		if spanExp, err = newTraceExporter(ctx, cfg); err != nil {
			t.setDegraded(ctx, wrapExporterErr("trace", err))
		}
	}
	if spanExp != nil {
		t.tracerProvider = newTracerProvider(spanExp, cfg.SamplingRate, res)
		otel.SetTracerProvider(t.tracerProvider)
	}

	if cfg.Metrics {
		metricExp := o.metricExporter
		if metricExp == nil {
			var err error
			if metricExp, err = newMetricExporter(ctx, cfg); err != nil {
				t.setDegraded(ctx, wrapExporterErr("metric", err))
			}
		}
		if metricExp != nil {
			t.meterProvider = newMeterProvider(metricExp, cfg, res)
			otel.SetMeterProvider(t.meterProvider)
		}
	}

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	t.logger.Info(ctx, "telemetry export enabled",
		zap.String("endpoint", cfg.Endpoint),
		zap.String("protocol", cfg.Protocol),
		zap.Bool("metrics", t.meterProvider != nil),
	)
	return t
}

// Enabled reports whether export is configured and healthy.
func (t *Telemetry) Enabled() bool {
	return t != nil && t.cfg.Enabled && !t.degraded.Load()
}

// Degraded reports whether a provider failed to start.
func (t *Telemetry) Degraded() bool {
	return t != nil && t.degraded.Load()
}

// ForceFlush exports all pending telemetry.
func (t *Telemetry) ForceFlush(ctx context.Context) error {
	if t == nil {
		return nil
	}
	var errs []error
	if t.tracerProvider != nil {
		if err := t.tracerProvider.ForceFlush(ctx); err != nil {
			errs = append(errs, fmt.Errorf("trace flush: %w", err))
		}
	}
	if t.meterProvider != nil {
		if err := t.meterProvider.ForceFlush(ctx); err != nil {
			errs = append(errs, fmt.Errorf("meter flush: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Shutdown flushes and stops the providers. Without a deadline on ctx a
// default timeout applies.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t == nil {
		return nil
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultShutdownTimeout)
		defer cancel()
	}

	var errs []error
	if t.tracerProvider != nil {
		if err := t.tracerProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("trace provider shutdown: %w", err))
		}
	}
	if t.meterProvider != nil {
		if err := t.meterProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("meter provider shutdown: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (t *Telemetry) setDegraded(ctx context.Context, err error) {
	t.degraded.Store(true)
	t.logger.Warn(ctx, "telemetry degraded", zap.Error(err))
}
