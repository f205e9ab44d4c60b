package http

import (
	"context"
	"errors"
	"time"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/relay/internal/logging"
)

const meterName = "github.com/fyrsmithlabs/relay/internal/http"

// HTTPMetrics records request and turn instruments on an OpenTelemetry meter.
// Instruments that fail to register are skipped.
type HTTPMetrics struct {
	requests metric.Int64Counter
	duration metric.Float64Histogram
	inFlight metric.Int64UpDownCounter
	turns    metric.Int64Counter
	files    metric.Int64Histogram
}

// NewHTTPMetrics registers instruments on the global MeterProvider.
func NewHTTPMetrics(logger *logging.Logger) *HTTPMetrics {
	return newHTTPMetrics(otel.Meter(meterName), logger)
}

func newHTTPMetrics(meter metric.Meter, logger *logging.Logger) *HTTPMetrics {
	if logger == nil {
		logger = logging.NewNop()
	}
	var errs []error
	keep := func(err error) { errs = append(errs, err) }

	m := &HTTPMetrics{}
	var err error

	m.requests, err = meter.Int64Counter("relay.http.requests",
		metric.WithDescription("HTTP requests by route and status"),
		metric.WithUnit("{request}"))
	keep(err)

	// Upper buckets cover the agent execution time limit.
	m.duration, err = meter.Float64Histogram("relay.http.request.duration",
		metric.WithDescription("HTTP request latency by route and status"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.005, 0.05, 0.5, 2, 10, 30, 90, 180, 300))
	keep(err)

	m.inFlight, err = meter.Int64UpDownCounter("relay.http.requests.in_flight",
		metric.WithDescription("HTTP requests being served"),
		metric.WithUnit("{request}"))
	keep(err)

	m.turns, err = meter.Int64Counter("relay.http.turns",
		metric.WithDescription("Chat completion turns by result"),
		metric.WithUnit("{turn}"))
	keep(err)

	m.files, err = meter.Int64Histogram("relay.http.turn.files",
		metric.WithDescription("Files written per successful turn"),
		metric.WithUnit("{file}"),
		metric.WithExplicitBucketBoundaries(0, 1, 2, 5, 10, 25))
	keep(err)

	if err := errors.Join(errs...); err != nil {
		logger.Warn(context.Background(), "some http instruments are unavailable", zap.Error(err))
	}
	return m
}

// Middleware records request count, latency and in-flight requests.
func (m *HTTPMetrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			start := time.Now()
			if m.inFlight != nil {
				m.inFlight.Add(ctx, 1)
				defer m.inFlight.Add(ctx, -1)
			}

			err := next(c)

			status := c.Response().Status
			var he *echo.HTTPError
			if errors.As(err, &he) {
				status = he.Code
			}
			attrs := metric.WithAttributes(
				attribute.String("method", c.Request().Method),
				attribute.String("route", routeLabel(c.Path())),
				attribute.Int("status", status),
			)
			if m.requests != nil {
				m.requests.Add(ctx, 1, attrs)
			}
			if m.duration != nil {
				m.duration.Record(ctx, time.Since(start).Seconds(), attrs)
			}
			return err
		}
	}
}

// recordTurn counts a chat completion turn and, on success, the files it wrote.
func (m *HTTPMetrics) recordTurn(ctx context.Context, files int, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	if m.turns != nil {
		m.turns.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
	}
	if err == nil && m.files != nil {
		m.files.Record(ctx, int64(files))
	}
}

// routeLabel maps the matched route to a label. Unmatched requests have an
// empty route and share one label.
func routeLabel(path string) string {
	if path == "" {
		return "unmatched"
	}
	return path
}
