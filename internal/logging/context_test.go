package logging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
)

func fieldMap(fields []zap.Field) map[string]zap.Field {
	m := make(map[string]zap.Field, len(fields))
	for _, f := range fields {
		m[f.Key] = f
	}
	return m
}

func TestContextFields_Empty(t *testing.T) {
	assert.Empty(t, ContextFields(context.Background()))
}

func TestContextFields_Trace(t *testing.T) {
	provider := sdktrace.NewTracerProvider(sdktrace.WithSyncer(tracetest.NewInMemoryExporter()))
	ctx, span := provider.Tracer("test").Start(context.Background(), "iteration")
	defer span.End()

	fields := fieldMap(ContextFields(ctx))
	require.Contains(t, fields, "trace_id")
	require.Contains(t, fields, "span_id")
	assert.Equal(t, span.SpanContext().TraceID().String(), fields["trace_id"].String)
}

func TestContextFields_TurnCorrelation(t *testing.T) {
	ctx := WithSessionID(context.Background(), "sess-42")
	ctx = WithTurnID(ctx, "turn_7")
	ctx = WithIteration(ctx, 2)
	ctx = WithRequestID(ctx, "req-abc")

	fields := fieldMap(ContextFields(ctx))
	assert.Equal(t, "sess-42", fields["session.id"].String)
	assert.Equal(t, "turn_7", fields["turn.id"].String)
	assert.Equal(t, int64(2), fields["iteration"].Integer)
	assert.Equal(t, "req-abc", fields["request.id"].String)
}

func TestWithIDs_InvalidPanics(t *testing.T) {
	tests := []struct {
		name string
		fn   func()
	}{
		{"empty session", func() { WithSessionID(context.Background(), "") }},
		{"bad chars session", func() { WithSessionID(context.Background(), "a b") }},
		{"empty turn", func() { WithTurnID(context.Background(), "") }},
		{"long request", func() { WithRequestID(context.Background(), string(make([]byte, maxIDLen+1))) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Panics(t, tt.fn)
		})
	}
}

func TestFromContext(t *testing.T) {
	assert.NotNil(t, FromContext(context.Background()), "missing logger yields nop")

	tl := NewTestLogger()
	ctx := WithLogger(context.Background(), tl.Logger)
	assert.Same(t, tl.Logger, FromContext(ctx))
}
