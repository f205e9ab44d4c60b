package logging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/log/noop"
)

func TestWithOTel_KeepsFileOutput(t *testing.T) {
	base, path := newFileLogger(t, "json")

	logger := base.WithOTel("relay", noop.NewLoggerProvider())
	logger.Info(context.Background(), "bridged entry")

	assert.Contains(t, readLog(t, logger, path), `"msg":"bridged entry"`)
	assert.Nil(t, base.closer)
}

func TestWithOTel_NilProvider(t *testing.T) {
	base := NewNop()
	assert.Same(t, base, base.WithOTel("relay", nil))
}
