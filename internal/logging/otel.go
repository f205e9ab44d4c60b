package logging

import (
	"go.opentelemetry.io/contrib/bridges/otelzap"
	"go.opentelemetry.io/otel/log"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// WithOTel returns a logger that also emits every entry to provider under
// the given instrumentation name. The receiver hands its file destination
// over to the returned logger, so only the returned one should be synced.
// A nil provider returns l unchanged.
func (l *Logger) WithOTel(name string, provider log.LoggerProvider) *Logger {
	if provider == nil {
		return l
	}
	otelCore := otelzap.NewCore(name, otelzap.WithLoggerProvider(provider))
	tee := zap.WrapCore(func(core zapcore.Core) zapcore.Core {
		return zapcore.NewTee(core, otelCore)
	})

	out := &Logger{zap: l.zap.WithOptions(tee), config: l.config, closer: l.closer}
	l.closer = nil
	return out
}
