// Package logging provides structured logging for relay.
//
// Logger wraps Zap with:
//   - A Trace level (-2, below Debug)
//   - Automatic context field injection (trace_id, session.id, turn.id, iteration)
//   - Secret redaction by field name and value pattern
//
// Logs go to stderr by default so they never interleave with the chat
// transcript on stdout.
//
//	logger, err := logging.NewLogger(logging.NewDefaultConfig())
//	if err != nil {
//	    return err
//	}
//	defer logger.Sync()
//
//	ctx = logging.WithSessionID(ctx, sessionID)
//	logger.Info(ctx, "turn completed", zap.Int("iterations", n))
package logging
