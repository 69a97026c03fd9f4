// Package logging provides structured logging for trialrun.
//
// It wraps Go's log/slog to write JSON lines, with child loggers that carry
// persistent attributes (entity_id, run_id, component) so a single run can be
// followed through the coordinator, the runner and the notifier.
//
// # Basic Usage
//
//	logger, err := logging.NewLoggerWithRotation(dir, "INFO", logging.DefaultRotationConfig())
//	if err != nil {
//	    return err
//	}
//	defer logger.Close()
//
//	runLogger := logger.WithEntity(query.ID()).WithRun(handle.ID())
//	runLogger.Info("trial run started", "status", handle.Status())
//
// Output:
//
//	{"time":"...","level":"INFO","msg":"trial run started","entity_id":"7","run_id":"...","status":"waiting"}
//
// # Log Rotation
//
// Rotated files are named debug.log.1, debug.log.2, ... where .1 is the most
// recent. With Compress set they become debug.log.1.gz and so on.
//
// # Testing
//
// Use [NopLogger] to discard output, or [NewWriterLogger] with a bytes.Buffer
// to assert on emitted lines.
package logging
