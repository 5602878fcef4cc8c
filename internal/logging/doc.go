// Package logging provides structured logging for gantry runs.
//
// This package wraps Go's log/slog to provide JSON- or text-formatted logs
// for debugging and post-hoc analysis of installation runs. Pipeline
// components attach context (run ID, item key, stage) through child loggers
// so every line can be traced back to the work that produced it.
//
// # Features
//
//   - Structured logging via slog, JSON or text handlers
//   - Configurable log levels (DEBUG, INFO, WARN, ERROR)
//   - Context propagation (run ID, item key, stage)
//   - Size-based log rotation with numbered backups
//   - Optional gzip compression for rotated logs
//
// # Thread Safety
//
// All types in this package are safe for concurrent use. The [Logger] type
// uses slog internally which is designed for concurrent access. The
// [RotatingWriter] type uses a mutex to protect file operations during
// rotation. Child loggers created via With* methods share the underlying
// writer safely.
//
// # Basic Usage
//
//	logger, err := logging.New(logging.Options{
//		Level:    logging.LevelInfo,
//		Format:   logging.FormatJSON,
//		FilePath: "/path/to/gantry.log",
//	})
//	if err != nil {
//		return err
//	}
//	defer logger.Close()
//
//	runLog := logger.WithRun("run-20260825-104501")
//	runLog.Info("resolution complete", "items", 17)
package logging
