// Package logging provides structured logging using uber/zap.
//
// This package offers production-ready logging with two modes:
//   - Production: JSON output for machine parsing
//   - Development: Colored console output for human readability
//
// Components take a plain *zap.Logger and name themselves (membrane,
// sandbox, pool), so one root logger built here fans out through the
// whole service. Execution adds the sandbox and execution IDs that tie
// console output, spans and errors of one guest run together.
//
// Example Usage:
//
//	logger := logging.FromLevel(cfg.Logging.Level, cfg.Logging.Development)
//	logger.Info("Server starting", zap.String("port", "8000"))
//	logger.Execution(sandboxID, executionID).Error("guest failed", zap.Error(err))
package logging
