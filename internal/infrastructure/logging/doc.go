// Package logging provides structured logging for Annunciator Core.
//
// This package wraps Go's standard log/slog package to provide
// consistent, structured logging across the entire application.
//
// # Features
//
//   - JSON output for production (machine-parsable)
//   - Text output for development (human-readable)
//   - Default fields (service, version) on all log entries
//   - Level-based filtering (debug, info, warn, error, critical)
//   - Rotated file output via lumberjack
//   - Thread-safe for concurrent use
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error, critical
//	  format: "json"     # json, text
//	  output: "file"     # stdout, stderr, file
//	  file:
//	    path: "./logs/annunciator.log"
//	    max_size: 50     # megabytes
//	    max_backups: 5
//	    max_age: 30      # days
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	defer logger.Close()
//	logger.Info("starting service", "port", 9988)
//
// # Security
//
// Never log device passwords, JWT secrets, or admin hashes.
package logging
