// Package logging provides structured logging for chardevd.
//
// It wraps log/slog so every component logs with the same handler, level
// and default fields (service, version).
//
// Configuration in config.yaml:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Usage:
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	logger.Info("device opened", "name", "mychardev-0")
//
// Device contents are never logged; log byte counts instead.
package logging
