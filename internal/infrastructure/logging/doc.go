// Package logging provides structured logging for the garage relay.
//
// It wraps log/slog so every entry carries the service name and build
// version, and so the format and level come from configuration:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Usage:
//
//	logger := logging.New(cfg.Logging, version)
//	logger.Info("relay pulsed", "pin", 2)
//
// Access keys are credentials. Log a prefix at most.
package logging
