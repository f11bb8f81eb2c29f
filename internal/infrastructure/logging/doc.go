// Package logging provides structured logging for NexoWatt VIS.
//
// It wraps log/slog so every component logs the same way: JSON in
// production, text during development, with service and version fields
// attached to every record.
//
// Configuration (config.yaml):
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Never log the installer secret or session tokens. Log a short prefix
// when a token has to be correlated:
//
//	logger.Info("session issued", "token_prefix", token[:8])
package logging
