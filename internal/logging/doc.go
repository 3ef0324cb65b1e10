// Package logging provides structured logging utilities for sbginvoice.
//
// This package centralizes logging patterns so that every pipeline stage logs
// with the same attribute names, using the standard library's slog package.
//
// # Key Features
//
//   - Structured logging with slog
//   - Handler construction for the CLI (text or JSON, configurable level)
//   - PII sanitization (email anonymization)
//   - Consistent attribute naming across the codebase
//
// # Usage Patterns
//
// Create a logger scoped to a pipeline stage:
//
//	logger := logging.WithStage(slog.Default(), "render")
//	logger.Info("renderer finished",
//	    logging.Status(logging.StatusSuccess))
//
// Sanitize sensitive data before logging:
//
//	logger.Info("sending invoice",
//	    logging.Domain(cfg.Mail.To))
//
// # Security Considerations
//
//   - Recipient and sender addresses are reduced to their domain or hashed
//   - Tokens and app passwords are never logged directly
package logging
