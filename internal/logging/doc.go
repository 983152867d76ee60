// Package logging provides structured logging utilities for mailharvest.
//
// It centralizes logging patterns to ensure consistent, structured
// logging throughout the codebase using the standard library's slog
// package: a Setup function for handler installation, attribute-key
// constants, and helpers that sanitize sensitive data before it reaches
// a log line.
//
// Sender addresses are PII. Log the hashed form (SenderHash) when a log
// line must correlate with a specific sender, or the domain (Domain)
// when coarse grouping is enough. Tokens are never logged directly; use
// SanitizeToken.
package logging
