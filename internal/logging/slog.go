package logging

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// Common log attribute keys for consistent naming across the codebase.
const (
	KeyStage      = "stage"
	KeyOperation  = "operation"
	KeyQuery      = "query"
	KeyMessageID  = "message_id"
	KeyAttachment = "attachment"
	KeyPath       = "path"
	KeyStatus     = "status"
	KeyError      = "error"
)

// Status values for consistent logging.
const (
	StatusSuccess = "success"
	StatusSkipped = "skipped"
	StatusError   = "error"
)

// Setup installs the process-wide default logger. Format is "text" or
// "json"; level is one of debug, info, warn, error (defaults to info).
func Setup(level, format string) {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: lvl}
	var handler slog.Handler
	if strings.ToLower(format) == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}

// WithStage returns a logger with the pipeline stage attribute set.
func WithStage(logger *slog.Logger, stage string) *slog.Logger {
	return logger.With(slog.String(KeyStage, stage))
}

// Stage returns a slog attribute for the pipeline stage name.
func Stage(stage string) slog.Attr {
	return slog.String(KeyStage, stage)
}

// Operation returns a slog attribute for the operation name.
func Operation(op string) slog.Attr {
	return slog.String(KeyOperation, op)
}

// MessageID returns a slog attribute for a mail message id.
func MessageID(id string) slog.Attr {
	return slog.String(KeyMessageID, id)
}

// Status returns a slog attribute for the status.
func Status(status string) slog.Attr {
	return slog.String(KeyStatus, status)
}

// Err returns a slog attribute for an error.
// If err is nil, returns an empty Group attribute that will be omitted
// from output, so Err(maybeNilErr) is always safe to pass.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Group("")
	}
	return slog.String(KeyError, err.Error())
}

// AnonymizeEmail returns a hashed representation of an email for logging
// purposes. This allows correlation of log entries without exposing PII.
func AnonymizeEmail(email string) string {
	if email == "" {
		return ""
	}
	hash := sha256.Sum256([]byte(email))
	return "sender:" + hex.EncodeToString(hash[:8])
}

// SenderHash returns a slog attribute with the anonymized sender address.
func SenderHash(email string) slog.Attr {
	return slog.String("sender_hash", AnonymizeEmail(email))
}

// SanitizeToken returns a masked version of a token for logging.
// It returns a length indicator without exposing any token content.
func SanitizeToken(token string) string {
	if token == "" {
		return "<empty>"
	}
	return fmt.Sprintf("[token:%d chars]", len(token))
}

// ExtractDomain extracts the domain part from an email address.
// Useful for lower-cardinality logging where the full address would
// create too many unique values.
func ExtractDomain(email string) string {
	if email == "" {
		return ""
	}
	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return ""
	}
	return parts[1]
}

// Domain returns a slog attribute for the sender's email domain.
func Domain(email string) slog.Attr {
	return slog.String("sender_domain", ExtractDomain(email))
}
