package logutil

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// NewTimingLogger returns a closure that logs a debug message with duration when called.
// Pass in the logger, a start time, a message, and any initial fields.
func NewTimingLogger(logger *slog.Logger, start time.Time, msg string, initialFields ...any) func() {
	return func() {
		elapsed := time.Since(start)
		finalFields := append(initialFields, "duration", elapsed.String())
		logger.Debug(msg, finalFields...)
	}
}

// LogAndWrapErr logs an error with context fields and wraps it with a message.
// It returns a wrapped error (with %w) so errors.Is / errors.As still work.
func LogAndWrapErr(logger *slog.Logger, msg string, err error, fields ...any) error {
	if err == nil {
		return nil
	}
	allFields := append(fields, "err", err)
	logger.Error(msg, allFields...)
	return fmt.Errorf("%s: %w", msg, err)
}

// DebugAndWrapErr logs an error at debug level with context fields and wraps it with a message.
// Use it for expected failures such as lookups that find nothing.
func DebugAndWrapErr(logger *slog.Logger, msg string, err error, fields ...any) error {
	if err == nil {
		return nil
	}
	allFields := append(fields, "err", err)
	logger.Debug(msg, allFields...)
	return fmt.Errorf("%s: %w", msg, err)
}

// RequestFields returns the method, path, remote_ip and user_agent of r as slog key/value pairs.
func RequestFields(r *http.Request) []any {
	return []any{
		"method", r.Method,
		"path", r.URL.Path,
		"remote_ip", r.RemoteAddr,
		"user_agent", r.UserAgent(),
	}
}

// SessionRef shortens a session id for logging. Full ids are bearer secrets and never logged.
func SessionRef(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8] + "…"
}
