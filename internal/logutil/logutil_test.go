package logutil

import (
	"bytes"
	"errors"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Helper function to create a logger that writes to a buffer for testing
func createTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

func TestNewTimingLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := createTestLogger(&buf)

	start := time.Now().Add(-10 * time.Millisecond)
	NewTimingLogger(logger, start, "executed sql query", "method", "GetAccountByUsername")()

	output := buf.String()
	assert.Contains(t, output, "executed sql query")
	assert.Contains(t, output, "duration=")
	assert.Contains(t, output, "method=GetAccountByUsername")
	assert.Contains(t, output, "level=DEBUG")
}

func TestLogAndWrapErr(t *testing.T) {
	t.Run("with error", func(t *testing.T) {
		var buf bytes.Buffer
		logger := createTestLogger(&buf)

		originalErr := errors.New("original error")
		wrappedErr := LogAndWrapErr(logger, "failed to create account", originalErr, "username", "alice")

		require.Error(t, wrappedErr)
		assert.ErrorIs(t, wrappedErr, originalErr)
		assert.Contains(t, wrappedErr.Error(), "failed to create account")

		output := buf.String()
		assert.Contains(t, output, "level=ERROR")
		assert.Contains(t, output, "username=alice")
		assert.Contains(t, output, `err="original error"`)
	})

	t.Run("nil error logs nothing", func(t *testing.T) {
		var buf bytes.Buffer
		logger := createTestLogger(&buf)

		assert.NoError(t, LogAndWrapErr(logger, "failed", nil))
		assert.Empty(t, buf.String())
	})
}

func TestDebugAndWrapErr(t *testing.T) {
	t.Run("with error", func(t *testing.T) {
		var buf bytes.Buffer
		logger := createTestLogger(&buf)

		originalErr := errors.New("no rows")
		wrappedErr := DebugAndWrapErr(logger, "account lookup failed", originalErr, "request_id", "xyz-123")

		require.Error(t, wrappedErr)
		assert.ErrorIs(t, wrappedErr, originalErr)

		output := buf.String()
		assert.Contains(t, output, "level=DEBUG")
		assert.Contains(t, output, `msg="account lookup failed"`)
		assert.Contains(t, output, "request_id=xyz-123")
	})

	t.Run("nil error logs nothing", func(t *testing.T) {
		var buf bytes.Buffer
		logger := createTestLogger(&buf)

		assert.NoError(t, DebugAndWrapErr(logger, "this should not be logged", nil))
		assert.Empty(t, buf.String())
	})
}

func TestRequestFields(t *testing.T) {
	var buf bytes.Buffer
	logger := createTestLogger(&buf)

	r := httptest.NewRequest("POST", "/login", nil)
	r.RemoteAddr = "10.0.0.1:5555"
	r.Header.Set("User-Agent", "curl/8.0")

	logger.Info("handled", RequestFields(r)...)

	output := buf.String()
	assert.Contains(t, output, "method=POST")
	assert.Contains(t, output, "path=/login")
	assert.Contains(t, output, "remote_ip=10.0.0.1:5555")
	assert.Contains(t, output, "user_agent=curl/8.0")
}

func TestSessionRef(t *testing.T) {
	id := strings.Repeat("ab", 32)
	ref := SessionRef(id)
	assert.True(t, strings.HasPrefix(ref, "abababab"))
	assert.NotContains(t, ref, id)
	assert.Equal(t, "short", SessionRef("short"))
}
