package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingCloser struct{}

func (failingCloser) Close() error { return errors.New("close boom") }

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	dec := json.NewDecoder(buf)
	for dec.More() {
		var m map[string]any
		require.NoError(t, dec.Decode(&m))
		out = append(out, m)
	}
	return out
}

func TestNewLogger_ProductionIsJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, true, false)

	logger.Info("hello", slog.String("component", "test"))
	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "hello", lines[0]["msg"])
	assert.Equal(t, "test", lines[0]["component"])
}

func TestNewLogger_VerboseEnablesDebug(t *testing.T) {
	var quiet, loud bytes.Buffer
	NewLogger(&quiet, true, false).Debug("hidden")
	NewLogger(&loud, true, true).Debug("shown")

	assert.Empty(t, quiet.String())
	assert.Contains(t, loud.String(), "shown")
}

func TestLogError(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, true, false)

	LogError(logger, "fetch failed", errors.New("connection refused"), slog.String("url", "http://feed"))

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "ERROR", lines[0]["level"])
	assert.Equal(t, "connection refused", lines[0]["error"])
	assert.Equal(t, "http://feed", lines[0]["url"])
}

func TestLogOperation(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, true, false)

	LogOperation(logger, "catalog_loaded", slog.Int("routes", 3))

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "catalog_loaded", lines[0]["operation"])
	assert.EqualValues(t, 3, lines[0]["routes"])
}

func TestLogHTTPRequest_LevelFollowsStatus(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, true, false)

	LogHTTPRequest(logger, "GET", "/healthz", 200, 1.5)
	LogHTTPRequest(logger, "GET", "/nope", 404, 0.2)
	LogHTTPRequest(logger, "GET", "/boom", 503, 0.1)

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 3)
	assert.Equal(t, "INFO", lines[0]["level"])
	assert.Equal(t, "WARN", lines[1]["level"])
	assert.Equal(t, "ERROR", lines[2]["level"])
}

func TestContextRoundTrip(t *testing.T) {
	logger := NewLogger(&bytes.Buffer{}, false, false)
	ctx := WithLogger(context.Background(), logger)

	assert.Same(t, logger, FromContext(ctx))
	assert.Same(t, slog.Default(), FromContext(context.Background()))
}

func TestSafeCloseWithLogging(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, true, false)

	SafeCloseWithLogging(failingCloser{}, logger, "http_response_body")
	SafeCloseWithLogging(nil, logger, "nothing")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "http_response_body", lines[0]["resource"])
}
