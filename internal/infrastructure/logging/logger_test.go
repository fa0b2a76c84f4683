package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger_AddsServiceAndContextAttrs(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(Config{
		Level:       "debug",
		Format:      "json",
		Output:      &buf,
		ServiceName: "ticketsync",
		Environment: "test",
	})

	ctx := WithConnectionID(context.Background(), "conn-1")
	ctx = WithTicketID(ctx, "T1")
	logger.InfoContext(ctx, "ticket updated")

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))

	assert.Equal(t, "ticket updated", record["msg"])
	assert.Equal(t, "ticketsync", record["service"])
	assert.Equal(t, "test", record["environment"])
	assert.Equal(t, "conn-1", record["connection_id"])
	assert.Equal(t, "T1", record["ticket_id"])
}

func TestNewLogger_RespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(Config{Level: "warn", Format: "text", Output: &buf})

	logger.Info("dropped")
	assert.Zero(t, buf.Len())

	logger.Warn("kept")
	assert.Contains(t, buf.String(), "kept")
}

func TestLoggerFromContext(t *testing.T) {
	var buf bytes.Buffer
	base := NewLogger(Config{Level: "info", Format: "json", Output: &buf})

	ctx := WithRequestID(context.Background(), "req-1")
	LoggerFromContext(ctx, base).Info("hello")

	assert.Contains(t, buf.String(), `"request_id":"req-1"`)
	assert.Equal(t, "req-1", GetRequestID(ctx))
}

func TestLogPanic_IncludesStack(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(Config{Level: "info", Format: "json", Output: &buf})

	LogPanic(logger, "boom", "topic", "new-message")

	out := buf.String()
	assert.Contains(t, out, `"panic":"boom"`)
	assert.Contains(t, out, `"topic":"new-message"`)
	assert.Contains(t, out, "stack_trace")
}
