package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeEntry(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestLogger_Levels(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	t.Run("debug suppressed at info level", func(t *testing.T) {
		buf.Reset()
		logger.Debug("debug message")
		assert.Zero(t, buf.Len())
	})

	t.Run("info logged", func(t *testing.T) {
		buf.Reset()
		logger.Info("info message")
		entry := decodeEntry(t, &buf)
		assert.Equal(t, "INFO", entry["level"])
		assert.Equal(t, "info message", entry["msg"])
	})

	t.Run("formatted error logged", func(t *testing.T) {
		buf.Reset()
		logger.Errorf("failed after %d attempts", 1)
		entry := decodeEntry(t, &buf)
		assert.Equal(t, "ERROR", entry["level"])
		assert.Equal(t, "failed after 1 attempts", entry["msg"])
	})
}

func TestLogger_Fields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(DebugLevel, &buf)

	logger.WithField("customer_id", "cus_1").
		WithFields(map[string]interface{}{"subscription_id": "sub_1"}).
		WithError(errors.New("boom")).
		Warn("something happened")

	entry := decodeEntry(t, &buf)
	assert.Equal(t, "cus_1", entry["customer_id"])
	assert.Equal(t, "sub_1", entry["subscription_id"])
	assert.Equal(t, "boom", entry["error"])
	assert.Equal(t, "WARN", entry["level"])
}

func TestLogger_WithNilErrorReturnsSameLogger(t *testing.T) {
	logger := NewLogger(InfoLevel, nil)
	assert.Same(t, logger, logger.WithError(nil))
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want LogLevel
	}{
		{"debug", DebugLevel},
		{"INFO", InfoLevel},
		{"warning", WarnLevel},
		{" error ", ErrorLevel},
		{"nonsense", InfoLevel},
		{"", InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLogLevel(tt.in))
		})
	}
}

func TestFromContext_AddsRequestID(t *testing.T) {
	var buf bytes.Buffer
	ctx := WithLogger(context.Background(), NewLogger(InfoLevel, &buf))
	ctx = WithRequestID(ctx, "req-123")

	FromContext(ctx).Info("hello")

	entry := decodeEntry(t, &buf)
	assert.Equal(t, "req-123", entry["request_id"])
	assert.Equal(t, "req-123", GetRequestID(ctx))
}

func TestGetLogger_Fallback(t *testing.T) {
	assert.NotNil(t, GetLogger(context.Background()))
	assert.Equal(t, "", GetRequestID(context.Background()))
}

func TestMustRecover(t *testing.T) {
	assert.NoError(t, MustRecover(nil))
	assert.EqualError(t, MustRecover("kaboom"), "panic: kaboom")
}

func TestRecoverPanic_Logs(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	func() {
		defer RecoverPanic(logger, "unit test")
		panic("kaboom")
	}()

	entry := decodeEntry(t, &buf)
	assert.Equal(t, "PANIC recovered", entry["msg"])
	assert.Equal(t, "kaboom", entry["panic"])
	assert.Equal(t, "unit test", entry["context"])
}
