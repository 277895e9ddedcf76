package logging

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNew(t *testing.T) {
	tests := []struct {
		level   string
		enabled zapcore.Level
		off     zapcore.Level
	}{
		{"", zapcore.InfoLevel, zapcore.DebugLevel},
		{"debug", zapcore.DebugLevel, zapcore.DebugLevel - 1},
		{"DEBUG", zapcore.DebugLevel, zapcore.DebugLevel - 1},
		{" warn ", zapcore.WarnLevel, zapcore.InfoLevel},
		{"error", zapcore.ErrorLevel, zapcore.WarnLevel},
	}
	for _, tt := range tests {
		logger, err := New(tt.level)
		require.NoError(t, err, tt.level)
		assert.True(t, logger.Core().Enabled(tt.enabled), tt.level)
		assert.False(t, logger.Core().Enabled(tt.off), tt.level)
	}

	_, err := New("loud")
	assert.Error(t, err)
}

func TestEncoderConfig(t *testing.T) {
	enc := zapcore.NewJSONEncoder(EncoderConfig())
	entry := zapcore.Entry{
		Level:   zapcore.InfoLevel,
		Time:    time.Date(2025, 1, 2, 3, 4, 5, 678_000_000, time.UTC),
		Message: "room created",
	}

	buf, err := enc.EncodeEntry(entry, nil)
	require.NoError(t, err)
	defer buf.Free()

	out := buf.String()
	assert.Contains(t, out, `"time":"2025-01-02T03:04:05.678Z"`)
	assert.Contains(t, out, `"level":"info"`)
	assert.Contains(t, out, `"message":"room created"`)
}
