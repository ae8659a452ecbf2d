package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"bogus", slog.LevelInfo},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, parseLevel(tt.in), tt.in)
	}
}

func TestNewWithWriter_JSON(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, "info", "json").WithComponent("dataset")

	l.WithError(errors.New("no y")).Info("load failed", "file", "label.csv")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "load failed", entry["msg"])
	assert.Equal(t, "dataset", entry["component"])
	assert.Equal(t, "no y", entry["error"])
	assert.Equal(t, "label.csv", entry["file"])
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, "warn", "text")

	l.Info("hidden")
	l.Warn("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestWriter(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, "info", "text")

	n, err := l.Writer().Write([]byte("GET /health 200\n"))
	require.NoError(t, err)
	assert.Equal(t, 16, n)
	assert.True(t, strings.Contains(buf.String(), "GET /health 200"))
}
