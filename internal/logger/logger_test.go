package logger

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{
		Writer: &buf,
		Format: "json",
		Level:  slog.LevelInfo,
	})

	log.Info("server started", "port", "8080")

	output := buf.String()
	assert.Contains(t, output, `"msg":"server started"`)
	assert.Contains(t, output, `"port":"8080"`)
}

func TestNew_DefaultsToJSONInProduction(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{
		Writer:      &buf,
		Environment: "production",
	})

	log.Info("hello")

	// JSON output starts with a brace; pretty output starts with a color code.
	require.True(t, strings.HasPrefix(buf.String(), "{"))
}

func TestNew_PrettyInDevelopment(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{
		Writer:      &buf,
		Environment: "development",
	})

	log.Info("hello", "book_id", "book-123")

	output := buf.String()
	assert.Contains(t, output, "INF")
	assert.Contains(t, output, "hello")
	assert.Contains(t, output, "book_id=book-123")
}

func TestPrettyHandler_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{
		Writer: &buf,
		Format: "pretty",
		Level:  slog.LevelWarn,
	})

	log.Debug("not shown")
	log.Info("not shown either")
	log.Warn("shown")

	output := buf.String()
	assert.NotContains(t, output, "not shown")
	assert.Contains(t, output, "shown")
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"ERROR", slog.LevelError},
		{"nonsense", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseLevel(tt.input), "input: %q", tt.input)
	}
}

func TestWithError(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Writer: &buf, Format: "json"})

	log.WithError(assert.AnError).Error("operation failed")

	assert.Contains(t, buf.String(), assert.AnError.Error())
}

func TestDiscard(t *testing.T) {
	log := Discard()
	// Must not panic and must swallow output.
	log.Info("into the void")
	log.WithField("k", "v").Error("still nothing")
}
