package logging

import (
	"bytes"
	"context"
	"strings"
	"testing"

	gojson "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

func TestNew_JSONToWriter(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log, err := New(Config{Level: "INFO", Format: "json", RunID: "r-1", Out: &buf})
	require.NoError(t, err)

	log.Debug("hidden")
	log.Info("file loaded")
	require.NoError(t, log.Sync())

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, gojson.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "file loaded", entry["msg"])
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "r-1", entry["run_id"])
	assert.Contains(t, entry, "ts")
}

func TestNew_ConsoleAndInvalidLevel(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log, err := New(Config{Format: " Console ", Out: &buf})
	require.NoError(t, err)
	log.Warn("careful")
	assert.Contains(t, buf.String(), "WARN")
	assert.Contains(t, buf.String(), "careful")

	_, err = New(Config{Level: "chatty"})
	require.Error(t, err)
}

func TestWithContext_AddsTraceIDs(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	base, err := New(Config{Out: &buf})
	require.NoError(t, err)

	assert.Same(t, base, WithContext(context.Background(), base))

	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{1, 2, 3},
		SpanID:     trace.SpanID{4, 5, 6},
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)
	WithContext(ctx, base).Info("traced")

	assert.Contains(t, buf.String(), sc.TraceID().String())
	assert.Contains(t, buf.String(), sc.SpanID().String())
}
