package logger

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureWriter struct {
	lines []string
}

func (w *captureWriter) Printf(msg string, data ...interface{}) {
	w.lines = append(w.lines, fmt.Sprintf(msg, data...))
}

func TestLevelFiltering(t *testing.T) {
	ctx := context.Background()
	w := &captureWriter{}
	log := New(w, Config{LogLevel: Warn})

	log.Debug(ctx, "debug message")
	log.Info(ctx, "info message")
	log.Warn(ctx, "warn message")
	log.Error(ctx, "error message")

	require.Len(t, w.lines, 2)
	assert.Contains(t, w.lines[0], "warn message")
	assert.Contains(t, w.lines[1], "error message")
}

func TestLogModeReturnsIndependentLogger(t *testing.T) {
	ctx := context.Background()
	w := &captureWriter{}
	log := New(w, Config{LogLevel: Silent})

	verbose := log.LogMode(Debug)
	verbose.Debug(ctx, "visible")
	log.Debug(ctx, "invisible")

	require.Len(t, w.lines, 1)
	assert.Contains(t, w.lines[0], "visible")
}

func TestFieldsRendered(t *testing.T) {
	ctx := context.Background()
	w := &captureWriter{}
	log := New(w, Config{LogLevel: Info})

	log.Info(ctx, "stored notification", "id", "n1", "type", "info")

	require.Len(t, w.lines, 1)
	assert.Contains(t, w.lines[0], "id=n1")
	assert.Contains(t, w.lines[0], "type=info")
}

func TestTraceLogsSlowOperations(t *testing.T) {
	ctx := context.Background()
	w := &captureWriter{}
	log := New(w, Config{LogLevel: Warn, SlowThreshold: time.Millisecond})

	begin := time.Now().Add(-10 * time.Millisecond)
	log.Trace(ctx, begin, func() (string, int64) { return "broadcast", 4 }, nil)

	require.Len(t, w.lines, 1)
	assert.Contains(t, w.lines[0], "SLOW OPERATION")
	assert.Contains(t, w.lines[0], "broadcast")
}

func TestTraceLogsErrors(t *testing.T) {
	ctx := context.Background()
	w := &captureWriter{}
	log := New(w, Config{LogLevel: Error})

	log.Trace(ctx, time.Now(), func() (string, int64) { return "persist", 1 }, fmt.Errorf("disk full"))

	require.Len(t, w.lines, 1)
	assert.Contains(t, w.lines[0], "disk full")
}

func TestTraceSilent(t *testing.T) {
	ctx := context.Background()
	w := &captureWriter{}
	log := New(w, Config{LogLevel: Silent})

	log.Trace(ctx, time.Now(), func() (string, int64) { return "persist", 1 }, fmt.Errorf("boom"))
	assert.Empty(t, w.lines)
}

func TestLevelString(t *testing.T) {
	assert.Equal(t, "silent", Silent.String())
	assert.Equal(t, "debug", Debug.String())
	assert.Equal(t, "unknown", LogLevel(99).String())
}
