package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gorm_logger "gorm.io/gorm/logger"
)

func TestModuleLoggerLevels(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		level     LogLevel
		logFunc   func(l Logger)
		wantEmpty bool
	}{
		{"debug suppressed at info", LogLevelInfo, func(l Logger) { l.Debug("hidden") }, true},
		{"info emitted at info", LogLevelInfo, func(l Logger) { l.Info("shown") }, false},
		{"trace emitted at trace", LogLevelTrace, func(l Logger) { l.Trace("shown") }, false},
		{"warn suppressed at error", LogLevelError, func(l Logger) { l.Warn("hidden") }, true},
		{"error always emitted", LogLevelError, func(l Logger) { l.Error("shown") }, false},
		{"explicit level respected", LogLevelWarn, func(l Logger) { l.Log(LogLevelDebug, "hidden") }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			buf := &bytes.Buffer{}
			tt.logFunc(NewSlogLogger(buf, tt.level, time.UTC))
			assert.Equal(t, tt.wantEmpty, buf.Len() == 0, "output: %q", buf.String())
		})
	}
}

func TestTextOutputFormat(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	log := NewSlogLogger(buf, LogLevelTrace, time.UTC).Module("datastore").Module("sqlite")
	log.Info("detection stored",
		Uint64("id", 7),
		String("location", "台東縣 海端鄉"),
		Float64("confidence", 0.85123),
		Duration("elapsed", 1500*time.Millisecond))
	log.Trace("sql query")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "INFO  [datastore.sqlite] detection stored"), lines[0])
	assert.Contains(t, lines[0], "id=7")
	assert.Contains(t, lines[0], `location="台東縣 海端鄉"`)
	assert.Contains(t, lines[0], "confidence=0.851")
	assert.Contains(t, lines[0], "elapsed=1.5s")
	assert.True(t, strings.HasPrefix(lines[1], "TRACE [datastore.sqlite]"), lines[1])
}

func TestWithFieldsAreImmutable(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	base := NewSlogLogger(buf, LogLevelInfo, time.UTC).Module("api")
	child := base.With(String("request_id", "req-1"))
	base.Info("parent")
	child.Info("child")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.NotContains(t, lines[0], "request_id")
	assert.Contains(t, lines[1], "request_id=req-1")
}

func TestWithContextAddsTraceID(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	log := NewSlogLogger(buf, LogLevelInfo, time.UTC)
	ctx := WithTraceID(context.Background(), "abc-123")
	log.WithContext(ctx).Info("hello")
	log.WithContext(context.Background()).Info("plain")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "trace_id=abc-123")
	assert.NotContains(t, lines[1], "trace_id")
}

func TestCentralLoggerRoutesModuleToFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	modulePath := filepath.Join(dir, "access.log")
	console := &bytes.Buffer{}

	cl, err := newCentralLogger(&LoggingConfig{
		DefaultLevel: "info",
		Timezone:     "UTC",
		Console:      &ConsoleOutput{Enabled: true, Level: "info"},
		FileOutput:   &FileOutput{Enabled: false},
		ModuleOutputs: map[string]ModuleOutput{
			"access": {Enabled: true, FilePath: modulePath, Level: "debug"},
		},
	}, console)
	require.NoError(t, err)

	cl.Module("access").Debug("GET /api/statistics", Int("status", 200))
	cl.Module("submission").Info("accepted")
	require.NoError(t, cl.Close())

	data, err := os.ReadFile(modulePath)
	require.NoError(t, err)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(data), &entry))
	assert.Equal(t, "access", entry["module"])
	assert.Equal(t, "GET /api/statistics", entry["msg"])
	assert.InDelta(t, 200, entry["status"], 0)

	assert.Contains(t, console.String(), "[submission] accepted")
	assert.NotContains(t, console.String(), "GET /api/statistics")
}

func TestCentralLoggerWritesJSONFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "logs", "bearwatch.log")
	cl, err := newCentralLogger(&LoggingConfig{
		DefaultLevel: "trace",
		Timezone:     "Asia/Taipei",
		Console:      &ConsoleOutput{Enabled: false},
		FileOutput:   &FileOutput{Enabled: true, Path: path, Level: "trace"},
	}, &bytes.Buffer{})
	require.NoError(t, err)

	cl.Module("datastore").Trace("sql query")
	require.NoError(t, cl.Flush())
	require.NoError(t, cl.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"level":"TRACE"`)
}

func TestCentralLoggerRejectsBadTimezone(t *testing.T) {
	t.Parallel()

	_, err := newCentralLogger(&LoggingConfig{Timezone: "Mars/Olympus"}, &bytes.Buffer{})
	require.Error(t, err)
}

func TestGormLoggerAdapter(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	adapter := NewGormLoggerAdapter(NewSlogLogger(buf, LogLevelTrace, time.UTC), 10*time.Millisecond)
	assert.Same(t, adapter, adapter.LogMode(gorm_logger.Silent))

	sql := func() (string, int64) { return "SELECT 1", 1 }
	adapter.Trace(context.Background(), time.Now(), sql, nil)
	adapter.Trace(context.Background(), time.Now().Add(-time.Second), sql, nil)
	adapter.Trace(context.Background(), time.Now(), sql, fmt.Errorf("database is locked"))

	out := buf.String()
	assert.Contains(t, out, "TRACE sql query")
	assert.Contains(t, out, "WARN  slow query")
	assert.Contains(t, out, "WARN  query error")
	assert.Contains(t, out, "database is locked")
}

func TestValidLevel(t *testing.T) {
	t.Parallel()

	assert.True(t, ValidLevel("trace"))
	assert.True(t, ValidLevel("warn"))
	assert.False(t, ValidLevel("verbose"))
	assert.False(t, ValidLevel(""))
}
