package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]log.Level{
		"debug":   log.DebugLevel,
		"INFO":    log.InfoLevel,
		"warn":    log.WarnLevel,
		"warning": log.WarnLevel,
		" error ": log.ErrorLevel,
		"fatal":   log.FatalLevel,
		"chatty":  log.WarnLevel,
		"":        log.WarnLevel,
	}
	for in, want := range cases {
		require.Equal(t, want, ParseLevel(in), in)
	}
}

func TestParseFormatter(t *testing.T) {
	require.Equal(t, log.JSONFormatter, ParseFormatter("json"))
	require.Equal(t, log.LogfmtFormatter, ParseFormatter("LOGFMT"))
	require.Equal(t, log.TextFormatter, ParseFormatter("text"))
	require.Equal(t, log.TextFormatter, ParseFormatter("xml"))
}

func TestValidators(t *testing.T) {
	require.True(t, ValidLevel("debug"))
	require.False(t, ValidLevel("verbose"))
	require.True(t, ValidFormat("logfmt"))
	require.False(t, ValidFormat("yaml"))
}

func TestLoggerFiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, Options{Level: "warn", Format: "text"})
	logger.Debug("hidden")
	logger.Warn("skipping task file", "path", "tasks/x.md")

	out := buf.String()
	require.NotContains(t, out, "hidden")
	require.Contains(t, out, "skipping task file")
	require.Contains(t, out, "tasks/x.md")
}

func TestLoggerJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, Options{Level: "info", Format: "json", Prefix: "tasker"})
	logger.Info("task added", "id", "tsk_1")

	line := strings.TrimSpace(buf.String())
	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(line), &entry))
	require.Equal(t, "task added", entry["msg"])
	require.Equal(t, "tsk_1", entry["id"])
}

func TestDefaultLoggers(t *testing.T) {
	l := New(DefaultOptions())
	require.Equal(t, log.WarnLevel, l.GetLevel())
	require.Equal(t, "tasker", l.GetPrefix())

	d := Discard()
	require.NotNil(t, d)
	d.Error("dropped")
}
