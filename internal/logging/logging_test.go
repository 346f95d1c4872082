package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/skobkin/scalectl/internal/config"
)

func TestTeeHandlerContinuesWhenOneDestinationFails(t *testing.T) {
	var dst bytes.Buffer
	h := teeHandler{
		slog.NewTextHandler(errorWriter{err: errors.New("broken stderr")}, nil),
		slog.NewTextHandler(&dst, nil),
	}

	rec := slog.NewRecord(time.Now(), slog.LevelInfo, "test", 0)
	if err := h.Handle(context.Background(), rec); err != nil {
		t.Fatalf("handle returned error: %v", err)
	}
	if !strings.Contains(dst.String(), "msg=test") {
		t.Fatalf("unexpected destination contents: %q", dst.String())
	}

	onlyBroken := teeHandler{slog.NewTextHandler(errorWriter{err: errors.New("broken")}, nil)}
	if err := onlyBroken.Handle(context.Background(), rec); err == nil {
		t.Fatalf("expected error when every destination fails")
	}
}

func TestManagerConfigure_LogFileGetsJSONWhenConsoleFails(t *testing.T) {
	origDefault := slog.Default()
	t.Cleanup(func() { slog.SetDefault(origDefault) })

	logPath := filepath.Join(t.TempDir(), "nested", "app.log")
	m := NewManagerWithOutput(errorWriter{err: errors.New("broken console")})
	t.Cleanup(func() { _ = m.Close() })

	if err := m.Configure(config.LoggingConfig{Level: "debug", LogToFile: true}, logPath); err != nil {
		t.Fatalf("configure manager: %v", err)
	}

	m.Logger("drain").Debug("chunk read", "offset", 5)

	if err := m.Close(); err != nil {
		t.Fatalf("close manager: %v", err)
	}

	// #nosec G304 -- logPath is created from t.TempDir() in this test.
	raw, err := os.ReadFile(filepath.Clean(logPath))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(raw), &entry); err != nil {
		t.Fatalf("log file line is not JSON: %q (%v)", raw, err)
	}
	if entry["msg"] != "chunk read" || entry["component"] != "drain" || entry["offset"] != float64(5) {
		t.Fatalf("unexpected log entry: %v", entry)
	}
}

func TestManagerLoggerCarriesComponentAndLevel(t *testing.T) {
	origDefault := slog.Default()
	t.Cleanup(func() { slog.SetDefault(origDefault) })

	var out bytes.Buffer
	m := NewManagerWithOutput(&out)
	if err := m.Configure(config.LoggingConfig{Level: "warn"}, ""); err != nil {
		t.Fatalf("configure manager: %v", err)
	}
	if m.Level() != slog.LevelWarn {
		t.Fatalf("unexpected level: %v", m.Level())
	}

	logger := m.Logger("drain")
	logger.Info("hidden")
	logger.Warn("visible")

	got := out.String()
	if strings.Contains(got, "hidden") {
		t.Fatalf("info record must be filtered at warn level: %q", got)
	}
	if !strings.Contains(got, "visible") || !strings.Contains(got, "component=drain") {
		t.Fatalf("unexpected log output: %q", got)
	}
}

func TestManagerConfigureRejectsBadInput(t *testing.T) {
	m := NewManagerWithOutput(nil)
	if err := m.Configure(config.LoggingConfig{Level: "verbose"}, ""); err == nil {
		t.Fatalf("expected error for unsupported level")
	}
	if err := m.Configure(config.LoggingConfig{Level: "info", LogToFile: true}, " "); err == nil {
		t.Fatalf("expected error for empty log path")
	}
}

func TestParseLevel(t *testing.T) {
	for _, level := range []string{"", "debug", "INFO", "warning", "error"} {
		if err := ParseLevel(level); err != nil {
			t.Fatalf("level %q: unexpected error: %v", level, err)
		}
	}
	if err := ParseLevel("verbose"); err == nil {
		t.Fatalf("expected error for unsupported level")
	}
}

type errorWriter struct {
	err error
}

func (w errorWriter) Write(_ []byte) (int, error) {
	return 0, w.err
}
