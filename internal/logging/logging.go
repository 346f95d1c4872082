package logging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/skobkin/scalectl/internal/config"
)

// Manager owns the process logger. Console records are text on stderr so
// stdout stays reserved for command output and fetched records; the
// optional log file receives the same records as JSON lines.
type Manager struct {
	mu      sync.RWMutex
	logger  *slog.Logger
	level   *slog.LevelVar
	console io.Writer
	file    *os.File
}

func NewManager() *Manager {
	return NewManagerWithOutput(os.Stderr)
}

// NewManagerWithOutput builds a manager whose console output goes to out.
func NewManagerWithOutput(out io.Writer) *Manager {
	if out == nil {
		out = io.Discard
	}
	m := &Manager{console: out, level: new(slog.LevelVar)}
	m.logger = slog.New(m.consoleHandler())

	return m
}

func (m *Manager) Configure(cfg config.LoggingConfig, filePath string) error {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.file != nil {
		_ = m.file.Close()
		m.file = nil
	}
	m.level.Set(level)

	handler := m.consoleHandler()
	if cfg.LogToFile {
		file, err := openLogFile(filePath)
		if err != nil {
			return err
		}
		m.file = file
		handler = teeHandler{handler, slog.NewJSONHandler(file, &slog.HandlerOptions{Level: m.level})}
	}

	m.logger = slog.New(handler)
	slog.SetDefault(m.logger)

	return nil
}

func (m *Manager) consoleHandler() slog.Handler {
	return slog.NewTextHandler(m.console, &slog.HandlerOptions{Level: m.level})
}

func openLogFile(path string) (*os.File, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("log file path is empty")
	}
	cleanPath := filepath.Clean(path)
	if err := os.MkdirAll(filepath.Dir(cleanPath), 0o750); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	// #nosec G304 -- path is resolved by app runtime and points to user config dir.
	file, err := os.OpenFile(cleanPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	return file, nil
}

func (m *Manager) Logger(component string) *slog.Logger {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.logger.With("component", component)
}

// Level reports the active minimum level.
func (m *Manager) Level() slog.Level {
	return m.level.Level()
}

func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.file == nil {
		return nil
	}
	err := m.file.Close()
	m.file = nil

	return err
}

// ParseLevel validates a textual log level.
func ParseLevel(raw string) error {
	_, err := parseLevel(raw)

	return err
}

func parseLevel(raw string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unsupported log level: %q", raw)
	}
}

// teeHandler hands every record to all handlers. A failing destination does
// not stop the others; an error is reported only when all of them failed.
type teeHandler []slog.Handler

func (t teeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range t {
		if h.Enabled(ctx, level) {
			return true
		}
	}

	return false
}

func (t teeHandler) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	handled := 0
	for _, h := range t {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		handled++
		if err := h.Handle(ctx, r.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	if handled > 0 && len(errs) == handled {
		return errors.Join(errs...)
	}

	return nil
}

func (t teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(teeHandler, len(t))
	for i, h := range t {
		out[i] = h.WithAttrs(attrs)
	}

	return out
}

func (t teeHandler) WithGroup(name string) slog.Handler {
	out := make(teeHandler, len(t))
	for i, h := range t {
		out[i] = h.WithGroup(name)
	}

	return out
}
