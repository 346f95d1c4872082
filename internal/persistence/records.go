package persistence

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/skobkin/scalectl/internal/protocol"
)

const maxRecordLineSize = 1 << 20

// RecordLog is an append-only JSON Lines file of fetched records.
type RecordLog struct {
	path   string
	logger *slog.Logger

	mu sync.Mutex
}

func NewRecordLog(logger *slog.Logger, path string) *RecordLog {
	if logger == nil {
		logger = slog.Default().With("component", "persistence")
	}

	return &RecordLog{path: path, logger: logger}
}

func (l *RecordLog) Path() string {
	return l.path
}

// Append writes records as compact JSON, one per line, in a single write.
// Nothing is written if any record is not valid JSON.
func (l *RecordLog) Append(ctx context.Context, records []protocol.Record) error {
	if len(records) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	var buf bytes.Buffer
	for i, rec := range records {
		if err := json.Compact(&buf, rec); err != nil {
			return fmt.Errorf("record %d is not valid json: %w", i, err)
		}
		buf.WriteByte('\n')
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(l.path), 0o750); err != nil {
		return fmt.Errorf("create records dir: %w", err)
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open records file: %w", err)
	}
	if _, err := f.Write(buf.Bytes()); err != nil {
		_ = f.Close()
		return fmt.Errorf("append records: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close records file: %w", err)
	}
	l.logger.Info("records appended", "path", l.path, "count", len(records), "bytes", buf.Len())

	return nil
}

// ReadAll loads every record stored at path. A missing file holds no records.
func ReadAll(path string) ([]protocol.Record, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open records file: %w", err)
	}
	defer f.Close()

	var records []protocol.Record
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxRecordLineSize)
	for line := 1; scanner.Scan(); line++ {
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		if !json.Valid(raw) {
			return records, fmt.Errorf("records file line %d is not valid json", line)
		}
		records = append(records, protocol.Record(append([]byte(nil), raw...)))
	}
	if err := scanner.Err(); err != nil {
		return records, fmt.Errorf("read records file: %w", err)
	}

	return records, nil
}
