package persistence

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/skobkin/scalectl/internal/protocol"
)

func TestRecordLogAppendAndReadAll(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "records.jsonl")
	log := NewRecordLog(nil, path)
	ctx := context.Background()

	if err := log.Append(ctx, []protocol.Record{
		protocol.Record(`{ "t": 1700000000, "w": 10.5 }`),
		protocol.Record(`{"t":1700000001,"w":11}`),
	}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := log.Append(ctx, []protocol.Record{protocol.Record(`{"t":1700000002,"w":12.25}`)}); err != nil {
		t.Fatalf("second append: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	want := "{\"t\":1700000000,\"w\":10.5}\n{\"t\":1700000001,\"w\":11}\n{\"t\":1700000002,\"w\":12.25}\n"
	if string(raw) != want {
		t.Fatalf("unexpected file content:\n%s", raw)
	}

	records, err := ReadAll(path)
	if err != nil {
		t.Fatalf("read all: %v", err)
	}
	if len(records) != 3 || string(records[2]) != `{"t":1700000002,"w":12.25}` {
		t.Fatalf("unexpected records: %q", records)
	}
}

func TestRecordLogRejectsInvalidBatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "records.jsonl")
	log := NewRecordLog(nil, path)

	err := log.Append(context.Background(), []protocol.Record{
		protocol.Record(`{"t":1}`),
		protocol.Record(`{"t":`),
	})
	if err == nil {
		t.Fatalf("expected invalid record error")
	}
	if _, statErr := os.Stat(path); !os.IsNotExist(statErr) {
		t.Fatalf("nothing must be written for an invalid batch, stat err: %v", statErr)
	}
}

func TestRecordLogEmptyAppendIsNoop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "records.jsonl")
	if err := NewRecordLog(nil, path).Append(context.Background(), nil); err != nil {
		t.Fatalf("append: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("file must not be created for zero records")
	}
}

func TestRecordLogFileMode(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix permissions")
	}
	path := filepath.Join(t.TempDir(), "records.jsonl")
	if err := NewRecordLog(nil, path).Append(context.Background(), []protocol.Record{protocol.Record(`{}`)}); err != nil {
		t.Fatalf("append: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm&0o077 != 0 {
		t.Fatalf("records file must be private, got %o", perm)
	}
}

func TestReadAllMissingFileAndBlankLines(t *testing.T) {
	dir := t.TempDir()
	records, err := ReadAll(filepath.Join(dir, "absent.jsonl"))
	if err != nil || len(records) != 0 {
		t.Fatalf("missing file: records=%v err=%v", records, err)
	}

	path := filepath.Join(dir, "records.jsonl")
	if err := os.WriteFile(path, []byte("{\"a\":1}\n\n  \n{\"a\":2}\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	records, err = ReadAll(path)
	if err != nil {
		t.Fatalf("read all: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected blank lines to be skipped, got %q", records)
	}

	if err := os.WriteFile(path, []byte("{\"a\":1}\nnot json\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := ReadAll(path); err == nil {
		t.Fatalf("expected error for corrupt line")
	}
}
