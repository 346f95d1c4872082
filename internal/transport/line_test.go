package transport

import (
	"bufio"
	"errors"
	"io"
	"strings"
	"testing"
)

func readerByteFunc(r io.Reader) readByteFunc {
	br := bufio.NewReader(r)
	return br.ReadByte
}

func TestEncodeLine(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{name: "adds newline", in: "getStatus", want: "getStatus\n"},
		{name: "keeps single newline", in: "readBuffer 0 5\n", want: "readBuffer 0 5\n"},
		{name: "normalizes crlf", in: "reset\r\n", want: "reset\n"},
		{name: "empty", in: "\n", wantErr: true},
		{name: "embedded newline", in: "reset\ngetStatus\n", wantErr: true},
	}

	for _, tc := range tests {
		got, err := encodeLine([]byte(tc.in))
		if tc.wantErr {
			if err == nil {
				t.Fatalf("%s: expected error, got %q", tc.name, got)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", tc.name, err)
		}
		if string(got) != tc.want {
			t.Fatalf("%s: got %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestReadLineSplitsAndSkipsBlankLines(t *testing.T) {
	readByte := readerByteFunc(strings.NewReader("Ready!\r\n\n{\"status\":\"ok\"}\n"))

	for _, want := range []string{"Ready!", `{"status":"ok"}`} {
		got, err := readLine(readByte)
		if err != nil {
			t.Fatalf("read line: %v", err)
		}
		if string(got) != want {
			t.Fatalf("got %q, want %q", got, want)
		}
	}

	if _, err := readLine(readByte); !errors.Is(err, io.EOF) {
		t.Fatalf("expected EOF, got %v", err)
	}
}

func TestReadLineReportsTruncatedLine(t *testing.T) {
	_, err := readLine(readerByteFunc(strings.NewReader("partial")))
	if !errors.Is(err, io.EOF) {
		t.Fatalf("expected wrapped EOF, got %v", err)
	}
	if !strings.Contains(err.Error(), "7 bytes pending") {
		t.Fatalf("unexpected error text: %v", err)
	}
}

func TestReadLineRejectsOversizedLine(t *testing.T) {
	_, err := readLine(readerByteFunc(strings.NewReader(strings.Repeat("x", maxLineLength+1) + "\n")))
	if !errors.Is(err, errLineTooLong) {
		t.Fatalf("expected errLineTooLong, got %v", err)
	}
}
