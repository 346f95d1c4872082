package transport

import (
	"bytes"
	"errors"
	"fmt"
)

const maxLineLength = 16 * 1024

var errLineTooLong = fmt.Errorf("line exceeds %d bytes", maxLineLength)

type readByteFunc func() (byte, error)

// encodeLine terminates a command with a single newline. Embedded newlines
// would split one command into two on the device side.
func encodeLine(payload []byte) ([]byte, error) {
	body := bytes.TrimRight(payload, "\r\n")
	if len(body) == 0 {
		return nil, errors.New("empty command line")
	}
	if bytes.ContainsAny(body, "\r\n") {
		return nil, errors.New("command line contains embedded newline")
	}

	line := make([]byte, len(body)+1)
	copy(line, body)
	line[len(body)] = '\n'

	return line, nil
}

// readLine reads up to the next '\n', trims a trailing '\r' and skips
// empty lines.
func readLine(readByte readByteFunc) ([]byte, error) {
	var buf []byte
	for {
		b, err := readByte()
		if err != nil {
			if len(buf) > 0 {
				return nil, fmt.Errorf("read line (%d bytes pending): %w", len(buf), err)
			}
			return nil, err
		}
		if b != '\n' {
			if len(buf) >= maxLineLength {
				return nil, errLineTooLong
			}
			buf = append(buf, b)
			continue
		}

		buf = bytes.TrimRight(buf, "\r")
		if len(buf) == 0 {
			continue
		}
		return buf, nil
	}
}
