package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/skobkin/scalectl/internal/protocol"
)

var (
	// ErrResponseTimeout is matched when no notification arrived in time.
	ErrResponseTimeout = errors.New("response timeout")
	// ErrTransport wraps connect/write failures of the underlying transport.
	ErrTransport = errors.New("transport failure")
	// ErrClosed is returned for commands issued after the session ended.
	ErrClosed = errors.New("session closed")
)

type ResponseTimeoutError struct {
	Command protocol.Command
	Timeout time.Duration
}

func (e *ResponseTimeoutError) Error() string {
	if e.Command == "" {
		return fmt.Sprintf("no response within %s", e.Timeout)
	}

	return fmt.Sprintf("%s: no response within %s", e.Command, e.Timeout)
}

func (e *ResponseTimeoutError) Is(target error) bool {
	return target == ErrResponseTimeout
}

func transportError(err error) error {
	return fmt.Errorf("%w: %w", ErrTransport, err)
}
