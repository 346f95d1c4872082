package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/skobkin/scalectl/internal/protocol"
)

// DefaultResponseTimeout bounds the wait for a reply when no timeout is given.
const DefaultResponseTimeout = 5 * time.Second

// Correlator pairs one outstanding command with the next notification.
//
// The device has no request identifiers, so correlation is purely
// positional: the mailbox holds at most one decoded response and Issue
// serializes the whole send-then-await span. Deliver never blocks; when the
// slot is occupied the first arrival stays and the newer response is dropped.
type Correlator struct {
	logger *slog.Logger

	slot    chan protocol.Response
	issueCh chan struct{}

	deliverMu sync.Mutex
	closed    chan struct{}
	closeOnce sync.Once
}

func NewCorrelator(logger *slog.Logger) *Correlator {
	if logger == nil {
		logger = slog.Default().With("component", "correlator")
	}

	return &Correlator{
		logger:  logger,
		slot:    make(chan protocol.Response, 1),
		issueCh: make(chan struct{}, 1),
		closed:  make(chan struct{}),
	}
}

// Deliver stores a decoded notification for the current waiter.
func (c *Correlator) Deliver(resp protocol.Response) {
	c.deliverMu.Lock()
	defer c.deliverMu.Unlock()

	select {
	case <-c.closed:
		c.logger.Debug("deliver skipped: correlator closed", "len", len(resp.Raw))
		return
	default:
	}

	select {
	case c.slot <- resp:
	default:
		c.logger.Warn("mailbox full, dropping newer response", "len", len(resp.Raw), "valid", resp.Valid())
	}
}

// AwaitNext waits for one response for at most timeout. The slot is left
// empty after a timeout; nothing in flight is canceled.
func (c *Correlator) AwaitNext(ctx context.Context, timeout time.Duration) (protocol.Response, error) {
	if timeout <= 0 {
		timeout = DefaultResponseTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case resp := <-c.slot:
		return resp, nil
	case <-ctx.Done():
		return protocol.Response{}, ctx.Err()
	case <-timer.C:
		return protocol.Response{}, &ResponseTimeoutError{Timeout: timeout}
	case <-c.closed:
		select {
		case resp := <-c.slot:
			return resp, nil
		default:
		}
		return protocol.Response{}, ErrClosed
	}
}

// Discard empties the mailbox and reports how many responses were removed.
func (c *Correlator) Discard() int {
	n := 0
	for {
		select {
		case stale := <-c.slot:
			n++
			c.logger.Debug("discarding stale response", "raw", stale.Raw)
		default:
			return n
		}
	}
}

// Issue runs send and waits for the next notification while holding the
// issue lock, so at most one command is ever awaiting a reply. Responses
// that arrived before the send are discarded first.
func (c *Correlator) Issue(ctx context.Context, cmd protocol.Command, send func(context.Context) error, timeout time.Duration) (protocol.Response, error) {
	select {
	case c.issueCh <- struct{}{}:
	case <-ctx.Done():
		return protocol.Response{}, ctx.Err()
	case <-c.closed:
		return protocol.Response{}, ErrClosed
	}
	defer func() { <-c.issueCh }()

	if c.isClosed() {
		return protocol.Response{}, ErrClosed
	}
	if n := c.Discard(); n > 0 {
		c.logger.Warn("discarded stale responses before issuing", "command", cmd, "count", n)
	}

	if err := send(ctx); err != nil {
		return protocol.Response{}, transportError(err)
	}

	resp, err := c.AwaitNext(ctx, timeout)
	if err != nil {
		var timeoutErr *ResponseTimeoutError
		if errors.As(err, &timeoutErr) {
			timeoutErr.Command = cmd
			c.logger.Warn("response timeout", "command", cmd, "timeout", timeoutErr.Timeout)
		}
		return protocol.Response{}, err
	}

	return resp, nil
}

// Close fails pending and future waits with ErrClosed.
func (c *Correlator) Close() {
	c.closeOnce.Do(func() {
		c.deliverMu.Lock()
		close(c.closed)
		c.deliverMu.Unlock()
	})
}

func (c *Correlator) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}
