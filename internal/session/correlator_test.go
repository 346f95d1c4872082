package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/skobkin/scalectl/internal/protocol"
)

func TestCorrelatorAwaitNextTimesOutWithinBound(t *testing.T) {
	c := NewCorrelator(nil)
	timeout := 40 * time.Millisecond

	start := time.Now()
	_, err := c.AwaitNext(context.Background(), timeout)
	elapsed := time.Since(start)

	if !errors.Is(err, ErrResponseTimeout) {
		t.Fatalf("expected response timeout, got %v", err)
	}
	if elapsed < timeout {
		t.Fatalf("returned before the bound: %s", elapsed)
	}
	if elapsed > timeout+time.Second {
		t.Fatalf("timeout overshot the bound: %s", elapsed)
	}
}

func TestCorrelatorAwaitNextHonorsContext(t *testing.T) {
	c := NewCorrelator(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := c.AwaitNext(ctx, time.Second); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context cancellation, got %v", err)
	}
}

func TestCorrelatorDeliverNeverBlocks(t *testing.T) {
	c := NewCorrelator(nil)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			c.Deliver(protocol.Decode([]byte(fmt.Sprintf(`{"n":%d}`, i))))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("deliver blocked without a waiter")
	}

	resp, err := c.AwaitNext(context.Background(), time.Second)
	if err != nil {
		t.Fatalf("await: %v", err)
	}
	if n, _ := resp.Int("n"); n != 0 {
		t.Fatalf("expected first arrival to survive, got %s", resp.Raw)
	}
	if n := c.Discard(); n != 0 {
		t.Fatalf("mailbox must hold at most one item, discarded %d more", n)
	}
}

func TestCorrelatorKeepsReplyWhenLogLineFollows(t *testing.T) {
	c := NewCorrelator(nil)

	c.Deliver(protocol.Decode([]byte(`{"bufferSize":12}`)))
	c.Deliver(protocol.Decode([]byte(`[12:00:00.000] <status> idle`)))

	resp, err := c.AwaitNext(context.Background(), time.Second)
	if err != nil {
		t.Fatalf("await: %v", err)
	}
	if n, ok := resp.Int("bufferSize"); !ok || n != 12 {
		t.Fatalf("reply was displaced by a later log line: %q", resp.Raw)
	}
	if n := c.Discard(); n != 0 {
		t.Fatalf("expected the log line to be dropped, discarded %d", n)
	}
}

func TestCorrelatorIssueDiscardsStaleResponse(t *testing.T) {
	c := NewCorrelator(nil)
	c.Deliver(protocol.Decode([]byte(`{"status":"ok","rate":10}`)))

	resp, err := c.Issue(context.Background(), protocol.CommandGetStatus, func(context.Context) error {
		c.Deliver(protocol.Decode([]byte(`{"logging":false,"bufferSize":7,"rateHz":10}`)))
		return nil
	}, time.Second)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if n, _ := resp.Int("bufferSize"); n != 7 {
		t.Fatalf("stale response leaked into the next command: %s", resp.Raw)
	}
}

func TestCorrelatorIssueTimeoutNamesCommand(t *testing.T) {
	c := NewCorrelator(nil)

	_, err := c.Issue(context.Background(), protocol.CommandReadBuffer, func(context.Context) error {
		return nil
	}, 20*time.Millisecond)

	var timeoutErr *ResponseTimeoutError
	if !errors.As(err, &timeoutErr) {
		t.Fatalf("expected ResponseTimeoutError, got %v", err)
	}
	if timeoutErr.Command != protocol.CommandReadBuffer || timeoutErr.Timeout != 20*time.Millisecond {
		t.Fatalf("unexpected timeout details: %+v", timeoutErr)
	}
}

func TestCorrelatorIssueWrapsSendFailure(t *testing.T) {
	c := NewCorrelator(nil)
	writeErr := errors.New("gatt write failed")

	_, err := c.Issue(context.Background(), protocol.CommandReset, func(context.Context) error {
		return writeErr
	}, time.Second)
	if !errors.Is(err, ErrTransport) || !errors.Is(err, writeErr) {
		t.Fatalf("expected wrapped transport failure, got %v", err)
	}
}

func TestCorrelatorIssueSerializesCallers(t *testing.T) {
	c := NewCorrelator(nil)

	const callers = 8
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			resp, err := c.Issue(context.Background(), protocol.CommandGetNow, func(context.Context) error {
				go func() {
					time.Sleep(5 * time.Millisecond)
					c.Deliver(protocol.Decode([]byte(fmt.Sprintf(`{"epoch":%d}`, id))))
				}()
				return nil
			}, 2*time.Second)
			if err != nil {
				errs <- err
				return
			}
			if got, _ := resp.Int("epoch"); got != int64(id) {
				errs <- fmt.Errorf("caller %d received answer for %d", id, got)
			}
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Fatal(err)
	}
}

func TestCorrelatorClose(t *testing.T) {
	c := NewCorrelator(nil)

	waitErr := make(chan error, 1)
	go func() {
		_, err := c.AwaitNext(context.Background(), 5*time.Second)
		waitErr <- err
	}()

	time.Sleep(10 * time.Millisecond)
	c.Close()
	c.Close()

	select {
	case err := <-waitErr:
		if !errors.Is(err, ErrClosed) {
			t.Fatalf("expected ErrClosed, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("waiter was not released by close")
	}

	if _, err := c.Issue(context.Background(), protocol.CommandGetNow, func(context.Context) error {
		t.Fatalf("send must not run after close")
		return nil
	}, time.Second); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed from issue, got %v", err)
	}
}
