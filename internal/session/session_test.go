package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/skobkin/scalectl/internal/bus"
	"github.com/skobkin/scalectl/internal/connectors"
	"github.com/skobkin/scalectl/internal/protocol"
)

type fakeTransport struct {
	frames chan []byte
	closed chan struct{}

	mu        sync.Mutex
	written   []string
	replies   map[string][]string
	writeErr  error
	closeOnce sync.Once
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		frames:  make(chan []byte, 16),
		closed:  make(chan struct{}),
		replies: make(map[string][]string),
	}
}

// reply makes the device answer a command name with the given frames.
func (f *fakeTransport) reply(cmd protocol.Command, frames ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies[string(cmd)] = frames
}

func (f *fakeTransport) Name() string { return "fake" }

func (f *fakeTransport) StatusTarget() string { return "fake-scale" }

func (f *fakeTransport) Connect(context.Context) error { return nil }

func (f *fakeTransport) Close() error {
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeTransport) ReadFrame(ctx context.Context) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-f.closed:
		return nil, errors.New("link lost")
	case frame := <-f.frames:
		return frame, nil
	}
}

func (f *fakeTransport) WriteFrame(_ context.Context, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return f.writeErr
	}
	line := strings.TrimRight(string(payload), "\n")
	f.written = append(f.written, line)

	name := strings.Fields(line)[0]
	for _, frame := range f.replies[name] {
		f.frames <- []byte(frame)
	}
	return nil
}

func (f *fakeTransport) lines() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.written...)
}

func openTestSession(t *testing.T, tr *fakeTransport, b bus.MessageBus) *Session {
	t.Helper()
	s := New(nil, b, tr, Options{ResponseTimeout: 200 * time.Millisecond})
	if err := s.Open(context.Background()); err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSessionTypedCommands(t *testing.T) {
	tr := newFakeTransport()
	tr.reply(protocol.CommandGetStatus, `{"logging":true,"bufferSize":12,"rateHz":10}`)
	tr.reply(protocol.CommandSetTime, `{"status":"ok","offset":-2,"time":"2024-03-01 10:00:00"}`)
	tr.reply(protocol.CommandReadBuffer, `{"records":[{"t":1,"w":10.5},{"t":2,"w":11}],"length":2}`)
	tr.reply(protocol.CommandGetVersion, "0.0.3\r\n")
	s := openTestSession(t, tr, nil)
	ctx := context.Background()

	status, err := s.GetStatus(ctx)
	if err != nil {
		t.Fatalf("get status: %v", err)
	}
	if !status.Logging || status.BufferSize != 12 || status.RateHz != 10 {
		t.Fatalf("unexpected status: %+v", status)
	}

	setTime, err := s.SetTime(ctx, 1709287200)
	if err != nil {
		t.Fatalf("set time: %v", err)
	}
	if setTime.Offset != -2 {
		t.Fatalf("unexpected set time reply: %+v", setTime)
	}

	chunk, err := s.ReadBuffer(ctx, 0, 5)
	if err != nil {
		t.Fatalf("read buffer: %v", err)
	}
	if chunk.Length != 2 || string(chunk.Records[0]) != `{"t":1,"w":10.5}` {
		t.Fatalf("unexpected chunk: %+v", chunk)
	}

	version, err := s.GetVersion(ctx)
	if err != nil {
		t.Fatalf("get version: %v", err)
	}
	if version != "0.0.3" {
		t.Fatalf("unexpected version: %q", version)
	}

	want := []string{"getStatus", "setTime 1709287200", "readBuffer 0 5", "getVersion"}
	got := tr.lines()
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("unexpected wire lines: got %q want %q", got, want)
	}
}

func TestSessionDiagnosticLineIsNullResponse(t *testing.T) {
	tr := newFakeTransport()
	tr.reply(protocol.CommandGetStatus, "[raw] <INFO> Taring...")
	s := openTestSession(t, tr, nil)

	resp, err := s.Execute(context.Background(), protocol.CommandGetStatus)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if resp.Valid() || resp.Raw != "[raw] <INFO> Taring..." {
		t.Fatalf("expected null marker with raw text, got %+v", resp)
	}

	tr.reply(protocol.CommandGetStatus, "not json")
	if _, err := s.GetStatus(context.Background()); !errors.Is(err, protocol.ErrMalformedResponse) {
		t.Fatalf("expected malformed response error, got %v", err)
	}
}

func TestSessionDeviceError(t *testing.T) {
	tr := newFakeTransport()
	tr.reply(protocol.CommandSetSamplingRate, `{"status":"error","message":"Invalid rate"}`)
	s := openTestSession(t, tr, nil)

	_, err := s.SetSamplingRate(context.Background(), 0)
	var devErr *protocol.DeviceError
	if !errors.As(err, &devErr) {
		t.Fatalf("expected device error, got %v", err)
	}
	if devErr.Command != protocol.CommandSetSamplingRate || devErr.Message != "Invalid rate" {
		t.Fatalf("unexpected device error: %+v", devErr)
	}
}

func TestSessionRejectsInvalidArgumentsBeforeWriting(t *testing.T) {
	tr := newFakeTransport()
	s := openTestSession(t, tr, nil)

	if _, err := s.Execute(context.Background(), protocol.CommandSetTime, "soon"); !errors.Is(err, protocol.ErrInvalidArgument) {
		t.Fatalf("expected invalid argument, got %v", err)
	}
	if _, _, err := s.ExecuteLine(context.Background(), "readBuffer 0"); !errors.Is(err, protocol.ErrInvalidArgument) {
		t.Fatalf("expected arity error, got %v", err)
	}
	if _, err := s.SetLogLevel(context.Background(), "raw event", 3); !errors.Is(err, protocol.ErrInvalidArgument) {
		t.Fatalf("expected whitespace rejection, got %v", err)
	}
	if lines := tr.lines(); len(lines) != 0 {
		t.Fatalf("nothing must be written for invalid input, got %q", lines)
	}
}

func TestSessionTimeoutThenNextCommandGetsItsOwnReply(t *testing.T) {
	tr := newFakeTransport()
	s := openTestSession(t, tr, nil)

	_, err := s.GetNow(context.Background())
	if !errors.Is(err, ErrResponseTimeout) {
		t.Fatalf("expected timeout, got %v", err)
	}

	// The device answers getNow after the caller gave up.
	tr.frames <- []byte(`{"time":"2024-05-01 10:00:00","epoch":1714557600}`)
	deadline := time.Now().Add(time.Second)
	for len(s.correlator.slot) == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("late reply never reached the mailbox")
		}
		time.Sleep(5 * time.Millisecond)
	}

	tr.reply(protocol.CommandGetStatus, `{"logging":false,"bufferSize":0,"rateHz":1}`)
	status, err := s.GetStatus(context.Background())
	if err != nil {
		t.Fatalf("get status after timeout: %v", err)
	}
	if status.RateHz != 1 {
		t.Fatalf("unexpected status: %+v", status)
	}
}

func TestSessionWriteFailureIsTransportError(t *testing.T) {
	tr := newFakeTransport()
	tr.writeErr = errors.New("not connected")
	s := openTestSession(t, tr, nil)

	_, err := s.Reset(context.Background())
	if !errors.Is(err, ErrTransport) || !errors.Is(err, tr.writeErr) {
		t.Fatalf("expected transport failure, got %v", err)
	}
}

func TestSessionReaderExitReleasesWaiters(t *testing.T) {
	tr := newFakeTransport()
	s := New(nil, nil, tr, Options{ResponseTimeout: 5 * time.Second})
	if err := s.Open(context.Background()); err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	errCh := make(chan error, 1)
	go func() {
		_, err := s.GetStatus(context.Background())
		errCh <- err
	}()
	time.Sleep(20 * time.Millisecond)
	_ = tr.Close()

	select {
	case err := <-errCh:
		if !errors.Is(err, ErrClosed) {
			t.Fatalf("expected ErrClosed, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("waiter not released after link loss")
	}
}

func TestSessionClosedRejectsCommands(t *testing.T) {
	tr := newFakeTransport()
	s := New(nil, nil, tr, Options{})
	if _, err := s.GetStatus(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed before open, got %v", err)
	}

	if err := s.Open(context.Background()); err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := s.GetStatus(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed after close, got %v", err)
	}
}

func TestSessionPublishesTraffic(t *testing.T) {
	b := bus.New(nil)
	t.Cleanup(b.Close)
	sub := b.Subscribe(connectors.TopicCommandOut, connectors.TopicFrameIn)

	tr := newFakeTransport()
	tr.reply(protocol.CommandStartLogging, `{"status":"ok"}`)
	s := openTestSession(t, tr, b)

	if _, err := s.StartLogging(context.Background()); err != nil {
		t.Fatalf("start logging: %v", err)
	}

	var sawCommand, sawFrame bool
	timeout := time.After(2 * time.Second)
	for !sawCommand || !sawFrame {
		select {
		case msg := <-sub:
			switch m := msg.(type) {
			case connectors.CommandOut:
				sawCommand = m.Line == "startLogging"
			case connectors.FrameIn:
				sawFrame = m.Response.Status() == "ok"
			}
		case <-timeout:
			t.Fatalf("missing bus events: command=%v frame=%v", sawCommand, sawFrame)
		}
	}
}

func TestSessionPublishesRawFramesWithDirection(t *testing.T) {
	b := bus.New(nil)
	t.Cleanup(b.Close)
	sub := b.Subscribe(connectors.TopicRawFrameOut, connectors.TopicRawFrameIn)

	tr := newFakeTransport()
	tr.reply(protocol.CommandGetNow, `{"epoch":1,"local":"x"}`)
	s := openTestSession(t, tr, b)

	if _, err := s.GetNow(context.Background()); err != nil {
		t.Fatalf("get now: %v", err)
	}

	var out, in *connectors.RawFrame
	timeout := time.After(2 * time.Second)
	for out == nil || in == nil {
		select {
		case msg := <-sub:
			frame := msg.(connectors.RawFrame)
			if frame.Outbound {
				out = &frame
			} else {
				in = &frame
			}
		case <-timeout:
			t.Fatalf("missing raw frames: out=%v in=%v", out, in)
		}
	}
	if out.Text != "getNow" || in.Text != `{"epoch":1,"local":"x"}` {
		t.Fatalf("unexpected raw frames: out=%+v in=%+v", *out, *in)
	}
}

// stallingBus blocks inbound frame events until released.
type stallingBus struct {
	release chan struct{}
}

func (b *stallingBus) Publish(topic string, _ any) {
	if topic == connectors.TopicFrameIn || topic == connectors.TopicRawFrameIn {
		<-b.release
	}
}

func (b *stallingBus) Subscribe(...string) bus.Subscription { return make(bus.Subscription) }

func (b *stallingBus) Unsubscribe(bus.Subscription, ...string) {}

func (b *stallingBus) Close() {}

func TestSessionReplyNotHeldBySlowObserver(t *testing.T) {
	b := &stallingBus{release: make(chan struct{})}
	tr := newFakeTransport()
	tr.reply(protocol.CommandGetStatus, `{"logging":true,"bufferSize":2,"rateHz":5}`)
	s := openTestSession(t, tr, b)
	t.Cleanup(func() { close(b.release) })

	status, err := s.GetStatus(context.Background())
	if err != nil {
		t.Fatalf("reply must reach the caller while observers stall: %v", err)
	}
	if status.BufferSize != 2 {
		t.Fatalf("unexpected status: %+v", status)
	}
}
