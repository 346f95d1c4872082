package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/skobkin/scalectl/internal/bus"
	"github.com/skobkin/scalectl/internal/connectors"
	"github.com/skobkin/scalectl/internal/protocol"
	"github.com/skobkin/scalectl/internal/transport"
)

const defaultWriteTimeout = 8 * time.Second

type Options struct {
	ResponseTimeout time.Duration
	WriteTimeout    time.Duration
}

// Session owns one transport connection: a reader goroutine feeds decoded
// notifications to the bus and the correlator, commands go out through
// Execute.
type Session struct {
	logger    *slog.Logger
	bus       bus.MessageBus
	transport transport.Transport
	opts      Options

	mu         sync.Mutex
	correlator *Correlator
	cancel     context.CancelFunc
	readerDone chan struct{}
}

func New(logger *slog.Logger, b bus.MessageBus, tr transport.Transport, opts Options) *Session {
	if logger == nil {
		logger = slog.Default().With("component", "session")
	}
	if opts.ResponseTimeout <= 0 {
		opts.ResponseTimeout = DefaultResponseTimeout
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = defaultWriteTimeout
	}

	return &Session{
		logger:    logger,
		bus:       b,
		transport: tr,
		opts:      opts,
	}
}

func (s *Session) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.correlator != nil {
		return nil
	}

	s.publishConnStatus(connectors.ConnectionStateConnecting, nil)
	if err := s.transport.Connect(ctx); err != nil {
		s.publishConnStatus(connectors.ConnectionStateDisconnected, err)
		s.logger.Error("transport connect failed", "transport", s.transport.Name(), "error", err)
		return transportError(fmt.Errorf("connect %s: %w", s.transport.Name(), err))
	}

	corr := NewCorrelator(s.logger.With("component", "correlator"))
	readerCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.correlator = corr
	s.cancel = cancel
	s.readerDone = done

	go s.runReader(readerCtx, corr, done)
	s.publishConnStatus(connectors.ConnectionStateConnected, nil)

	return nil
}

func (s *Session) Close() error {
	s.mu.Lock()
	corr, cancel, done := s.correlator, s.cancel, s.readerDone
	s.correlator, s.cancel, s.readerDone = nil, nil, nil
	s.mu.Unlock()
	if corr == nil {
		return nil
	}

	cancel()
	corr.Close()
	err := s.transport.Close()
	<-done
	s.publishConnStatus(connectors.ConnectionStateDisconnected, nil)
	if err != nil {
		return fmt.Errorf("close %s: %w", s.transport.Name(), err)
	}

	return nil
}

// Execute encodes cmd, writes it and waits for the next notification.
// Argument errors are returned before anything touches the transport.
func (s *Session) Execute(ctx context.Context, cmd protocol.Command, args ...any) (protocol.Response, error) {
	payload, err := protocol.Encode(cmd, args...)
	if err != nil {
		return protocol.Response{}, err
	}

	return s.issue(ctx, cmd, payload)
}

// ExecuteLine is Execute for a free-form operator line such as
// "readBuffer 0 5".
func (s *Session) ExecuteLine(ctx context.Context, line string) (protocol.Command, protocol.Response, error) {
	cmd, payload, err := protocol.EncodeLine(line)
	if err != nil {
		return cmd, protocol.Response{}, err
	}
	resp, err := s.issue(ctx, cmd, payload)

	return cmd, resp, err
}

func (s *Session) issue(ctx context.Context, cmd protocol.Command, payload []byte) (protocol.Response, error) {
	corr, err := s.currentCorrelator()
	if err != nil {
		return protocol.Response{}, err
	}

	line := strings.TrimRight(string(payload), "\n")
	resp, err := corr.Issue(ctx, cmd, func(ctx context.Context) error {
		s.publish(connectors.TopicCommandOut, connectors.CommandOut{Command: cmd, Line: line, SentAt: time.Now()})
		s.publish(connectors.TopicRawFrameOut, connectors.RawFrame{Text: line, Len: len(payload), Outbound: true})

		writeCtx, cancel := context.WithTimeout(ctx, s.opts.WriteTimeout)
		defer cancel()
		if err := s.transport.WriteFrame(writeCtx, payload); err != nil {
			s.logger.Warn("command write failed", "command", cmd, "error", err)
			return err
		}
		return nil
	}, s.opts.ResponseTimeout)
	if err != nil {
		return protocol.Response{}, err
	}
	s.logger.Debug("command answered", "command", cmd, "valid", resp.Valid(), "len", len(resp.Raw))

	return resp, nil
}

func (s *Session) currentCorrelator() (*Correlator, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.correlator == nil {
		return nil, ErrClosed
	}
	return s.correlator, nil
}

func (s *Session) runReader(ctx context.Context, corr *Correlator, done chan<- struct{}) {
	defer close(done)

	for {
		payload, err := s.transport.ReadFrame(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return
			}
			s.logger.Warn("transport read failed", "transport", s.transport.Name(), "error", err)
			corr.Close()
			s.publishConnStatus(connectors.ConnectionStateDisconnected, err)
			return
		}

		resp := protocol.Decode(payload)
		if !resp.Valid() {
			s.logger.Debug("non-structured notification", "raw", resp.Raw)
		}
		// The mailbox comes first so a slow subscriber cannot hold up a waiter.
		corr.Deliver(resp)
		s.publish(connectors.TopicRawFrameIn, connectors.RawFrame{Text: string(payload), Len: len(payload)})
		s.publish(connectors.TopicFrameIn, connectors.FrameIn{Response: resp, ReceivedAt: time.Now()})
	}
}

func (s *Session) publishConnStatus(state connectors.ConnectionState, err error) {
	status := connectors.ConnectionStatus{
		State:         state,
		TransportName: s.transport.Name(),
		Timestamp:     time.Now(),
	}
	if resolver, ok := s.transport.(transport.StatusTargetResolver); ok {
		status.Target = resolver.StatusTarget()
	}
	if err != nil {
		status.Err = err.Error()
	}
	s.publish(connectors.TopicConnStatus, status)
}

func (s *Session) publish(topic string, msg any) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(topic, msg)
}
