package transport

import (
	"context"
	"errors"
	"log/slog"
)

var (
	ErrNotConnected = errors.New("transport is not connected")
	ErrClosed       = errors.New("transport is closed")
)

// Transport moves whole frames between the client and the device. Inbound
// frames arrive in notification order; one frame is one device reply or
// diagnostic line.
type Transport interface {
	Name() string
	Connect(ctx context.Context) error
	Close() error
	ReadFrame(ctx context.Context) ([]byte, error)
	WriteFrame(ctx context.Context, payload []byte) error
}

type StatusTargetResolver interface {
	StatusTarget() string
}

func transportLogger(name string, attrs ...any) *slog.Logger {
	logger := slog.With("component", "transport", "transport", name)
	if len(attrs) == 0 {
		return logger
	}

	return logger.With(attrs...)
}
