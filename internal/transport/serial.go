package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.bug.st/serial"
)

const (
	defaultSerialReadTimeout = 300 * time.Millisecond
	serialReadBufferSize     = 256
)

// SerialTransport speaks the same line protocol over a UART bridge.
type SerialTransport struct {
	portName string
	baudRate int
	open     func(portName string, mode *serial.Mode) (serial.Port, error)

	mu      sync.Mutex
	port    serial.Port
	closed  bool
	writeMu sync.Mutex

	readMu  sync.Mutex
	readBuf [serialReadBufferSize]byte
	readPos int
	readLen int
}

func NewSerialTransport(portName string, baudRate int) *SerialTransport {
	return &SerialTransport{
		portName: portName,
		baudRate: baudRate,
		open:     serial.Open,
	}
}

func (t *SerialTransport) Name() string {
	return "serial"
}

func (t *SerialTransport) StatusTarget() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return fmt.Sprintf("%s@%d", t.portName, t.baudRate)
}

func (t *SerialTransport) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	logger := transportLogger("serial", "port", t.portName, "baud", t.baudRate)
	if t.port != nil {
		logger.Debug("connect skipped: already connected")
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if t.portName == "" {
		return errors.New("serial port is empty")
	}
	if t.baudRate <= 0 {
		return fmt.Errorf("invalid serial baud rate: %d", t.baudRate)
	}

	port, err := t.open(t.portName, serialMode(t.baudRate))
	if err != nil {
		logger.Warn("open port failed", "error", err)
		return fmt.Errorf("open serial port %q: %w", t.portName, err)
	}
	if err := port.SetReadTimeout(defaultSerialReadTimeout); err != nil {
		_ = port.Close()
		return fmt.Errorf("set serial read timeout: %w", err)
	}
	t.port = port
	t.closed = false

	t.readMu.Lock()
	t.readPos, t.readLen = 0, 0
	t.readMu.Unlock()

	logger.Info("connected")
	return nil
}

// serialMode keeps DTR and RTS low on open: ESP32 dev boards wire them to
// EN and IO0, and toggling them reboots the scale mid-session.
func serialMode(baudRate int) *serial.Mode {
	return &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
		InitialStatusBits: &serial.ModemOutputBits{
			DTR: false,
			RTS: false,
		},
	}
}

func (t *SerialTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	if t.port == nil {
		return nil
	}
	err := t.port.Close()
	t.port = nil
	transportLogger("serial", "port", t.portName).Info("closed")
	return err
}

// ReadFrame returns the next non-empty line sent by the device.
func (t *SerialTransport) ReadFrame(ctx context.Context) ([]byte, error) {
	port, err := t.currentPort()
	if err != nil {
		return nil, err
	}

	t.readMu.Lock()
	defer t.readMu.Unlock()

	line, err := readLine(func() (byte, error) {
		return t.readByte(ctx, port)
	})
	if err != nil {
		return nil, err
	}
	transportLogger("serial").Debug("read frame", "len", len(line))
	return line, nil
}

func (t *SerialTransport) WriteFrame(ctx context.Context, payload []byte) error {
	port, err := t.currentPort()
	if err != nil {
		return err
	}

	line, err := encodeLine(payload)
	if err != nil {
		return err
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if err := writeFull(ctx, port, line); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	transportLogger("serial").Debug("write frame", "payload_len", len(line))
	return nil
}

func (t *SerialTransport) currentPort() (serial.Port, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch {
	case t.closed:
		return nil, ErrClosed
	case t.port == nil:
		return nil, ErrNotConnected
	}
	return t.port, nil
}

// readByte serves from the internal buffer, refilling it from r. A zero-byte
// read is the port's read timeout firing and only triggers a ctx check.
func (t *SerialTransport) readByte(ctx context.Context, r io.Reader) (byte, error) {
	for t.readPos >= t.readLen {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		n, err := r.Read(t.readBuf[:])
		if err != nil {
			return 0, err
		}
		t.readPos, t.readLen = 0, n
	}

	b := t.readBuf[t.readPos]
	t.readPos++
	return b, nil
}

func writeFull(ctx context.Context, w io.Writer, buf []byte) error {
	written := 0
	for written < len(buf) {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := w.Write(buf[written:])
		if err != nil {
			return err
		}
		if n == 0 {
			continue
		}
		written += n
	}
	return nil
}
