package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/skobkin/scalectl/internal/bluetoothutil"
	"tinygo.org/x/bluetooth"
)

const (
	defaultBluetoothFrameQueueSize = 128
	maxBluetoothWriteLen           = 512
	defaultBluetoothDiscoverWait   = 12 * time.Second
	defaultBluetoothSubscribeWait  = 8 * time.Second
)

type bluetoothConnState struct {
	device bluetooth.Device
	rx     bluetooth.DeviceCharacteristic
	tx     *bluetooth.DeviceCharacteristic

	frameCh chan []byte
	closed  chan struct{}

	closeOnce sync.Once
	dropped   atomic.Uint64
}

// BluetoothTransport talks to the scale over the Nordic UART Service. When
// no address is configured the device is discovered by advertised name.
type BluetoothTransport struct {
	address    string
	adapterID  string
	nameFilter string

	mu      sync.RWMutex
	conn    *bluetoothConnState
	closed  bool
	target  string
	writeMu sync.Mutex
}

func NewBluetoothTransport(address, adapterID, nameFilter string) *BluetoothTransport {
	return &BluetoothTransport{
		address:    strings.TrimSpace(address),
		adapterID:  strings.TrimSpace(adapterID),
		nameFilter: strings.TrimSpace(nameFilter),
	}
}

func (t *BluetoothTransport) Name() string {
	return "bluetooth"
}

func (t *BluetoothTransport) StatusTarget() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.target != "" {
		return t.target
	}
	if t.address != "" {
		return t.address
	}
	return "name~" + t.nameFilter
}

func (t *BluetoothTransport) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	logger := transportLogger("bluetooth", "address", t.address, "name", t.nameFilter, "adapter", t.adapterID)

	if t.conn != nil {
		logger.Debug("connect skipped: already connected")
		return nil
	}
	if err := ctx.Err(); err != nil {
		logger.Debug("connect canceled", "error", err)
		return err
	}
	if t.address == "" && t.nameFilter == "" {
		logger.Warn("connect failed: neither address nor name is set")
		return errors.New("bluetooth address and device name are both empty")
	}

	logger.Info("connecting")
	adapter, err := bluetoothutil.OpenAdapter(t.adapterID)
	if err != nil {
		logger.Warn("open adapter failed", "error", err)
		return err
	}
	if err := ctx.Err(); err != nil {
		logger.Debug("connect canceled after adapter enable", "error", err)
		return err
	}

	addr, label, err := t.resolveTarget(ctx, adapter)
	if err != nil {
		logger.Warn("resolve target failed", "error", err)
		return err
	}
	logger = logger.With("target", label)

	device, err := connectBluetoothDevice(ctx, adapter, addr, logger)
	if err != nil {
		logger.Warn("connect device failed", "error", err)
		return fmt.Errorf("connect bluetooth device %q: %w", label, err)
	}

	state, err := openUARTLink(ctx, device, logger)
	if err != nil {
		_ = device.Disconnect()
		logger.Warn("uart link setup failed", "error", err)
		return err
	}
	if err := ctx.Err(); err != nil {
		state.markClosed()
		_ = state.tx.EnableNotifications(nil)
		_ = device.Disconnect()
		logger.Debug("connect canceled after setup", "error", err)
		return err
	}

	t.conn = state
	t.closed = false
	t.target = label
	logger.Info("connected")
	return nil
}

func (t *BluetoothTransport) resolveTarget(ctx context.Context, adapter *bluetooth.Adapter) (bluetooth.Address, string, error) {
	if t.address != "" {
		addr, err := parseBluetoothAddress(t.address)
		if err != nil {
			return bluetooth.Address{}, "", err
		}
		return addr, t.address, nil
	}

	scanCtx, cancel := withDiscoverDeadline(ctx)
	defer cancel()

	found, err := bluetoothutil.Discover(scanCtx, adapter, t.nameFilter)
	if err != nil {
		return bluetooth.Address{}, "", err
	}
	transportLogger("bluetooth").Info("device discovered", "name", found.Name, "address", found.Address, "rssi", found.RSSI)

	return found.BluetoothAddress(), fmt.Sprintf("%s [%s]", found.Name, found.Address), nil
}

// connectBluetoothDevice dials addr, scanning for it once when BlueZ does
// not know the address yet.
func connectBluetoothDevice(ctx context.Context, adapter *bluetooth.Adapter, addr bluetooth.Address, logger *slog.Logger) (bluetooth.Device, error) {
	device, err := adapter.Connect(addr, bluetooth.ConnectionParams{})
	if err == nil || !shouldRetryBluetoothConnectWithDiscovery(err) {
		return device, err
	}

	logger.Info("device unknown to adapter, discovering before retry", "error", err)
	scanCtx, cancel := withDiscoverDeadline(ctx)
	defer cancel()
	if _, discoverErr := bluetoothutil.DiscoverAddress(scanCtx, adapter, addr); discoverErr != nil {
		return bluetooth.Device{}, errors.Join(err, fmt.Errorf("discovery failed: %w", discoverErr))
	}

	return adapter.Connect(addr, bluetooth.ConnectionParams{})
}

// openUARTLink resolves the UART characteristics on a connected device and
// starts queueing TX notifications. The caller owns the device and
// disconnects it on error.
func openUARTLink(ctx context.Context, device bluetooth.Device, logger *slog.Logger) (*bluetoothConnState, error) {
	services, err := device.DiscoverServices([]bluetooth.UUID{bluetoothutil.UARTServiceUUID()})
	switch {
	case err != nil:
		return nil, fmt.Errorf("discover uart service: %w", err)
	case len(services) == 0:
		return nil, errors.New("uart BLE service is not available")
	}

	chars, err := services[0].DiscoverCharacteristics([]bluetooth.UUID{
		bluetoothutil.UARTRXUUID(),
		bluetoothutil.UARTTXUUID(),
	})
	switch {
	case err != nil:
		return nil, fmt.Errorf("discover uart characteristics: %w", err)
	case len(chars) != 2:
		return nil, fmt.Errorf("expected rx and tx characteristics, got %d", len(chars))
	}

	state := newBluetoothConnState(defaultBluetoothFrameQueueSize)
	state.device = device
	state.rx = chars[0]
	state.tx = &chars[1]

	logger.Debug("subscribing to tx notifications")
	if err := enableBluetoothNotificationsWithTimeout(ctx, device, *state.tx, state.enqueueFrame, defaultBluetoothSubscribeWait); err != nil {
		return nil, fmt.Errorf("subscribe to TX notifications: %w", err)
	}

	return state, nil
}

func (t *BluetoothTransport) Close() error {
	t.mu.Lock()
	logger := transportLogger("bluetooth", "target", t.target)
	state := t.conn
	t.conn = nil
	t.closed = true
	t.mu.Unlock()
	if state == nil {
		logger.Debug("close skipped: not connected")
		return nil
	}

	logger.Info("closing connection")
	state.markClosed()

	var closeErr error
	if state.tx != nil {
		if err := state.tx.EnableNotifications(nil); err != nil {
			closeErr = errors.Join(closeErr, fmt.Errorf("disable TX notifications: %w", err))
			logger.Warn("disable notifications failed", "error", err)
		}
	}
	if err := state.device.Disconnect(); err != nil {
		closeErr = errors.Join(closeErr, fmt.Errorf("disconnect bluetooth device: %w", err))
		logger.Warn("disconnect failed", "error", err)
	}

	if closeErr != nil {
		return closeErr
	}
	logger.Info("closed")

	return nil
}

func (t *BluetoothTransport) ReadFrame(ctx context.Context) ([]byte, error) {
	state, err := t.currentState()
	if err != nil {
		return nil, err
	}

	return state.readFrame(ctx)
}

func (t *BluetoothTransport) WriteFrame(ctx context.Context, payload []byte) error {
	logger := transportLogger("bluetooth")
	if err := ctx.Err(); err != nil {
		return err
	}
	line, err := encodeLine(payload)
	if err != nil {
		return err
	}
	if len(line) > maxBluetoothWriteLen {
		logger.Warn("write frame failed: payload too large", "payload_len", len(line))
		return fmt.Errorf("payload too large: %d", len(line))
	}

	state, err := t.currentState()
	if err != nil {
		return err
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-state.closed:
		return ErrClosed
	default:
	}

	written, err := state.rx.WriteWithoutResponse(line)
	if err != nil {
		logger.Warn("write frame failed", "payload_len", len(line), "error", err)
		return fmt.Errorf("write to RX: %w", err)
	}
	if written != len(line) {
		logger.Warn("write frame failed: short write", "payload_len", len(line), "written", written)
		return fmt.Errorf("short write to RX: wrote %d of %d", written, len(line))
	}
	logger.Debug("write frame", "payload_len", len(line))

	return nil
}

func (t *BluetoothTransport) currentState() (*bluetoothConnState, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	switch {
	case t.closed:
		return nil, ErrClosed
	case t.conn == nil:
		return nil, ErrNotConnected
	}
	return t.conn, nil
}

func newBluetoothConnState(queueSize int) *bluetoothConnState {
	return &bluetoothConnState{
		frameCh: make(chan []byte, queueSize),
		closed:  make(chan struct{}),
	}
}

// enqueueFrame runs on the BLE stack's notification callback and must never
// block: when the queue is full the oldest frame is dropped.
func (s *bluetoothConnState) enqueueFrame(payload []byte) {
	frame := append([]byte(nil), payload...)

	select {
	case <-s.closed:
		return
	default:
	}

	select {
	case s.frameCh <- frame:
	default:
		dropped := s.dropped.Add(1)
		transportLogger("bluetooth").Warn("frame queue full, dropping oldest frame", "capacity", cap(s.frameCh), "dropped_total", dropped)
		select {
		case <-s.frameCh:
		default:
		}
		select {
		case s.frameCh <- frame:
		default:
		}
	}
}

func (s *bluetoothConnState) readFrame(ctx context.Context) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case payload := <-s.frameCh:
		return payload, nil
	case <-s.closed:
		return nil, ErrClosed
	}
}

func (s *bluetoothConnState) markClosed() {
	s.closeOnce.Do(func() {
		close(s.closed)
	})
}

func parseBluetoothAddress(raw string) (bluetooth.Address, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return bluetooth.Address{}, errors.New("bluetooth address is empty")
	}

	mac, err := bluetooth.ParseMAC(strings.ToUpper(trimmed))
	if err != nil {
		return bluetooth.Address{}, fmt.Errorf("invalid bluetooth address %q: %w", trimmed, err)
	}

	return bluetooth.Address{MACAddress: bluetooth.MACAddress{MAC: mac}}, nil
}

func shouldRetryBluetoothConnectWithDiscovery(err error) bool {
	if err == nil || runtime.GOOS != "linux" {
		return false
	}
	msg := strings.ToLower(err.Error())
	if bluetoothutil.IsDBusErrorName(err, bluetoothutil.DBusErrUnknownMethod) {
		return strings.Contains(msg, "org.freedesktop.dbus.properties") &&
			strings.Contains(msg, "method \"get\"")
	}

	return strings.Contains(msg, "org.freedesktop.dbus.properties") &&
		strings.Contains(msg, "method \"get\"") &&
		strings.Contains(msg, "doesn't exist")
}

// withDiscoverDeadline bounds a scan that the caller left unbounded.
func withDiscoverDeadline(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}

	return context.WithTimeout(ctx, defaultBluetoothDiscoverWait)
}

func enableBluetoothNotificationsWithTimeout(
	ctx context.Context,
	device bluetooth.Device,
	char bluetooth.DeviceCharacteristic,
	callback func([]byte),
	wait time.Duration,
) error {
	if wait <= 0 {
		wait = defaultBluetoothSubscribeWait
	}

	done := make(chan error, 1)
	go func() {
		done <- char.EnableNotifications(callback)
	}()

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		_ = device.Disconnect()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
		}
		return ctx.Err()
	case <-timer.C:
		_ = device.Disconnect()
		select {
		case err := <-done:
			if err != nil {
				return fmt.Errorf("timed out after %s (abort returned: %w)", wait, err)
			}
		case <-time.After(2 * time.Second):
		}
		return fmt.Errorf("timed out after %s", wait)
	}
}
