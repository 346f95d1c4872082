package connectors

import (
	"time"

	"github.com/skobkin/scalectl/internal/protocol"
)

// ConnectionState describes the session lifecycle state.
type ConnectionState string

const (
	ConnectionStateDisconnected ConnectionState = "disconnected"
	ConnectionStateConnecting   ConnectionState = "connecting"
	ConnectionStateConnected    ConnectionState = "connected"
)

// ConnectionStatus is a bus event snapshot of current connector status.
type ConnectionStatus struct {
	State         ConnectionState
	Err           string
	TransportName string
	Target        string
	Timestamp     time.Time
}

// RawFrame carries frame diagnostics for debug/log views.
type RawFrame struct {
	Text     string
	Len      int
	Outbound bool
}

// FrameIn is one decoded inbound notification.
type FrameIn struct {
	Response   protocol.Response
	ReceivedAt time.Time
}

// CommandOut is one command line written to the device.
type CommandOut struct {
	Command protocol.Command
	Line    string
	SentAt  time.Time
}
