package app

import (
	"fmt"
	"strings"

	"github.com/skobkin/scalectl/internal/config"
	"github.com/skobkin/scalectl/internal/connectors"
	"github.com/skobkin/scalectl/internal/transport"
)

func NewTransport(cfg config.ConnectionConfig) (transport.Transport, error) {
	switch cfg.Connector {
	case config.ConnectorSerial:
		return transport.NewSerialTransport(cfg.SerialPort, cfg.SerialBaud), nil
	case config.ConnectorBluetooth:
		return transport.NewBluetoothTransport(cfg.BluetoothAddress, cfg.BluetoothAdapter, cfg.DeviceName), nil
	default:
		return nil, fmt.Errorf("unknown connector: %q", cfg.Connector)
	}
}

func TransportNameFromConnector(connector config.ConnectorType) string {
	switch connector {
	case config.ConnectorSerial:
		return "serial"
	case config.ConnectorBluetooth:
		return "bluetooth"
	default:
		if value := strings.TrimSpace(string(connector)); value != "" {
			return value
		}
		return "unknown"
	}
}

// ConnectionTarget describes what the connector will try to reach, before
// any discovery has happened.
func ConnectionTarget(cfg config.ConnectionConfig) string {
	switch cfg.Connector {
	case config.ConnectorSerial:
		return strings.TrimSpace(cfg.SerialPort)
	case config.ConnectorBluetooth:
		if addr := strings.TrimSpace(cfg.BluetoothAddress); addr != "" {
			return addr
		}
		if name := strings.TrimSpace(cfg.DeviceName); name != "" {
			return "name~" + name
		}
		return ""
	default:
		return ""
	}
}

func ConnectionStatusFromConfig(cfg config.ConnectionConfig) connectors.ConnectionStatus {
	return connectors.ConnectionStatus{
		State:         connectors.ConnectionStateDisconnected,
		TransportName: TransportNameFromConnector(cfg.Connector),
		Target:        ConnectionTarget(cfg),
	}
}
