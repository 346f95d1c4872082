package bluetoothutil

import (
	"fmt"
	"strings"

	"tinygo.org/x/bluetooth"
)

// Nordic UART Service. The scale firmware receives command lines on RX and
// pushes every reply as a TX notification.
var (
	uartServiceUUID = mustParseUUID("6e400001-b5a3-f393-e0a9-e50e24dcca9e")
	uartRXUUID      = mustParseUUID("6e400002-b5a3-f393-e0a9-e50e24dcca9e")
	uartTXUUID      = mustParseUUID("6e400003-b5a3-f393-e0a9-e50e24dcca9e")
)

func mustParseUUID(raw string) bluetooth.UUID {
	uuid, err := bluetooth.ParseUUID(strings.TrimSpace(raw))
	if err != nil {
		panic(fmt.Sprintf("invalid bluetooth UUID %q: %v", raw, err))
	}

	return uuid
}

func UARTServiceUUID() bluetooth.UUID {
	return uartServiceUUID
}

// UARTRXUUID is the characteristic the client writes commands to.
func UARTRXUUID() bluetooth.UUID {
	return uartRXUUID
}

// UARTTXUUID is the characteristic the device notifies replies on.
func UARTTXUUID() bluetooth.UUID {
	return uartTXUUID
}
