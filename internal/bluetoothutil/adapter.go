package bluetoothutil

import (
	"errors"
	"fmt"
	"runtime"
	"strings"

	"tinygo.org/x/bluetooth"
)

// ErrAdapterSelectionUnsupported is returned when a specific adapter id is
// requested on a platform where only the default adapter is reachable.
var ErrAdapterSelectionUnsupported = errors.New("bluetooth adapter selection unsupported")

// OpenAdapter resolves the adapter by id ("" or "hci0" style) and enables it.
func OpenAdapter(adapterID string) (*bluetooth.Adapter, error) {
	adapter, err := resolveAdapter(strings.TrimSpace(adapterID))
	if err != nil {
		return nil, err
	}
	if err := adapter.Enable(); err != nil && !isAlreadyEnabledError(err) {
		return nil, fmt.Errorf("enable bluetooth adapter: %w", err)
	}

	return adapter, nil
}

// isAlreadyEnabledError matches the Windows backend reporting
// RoInitialize(S_FALSE) as "Incorrect function.": COM is already set up.
func isAlreadyEnabledError(err error) bool {
	if err == nil || runtime.GOOS != "windows" {
		return false
	}

	return strings.TrimSuffix(strings.ToLower(strings.TrimSpace(err.Error())), ".") == "incorrect function"
}
