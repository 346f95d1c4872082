//go:build !linux

package bluetoothutil

import (
	"fmt"
	"runtime"

	"tinygo.org/x/bluetooth"
)

// tinygo.org/x/bluetooth only exposes NewAdapter on Linux.
func resolveAdapter(id string) (*bluetooth.Adapter, error) {
	if id != "" {
		return nil, fmt.Errorf("%w on %s: %q", ErrAdapterSelectionUnsupported, runtime.GOOS, id)
	}

	return bluetooth.DefaultAdapter, nil
}
