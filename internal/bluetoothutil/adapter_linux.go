//go:build linux

package bluetoothutil

import "tinygo.org/x/bluetooth"

// resolveAdapter maps a BlueZ adapter id such as "hci1" to its adapter.
func resolveAdapter(id string) (*bluetooth.Adapter, error) {
	if id == "" {
		return bluetooth.DefaultAdapter, nil
	}

	return bluetooth.NewAdapter(id), nil
}
