package bluetoothutil

import (
	"errors"
	"strings"

	"github.com/godbus/dbus/v5"
)

// BlueZ and D-Bus error names the connectors react to.
const (
	DBusErrNotReady      = "org.bluez.Error.NotReady"
	DBusErrFailed        = "org.bluez.Error.Failed"
	DBusErrInProgress    = "org.bluez.Error.InProgress"
	DBusErrUnknownMethod = "org.freedesktop.DBus.Error.UnknownMethod"
)

// stopScanNoise are backend messages meaning no scan was running.
var stopScanNoise = []string{"cancel", "stopped", "not scanning", "no scan in progress"}

// DBusErrorName returns the D-Bus error name carried by err, wrapped or not.
func DBusErrorName(err error) (string, bool) {
	var ptr *dbus.Error
	if errors.As(err, &ptr) && ptr != nil {
		return ptr.Name, true
	}
	var val dbus.Error
	if errors.As(err, &val) {
		return val.Name, true
	}

	return "", false
}

func IsDBusErrorName(err error, want string) bool {
	name, ok := DBusErrorName(err)
	return ok && name == want
}

// IsBenignStopScanError reports whether a StopScan failure only means there
// was nothing to stop.
func IsBenignStopScanError(err error) bool {
	if err == nil {
		return true
	}
	msg := strings.ToLower(err.Error())
	if name, ok := DBusErrorName(err); ok {
		switch name {
		case DBusErrNotReady:
			return true
		case DBusErrFailed:
			if strings.Contains(msg, "no discovery started") {
				return true
			}
		}
	}

	for _, noise := range stopScanNoise {
		if strings.Contains(msg, noise) {
			return true
		}
	}

	return false
}

func IsScanAlreadyInProgressError(err error) bool {
	if err == nil {
		return false
	}

	return IsDBusErrorName(err, DBusErrInProgress) || strings.Contains(strings.ToLower(err.Error()), "already in progress")
}
