package platform

import (
	"errors"
	"strings"
)

// ErrDeviceBusy means another process holds the lock for the same device.
var ErrDeviceBusy = errors.New("device is in use by another process")

// ErrDeviceLockUnsupported indicates the current platform has no lock backend implementation.
var ErrDeviceLockUnsupported = errors.New("device lock unsupported")

// DeviceLock represents an acquired per-device lock.
type DeviceLock interface {
	Release() error
}

// AcquireDeviceLock takes an exclusive, non-blocking lock named after the
// device target. dir holds the lock files; empty means the per-user runtime
// directory. The lock is released by the OS when the process dies.
func AcquireDeviceLock(dir, target string) (DeviceLock, error) {
	return acquireDeviceLock(strings.TrimSpace(dir), normalizeLockComponent(target, "device"))
}

func normalizeLockComponent(raw, fallback string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback
	}

	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
		case r == '-' || r == '_' || r == '.':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}

	normalized := strings.Trim(b.String(), "_-.")
	if normalized == "" {
		return fallback
	}

	return normalized
}
