//go:build windows

package platform

import (
	"errors"
	"testing"
)

func TestDeviceMutexName(t *testing.T) {
	got := deviceMutexName("AA_BB", "S-1-5-21-1")
	if got != `Local\scalectl-device-AA_BB-S-1-5-21-1` {
		t.Fatalf("unexpected mutex name: %q", got)
	}
}

func TestMutexDeviceLockIsExclusive(t *testing.T) {
	first, err := AcquireDeviceLock("", "scalectl-test-AA:BB")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if _, err := AcquireDeviceLock("", "scalectl-test-AA:BB"); !errors.Is(err, ErrDeviceBusy) {
		t.Fatalf("expected busy, got %v", err)
	}
	if err := first.Release(); err != nil {
		t.Fatalf("release: %v", err)
	}
	if err := first.Release(); err != nil {
		t.Fatalf("second release must be a no-op: %v", err)
	}

	again, err := AcquireDeviceLock("", "scalectl-test-AA:BB")
	if err != nil {
		t.Fatalf("lock must be free after release: %v", err)
	}
	_ = again.Release()
}
