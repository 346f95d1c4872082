//go:build windows

package platform

import (
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sys/windows"
)

// mutexDeviceLock owns a named kernel mutex. The name is freed when the last
// handle goes away, so a crashed process never leaves the device locked.
type mutexDeviceLock struct {
	name   string
	handle windows.Handle
	once   sync.Once
}

// dir is unused: the lock lives in the object namespace, not on disk.
func acquireDeviceLock(_ string, device string) (DeviceLock, error) {
	owner, err := processOwnerSID()
	if err != nil {
		return nil, fmt.Errorf("device lock for %s: %w", device, err)
	}

	name := deviceMutexName(device, owner)
	utf16Name, err := windows.UTF16PtrFromString(name)
	if err != nil {
		return nil, fmt.Errorf("device lock name %q: %w", name, err)
	}

	handle, err := windows.CreateMutex(nil, false, utf16Name)
	switch {
	case err == nil:
		return &mutexDeviceLock{name: name, handle: handle}, nil
	case errors.Is(err, windows.ERROR_ALREADY_EXISTS):
		closeMutexHandle(handle)
		return nil, ErrDeviceBusy
	default:
		closeMutexHandle(handle)
		return nil, fmt.Errorf("open device mutex %s: %w", name, err)
	}
}

func (l *mutexDeviceLock) Release() error {
	var err error
	l.once.Do(func() {
		if cerr := windows.CloseHandle(l.handle); cerr != nil {
			err = fmt.Errorf("release device mutex %s: %w", l.name, cerr)
		}
	})

	return err
}

func closeMutexHandle(h windows.Handle) {
	if h != 0 {
		_ = windows.CloseHandle(h)
	}
}

// processOwnerSID scopes the mutex to one user; Local\ is shared by the
// whole logon session.
func processOwnerSID() (string, error) {
	owner, err := windows.GetCurrentProcessToken().GetTokenUser()
	if err != nil {
		return "", fmt.Errorf("query process owner: %w", err)
	}

	return owner.User.Sid.String(), nil
}

func deviceMutexName(device, sid string) string {
	return fmt.Sprintf(`Local\scalectl-device-%s-%s`, device, normalizeLockComponent(sid, "sid"))
}
