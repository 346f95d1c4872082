//go:build unix && !windows

package platform

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

const lockDirName = "scalectl"

// unixDeviceLock is an flock on <dir>/<name>.lock. The file holds the PID
// of the owner so a contending process can say who has the device.
type unixDeviceLock struct {
	file *os.File
}

func acquireDeviceLock(dir, name string) (DeviceLock, error) {
	lockPath, err := unixDeviceLockPath(dir, name)
	if err != nil {
		return nil, err
	}

	// #nosec G304 -- lockPath is built from the app config dir or process-owned runtime/temp directories.
	file, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open device lock file: %w", err)
	}

	if err := unix.Flock(int(file.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		holder := readLockHolder(file)
		_ = file.Close()
		if errors.Is(err, unix.EWOULDBLOCK) || errors.Is(err, unix.EAGAIN) {
			if holder != "" {
				return nil, fmt.Errorf("%w (pid %s)", ErrDeviceBusy, holder)
			}
			return nil, ErrDeviceBusy
		}

		return nil, fmt.Errorf("flock %s: %w", lockPath, err)
	}

	if err := file.Truncate(0); err == nil {
		_, _ = file.WriteAt([]byte(strconv.Itoa(os.Getpid())+"\n"), 0)
	}

	return &unixDeviceLock{file: file}, nil
}

// Release drops the flock. The file stays so the path is stable across runs.
func (l *unixDeviceLock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	file := l.file
	l.file = nil

	_ = file.Truncate(0)
	unlockErr := unix.Flock(int(file.Fd()), unix.LOCK_UN)
	if err := file.Close(); err != nil {
		return fmt.Errorf("close device lock file: %w", err)
	}
	if unlockErr != nil && !errors.Is(unlockErr, unix.EBADF) {
		return fmt.Errorf("unlock device lock: %w", unlockErr)
	}

	return nil
}

func readLockHolder(file *os.File) string {
	raw, err := io.ReadAll(io.LimitReader(file, 32))
	if err != nil {
		return ""
	}
	pid := strings.TrimSpace(string(raw))
	if _, err := strconv.Atoi(pid); err != nil {
		return ""
	}

	return pid
}

// unixDeviceLockPath falls back to $XDG_RUNTIME_DIR, then a per-user temp dir.
func unixDeviceLockPath(dir, name string) (string, error) {
	if dir == "" {
		dir = filepath.Join(os.TempDir(), lockDirName+"-"+strconv.Itoa(os.Getuid()))
		if runtimeDir := strings.TrimSpace(os.Getenv("XDG_RUNTIME_DIR")); runtimeDir != "" {
			dir = filepath.Join(runtimeDir, lockDirName)
		}
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("create device lock dir: %w", err)
	}

	return filepath.Join(dir, name+".lock"), nil
}
