package app

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/mod/semver"
)

var (
	ErrFirmwareVersionInvalid = errors.New("firmware version is not semver")
	ErrFirmwareTooOld         = errors.New("firmware is older than supported")
)

// CheckFirmwareVersion compares a getVersion reply with MinFirmwareVersion.
// It returns the normalized version even when the check fails.
func CheckFirmwareVersion(raw string) (string, error) {
	version := normalizeSemver(strings.Trim(strings.TrimSpace(raw), `"`))
	if !semver.IsValid(version) {
		return strings.TrimSpace(raw), fmt.Errorf("%w: %q", ErrFirmwareVersionInvalid, strings.TrimSpace(raw))
	}
	if semver.Compare(version, normalizeSemver(MinFirmwareVersion)) < 0 {
		return version, fmt.Errorf("%w: %s < %s", ErrFirmwareTooOld, version, normalizeSemver(MinFirmwareVersion))
	}

	return version, nil
}

func normalizeSemver(version string) string {
	trimmed := strings.TrimSpace(version)
	if trimmed == "" {
		return ""
	}
	if !strings.HasPrefix(trimmed, "v") {
		return "v" + trimmed
	}

	return trimmed
}
