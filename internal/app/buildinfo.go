package app

import (
	"fmt"
	"runtime/debug"
	"strings"
	"time"
)

var (
	// Version is filled by ldflags in release builds.
	Version = "dev"
	// BuildDate is filled by ldflags in release builds.
	BuildDate = ""
)

var readBuildInfo = debug.ReadBuildInfo

// BuildVersion prefers the ldflags value, then the module version recorded
// by `go install`, then "dev".
func BuildVersion() string {
	version := strings.TrimSpace(Version)
	if version != "" && version != "dev" {
		return version
	}
	if info, ok := readBuildInfo(); ok {
		if mod := strings.TrimSpace(info.Main.Version); mod != "" && mod != "(devel)" {
			return strings.TrimPrefix(mod, "v")
		}
	}

	return "dev"
}

// BuildDateYMD returns the ldflags build date, or the commit date stamped by
// the go tool, as YYYY-MM-DD. Unparseable values are returned as is.
func BuildDateYMD() string {
	raw := strings.TrimSpace(BuildDate)
	if raw == "" {
		raw = vcsSetting("vcs.time")
	}
	if raw == "" {
		return ""
	}
	if parsed, err := time.Parse(time.RFC3339, raw); err == nil {
		return parsed.Format(time.DateOnly)
	}
	if len(raw) >= len(time.DateOnly) {
		if _, err := time.Parse(time.DateOnly, raw[:len(time.DateOnly)]); err == nil {
			return raw[:len(time.DateOnly)]
		}
	}

	return raw
}

// BuildRevision is the short VCS commit of a source build, with a "+dirty"
// suffix for uncommitted trees.
func BuildRevision() string {
	rev := vcsSetting("vcs.revision")
	if len(rev) > 12 {
		rev = rev[:12]
	}
	if rev != "" && vcsSetting("vcs.modified") == "true" {
		rev += "+dirty"
	}

	return rev
}

func vcsSetting(key string) string {
	info, ok := readBuildInfo()
	if !ok {
		return ""
	}
	for _, setting := range info.Settings {
		if setting.Key == key {
			return strings.TrimSpace(setting.Value)
		}
	}

	return ""
}

// VersionLine is the one-line banner printed by `scalectl version`. Dev
// builds carry their commit so bug reports can be traced.
func VersionLine() string {
	version := BuildVersion()
	line := fmt.Sprintf("%s %s", Name, version)
	if rev := BuildRevision(); version == "dev" && rev != "" {
		line += "-" + rev
	}
	if buildDate := BuildDateYMD(); buildDate != "" {
		line += fmt.Sprintf(" (%s)", buildDate)
	}

	return line
}
