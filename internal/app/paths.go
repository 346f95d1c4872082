package app

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Paths stores resolved runtime file locations for config, logs and fetched records.
type Paths struct {
	RootDir     string
	ConfigFile  string
	LogFile     string
	RecordsFile string
}

// altConfigFilenames are picked up, in order, when ConfigFilename is absent.
var altConfigFilenames = []string{"config.yaml", "config.yml", "config.toml"}

// ResolvePaths lays out scalectl files under the user config dir, creating it.
func ResolvePaths() (Paths, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return Paths{}, fmt.Errorf("resolve config dir: %w", err)
	}
	root := filepath.Join(base, Name)
	if err := os.MkdirAll(root, 0o750); err != nil {
		return Paths{}, fmt.Errorf("create app config dir: %w", err)
	}

	paths := PathsIn(root)
	if fileExists(paths.ConfigFile) {
		return paths, nil
	}
	for _, name := range altConfigFilenames {
		if alt := filepath.Join(root, name); fileExists(alt) {
			paths.ConfigFile = alt
			break
		}
	}

	return paths, nil
}

// PathsIn places every file directly in root.
func PathsIn(root string) Paths {
	return Paths{
		RootDir:     root,
		ConfigFile:  filepath.Join(root, ConfigFilename),
		LogFile:     filepath.Join(root, LogFilename),
		RecordsFile: filepath.Join(root, RecordsFilename),
	}
}

// WithRecordsFile swaps in a configured records log; blank keeps the default.
func (p Paths) WithRecordsFile(path string) Paths {
	if path = strings.TrimSpace(path); path != "" {
		p.RecordsFile = path
	}

	return p
}

// LockDir holds the per-device lock files. Empty means the platform default.
func (p Paths) LockDir() string {
	if p.RootDir == "" {
		return ""
	}

	return filepath.Join(p.RootDir, "locks")
}

// WithConfigFile points the config at an explicit file; the log file moves
// next to it while records stay where the config says.
func (p Paths) WithConfigFile(path string) Paths {
	if path == "" {
		return p
	}
	p.ConfigFile = path
	p.LogFile = filepath.Join(filepath.Dir(path), LogFilename)

	return p
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return !errors.Is(err, os.ErrNotExist)
}
