// Package paths resolves where attic keeps its config file and its default
// SQLite database.
package paths

import (
	"os"
	"path/filepath"
	"runtime"
)

const appName = "attic"

// CWD-relative data directory used when nothing else is configured.
const DefaultDataDirName = ".attic"

// File names inside the config and data directories.
const (
	ConfigFileName   = "config.yaml"
	DatabaseFileName = "attic.db"
)

// Environment variable names for directory overrides.
const (
	EnvConfigDir = "ATTIC_CONFIG_DIR"
	EnvDataDir   = "ATTIC_DATA_DIR"
)

// platformDir holds platform lookups that tests can override.
var platformDir = struct {
	homeDir       func() (string, error)
	userConfigDir func() (string, error)
}{
	homeDir:       os.UserHomeDir,
	userConfigDir: os.UserConfigDir,
}

// xdgDir returns $env/attic on Linux, falling back to ~/<fallback...>/attic.
// Other platforms use os.UserConfigDir for both config and data.
func xdgDir(env string, fallback ...string) (string, error) {
	if runtime.GOOS != "linux" {
		dir, err := platformDir.userConfigDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(dir, appName), nil
	}
	if xdg := os.Getenv(env); xdg != "" {
		return filepath.Join(xdg, appName), nil
	}
	home, err := platformDir.homeDir()
	if err != nil {
		return "", err
	}
	parts := append([]string{home}, fallback...)
	return filepath.Join(append(parts, appName)...), nil
}

// DefaultConfigDir returns the platform configuration directory.
//
// Linux:   $XDG_CONFIG_HOME/attic (fallback ~/.config/attic)
// macOS:   ~/Library/Application Support/attic
// Windows: %APPDATA%/attic
func DefaultConfigDir() (string, error) {
	return xdgDir("XDG_CONFIG_HOME", ".config")
}

// DefaultDataDir returns the platform data directory.
//
// Linux:   $XDG_DATA_HOME/attic (fallback ~/.local/share/attic)
// macOS and Windows: same as DefaultConfigDir.
func DefaultDataDir() (string, error) {
	return xdgDir("XDG_DATA_HOME", ".local", "share")
}

// ResolveConfigDir applies flag > ATTIC_CONFIG_DIR > DefaultConfigDir.
func ResolveConfigDir(flag string) (string, error) {
	if flag != "" {
		return filepath.Abs(flag)
	}
	if env := os.Getenv(EnvConfigDir); env != "" {
		return filepath.Abs(env)
	}
	return DefaultConfigDir()
}

// ResolveDataDir applies flag > config file value > ATTIC_DATA_DIR >
// $(CWD)/.attic.
func ResolveDataDir(flag, configValue string) (string, error) {
	for _, dir := range []string{flag, configValue, os.Getenv(EnvDataDir)} {
		if dir != "" {
			return filepath.Abs(dir)
		}
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(cwd, DefaultDataDirName), nil
}

// ConfigFile returns the config file path inside configDir.
func ConfigFile(configDir string) string {
	return filepath.Join(configDir, ConfigFileName)
}

// DatabaseFile returns the default SQLite database path inside dataDir.
func DatabaseFile(dataDir string) string {
	return filepath.Join(dataDir, DatabaseFileName)
}
