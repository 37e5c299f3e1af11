// Package config locates keebie's files and loads its settings and device
// configurations.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

const appName = "keebie"

// Environment overrides for the two root directories.
const (
	EnvConfigDir = "KEEBIE_CONFIG_DIR"
	EnvStateDir  = "KEEBIE_STATE_DIR"
)

// PlatformConfigDir returns the directory holding layers, devices,
// scripts and settings.
//
// Platform paths:
//   - Linux: $XDG_CONFIG_HOME/keebie or ~/.config/keebie
//   - macOS: ~/Library/Application Support/keebie
func PlatformConfigDir() string {
	if dir := os.Getenv(EnvConfigDir); dir != "" {
		return dir
	}
	if runtime.GOOS == "darwin" {
		return filepath.Join(homeDir(), "Library", "Application Support", appName)
	}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, appName)
	}
	return filepath.Join(homeDir(), ".config", appName)
}

// PlatformStateDir returns the directory for the PID file, the journal and
// log files.
//
// Platform paths:
//   - Linux: $XDG_STATE_HOME/keebie or ~/.local/state/keebie
//   - macOS: ~/Library/Application Support/keebie/state
func PlatformStateDir() string {
	if dir := os.Getenv(EnvStateDir); dir != "" {
		return dir
	}
	if runtime.GOOS == "darwin" {
		return filepath.Join(homeDir(), "Library", "Application Support", appName, "state")
	}
	if xdg := os.Getenv("XDG_STATE_HOME"); xdg != "" {
		return filepath.Join(xdg, appName)
	}
	return filepath.Join(homeDir(), ".local", "state", appName)
}

func homeDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return home
	}
	return filepath.Join(os.TempDir(), appName+"-"+fmt.Sprint(os.Getuid()))
}

// Paths is the on-disk layout.
type Paths struct {
	ConfigDir string
	Layers    string
	Devices   string
	Scripts   string
	// Settings is the settings document directory; the document itself is
	// named SettingsName.
	Settings string

	StateDir string
	PIDFile  string
	State    string
	Journal  string
	Log      string
	Crashes  string
	// Metrics holds the Prometheus text exposition of the daemon's metrics.
	Metrics string
}

// SettingsName is the settings document name (settings.toml, .json, ...).
const SettingsName = "settings"

// DefaultPaths returns the layout under the platform directories.
func DefaultPaths() Paths {
	return PathsAt(PlatformConfigDir(), PlatformStateDir())
}

// PathsAt returns the layout rooted at the given directories.
func PathsAt(configDir, stateDir string) Paths {
	return Paths{
		ConfigDir: configDir,
		Layers:    filepath.Join(configDir, "layers"),
		Devices:   filepath.Join(configDir, "devices"),
		Scripts:   filepath.Join(configDir, "scripts"),
		Settings:  configDir,

		StateDir: stateDir,
		PIDFile:  filepath.Join(stateDir, appName+".pid"),
		State:    filepath.Join(stateDir, appName+".state"),
		Journal:  filepath.Join(stateDir, "journal.db"),
		Log:      filepath.Join(stateDir, appName+".log"),
		Crashes:  filepath.Join(stateDir, "crashes"),
		Metrics:  filepath.Join(stateDir, appName+".prom"),
	}
}

// EnsureDirectories creates every directory of the layout.
func (p Paths) EnsureDirectories() error {
	for _, dir := range []string{p.ConfigDir, p.Layers, p.Devices, p.Scripts, p.StateDir} {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}
