package config

import (
	"os"
	"path/filepath"
)

// UserConfigDir returns ~/.memscan, creating nothing.
func UserConfigDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".memscan"), nil
}

// SettingsPath returns the path to the user settings file.
func SettingsPath() (string, error) {
	dir, err := UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "settings.json"), nil
}

// DefaultSpillDir returns ~/.memscan/spill, a location for on-disk
// snapshot spill. Load does not apply it: a SpillDir left empty in the
// config keeps spill disabled.
func DefaultSpillDir() (string, error) {
	dir, err := UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "spill"), nil
}
