// Package config loads memscand's settings from a JSON file with sane
// defaults, following the single-file-plus-defaults pattern the rest of
// this codebase uses for its settings.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// Config holds every tunable the scan engine, filter engine, and HTTP
// server need. All fields have defaults so an empty or missing settings
// file is a valid configuration.
type Config struct {
	BindHost string `json:"bind_host,omitempty"`
	BindPort int    `json:"bind_port,omitempty"`

	LogLevel string `json:"log_level,omitempty"`
	LogFile  string `json:"log_file,omitempty"`

	ChunkSizeBytes           int64 `json:"chunk_size_bytes,omitempty"`
	InFlightCap              int   `json:"in_flight_cap,omitempty"`
	MaterializationThreshold int   `json:"materialization_threshold,omitempty"`
	MaxResults               int   `json:"max_results,omitempty"`

	// SpillDir enables optional on-disk snapshot spill when non-empty.
	SpillDir string `json:"spill_dir,omitempty"`

	EventQueueCapacity int `json:"event_queue_capacity,omitempty"`
}

// Default returns the configuration used when no settings file exists or
// a loaded file leaves fields unset.
func Default() *Config {
	return &Config{
		BindHost:                 "127.0.0.1",
		BindPort:                 52174,
		LogLevel:                 "info",
		ChunkSizeBytes:           16 * 1024 * 1024,
		InFlightCap:              100_000,
		MaterializationThreshold: 1_000_000,
		MaxResults:               100_000,
		EventQueueCapacity:       256,
	}
}

// Load reads a JSON settings file at path and overlays it onto the
// defaults. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	var overlay Config
	if err := json.Unmarshal(data, &overlay); err != nil {
		return nil, err
	}
	mergeOverlay(cfg, &overlay)
	return cfg, nil
}

func mergeOverlay(base, overlay *Config) {
	if overlay.BindHost != "" {
		base.BindHost = overlay.BindHost
	}
	if overlay.BindPort != 0 {
		base.BindPort = overlay.BindPort
	}
	if overlay.LogLevel != "" {
		base.LogLevel = overlay.LogLevel
	}
	if overlay.LogFile != "" {
		base.LogFile = overlay.LogFile
	}
	if overlay.ChunkSizeBytes != 0 {
		base.ChunkSizeBytes = overlay.ChunkSizeBytes
	}
	if overlay.InFlightCap != 0 {
		base.InFlightCap = overlay.InFlightCap
	}
	if overlay.MaterializationThreshold != 0 {
		base.MaterializationThreshold = overlay.MaterializationThreshold
	}
	if overlay.MaxResults != 0 {
		base.MaxResults = overlay.MaxResults
	}
	if overlay.SpillDir != "" {
		base.SpillDir = overlay.SpillDir
	}
	if overlay.EventQueueCapacity != 0 {
		base.EventQueueCapacity = overlay.EventQueueCapacity
	}
}

// Save writes cfg as the settings file at path, creating parent
// directories as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
