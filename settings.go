package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Settings are the per-user preferences kept between runs.
type Settings struct {
	TelemetryEnabled bool `json:"telemetry_enabled"`
	FirstRunComplete bool `json:"first_run_complete"`

	// RowsPerPage applies to grids that do not set their own page size.
	RowsPerPage int  `json:"rows_per_page"`
	AltRows     bool `json:"alt_rows"`
	// VimMode adds hjkl movement to the viewer.
	VimMode bool `json:"vim_mode"`
}

func defaultSettings() *Settings {
	return &Settings{RowsPerPage: 20, AltRows: true}
}

// getConfigDir returns the configuration directory following XDG Base Directory spec
func getConfigDir() (string, error) {
	if xdgHome := os.Getenv("XDG_CONFIG_HOME"); xdgHome != "" {
		return filepath.Join(xdgHome, "tedgrid"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".config", "tedgrid"), nil
}

func getSettingsPath() (string, error) {
	configDir, err := getConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "settings.json"), nil
}

// EnsureConfigDir creates the configuration directory if it doesn't exist
func EnsureConfigDir() error {
	configDir, err := getConfigDir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return fmt.Errorf("could not create config directory: %w", err)
	}
	return nil
}

// LoadSettings reads settings.json, returning defaults on the first run.
func LoadSettings() (*Settings, error) {
	settingsPath, err := getSettingsPath()
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(settingsPath)
	if os.IsNotExist(err) {
		return defaultSettings(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("could not read settings file: %w", err)
	}

	settings := defaultSettings()
	if err := json.Unmarshal(data, settings); err != nil {
		return nil, fmt.Errorf("could not parse settings file: %w", err)
	}
	if settings.RowsPerPage <= 0 {
		settings.RowsPerPage = defaultSettings().RowsPerPage
	}
	return settings, nil
}

// SaveSettings writes the settings to settings.json
func SaveSettings(settings *Settings) error {
	if err := EnsureConfigDir(); err != nil {
		return err
	}
	settingsPath, err := getSettingsPath()
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return fmt.Errorf("could not marshal settings: %w", err)
	}
	if err := os.WriteFile(settingsPath, data, 0o644); err != nil {
		return fmt.Errorf("could not write settings file: %w", err)
	}
	return nil
}
