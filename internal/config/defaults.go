package config

import (
	"os"
	"path/filepath"

	"channel-analytics/internal/domain"
)

const (
	// AppDirName is the per-user directory holding settings and the credential.
	AppDirName = "channel-analytics"

	DefaultAPIBaseURL   = "http://localhost:8000"
	DefaultCallbackAddr = "127.0.0.1:8765"
)

// Dir returns the per-user configuration directory of the client.
func Dir() string {
	configDir, err := os.UserConfigDir()
	if err != nil {
		configDir = "."
	}
	return filepath.Join(configDir, AppDirName)
}

// DefaultSettingsPath is where settings are stored when no path is given.
func DefaultSettingsPath() string {
	return filepath.Join(Dir(), "settings.json")
}

// DefaultSettings returns baseline local configuration for first launch.
func DefaultSettings() domain.Settings {
	return domain.Settings{
		APIBaseURL:     DefaultAPIBaseURL,
		CallbackAddr:   DefaultCallbackAddr,
		CredentialPath: filepath.Join(Dir(), "credentials.json"),
	}
}
