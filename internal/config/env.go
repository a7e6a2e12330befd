package config

import (
	"errors"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"channel-analytics/internal/domain"
)

// Environment variables that override persisted settings.
const (
	EnvAPIURL         = "ANALYTICS_API_URL"
	EnvAllowedOrigins = "ANALYTICS_ALLOWED_ORIGINS"
	EnvCallbackAddr   = "ANALYTICS_CALLBACK_ADDR"
	EnvCredentialPath = "ANALYTICS_CREDENTIAL_PATH"
)

// LoadDotEnv loads variables from the given .env files (default ".env")
// without overriding variables already set. Missing files are not an error.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, file := range files {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return nil
}

// ApplyEnv overlays environment overrides on cfg using lookup (os.LookupEnv when nil).
func ApplyEnv(cfg domain.Settings, lookup func(string) (string, bool)) domain.Settings {
	if lookup == nil {
		lookup = os.LookupEnv
	}

	if v, ok := lookup(EnvAPIURL); ok && strings.TrimSpace(v) != "" {
		cfg.APIBaseURL = v
	}
	if v, ok := lookup(EnvAllowedOrigins); ok && strings.TrimSpace(v) != "" {
		cfg.AllowedOrigins = strings.Split(v, ",")
	}
	if v, ok := lookup(EnvCallbackAddr); ok && strings.TrimSpace(v) != "" {
		cfg.CallbackAddr = v
	}
	if v, ok := lookup(EnvCredentialPath); ok && strings.TrimSpace(v) != "" {
		cfg.CredentialPath = v
	}
	return Normalize(cfg)
}
