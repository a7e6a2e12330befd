package config

import (
	"os"
	"path/filepath"
	"testing"

	"channel-analytics/internal/domain"
)

// TestDefaultSettings verifies baseline defaults are present.
func TestDefaultSettings(t *testing.T) {
	cfg := DefaultSettings()
	if cfg.APIBaseURL != DefaultAPIBaseURL {
		t.Fatalf("api url = %q, want %q", cfg.APIBaseURL, DefaultAPIBaseURL)
	}
	if cfg.CallbackAddr != DefaultCallbackAddr {
		t.Fatalf("callback addr = %q, want %q", cfg.CallbackAddr, DefaultCallbackAddr)
	}
	if filepath.Base(cfg.CredentialPath) != "credentials.json" {
		t.Fatalf("credential path = %q, want credentials.json file", cfg.CredentialPath)
	}
}

// TestJSONStoreLoadMissingReturnsDefaults checks first-run behavior.
func TestJSONStoreLoadMissingReturnsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "settings.json")
	store := NewJSONStore(path)

	got, err := store.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.APIBaseURL != DefaultAPIBaseURL {
		t.Fatalf("api url = %q, want default", got.APIBaseURL)
	}
}

// TestJSONStoreSaveAndLoadRoundTrip checks persisted settings fidelity.
func TestJSONStoreSaveAndLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg", "settings.json")
	store := NewJSONStore(path)
	want := domain.Settings{
		APIBaseURL:     "https://api.example.com",
		AllowedOrigins: []string{"https://consent.example.com"},
		CallbackAddr:   "127.0.0.1:9000",
		CredentialPath: "/tmp/creds.json",
	}

	if err := store.Save(want); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := store.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.APIBaseURL != want.APIBaseURL || got.CallbackAddr != want.CallbackAddr || got.CredentialPath != want.CredentialPath {
		t.Fatalf("settings = %+v, want %+v", got, want)
	}
	if len(got.AllowedOrigins) != 1 || got.AllowedOrigins[0] != want.AllowedOrigins[0] {
		t.Fatalf("allowed origins = %v, want %v", got.AllowedOrigins, want.AllowedOrigins)
	}
}

// TestJSONStoreLoadFillsEmptyFields checks partial files fall back to defaults.
func TestJSONStoreLoadFillsEmptyFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	if err := os.WriteFile(path, []byte(`{"apiBaseUrl":" https://api.example.com/ "}`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	got, err := NewJSONStore(path).Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.APIBaseURL != "https://api.example.com" {
		t.Fatalf("api url = %q, want trimmed url", got.APIBaseURL)
	}
	if got.CallbackAddr != DefaultCallbackAddr {
		t.Fatalf("callback addr = %q, want default", got.CallbackAddr)
	}
}

// TestJSONStoreLoadInvalidJSON checks parse error handling.
func TestJSONStoreLoadInvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg", "settings.json")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte("{not-json"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	store := NewJSONStore(path)
	if _, err := store.Load(); err == nil {
		t.Fatal("expected json parse error")
	}
}

// TestWriteFileAtomicReplacesContent checks overwrite and permissions.
func TestWriteFileAtomicReplacesContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "file.json")
	if err := WriteFileAtomic(path, []byte("one"), 0o600); err != nil {
		t.Fatalf("first write: %v", err)
	}
	if err := WriteFileAtomic(path, []byte("two"), 0o600); err != nil {
		t.Fatalf("second write: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "two" {
		t.Fatalf("content = %q, want two", data)
	}
	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want only the target file", len(entries))
	}
}
