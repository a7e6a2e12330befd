package bootstrap

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"

	"channel-analytics/internal/config"
	"channel-analytics/internal/domain"
)

// FixDiagnostic applies a local remediation for one failed diagnostic item
// and returns the refreshed report.
func (a *App) FixDiagnostic(itemID string) (domain.DiagnosticReport, error) {
	if a.Store == nil {
		return domain.DiagnosticReport{}, fmt.Errorf("settings store is not configured")
	}

	id := strings.TrimSpace(itemID)
	if id == "" {
		return domain.DiagnosticReport{}, fmt.Errorf("diagnostic item id is required")
	}

	settings, err := a.Store.Load()
	if err != nil {
		return domain.DiagnosticReport{}, fmt.Errorf("load settings: %w", err)
	}
	settings = config.Normalize(settings)

	settingsChanged := false
	var fixErr error

	switch id {
	case domain.DiagnosticAPIURL:
		settings, settingsChanged = fixAPIURL(settings)
	case domain.DiagnosticAPIReachable:
		fixErr = fmt.Errorf("start the analysis service at %s, then refresh diagnostics", settings.APIBaseURL)
	case domain.DiagnosticCredentialDir:
		settings, settingsChanged, fixErr = fixCredentialDir(settings)
	case domain.DiagnosticCallbackAddr:
		settings, settingsChanged, fixErr = fixCallbackAddr(settings)
	default:
		return domain.DiagnosticReport{}, fmt.Errorf("unsupported diagnostic item id: %s", id)
	}

	if settingsChanged {
		if saveErr := a.Store.Save(settings); saveErr != nil {
			report := a.refreshDiagnosticsFromSettings(settings)
			return report, fmt.Errorf("save settings after fix: %w", saveErr)
		}
		if err := a.applySettings(settings); err != nil {
			return a.GetDiagnostics(), err
		}
		return a.GetDiagnostics(), fixErr
	}

	report := a.refreshDiagnosticsFromSettings(settings)
	if fixErr != nil {
		return report, fixErr
	}
	return report, nil
}

// fixAPIURL restores the default service URL when the configured one is unusable.
func fixAPIURL(settings domain.Settings) (domain.Settings, bool) {
	if settings.APIBaseURL == config.DefaultAPIBaseURL {
		return settings, false
	}
	settings.APIBaseURL = config.DefaultAPIBaseURL
	return settings, true
}

// fixCredentialDir creates the credential directory, falling back to the
// default location when the configured one cannot be created.
func fixCredentialDir(settings domain.Settings) (domain.Settings, bool, error) {
	defaultPath := config.DefaultSettings().CredentialPath
	if settings.CredentialPath != "" {
		if err := os.MkdirAll(filepath.Dir(settings.CredentialPath), 0o700); err == nil {
			return settings, false, nil
		}
	}

	if err := os.MkdirAll(filepath.Dir(defaultPath), 0o700); err != nil {
		return settings, false, fmt.Errorf("create credential directory: %w", err)
	}
	changed := settings.CredentialPath != defaultPath
	settings.CredentialPath = defaultPath
	return settings, changed, nil
}

// fixCallbackAddr keeps a free loopback address, moving to the default or an
// ephemeral port otherwise.
func fixCallbackAddr(settings domain.Settings) (domain.Settings, bool, error) {
	if callbackAddrFree(settings.CallbackAddr) {
		return settings, false, nil
	}
	if callbackAddrFree(config.DefaultCallbackAddr) {
		settings.CallbackAddr = config.DefaultCallbackAddr
		return settings, true, nil
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return settings, false, fmt.Errorf("find free loopback port: %w", err)
	}
	settings.CallbackAddr = ln.Addr().String()
	_ = ln.Close()
	return settings, true, nil
}

func callbackAddrFree(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	if ip := net.ParseIP(host); host != "localhost" && (ip == nil || !ip.IsLoopback()) {
		return false
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return false
	}
	_ = ln.Close()
	return true
}
