package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"

	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"

	"channel-analytics/internal/auth"
	"channel-analytics/internal/config"
	"channel-analytics/internal/diagnostics"
	"channel-analytics/internal/domain"
	"channel-analytics/internal/jobs"

	wailsruntime "github.com/wailsapp/wails/v2/pkg/runtime"
)

// Runtime event names pushed to the webview.
const (
	EventJob       = "job:event"
	EventAuthState = "auth:state"
	EventAuthPopup = "auth:popup"
)

// ErrSettingsLocked is returned when settings change while a job is loading.
var ErrSettingsLocked = errors.New("settings cannot change while a job is running")

// App wires configuration, the client session and UI runtime callbacks.
type App struct {
	Settings    domain.Settings
	Store       config.Store
	Diagnostics domain.DiagnosticReport
	assets      fs.FS
	checker     *diagnostics.Checker

	mu         sync.Mutex
	session    *Session
	runtimeCtx context.Context
}

// New builds the application with persisted settings and startup diagnostics.
func New() (*App, error) {
	return NewWithAssets(nil)
}

// NewWithAssets builds the application and optionally configures embedded frontend assets.
func NewWithAssets(assets fs.FS) (*App, error) {
	if err := config.LoadDotEnv(".env"); err != nil {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	store := config.NewJSONStore(config.DefaultSettingsPath())
	settings, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	settings = config.ApplyEnv(settings, os.LookupEnv)

	checker := diagnostics.NewChecker()
	app := &App{
		Settings:    settings,
		Store:       store,
		Diagnostics: checker.Run(context.Background(), settings),
		assets:      assets,
		checker:     checker,
	}

	session, err := app.newSession(settings)
	if err != nil {
		return nil, err
	}
	app.session = session
	return app, nil
}

// newSession builds a session whose events and login prompts reach the webview.
func (a *App) newSession(settings domain.Settings) (*Session, error) {
	return NewSession(SessionOptions{
		Settings:         settings,
		Opener:           auth.OpenerFunc(a.openPopup),
		WatchCredentials: true,
		OnEvent:          a.emitEvent,
	})
}

// Run starts the Wails desktop application and binds backend methods.
func (a *App) Run() error {
	assetOptions := &assetserver.Options{}
	if a.assets != nil {
		assetOptions.Assets = a.assets
	} else {
		assetOptions.Handler = http.FileServer(http.Dir("./frontend"))
	}

	return wails.Run(&options.App{
		Title:       "Channel Analytics",
		Width:       1080,
		Height:      760,
		AssetServer: assetOptions,
		OnStartup:   a.Startup,
		OnShutdown: func(ctx context.Context) {
			a.mu.Lock()
			session := a.session
			a.runtimeCtx = nil
			a.mu.Unlock()
			if session != nil {
				session.Close()
			}
		},
		Bind: []interface{}{a},
	})
}

// Startup stores Wails runtime context for push events and resolves the
// initial auth state in the background.
func (a *App) Startup(ctx context.Context) {
	a.mu.Lock()
	a.runtimeCtx = ctx
	session := a.session
	a.mu.Unlock()

	go func() {
		if _, err := session.Start(ctx); err != nil {
			slog.Warn("initial auth check failed", slog.String("error", err.Error()))
		}
	}()
}

// GetAuthState returns the current auth state.
func (a *App) GetAuthState() domain.AuthSnapshot {
	return a.currentSession().Auth.State()
}

// CheckAuth re-validates the stored credential with the service.
func (a *App) CheckAuth() (domain.AuthSnapshot, error) {
	session := a.currentSession()
	_, err := session.Auth.CheckStatus(a.requestContext())
	return session.Auth.State(), err
}

// Login starts the handshake by opening the consent page in a popup.
func (a *App) Login() (domain.LoginPrompt, error) {
	return a.currentSession().Auth.Login(a.requestContext())
}

// Logout clears the stored credential.
func (a *App) Logout() error {
	return a.currentSession().Auth.Logout(a.requestContext())
}

// DeliverAuthMessage accepts a window message forwarded by the shell page.
// Untrusted and unrelated messages are dropped without an error.
func (a *App) DeliverAuthMessage(origin, data string) error {
	err := a.currentSession().Auth.HandleMessage(auth.Message{Origin: origin, Data: []byte(data)})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, &domain.UntrustedMessageError{}):
		slog.Debug("dropped window message", slog.String("origin", origin))
		return nil
	case errors.Is(err, auth.ErrIgnoredMessage):
		return nil
	default:
		return err
	}
}

// SubmitAnalysis submits one channel URL per line and starts polling.
func (a *App) SubmitAnalysis(raw string) (domain.Job, error) {
	session := a.currentSession()
	if _, err := session.Submit(a.requestContext(), raw); err != nil {
		return session.Tracker.Current(), err
	}
	return session.Tracker.Current(), nil
}

// CurrentJob returns current job metadata and status.
func (a *App) CurrentJob() domain.Job {
	return a.currentSession().Tracker.Current()
}

// ResetJob stops polling and discards the current job.
func (a *App) ResetJob() domain.Job {
	session := a.currentSession()
	session.Jobs.Reset()
	return session.Tracker.Current()
}

// JobEvents returns all events with sequence greater than sinceSeq.
func (a *App) JobEvents(sinceSeq int64) []jobs.Event {
	return a.currentSession().Events.Since(sinceSeq)
}

// OpenResult opens a result link in the system browser.
func (a *App) OpenResult(link string) error {
	ctx, err := a.runtimeContext()
	if err != nil {
		return err
	}
	target, err := resultURL(link)
	if err != nil {
		return err
	}
	wailsruntime.BrowserOpenURL(ctx, target)
	return nil
}

// GetDiagnostics returns the latest cached diagnostics report.
func (a *App) GetDiagnostics() domain.DiagnosticReport {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.Diagnostics
}

// GetSettings loads and returns the latest persisted settings.
func (a *App) GetSettings() (domain.Settings, error) {
	settings, err := a.Store.Load()
	if err != nil {
		return domain.Settings{}, fmt.Errorf("load settings: %w", err)
	}

	a.mu.Lock()
	a.Settings = settings
	a.mu.Unlock()

	return settings, nil
}

// SaveSettings normalizes and persists settings, rebuilds the session and
// refreshes diagnostics.
func (a *App) SaveSettings(settings domain.Settings) (domain.Settings, error) {
	normalized := config.Normalize(settings)
	if _, err := trustedOrigins(normalized); err != nil {
		return domain.Settings{}, err
	}
	if a.currentSession().Tracker.IsLoading() {
		return domain.Settings{}, ErrSettingsLocked
	}
	if err := a.Store.Save(normalized); err != nil {
		return domain.Settings{}, fmt.Errorf("save settings: %w", err)
	}
	if err := a.applySettings(normalized); err != nil {
		return normalized, err
	}
	return normalized, nil
}

// RefreshDiagnostics reloads settings and reruns startup checks.
func (a *App) RefreshDiagnostics() (domain.DiagnosticReport, error) {
	settings, err := a.Store.Load()
	if err != nil {
		return domain.DiagnosticReport{}, fmt.Errorf("load settings: %w", err)
	}
	return a.refreshDiagnosticsFromSettings(settings), nil
}

// applySettings swaps in a session built from settings. The new session
// resolves its auth state right away.
func (a *App) applySettings(settings domain.Settings) error {
	a.refreshDiagnosticsFromSettings(settings)

	next, err := a.newSession(settings)
	if err != nil {
		return err
	}

	a.mu.Lock()
	prev := a.session
	a.session = next
	a.mu.Unlock()

	if prev != nil {
		prev.Close()
	}
	if _, err := next.Start(a.requestContext()); err != nil {
		slog.Warn("auth check after settings change failed", slog.String("error", err.Error()))
	}
	return nil
}

func (a *App) refreshDiagnosticsFromSettings(settings domain.Settings) domain.DiagnosticReport {
	var report domain.DiagnosticReport
	if a.checker != nil {
		report = a.checker.Run(a.requestContext(), settings)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.Settings = settings
	if a.checker != nil {
		a.Diagnostics = report
	}
	return a.Diagnostics
}

// openPopup asks the webview to open the consent page without navigating
// the main window.
func (a *App) openPopup(_ context.Context, prompt domain.LoginPrompt) error {
	ctx, err := a.runtimeContext()
	if err != nil {
		return err
	}
	wailsruntime.EventsEmit(ctx, EventAuthPopup, prompt)
	return nil
}

// emitEvent pushes a stored session event to the webview.
func (a *App) emitEvent(event jobs.Event) {
	a.mu.Lock()
	ctx := a.runtimeCtx
	a.mu.Unlock()
	if ctx == nil {
		return
	}

	if event.Type == jobs.EventTypeAuth {
		wailsruntime.EventsEmit(ctx, EventAuthState, domain.AuthSnapshot{State: event.AuthState, Reason: event.Message})
	}
	wailsruntime.EventsEmit(ctx, EventJob, event)
}

func (a *App) currentSession() *Session {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.session
}

// requestContext returns the runtime context when available.
func (a *App) requestContext() context.Context {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.runtimeCtx == nil {
		return context.Background()
	}
	return a.runtimeCtx
}

// runtimeContext returns current Wails runtime context for runtime APIs.
func (a *App) runtimeContext() (context.Context, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.runtimeCtx == nil {
		return nil, fmt.Errorf("runtime context is not initialized")
	}
	return a.runtimeCtx, nil
}

// resultURL accepts only absolute http(s) links.
func resultURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("not a result link: %q", raw)
	}
	return u.String(), nil
}
