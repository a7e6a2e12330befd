// Package auth owns the session authentication state: it validates the stored
// credential, drives the login handshake and accepts tokens delivered over a
// cross-context message channel.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"

	"channel-analytics/internal/config"
	"channel-analytics/internal/credential"
	"channel-analytics/internal/domain"
)

// Service is the part of the analysis service the manager talks to.
type Service interface {
	LoginURL(ctx context.Context) (string, error)
	AuthStatus(ctx context.Context, token string) (bool, error)
}

// Config holds the dependencies of a Manager.
type Config struct {
	Store   credential.Store
	Service Service
	Opener  Opener
	Origins *OriginAllowList

	// OnStateChange is called with the manager lock held whenever the state
	// or reason changes. It must not call back into the Manager.
	OnStateChange func(domain.AuthSnapshot)
}

// Manager is the auth session state machine. It is safe for concurrent use.
type Manager struct {
	mu     sync.RWMutex
	state  domain.AuthState
	reason string

	// generation is bumped whenever a message or logout replaces the
	// credential, so a status check started earlier cannot overwrite it.
	generation uint64

	// knownToken is the token the manager last read or wrote.
	knownToken string

	store         credential.Store
	service       Service
	opener        Opener
	origins       *OriginAllowList
	onStateChange func(domain.AuthSnapshot)

	checks singleflight.Group

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a manager in the unknown state.
func New(cfg Config) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		state:         domain.AuthStateUnknown,
		store:         cfg.Store,
		service:       cfg.Service,
		opener:        cfg.Opener,
		origins:       cfg.Origins,
		onStateChange: cfg.OnStateChange,
		ctx:           ctx,
		cancel:        cancel,
	}
}

// State returns the current state and failure reason.
func (m *Manager) State() domain.AuthSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return domain.AuthSnapshot{State: m.state, Reason: m.reason}
}

// IsAuthenticated reports whether the session is authenticated.
func (m *Manager) IsAuthenticated() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state == domain.AuthStateAuthenticated
}

// Start resolves the initial unknown state by checking the stored credential.
func (m *Manager) Start(ctx context.Context) (domain.AuthState, error) {
	m.mu.Lock()
	if m.state == domain.AuthStateUnknown {
		m.setState(domain.AuthStateChecking, "")
	}
	m.mu.Unlock()

	return m.CheckStatus(ctx)
}

// CheckStatus validates the stored credential with the service. Without a
// credential no request is made. A rejected or unverifiable credential is
// cleared; the check is never retried automatically. Concurrent calls share
// one check that callers cannot cancel; a caller whose ctx ends returns
// ctx.Err() early. Otherwise the returned error is the transport failure.
func (m *Manager) CheckStatus(ctx context.Context) (domain.AuthState, error) {
	results := m.checks.DoChan("status", func() (any, error) {
		return m.checkStatus(context.WithoutCancel(ctx))
	})
	select {
	case <-ctx.Done():
		return m.State().State, ctx.Err()
	case res := <-results:
		state, _ := res.Val.(domain.AuthState)
		return state, res.Err
	}
}

func (m *Manager) checkStatus(ctx context.Context) (domain.AuthState, error) {
	m.mu.RLock()
	generation := m.generation
	m.mu.RUnlock()

	token, readErr := m.store.Get()

	m.mu.Lock()
	if m.generation != generation {
		state := m.state
		m.mu.Unlock()
		slog.DebugContext(ctx, "discarding superseded credential read")
		return state, nil
	}
	if readErr != nil {
		slog.WarnContext(ctx, "credential unreadable, discarding", slog.String("error", readErr.Error()))
		m.clearLocked(ctx)
		m.setState(domain.AuthStateUnauthenticated, "stored credential is unreadable")
		m.mu.Unlock()
		return domain.AuthStateUnauthenticated, nil
	}
	if token == "" {
		m.knownToken = ""
		m.setState(domain.AuthStateUnauthenticated, "")
		m.mu.Unlock()
		return domain.AuthStateUnauthenticated, nil
	}
	m.knownToken = token
	m.setState(domain.AuthStateChecking, "")
	m.mu.Unlock()

	ok, err := m.service.AuthStatus(ctx, token)

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.generation != generation {
		slog.DebugContext(ctx, "discarding superseded auth status result")
		return m.state, nil
	}
	if err == nil && ok {
		m.setState(domain.AuthStateAuthenticated, "")
		return domain.AuthStateAuthenticated, nil
	}

	m.clearLocked(ctx)
	if err != nil {
		slog.InfoContext(ctx, "auth status check failed", slog.String("error", err.Error()))
		m.setState(domain.AuthStateUnauthenticated, err.Error())
		return domain.AuthStateUnauthenticated, err
	}
	slog.InfoContext(ctx, "stored credential rejected")
	m.setState(domain.AuthStateUnauthenticated, "session expired, sign in again")
	return domain.AuthStateUnauthenticated, nil
}

// Resync re-checks the credential only when the stored token differs from
// the one the manager last saw, e.g. after another instance changed it.
func (m *Manager) Resync(ctx context.Context) (domain.AuthState, error) {
	token, err := m.store.Get()

	m.mu.RLock()
	known, state := m.knownToken, m.state
	m.mu.RUnlock()

	if err == nil && token == known && state != domain.AuthStateUnknown {
		return state, nil
	}
	return m.CheckStatus(ctx)
}

// Login requests the handshake entry point and opens it in a secondary
// context. On failure the auth state is left unchanged.
func (m *Manager) Login(ctx context.Context) (domain.LoginPrompt, error) {
	authURL, err := m.service.LoginURL(ctx)
	if err != nil {
		return domain.LoginPrompt{}, fmt.Errorf("login: %w", err)
	}

	prompt := domain.LoginPrompt{
		URL:    authURL,
		Width:  config.LoginPopupWidth,
		Height: config.LoginPopupHeight,
	}
	if m.opener == nil {
		return prompt, errors.New("login: no window opener configured")
	}
	if err := m.opener.Open(ctx, prompt); err != nil {
		return prompt, fmt.Errorf("open login window: %w", err)
	}
	return prompt, nil
}

// HandleMessage processes one inbound message. Messages from origins outside
// the allow-list are rejected before the payload is read and return
// *domain.UntrustedMessageError; callers drop them silently. A well-formed
// auth_success payload persists the token and authenticates the session
// from any state.
func (m *Manager) HandleMessage(msg Message) error {
	if !m.origins.Allows(msg.Origin) {
		return &domain.UntrustedMessageError{Origin: msg.Origin}
	}

	token, err := parseAuthSuccess(msg.Data)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.store.Set(token); err != nil {
		return fmt.Errorf("persist credential: %w", err)
	}
	m.generation++
	m.knownToken = token
	m.setState(domain.AuthStateAuthenticated, "")
	return nil
}

// Listen consumes messages from ch until ch is closed or the manager is closed.
func (m *Manager) Listen(ch <-chan Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ctx.Err() != nil {
		return
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		for {
			select {
			case <-m.ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				m.logMessageResult(msg, m.HandleMessage(msg))
			}
		}
	}()
}

func (m *Manager) logMessageResult(msg Message, err error) {
	switch {
	case err == nil:
		slog.Info("session authenticated by handshake message", slog.String("origin", msg.Origin))
	case errors.Is(err, &domain.UntrustedMessageError{}):
		slog.Debug("dropped message from untrusted origin", slog.String("origin", msg.Origin))
	case errors.Is(err, ErrIgnoredMessage):
		slog.Debug("ignored handshake message", slog.String("origin", msg.Origin))
	default:
		slog.Warn("handshake message failed", slog.String("error", err.Error()))
	}
}

// Logout clears the credential and moves to unauthenticated.
func (m *Manager) Logout(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.store.Clear(); err != nil {
		return fmt.Errorf("clear credential: %w", err)
	}
	m.generation++
	m.knownToken = ""
	m.setState(domain.AuthStateUnauthenticated, "")
	slog.InfoContext(ctx, "signed out")
	return nil
}

// Close deregisters all message listeners and waits for them to exit.
func (m *Manager) Close() {
	m.mu.Lock()
	m.cancel()
	m.mu.Unlock()

	m.wg.Wait()
}

// clearLocked drops the stored credential. Must be called with m.mu held.
func (m *Manager) clearLocked(ctx context.Context) {
	if err := m.store.Clear(); err != nil {
		slog.WarnContext(ctx, "clear credential failed", slog.String("error", err.Error()))
	}
	m.knownToken = ""
}

// setState changes the state and notifies the callback.
// Must be called with m.mu held.
func (m *Manager) setState(state domain.AuthState, reason string) {
	if m.state == state && m.reason == reason {
		return
	}
	m.state = state
	m.reason = reason
	if m.onStateChange != nil {
		m.onStateChange(domain.AuthSnapshot{State: state, Reason: reason})
	}
}
