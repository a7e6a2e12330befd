package auth

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"channel-analytics/internal/credential"
	"channel-analytics/internal/domain"
)

const trustedOrigin = "http://localhost:8000"

type fakeService struct {
	loginURL   func(ctx context.Context) (string, error)
	authStatus func(ctx context.Context, token string) (bool, error)
	calls      atomic.Int32
}

func (f *fakeService) LoginURL(ctx context.Context) (string, error) {
	if f.loginURL == nil {
		return "https://accounts.example.com/consent", nil
	}
	return f.loginURL(ctx)
}

func (f *fakeService) AuthStatus(ctx context.Context, token string) (bool, error) {
	f.calls.Add(1)
	if f.authStatus == nil {
		return false, errors.New("unexpected status check")
	}
	return f.authStatus(ctx, token)
}

type stateRecorder struct {
	mu     sync.Mutex
	states []domain.AuthState
}

func (r *stateRecorder) record(s domain.AuthSnapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, s.State)
}

func (r *stateRecorder) list() []domain.AuthState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.AuthState(nil), r.states...)
}

// pausingStore blocks the first Get after returning, until release is closed.
type pausingStore struct {
	credential.Store
	once    sync.Once
	read    chan struct{}
	release chan struct{}
}

func newPausingStore(token string) *pausingStore {
	return &pausingStore{
		Store:   credential.NewMemoryStore(token),
		read:    make(chan struct{}),
		release: make(chan struct{}),
	}
}

func (s *pausingStore) Get() (string, error) {
	token, err := s.Store.Get()
	s.once.Do(func() {
		close(s.read)
		<-s.release
	})
	return token, err
}

type failingStore struct {
	credential.Store
	setErr error
}

func (s failingStore) Set(string) error { return s.setErr }

func newTestManager(t *testing.T, store credential.Store, svc *fakeService) (*Manager, *stateRecorder) {
	t.Helper()
	origins, err := NewOriginAllowList(trustedOrigin, "http://localhost:5173")
	require.NoError(t, err)

	rec := &stateRecorder{}
	m := New(Config{
		Store:         store,
		Service:       svc,
		Origins:       origins,
		OnStateChange: rec.record,
	})
	t.Cleanup(m.Close)
	return m, rec
}

func authMessage(origin, token string) Message {
	return Message{Origin: origin, Data: []byte(`{"type":"auth_success","token":"` + token + `"}`)}
}

// Without a stored credential startup passes through checking to unauthenticated with no request.
func TestStartWithoutCredential(t *testing.T) {
	svc := &fakeService{}
	m, rec := newTestManager(t, credential.NewMemoryStore(""), svc)

	require.Equal(t, domain.AuthStateUnknown, m.State().State)

	state, err := m.Start(context.Background())
	require.NoError(t, err)
	require.Equal(t, domain.AuthStateUnauthenticated, state)
	require.Zero(t, svc.calls.Load())
	require.Equal(t, []domain.AuthState{domain.AuthStateChecking, domain.AuthStateUnauthenticated}, rec.list())
}

// A valid stored credential passes through checking to authenticated.
func TestStartWithValidCredential(t *testing.T) {
	svc := &fakeService{authStatus: func(_ context.Context, token string) (bool, error) {
		require.Equal(t, "T", token)
		return true, nil
	}}
	store := credential.NewMemoryStore("T")
	m, rec := newTestManager(t, store, svc)

	state, err := m.Start(context.Background())
	require.NoError(t, err)
	require.Equal(t, domain.AuthStateAuthenticated, state)
	require.True(t, m.IsAuthenticated())
	require.Equal(t, []domain.AuthState{domain.AuthStateChecking, domain.AuthStateAuthenticated}, rec.list())

	token, err := store.Get()
	require.NoError(t, err)
	require.Equal(t, "T", token)
}

// A rejected credential is cleared.
func TestStartWithRejectedCredential(t *testing.T) {
	svc := &fakeService{authStatus: func(context.Context, string) (bool, error) { return false, nil }}
	store := credential.NewMemoryStore("stale")
	m, _ := newTestManager(t, store, svc)

	state, err := m.Start(context.Background())
	require.NoError(t, err)
	require.Equal(t, domain.AuthStateUnauthenticated, state)
	require.NotEmpty(t, m.State().Reason)

	token, _ := store.Get()
	require.Empty(t, token)
}

// A transport failure during the check clears the credential and is not retried.
func TestCheckStatusTransportFailure(t *testing.T) {
	svc := &fakeService{authStatus: func(context.Context, string) (bool, error) {
		return false, &domain.TransportError{Op: "auth status", Err: errors.New("connection refused")}
	}}
	store := credential.NewMemoryStore("T")
	m, _ := newTestManager(t, store, svc)

	state, err := m.CheckStatus(context.Background())
	require.ErrorIs(t, err, &domain.TransportError{})
	require.Equal(t, domain.AuthStateUnauthenticated, state)
	require.Equal(t, int32(1), svc.calls.Load())

	token, _ := store.Get()
	require.Empty(t, token)
}

// A trusted auth_success message authenticates and persists the token.
func TestHandleMessageTrustedAuthSuccess(t *testing.T) {
	store := credential.NewMemoryStore("")
	m, _ := newTestManager(t, store, &fakeService{})
	_, err := m.Start(context.Background())
	require.NoError(t, err)

	require.NoError(t, m.HandleMessage(authMessage(trustedOrigin, "abc")))
	require.Equal(t, domain.AuthStateAuthenticated, m.State().State)

	token, _ := store.Get()
	require.Equal(t, "abc", token)
}

// Messages from other origins change nothing, whatever they carry.
func TestHandleMessageUntrustedOrigin(t *testing.T) {
	store := credential.NewMemoryStore("")
	m, rec := newTestManager(t, store, &fakeService{})
	_, err := m.Start(context.Background())
	require.NoError(t, err)

	for _, msg := range []Message{
		authMessage("https://evil.example", "x"),
		authMessage("null", "x"),
		authMessage("", "x"),
		{Origin: "https://evil.example", Data: []byte("not json")},
	} {
		err := m.HandleMessage(msg)
		require.ErrorIs(t, err, &domain.UntrustedMessageError{})
	}

	require.Equal(t, domain.AuthStateUnauthenticated, m.State().State)
	require.Equal(t, []domain.AuthState{domain.AuthStateChecking, domain.AuthStateUnauthenticated}, rec.list())
	token, _ := store.Get()
	require.Empty(t, token)
}

// Trusted messages without a usable payload are ignored.
func TestHandleMessageIgnoresOtherPayloads(t *testing.T) {
	m, _ := newTestManager(t, credential.NewMemoryStore(""), &fakeService{})

	err := m.HandleMessage(Message{Origin: trustedOrigin, Data: []byte(`{"type":"ping"}`)})
	require.ErrorIs(t, err, ErrIgnoredMessage)
	require.Equal(t, domain.AuthStateUnknown, m.State().State)
}

// A store failure leaves the state unchanged.
func TestHandleMessageStoreFailure(t *testing.T) {
	store := failingStore{Store: credential.NewMemoryStore(""), setErr: errors.New("disk full")}
	m, _ := newTestManager(t, store, &fakeService{})

	err := m.HandleMessage(authMessage(trustedOrigin, "abc"))
	require.Error(t, err)
	require.Equal(t, domain.AuthStateUnknown, m.State().State)
}

// A message accepted while a status check is in flight wins over its result.
func TestMessageSupersedesInFlightCheck(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	svc := &fakeService{authStatus: func(context.Context, string) (bool, error) {
		close(started)
		<-release
		return false, nil
	}}
	store := credential.NewMemoryStore("old")
	m, _ := newTestManager(t, store, svc)

	done := make(chan domain.AuthState, 1)
	go func() {
		state, _ := m.CheckStatus(context.Background())
		done <- state
	}()

	<-started
	require.Equal(t, domain.AuthStateChecking, m.State().State)
	require.NoError(t, m.HandleMessage(authMessage(trustedOrigin, "fresh")))
	close(release)

	select {
	case state := <-done:
		require.Equal(t, domain.AuthStateAuthenticated, state)
	case <-time.After(2 * time.Second):
		t.Fatal("status check did not return")
	}

	require.Equal(t, domain.AuthStateAuthenticated, m.State().State)
	token, _ := store.Get()
	require.Equal(t, "fresh", token)
}

// A message accepted while the check reads the store wins over the stale read.
func TestMessageSupersedesCredentialRead(t *testing.T) {
	for name, stored := range map[string]string{"old token": "old", "no token": ""} {
		t.Run(name, func(t *testing.T) {
			svc := &fakeService{authStatus: func(context.Context, string) (bool, error) { return false, nil }}
			store := newPausingStore(stored)
			m, _ := newTestManager(t, store, svc)

			done := make(chan domain.AuthState, 1)
			go func() {
				state, _ := m.CheckStatus(context.Background())
				done <- state
			}()

			<-store.read
			require.NoError(t, m.HandleMessage(authMessage(trustedOrigin, "fresh")))
			close(store.release)

			select {
			case state := <-done:
				require.Equal(t, domain.AuthStateAuthenticated, state)
			case <-time.After(2 * time.Second):
				t.Fatal("status check did not return")
			}

			require.Equal(t, domain.AuthStateAuthenticated, m.State().State)
			require.Zero(t, svc.calls.Load())
			token, _ := store.Get()
			require.Equal(t, "fresh", token)
		})
	}
}

// A caller that gives up waiting does not cancel the check or clear the credential.
func TestCheckStatusCallerCancelKeepsCredential(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	svc := &fakeService{authStatus: func(ctx context.Context, _ string) (bool, error) {
		close(started)
		select {
		case <-release:
			return true, nil
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}}
	store := credential.NewMemoryStore("T")
	m, _ := newTestManager(t, store, svc)

	ctx, cancel := context.WithCancel(context.Background())
	errs := make(chan error, 1)
	go func() {
		_, err := m.CheckStatus(ctx)
		errs <- err
	}()

	<-started
	cancel()
	select {
	case err := <-errs:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("cancelled caller did not return")
	}

	close(release)
	require.Eventually(t, m.IsAuthenticated, 2*time.Second, 5*time.Millisecond)
	token, _ := store.Get()
	require.Equal(t, "T", token)
}

// Login opens the handshake URL in a 500x600 window.
func TestLoginOpensPopup(t *testing.T) {
	var opened domain.LoginPrompt
	origins, err := NewOriginAllowList(trustedOrigin)
	require.NoError(t, err)
	m := New(Config{
		Store:   credential.NewMemoryStore(""),
		Service: &fakeService{},
		Origins: origins,
		Opener: OpenerFunc(func(_ context.Context, p domain.LoginPrompt) error {
			opened = p
			return nil
		}),
	})
	defer m.Close()

	prompt, err := m.Login(context.Background())
	require.NoError(t, err)
	require.Equal(t, domain.LoginPrompt{URL: "https://accounts.example.com/consent", Width: 500, Height: 600}, prompt)
	require.Equal(t, prompt, opened)
	require.Equal(t, domain.AuthStateUnknown, m.State().State)
}

// A login request failure is reported and leaves the state unchanged.
func TestLoginFailureLeavesState(t *testing.T) {
	svc := &fakeService{loginURL: func(context.Context) (string, error) {
		return "", &domain.TransportError{Op: "login", StatusCode: 500}
	}}
	m, _ := newTestManager(t, credential.NewMemoryStore(""), svc)
	_, err := m.Start(context.Background())
	require.NoError(t, err)

	_, err = m.Login(context.Background())
	require.ErrorIs(t, err, &domain.TransportError{})
	require.Equal(t, domain.AuthStateUnauthenticated, m.State().State)
}

// Login without an opener fails.
func TestLoginWithoutOpener(t *testing.T) {
	m, _ := newTestManager(t, credential.NewMemoryStore(""), &fakeService{})

	_, err := m.Login(context.Background())
	require.Error(t, err)
}

// Logout clears the credential from any state.
func TestLogout(t *testing.T) {
	store := credential.NewMemoryStore("")
	m, _ := newTestManager(t, store, &fakeService{})
	require.NoError(t, m.HandleMessage(authMessage(trustedOrigin, "abc")))

	require.NoError(t, m.Logout(context.Background()))
	require.Equal(t, domain.AuthStateUnauthenticated, m.State().State)
	token, _ := store.Get()
	require.Empty(t, token)
}

// Resync checks again only when the stored token changed underneath.
func TestResync(t *testing.T) {
	svc := &fakeService{authStatus: func(context.Context, string) (bool, error) { return true, nil }}
	store := credential.NewMemoryStore("T")
	m, _ := newTestManager(t, store, svc)

	_, err := m.Start(context.Background())
	require.NoError(t, err)
	require.Equal(t, int32(1), svc.calls.Load())

	_, err = m.Resync(context.Background())
	require.NoError(t, err)
	require.Equal(t, int32(1), svc.calls.Load())

	require.NoError(t, store.Set("T2"))
	state, err := m.Resync(context.Background())
	require.NoError(t, err)
	require.Equal(t, domain.AuthStateAuthenticated, state)
	require.Equal(t, int32(2), svc.calls.Load())

	require.NoError(t, store.Clear())
	state, err = m.Resync(context.Background())
	require.NoError(t, err)
	require.Equal(t, domain.AuthStateUnauthenticated, state)
	require.Equal(t, int32(2), svc.calls.Load())
}

// Listen applies channel messages and exits on Close.
func TestListenAndClose(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	store := credential.NewMemoryStore("")
	origins, err := NewOriginAllowList(trustedOrigin)
	require.NoError(t, err)
	m := New(Config{Store: store, Service: &fakeService{}, Origins: origins})

	ch := make(chan Message, 2)
	m.Listen(ch)
	ch <- authMessage("https://evil.example", "bad")
	ch <- authMessage(trustedOrigin, "good")

	require.Eventually(t, m.IsAuthenticated, time.Second, 5*time.Millisecond)
	token, _ := store.Get()
	require.Equal(t, "good", token)

	m.Close()
	m.Listen(make(chan Message))
}
