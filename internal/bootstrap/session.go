package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"channel-analytics/internal/api"
	"channel-analytics/internal/auth"
	"channel-analytics/internal/config"
	"channel-analytics/internal/credential"
	"channel-analytics/internal/domain"
	"channel-analytics/internal/jobs"
)

// SessionOptions configures a Session.
type SessionOptions struct {
	Settings domain.Settings

	// Credentials overrides the file store at Settings.CredentialPath.
	Credentials credential.Store

	Opener     auth.Opener
	HTTPClient *http.Client

	// PollInterval overrides config.JobPollInterval.
	PollInterval time.Duration

	// WatchCredentials re-checks auth when another process changes the
	// credential file.
	WatchCredentials bool

	// OnEvent receives every event after it is stored on the event bus.
	OnEvent func(jobs.Event)
}

// Session is the explicit context object owning one client's credential,
// auth state and job state. It is created at process start and torn down
// with Close.
type Session struct {
	Settings    domain.Settings
	Credentials credential.Store
	Origins     *auth.OriginAllowList
	API         *api.Client
	Auth        *auth.Manager
	Tracker     *jobs.Tracker
	Poller      *jobs.Poller
	Jobs        *jobs.Controller
	Events      *jobs.EventBus

	onEvent func(jobs.Event)
	watcher *credential.Watcher
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewSession wires the components of a session. It makes no network calls;
// call Start to resolve the initial auth state.
func NewSession(opts SessionOptions) (*Session, error) {
	settings := config.Normalize(opts.Settings)

	var apiOpts []api.Option
	if opts.HTTPClient != nil {
		apiOpts = append(apiOpts, api.WithHTTPClient(opts.HTTPClient))
	}
	client, err := api.New(settings.APIBaseURL, apiOpts...)
	if err != nil {
		return nil, err
	}

	origins, err := trustedOrigins(settings)
	if err != nil {
		return nil, err
	}

	store := opts.Credentials
	if store == nil {
		store = credential.NewFileStore(settings.CredentialPath)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		Settings:    settings,
		Credentials: store,
		Origins:     origins,
		API:         client,
		Tracker:     jobs.NewTracker(),
		Events:      jobs.NewEventBus(config.EventHistorySize),
		onEvent:     opts.OnEvent,
		ctx:         ctx,
		cancel:      cancel,
	}

	s.Auth = auth.New(auth.Config{
		Store:   store,
		Service: client,
		Opener:  opts.Opener,
		Origins: origins,
		OnStateChange: func(snapshot domain.AuthSnapshot) {
			s.publish(jobs.AuthEvent(snapshot))
		},
	})

	pollOpts := []jobs.PollerOption{jobs.WithUpdateFunc(s.onJobUpdate)}
	if opts.PollInterval > 0 {
		pollOpts = append(pollOpts, jobs.WithInterval(opts.PollInterval))
	}
	s.Poller = jobs.NewPoller(client, s.Tracker, pollOpts...)
	s.Jobs = jobs.NewController(store, client, s.Tracker, s.Poller)

	if fileStore, ok := store.(*credential.FileStore); ok && opts.WatchCredentials {
		w, err := credential.Watch(fileStore.Path(), config.CredentialWatchDebounce, s.onCredentialChange)
		if err != nil {
			slog.Warn("credential watcher disabled", slog.String("error", err.Error()))
		} else {
			s.watcher = w
		}
	}

	return s, nil
}

// trustedOrigins allows the service's own origin plus configured extras.
func trustedOrigins(settings domain.Settings) (*auth.OriginAllowList, error) {
	origins := append([]string(nil), settings.AllowedOrigins...)
	if origin, ok := auth.OriginOf(settings.APIBaseURL); ok {
		origins = append(origins, origin)
	}
	list, err := auth.NewOriginAllowList(origins...)
	if err != nil {
		return nil, fmt.Errorf("allowed origins: %w", err)
	}
	return list, nil
}

// Start resolves the initial auth state.
func (s *Session) Start(ctx context.Context) (domain.AuthState, error) {
	return s.Auth.Start(ctx)
}

// Submit submits raw input as a new job. An unauthorized response makes the
// auth manager re-check, which clears a rejected credential.
func (s *Session) Submit(ctx context.Context, raw string) (domain.JobHandle, error) {
	handle, err := s.Jobs.Submit(ctx, raw)
	if err == nil {
		s.publish(jobs.Event{JobID: handle.JobID, Type: jobs.EventTypeStatus, Message: "Job submitted"})
		return handle, nil
	}

	var validationErr *domain.ValidationError
	if !errors.As(err, &validationErr) {
		s.publish(jobs.Event{Type: jobs.EventTypeError, Message: err.Error()})
	}

	var transportErr *domain.TransportError
	if errors.As(err, &transportErr) && transportErr.Unauthorized() {
		if _, checkErr := s.Auth.CheckStatus(ctx); checkErr != nil {
			slog.WarnContext(ctx, "auth re-check failed", slog.String("error", checkErr.Error()))
		}
	}
	return handle, err
}

// Follow tracks an existing job by id.
func (s *Session) Follow(jobID string) error {
	return s.Jobs.Follow(jobID)
}

// Close stops polling, listeners and the credential watcher.
func (s *Session) Close() {
	s.cancel()
	if s.watcher != nil {
		_ = s.watcher.Close()
	}
	s.Poller.Close()
	s.Auth.Close()
}

func (s *Session) onJobUpdate(job domain.Job, err error) {
	for _, event := range jobs.JobEvents(job, err) {
		s.publish(event)
	}
}

func (s *Session) onCredentialChange() {
	if s.ctx.Err() != nil {
		return
	}
	if _, err := s.Auth.Resync(s.ctx); err != nil {
		slog.Warn("credential resync failed", slog.String("error", err.Error()))
	}
}

// publish stores an event and forwards it to the OnEvent hook.
func (s *Session) publish(event jobs.Event) jobs.Event {
	published := s.Events.Publish(event)
	if s.onEvent != nil {
		s.onEvent(published)
	}
	return published
}
