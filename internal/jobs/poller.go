package jobs

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"channel-analytics/internal/config"
	"channel-analytics/internal/domain"
)

// StatusFetcher queries the status of one job.
type StatusFetcher interface {
	JobStatus(ctx context.Context, jobID string) (domain.JobStatus, error)
}

// UpdateFunc receives each applied snapshot, with the error that ended
// polling if any.
type UpdateFunc func(job domain.Job, err error)

// PollerOption configures a Poller.
type PollerOption func(*Poller)

// WithInterval overrides the tick period.
func WithInterval(d time.Duration) PollerOption {
	return func(p *Poller) {
		if d > 0 {
			p.interval = d
		}
	}
}

// WithUpdateFunc registers a callback invoked after every applied tick.
func WithUpdateFunc(fn UpdateFunc) PollerOption {
	return func(p *Poller) {
		p.onUpdate = fn
	}
}

// Poller queries job status on a fixed period until a terminal status or a
// failed query. At most one schedule is active; each schedule carries a
// generation so a response from a superseded schedule is discarded.
type Poller struct {
	fetcher  StatusFetcher
	tracker  *Tracker
	interval time.Duration
	onUpdate UpdateFunc

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	generation uint64
	active     *schedule
	wg         sync.WaitGroup
}

type schedule struct {
	generation uint64
	jobID      string
	stop       chan struct{}
}

// NewPoller creates an idle poller writing into tracker.
func NewPoller(fetcher StatusFetcher, tracker *Tracker, opts ...PollerOption) *Poller {
	ctx, cancel := context.WithCancel(context.Background())
	p := &Poller{
		fetcher:  fetcher,
		tracker:  tracker,
		interval: config.JobPollInterval,
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start stops any active schedule and begins polling jobID. The first query
// happens on the first tick, one interval from now.
func (p *Poller) Start(jobID string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ctx.Err() != nil {
		return
	}
	p.stopLocked()

	p.generation++
	s := &schedule{
		generation: p.generation,
		jobID:      jobID,
		stop:       make(chan struct{}),
	}
	p.active = s

	p.wg.Add(1)
	go p.run(s)
	slog.Debug("polling started", slog.String("job_id", jobID), slog.Uint64("generation", s.generation))
}

// Stop ends the active schedule. A request already in flight is not
// cancelled; its response is discarded.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
}

// Active reports the job id of the active schedule, if any.
func (p *Poller) Active() (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.active == nil {
		return "", false
	}
	return p.active.jobID, true
}

// Close stops polling, cancels in-flight requests and waits for the
// schedule goroutines to exit.
func (p *Poller) Close() {
	p.mu.Lock()
	p.stopLocked()
	p.cancel()
	p.mu.Unlock()

	p.wg.Wait()
}

func (p *Poller) stopLocked() {
	if p.active == nil {
		return
	}
	close(p.active.stop)
	p.active = nil
}

func (p *Poller) run(s *schedule) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			if done := p.tick(s); done {
				return
			}
		}
	}
}

// tick runs one query and applies it if s is still the active schedule.
// It reports whether the schedule is over.
func (p *Poller) tick(s *schedule) bool {
	select {
	case <-s.stop:
		return true
	default:
	}

	status, fetchErr := p.fetcher.JobStatus(p.ctx, s.jobID)

	p.mu.Lock()
	if p.active == nil || p.active.generation != s.generation {
		p.mu.Unlock()
		slog.Debug("discarding status from superseded schedule",
			slog.String("job_id", s.jobID),
			slog.Uint64("generation", s.generation),
		)
		return true
	}

	var (
		job  domain.Job
		err  error
		done bool
	)
	if fetchErr == nil {
		job, err = p.tracker.Replace(s.jobID, status)
		done = err != nil || status.OverallStatus.IsTerminal()
	} else {
		err = fetchErr
		done = true
	}
	if err != nil {
		if errors.Is(err, ErrStaleJob) {
			job = p.tracker.Current()
		} else {
			job, _ = p.tracker.Fail(s.jobID, err)
		}
	}
	if done {
		p.stopLocked()
	}
	p.mu.Unlock()

	if err != nil {
		slog.Warn("polling stopped", slog.String("job_id", s.jobID), slog.String("error", err.Error()))
	} else if done {
		slog.Info("job finished", slog.String("job_id", s.jobID), slog.String("status", string(job.OverallStatus)))
	}
	if p.onUpdate != nil {
		p.onUpdate(job, err)
	}
	return done
}
