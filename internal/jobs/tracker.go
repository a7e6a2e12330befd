package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"channel-analytics/internal/domain"
)

// ErrJobAlreadyRunning is returned when a submission starts while a job is loading.
var ErrJobAlreadyRunning = errors.New("job already running")

// ErrStaleJob is returned when an update targets a job that is no longer tracked.
var ErrStaleJob = errors.New("job no longer tracked")

// Tracker owns the single in-memory job snapshot of a session.
type Tracker struct {
	mu      sync.RWMutex
	current domain.Job
	changed chan struct{}
}

// NewTracker creates a tracker with no job.
func NewTracker() *Tracker {
	return &Tracker{changed: make(chan struct{})}
}

// Prepare discards the previous job and marks a submission as loading.
func (t *Tracker) Prepare() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.current.Loading {
		return ErrJobAlreadyRunning
	}
	t.current = domain.Job{Loading: true}
	t.notifyLocked()
	return nil
}

// Start creates the client-side placeholder for an accepted job.
// It must follow Prepare.
func (t *Tracker) Start(handle domain.JobHandle) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if handle.JobID == "" {
		return errors.New("job id is required")
	}
	if !t.current.Loading || t.current.ID != "" {
		return fmt.Errorf("start job %s: no prepared submission", handle.JobID)
	}

	t.current = domain.Job{
		ID:         handle.JobID,
		TaskNumber: handle.TaskNumber,
		Loading:    true,
	}
	t.notifyLocked()
	return nil
}

// Replace swaps in a full status snapshot for jobID. Snapshots are never
// merged. A terminal overall status ends loading; nothing replaces a
// terminal snapshot.
func (t *Tracker) Replace(jobID string, status domain.JobStatus) (domain.Job, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if jobID == "" || t.current.ID != jobID {
		return t.current.Clone(), ErrStaleJob
	}
	if !isValidTransition(t.current.OverallStatus, status.OverallStatus) {
		return t.current.Clone(), fmt.Errorf("invalid transition: %q -> %q", t.current.OverallStatus, status.OverallStatus)
	}

	t.current.OverallStatus = status.OverallStatus
	t.current.Tasks = append([]domain.TaskStatus(nil), status.Tasks...)
	t.current.Loading = !status.OverallStatus.IsTerminal()
	t.current.Error = ""
	t.notifyLocked()
	return t.current.Clone(), nil
}

// Fail records err on jobID and ends loading. An empty jobID targets a
// submission that never received an id.
func (t *Tracker) Fail(jobID string, err error) (domain.Job, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.current.ID != jobID {
		return t.current.Clone(), ErrStaleJob
	}
	t.current.Loading = false
	if err != nil {
		t.current.Error = err.Error()
	}
	t.notifyLocked()
	return t.current.Clone(), nil
}

// Current returns a snapshot of the current job.
func (t *Tracker) Current() domain.Job {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.current.Clone()
}

// Reset discards the job, e.g. once the user acknowledged a terminal result.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.current = domain.Job{}
	t.notifyLocked()
}

// IsLoading reports whether a submission or poll is outstanding.
func (t *Tracker) IsLoading() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.current.Loading
}

// Wait blocks until the job stops loading or ctx is done.
func (t *Tracker) Wait(ctx context.Context) (domain.Job, error) {
	for {
		t.mu.RLock()
		job, changed := t.current.Clone(), t.changed
		t.mu.RUnlock()

		if !job.Loading {
			return job, nil
		}
		select {
		case <-ctx.Done():
			return job, ctx.Err()
		case <-changed:
		}
	}
}

// notifyLocked wakes Wait callers. Must be called with t.mu held.
func (t *Tracker) notifyLocked() {
	close(t.changed)
	t.changed = make(chan struct{})
}

// isValidTransition enforces the overall status edges. The placeholder has
// no status yet; terminal statuses have no successors.
func isValidTransition(from, to domain.OverallStatus) bool {
	if !to.Valid() {
		return false
	}
	switch from {
	case "", domain.OverallStatusProcessing:
		return true
	default:
		return false
	}
}
