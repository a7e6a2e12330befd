package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"channel-analytics/internal/domain"
)

// TokenSource returns the stored credential, empty when absent.
type TokenSource interface {
	Get() (string, error)
}

// Submitter sends an analysis request to the remote service.
type Submitter interface {
	Analyze(ctx context.Context, token string, urls []string) (domain.JobHandle, error)
}

// ParseRequest splits raw multi-line input into the ordered, trimmed,
// non-empty lines that make up a job request.
func ParseRequest(raw string) []string {
	var urls []string
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		urls = append(urls, line)
	}
	return urls
}

// Controller turns user input into a submitted, polled job.
type Controller struct {
	tokens    TokenSource
	submitter Submitter
	tracker   *Tracker
	poller    *Poller
}

// NewController wires a controller around the session's tracker and poller.
func NewController(tokens TokenSource, submitter Submitter, tracker *Tracker, poller *Poller) *Controller {
	return &Controller{
		tokens:    tokens,
		submitter: submitter,
		tracker:   tracker,
		poller:    poller,
	}
}

// Submit validates raw, submits it with the stored credential and starts
// polling the returned job. It fails with *domain.ValidationError on empty
// input and *domain.AuthError without a credential, both before any request;
// remote failures are *domain.TransportError.
func (c *Controller) Submit(ctx context.Context, raw string) (domain.JobHandle, error) {
	urls := ParseRequest(raw)
	if len(urls) == 0 {
		return domain.JobHandle{}, &domain.ValidationError{Reason: "enter at least one channel URL"}
	}

	token, err := c.tokens.Get()
	if err != nil || token == "" {
		return domain.JobHandle{}, &domain.AuthError{Reason: "sign in before submitting"}
	}

	if err := c.tracker.Prepare(); err != nil {
		return domain.JobHandle{}, err
	}
	c.poller.Stop()

	handle, err := c.submitter.Analyze(ctx, token, urls)
	if err != nil {
		_, _ = c.tracker.Fail("", err)
		return domain.JobHandle{}, fmt.Errorf("submit analysis: %w", err)
	}
	if err := c.tracker.Start(handle); err != nil {
		_, _ = c.tracker.Fail("", err)
		return domain.JobHandle{}, err
	}

	c.poller.Start(handle.JobID)
	slog.InfoContext(ctx, "analysis submitted",
		slog.String("job_id", handle.JobID),
		slog.Int("urls", len(urls)),
	)
	return handle, nil
}

// Follow starts tracking an already submitted job by id.
func (c *Controller) Follow(jobID string) error {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return &domain.ValidationError{Reason: "job id is required"}
	}
	if err := c.tracker.Prepare(); err != nil {
		return err
	}
	c.poller.Stop()
	if err := c.tracker.Start(domain.JobHandle{JobID: jobID}); err != nil {
		_, _ = c.tracker.Fail("", err)
		return err
	}
	c.poller.Start(jobID)
	return nil
}

// Reset stops polling and discards the current job.
func (c *Controller) Reset() {
	c.poller.Stop()
	c.tracker.Reset()
}
