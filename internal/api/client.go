// Package api is the HTTP client of the remote analysis service.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"channel-analytics/internal/config"
	"channel-analytics/internal/domain"
)

const (
	loginPath      = "auth/login"
	authStatusPath = "auth/status"
	analyzePath    = "analyze"
	statusPath     = "status"

	requestIDHeader = "X-Request-ID"
	maxBodyBytes    = 1 << 20
)

// Operation names used in TransportError and logs.
const (
	OpLogin      = "request login url"
	OpAuthStatus = "check auth status"
	OpAnalyze    = "submit analysis"
	OpJobStatus  = "poll job status"
)

// Client calls the analysis service.
type Client struct {
	baseURL   *url.URL
	client    *http.Client
	requestID func() string
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.client = hc
		}
	}
}

// New creates a client for the service at baseURL (scheme and host required,
// an optional path prefix is kept).
func New(baseURL string, opts ...Option) (*Client, error) {
	parsed, err := ParseBaseURL(baseURL)
	if err != nil {
		return nil, err
	}

	c := &Client{
		baseURL:   parsed,
		client:    &http.Client{Timeout: config.RequestTimeout},
		requestID: func() string { return uuid.NewString()[:8] },
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// ParseBaseURL validates a service base URL.
func ParseBaseURL(raw string) (*url.URL, error) {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("parse service url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("service url %q must use http or https", raw)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("service url %q has no host", raw)
	}
	parsed.Path = strings.TrimRight(parsed.Path, "/")
	parsed.RawQuery = ""
	parsed.Fragment = ""
	return parsed, nil
}

// BaseURL returns the normalized service URL.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// LoginURL asks the service for the handshake entry point.
func (c *Client) LoginURL(ctx context.Context) (string, error) {
	var resp loginResponse
	if err := c.do(ctx, OpLogin, http.MethodGet, loginPath, "", nil, &resp); err != nil {
		return "", err
	}

	authURL := strings.TrimSpace(resp.AuthURL)
	if _, err := url.ParseRequestURI(authURL); err != nil {
		return "", &domain.TransportError{Op: OpLogin, StatusCode: http.StatusOK, Err: errors.New("response has no valid auth_url")}
	}
	return authURL, nil
}

// AuthStatus reports whether the service accepts token.
func (c *Client) AuthStatus(ctx context.Context, token string) (bool, error) {
	var resp authStatusResponse
	if err := c.do(ctx, OpAuthStatus, http.MethodGet, authStatusPath, token, nil, &resp); err != nil {
		return false, err
	}
	if resp.Authenticated == nil {
		return false, &domain.TransportError{Op: OpAuthStatus, StatusCode: http.StatusOK, Err: errors.New("response has no authenticated field")}
	}
	return *resp.Authenticated, nil
}

// Analyze submits urls as one job.
func (c *Client) Analyze(ctx context.Context, token string, urls []string) (domain.JobHandle, error) {
	var resp analyzeResponse
	if err := c.do(ctx, OpAnalyze, http.MethodPost, analyzePath, token, analyzeRequest{URLs: urls}, &resp); err != nil {
		return domain.JobHandle{}, err
	}

	handle := domain.JobHandle{JobID: strings.TrimSpace(resp.JobID)}
	if handle.JobID == "" {
		return domain.JobHandle{}, &domain.TransportError{Op: OpAnalyze, StatusCode: http.StatusOK, Err: errors.New("response has no job_id")}
	}
	if resp.TaskNumber != nil {
		handle.TaskNumber = *resp.TaskNumber
	}
	return handle, nil
}

// JobStatus fetches the full status snapshot of a job.
func (c *Client) JobStatus(ctx context.Context, jobID string) (domain.JobStatus, error) {
	if strings.TrimSpace(jobID) == "" {
		return domain.JobStatus{}, &domain.TransportError{Op: OpJobStatus, Err: errors.New("empty job id")}
	}

	var resp statusResponse
	if err := c.do(ctx, OpJobStatus, http.MethodGet, statusPath+"/"+url.PathEscape(jobID), "", nil, &resp); err != nil {
		return domain.JobStatus{}, err
	}

	status, err := resp.toDomain()
	if err != nil {
		return domain.JobStatus{}, &domain.TransportError{Op: OpJobStatus, StatusCode: http.StatusOK, Err: err}
	}
	return status, nil
}

// do issues one JSON request. Every failure is returned as *domain.TransportError.
func (c *Client) do(ctx context.Context, op, method, path, token string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return &domain.TransportError{Op: op, Err: fmt.Errorf("encode request: %w", err)}
		}
		reader = bytes.NewReader(raw)
	}

	target := c.baseURL.JoinPath(path)
	req, err := http.NewRequestWithContext(ctx, method, target.String(), reader)
	if err != nil {
		return &domain.TransportError{Op: op, Err: err}
	}
	requestID := c.requestID()
	req.Header.Set("Accept", "application/json")
	req.Header.Set(requestIDHeader, requestID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	started := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		slog.DebugContext(ctx, "service request failed",
			slog.String("op", op),
			slog.String("request_id", requestID),
			slog.String("error", err.Error()))
		return &domain.TransportError{Op: op, Err: err}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	slog.DebugContext(ctx, "service request done",
		slog.String("op", op),
		slog.String("request_id", requestID),
		slog.Int("status", resp.StatusCode),
		slog.Duration("elapsed", time.Since(started)))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return &domain.TransportError{Op: op, StatusCode: resp.StatusCode}
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(out); err != nil {
		return &domain.TransportError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func errUnknownStatus(field, value string) error {
	return fmt.Errorf("unknown %s %q", field, value)
}
