package diagnostics

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"channel-analytics/internal/config"
	"channel-analytics/internal/domain"
)

// Checker validates the service endpoint and local resources the client needs.
type Checker struct {
	probe      func(ctx context.Context, rawURL string) error
	mkdirAll   func(string, os.FileMode) error
	createTemp func(string, string) (*os.File, error)
	remove     func(string) error
	listen     func(network, address string) (net.Listener, error)
}

// NewChecker builds a checker using real OS and network dependencies.
func NewChecker() *Checker {
	return &Checker{
		probe:      httpProbe,
		mkdirAll:   os.MkdirAll,
		createTemp: os.CreateTemp,
		remove:     os.Remove,
		listen:     net.Listen,
	}
}

// Run executes all startup checks concurrently and returns a combined report
// in a fixed order.
func (c *Checker) Run(ctx context.Context, settings domain.Settings) domain.DiagnosticReport {
	checks := []func(context.Context) domain.DiagnosticItem{
		func(context.Context) domain.DiagnosticItem { return c.checkAPIURL(settings.APIBaseURL) },
		func(ctx context.Context) domain.DiagnosticItem { return c.checkAPIReachable(ctx, settings.APIBaseURL) },
		func(context.Context) domain.DiagnosticItem { return c.checkCredentialDir(settings.CredentialPath) },
		func(context.Context) domain.DiagnosticItem { return c.checkCallbackAddr(settings.CallbackAddr) },
	}

	items := make([]domain.DiagnosticItem, len(checks))
	g, gctx := errgroup.WithContext(ctx)
	for i, check := range checks {
		g.Go(func() error {
			items[i] = check(gctx)
			return nil
		})
	}
	_ = g.Wait()

	hasFailures := false
	for _, item := range items {
		if item.Status == domain.DiagnosticStatusFail {
			hasFailures = true
			break
		}
	}

	return domain.DiagnosticReport{
		GeneratedAt: time.Now().UTC(),
		HasFailures: hasFailures,
		Items:       items,
	}
}

// checkAPIURL validates the configured service base URL.
func (c *Checker) checkAPIURL(raw string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{
		ID:   domain.DiagnosticAPIURL,
		Name: "Service URL",
	}

	if problem := serviceURLProblem(raw); problem != "" {
		item.Status = domain.DiagnosticStatusFail
		item.Message = problem
		item.Hint = "Set an absolute http(s) URL such as " + config.DefaultAPIBaseURL + "."
		return item
	}

	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("Using %s", raw)
	return item
}

// checkAPIReachable performs one round trip to the service. Any HTTP
// response counts as reachable.
func (c *Checker) checkAPIReachable(ctx context.Context, raw string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{
		ID:   domain.DiagnosticAPIReachable,
		Name: "Service reachable",
	}

	if serviceURLProblem(raw) != "" {
		item.Status = domain.DiagnosticStatusFail
		item.Message = "Skipped: the service URL is invalid."
		item.Hint = "Fix the service URL first."
		return item
	}

	if err := c.probe(ctx, raw); err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Cannot reach %s", raw)
		item.Hint = "Start the analysis service or check the URL and your network connection."
		return item
	}

	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("%s responded", raw)
	return item
}

// checkCredentialDir validates the credential directory exists and is writable.
func (c *Checker) checkCredentialDir(credentialPath string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{
		ID:   domain.DiagnosticCredentialDir,
		Name: "Credential directory",
	}

	if strings.TrimSpace(credentialPath) == "" {
		item.Status = domain.DiagnosticStatusFail
		item.Message = "Credential path is empty."
		item.Hint = "Set a file path where the sign-in token can be stored."
		return item
	}

	dir := filepath.Dir(credentialPath)
	if err := c.mkdirAll(dir, 0o700); err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Cannot create credential directory: %s", dir)
		item.Hint = "Choose a writable location or adjust filesystem permissions."
		return item
	}

	tmpFile, err := c.createTemp(dir, ".write-check-*")
	if err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Credential directory is not writable: %s", dir)
		item.Hint = "Choose a writable directory for the credential file."
		return item
	}

	tmpPath := tmpFile.Name()
	_ = tmpFile.Close()
	_ = c.remove(tmpPath)

	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("Writable directory: %s", dir)
	return item
}

// checkCallbackAddr verifies the loopback address for the CLI sign-in
// channel can be bound.
func (c *Checker) checkCallbackAddr(addr string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{
		ID:   domain.DiagnosticCallbackAddr,
		Name: "Sign-in callback address",
	}

	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Invalid address: %q", addr)
		item.Hint = "Use host:port, e.g. " + config.DefaultCallbackAddr + "."
		return item
	}
	if ip := net.ParseIP(host); host != "localhost" && (ip == nil || !ip.IsLoopback()) {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Address is not loopback: %s", addr)
		item.Hint = "The sign-in channel must only listen on a loopback address."
		return item
	}

	ln, err := c.listen("tcp", addr)
	if err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Cannot listen on %s", addr)
		item.Hint = "Another program is using this port; pick a different callback address."
		return item
	}
	_ = ln.Close()

	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("Available: %s", addr)
	return item
}

// serviceURLProblem describes what is wrong with raw, or returns "".
func serviceURLProblem(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return "Service URL is empty."
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Sprintf("Service URL is not an absolute http(s) URL: %s", raw)
	}
	return ""
}

func httpProbe(ctx context.Context, rawURL string) error {
	ctx, cancel := context.WithTimeout(ctx, config.ReachabilityTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	return resp.Body.Close()
}

// NewCheckerForTests creates checker with injectable dependencies.
func NewCheckerForTests(
	probe func(context.Context, string) error,
	mkdirAll func(string, os.FileMode) error,
	createTemp func(string, string) (*os.File, error),
	remove func(string) error,
	listen func(string, string) (net.Listener, error),
) *Checker {
	return &Checker{
		probe:      probe,
		mkdirAll:   mkdirAll,
		createTemp: createTemp,
		remove:     remove,
		listen:     listen,
	}
}
