package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/pkg/browser"
	"github.com/spf13/cobra"

	"channel-analytics/internal/auth"
	"channel-analytics/internal/bootstrap"
	"channel-analytics/internal/config"
	"channel-analytics/internal/credential"
	"channel-analytics/internal/diagnostics"
	"channel-analytics/internal/domain"
	"channel-analytics/internal/jobs"
	"channel-analytics/internal/log"
)

var (
	flagLoginTimeout time.Duration
	flagSubmitFile   string
	flagWait         bool
	flagOpen         bool
	flagOutput       string
)

func init() {
	loginCmd.Flags().DurationVar(&flagLoginTimeout, "timeout", config.LoginWaitTimeout, "how long to wait for the sign-in to complete")

	submitCmd.Flags().StringVarP(&flagSubmitFile, "file", "f", "", "read channel URLs from a file, - for stdin")
	submitCmd.Flags().BoolVar(&flagWait, "wait", false, "poll until the job finishes")
	jobCmd.Flags().BoolVar(&flagWait, "wait", false, "poll until the job finishes")
	for _, cmd := range []*cobra.Command{submitCmd, jobCmd} {
		cmd.Flags().BoolVar(&flagOpen, "open", false, "open the result links in the browser")
	}

	for _, cmd := range []*cobra.Command{statusCmd, submitCmd, jobCmd, diagnoseCmd} {
		cmd.Flags().StringVarP(&flagOutput, "output", "o", "text", "output format: text, json or yaml")
	}
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "check whether the stored sign-in is still valid",
	Args:  cobra.NoArgs,
	RunE:  doStatus,
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "sign in through the browser",
	Args:  cobra.NoArgs,
	RunE:  doLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "forget the stored sign-in",
	Args:  cobra.NoArgs,
	RunE:  doLogout,
}

var submitCmd = &cobra.Command{
	Use:   "submit [url...]",
	Short: "submit channel URLs for analysis",
	RunE:  doSubmit,
}

var jobCmd = &cobra.Command{
	Use:   "job <job_id>",
	Short: "show the status of a submitted job",
	Args:  cobra.ExactArgs(1),
	RunE:  doJob,
}

var diagnoseCmd = &cobra.Command{
	Use:   "diagnose",
	Short: "check the service URL and local resources",
	Args:  cobra.NoArgs,
	RunE:  doDiagnose,
}

// openSession builds a session for one command. onEvent may be nil.
func openSession(onEvent func(jobs.Event)) (*bootstrap.Session, error) {
	opts := bootstrap.SessionOptions{
		Settings: settings,
		Opener:   auth.OpenerFunc(openInBrowser),
		OnEvent:  onEvent,
	}
	if flagEphemeral {
		opts.Credentials = credential.NewMemoryStore("")
	}
	return bootstrap.NewSession(opts)
}

func openInBrowser(_ context.Context, prompt domain.LoginPrompt) error {
	fmt.Fprintf(os.Stderr, "Opening %s\n", prompt.URL)
	return browser.OpenURL(prompt.URL)
}

func doStatus(cmd *cobra.Command, _ []string) error {
	ctx := commandContext(cmd, "status")
	session, err := openSession(nil)
	if err != nil {
		return err
	}
	defer session.Close()

	_, err = session.Start(ctx)
	if werr := render(cmd.OutOrStdout(), session.Auth.State(), renderAuth); werr != nil {
		return werr
	}
	return err
}

func doLogin(cmd *cobra.Command, _ []string) error {
	ctx := commandContext(cmd, "login")

	changed := make(chan struct{}, 1)
	session, err := openSession(func(event jobs.Event) {
		if event.Type != jobs.EventTypeAuth {
			return
		}
		select {
		case changed <- struct{}{}:
		default:
		}
	})
	if err != nil {
		return err
	}
	defer session.Close()

	channel := auth.NewChannelServer(session.Settings.CallbackAddr, session.Origins)
	if err := channel.Start(); err != nil {
		return err
	}
	defer channel.Close()
	session.Auth.Listen(channel.Messages())

	if _, err := session.Auth.Login(ctx); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Waiting for sign-in on %s\n", channel.URL())

	ctx, cancel := context.WithTimeout(ctx, flagLoginTimeout)
	defer cancel()
	for !session.Auth.IsAuthenticated() {
		select {
		case <-ctx.Done():
			return fmt.Errorf("sign-in not completed: %w", ctx.Err())
		case <-changed:
		}
	}

	fmt.Fprintln(cmd.OutOrStdout(), "Signed in.")
	return nil
}

func doLogout(cmd *cobra.Command, _ []string) error {
	ctx := commandContext(cmd, "logout")
	session, err := openSession(nil)
	if err != nil {
		return err
	}
	defer session.Close()

	if err := session.Auth.Logout(ctx); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Signed out.")
	return nil
}

func doSubmit(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd, "submit")

	raw, err := submitInput(cmd.InOrStdin(), args)
	if err != nil {
		return err
	}

	session, err := openSession(nil)
	if err != nil {
		return err
	}
	defer session.Close()

	state, err := session.Start(ctx)
	if err != nil {
		return err
	}
	if state != domain.AuthStateAuthenticated {
		return &domain.AuthError{Reason: "not signed in, run analytics login"}
	}

	if _, err := session.Submit(ctx, raw); err != nil {
		return err
	}
	return finishJob(ctx, cmd.OutOrStdout(), session)
}

func doJob(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd, "job")
	session, err := openSession(nil)
	if err != nil {
		return err
	}
	defer session.Close()

	if !flagWait {
		status, err := session.API.JobStatus(ctx, args[0])
		if err != nil {
			return err
		}
		job := domain.Job{ID: args[0], OverallStatus: status.OverallStatus, Tasks: status.Tasks}
		if err := render(cmd.OutOrStdout(), job, renderJob); err != nil {
			return err
		}
		return openResults(job)
	}

	if err := session.Follow(args[0]); err != nil {
		return err
	}
	return finishJob(ctx, cmd.OutOrStdout(), session)
}

func doDiagnose(cmd *cobra.Command, _ []string) error {
	ctx := commandContext(cmd, "diagnose")
	report := diagnostics.NewChecker().Run(ctx, config.Normalize(settings))
	if err := render(cmd.OutOrStdout(), report, renderDiagnostics); err != nil {
		return err
	}
	if report.HasFailures {
		return errors.New("diagnostics reported failures")
	}
	return nil
}

// finishJob prints the tracked job, after waiting for it with --wait.
func finishJob(ctx context.Context, w io.Writer, session *bootstrap.Session) error {
	job := session.Tracker.Current()
	if flagWait {
		var err error
		job, err = session.Tracker.Wait(ctx)
		if err != nil {
			return err
		}
	}
	if err := render(w, job, renderJob); err != nil {
		return err
	}
	if job.Error != "" {
		return errors.New(job.Error)
	}
	return openResults(job)
}

func openResults(job domain.Job) error {
	if !flagOpen {
		return nil
	}
	for _, link := range job.ResultLinks() {
		if err := browser.OpenURL(link); err != nil {
			return fmt.Errorf("open %s: %w", link, err)
		}
	}
	return nil
}

// submitInput joins positional URLs or reads them from --file.
func submitInput(stdin io.Reader, args []string) (string, error) {
	switch {
	case flagSubmitFile == "-":
		data, err := io.ReadAll(stdin)
		return string(data), err
	case flagSubmitFile != "":
		data, err := os.ReadFile(flagSubmitFile)
		if err != nil {
			return "", fmt.Errorf("read %s: %w", flagSubmitFile, err)
		}
		return string(data), nil
	default:
		return strings.Join(args, "\n"), nil
	}
}

func commandContext(cmd *cobra.Command, name string) context.Context {
	attrs := slog.Group("analytics",
		slog.String("cmd", name),
		slog.Int("pid", os.Getpid()),
	)
	return log.ContextAttrs(cmd.Context(), attrs)
}
