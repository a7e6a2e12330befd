package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"sigs.k8s.io/yaml"

	"channel-analytics/internal/domain"
)

// render writes v in the --output format; text uses the given printer.
func render[T any](w io.Writer, v T, text func(io.Writer, T) error) error {
	switch flagOutput {
	case "", "text":
		return text(w, v)
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		data, err := yaml.Marshal(v)
		if err != nil {
			return err
		}
		_, err = w.Write(data)
		return err
	default:
		return fmt.Errorf("unsupported output format %q", flagOutput)
	}
}

func renderAuth(w io.Writer, s domain.AuthSnapshot) error {
	if s.Reason != "" {
		_, err := fmt.Fprintf(w, "%s (%s)\n", s.State, s.Reason)
		return err
	}
	_, err := fmt.Fprintln(w, s.State)
	return err
}

func renderJob(w io.Writer, job domain.Job) error {
	status := string(job.OverallStatus)
	if status == "" {
		status = "submitted"
	}
	fmt.Fprintf(w, "job %s: %s\n", job.ID, status)
	if job.TaskNumber > 0 {
		fmt.Fprintf(w, "task number: %d\n", job.TaskNumber)
	}
	if job.Error != "" {
		fmt.Fprintf(w, "error: %s\n", job.Error)
	}
	if len(job.Tasks) == 0 {
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TASK\tSTATUS\tRESULT")
	for _, task := range job.Tasks {
		detail := task.ResultLink
		if task.Status == domain.TaskStateFailed {
			detail = task.Error
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\n", task.TaskNumber, task.Status, detail)
	}
	return tw.Flush()
}

func renderDiagnostics(w io.Writer, report domain.DiagnosticReport) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, item := range report.Items {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", item.Status, item.Name, item.Message)
		if item.Status == domain.DiagnosticStatusFail && item.Hint != "" {
			fmt.Fprintf(tw, "\t\t%s\n", item.Hint)
		}
	}
	return tw.Flush()
}
