package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jupark12/portfolio-grader/models"
	"github.com/jupark12/portfolio-grader/telemetry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

var analyzeResume string

func init() {
	analyzeCmd.Flags().StringVar(&analyzeResume, "resume", "", "Resume PDF to attach to the job.")
	rootCmd.AddCommand(analyzeCmd)
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze <portfolio-url> [--resume <path/to/resume.pdf>]",
	Short: "Runs one analysis job in the foreground and prints its timings.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		shutdownTracing, err := telemetry.SetupTracing(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.OTLPEndpoint)
		if err != nil {
			return err
		}
		defer shutdownTracing(context.WithoutCancel(ctx))

		a, err := newApp(ctx, cfg, prometheus.NewRegistry())
		if err != nil {
			return err
		}
		defer a.Close()

		job := &models.Job{PortfolioURL: args[0]}
		if analyzeResume != "" {
			if _, err := os.Stat(analyzeResume); err != nil {
				return fmt.Errorf("resume: %w", err)
			}
			job.ResumeFile = analyzeResume
			job.ResumeName = filepath.Base(analyzeResume)
		}
		job, err = a.board.Enqueue(ctx, job)
		if err != nil {
			return err
		}

		// The job runs here, not on a worker, so take it off the queue.
		if _, err := a.board.Dequeue("cli"); err != nil {
			return err
		}
		report, runErr := a.coordinator.Run(ctx, job)

		final, err := a.board.GetStatus(ctx, job.ID)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "job %s %s: %s\n", final.ID, final.Status, final.Message)
		if report != nil {
			renderTimings(cmd.OutOrStdout(), report)
		}
		if url, ok := final.Result[models.ResultTimeReportURL].(string); ok {
			fmt.Fprintln(cmd.OutOrStdout(), "time report:", url)
		}
		return runErr
	},
}

// renderTimings prints one row per stage and one per case study.
func renderTimings(w io.Writer, report *models.TimingReport) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"Stage", "Status", "Scrape", "Screenshot", "Analyze", "Persist", "Total"})

	s := report.Stages
	t.AppendRow(table.Row{"resume", "", "", "", "", "", round(s.Resume)})
	t.AppendRow(table.Row{"portfolio", "", round(s.Scrape), "", round(s.Analyze), round(s.Persist), round(s.Scrape + s.Analyze + s.Persist)})
	t.AppendRow(table.Row{"discovery", fmt.Sprintf("%d found", report.ProjectsFound), "", "", "", "", round(s.Discovery)})
	t.AppendSeparator()

	for _, p := range report.Projects {
		status := string(p.Status)
		if p.FailedStage != "" {
			status += " (" + p.FailedStage + ")"
		}
		pt := p.Timings
		t.AppendRow(table.Row{p.URL, status, round(pt.Scrape), round(pt.Screenshot), round(pt.Analyze), round(pt.Persist), round(p.Total)})
	}
	t.AppendSeparator()
	t.AppendFooter(table.Row{
		"total",
		fmt.Sprintf("%d/%d analyzed", report.ProjectsAnalyzed, report.ProjectsFound),
		"", "", "", "",
		round(report.Total),
	})

	t.SetStyle(table.StyleRounded)
	t.Render()

	for _, e := range report.Suppressed {
		fmt.Fprintf(w, "skipped %s %s: %s\n", e.Stage, e.URL, e.Error)
	}
}

func round(d time.Duration) string {
	return d.Round(time.Millisecond).String()
}
