package commands

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/jupark12/portfolio-grader/config"
	"github.com/jupark12/portfolio-grader/resume"
	"github.com/jupark12/portfolio-grader/server"
	"github.com/jupark12/portfolio-grader/telemetry"
	"github.com/jupark12/portfolio-grader/worker"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Runs the HTTP API and the analysis workers.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		shutdownTracing, err := telemetry.SetupTracing(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.OTLPEndpoint)
		if err != nil {
			return err
		}
		defer shutdownTracing(context.WithoutCancel(ctx))

		a, err := newApp(ctx, cfg, prometheus.DefaultRegisterer)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.board.LoadJobs(ctx); err != nil {
			slog.Warn("failed to load existing jobs", "err", err)
		}

		opts := server.Options{
			Addr:        cfg.HTTPAddr,
			Board:       a.board,
			Store:       a.store,
			Docs:        a.docs,
			ParseResume: resume.ParseFile,
			UploadDir:   cfg.UploadDir,
			Metrics:     promhttp.Handler(),
		}
		if cfg.Storage.Backend == config.StorageLocal {
			opts.FilesDir = cfg.Storage.Dir
		}
		srv, err := server.NewServer(opts)
		if err != nil {
			return err
		}
		defer srv.Close()

		pool := worker.NewPool(cfg.Workers, a.board, a.coordinator)
		pool.Start(ctx)
		slog.Info("portfolio grader started", "workers", cfg.Workers, "addr", cfg.HTTPAddr)

		err = srv.Run(ctx)
		slog.Info("shutting down gracefully")
		stop()
		pool.Wait()
		return err
	},
}
