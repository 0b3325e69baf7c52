// Package commands is the portfolio-grader command line.
package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/jupark12/portfolio-grader/config"
	"github.com/jupark12/portfolio-grader/telemetry"
	"github.com/spf13/cobra"
)

var (
	configPath string
	cfg        config.Config
)

var rootCmd = &cobra.Command{
	Use:   "portfolio-grader",
	Short: "portfolio-grader scrapes designer portfolios and scores their case studies.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
		telemetry.SetupLogging(os.Stderr, cfg.SlogLevel(), cfg.LogFormat)
		return nil
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.json5", "Path to the JSON5 config file.")
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
