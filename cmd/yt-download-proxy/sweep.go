package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ytget/yt-download-proxy/internal/cleanup"
	"github.com/ytget/yt-download-proxy/internal/config"
	"github.com/ytget/yt-download-proxy/internal/logging"
)

func newSweepCommand() *cobra.Command {
	var minAge time.Duration

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Remove stale entries from the temp directory once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(commandContext(cmd))
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("min-age") {
				cfg.SweepMinAge = minAge
			}

			logger := logging.Setup(cfg.LogLevel, cfg.LogFormat)
			// No service is running, so no directory belongs to an active job
			sweeper := cleanup.NewSweeper(cfg.TempDir, cfg.SweepMinAge, func(string) bool { return false }, logger)

			removed, err := sweeper.Sweep()
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d entries from %s\n", removed, cfg.TempDir)
			return err
		},
	}

	cmd.Flags().DurationVar(&minAge, "min-age", 0, "Only remove entries older than this duration (default SWEEP_MIN_AGE)")
	return cmd
}
