package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/teemow/slotkeeper/internal/digest"
	"github.com/teemow/slotkeeper/internal/logging"
)

func newDigestCmd() *cobra.Command {
	var (
		configPath string
		debugMode  bool
		once       bool
	)

	cmd := &cobra.Command{
		Use:   "digest",
		Short: "Report underutilized days across all calendars",
		Long: `Analyze the next business days of every calendar and report the days
whose confirmed appointments stay below the configured busy-hours threshold.

With --once the digest runs a single time and prints the reports as JSON.
Otherwise it runs on the cron schedule configured in digest.schedule
(DIGEST_SCHEDULE) until interrupted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDigest(configPath, debugMode, once)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to a YAML configuration file (default: $SLOTKEEPER_CONFIG)")
	cmd.Flags().BoolVar(&debugMode, "debug", false, "Enable debug logging")
	cmd.Flags().BoolVar(&once, "once", false, "Run the digest once and print the reports")

	return cmd
}

func runDigest(configPath string, debugMode, once bool) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, logger, err := loadConfig(configPath, debugMode)
	if err != nil {
		return err
	}

	rt, err := newRuntime(ctx, cfg, logger, nil)
	if err != nil {
		return err
	}
	defer rt.Close()

	runner := digest.NewRunner(rt.scheduler, cfg.Digest,
		digest.WithLogger(logging.NewSlogAdapter(logging.WithComponent(logger, "digest"))),
		digest.WithLocation(cfg.Scheduling.Location()),
	)

	if once {
		reports, runErr := runner.RunOnce(ctx)
		if reports == nil && runErr != nil {
			return runErr
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(reports); err != nil {
			return err
		}
		return runErr
	}

	if cfg.Digest.Schedule == "" {
		return fmt.Errorf("no digest schedule configured (set digest.schedule or DIGEST_SCHEDULE, or use --once)")
	}
	if err := runner.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	return runner.Stop(context.Background())
}
