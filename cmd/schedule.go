package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/jobsieve/internal/scheduler"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run every configured search on a cron schedule until interrupted",
	Run: func(cmd *cobra.Command, _ []string) {
		schedule(cmd)
	},
}

func init() {
	rootCmd.AddCommand(scheduleCmd)

	scheduleCmd.Flags().String("cron", "", "cron spec overriding schedule.cron from the config")
	scheduleCmd.Flags().Bool("skip-first", false, "wait for the first tick instead of running immediately")
}

func schedule(cmd *cobra.Command) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := newLogger("schedule")
	defer logger.Sync()

	config := mustConfig(logger)

	spec := config.Schedule.Cron
	if flag, _ := cmd.Flags().GetString("cron"); flag != "" {
		spec = flag
	}

	b, err := openBackend(ctx, config, logger)
	if err != nil {
		logger.Fatal("opening storage", zap.Error(err))
	}
	defer b.Close()

	orchestrator, err := newOrchestrator(ctx, config, b, logger)
	if err != nil {
		logger.Fatal("preparing the pipeline", zap.Error(err))
	}

	s := scheduler.New(spec, func(ctx context.Context) error {
		summary, err := orchestrator.RunAllSearches(ctx)
		if summary != nil {
			logger.Info("scheduled run summary",
				zap.String("invocation_id", summary.InvocationID),
				zap.Int("final", summary.Final),
				zap.Int("failed", summary.Failed),
			)
		}
		return err
	}, logger)

	if skip, _ := cmd.Flags().GetBool("skip-first"); skip {
		s.RunOnStart = false
	}

	logger.Info("starting the jobsieve scheduler", zap.String("version", version), zap.String("cron", spec))
	if err := s.Run(ctx); err != nil {
		logger.Fatal("running the scheduler", zap.Error(err))
	}
}
