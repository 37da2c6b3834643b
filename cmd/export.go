package cmd

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/jobsieve/internal/export"
	"github.com/spigell/jobsieve/internal/jobs"
	"github.com/spigell/jobsieve/internal/storage"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export persisted candidates as json or csv",
	Run: func(cmd *cobra.Command, _ []string) {
		exportCandidates(cmd)
	},
}

func init() {
	rootCmd.AddCommand(exportCmd)

	exportCmd.Flags().StringP("format", "f", "json", "export format: json or csv")
	exportCmd.Flags().StringP("output", "o", "", "write to a file instead of stdout")
	exportCmd.Flags().String("platform", "", "only candidates of this platform")
	exportCmd.Flags().String("status", "", "only candidates with this status")
	exportCmd.Flags().Float64("min-score", 0, "only candidates with at least this final score")
	exportCmd.Flags().Int("limit", 0, "at most this many candidates, best first")
}

func exportCandidates(cmd *cobra.Command) {
	ctx := context.Background()

	logger := newLogger("export")
	defer logger.Sync()

	config := mustConfig(logger)

	flags := cmd.Flags()
	rawFormat, _ := flags.GetString("format")
	format, err := export.ParseFormat(rawFormat)
	if err != nil {
		logger.Fatal("parsing export format", zap.Error(err))
	}

	opts := storage.ListOptions{}
	opts.Platform, _ = flags.GetString("platform")
	opts.MinScore, _ = flags.GetFloat64("min-score")
	opts.Limit, _ = flags.GetInt("limit")
	if raw, _ := flags.GetString("status"); raw != "" {
		if opts.Status, err = jobs.ParseStatus(raw); err != nil {
			logger.Fatal("parsing status", zap.Error(err))
		}
	}

	b, err := openBackend(ctx, config, logger)
	if err != nil {
		logger.Fatal("opening storage", zap.Error(err))
	}
	defer b.Close()

	stored, err := b.store.List(ctx, opts)
	if err != nil {
		logger.Fatal("listing candidates", zap.Error(err))
	}

	output, _ := flags.GetString("output")
	if err := writeExport(export.StoredRows(stored), format, output); err != nil {
		logger.Fatal("exporting candidates", zap.Error(err))
	}
	logger.Debug("exported candidates", zap.Int("count", len(stored)))
}
