package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/jobsieve/internal/export"
	"github.com/spigell/jobsieve/internal/jobs"
	"github.com/spigell/jobsieve/internal/pipeline"
	"github.com/spigell/jobsieve/internal/storage"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run every configured search once",
	Run: func(cmd *cobra.Command, _ []string) {
		run(cmd)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().Bool("dry-run", false, "only report quota status per search, without calling platforms or writing anything")
	runCmd.Flags().String("export", "", "export candidates stored by this run: json or csv")
	runCmd.Flags().StringP("output", "o", "", "write the export to a file instead of stdout")
}

func run(cmd *cobra.Command) {
	ctx := context.Background()

	logger := newLogger("run")
	defer logger.Sync()

	config := mustConfig(logger)
	logger.Info("starting the jobsieve", zap.String("version", version))

	var format export.Format
	if flag := cmd.Flag("export").Value.String(); flag != "" {
		f, err := export.ParseFormat(flag)
		if err != nil {
			logger.Fatal("parsing export format", zap.Error(err))
		}
		format = f
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

	if dry, _ := cmd.Flags().GetBool("dry-run"); dry {
		previews, err := orchestrator.DryRun(ctx)
		if err != nil {
			logger.Fatal("dry run", zap.Error(err))
		}
		if err := writePreviews(os.Stdout, previews); err != nil {
			logger.Fatal("printing dry run", zap.Error(err))
		}
		return
	}

	// stored timestamps may lose sub-second precision
	started := time.Now().Truncate(time.Second)

	summary, runErr := orchestrator.RunAllSearches(ctx)
	if err := summary.Write(os.Stdout); err != nil {
		logger.Error("printing summary", zap.Error(err))
	}

	// an empty run still produces [] or a bare csv header
	if format != "" {
		output, _ := cmd.Flags().GetString("output")
		count, err := exportRun(ctx, b.store, started, format, output)
		if err != nil {
			logger.Error("exporting candidates", zap.Error(err))
		} else if output != "" {
			logger.Info("exported candidates", zap.String("filename", output), zap.Int("count", count))
		}
	}

	if runErr != nil {
		logger.Fatal("run stopped", zap.Error(runErr))
	}
}

// exportRun writes the candidates this invocation persisted or refreshed.
func exportRun(ctx context.Context, store storage.CandidateStore, since time.Time, format export.Format, output string) (int, error) {
	stored, err := store.List(ctx, storage.ListOptions{})
	if err != nil {
		return 0, err
	}

	touched := make([]jobs.StoredCandidate, 0, len(stored))
	for _, c := range stored {
		if !c.LastSeenAt.Before(since) {
			touched = append(touched, c)
		}
	}

	return len(touched), writeExport(export.StoredRows(touched), format, output)
}

func writeExport(rows []export.Row, format export.Format, output string) error {
	if output == "" {
		return export.Write(os.Stdout, rows, format)
	}

	f, err := os.Create(output)
	if err != nil {
		return fmt.Errorf("creating %s: %w", output, err)
	}
	return errors.Join(export.Write(f, rows, format), f.Close())
}

func writePreviews(w io.Writer, previews []pipeline.Preview) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PLATFORM\tKEYWORD\tWOULD RUN\tSEARCHES TODAY\tREMAINING CANDIDATES")
	for _, p := range previews {
		fmt.Fprintf(tw, "%s\t%s\t%t\t%d\t%d\n",
			p.Quota.Platform, p.Search.Keyword, p.Quota.CanSearch, p.Quota.SearchesRun, p.Quota.RemainingCandidates)
	}
	return tw.Flush()
}
