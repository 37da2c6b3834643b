package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/jobsieve/internal/quota"
)

var quotaCmd = &cobra.Command{
	Use:   "quota",
	Short: "Show today's usage and remaining allowance per platform",
	Run: func(_ *cobra.Command, _ []string) {
		showQuota()
	},
}

func init() {
	rootCmd.AddCommand(quotaCmd)
}

func showQuota() {
	ctx := context.Background()

	logger := newLogger("quota")
	defer logger.Sync()

	config := mustConfig(logger)

	b, err := openBackend(ctx, config, logger)
	if err != nil {
		logger.Fatal("opening storage", zap.Error(err))
	}
	defer b.Close()

	statuses := make([]quota.Status, 0)
	for _, platform := range config.SearchPlatforms() {
		st, err := b.ledger.Status(ctx, platform)
		if err != nil {
			logger.Fatal("reading quota", zap.String("platform", platform), zap.Error(err))
		}
		statuses = append(statuses, st)
	}

	if err := writeQuota(os.Stdout, statuses); err != nil {
		logger.Fatal("printing quota", zap.Error(err))
	}
}

func writeQuota(w io.Writer, statuses []quota.Status) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PLATFORM\tDATE\tSEARCHES\tMAX SEARCHES\tCANDIDATES\tMAX CANDIDATES\tCAN SEARCH\tREMAINING")
	for _, s := range statuses {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%d\t%s\t%t\t%d\n",
			s.Platform, s.Date,
			s.SearchesRun, limitText(s.Limit.MaxSearchesPerDay),
			s.CandidatesFound, limitText(s.Limit.MaxCandidatesPerDay),
			s.CanSearch, s.RemainingCandidates,
		)
	}
	return tw.Flush()
}

func limitText(limit int) string {
	if limit <= 0 {
		return "unlimited"
	}
	return fmt.Sprint(limit)
}
