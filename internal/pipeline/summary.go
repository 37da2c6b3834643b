package pipeline

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spigell/jobsieve/internal/jobs"
)

// Summary aggregates one invocation. It is complete even when some searches failed.
type Summary struct {
	InvocationID string
	Results      []jobs.SearchRunResult

	Raw      int
	Filtered int
	Final    int
	Blocked  int
	Failed   int
	Skipped  int
}

func (s *Summary) add(r jobs.SearchRunResult) {
	s.Results = append(s.Results, r)
	s.Raw += r.RawCount
	s.Filtered += r.FilteredCount
	s.Final += r.FinalCount

	switch {
	case r.Status == jobs.RunQuotaBlocked:
		s.Blocked++
	case r.Status == jobs.RunSkipped:
		s.Skipped++
	case r.Failed():
		s.Failed++
	}
}

// Write prints a per-search table followed by the totals.
func (s *Summary) Write(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PLATFORM\tKEYWORD\tSTATUS\tRAW\tFILTERED\tFINAL\tERROR")
	for _, r := range s.Results {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
			r.Platform, r.Keyword, r.Status, r.RawCount, r.FilteredCount, r.FinalCount, r.Error)
	}
	fmt.Fprintf(tw, "TOTAL\t\t\t%d\t%d\t%d\t\n", s.Raw, s.Filtered, s.Final)
	if err := tw.Flush(); err != nil {
		return err
	}

	_, err := fmt.Fprintf(w, "searches: %d, blocked: %d, failed: %d, skipped: %d\n",
		len(s.Results), s.Blocked, s.Failed, s.Skipped)
	return err
}
