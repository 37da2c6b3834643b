package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/jobsieve/internal/jobs"
	"github.com/spigell/jobsieve/internal/storage"
)

const (
	PromptQuit           = "quit"
	PromptBack           = "back"
	PromptReviewed       = "Mark as reviewed"
	PromptRejected       = "Reject"
	PromptQueuedForApply = "Queue for apply"
)

var errExit = errors.New("exit requested")

var reviewActions = map[string]jobs.Status{
	PromptReviewed:       jobs.StatusReviewed,
	PromptRejected:       jobs.StatusRejected,
	PromptQueuedForApply: jobs.StatusQueuedForApply,
}

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Interactively triage new candidates",
	Run: func(cmd *cobra.Command, _ []string) {
		review(cmd)
	},
}

func init() {
	rootCmd.AddCommand(reviewCmd)

	reviewCmd.Flags().String("platform", "", "only candidates of this platform")
	reviewCmd.Flags().Float64("min-score", 0, "only candidates with at least this final score")
}

func review(cmd *cobra.Command) {
	ctx := context.Background()

	logger := newLogger("review")
	defer logger.Sync()

	config := mustConfig(logger)

	opts := storage.ListOptions{Status: jobs.StatusNew}
	opts.Platform, _ = cmd.Flags().GetString("platform")
	opts.MinScore, _ = cmd.Flags().GetFloat64("min-score")

	b, err := openBackend(ctx, config, logger)
	if err != nil {
		logger.Fatal("opening storage", zap.Error(err))
	}
	defer b.Close()

	candidates, err := b.store.List(ctx, opts)
	if err != nil {
		logger.Fatal("listing candidates", zap.Error(err))
	}

	if len(candidates) == 0 {
		logger.Info("exiting", zap.String("reason", "no new candidates"))
		return
	}

	logger.Info("current list of new candidates", zap.Int("count", len(candidates)))

	for len(candidates) > 0 {
		idx, err := selectCandidate(candidates)
		if err != nil {
			if errors.Is(err, errExit) || errors.Is(err, promptui.ErrInterrupt) {
				return
			}
			logger.Fatal("exiting", zap.Error(err))
		}

		selected := candidates[idx]
		status, err := selectStatus(selected)
		if err != nil {
			if errors.Is(err, promptui.ErrInterrupt) {
				return
			}
			logger.Fatal("exiting", zap.Error(err))
		}
		if status == "" {
			continue
		}

		if err := b.store.SetStatus(ctx, selected.Candidate.Key(), status); err != nil {
			logger.Fatal("updating candidate status", zap.Error(err))
		}

		logger.Info("candidate status updated",
			zap.String("candidate", selected.Candidate.Key().String()),
			zap.String("title", selected.Candidate.Title),
			zap.String("status", string(status)),
		)

		candidates = append(candidates[:idx], candidates[idx+1:]...)
	}

	logger.Info("exiting", zap.String("reason", "all new candidates reviewed"))
}

func selectCandidate(candidates []jobs.StoredCandidate) (int, error) {
	items := make([]string, 0, len(candidates)+1)
	for _, c := range candidates {
		items = append(items, fmt.Sprintf("%5.1f %s / %s / %s",
			c.FinalScore, c.Candidate.Title, c.Candidate.Company, c.Candidate.URL,
		))
	}

	candidatePrompt := promptui.Select{
		Label: "Choose a candidate and press ENTER",
		Items: append(items, PromptQuit),
		Size:  15,
	}

	idx, _, err := candidatePrompt.Run()
	if err != nil {
		return 0, err
	}
	if idx == len(candidates) {
		return 0, errExit
	}
	return idx, nil
}

// selectStatus returns an empty status when the user goes back.
func selectStatus(c jobs.StoredCandidate) (jobs.Status, error) {
	label := c.Candidate.Title
	if c.Reasoning != "" {
		label = fmt.Sprintf("%s (%s)", c.Candidate.Title, c.Reasoning)
	}

	actionPrompt := promptui.Select{
		Label: label,
		Items: []string{PromptReviewed, PromptRejected, PromptQueuedForApply, PromptBack},
	}

	_, action, err := actionPrompt.Run()
	if err != nil {
		return "", err
	}
	return reviewActions[action], nil
}
