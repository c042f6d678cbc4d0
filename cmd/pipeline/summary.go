package main

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/user/legalcode-service/internal/entity"
	"github.com/user/legalcode-service/internal/repository"
)

var (
	flagRunID    string
	flagFailures int
)

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Show the latest run summary and recent failures",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, log, a, err := bootstrap(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()
		defer func() { _ = log.Sync() }()

		var summary *entity.RunSummary
		if flagRunID != "" {
			summary, err = a.Runs.GetStatus(cmd.Context(), flagRunID)
		} else {
			summary, err = a.Runs.Latest(cmd.Context())
		}
		if errors.Is(err, repository.ErrNotFound) {
			fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded.")
			return nil
		}
		if err != nil {
			return err
		}
		printSummary(cmd.OutOrStdout(), summary)

		if flagFailures > 0 {
			events, err := a.Runs.Failures(cmd.Context(), flagFailures)
			if err != nil {
				return err
			}
			printFailures(cmd.OutOrStdout(), events)
		}
		return nil
	},
}

func init() {
	summaryCmd.Flags().StringVar(&flagRunID, "id", "", "run id (default latest)")
	summaryCmd.Flags().IntVar(&flagFailures, "failures", 10, "number of recent failures to list (0 hides them)")
}

func printSummary(out io.Writer, s *entity.RunSummary) {
	fmt.Fprintf(out, "Run %s: %s\n", s.ID, s.Status)
	fmt.Fprintf(out, "Started:  %s\n", s.StartedAt.Format(time.RFC3339))
	if s.FinishedAt != nil {
		fmt.Fprintf(out, "Finished: %s (%s)\n", s.FinishedAt.Format(time.RFC3339), s.FinishedAt.Sub(s.StartedAt).Round(time.Second))
	}
	fmt.Fprintf(out, "Units: %d  Versions created: %d\n\n", s.Units, s.VersionsCreated)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STAGE\tCOMPLETED\tDEFERRED\tFAILED\tCACHE HITS")
	for _, stage := range entity.Stages {
		c, ok := s.Stages[stage]
		if !ok {
			continue
		}
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\n", stage, c.Completed, c.Deferred, c.Failed, c.CacheHits)
	}
	_ = w.Flush()
}

func printFailures(out io.Writer, events []*entity.FailureEvent) {
	if len(events) == 0 {
		return
	}
	fmt.Fprintln(out, "\nRecent failures:")
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tSTAGE\tKIND\tHASH\tMESSAGE")
	for _, ev := range events {
		hash := ev.Hash
		if len(hash) > 12 {
			hash = hash[:12]
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", ev.OccurredAt.Format(time.RFC3339), ev.Stage, ev.Kind, hash, ev.Message)
	}
	_ = w.Flush()
}
