package cli

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/yungbote/vizflow-backend/internal/domain"
	"github.com/yungbote/vizflow-backend/internal/repos"
)

func newQueuesCmd(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "queues",
		Short: "Show job counts per pipeline stage",
		Example: `  pipelinectl queues
  pipelinectl queues --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			counts, err := c.Queues(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if opts.JSON {
				return printJSON(out, counts)
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "STAGE\tWAITING\tACTIVE\tDELAYED\tCOMPLETED\tFAILED")
			for _, s := range domain.Stages {
				n := counts[s.String()]
				fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%d\n", s, n.Waiting, n.Active, n.Delayed, n.Completed, n.Failed)
			}
			return tw.Flush()
		},
	}
}

func newSubmitCmd(opts *Options) *cobra.Command {
	var (
		userID    string
		eventType string
		data      string
	)
	cmd := &cobra.Command{
		Use:     "submit",
		Short:   "Submit a user interaction event",
		Example: `  pipelinectl submit --user u1 --type click --data '{"target":"AAPL"}'`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var raw json.RawMessage
			if strings.TrimSpace(data) != "" {
				if !json.Valid([]byte(data)) {
					return fmt.Errorf("--data is not valid JSON")
				}
				raw = json.RawMessage(data)
			}
			c, err := opts.client()
			if err != nil {
				return err
			}
			jobID, err := c.SubmitEvent(cmd.Context(), userID, eventType, raw)
			if err != nil {
				return err
			}
			if opts.JSON {
				return printJSON(cmd.OutOrStdout(), map[string]string{"jobId": jobID})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Event queued as job %s\n", jobID)
			return nil
		},
	}
	cmd.Flags().StringVarP(&userID, "user", "u", "", "User id")
	cmd.Flags().StringVarP(&eventType, "type", "t", string(domain.EventClick), "Event type")
	cmd.Flags().StringVarP(&data, "data", "d", "", "Event data as JSON")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func newCancelCmd(opts *Options) *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   "cancel",
		Short: "Cancel every queued or running job of a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			n, err := c.Cancel(cmd.Context(), userID)
			if err != nil {
				return err
			}
			if opts.JSON {
				return printJSON(cmd.OutOrStdout(), map[string]int{"cancelCount": n})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cancelled %d jobs for %s\n", n, userID)
			return nil
		},
	}
	cmd.Flags().StringVarP(&userID, "user", "u", "", "User id")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func newVisualizationsCmd(opts *Options) *cobra.Command {
	var (
		userID string
		limit  int
		step   int
	)
	cmd := &cobra.Command{
		Use:     "visualizations",
		Aliases: []string{"viz"},
		Short:   "List a user's visualizations, or one partial by step",
		Example: `  pipelinectl viz --user u1
  pipelinectl viz --user u1 --step 2 --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if step > 0 {
				rec, err := c.Partial(cmd.Context(), userID, step)
				if err != nil {
					return err
				}
				return printJSON(out, rec)
			}
			recs, err := c.Visualizations(cmd.Context(), userID, limit)
			if err != nil {
				return err
			}
			if opts.JSON {
				return printJSON(out, recs)
			}
			if len(recs) == 0 {
				fmt.Fprintf(out, "No visualizations for %s.\n", userID)
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "TIME\tCARDS\tQUERY")
			for _, r := range recs {
				fmt.Fprintf(tw, "%s\t%d\t%s\n", formatMillis(r.Timestamp), countCards(r.AdaptiveCards), r.Query)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVarP(&userID, "user", "u", "", "User id")
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Maximum records")
	cmd.Flags().IntVar(&step, "step", 0, "Fetch the partial visualization for this step")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func newFailuresCmd(opts *Options) *cobra.Command {
	var (
		filter repos.FailedJobFilter
		since  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "failures",
		Short: "List jobs that exhausted their attempts",
		Long:  `Reads the failure ledger from the database configured for the service.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ledger, closeFn, err := opts.OpenLedger(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()
			if since > 0 {
				filter.Since = time.Now().Add(-since)
			}
			rows, err := ledger.List(cmd.Context(), nil, filter)
			if err != nil {
				return fmt.Errorf("list failures: %w", err)
			}
			out := cmd.OutOrStdout()
			if opts.JSON {
				return printJSON(out, rows)
			}
			if len(rows) == 0 {
				fmt.Fprintln(out, "No failed jobs.")
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "FAILED AT\tSTAGE\tUSER\tATTEMPTS\tJOB\tERROR")
			for _, r := range rows {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n",
					r.FailedAt.UTC().Format(time.RFC3339), r.Stage, r.UserID, r.Attempts, r.JobID, oneLine(r.Error, 80))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&filter.Stage, "stage", "", "Only this stage")
	cmd.Flags().StringVarP(&filter.UserID, "user", "u", "", "Only this user")
	cmd.Flags().DurationVar(&since, "since", 0, "Only failures newer than this (e.g. 24h)")
	cmd.Flags().IntVarP(&filter.Limit, "limit", "n", 50, "Maximum rows")
	cmd.AddCommand(newPruneCmd(opts))
	return cmd
}

func newPruneCmd(opts *Options) *cobra.Command {
	var olderThan time.Duration
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete ledger rows older than a cutoff",
		RunE: func(cmd *cobra.Command, args []string) error {
			if olderThan <= 0 {
				return fmt.Errorf("--older-than must be positive")
			}
			ledger, closeFn, err := opts.OpenLedger(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()
			n, err := ledger.DeleteOlderThan(cmd.Context(), nil, time.Now().Add(-olderThan))
			if err != nil {
				return fmt.Errorf("prune failures: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d ledger rows\n", n)
			return nil
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 7*24*time.Hour, "Age cutoff")
	return cmd
}

func formatMillis(ms int64) string {
	if ms <= 0 {
		return "-"
	}
	return time.UnixMilli(ms).UTC().Format(time.RFC3339)
}

func countCards(raw json.RawMessage) int {
	var cards []json.RawMessage
	if err := json.Unmarshal(raw, &cards); err != nil {
		return 0
	}
	return len(cards)
}

func oneLine(s string, limit int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) > limit {
		return s[:limit-3] + "..."
	}
	return s
}
