package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/framewell/callsheet/internal/store"
)

// HistoryOptions contains options for the history command.
type HistoryOptions struct {
	*RootOptions
	Entity     string
	Department string
	User       string
	Since      string
	Limit      int
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history [token]",
		Short: "Show recorded submissions from the ledger",
		Long: `History lists what was handed to the farm, newest first. With a token
argument it shows that submission in full, including the farm ID of
every job. The ledger only grows; nothing here mutates it.`,
		Example: `  # The last 20 submissions
  callsheet history

  # Everything one user submitted against a shot this week
  callsheet history --entity entity:/shots/010/0020 --user kara --since 168h`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				return runHistoryShow(opts, args[0], cmd)
			}
			return runHistoryList(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Entity, "entity", "", "filter by entity URI")
	cmd.Flags().StringVarP(&opts.Department, "department", "d", "", "filter by department")
	cmd.Flags().StringVar(&opts.User, "user", "", "filter by submitting user")
	cmd.Flags().StringVar(&opts.Since, "since", "", "only submissions after, a duration (72h) or a date (2006-01-02)")
	cmd.Flags().IntVar(&opts.Limit, "limit", 20, "maximum submissions to list, 0 for all")

	return cmd
}

type submissionJobRow struct {
	Name   string `json:"name"`
	Kind   string `json:"kind"`
	FarmID string `json:"farm_id"`
}

type submissionRow struct {
	Token       string             `json:"token"`
	BatchName   string             `json:"batch_name"`
	Entity      string             `json:"entity"`
	Department  string             `json:"department"`
	Variant     string             `json:"variant"`
	User        string             `json:"user"`
	Fingerprint string             `json:"fingerprint"`
	SubmittedAt string             `json:"submitted_at"`
	Jobs        []submissionJobRow `json:"jobs"`
}

type historyResult struct {
	Submissions []submissionRow `json:"submissions"`
}

func newSubmissionRow(sub store.Submission) submissionRow {
	row := submissionRow{
		Token:       sub.Token,
		BatchName:   sub.BatchName,
		Entity:      sub.Entity,
		Department:  sub.Department,
		Variant:     sub.Variant,
		User:        sub.User,
		Fingerprint: sub.Fingerprint,
		SubmittedAt: sub.SubmittedAt.UTC().Format(time.RFC3339),
		Jobs:        make([]submissionJobRow, 0, len(sub.Jobs)),
	}
	for _, job := range sub.Jobs {
		row.Jobs = append(row.Jobs, submissionJobRow{Name: job.Name, Kind: job.Kind, FarmID: job.FarmID})
	}
	return row
}

func runHistoryList(opts *HistoryOptions, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	since, err := parseSince(opts.Since)
	if err != nil {
		return failure(f, err)
	}
	st, err := opts.openStore()
	if err != nil {
		return failure(f, err)
	}
	defer st.Close()

	subs, err := st.QuerySubmissions(cmd.Context(), store.Filter{
		Entity:     opts.Entity,
		Department: opts.Department,
		User:       opts.User,
		Since:      since,
		Limit:      opts.Limit,
	})
	if err != nil {
		return failure(f, err)
	}

	if f.JSON() {
		out := historyResult{Submissions: make([]submissionRow, 0, len(subs))}
		for _, sub := range subs {
			out.Submissions = append(out.Submissions, newSubmissionRow(sub))
		}
		return f.Success(out)
	}
	if len(subs) == 0 {
		_, err := fmt.Fprintln(f.Writer, "no submissions")
		return err
	}
	for _, sub := range subs {
		fmt.Fprintf(f.Writer, "%s  %s  %s  %s  %d jobs  %s\n",
			sub.SubmittedAt.UTC().Format(time.RFC3339),
			sub.Entity, sub.Department, sub.User, len(sub.Jobs), sub.Token)
	}
	return nil
}

func runHistoryShow(opts *HistoryOptions, token string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	st, err := opts.openStore()
	if err != nil {
		return failure(f, err)
	}
	defer st.Close()

	sub, ok, err := st.GetSubmission(cmd.Context(), token)
	if err != nil {
		return failure(f, err)
	}
	if !ok {
		return failure(f, NewExitError(ExitFailure, fmt.Sprintf("submission %s not found", token)))
	}

	if f.JSON() {
		return f.Success(newSubmissionRow(sub))
	}
	fmt.Fprintf(f.Writer, "batch       %s\n", sub.BatchName)
	fmt.Fprintf(f.Writer, "entity      %s\n", sub.Entity)
	fmt.Fprintf(f.Writer, "department  %s\n", sub.Department)
	fmt.Fprintf(f.Writer, "variant     %s\n", sub.Variant)
	fmt.Fprintf(f.Writer, "user        %s\n", sub.User)
	fmt.Fprintf(f.Writer, "submitted   %s\n", sub.SubmittedAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(f.Writer, "fingerprint %s\n", sub.Fingerprint)
	fmt.Fprintln(f.Writer, "jobs")
	for _, job := range sub.Jobs {
		fmt.Fprintf(f.Writer, "  %-8s %s  %s\n", job.Kind, job.Name, job.FarmID)
	}
	return nil
}

// parseSince accepts a look-back duration or an absolute date.
func parseSince(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return time.Now().Add(-d), nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, NewExitError(ExitUsage,
			fmt.Sprintf("malformed --since %q: want a duration like 72h or a date like 2006-01-02", raw))
	}
	return t, nil
}
