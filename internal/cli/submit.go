package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/framewell/callsheet/internal/engine"
	"github.com/framewell/callsheet/internal/farm"
)

// SubmitOptions contains options for the submit command.
type SubmitOptions struct {
	*RootOptions
	Department string
	Variant    string
	FarmCmd    []string
	SpoolRoot  string
	Settings   settingsFlags
}

// NewSubmitCommand creates the submit command.
func NewSubmitCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SubmitOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "submit <entity-uri>",
		Short: "Propagate a change and spool its jobs to the farm",
		Long: `Submit plans the propagation graph for a department change, spools
every job to the farm in dependency order and records the batch in
the ledger. A change that is already fully published submits
nothing, and the ledger stays untouched.`,
		Example: `  # Republish lighting in 010/0020 and rebuild its consumers
  callsheet submit entity:/shots/010/0020 --department light

  # Submit a whole group at a preset priority
  callsheet submit entity:/groups/trailer -d light --priority low`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSubmit(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Department, "department", "d", "", "department whose change propagates")
	cmd.Flags().StringVar(&opts.Variant, "variant", "", "artifact variant (default is the default variant)")
	cmd.Flags().StringArrayVar(&opts.FarmCmd, "farm-cmd", []string{"deadlinecommand"}, "farm submission command; repeat the flag for arguments")
	cmd.Flags().StringVar(&opts.SpoolRoot, "spool", "", "directory for spooled job files (default <root>/spool)")
	addSettingsFlags(cmd, &opts.Settings)
	_ = cmd.MarkFlagRequired("department")

	return cmd
}

func runSubmit(opts *SubmitOptions, target string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	e, err := parseEntityArg(target)
	if err != nil {
		return failure(f, err)
	}
	project, err := opts.loadProject()
	if err != nil {
		return failure(f, err)
	}
	settings, err := opts.Settings.settings(project)
	if err != nil {
		return failure(f, err)
	}

	eng, st, err := newEngine(opts.RootOptions, project, opts.FarmCmd, opts.SpoolRoot)
	if err != nil {
		return failure(f, err)
	}
	defer st.Close()

	f.VerboseLog("submitting %s department %s", target, opts.Department)
	ids, err := eng.PropagateAndSubmit(cmd.Context(), engine.Request{
		Entity:     e,
		Department: opts.Department,
		Variant:    opts.Variant,
		Settings:   settings,
	})
	if err != nil {
		return failure(f, err)
	}
	return emitSubmission(f, ids)
}

type submissionResult struct {
	Submitted int      `json:"submitted"`
	JobIDs    []string `json:"job_ids,omitempty"`
}

// emitSubmission reports the farm job IDs a submit-style command
// created. Zero IDs means nothing was stale.
func emitSubmission(f *OutputFormatter, ids []farm.JobID) error {
	if f.JSON() {
		out := submissionResult{Submitted: len(ids)}
		for _, id := range ids {
			out.JobIDs = append(out.JobIDs, string(id))
		}
		return f.Success(out)
	}
	if len(ids) == 0 {
		_, err := fmt.Fprintln(f.Writer, "nothing stale, zero work")
		return err
	}
	fmt.Fprintf(f.Writer, "submitted %d jobs\n", len(ids))
	for _, id := range ids {
		fmt.Fprintf(f.Writer, "  %s\n", id)
	}
	return nil
}
