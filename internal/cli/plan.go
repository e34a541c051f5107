package cli

import (
	"github.com/spf13/cobra"

	"github.com/framewell/callsheet/internal/engine"
)

// PlanOptions contains options for the plan command.
type PlanOptions struct {
	*RootOptions
	Department string
	Variant    string
	Settings   settingsFlags
}

// NewPlanCommand creates the plan command.
func NewPlanCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PlanOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "plan <entity-uri>",
		Short: "Preview the jobs a change would submit",
		Long: `Plan resolves what a department change touches and prints the job
graph that submit would spool: republishes for the stale departments,
rebuilds for every dependent shot, and the closing notification.
Nothing is spooled and nothing is recorded.`,
		Example: `  # What does a lighting change in shot 010/0020 touch?
  callsheet plan entity:/shots/010/0020 --department light

  # The same plan as JSON, for tooling
  callsheet plan entity:/shots/010/0020 -d light --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlan(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Department, "department", "d", "", "department whose change propagates")
	cmd.Flags().StringVar(&opts.Variant, "variant", "", "artifact variant (default is the default variant)")
	addSettingsFlags(cmd, &opts.Settings)
	_ = cmd.MarkFlagRequired("department")

	return cmd
}

func runPlan(opts *PlanOptions, target string, cmd *cobra.Command) error {
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

	eng, st, err := newEngine(opts.RootOptions, project, nil, "")
	if err != nil {
		return failure(f, err)
	}
	defer st.Close()

	f.VerboseLog("planning %s department %s", target, opts.Department)
	graph, err := eng.Plan(cmd.Context(), engine.Request{
		Entity:     e,
		Department: opts.Department,
		Variant:    opts.Variant,
		Settings:   settings,
	})
	if err != nil {
		return failure(f, err)
	}
	return emitGraph(f, graph)
}
