package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/framewell/callsheet/internal/engine"
	"github.com/framewell/callsheet/internal/entity"
)

// UpdateOptions contains options for the update command.
type UpdateOptions struct {
	*RootOptions
	Through   string
	DryRun    bool
	FarmCmd   []string
	SpoolRoot string
	Settings  settingsFlags
}

// NewUpdateCommand creates the update command.
func NewUpdateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &UpdateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "update [shot-uri...]",
		Short: "Refresh stale shots through a department",
		Long: `Update walks shots instead of a single change: every stale department
up to and including --through republishes, one chain per shot in
pipeline order, followed by a single notification. Without arguments
every shot that has workfiles is considered.`,
		Example: `  # Bring every shot current through comp
  callsheet update --through comp

  # Preview what two shots would resubmit
  callsheet update entity:/shots/010/0020 entity:/shots/010/0030 --through light --dry-run`,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUpdate(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Through, "through", "", "last department of each shot's refresh chain")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "plan only, print the graph without submitting")
	cmd.Flags().StringArrayVar(&opts.FarmCmd, "farm-cmd", []string{"deadlinecommand"}, "farm submission command; repeat the flag for arguments")
	cmd.Flags().StringVar(&opts.SpoolRoot, "spool", "", "directory for spooled job files (default <root>/spool)")
	addSettingsFlags(cmd, &opts.Settings)
	_ = cmd.MarkFlagRequired("through")

	return cmd
}

func runUpdate(opts *UpdateOptions, args []string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	shots, err := parseShotArgs(args)
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

	req := engine.UpdateRequest{Shots: shots, Through: opts.Through, Settings: settings}
	if opts.DryRun {
		graph, err := eng.PlanUpdate(cmd.Context(), req)
		if err != nil {
			return failure(f, err)
		}
		return emitGraph(f, graph)
	}

	f.VerboseLog("updating through %s", opts.Through)
	ids, err := eng.UpdateAndSubmit(cmd.Context(), req)
	if err != nil {
		return failure(f, err)
	}
	return emitSubmission(f, ids)
}

func parseShotArgs(args []string) ([]entity.Shot, error) {
	var shots []entity.Shot
	for _, raw := range args {
		e, err := parseEntityArg(raw)
		if err != nil {
			return nil, err
		}
		shot, ok := e.(entity.Shot)
		if !ok {
			return nil, NewExitError(ExitUsage, fmt.Sprintf("%s is not a shot", raw))
		}
		shots = append(shots, shot)
	}
	return shots, nil
}
