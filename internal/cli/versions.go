package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// VersionsOptions contains options for the versions command.
type VersionsOptions struct {
	*RootOptions
	Department string
	Variant    string
}

// NewVersionsCommand creates the versions command.
func NewVersionsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &VersionsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "versions <entity-uri>",
		Short: "Show where an artifact's version sequence stands",
		Long: `Versions reports the latest published version of an artifact and the
version the next publish will claim. Versions are directory names and
nothing is locked, so the answer is advisory under concurrent
publishes.`,
		Example: `  callsheet versions entity:/shots/010/0020 --department light`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVersions(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Department, "department", "d", "", "department that publishes the artifact")
	cmd.Flags().StringVar(&opts.Variant, "variant", "", "artifact variant (default is the default variant)")
	_ = cmd.MarkFlagRequired("department")

	return cmd
}

type versionsResult struct {
	Latest string `json:"latest,omitempty"`
	Next   string `json:"next"`
}

func runVersions(opts *VersionsOptions, target string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	e, err := parseEntityArg(target)
	if err != nil {
		return failure(f, err)
	}
	project, err := opts.loadProject()
	if err != nil {
		return failure(f, err)
	}
	eng, st, err := newEngine(opts.RootOptions, project, nil, "")
	if err != nil {
		return failure(f, err)
	}
	defer st.Close()

	seq, err := eng.Versions(e, opts.Department, opts.Variant)
	if err != nil {
		return failure(f, err)
	}

	if f.JSON() {
		out := versionsResult{Next: seq.Next.String()}
		if !seq.Latest.IsZero() {
			out.Latest = seq.Latest.String()
		}
		return f.Success(out)
	}
	if seq.Latest.IsZero() {
		fmt.Fprintln(f.Writer, "latest none")
	} else {
		fmt.Fprintf(f.Writer, "latest %s\n", seq.Latest)
	}
	fmt.Fprintf(f.Writer, "next   %s\n", seq.Next)
	return nil
}
