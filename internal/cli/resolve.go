package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/framewell/callsheet/internal/resolve"
	"github.com/framewell/callsheet/internal/versions"
)

// ResolveOptions contains options for the resolve command.
type ResolveOptions struct {
	*RootOptions
	Department string
	Variant    string
	Version    string
	Latest     bool
}

// NewResolveCommand creates the resolve command.
func NewResolveCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ResolveOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "resolve <entity-uri>",
		Short: "Resolve a reference to an export version directory",
		Long: `Resolve maps an artifact reference to the export version directory
that satisfies it. Without --version the reference is symbolic and
resolves to the newest published version. With --latest pins are
ignored entirely, the same way build jobs resolve when a change
propagates through them.`,
		Example: `  callsheet resolve entity:/shots/010/0020 --department light
  callsheet resolve entity:/assets/char/hero -d lookdev --version v0003`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResolve(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Department, "department", "d", "", "department that published the artifact")
	cmd.Flags().StringVar(&opts.Variant, "variant", "", "artifact variant (default is the default variant)")
	cmd.Flags().StringVar(&opts.Version, "version", "", "explicit version to pin, e.g. v0003")
	cmd.Flags().BoolVar(&opts.Latest, "latest", false, "ignore pins and resolve to the newest version")
	_ = cmd.MarkFlagRequired("department")

	return cmd
}

type resolveResult struct {
	Path string `json:"path"`
	Mode string `json:"mode"`
}

func runResolve(opts *ResolveOptions, target string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	e, err := parseEntityArg(target)
	if err != nil {
		return failure(f, err)
	}

	var explicit versions.Version
	if opts.Version != "" {
		v, ok := versions.ParseVersion(opts.Version)
		if !ok {
			return failure(f, NewExitError(ExitUsage, fmt.Sprintf("malformed version %q", opts.Version)))
		}
		explicit = v
	}
	mode := resolve.Pinned
	if opts.Latest {
		mode = resolve.Latest
	}

	resolver := resolve.NewResolver(opts.artifactStore())
	dir, err := resolver.Resolve(e, opts.Department, opts.Variant, explicit, mode)
	if err != nil {
		return failure(f, err)
	}

	if f.JSON() {
		return f.Success(resolveResult{Path: dir, Mode: mode.String()})
	}
	_, err = fmt.Fprintln(f.Writer, dir)
	return err
}
