package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/framewell/callsheet/internal/depgraph"
)

// ScanOptions contains options for the scan command.
type ScanOptions struct {
	*RootOptions
}

// NewScanCommand creates the scan command.
func NewScanCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ScanOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Derive the dependency graph from publish records",
		Long: `Scan walks the export tree and derives who consumes what from the
latest publish record of every artifact. The edges are exactly what
plan and submit use to find dependent shots, so scan is the quickest
way to see why a change fans out the way it does.`,
		Example: `  callsheet scan
  callsheet scan --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(opts, cmd)
		},
	}

	return cmd
}

type edgeResult struct {
	Consumer string `json:"consumer"`
	Provider string `json:"provider"`
}

type scanResult struct {
	Entities int          `json:"entities"`
	Edges    []edgeResult `json:"edges"`
}

func runScan(opts *ScanOptions, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	scanner := depgraph.NewScanner(opts.artifactStore())
	graph, err := scanner.Scan(cmd.Context())
	if err != nil {
		return failure(f, err)
	}

	edges := graph.Edges()
	if f.JSON() {
		out := scanResult{Entities: len(graph.Entities()), Edges: make([]edgeResult, 0, len(edges))}
		for _, e := range edges {
			out.Edges = append(out.Edges, edgeResult{
				Consumer: e.Consumer.URI().String(),
				Provider: e.Provider.URI().String(),
			})
		}
		return f.Success(out)
	}
	if len(edges) == 0 {
		_, err := fmt.Fprintln(f.Writer, "no dependencies")
		return err
	}
	for _, e := range edges {
		fmt.Fprintf(f.Writer, "%s -> %s\n", e.Consumer.URI(), e.Provider.URI())
	}
	return nil
}
