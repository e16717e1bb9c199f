// Package commands defines the vgcn-split CLI's command structure and flag
// bindings, delegating the actual work to the sibling handlers package.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/usegalaxy-eu/vgcn-reconciler/cmd/vgcn-split/handlers"
)

// Root returns the root command for the vgcn-split CLI.
func Root() *cobra.Command {
	var opts handlers.SplitOptions

	cmd := &cobra.Command{
		Use:   "vgcn-split",
		Short: "Split a DesiredState's groups into primary/secondary HTCondor clusters",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Split(opts)
		},
		SilenceUsage: true,
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.ResourcesFile, "resources-file", "r", "resources.yaml", "Path to the DesiredState YAML file")
	flags.Float64VarP(&opts.Fraction, "fraction", "f", 0, "Fraction of each group's capacity to divert to the secondary cluster")
	flags.StringVarP(&opts.OutputFile, "output-file", "o", "", "Path to write the split document to (default stdout)")

	return cmd
}
