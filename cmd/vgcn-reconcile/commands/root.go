// Package commands defines the vgcn-reconcile CLI's command structure and
// flag bindings. Argument parsing lives here; the actual reconciliation
// logic lives in the sibling handlers package, matching the teacher's
// commands+handlers split.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/usegalaxy-eu/vgcn-reconciler/cmd/vgcn-reconcile/handlers"
	"github.com/usegalaxy-eu/vgcn-reconciler/internal/log"
)

// exitCode defaults to ExitConfigError so a cobra-level failure (bad flags,
// unknown subcommand) that never reaches RunE still maps to the "configuration
// or I/O error" exit status rather than falsely reporting success.
var exitCode = handlers.ExitConfigError

// ExitCode returns the process exit code the last Root().Execute() run
// determined, per spec §6. Read this after Execute returns.
func ExitCode() int {
	return exitCode
}

// Root returns the root command for the vgcn-reconcile CLI.
func Root() *cobra.Command {
	var opts handlers.ReconcileOptions
	var debug, jsonLogs bool

	cmd := &cobra.Command{
		Use:   "vgcn-reconcile",
		Short: "Reconcile an HTCondor worker fleet against its desired state",
		RunE: func(cmd *cobra.Command, _ []string) error {
			log.Init(log.Config{Debug: debug, JSON: jsonLogs})
			err := handlers.Reconcile(cmd.Context(), opts)
			exitCode = handlers.ExitCode(err)
			return err
		},
		SilenceUsage: true,
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.ResourcesFile, "resources-file", "r", "resources.yaml", "Path to the DesiredState YAML file")
	flags.StringVarP(&opts.UserDataFile, "userdata-file", "u", "userdata.yaml.j2", "Path to the user-data template served to newly created servers")
	flags.StringVarP(&opts.CloudName, "openstack-cloud", "c", "", "Name of the OpenStack cloud to reconcile against")
	flags.BoolVarP(&opts.DryRun, "dry-run", "d", false, "Compute and log the plan without applying it")
	flags.BoolVar(&debug, "debug", false, "Enable debug-level logging")
	flags.BoolVar(&jsonLogs, "json", false, "Emit logs as JSON instead of console format")

	return cmd
}
