// Command vgcn-reconcile reconciles a fleet of HTCondor worker VMs against
// a declarative DesiredState document: validating capacity, diffing the
// live inventory per group, and creating, removing, or replacing servers to
// close the gap. See spec §4.7 and §6 for the full contract.
package main

import (
	"fmt"
	"os"

	"github.com/usegalaxy-eu/vgcn-reconciler/cmd/vgcn-reconcile/commands"
)

func main() {
	root := commands.Root()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(commands.ExitCode())
	}
}
