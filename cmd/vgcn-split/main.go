// Command vgcn-split allocates a fraction of each deployment group's
// capacity to a secondary HTCondor cluster, emitting a transformed
// DesiredState document. See spec §4.8.
package main

import (
	"fmt"
	"os"

	"github.com/usegalaxy-eu/vgcn-reconciler/cmd/vgcn-split/commands"
)

func main() {
	if err := commands.Root().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
