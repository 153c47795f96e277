// Command qtt reconstructs and plays back space-time trajectories. See
// internal/cli for the command tree.
package main

import (
	"fmt"
	"os"

	"github.com/cxd309/spacetime-engine/internal/cli"
)

func main() {
	if err := cli.BuildCLI().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
