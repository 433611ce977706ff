// Command simd runs the simulation engine: it loads a config file,
// assembles the world, scheduler, and snapshot/transport pipeline, and
// drives the tick loop until interrupted.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "simd",
		Short: "simd runs an ECS simulation with dependency-aware parallel scheduling",
	}
	root.AddCommand(newRunCommand())
	root.AddCommand(newStagesCommand())
	return root
}
