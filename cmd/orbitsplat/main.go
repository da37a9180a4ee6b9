// Command orbitsplat generates orbit camera poses, reconstructs 3D Gaussian
// Splatting scenes and bakes textures onto meshes.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/orbitsplat/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		if !cli.IsReported(err) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(cli.GetExitCode(err))
	}
}
