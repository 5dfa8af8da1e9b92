// Command easydiffraction calculates powder diffraction patterns and
// refines crystal structures against measured data.
package main

import (
	"fmt"
	"os"

	"github.com/easyscience/EasyDiffractionLib/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		// Commands print their own reports to stdout; stderr gets the reason
		// for the exit code.
		fmt.Fprintf(os.Stderr, "easydiffraction: %v\n", err)
		os.Exit(cli.GetExitCode(err))
	}
}
