// Command graphsync validates, imports and exports scene resource layouts
// and runs sync scenarios.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/graphsync/internal/cli"
)

func main() {
	err := cli.NewRootCommand().Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	os.Exit(cli.GetExitCode(err))
}
