// Command cadence is the offline-first journaling CLI.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/roach88/cadence/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		if !cli.Reported(err) {
			fmt.Fprintln(os.Stderr, "cadence:", err)
		}
		os.Exit(cli.GetExitCode(err))
	}
}
