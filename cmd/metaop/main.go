// Command metaop detects meta-operations in recorded operation logs.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/metaop/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(cli.GetExitCode(err))
	}
}
