// Command zkapauthz runs the client side of the privatestorageio-zkapauthz-v1
// storage plugin for a node directory.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/zkapauthz/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
