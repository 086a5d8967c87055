package main

import (
	"fmt"
	"os"

	"github.com/congo-pay/safetext/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "relay: %v\n", err)
		os.Exit(cli.ExitCode(err))
	}
}
