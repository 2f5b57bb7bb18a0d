// Package main provides the entry point for the agentgate CLI.
package main

import (
	"fmt"
	"os"

	"github.com/agentgate/agentgate/cmd/agentgate/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
