// Package main provides the entry point for the lace CLI.
package main

import (
	"fmt"
	"os"

	"github.com/runlace/core/cmd/lace/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
