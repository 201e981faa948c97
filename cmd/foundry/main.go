// Package main provides the entry point for the foundry CLI.
package main

import (
	"os"

	"github.com/Mnehmos/mnehmos.index-foundry.mcp-sub001/cmd/foundry/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
