// Package main provides the entry point for the reviewrag CLI.
package main

import (
	"os"

	"github.com/gardenhotel/reviewrag/cmd/reviewrag/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
