// Package main is the entry point for the voxetl application.
package main

import (
	"os"

	"github.com/voxetl/voxetl/cmd/voxetl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
