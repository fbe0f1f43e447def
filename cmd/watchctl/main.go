// Package main is the entry point for the watchctl CLI tool.
package main

import (
	"os"

	"github.com/good-yellow-bee/blazewatch/cmd/watchctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
