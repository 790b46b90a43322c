// Package main is the entry point for the hivebot CLI.
package main

import (
	"os"

	"github.com/hivebot/hivebot/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
