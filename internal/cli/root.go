// Package cli implements the hivebot command line interface.
package cli

import (
	"github.com/spf13/cobra"
)

var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "hivebot",
	Short: "Multi-tenant chat-to-agent gateway",
	Long: `hivebot routes chat platform messages to per-tenant sandboxed agent
sessions, with message consolidation, outbound rate limiting, context
caching, and durable task scheduling.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	Version:       version,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
