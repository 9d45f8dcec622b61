package main

import (
	"github.com/spf13/cobra"
)

var (
	buildVersion string
	buildCommit  string
	buildDate    string
)

var rootCmd = &cobra.Command{
	Use:   "frametree",
	Short: "Live registry of hierarchically related frames",
	Long: `frametree keeps a parent/child tree of frames that attach and detach
asynchronously, and lets callers wait for a frame that is not registered yet.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command with build info injected via ldflags.
func Execute(version, commit, date string) error {
	buildVersion = version
	buildCommit = commit
	buildDate = date
	return rootCmd.Execute()
}
