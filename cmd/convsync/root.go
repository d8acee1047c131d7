// Root command for the convsync CLI.
package main

import (
	"github.com/spf13/cobra"
)

// Global flag values.
var flagConfig string

var rootCmd = &cobra.Command{
	Use:     "convsync",
	Short:   "Convsync pulls conversation analytics into a relational warehouse",
	Version: version,
	Long: `Convsync is an incremental ETL pipeline. It fetches sessions, reviews,
tags, categories, agents and users from a conversation-analytics API and
upserts them into a relational warehouse, advancing a checkpoint only after
a fully successful run.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "",
		"config file (default: ./convsync.yaml)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(versionCmd)
}
