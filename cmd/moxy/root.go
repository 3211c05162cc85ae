package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	logLevel  string
	logFormat string
)

var rootCmd = &cobra.Command{
	Use:   "moxy",
	Short: "Moxy - declarative HTTP interception",
	Long: `Moxy intercepts HTTP traffic and matches every transaction against a
declarative JSON rule document. Matched requests can be answered locally,
rewritten before they reach the origin, or have their responses transformed
on the way back; everything else passes through untouched.

Rule documents reload automatically while the server runs.`,
	Version: Version,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (text, json)")
}
