package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "satworm-sim",
	Short: "Satellite network worm propagation simulator",
	Long:  "satworm-sim runs Monte Carlo worm-propagation trials over a time-varying inter-satellite network topology.",
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(runCmd)
}
