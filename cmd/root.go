// Package cmd implements the imgprep CLI commands.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:           "imgprep",
	Short:         "imgprep — decode, orient, resize and re-encode images as JPEG",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(newProcessCmd())
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newWorkerCmd())
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error processing image:", err)
		os.Exit(1)
	}
}
