// Package cmd implements the nutriqa command line interface.
package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "nutriqa",
	Short: "nutriqa - question answering over diabetes and nutrition documents",
	Long: `nutriqa ingests PDF and text documents into a pgvector-backed
knowledge base and answers questions grounded in their content.

Typical workflow:

  nutriqa ingest --data-dir ./data    # build the knowledge base
  nutriqa ask "What is the glycemic index of brown rice?"
  nutriqa status                      # inspect the index`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
