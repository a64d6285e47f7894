// Package cmd implements the docvault command-line interface.
package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "docvault",
	Short: "Chat with your documents",
	Long: `docvault ingests documents, embeds their content, and answers
questions about them with citations, using retrieval-augmented generation
backed by PostgreSQL and the OpenAI API.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
