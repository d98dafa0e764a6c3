package cmd

import (
	"github.com/spf13/cobra"
)

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "studyforge",
	Short: "Retrieval-augmented study assistant for your notes",
	Long: `StudyForge indexes your study notes into per-document vector
collections and answers questions about them with grounded source
citations. It generates study questions, surfaces related passages,
and integrates with AI agents via MCP.`,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", ".studyforge.yml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
