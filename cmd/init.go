package cmd

import (
	"github.com/spf13/cobra"
	"github.com/studyforge/studyforge/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize studyforge configuration with an interactive wizard",
	Long:  `Runs an interactive wizard to configure studyforge for your notes and generates a .studyforge.yml file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := config.RunWizard()
		return err
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
