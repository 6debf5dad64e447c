package cli

import (
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "mnemo",
	Short: "Personal knowledge engine",
	Long:  "Mnemo learns facts from conversation text, keeps them deduplicated and fresh, and serves them back as prompt context or search results. Single Go binary, local SQLite storage.",
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.mnemo/config.yaml)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(extractCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(contextCmd)
	rootCmd.AddCommand(factsCmd)
	rootCmd.AddCommand(conflictsCmd)
	rootCmd.AddCommand(maintainCmd)
	rootCmd.AddCommand(privacyCmd)
}
