package root

import (
	"github.com/spf13/cobra"
)

// Exported RootCmd
var RootCmd = &cobra.Command{
	Use:           "radar",
	Short:         "Radar CLI",
	Long:          "Command line interface for the Radar users and posts API.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Optional helper to return the RootCmd
func GetRoot() *cobra.Command {
	return RootCmd
}
