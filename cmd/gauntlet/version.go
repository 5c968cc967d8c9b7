package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/steveyegge/gauntlet/internal/plugin"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the gauntlet version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "gauntlet %s (plugin API %s)\n", version, plugin.APIVersion)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
