package main

import (
	"fmt"
	"io"
	"maps"
	"os"
	"slices"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/steveyegge/gauntlet/internal/config"
)

var profilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "List available configuration profiles",
	Run: func(cmd *cobra.Command, args []string) {
		resolver, err := loadResolver()
		if err != nil {
			fatal(err)
		}
		if err := printProfiles(os.Stdout, resolver); err != nil {
			fatal(err)
		}
	},
}

func init() {
	rootCmd.AddCommand(profilesCmd)
}

func printProfiles(w io.Writer, resolver *config.Resolver) error {
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()

	for _, name := range resolver.Profiles() {
		doc, path, err := resolver.Profile(name)
		if err != nil {
			return err
		}
		fmt.Fprintln(w, cyan(name))
		if doc.Description != "" {
			fmt.Fprintf(w, "    %s\n", doc.Description)
		}
		for _, pkg := range slices.Sorted(maps.Keys(doc.Packages)) {
			fmt.Fprintf(w, "    %s -> %s\n", pkg, doc.Packages[pkg])
		}
		fmt.Fprintf(w, "    %s\n", gray(path))
	}
	return nil
}
