package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/steveyegge/gauntlet/internal/plugin"
	"github.com/steveyegge/gauntlet/internal/reporting"
)

var pluginsKind string

var pluginsCmd = &cobra.Command{
	Use:   "plugins",
	Short: "List registered plugins",
	Long:  `List every registered plugin in execution order (priority, then name).`,
	Run: func(cmd *cobra.Command, args []string) {
		registry, err := loadRegistry(reporting.ConsoleOptions{})
		if err != nil {
			fatal(err)
		}
		descs := registry.Discover()
		if pluginsKind != "" {
			descs = registry.OfKind(plugin.Kind(pluginsKind))
		}
		printPlugins(os.Stdout, descs)
	},
}

func init() {
	rootCmd.AddCommand(pluginsCmd)
	pluginsCmd.Flags().StringVar(&pluginsKind, "kind", "", "Only list plugins of this kind (discovery, tool, reporting)")
}

func printPlugins(w io.Writer, descs []plugin.Descriptor) {
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()

	if len(descs) == 0 {
		fmt.Fprintln(w, "No plugins registered")
		return
	}
	for _, d := range descs {
		applies := "any"
		if len(d.AppliesTo) > 0 {
			applies = strings.Join(d.AppliesTo, ",")
		}
		source := d.Source
		if source == "" {
			source = "builtin"
		}
		fmt.Fprintf(w, "%s  %-9s priority=%-3d applies_to=%s\n", cyan(fmt.Sprintf("%-16s", d.Name)), d.Kind, d.Priority, applies)
		if d.Description != "" {
			fmt.Fprintf(w, "    %s\n", d.Description)
		}
		if len(d.DependsOn) > 0 {
			fmt.Fprintf(w, "    depends on: %s\n", strings.Join(d.DependsOn, ", "))
		}
		fmt.Fprintf(w, "    %s\n", gray("source: "+source))
	}
}
