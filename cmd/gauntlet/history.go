package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/steveyegge/gauntlet/internal/history"
	"github.com/steveyegge/gauntlet/internal/types"
)

var (
	historyDB    string
	historyLimit int
)

var historyCmd = &cobra.Command{
	Use:   "history [run-id]",
	Short: "Show recorded runs",
	Long: `Show runs recorded with 'gauntlet run --history'. With a run ID, show the
per-package breakdown of that run.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if historyDB == "" {
			fatal(errors.New("--db is required"))
		}
		ctx := context.Background()
		store, err := history.Open(ctx, historyDB)
		if err != nil {
			fatal(err)
		}
		defer store.Close()

		if len(args) == 1 {
			run, err := store.Get(ctx, args[0])
			if err != nil {
				fatal(err)
			}
			printRun(os.Stdout, run)
			return
		}
		runs, err := store.List(ctx, historyLimit)
		if err != nil {
			fatal(err)
		}
		printRuns(os.Stdout, runs)
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().StringVar(&historyDB, "db", "", "History database written by 'run --history'")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Number of runs to show")
}

func statusColor(s types.ExitStatus) func(a ...interface{}) string {
	switch s {
	case types.ExitClean:
		return color.New(color.FgGreen).SprintFunc()
	case types.ExitIssuesFound:
		return color.New(color.FgYellow).SprintFunc()
	default:
		return color.New(color.FgRed).SprintFunc()
	}
}

func printRuns(w io.Writer, runs []history.Run) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded")
		return
	}
	for _, r := range runs {
		paint := statusColor(r.Status)
		fmt.Fprintf(w, "%s  %s  %-12s %-13s %d issues in %d packages\n",
			r.ID, r.StartedAt.Local().Format(time.DateTime), r.Profile,
			paint(r.Status.String()), r.Stats.Issues, r.Stats.Packages)
	}
}

func printRun(w io.Writer, r *history.Run) {
	paint := statusColor(r.Status)
	fmt.Fprintf(w, "Run %s (profile %s)\n", r.ID, r.Profile)
	fmt.Fprintf(w, "  Started:  %s\n", r.StartedAt.Local().Format(time.DateTime))
	fmt.Fprintf(w, "  Duration: %s\n", r.CompletedAt.Sub(r.StartedAt).Round(time.Millisecond))
	fmt.Fprintf(w, "  Status:   %s\n", paint(r.Status.String()))
	fmt.Fprintf(w, "  Issues:   %d (%d errors, %d warnings, %d info), %d suppressed, %d duplicates\n",
		r.Stats.Issues, r.Stats.Errors, r.Stats.Warnings, r.Stats.Infos, r.Stats.Suppressed, r.Stats.Duplicates)
	fmt.Fprintf(w, "  Plugins:  %d run, %d failed, %d timed out\n",
		r.Stats.PluginsRun, r.Stats.PluginsFailed, r.Stats.PluginsTimedOut)
	for _, p := range r.Packages {
		switch {
		case p.Skipped:
			fmt.Fprintf(w, "  - %s: skipped\n", p.Name)
		case p.Error != "":
			fmt.Fprintf(w, "  - %s: error: %s\n", p.Name, p.Error)
		default:
			fmt.Fprintf(w, "  - %s: %d issues\n", p.Name, p.Issues)
		}
	}
}
