package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/steveyegge/gauntlet/internal/config"
	"github.com/steveyegge/gauntlet/internal/executor"
	"github.com/steveyegge/gauntlet/internal/history"
	"github.com/steveyegge/gauntlet/internal/metrics"
	"github.com/steveyegge/gauntlet/internal/orchestrator"
	"github.com/steveyegge/gauntlet/internal/reporting"
	"github.com/steveyegge/gauntlet/internal/status"
	"github.com/steveyegge/gauntlet/internal/types"
)

var (
	runProfile           string
	runPlugins           []string
	runTimeout           string
	runSeverityThreshold string
	runOverride          string
	runConcurrency       int
	runReporters         []string
	runMetricsFile       string
	runHistory           string
	runShowToolOutput    bool
)

var runCmd = &cobra.Command{
	Use:   "run <package-path>...",
	Short: "Scan packages with the configured analysis tools",
	Long: `Scan one or more packages. Each package's configuration is the built-in
defaults, overlaid by the selected profile, overlaid by the package's
.gauntlet.yaml (or the file given with --override).

Examples:
  gauntlet run .                                  # default profile
  gauntlet run --profile=strict ./svc ./web       # several packages
  gauntlet run --plugins=eslint,shellcheck .      # only these tools (and their dependencies)
  gauntlet run --reporter=json . > report.json    # machine-readable output`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		overrides, err := runOverrides(cmd)
		if err != nil {
			fatal(err)
		}
		code := runPackages(args, overrides)
		_ = logger.Sync()
		os.Exit(int(code))
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringVar(&runProfile, "profile", "default", "Configuration profile")
	runCmd.Flags().StringSliceVar(&runPlugins, "plugins", nil, "Comma-separated tool plugins to run, plus their dependencies")
	runCmd.Flags().StringVar(&runTimeout, "timeout", "", "Default per-plugin timeout (e.g. 90s, 5m)")
	runCmd.Flags().StringVar(&runSeverityThreshold, "severity-threshold", "", "Lowest severity that fails the run: info, warning or error")
	runCmd.Flags().StringVar(&runOverride, "override", "", "Override file applied to every package instead of its .gauntlet.yaml")
	runCmd.Flags().IntVar(&runConcurrency, "concurrency", 0, "Plugins run at once (0 = logical CPUs)")
	runCmd.Flags().StringSliceVar(&runReporters, "reporter", nil, "Reporting plugins to render with (default from settings)")
	runCmd.Flags().StringVar(&runMetricsFile, "metrics-file", "", "Write Prometheus metrics to this textfile")
	runCmd.Flags().StringVar(&runHistory, "history", "", "Record the run summary in this SQLite database")
	runCmd.Flags().BoolVar(&runShowToolOutput, "show-tool-output", false, "Print the output of plugins that did not succeed")
}

// runOverrides turns the flags the user actually set into settings
// overrides.
func runOverrides(cmd *cobra.Command) (orchestrator.Overrides, error) {
	var o orchestrator.Overrides
	flags := cmd.Flags()
	if flags.Changed("timeout") {
		d, err := config.ParseDuration(runTimeout)
		if err != nil {
			return o, fmt.Errorf("--timeout: %w", err)
		}
		if d <= 0 {
			return o, fmt.Errorf("--timeout: must be positive")
		}
		o.Timeout = &d
	}
	if flags.Changed("severity-threshold") {
		s, err := types.ParseSeverity(runSeverityThreshold)
		if err != nil {
			return o, fmt.Errorf("--severity-threshold: %w", err)
		}
		o.SeverityThreshold = &s
	}
	if flags.Changed("concurrency") {
		if runConcurrency < 0 {
			return o, fmt.Errorf("--concurrency: cannot be negative")
		}
		n := runConcurrency
		o.Concurrency = &n
	}
	return o, nil
}

func runPackages(paths []string, overrides orchestrator.Overrides) types.ExitStatus {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	resolver, err := loadResolver()
	if err != nil {
		fatal(err)
	}
	registry, err := loadRegistry(reporting.ConsoleOptions{ShowToolOutput: runShowToolOutput})
	if err != nil {
		fatal(err)
	}

	m := metrics.New()
	exec := executor.New(executor.WithLogger(logger), executor.WithRecorder(m))
	orch := orchestrator.New(registry, resolver, exec, logger)

	res, err := orch.Run(ctx, paths, orchestrator.Options{
		Profile:   runProfile,
		Override:  runOverride,
		Force:     runPlugins,
		Reporters: runReporters,
		Overrides: overrides,
	})
	if err != nil {
		fatal(err)
	}
	report := res.Report

	m.ObserveReport(report)
	if runMetricsFile != "" {
		if err := m.WriteFile(runMetricsFile); err != nil {
			logger.Warn("failed to write metrics", zap.String("path", runMetricsFile), zap.Error(err))
		}
	}
	if runHistory != "" {
		recordHistory(report)
	}

	// Rendering must finish even after an interrupt.
	if err := orch.Render(context.WithoutCancel(ctx), os.Stdout, report, res.Reporters); err != nil {
		fatal(err)
	}

	code := status.Resolve(report)
	if code == types.ExitCancelled {
		fmt.Fprintf(os.Stderr, "%s\n", color.YellowString("Run interrupted; completed results were reported."))
	}
	return code
}

func recordHistory(report *types.RunReport) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store, err := history.Open(ctx, runHistory)
	if err != nil {
		logger.Warn("failed to open history", zap.String("path", runHistory), zap.Error(err))
		return
	}
	defer store.Close()
	if err := store.Save(ctx, report); err != nil {
		logger.Warn("failed to record run", zap.String("run", report.ID), zap.Error(err))
	}
}
