package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/steveyegge/gauntlet/internal/catalog"
	"github.com/steveyegge/gauntlet/internal/config"
	"github.com/steveyegge/gauntlet/internal/plugin"
	"github.com/steveyegge/gauntlet/internal/reporting"
	"github.com/steveyegge/gauntlet/internal/types"
)

var (
	logger *zap.Logger

	verbose    bool
	configDirs []string
	pluginDirs []string
)

var rootCmd = &cobra.Command{
	Use:   "gauntlet",
	Short: "Run a gauntlet of static analysis tools over your packages",
	Long: `gauntlet runs a configurable set of linters, style checkers and security
scanners against one or more packages and merges their findings into a single
normalized report with a deterministic exit status.

Exit codes:
  0    no issues at or above the severity threshold
  1    issues found
  2    configuration error, or a required plugin did not succeed
  130  interrupted`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logger = newLogger(verbose)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log plugin activity to stderr")
	rootCmd.PersistentFlags().StringArrayVar(&configDirs, "config-dir", nil, "Directory with defaults.yaml and profiles/ (repeatable, searched before the built-in set)")
	rootCmd.PersistentFlags().StringArrayVar(&pluginDirs, "plugin-dir", nil, "Directory with plugins/*.yaml descriptors (repeatable)")
}

// newLogger logs to stderr: everything in development form when verbose,
// warnings and errors as JSON otherwise.
func newLogger(verbose bool) *zap.Logger {
	var cfg zap.Config
	if verbose {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	}
	cfg.OutputPaths = []string{"stderr"}
	l, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return l
}

func loadResolver() (*config.Resolver, error) {
	sources := make([]config.Source, 0, len(configDirs))
	for _, dir := range configDirs {
		sources = append(sources, config.DirSource(dir))
	}
	return config.Load(sources...)
}

func loadRegistry(console reporting.ConsoleOptions) (*plugin.Registry, error) {
	return catalog.Build(catalog.Options{PluginDirs: pluginDirs, Console: console})
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	if logger != nil {
		_ = logger.Sync()
	}
	os.Exit(int(types.ExitFatal))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(int(types.ExitFatal))
	}
	if logger != nil {
		_ = logger.Sync()
	}
}
