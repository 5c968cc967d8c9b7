// Package orchestrator drives a run over one or more packages.
//
// A run has two phases. Preparation resolves every package's configuration,
// runs the discovery plugins and selects the tool plugins; any configuration
// or registry error aborts the run here, before a single tool is executed.
// Execution then runs each package's tools, normalizes and aggregates their
// output and assembles the RunReport.
package orchestrator

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/steveyegge/gauntlet/internal/aggregate"
	"github.com/steveyegge/gauntlet/internal/config"
	"github.com/steveyegge/gauntlet/internal/executor"
	"github.com/steveyegge/gauntlet/internal/plugin"
	"github.com/steveyegge/gauntlet/internal/types"
)

var tracer = otel.Tracer("gauntlet.orchestrator")

// Overrides are command-line settings applied on top of every package's
// resolved settings. nil fields leave the setting alone.
type Overrides struct {
	Timeout           *time.Duration
	Concurrency       *int
	SeverityThreshold *types.Severity
}

func (o Overrides) apply(s config.Settings) config.Settings {
	if o.Timeout != nil {
		s.Timeout = *o.Timeout
	}
	if o.Concurrency != nil {
		s.Concurrency = *o.Concurrency
	}
	if o.SeverityThreshold != nil {
		s.SeverityThreshold = *o.SeverityThreshold
	}
	return s
}

// Options select what a run does.
type Options struct {
	Profile  string
	Override string // explicit override file; "" looks for .gauntlet.yaml in each package

	// Force restricts the run to these tool plugins and their dependencies.
	Force []string

	// Reporters replaces the reporters setting when non-empty.
	Reporters []string

	Overrides Overrides
}

// Result is a finished run.
type Result struct {
	Report *types.RunReport

	// Reporters are the reporting plugins to render Report with, in order.
	Reporters []string
}

// Orchestrator runs packages through the pipeline. It holds no per-run state.
type Orchestrator struct {
	registry *plugin.Registry
	resolver *config.Resolver
	executor *executor.Executor
	logger   *zap.Logger
}

// New creates an Orchestrator. A nil logger disables logging.
func New(registry *plugin.Registry, resolver *config.Resolver, exec *executor.Executor, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if exec == nil {
		exec = executor.New(executor.WithLogger(logger))
	}
	return &Orchestrator{
		registry: registry,
		resolver: resolver,
		executor: exec,
		logger:   logger,
	}
}

// plan is everything the preparation phase decided about one package.
type plan struct {
	pkg     *types.Package
	cfg     *config.ResolvedConfig
	tools   []plugin.Tool
	skipped bool
}

// Run scans the packages rooted at paths. The returned error is non-nil only
// for configuration and registry problems found during preparation; tool
// failures, timeouts and cancellation are recorded in the report.
func (o *Orchestrator) Run(ctx context.Context, paths []string, opts Options) (*Result, error) {
	ctx, span := tracer.Start(ctx, "orchestrator.run", trace.WithAttributes(
		attribute.String("profile", opts.Profile),
		attribute.Int("packages", len(paths)),
	))
	defer span.End()

	report := &types.RunReport{
		ID:        uuid.NewString(),
		Profile:   opts.Profile,
		StartedAt: time.Now(),
	}
	log := o.logger.With(zap.String("run", report.ID))

	plans, err := o.prepare(ctx, paths, opts, log)
	if err != nil {
		return nil, err
	}
	reporters, err := o.reporters(plans, opts)
	if err != nil {
		return nil, err
	}

	for _, p := range plans {
		report.Packages = append(report.Packages, o.runPackage(ctx, p, log))
	}
	report.Cancelled = ctx.Err() != nil
	report.CompletedAt = time.Now()

	log.Info("run finished",
		zap.Int("packages", len(report.Packages)),
		zap.Bool("cancelled", report.Cancelled),
		zap.Duration("duration", report.CompletedAt.Sub(report.StartedAt)))
	return &Result{Report: report, Reporters: reporters}, nil
}

// Render writes report with each named reporting plugin in turn.
func (o *Orchestrator) Render(ctx context.Context, w io.Writer, report *types.RunReport, names []string) error {
	for _, name := range names {
		r, err := o.registry.Reporter(name)
		if err != nil {
			return err
		}
		if err := r.Report(ctx, w, report); err != nil {
			return fmt.Errorf("reporter %s: %w", name, err)
		}
	}
	return nil
}

func (o *Orchestrator) prepare(ctx context.Context, paths []string, opts Options, log *zap.Logger) ([]plan, error) {
	var force []string
	if len(opts.Force) > 0 {
		var err error
		if force, err = o.registry.WithDependencies(opts.Force); err != nil {
			return nil, fmt.Errorf("plugin list: %w", err)
		}
		// The force list selects tools; discovery stays as configured.
		for _, d := range o.registry.OfKind(plugin.KindDiscovery) {
			force = append(force, d.Name)
		}
	}

	seen := map[string]bool{}
	var plans []plan
	for _, p := range paths {
		root, err := filepath.Abs(p)
		if err != nil {
			return nil, fmt.Errorf("package %s: %w", p, err)
		}
		if seen[root] {
			continue
		}
		seen[root] = true

		info, err := os.Stat(root)
		if err != nil {
			return nil, fmt.Errorf("package %s: %w", p, err)
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("package %s: not a directory", p)
		}

		cfg, err := o.resolver.Resolve(root, opts.Profile, opts.Override)
		if err != nil {
			return nil, fmt.Errorf("package %s: %w", p, err)
		}
		cfg = cfg.WithSettings(opts.Overrides.apply(cfg.Settings))
		if force != nil {
			cfg = cfg.Restrict(force)
		}

		if slices.Contains(cfg.Settings.IgnorePackages, filepath.Base(root)) {
			log.Info("package ignored", zap.String("package", root))
			plans = append(plans, plan{pkg: types.NewPackage(root), cfg: cfg, skipped: true})
			continue
		}

		pkg, err := o.discover(ctx, root, cfg, log)
		if err != nil {
			return nil, fmt.Errorf("package %s: %w", p, err)
		}
		descs, err := o.registry.SelectApplicable(pkg, cfg)
		if err != nil {
			return nil, fmt.Errorf("package %s: %w", p, err)
		}
		tools := make([]plugin.Tool, 0, len(descs))
		for _, d := range descs {
			t, err := o.registry.Tool(d.Name)
			if err != nil {
				return nil, fmt.Errorf("package %s: %w", p, err)
			}
			tools = append(tools, t)
		}

		log.Debug("package planned",
			zap.String("package", root),
			zap.Strings("languages", pkg.Languages()),
			zap.Strings("build_systems", pkg.BuildSystems()),
			zap.Int("tools", len(tools)))
		plans = append(plans, plan{pkg: pkg, cfg: cfg, tools: tools})
	}
	return plans, nil
}

// discover runs the selected discovery plugins concurrently and merges their
// facts. A failing discovery plugin is logged and contributes nothing.
func (o *Orchestrator) discover(ctx context.Context, root string, cfg *config.ResolvedConfig, log *zap.Logger) (*types.Package, error) {
	descs, err := o.registry.SelectDiscovery(cfg)
	if err != nil {
		return nil, err
	}

	discs := make([]plugin.Discoverer, len(descs))
	for i, d := range descs {
		if discs[i], err = o.registry.Discoverer(d.Name); err != nil {
			return nil, err
		}
	}

	facts := make([]types.Facts, len(discs))
	g, gctx := errgroup.WithContext(ctx)
	for i, disc := range discs {
		g.Go(func() error {
			f, err := disc.Detect(gctx, root)
			if err != nil {
				log.Warn("discovery plugin failed",
					zap.String("plugin", descs[i].Name),
					zap.String("package", root),
					zap.Error(err))
				return nil
			}
			facts[i] = f
			return nil
		})
	}
	_ = g.Wait()
	return types.NewPackage(root, facts...), nil
}

// reporters returns the reporting plugins to render with: the explicit list,
// else the reporters settings of every package in first-seen order.
func (o *Orchestrator) reporters(plans []plan, opts Options) ([]string, error) {
	names := opts.Reporters
	if len(names) == 0 {
		for _, p := range plans {
			for _, n := range p.cfg.Settings.Reporters {
				if !slices.Contains(names, n) {
					names = append(names, n)
				}
			}
		}
	}
	if len(names) == 0 {
		names = config.DefaultSettings().Reporters
	}
	for _, n := range names {
		if _, err := o.registry.Reporter(n); err != nil {
			return nil, err
		}
	}
	return names, nil
}

func (o *Orchestrator) runPackage(ctx context.Context, p plan, log *zap.Logger) types.PackageReport {
	pr := types.PackageReport{
		Name:              p.pkg.Name(),
		Path:              p.pkg.Path(),
		Profile:           p.cfg.Profile,
		Languages:         p.pkg.Languages(),
		BuildSystems:      p.pkg.BuildSystems(),
		SeverityThreshold: p.cfg.Settings.SeverityThreshold,
		Skipped:           p.skipped,
		Issues:            []types.Issue{},
		Executions:        []types.ExecutionSummary{},
	}
	if p.skipped {
		return pr
	}

	results := o.executor.Run(ctx, p.pkg, p.tools, p.cfg)

	lists := make([][]types.Issue, len(results))
	for i, res := range results {
		res, issues := aggregate.Normalize(res, p.tools[i], p.pkg.Path())
		if p.cfg.Settings.HonorNolint {
			var dropped int
			issues, dropped = aggregate.FilterInline(p.pkg.Path(), issues)
			pr.Suppressed += dropped
		}
		if res.ErrorKind == types.ErrorOutputParse {
			log.Warn("plugin output could not be parsed",
				zap.String("plugin", res.Plugin),
				zap.String("package", p.pkg.Path()),
				zap.String("error", res.Message))
		}
		results[i] = res
		lists[i] = issues
	}

	agg, err := aggregate.Aggregate(lists, p.cfg.Suppressions)
	if err != nil {
		pr.Error = err.Error()
		return pr
	}
	pr.Issues = append(pr.Issues, agg.Issues...)
	pr.Suppressed += agg.Suppressed
	pr.Duplicates = agg.Duplicates

	perPlugin := map[string]int{}
	for _, is := range agg.Issues {
		perPlugin[is.Plugin]++
	}
	for _, res := range results {
		pr.Executions = append(pr.Executions, types.ExecutionSummary{
			Result:   res,
			Kind:     string(plugin.KindTool),
			Required: p.cfg.IsRequired(res.Plugin),
			Issues:   perPlugin[res.Plugin],
		})
	}
	return pr
}
