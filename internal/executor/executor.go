// Package executor runs the selected tool plugins for one package.
//
// Plugins are grouped into dependency layers. Layers run in order; the
// plugins inside a layer run concurrently, bounded by a weighted semaphore.
// Every invocation is isolated: errors, rejected exit codes, timeouts and
// panics become an ExecutionResult and never stop sibling plugins.
package executor

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/steveyegge/gauntlet/internal/config"
	"github.com/steveyegge/gauntlet/internal/metrics"
	"github.com/steveyegge/gauntlet/internal/plugin"
	"github.com/steveyegge/gauntlet/internal/types"
)

var tracer = otel.Tracer("gauntlet.executor")

// PanicError is the error recorded when a plugin panics.
type PanicError struct {
	Plugin string
	Value  any
	Stack  string
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("plugin %s panicked: %v", e.Plugin, e.Value)
}

// Executor runs tool plugins. It holds no per-run state and is safe for
// concurrent use.
type Executor struct {
	logger   *zap.Logger
	recorder metrics.Recorder
}

// Option customizes an Executor.
type Option func(*Executor)

// WithLogger sets the logger. nil keeps the no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Executor) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithRecorder reports every finished invocation to r.
func WithRecorder(r metrics.Recorder) Option {
	return func(e *Executor) {
		if r != nil {
			e.recorder = r
		}
	}
}

// New creates an Executor.
func New(opts ...Option) *Executor {
	e := &Executor{logger: zap.NewNop(), recorder: metrics.Nop{}}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// DefaultConcurrency is the pool size used when settings leave concurrency
// at 0: the number of logical CPUs.
func DefaultConcurrency() int {
	if n, err := cpu.Counts(true); err == nil && n > 0 {
		return n
	}
	return runtime.NumCPU()
}

// Run invokes tools against pkg and returns one result per tool, in the
// order tools were given. Results of invocations that finished before ctx was
// cancelled are kept; in-flight and not-yet-started invocations are reported
// as cancelled.
func (e *Executor) Run(ctx context.Context, pkg *types.Package, tools []plugin.Tool, cfg *config.ResolvedConfig) []types.ExecutionResult {
	results := make([]types.ExecutionResult, len(tools))
	started := make([]bool, len(tools))

	index := make(map[string]int, len(tools))
	descs := make([]plugin.Descriptor, len(tools))
	for i, t := range tools {
		descs[i] = t.Descriptor()
		index[descs[i].Name] = i
	}

	layers, err := plugin.Layers(descs)
	if err != nil {
		for i, d := range descs {
			results[i] = types.ExecutionResult{
				Package:   pkg.Path(),
				Plugin:    d.Name,
				Status:    types.StatusFailure,
				ErrorKind: types.ErrorInvocation,
				Message:   err.Error(),
			}
		}
		return results
	}

	workers := cfg.Settings.Concurrency
	if workers <= 0 {
		workers = DefaultConcurrency()
	}
	sem := semaphore.NewWeighted(int64(workers))

	var limiter *rate.Limiter
	if cfg.Settings.LaunchRate > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.Settings.LaunchRate), 1)
	}

	e.logger.Debug("executing plugins",
		zap.String("package", pkg.Path()),
		zap.Int("plugins", len(tools)),
		zap.Int("layers", len(layers)),
		zap.Int("concurrency", workers))

run:
	for _, layer := range layers {
		var wg sync.WaitGroup
		for _, d := range layer {
			if err := sem.Acquire(ctx, 1); err != nil {
				wg.Wait()
				break run
			}
			if limiter != nil {
				if err := limiter.Wait(ctx); err != nil {
					sem.Release(1)
					wg.Wait()
					break run
				}
			}

			i := index[d.Name]
			started[i] = true
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer sem.Release(1)
				results[i] = e.invoke(ctx, pkg, tools[i], cfg)
			}()
		}
		wg.Wait()
		if ctx.Err() != nil {
			break
		}
	}

	for i, d := range descs {
		if started[i] {
			continue
		}
		results[i] = types.ExecutionResult{
			Package:   pkg.Path(),
			Plugin:    d.Name,
			Status:    types.StatusCancelled,
			ErrorKind: types.ErrorCancelled,
			Message:   "not started: run cancelled",
		}
		e.recorder.PluginFinished(d.Name, types.StatusCancelled, 0)
	}
	return results
}

type outcome struct {
	out types.RawOutput
	err error
}

// invoke runs one tool under its own timeout. The tool runs in its own
// goroutine so a tool that ignores its context cannot hold the executor past
// the deadline.
func (e *Executor) invoke(ctx context.Context, pkg *types.Package, tool plugin.Tool, cfg *config.ResolvedConfig) types.ExecutionResult {
	name := tool.Descriptor().Name
	timeout := cfg.Timeout(name)
	log := e.logger.With(zap.String("plugin", name), zap.String("package", pkg.Path()))

	ctx, span := tracer.Start(ctx, "executor.invoke", trace.WithAttributes(
		attribute.String("plugin", name),
		attribute.String("package", pkg.Path()),
		attribute.Int64("timeout_ms", timeout.Milliseconds()),
	))
	defer span.End()

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	log.Debug("plugin started", zap.Duration("timeout", timeout))
	start := time.Now()

	done := make(chan outcome, 1)
	go func() {
		var o outcome
		defer func() {
			if r := recover(); r != nil {
				stack := string(debug.Stack())
				log.Error("plugin panicked", zap.Any("panic", r), zap.String("stack", stack))
				o = outcome{err: &PanicError{Plugin: name, Value: r, Stack: stack}}
			}
			done <- o
		}()
		o.out, o.err = tool.Invoke(runCtx, pkg, cfg.Plugin(name))
	}()

	var o outcome
	select {
	case o = <-done:
	case <-runCtx.Done():
		select {
		case o = <-done:
		default:
			o = outcome{err: runCtx.Err()}
		}
	}

	res := types.ExecutionResult{
		Package:  pkg.Path(),
		Plugin:   name,
		Output:   o.out,
		Duration: time.Since(start),
	}
	switch {
	case o.err == nil:
		res.Status = types.StatusSuccess
	case ctx.Err() != nil:
		res.Status = types.StatusCancelled
		res.ErrorKind = types.ErrorCancelled
		res.Message = "run cancelled"
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		res.Status = types.StatusTimeout
		res.ErrorKind = types.ErrorTimeout
		res.Message = fmt.Sprintf("timed out after %s", timeout)
	default:
		res.Status = types.StatusFailure
		res.ErrorKind = types.ErrorInvocation
		res.Message = o.err.Error()
	}

	span.SetAttributes(
		attribute.String("status", string(res.Status)),
		attribute.Int("exit_code", res.Output.ExitCode),
	)
	if res.Status != types.StatusSuccess {
		span.RecordError(errors.New(res.Message))
		span.SetStatus(codes.Error, res.Message)
		log.Warn("plugin did not succeed",
			zap.String("status", string(res.Status)),
			zap.String("error", res.Message),
			zap.Duration("duration", res.Duration))
	} else {
		log.Info("plugin finished",
			zap.Int("exit_code", res.Output.ExitCode),
			zap.Duration("duration", res.Duration))
	}
	e.recorder.PluginFinished(name, res.Status, res.Duration)
	return res
}
