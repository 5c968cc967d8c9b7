// Package adapters implements tool plugins that wrap external analysis
// programs run as subprocesses.
package adapters

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/steveyegge/gauntlet/internal/config"
	"github.com/steveyegge/gauntlet/internal/plugin"
	"github.com/steveyegge/gauntlet/internal/types"
)

// Command placeholders substituted at invocation time.
const (
	PlaceholderRoot     = "{root}"
	PlaceholderResource = "{resource}"
	PlaceholderFiles    = "{files}"
	PlaceholderFlags    = "{flags}"
)

// WaitDelay bounds how long a killed tool may hold its output pipes open
// before Wait gives up on it.
const WaitDelay = 2 * time.Second

// ErrToolNotFound is returned when the tool's executable is not on PATH.
var ErrToolNotFound = errors.New("tool executable not found")

// CommandTool is a tool plugin built from a descriptor: it runs the
// descriptor's command in the package root and parses the output with the
// descriptor's parser.
type CommandTool struct {
	desc   plugin.Descriptor
	parser Parser

	resourceName string // embedded resource written to a temp file per run
	resourceData []byte
	checkOutput  func(types.RawOutput) error
}

// Option customizes a CommandTool.
type Option func(*CommandTool)

// WithEmbeddedResource ships a resource bundle with the tool. It is written
// to a temporary file for each invocation unless the plugin's resource
// option points at a user-supplied file.
func WithEmbeddedResource(name string, data []byte) Option {
	return func(t *CommandTool) {
		t.resourceName = name
		t.resourceData = data
	}
}

// WithOutputCheck adds a check run on output whose exit code was accepted.
// It lets an adapter reject output that signals a broken installation even
// though the exit code looks normal.
func WithOutputCheck(check func(types.RawOutput) error) Option {
	return func(t *CommandTool) { t.checkOutput = check }
}

// NewCommandTool builds a tool from desc.
func NewCommandTool(desc plugin.Descriptor, opts ...Option) (*CommandTool, error) {
	if desc.Kind != plugin.KindTool {
		return nil, fmt.Errorf("plugin %q: command adapters are tools, not %s", desc.Name, desc.Kind)
	}
	if len(desc.Command) == 0 {
		return nil, fmt.Errorf("plugin %q: no command", desc.Name)
	}
	parser, err := NewParser(desc.Parser, desc.Pattern)
	if err != nil {
		return nil, fmt.Errorf("plugin %q: %w", desc.Name, err)
	}
	t := &CommandTool{desc: desc, parser: parser}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

func (t *CommandTool) Descriptor() plugin.Descriptor { return t.desc }

// Invoke runs the command. ctx carries the timeout; when it expires the
// process is killed and the context error is returned.
func (t *CommandTool) Invoke(ctx context.Context, pkg *types.Package, opts config.PluginOptions) (types.RawOutput, error) {
	resource, cleanup, err := t.resource(pkg, opts)
	if err != nil {
		return types.RawOutput{}, err
	}
	defer cleanup()

	files := t.files(pkg)
	argv, skip := t.argv(pkg, opts, resource, files)
	if skip {
		return types.RawOutput{}, nil
	}

	if _, err := exec.LookPath(argv[0]); err != nil {
		return types.RawOutput{}, fmt.Errorf("%w: %s", ErrToolNotFound, argv[0])
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = pkg.Path()
	cmd.WaitDelay = WaitDelay
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	out := types.RawOutput{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}
	if ctx.Err() != nil {
		return out, ctx.Err()
	}

	var exitErr *exec.ExitError
	switch {
	case runErr == nil:
	case errors.As(runErr, &exitErr):
		out.ExitCode = exitErr.ExitCode()
	default:
		return out, fmt.Errorf("running %s: %w", argv[0], runErr)
	}

	if !t.acceptsExitCode(out.ExitCode) {
		return out, fmt.Errorf("%s exited with code %d", argv[0], out.ExitCode)
	}
	if t.checkOutput != nil {
		if err := t.checkOutput(out); err != nil {
			return out, err
		}
	}
	return out, nil
}

func (t *CommandTool) Parse(out types.RawOutput) ([]plugin.Finding, error) {
	return t.parser.Parse(out)
}

func (t *CommandTool) acceptsExitCode(code int) bool {
	if len(t.desc.OKExitCodes) == 0 {
		return code == 0
	}
	return slices.Contains(t.desc.OKExitCodes, code)
}

// files lists the package files the tool applies to, relative to the root.
func (t *CommandTool) files(pkg *types.Package) []string {
	abs := pkg.Files(t.desc.AppliesTo...)
	out := make([]string, 0, len(abs))
	for _, f := range abs {
		if rel, err := filepath.Rel(pkg.Path(), f); err == nil {
			f = rel
		}
		out = append(out, filepath.ToSlash(f))
	}
	return out
}

// argv expands the command. User flags and args go where {flags} is, else
// right before the file list, else at the end. skip is true when the command
// takes files and the package has none.
func (t *CommandTool) argv(pkg *types.Package, opts config.PluginOptions, resource string, files []string) ([]string, bool) {
	user := append(strings.Fields(opts.String(config.OptFlags)), opts.Strings(config.OptArgs)...)

	argv := []string{t.desc.Command[0]}
	if resource != "" && t.desc.ResourceFlag != "" {
		argv = append(argv, t.desc.ResourceFlag, resource)
	}

	placedUser := slices.Contains(t.desc.Command, PlaceholderFlags)
	for _, arg := range t.desc.Command[1:] {
		switch {
		case arg == PlaceholderFlags:
			argv = append(argv, user...)
		case arg == PlaceholderFiles:
			if len(files) == 0 {
				return nil, true
			}
			if !placedUser {
				argv = append(argv, user...)
				placedUser = true
			}
			argv = append(argv, files...)
		case arg == PlaceholderResource:
			if resource != "" {
				argv = append(argv, resource)
			}
		default:
			arg = strings.ReplaceAll(arg, PlaceholderRoot, pkg.Path())
			arg = strings.ReplaceAll(arg, PlaceholderResource, resource)
			argv = append(argv, arg)
		}
	}
	if !placedUser {
		argv = append(argv, user...)
	}
	return argv, false
}

// resource returns the resource path for one invocation: the resource
// option, else the descriptor's resource, else the embedded bundle written to
// a temporary file. Relative paths are taken from the package root.
func (t *CommandTool) resource(pkg *types.Package, opts config.PluginOptions) (string, func(), error) {
	noop := func() {}
	path := opts.String(config.OptResource)
	if path == "" {
		path = t.desc.Resource
	}
	if path != "" {
		if !filepath.IsAbs(path) {
			path = filepath.Join(pkg.Path(), path)
		}
		return path, noop, nil
	}
	if t.resourceData == nil {
		return "", noop, nil
	}

	dir, err := os.MkdirTemp("", "gauntlet-"+t.desc.Name+"-")
	if err != nil {
		return "", noop, fmt.Errorf("creating resource dir: %w", err)
	}
	cleanup := func() { os.RemoveAll(dir) }
	path = filepath.Join(dir, t.resourceName)
	if err := os.WriteFile(path, t.resourceData, 0644); err != nil {
		cleanup()
		return "", noop, fmt.Errorf("writing %s: %w", t.resourceName, err)
	}
	return path, cleanup, nil
}
