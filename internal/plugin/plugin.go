// Package plugin defines the plugin contract and the immutable registry that
// exposes plugins by name.
//
// There are three kinds of plugin:
//   - discovery plugins inspect a package root and report languages and
//     build systems
//   - tool plugins run one external analysis tool and parse its output
//   - reporting plugins render the final RunReport
//
// A plugin is any value implementing one of the Discoverer, Tool or Reporter
// interfaces. New tools are added by implementing the interface; there is no
// shared base type.
package plugin

import (
	"context"
	"io"

	"github.com/steveyegge/gauntlet/internal/config"
	"github.com/steveyegge/gauntlet/internal/types"
)

// Kind is the role a plugin plays in a run.
type Kind string

const (
	KindDiscovery Kind = "discovery"
	KindTool      Kind = "tool"
	KindReporting Kind = "reporting"
)

// DefaultPriority is used by descriptors that do not declare one. Lower
// priorities run (and report) first.
const DefaultPriority = 100

// Plugin is the part of the contract every kind shares.
type Plugin interface {
	Descriptor() Descriptor
}

// Tool runs one external analysis tool against a package.
//
// Invoke must honour ctx: the executor cancels it on timeout and on run
// cancellation. A non-nil error means the tool could not be run at all;
// findings are reported through Parse.
type Tool interface {
	Plugin
	Invoke(ctx context.Context, pkg *types.Package, opts config.PluginOptions) (types.RawOutput, error)
	Parse(out types.RawOutput) ([]Finding, error)
}

// Discoverer detects facts about a package root.
type Discoverer interface {
	Plugin
	Detect(ctx context.Context, root string) (types.Facts, error)
}

// Reporter renders a finished run.
type Reporter interface {
	Plugin
	Report(ctx context.Context, w io.Writer, report *types.RunReport) error
}

// Finding is one result as parsed from a tool's native output, before it is
// normalized into a types.Issue. File may be absolute or relative to the
// package root.
type Finding struct {
	File     string
	Line     int
	Column   int
	Severity types.Severity
	Code     string
	Message  string
}
