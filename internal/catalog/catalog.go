// Package catalog assembles the plugin registry from the built-in plugins,
// the embedded tool descriptors and any user plugin directories.
package catalog

import (
	"embed"
	"fmt"

	"github.com/steveyegge/gauntlet/internal/adapters"
	"github.com/steveyegge/gauntlet/internal/discovery"
	"github.com/steveyegge/gauntlet/internal/plugin"
	"github.com/steveyegge/gauntlet/internal/reporting"
)

//go:embed plugins
var builtinFS embed.FS

// Options control which plugins are registered.
type Options struct {
	// PluginDirs are searched, in order, for plugins/*.yaml descriptors
	// after the built-in ones.
	PluginDirs []string

	// Console configures the console reporter.
	Console reporting.ConsoleOptions
}

// Builtin returns the plugins compiled into the binary.
func Builtin(opts Options) ([]plugin.Plugin, error) {
	plugins := []plugin.Plugin{
		discovery.Languages(),
		discovery.BuildSystems(),
		adapters.NewESLint(),
		reporting.NewConsole(opts.Console),
		reporting.NewJSON(),
		reporting.NewNone(),
	}

	descs, err := plugin.LoadDescriptorsFS(builtinFS, "builtin")
	if err != nil {
		return nil, err
	}
	for _, d := range descs {
		p, err := FromDescriptor(d)
		if err != nil {
			return nil, err
		}
		plugins = append(plugins, p)
	}
	return plugins, nil
}

// FromDescriptor builds the plugin a descriptor file declares.
func FromDescriptor(d plugin.Descriptor) (plugin.Plugin, error) {
	switch d.Kind {
	case plugin.KindTool:
		return adapters.NewCommandTool(d)
	case plugin.KindDiscovery:
		return discovery.NewRuleDiscoverer(d)
	default:
		return nil, fmt.Errorf("%s: %s plugins cannot be declared in a descriptor file", d.Source, d.Kind)
	}
}

// Build creates the registry: built-ins first, then every plugin directory
// in order. A name registered twice is an error naming both sources.
func Build(opts Options) (*plugin.Registry, error) {
	plugins, err := Builtin(opts)
	if err != nil {
		return nil, fmt.Errorf("loading built-in plugins: %w", err)
	}
	for _, dir := range opts.PluginDirs {
		descs, err := plugin.LoadDescriptors(dir)
		if err != nil {
			return nil, fmt.Errorf("loading plugins from %s: %w", dir, err)
		}
		for _, d := range descs {
			p, err := FromDescriptor(d)
			if err != nil {
				return nil, err
			}
			plugins = append(plugins, p)
		}
	}
	return plugin.NewRegistry(plugins...)
}
