package plugin

import (
	"fmt"
	"sort"
	"strings"

	"github.com/steveyegge/gauntlet/internal/config"
	"github.com/steveyegge/gauntlet/internal/types"
)

// Registry exposes plugins by stable name. It is built once at startup by
// NewRegistry and is read-only afterwards, so it needs no locking.
type Registry struct {
	plugins map[string]Plugin
	descs   map[string]Descriptor
	ordered []Descriptor // by (priority, name)
}

// NewRegistry validates and registers plugins. A duplicate name, an invalid
// descriptor, a kind that does not match the implemented interface or a
// dependency on an unknown tool is a fatal error.
func NewRegistry(plugins ...Plugin) (*Registry, error) {
	r := &Registry{
		plugins: make(map[string]Plugin, len(plugins)),
		descs:   make(map[string]Descriptor, len(plugins)),
	}

	for _, p := range plugins {
		d := p.Descriptor()
		if err := d.Validate(); err != nil {
			return nil, err
		}
		if err := checkKind(p, d); err != nil {
			return nil, err
		}
		if prev, exists := r.descs[d.Name]; exists {
			return nil, &DuplicatePluginNameError{Name: d.Name, First: sourceOf(prev), Second: sourceOf(d)}
		}
		r.plugins[d.Name] = p
		r.descs[d.Name] = d
		r.ordered = append(r.ordered, d)
	}
	sortDescriptors(r.ordered)

	for _, d := range r.ordered {
		for _, dep := range d.DependsOn {
			target, ok := r.descs[dep]
			if !ok {
				return nil, &DependencyError{Plugin: d.Name, Dependency: dep, Reason: "is not registered"}
			}
			if target.Kind != d.Kind {
				return nil, &DependencyError{Plugin: d.Name, Dependency: dep, Reason: fmt.Sprintf("is a %s plugin", target.Kind)}
			}
		}
	}
	if _, err := Layers(r.ordered); err != nil {
		return nil, err
	}
	return r, nil
}

func checkKind(p Plugin, d Descriptor) error {
	var ok bool
	switch d.Kind {
	case KindTool:
		_, ok = p.(Tool)
	case KindDiscovery:
		_, ok = p.(Discoverer)
	case KindReporting:
		_, ok = p.(Reporter)
	}
	if !ok {
		return fmt.Errorf("plugin %q declares kind %s but does not implement it", d.Name, d.Kind)
	}
	return nil
}

func sourceOf(d Descriptor) string {
	if d.Source == "" {
		return "builtin"
	}
	return d.Source
}

// Discover returns every registered descriptor ordered by (priority, name).
func (r *Registry) Discover() []Descriptor {
	return append([]Descriptor(nil), r.ordered...)
}

// OfKind returns the registered descriptors of one kind, ordered.
func (r *Registry) OfKind(kind Kind) []Descriptor {
	var out []Descriptor
	for _, d := range r.ordered {
		if d.Kind == kind {
			out = append(out, d)
		}
	}
	return out
}

// Get returns the descriptor registered under name.
func (r *Registry) Get(name string) (Descriptor, error) {
	d, ok := r.descs[name]
	if !ok {
		return Descriptor{}, &PluginNotFoundError{Name: name}
	}
	return d, nil
}

// Tool returns the tool plugin registered under name.
func (r *Registry) Tool(name string) (Tool, error) {
	if t, ok := r.plugins[name].(Tool); ok {
		return t, nil
	}
	return nil, &PluginNotFoundError{Name: name, Kind: KindTool}
}

// Discoverer returns the discovery plugin registered under name.
func (r *Registry) Discoverer(name string) (Discoverer, error) {
	if d, ok := r.plugins[name].(Discoverer); ok {
		return d, nil
	}
	return nil, &PluginNotFoundError{Name: name, Kind: KindDiscovery}
}

// Reporter returns the reporting plugin registered under name.
func (r *Registry) Reporter(name string) (Reporter, error) {
	if rep, ok := r.plugins[name].(Reporter); ok {
		return rep, nil
	}
	return nil, &PluginNotFoundError{Name: name, Kind: KindReporting}
}

// SelectApplicable returns the tool plugins to run for pkg: enabled in cfg
// and applicable to the package's languages or build systems, ordered by
// (priority, name). Enabling an unregistered plugin, or a selected plugin
// whose dependency is not selected, is an error.
func (r *Registry) SelectApplicable(pkg *types.Package, cfg *config.ResolvedConfig) ([]Descriptor, error) {
	var selected []Descriptor
	for _, name := range cfg.EnabledPlugins() {
		d, ok := r.descs[name]
		if !ok {
			return nil, &PluginNotFoundError{Name: name}
		}
		if d.Kind != KindTool || !d.Applies(pkg) {
			continue
		}
		selected = append(selected, d)
	}
	sortDescriptors(selected)

	in := make(map[string]bool, len(selected))
	for _, d := range selected {
		in[d.Name] = true
	}
	for _, d := range selected {
		for _, dep := range d.DependsOn {
			if !in[dep] {
				return nil, &DependencyError{Plugin: d.Name, Dependency: dep, Reason: "is not enabled for package " + pkg.Name()}
			}
		}
	}
	return selected, nil
}

// SelectDiscovery returns the discovery plugins enabled in cfg, or every
// registered discovery plugin when cfg enables none.
func (r *Registry) SelectDiscovery(cfg *config.ResolvedConfig) ([]Descriptor, error) {
	var selected []Descriptor
	for _, name := range cfg.EnabledPlugins() {
		d, ok := r.descs[name]
		if !ok {
			return nil, &PluginNotFoundError{Name: name}
		}
		if d.Kind == KindDiscovery {
			selected = append(selected, d)
		}
	}
	if len(selected) == 0 {
		return r.OfKind(KindDiscovery), nil
	}
	sortDescriptors(selected)
	return selected, nil
}

// WithDependencies expands names with everything they transitively depend
// on. The result is sorted.
func (r *Registry) WithDependencies(names []string) ([]string, error) {
	seen := make(map[string]bool)
	var visit func(name string) error
	visit = func(name string) error {
		if seen[name] {
			return nil
		}
		d, ok := r.descs[name]
		if !ok {
			return &PluginNotFoundError{Name: name}
		}
		seen[name] = true
		for _, dep := range d.DependsOn {
			if err := visit(dep); err != nil {
				return err
			}
		}
		return nil
	}
	for _, name := range names {
		if err := visit(name); err != nil {
			return nil, err
		}
	}
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}

// Layers splits descs into dependency layers: every plugin's dependencies
// are in an earlier layer. Dependencies outside descs are ignored. Each
// layer is ordered by (priority, name).
//
// For example, if "bandit" depends on "pip-audit", this returns
// [[pip-audit], [bandit]] so pip-audit runs first.
func Layers(descs []Descriptor) ([][]Descriptor, error) {
	byName := make(map[string]Descriptor, len(descs))
	for _, d := range descs {
		byName[d.Name] = d
	}

	// Build dependency graph
	dependents := make(map[string][]string)
	inDegree := make(map[string]int, len(descs))
	for _, d := range descs {
		inDegree[d.Name] += 0
		for _, dep := range d.DependsOn {
			if _, ok := byName[dep]; ok {
				dependents[dep] = append(dependents[dep], d.Name)
				inDegree[d.Name]++
			}
		}
	}

	// Kahn's algorithm, one layer per round
	var layers [][]Descriptor
	var current []Descriptor
	for _, d := range descs {
		if inDegree[d.Name] == 0 {
			current = append(current, d)
		}
	}
	placed := 0
	for len(current) > 0 {
		sortDescriptors(current)
		layers = append(layers, current)
		placed += len(current)

		var next []Descriptor
		for _, d := range current {
			for _, name := range dependents[d.Name] {
				inDegree[name]--
				if inDegree[name] == 0 {
					next = append(next, byName[name])
				}
			}
		}
		current = next
	}

	if placed != len(byName) {
		var stuck []string
		for name, degree := range inDegree {
			if degree > 0 {
				stuck = append(stuck, name)
			}
		}
		sort.Strings(stuck)
		return nil, &DependencyError{Plugin: stuck[0], Reason: "dependency cycle among " + strings.Join(stuck, ", ")}
	}
	return layers, nil
}

func sortDescriptors(descs []Descriptor) {
	sort.SliceStable(descs, func(i, j int) bool {
		if descs[i].Priority != descs[j].Priority {
			return descs[i].Priority < descs[j].Priority
		}
		return descs[i].Name < descs[j].Name
	})
}
