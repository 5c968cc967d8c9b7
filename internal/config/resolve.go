package config

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

//go:embed builtin
var builtinFS embed.FS

// OverrideFileName is the per-package override looked up in the package root.
const OverrideFileName = ".gauntlet.yaml"

const (
	defaultsFile = "defaults.yaml"
	profilesDir  = "profiles"
)

// Source is one place configuration documents are read from. Sources are
// searched in order; the first one that has a file wins.
type Source struct {
	Name string
	FS   fs.FS
}

// DirSource returns a Source backed by a directory on disk.
func DirSource(dir string) Source {
	return Source{Name: dir, FS: os.DirFS(dir)}
}

// BuiltinSource returns the embedded defaults and profiles.
func BuiltinSource() Source {
	sub, err := fs.Sub(builtinFS, "builtin")
	if err != nil {
		panic(fmt.Sprintf("embedded config missing: %v", err))
	}
	return Source{Name: "builtin", FS: sub}
}

// Resolver merges the configuration layers for packages. It is built once at
// startup by Load and is read-only afterwards, so it can be shared freely.
type Resolver struct {
	sources      []Source
	defaults     *Document
	defaultsPath string
	profiles     map[string]*Document // flattened, inheritance applied
	profilePaths map[string]string
}

// Load reads the defaults document and every profile from the given sources
// followed by the built-in source. Any malformed document fails the load.
func Load(sources ...Source) (*Resolver, error) {
	r := &Resolver{
		sources:      append(append([]Source(nil), sources...), BuiltinSource()),
		profiles:     make(map[string]*Document),
		profilePaths: make(map[string]string),
	}

	defaults, where, err := r.readFirst(defaultsFile, LayerDefaults)
	if err != nil {
		return nil, err
	}
	if defaults == nil {
		defaults = &Document{}
		where = "(none)"
	}
	if defaults.Inherits != "" {
		return nil, &ConfigParseError{Layer: LayerDefaults, Path: where, Err: fmt.Errorf("defaults cannot inherit")}
	}
	if len(defaults.Packages) > 0 || defaults.Profile != "" {
		return nil, &ConfigParseError{Layer: LayerDefaults, Path: where, Err: fmt.Errorf("defaults cannot select profiles")}
	}
	defaults.tagSuppressions(string(LayerDefaults) + ":" + where)
	r.defaults = defaults
	r.defaultsPath = where

	raw := make(map[string]*Document)
	for _, name := range r.profileNames() {
		doc, where, err := r.readFirst(filepath.ToSlash(filepath.Join(profilesDir, name+".yaml")), LayerProfile)
		if err != nil {
			return nil, err
		}
		if doc.Profile != "" {
			return nil, &ConfigParseError{Layer: LayerProfile, Path: where, Err: fmt.Errorf("profile key is only valid in package overrides")}
		}
		doc.tagSuppressions(string(LayerProfile) + ":" + where)
		raw[name] = doc
		r.profilePaths[name] = where
	}
	for name := range raw {
		flat, err := flattenProfile(name, raw, r.profilePaths, nil)
		if err != nil {
			return nil, err
		}
		r.profiles[name] = flat
	}
	for name, flat := range r.profiles {
		for pkg, target := range flat.Packages {
			if _, ok := r.profiles[target]; !ok {
				return nil, &ConfigParseError{
					Layer: LayerProfile,
					Path:  r.profilePaths[name],
					Err:   fmt.Errorf("packages: %s maps to unknown profile %q", pkg, target),
				}
			}
		}
	}
	return r, nil
}

// Profiles returns the names of all known profiles, sorted.
func (r *Resolver) Profiles() []string {
	names := make([]string, 0, len(r.profiles))
	for name := range r.profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Profile returns the flattened profile document and the file it came from.
func (r *Resolver) Profile(name string) (*Document, string, error) {
	doc, ok := r.profiles[name]
	if !ok {
		return nil, "", r.notFound(name)
	}
	return doc.clone(), r.profilePaths[name], nil
}

// Resolve merges defaults, a profile and the package override into one
// ResolvedConfig. overridePath may be empty, in which case
// <packagePath>/.gauntlet.yaml is used when it exists.
//
// The profile applied is chosen per package: the override's profile key
// wins, then the packages map of profileName (keyed by the base name of
// packagePath), then profileName itself. The mapped profile's own packages
// map is not consulted again.
func (r *Resolver) Resolve(packagePath, profileName, overridePath string) (*ResolvedConfig, error) {
	requested, ok := r.profiles[profileName]
	if !ok {
		return nil, r.notFound(profileName)
	}

	override, where, err := readOverride(packagePath, overridePath)
	if err != nil {
		return nil, err
	}

	name := profileName
	if mapped, ok := requested.Packages[filepath.Base(packagePath)]; ok {
		name = mapped
	}
	if override != nil && override.Profile != "" {
		name = override.Profile
		if _, ok := r.profiles[name]; !ok {
			return nil, &ConfigParseError{Layer: LayerOverride, Path: where, Err: r.notFound(name)}
		}
	}
	profile := r.profiles[name]

	merged := r.defaults.clone()
	merged.Description = ""
	merged.overlay(profile)
	layers := []string{
		string(LayerDefaults) + ":" + r.defaultsPath,
		string(LayerProfile) + ":" + r.profilePaths[name],
	}

	if override != nil {
		override.tagSuppressions(string(LayerOverride) + ":" + where)
		merged.overlay(override)
		layers = append(layers, string(LayerOverride)+":"+where)
	}

	settings, err := decodeSettings(DefaultSettings(), merged.Settings)
	if err != nil {
		// Each layer validated on its own, so this only trips on a bug.
		return nil, &ConfigParseError{Layer: LayerOverride, Path: where, Err: err}
	}

	plugins := make(map[string]PluginOptions, len(merged.Plugins))
	for name, opts := range merged.Plugins {
		plugins[name] = PluginOptions(opts)
	}

	return &ResolvedConfig{
		PackagePath:  packagePath,
		Profile:      name,
		Settings:     settings,
		Suppressions: merged.Suppressions,
		Layers:       layers,
		plugins:      plugins,
	}, nil
}

func readOverride(packagePath, overridePath string) (*Document, string, error) {
	explicit := overridePath != ""
	if !explicit {
		overridePath = filepath.Join(packagePath, OverrideFileName)
	}
	data, err := os.ReadFile(overridePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && !explicit {
			return nil, "", nil
		}
		return nil, "", &ConfigParseError{Layer: LayerOverride, Path: overridePath, Err: err}
	}
	doc, err := ParseDocument(data)
	if err != nil {
		return nil, "", &ConfigParseError{Layer: LayerOverride, Path: overridePath, Err: err}
	}
	if doc.Inherits != "" {
		return nil, "", &ConfigParseError{Layer: LayerOverride, Path: overridePath, Err: fmt.Errorf("package overrides cannot inherit")}
	}
	if len(doc.Packages) > 0 {
		return nil, "", &ConfigParseError{Layer: LayerOverride, Path: overridePath, Err: fmt.Errorf("packages map is only valid in profiles")}
	}
	return doc, overridePath, nil
}

// readFirst parses name from the first source that has it. A missing file in
// every source returns a nil document.
func (r *Resolver) readFirst(name string, layer Layer) (*Document, string, error) {
	for _, src := range r.sources {
		data, err := fs.ReadFile(src.FS, name)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, "", &ConfigParseError{Layer: layer, Path: src.Name + "/" + name, Err: err}
		}
		where := src.Name + "/" + name
		doc, err := ParseDocument(data)
		if err != nil {
			return nil, "", &ConfigParseError{Layer: layer, Path: where, Err: err}
		}
		return doc, where, nil
	}
	return nil, "", nil
}

// profileNames lists every profile file across all sources.
func (r *Resolver) profileNames() []string {
	seen := map[string]bool{}
	for _, src := range r.sources {
		entries, err := fs.ReadDir(src.FS, profilesDir)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if e.IsDir() || filepath.Ext(e.Name()) != ".yaml" {
				continue
			}
			seen[strings.TrimSuffix(e.Name(), ".yaml")] = true
		}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Resolver) notFound(name string) error {
	searched := make([]string, len(r.sources))
	for i, src := range r.sources {
		searched[i] = src.Name
	}
	return &ProfileNotFoundError{Name: name, Searched: searched}
}

// flattenProfile applies the inheritance chain of a profile, base first.
func flattenProfile(name string, raw map[string]*Document, paths map[string]string, chain []string) (*Document, error) {
	for _, seen := range chain {
		if seen == name {
			return nil, &ConfigParseError{
				Layer: LayerProfile,
				Path:  paths[chain[0]],
				Err:   fmt.Errorf("inheritance cycle: %s -> %s", strings.Join(chain, " -> "), name),
			}
		}
	}
	doc := raw[name]
	if doc.Inherits == "" {
		return doc.clone(), nil
	}
	if _, ok := raw[doc.Inherits]; !ok {
		return nil, &ConfigParseError{
			Layer: LayerProfile,
			Path:  paths[name],
			Err:   fmt.Errorf("inherits unknown profile %q", doc.Inherits),
		}
	}
	base, err := flattenProfile(doc.Inherits, raw, paths, append(chain, name))
	if err != nil {
		return nil, err
	}
	base.overlay(doc)
	base.Inherits = ""
	return base, nil
}

// ResolvedConfig is the fully merged configuration of one package. It is
// read-only once built and safe to share between goroutines.
type ResolvedConfig struct {
	PackagePath  string
	Profile      string
	Settings     Settings
	Suppressions []SuppressionRule
	Layers       []string // provenance of each applied layer, lowest precedence first

	plugins map[string]PluginOptions
}

// Plugin returns a copy of the option map for name (empty when unset).
func (c *ResolvedConfig) Plugin(name string) PluginOptions {
	return c.plugins[name].Clone()
}

// PluginNames returns every plugin that any layer mentions, sorted.
func (c *ResolvedConfig) PluginNames() []string {
	names := make([]string, 0, len(c.plugins))
	for name := range c.plugins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// EnabledPlugins returns the names of plugins with enabled: true, sorted.
func (c *ResolvedConfig) EnabledPlugins() []string {
	var names []string
	for _, name := range c.PluginNames() {
		if c.plugins[name].Enabled() {
			names = append(names, name)
		}
	}
	return names
}

// IsEnabled reports whether the plugin is enabled.
func (c *ResolvedConfig) IsEnabled(name string) bool { return c.plugins[name].Enabled() }

// IsRequired reports whether the plugin is marked required.
func (c *ResolvedConfig) IsRequired(name string) bool { return c.plugins[name].Required() }

// Timeout returns the effective timeout for the plugin.
func (c *ResolvedConfig) Timeout(name string) time.Duration {
	return c.plugins[name].Timeout(c.Settings.Timeout)
}

// WithSettings returns a copy of c whose settings are replaced. Used to apply
// command-line overrides without touching the shared original.
func (c *ResolvedConfig) WithSettings(s Settings) *ResolvedConfig {
	out := *c
	out.Settings = s
	return &out
}

// Restrict returns a copy of c in which only the named plugins stay enabled.
func (c *ResolvedConfig) Restrict(names []string) *ResolvedConfig {
	keep := make(map[string]bool, len(names))
	for _, n := range names {
		keep[n] = true
	}
	out := *c
	out.plugins = make(map[string]PluginOptions, len(c.plugins))
	for name, opts := range c.plugins {
		cp := opts.Clone()
		if !keep[name] {
			cp[OptEnabled] = false
		}
		out.plugins[name] = cp
	}
	return &out
}
