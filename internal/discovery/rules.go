// Package discovery implements discovery plugins. Each one walks a package
// root and reports the languages and build systems it finds, together with
// the files of each language. The built-in plugins and the ones declared in
// descriptor files share one rule-driven implementation.
package discovery

import (
	"bufio"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/steveyegge/gauntlet/internal/plugin"
	"github.com/steveyegge/gauntlet/internal/types"
)

// RuleDiscoverer detects languages by file name and build systems by marker
// files.
type RuleDiscoverer struct {
	desc    plugin.Descriptor
	rules   plugin.Detect
	exclude []string
}

// NewRuleDiscoverer builds a discoverer from a descriptor with detect rules.
func NewRuleDiscoverer(desc plugin.Descriptor) (*RuleDiscoverer, error) {
	if desc.Kind != plugin.KindDiscovery {
		return nil, fmt.Errorf("plugin %q: rule discoverers are discovery plugins, not %s", desc.Name, desc.Kind)
	}
	if desc.Detect == nil {
		return nil, fmt.Errorf("plugin %q: no detect rules", desc.Name)
	}
	for lang, patterns := range desc.Detect.Languages {
		for _, p := range patterns {
			if _, err := path.Match(p, ""); err != nil {
				return nil, fmt.Errorf("plugin %q: language %s: invalid pattern %q", desc.Name, lang, p)
			}
		}
	}
	return &RuleDiscoverer{desc: desc, rules: *desc.Detect}, nil
}

// WithExcludes returns a copy of d that skips the given walk patterns
// instead of DefaultExcludes.
func (d *RuleDiscoverer) WithExcludes(exclude []string) *RuleDiscoverer {
	out := *d
	out.exclude = exclude
	return &out
}

func (d *RuleDiscoverer) Descriptor() plugin.Descriptor { return d.desc }

// Detect walks root and applies the rules.
func (d *RuleDiscoverer) Detect(ctx context.Context, root string) (types.Facts, error) {
	facts := types.Facts{Files: make(map[string][]string)}

	for _, bs := range sortedKeys(d.rules.BuildSystems) {
		for _, marker := range d.rules.BuildSystems[bs] {
			if _, err := os.Stat(filepath.Join(root, filepath.FromSlash(marker))); err == nil {
				facts.BuildSystems = append(facts.BuildSystems, bs)
				break
			}
		}
	}

	if len(d.rules.Languages) > 0 || len(d.rules.Shebangs) > 0 {
		err := newWalker(root, d.exclude).walk(ctx, func(rel string, _ fs.DirEntry) error {
			abs := filepath.Join(root, filepath.FromSlash(rel))
			for _, lang := range d.classify(abs) {
				facts.Files[lang] = append(facts.Files[lang], abs)
			}
			return nil
		})
		if err != nil {
			return types.Facts{}, err
		}
	}

	facts.Languages = sortedKeys(facts.Files)
	return facts, nil
}

// classify returns the languages a file belongs to. A file may belong to
// more than one (a .html file is both html and, for ESLint, javascript).
func (d *RuleDiscoverer) classify(abs string) []string {
	base := filepath.Base(abs)
	ext := strings.ToLower(filepath.Ext(base))

	var langs []string
	for _, lang := range sortedKeys(d.rules.Languages) {
		for _, p := range d.rules.Languages[lang] {
			if matchName(p, base, ext) {
				langs = append(langs, lang)
				break
			}
		}
	}
	if len(langs) == 0 && ext == "" && len(d.rules.Shebangs) > 0 {
		if interp := shebang(abs); interp != "" {
			for _, lang := range sortedKeys(d.rules.Shebangs) {
				for _, name := range d.rules.Shebangs[lang] {
					if interp == name {
						langs = append(langs, lang)
						break
					}
				}
			}
		}
	}
	return langs
}

func matchName(pattern, base, ext string) bool {
	switch {
	case strings.ContainsAny(pattern, "*?["):
		ok, _ := path.Match(pattern, base)
		return ok
	case strings.HasPrefix(pattern, "."):
		return ext == strings.ToLower(pattern)
	default:
		return base == pattern
	}
}

// shebang returns the interpreter named on a "#!" first line, with any
// version suffix kept ("python3"). "#!/usr/bin/env bash" yields "bash".
func shebang(abs string) string {
	f, err := os.Open(abs)
	if err != nil {
		return ""
	}
	defer f.Close()

	line, err := bufio.NewReader(f).ReadString('\n')
	if err != nil && line == "" {
		return ""
	}
	if !strings.HasPrefix(line, "#!") {
		return ""
	}
	fields := strings.Fields(strings.TrimPrefix(line, "#!"))
	if len(fields) == 0 {
		return ""
	}
	interp := filepath.Base(fields[0])
	if interp == "env" {
		for _, f := range fields[1:] {
			if !strings.HasPrefix(f, "-") {
				return filepath.Base(f)
			}
		}
		return ""
	}
	return interp
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
