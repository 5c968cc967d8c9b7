package types

import (
	"path/filepath"
	"slices"
	"sort"
)

// Facts are what a discovery plugin learned about a package.
type Facts struct {
	Languages    []string            `json:"languages,omitempty"`
	BuildSystems []string            `json:"build_systems,omitempty"`
	Files        map[string][]string `json:"files,omitempty"` // language -> absolute paths
}

// Package is one unit under analysis. It is built once, after the discovery
// phase, and is read-only afterwards; accessors hand out copies.
type Package struct {
	name         string
	path         string
	languages    []string
	buildSystems []string
	files        map[string][]string
}

// NewPackage merges discovery facts into an immutable Package rooted at path.
func NewPackage(path string, facts ...Facts) *Package {
	p := &Package{
		name:  filepath.Base(path),
		path:  path,
		files: make(map[string][]string),
	}
	langs := map[string]bool{}
	builds := map[string]bool{}
	for _, f := range facts {
		for _, l := range f.Languages {
			langs[l] = true
		}
		for _, b := range f.BuildSystems {
			builds[b] = true
		}
		for lang, files := range f.Files {
			p.files[lang] = append(p.files[lang], files...)
		}
	}
	p.languages = sortedKeys(langs)
	p.buildSystems = sortedKeys(builds)
	for lang, files := range p.files {
		sort.Strings(files)
		p.files[lang] = slices.Compact(files)
	}
	return p
}

// Name returns the package name (base name of its root).
func (p *Package) Name() string { return p.name }

// Path returns the absolute package root.
func (p *Package) Path() string { return p.path }

// Languages returns the detected languages, sorted.
func (p *Package) Languages() []string { return slices.Clone(p.languages) }

// BuildSystems returns the detected build systems, sorted.
func (p *Package) BuildSystems() []string { return slices.Clone(p.buildSystems) }

// Files returns the files detected for the given languages, sorted and
// without duplicates. With no arguments all files are returned.
func (p *Package) Files(languages ...string) []string {
	var out []string
	if len(languages) == 0 {
		for _, files := range p.files {
			out = append(out, files...)
		}
	} else {
		for _, l := range languages {
			out = append(out, p.files[l]...)
		}
	}
	sort.Strings(out)
	return slices.Compact(out)
}

// Traits returns languages and build systems together. Tool applicability is
// matched against this set.
func (p *Package) Traits() []string {
	set := map[string]bool{}
	for _, l := range p.languages {
		set[l] = true
	}
	for _, b := range p.buildSystems {
		set[b] = true
	}
	return sortedKeys(set)
}

// HasTrait reports whether the package has the given language or build system.
func (p *Package) HasTrait(trait string) bool {
	return slices.Contains(p.languages, trait) || slices.Contains(p.buildSystems, trait)
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
