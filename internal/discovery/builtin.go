package discovery

import (
	"fmt"

	"github.com/steveyegge/gauntlet/internal/plugin"
)

// LanguageRules maps the languages known out of the box to file patterns.
var LanguageRules = map[string][]string{
	"c":          {".c", ".h"},
	"cpp":        {".cc", ".cpp", ".cxx", ".hh", ".hpp", ".hxx"},
	"css":        {".css", ".scss"},
	"dockerfile": {"Dockerfile", "Dockerfile.*", "*.dockerfile"},
	"go":         {".go"},
	"html":       {".html", ".htm"},
	"java":       {".java"},
	"javascript": {".js", ".mjs", ".cjs", ".jsx"},
	"markdown":   {".md", ".markdown"},
	"python":     {".py"},
	"ruby":       {".rb"},
	"rust":       {".rs"},
	"shell":      {".sh", ".bash"},
	"typescript": {".ts", ".tsx"},
	"yaml":       {".yaml", ".yml"},
}

// ShebangRules maps interpreters of extensionless scripts to languages.
var ShebangRules = map[string][]string{
	"python": {"python", "python3"},
	"shell":  {"sh", "bash", "dash", "ksh", "zsh"},
}

// BuildSystemRules maps build systems to marker files in the package root.
var BuildSystemRules = map[string][]string{
	"cargo":          {"Cargo.toml"},
	"cmake":          {"CMakeLists.txt"},
	"docker":         {"Dockerfile", "docker-compose.yml", "compose.yaml"},
	"go-module":      {"go.mod"},
	"gradle":         {"build.gradle", "build.gradle.kts"},
	"make":           {"Makefile", "GNUmakefile"},
	"maven":          {"pom.xml"},
	"npm":            {"package.json"},
	"python-package": {"pyproject.toml", "setup.py", "setup.cfg"},
}

// Languages returns the built-in language discovery plugin.
func Languages() *RuleDiscoverer {
	return mustRules(plugin.Descriptor{
		Name:        "languages",
		Kind:        plugin.KindDiscovery,
		Description: "Detects source languages by file name and shebang",
		Priority:    10,
		Detect:      &plugin.Detect{Languages: LanguageRules, Shebangs: ShebangRules},
	})
}

// BuildSystems returns the built-in build system discovery plugin.
func BuildSystems() *RuleDiscoverer {
	return mustRules(plugin.Descriptor{
		Name:        "build-systems",
		Kind:        plugin.KindDiscovery,
		Description: "Detects build systems by marker files in the package root",
		Priority:    20,
		Detect:      &plugin.Detect{BuildSystems: BuildSystemRules},
	})
}

func mustRules(desc plugin.Descriptor) *RuleDiscoverer {
	d, err := NewRuleDiscoverer(desc)
	if err != nil {
		panic(fmt.Sprintf("built-in discovery plugin: %v", err))
	}
	return d
}
