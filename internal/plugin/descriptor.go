package plugin

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"regexp"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"golang.org/x/mod/semver"
	"gopkg.in/yaml.v3"

	"github.com/steveyegge/gauntlet/internal/types"
)

// APIVersion is the plugin contract version implemented by this build.
// Descriptors declaring a different major version are rejected.
const APIVersion = "v1.2.0"

// DescriptorDir is the directory, relative to a plugin path, that holds
// descriptor files.
const DescriptorDir = "plugins"

// Descriptor declares what a plugin is and how to run it.
//
// Example descriptor file (plugins/shellcheck.yaml):
//
//	name: shellcheck
//	kind: tool
//	description: Shell script analysis
//	applies_to: [shell]
//	command: [shellcheck, --format=gcc, "{files}"]
//	parser: line
//	ok_exit_codes: [0, 1]
type Descriptor struct {
	Name        string `yaml:"name" json:"name" validate:"required,plugin_name"`
	Kind        Kind   `yaml:"kind" json:"kind" validate:"required,oneof=discovery tool reporting"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
	APIVersion  string `yaml:"api_version,omitempty" json:"api_version,omitempty"`
	Priority    int    `yaml:"priority,omitempty" json:"priority" validate:"gte=0"`

	// AppliesTo lists languages or build systems; empty means any package.
	AppliesTo []string `yaml:"applies_to,omitempty" json:"applies_to,omitempty" validate:"dive,required"`

	// DependsOn names tool plugins that must finish before this one starts.
	DependsOn []string `yaml:"depends_on,omitempty" json:"depends_on,omitempty" validate:"dive,required"`

	// Invocation contract for subprocess tools. {root}, {resource} and
	// {files} are substituted in Command.
	Command      []string `yaml:"command,omitempty" json:"command,omitempty"`
	Parser       string   `yaml:"parser,omitempty" json:"parser,omitempty" validate:"omitempty,oneof=line jsonl eslint"`
	Pattern      string   `yaml:"pattern,omitempty" json:"pattern,omitempty"`
	Resource     string   `yaml:"resource,omitempty" json:"resource,omitempty"`
	ResourceFlag string   `yaml:"resource_flag,omitempty" json:"resource_flag,omitempty"`
	OKExitCodes  []int    `yaml:"ok_exit_codes,omitempty" json:"ok_exit_codes,omitempty"`

	// Detect configures declarative discovery plugins.
	Detect *Detect `yaml:"detect,omitempty" json:"detect,omitempty"`

	// Source records where the plugin was registered from.
	Source string `yaml:"-" json:"source,omitempty"`
}

// Detect configures rule-based discovery.
//
// Languages maps a language to file patterns: ".ext" matches an extension
// (case-insensitive), a glob or plain name matches the base name. Shebangs
// maps a language to interpreter names looked for in the first line of
// extensionless files. BuildSystems maps a build system to marker paths
// relative to the package root.
type Detect struct {
	Languages    map[string][]string `yaml:"languages,omitempty" json:"languages,omitempty"`
	Shebangs     map[string][]string `yaml:"shebangs,omitempty" json:"shebangs,omitempty"`
	BuildSystems map[string][]string `yaml:"build_systems,omitempty" json:"build_systems,omitempty"`
}

var (
	descriptorValidate *validator.Validate
	pluginNameRe       = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]*$`)
)

func init() {
	descriptorValidate = validator.New()
	_ = descriptorValidate.RegisterValidation("plugin_name", func(fl validator.FieldLevel) bool {
		return pluginNameRe.MatchString(fl.Field().String())
	})
}

// Validate checks the descriptor's fields and API version.
func (d Descriptor) Validate() error {
	if err := descriptorValidate.Struct(d); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("plugin %q: field %s fails %q", d.Name, fe.Field(), fe.Tag())
		}
		return fmt.Errorf("plugin %q: %w", d.Name, err)
	}
	if d.APIVersion != "" {
		if !semver.IsValid(d.APIVersion) {
			return fmt.Errorf("plugin %q: invalid api_version %q", d.Name, d.APIVersion)
		}
		if semver.Major(d.APIVersion) != semver.Major(APIVersion) {
			return fmt.Errorf("plugin %q: api_version %s is incompatible with %s", d.Name, d.APIVersion, APIVersion)
		}
	}
	for _, dep := range d.DependsOn {
		if dep == d.Name {
			return fmt.Errorf("plugin %q depends on itself", d.Name)
		}
	}
	if d.Pattern != "" {
		if _, err := regexp.Compile(d.Pattern); err != nil {
			return fmt.Errorf("plugin %q: invalid pattern: %w", d.Name, err)
		}
	}
	return nil
}

// Applies reports whether the plugin is applicable to pkg: either it
// declares no applicability or one of its entries is a package trait.
func (d Descriptor) Applies(pkg *types.Package) bool {
	if len(d.AppliesTo) == 0 {
		return true
	}
	for _, trait := range d.AppliesTo {
		if pkg.HasTrait(trait) {
			return true
		}
	}
	return false
}

// ParseDescriptor decodes one descriptor file. Unknown keys are errors.
func ParseDescriptor(data []byte, source string) (Descriptor, error) {
	d := Descriptor{Priority: DefaultPriority}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&d); err != nil {
		if errors.Is(err, io.EOF) {
			return Descriptor{}, fmt.Errorf("%s: empty descriptor", source)
		}
		return Descriptor{}, fmt.Errorf("%s: parsing YAML: %w", source, err)
	}
	d.Source = source
	if err := d.Validate(); err != nil {
		return Descriptor{}, fmt.Errorf("%s: %w", source, err)
	}
	if d.Kind == KindTool && len(d.Command) == 0 {
		return Descriptor{}, fmt.Errorf("%s: tool plugin %q must declare a command", source, d.Name)
	}
	if d.Kind == KindDiscovery && d.Detect == nil {
		return Descriptor{}, fmt.Errorf("%s: discovery plugin %q must declare detect rules", source, d.Name)
	}
	if d.Kind == KindReporting {
		return Descriptor{}, fmt.Errorf("%s: reporting plugins cannot be declared in YAML", source)
	}
	return d, nil
}

// LoadDescriptorsFS parses every *.yaml file under plugins/ in fsys, in name
// order. name prefixes each descriptor's Source. A missing plugins/
// directory yields no descriptors.
func LoadDescriptorsFS(fsys fs.FS, name string) ([]Descriptor, error) {
	entries, err := fs.ReadDir(fsys, DescriptorDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading %s/%s: %w", name, DescriptorDir, err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	var descs []Descriptor
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
			continue
		}
		rel := path.Join(DescriptorDir, entry.Name())
		data, err := fs.ReadFile(fsys, rel)
		if err != nil {
			return nil, fmt.Errorf("reading %s/%s: %w", name, rel, err)
		}
		d, err := ParseDescriptor(data, name+"/"+rel)
		if err != nil {
			return nil, err
		}
		descs = append(descs, d)
	}
	return descs, nil
}

// LoadDescriptors parses the descriptors of a plugin directory on disk.
func LoadDescriptors(dir string) ([]Descriptor, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("plugin path %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("plugin path %s is not a directory", dir)
	}
	return LoadDescriptorsFS(os.DirFS(dir), dir)
}
