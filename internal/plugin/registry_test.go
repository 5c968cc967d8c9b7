package plugin

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/gauntlet/internal/config"
	"github.com/steveyegge/gauntlet/internal/types"
)

type mockTool struct{ desc Descriptor }

func (m *mockTool) Descriptor() Descriptor { return m.desc }
func (m *mockTool) Invoke(context.Context, *types.Package, config.PluginOptions) (types.RawOutput, error) {
	return types.RawOutput{}, nil
}
func (m *mockTool) Parse(types.RawOutput) ([]Finding, error) { return nil, nil }

type mockDiscoverer struct{ desc Descriptor }

func (m *mockDiscoverer) Descriptor() Descriptor { return m.desc }
func (m *mockDiscoverer) Detect(context.Context, string) (types.Facts, error) {
	return types.Facts{}, nil
}

type mockReporter struct{ desc Descriptor }

func (m *mockReporter) Descriptor() Descriptor { return m.desc }
func (m *mockReporter) Report(context.Context, io.Writer, *types.RunReport) error { return nil }

func tool(name string, priority int, appliesTo []string, deps ...string) *mockTool {
	return &mockTool{desc: Descriptor{Name: name, Kind: KindTool, Priority: priority, AppliesTo: appliesTo, DependsOn: deps}}
}

// resolved builds a ResolvedConfig whose only profile enables the given plugins.
func resolved(t *testing.T, enabled ...string) *config.ResolvedConfig {
	t.Helper()
	var b strings.Builder
	b.WriteString("plugins:\n")
	for _, name := range enabled {
		fmt.Fprintf(&b, "  %s:\n    enabled: true\n", name)
	}
	if len(enabled) == 0 {
		b.Reset()
	}
	src := config.Source{Name: "test", FS: fstest.MapFS{
		"profiles/only.yaml": &fstest.MapFile{Data: []byte(b.String())},
	}}
	r, err := config.Load(src)
	require.NoError(t, err)
	cfg, err := r.Resolve(t.TempDir(), "only", "")
	require.NoError(t, err)
	return cfg
}

func TestNewRegistry_DuplicateName(t *testing.T) {
	a := tool("lint", 10, nil)
	a.desc.Source = "/usr/share/gauntlet/plugins/lint.yaml"
	b := tool("lint", 20, nil)
	b.desc.Source = "/home/me/plugins/lint.yaml"

	reg, err := NewRegistry(a, b)
	require.Error(t, err)
	assert.Nil(t, reg)
	assert.True(t, errors.Is(err, ErrDuplicatePluginName))

	var dup *DuplicatePluginNameError
	require.True(t, errors.As(err, &dup))
	assert.Equal(t, "lint", dup.Name)
	assert.Equal(t, a.desc.Source, dup.First)
	assert.Equal(t, b.desc.Source, dup.Second)
}

func TestNewRegistry_DuplicateAcrossKinds(t *testing.T) {
	_, err := NewRegistry(
		tool("dup", 1, nil),
		&mockReporter{desc: Descriptor{Name: "dup", Kind: KindReporting}},
	)
	assert.ErrorIs(t, err, ErrDuplicatePluginName)
}

func TestNewRegistry_KindMismatch(t *testing.T) {
	_, err := NewRegistry(&mockTool{desc: Descriptor{Name: "x", Kind: KindReporting}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not implement")
}

func TestNewRegistry_InvalidDescriptor(t *testing.T) {
	tests := []Descriptor{
		{Name: "", Kind: KindTool},
		{Name: "Bad Name", Kind: KindTool},
		{Name: "x", Kind: "linter"},
		{Name: "x", Kind: KindTool, Priority: -1},
		{Name: "x", Kind: KindTool, APIVersion: "v2.0.0"},
		{Name: "x", Kind: KindTool, APIVersion: "one"},
		{Name: "x", Kind: KindTool, DependsOn: []string{"x"}},
		{Name: "x", Kind: KindTool, Parser: "xml"},
		{Name: "x", Kind: KindTool, Pattern: "("},
	}
	for i, d := range tests {
		t.Run(fmt.Sprint(i), func(t *testing.T) {
			_, err := NewRegistry(&mockTool{desc: d})
			assert.Error(t, err)
		})
	}
}

func TestNewRegistry_AcceptsCompatibleAPIVersion(t *testing.T) {
	_, err := NewRegistry(&mockTool{desc: Descriptor{Name: "x", Kind: KindTool, APIVersion: "v1.0.0"}})
	assert.NoError(t, err)
}

func TestNewRegistry_DependencyErrors(t *testing.T) {
	_, err := NewRegistry(tool("a", 1, nil, "missing"))
	assert.ErrorIs(t, err, ErrDependency)

	_, err = NewRegistry(tool("a", 1, nil, "b"), tool("b", 1, nil, "a"))
	require.ErrorIs(t, err, ErrDependency)
	assert.Contains(t, err.Error(), "cycle")

	_, err = NewRegistry(tool("a", 1, nil, "scan"), &mockDiscoverer{desc: Descriptor{Name: "scan", Kind: KindDiscovery}})
	assert.ErrorIs(t, err, ErrDependency)
}

func TestRegistry_DiscoverAndGet(t *testing.T) {
	reg, err := NewRegistry(tool("zeta", 10, nil), tool("alpha", 20, nil), tool("beta", 10, nil))
	require.NoError(t, err)

	var names []string
	for _, d := range reg.Discover() {
		names = append(names, d.Name)
	}
	assert.Equal(t, []string{"beta", "zeta", "alpha"}, names)

	d, err := reg.Get("alpha")
	require.NoError(t, err)
	assert.Equal(t, 20, d.Priority)

	_, err = reg.Get("nope")
	assert.ErrorIs(t, err, ErrPluginNotFound)

	_, err = reg.Reporter("alpha")
	var nf *PluginNotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, KindReporting, nf.Kind)
}

func TestRegistry_SelectApplicable(t *testing.T) {
	reg, err := NewRegistry(
		tool("eslint", 50, []string{"javascript", "typescript"}),
		tool("go-vet", 50, []string{"go"}),
		tool("codespell", 90, nil),
		tool("disabled", 1, nil),
		&mockDiscoverer{desc: Descriptor{Name: "languages", Kind: KindDiscovery}},
	)
	require.NoError(t, err)

	pkg := types.NewPackage("/src/web", types.Facts{Languages: []string{"javascript"}, BuildSystems: []string{"npm"}})
	cfg := resolved(t, "eslint", "go-vet", "codespell", "languages")

	selected, err := reg.SelectApplicable(pkg, cfg)
	require.NoError(t, err)

	var names []string
	for _, d := range selected {
		names = append(names, d.Name)
	}
	assert.Equal(t, []string{"eslint", "codespell"}, names)
}

func TestRegistry_SelectApplicable_BuildSystemTrait(t *testing.T) {
	reg, err := NewRegistry(tool("hadolint", 50, []string{"docker"}))
	require.NoError(t, err)

	pkg := types.NewPackage("/src/svc", types.Facts{BuildSystems: []string{"docker"}})
	selected, err := reg.SelectApplicable(pkg, resolved(t, "hadolint"))
	require.NoError(t, err)
	assert.Len(t, selected, 1)
}

func TestRegistry_SelectApplicable_NothingEnabled(t *testing.T) {
	reg, err := NewRegistry(tool("eslint", 50, nil))
	require.NoError(t, err)

	selected, err := reg.SelectApplicable(types.NewPackage("/src/x"), resolved(t))
	require.NoError(t, err)
	assert.Empty(t, selected)
}

func TestRegistry_SelectApplicable_UnknownEnabledPlugin(t *testing.T) {
	reg, err := NewRegistry(tool("eslint", 50, nil))
	require.NoError(t, err)

	_, err = reg.SelectApplicable(types.NewPackage("/src/x"), resolved(t, "eslint", "ghost"))
	assert.ErrorIs(t, err, ErrPluginNotFound)
}

func TestRegistry_SelectApplicable_DependencyNotSelected(t *testing.T) {
	reg, err := NewRegistry(tool("base", 10, nil), tool("derived", 20, nil, "base"))
	require.NoError(t, err)

	_, err = reg.SelectApplicable(types.NewPackage("/src/x"), resolved(t, "derived"))
	require.ErrorIs(t, err, ErrDependency)

	selected, err := reg.SelectApplicable(types.NewPackage("/src/x"), resolved(t, "derived", "base"))
	require.NoError(t, err)
	assert.Len(t, selected, 2)
}

func TestRegistry_SelectDiscovery(t *testing.T) {
	reg, err := NewRegistry(
		&mockDiscoverer{desc: Descriptor{Name: "languages", Kind: KindDiscovery, Priority: 10}},
		&mockDiscoverer{desc: Descriptor{Name: "build-systems", Kind: KindDiscovery, Priority: 20}},
		tool("eslint", 50, nil),
	)
	require.NoError(t, err)

	all, err := reg.SelectDiscovery(resolved(t, "eslint"))
	require.NoError(t, err)
	assert.Len(t, all, 2, "none enabled means all run")

	one, err := reg.SelectDiscovery(resolved(t, "build-systems"))
	require.NoError(t, err)
	require.Len(t, one, 1)
	assert.Equal(t, "build-systems", one[0].Name)
}

func TestRegistry_WithDependencies(t *testing.T) {
	reg, err := NewRegistry(
		tool("a", 1, nil),
		tool("b", 1, nil, "a"),
		tool("c", 1, nil, "b"),
		tool("d", 1, nil),
	)
	require.NoError(t, err)

	names, err := reg.WithDependencies([]string{"c"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, names)

	_, err = reg.WithDependencies([]string{"zzz"})
	assert.ErrorIs(t, err, ErrPluginNotFound)
}

func TestLayers(t *testing.T) {
	a := tool("a", 5, nil).desc
	b := tool("b", 1, nil, "a").desc
	c := tool("c", 1, nil).desc
	d := tool("d", 1, nil, "b", "c").desc

	layers, err := Layers([]Descriptor{d, c, b, a})
	require.NoError(t, err)
	require.Len(t, layers, 3)

	names := func(l []Descriptor) []string {
		var out []string
		for _, d := range l {
			out = append(out, d.Name)
		}
		return out
	}
	assert.Equal(t, []string{"c", "a"}, names(layers[0]))
	assert.Equal(t, []string{"b"}, names(layers[1]))
	assert.Equal(t, []string{"d"}, names(layers[2]))
}

func TestLayers_IgnoresDependenciesOutsideSet(t *testing.T) {
	layers, err := Layers([]Descriptor{tool("b", 1, nil, "a").desc})
	require.NoError(t, err)
	assert.Len(t, layers, 1)
}

func TestLayers_Empty(t *testing.T) {
	layers, err := Layers(nil)
	require.NoError(t, err)
	assert.Empty(t, layers)
}

func TestLoadDescriptors(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, DescriptorDir), 0755))
	write := func(name, content string) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, DescriptorDir, name), []byte(content), 0644))
	}
	write("shellcheck.yaml", `
name: shellcheck
kind: tool
applies_to: [shell]
command: [shellcheck, --format=gcc, "{files}"]
parser: line
ok_exit_codes: [0, 1]
`)
	write("proto.yaml", `
name: protobuf
kind: discovery
detect:
  languages:
    protobuf: [.proto]
`)
	write("README.md", "not a descriptor")

	descs, err := LoadDescriptors(dir)
	require.NoError(t, err)
	require.Len(t, descs, 2)

	assert.Equal(t, "protobuf", descs[0].Name)
	assert.Equal(t, []string{".proto"}, descs[0].Detect.Languages["protobuf"])

	sc := descs[1]
	assert.Equal(t, KindTool, sc.Kind)
	assert.Equal(t, DefaultPriority, sc.Priority)
	assert.Equal(t, []int{0, 1}, sc.OKExitCodes)
	assert.Equal(t, dir+"/plugins/shellcheck.yaml", sc.Source)
}

func TestLoadDescriptors_MissingPluginsDirIsEmpty(t *testing.T) {
	descs, err := LoadDescriptors(t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, descs)

	_, err = LoadDescriptors(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestParseDescriptor_Errors(t *testing.T) {
	tests := map[string]string{
		"empty":          "",
		"unknown key":    "name: x\nkind: tool\ncommand: [x]\ncolor: red\n",
		"tool no cmd":    "name: x\nkind: tool\n",
		"discovery bare": "name: x\nkind: discovery\n",
		"reporting":      "name: x\nkind: reporting\n",
		"bad version":    "name: x\nkind: tool\ncommand: [x]\napi_version: v3.0.0\n",
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseDescriptor([]byte(content), "test.yaml")
			require.Error(t, err)
			assert.Contains(t, err.Error(), "test.yaml")
		})
	}
}
