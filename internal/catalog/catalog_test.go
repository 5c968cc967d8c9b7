package catalog

import (
	"errors"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/gauntlet/internal/config"
	"github.com/steveyegge/gauntlet/internal/plugin"
	"github.com/steveyegge/gauntlet/internal/types"
)

func writeDescriptor(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, plugin.DescriptorDir), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, plugin.DescriptorDir, name), []byte(content), 0644))
}

func TestBuild_Builtin(t *testing.T) {
	reg, err := Build(Options{})
	require.NoError(t, err)

	for _, name := range []string{
		"languages", "build-systems",
		"eslint", "go-vet", "shellcheck", "yamllint", "markdownlint", "hadolint", "pylint", "bandit",
		"console", "json", "none",
	} {
		_, err := reg.Get(name)
		assert.NoError(t, err, name)
	}

	assert.Len(t, reg.OfKind(plugin.KindDiscovery), 2)
	assert.Len(t, reg.OfKind(plugin.KindReporting), 3)

	_, err = reg.Tool("go-vet")
	assert.NoError(t, err)
	_, err = reg.Discoverer("languages")
	assert.NoError(t, err)
	_, err = reg.Reporter("json")
	assert.NoError(t, err)
}

func TestEmbeddedDescriptorsParse(t *testing.T) {
	entries, err := fs.ReadDir(builtinFS, plugin.DescriptorDir)
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	for _, entry := range entries {
		t.Run(entry.Name(), func(t *testing.T) {
			data, err := fs.ReadFile(builtinFS, path.Join(plugin.DescriptorDir, entry.Name()))
			require.NoError(t, err)
			d, err := plugin.ParseDescriptor(data, entry.Name())
			require.NoError(t, err)
			_, err = FromDescriptor(d)
			assert.NoError(t, err)
		})
	}
}

func TestEmbeddedDescriptors_MessageTemplatesKeepColons(t *testing.T) {
	reg, err := Build(Options{})
	require.NoError(t, err)

	want := map[string]string{
		"pylint": "--msg-template={path}:{line}:{column}: {category}: {msg} [{symbol}]",
		"bandit": "--msg-template={relpath}:{line}:{col}: {severity}: {msg} [{test_id}]",
	}
	for name, arg := range want {
		d, err := reg.Get(name)
		require.NoError(t, err)
		assert.Contains(t, d.Command, arg, name)
	}
}

func TestBuild_EveryBuiltinProfileResolves(t *testing.T) {
	reg, err := Build(Options{})
	require.NoError(t, err)
	resolver, err := config.Load()
	require.NoError(t, err)

	pkg := types.NewPackage(t.TempDir(), types.Facts{
		Languages:    []string{"go", "javascript", "markdown", "python", "shell", "yaml", "dockerfile"},
		BuildSystems: []string{"go-module"},
	})
	for _, profile := range resolver.Profiles() {
		cfg, err := resolver.Resolve(pkg.Path(), profile, "")
		require.NoError(t, err, profile)
		_, err = reg.SelectApplicable(pkg, cfg)
		assert.NoError(t, err, "profile %s only enables registered plugins", profile)
	}
}

func TestBuild_UserPluginDir(t *testing.T) {
	dir := t.TempDir()
	writeDescriptor(t, dir, "codespell.yaml", `
name: codespell
kind: tool
command: [codespell, "{files}"]
`)
	writeDescriptor(t, dir, "proto.yaml", `
name: protobuf
kind: discovery
detect:
  languages:
    protobuf: [.proto]
`)

	reg, err := Build(Options{PluginDirs: []string{dir}})
	require.NoError(t, err)

	d, err := reg.Get("codespell")
	require.NoError(t, err)
	assert.Equal(t, plugin.DefaultPriority, d.Priority)
	assert.Contains(t, d.Source, dir)

	_, err = reg.Discoverer("protobuf")
	assert.NoError(t, err)
}

func TestBuild_DuplicateAcrossDirsIsFatal(t *testing.T) {
	first := t.TempDir()
	second := t.TempDir()
	desc := "name: codespell\nkind: tool\ncommand: [codespell]\n"
	writeDescriptor(t, first, "codespell.yaml", desc)
	writeDescriptor(t, second, "spelling.yaml", desc)

	reg, err := Build(Options{PluginDirs: []string{first, second}})
	require.Error(t, err)
	assert.Nil(t, reg)

	var dup *plugin.DuplicatePluginNameError
	require.True(t, errors.As(err, &dup))
	assert.Equal(t, "codespell", dup.Name)
	assert.Contains(t, dup.First, first)
	assert.Contains(t, dup.Second, second)
}

func TestBuild_UserPluginShadowingBuiltinIsFatal(t *testing.T) {
	dir := t.TempDir()
	writeDescriptor(t, dir, "eslint.yaml", "name: eslint\nkind: tool\ncommand: [eslint]\n")

	_, err := Build(Options{PluginDirs: []string{dir}})
	assert.ErrorIs(t, err, plugin.ErrDuplicatePluginName)
}

func TestBuild_BadPluginDir(t *testing.T) {
	_, err := Build(Options{PluginDirs: []string{filepath.Join(t.TempDir(), "missing")}})
	assert.Error(t, err)

	dir := t.TempDir()
	writeDescriptor(t, dir, "broken.yaml", "name: [\n")
	_, err = Build(Options{PluginDirs: []string{dir}})
	assert.Error(t, err)
}
