package discovery

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/gauntlet/internal/plugin"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}
}

func TestLanguages_Detect(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"main.go":                    "package main\n",
		"web/app.js":                 "console.log(1)\n",
		"web/index.HTML":             "<html></html>\n",
		"scripts/deploy":             "#!/usr/bin/env bash\necho hi\n",
		"scripts/tool":               "#!/usr/bin/python3\nprint(1)\n",
		"scripts/data":               "plain text\n",
		"Dockerfile":                 "FROM scratch\n",
		"node_modules/dep/index.js":  "ignored\n",
		".github/workflows/ci.yaml":  "ignored: true\n",
		"vendor/example.com/x/x.go":  "package x\n",
		"deploy/k8s/deployment.yaml": "kind: Deployment\n",
	})

	facts, err := Languages().Detect(context.Background(), root)
	require.NoError(t, err)

	assert.Equal(t, []string{"dockerfile", "go", "html", "javascript", "python", "shell", "yaml"}, facts.Languages)
	assert.Equal(t, []string{filepath.Join(root, "main.go")}, facts.Files["go"])
	assert.Equal(t, []string{filepath.Join(root, "web", "app.js")}, facts.Files["javascript"])
	assert.Equal(t, []string{filepath.Join(root, "scripts", "deploy")}, facts.Files["shell"])
	assert.Equal(t, []string{filepath.Join(root, "scripts", "tool")}, facts.Files["python"])
	assert.Equal(t, []string{filepath.Join(root, "deploy", "k8s", "deployment.yaml")}, facts.Files["yaml"])
	assert.Empty(t, facts.BuildSystems)
}

func TestBuildSystems_Detect(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"go.mod":         "module x\n",
		"package.json":   "{}\n",
		"Makefile":       "all:\n",
		"sub/Cargo.toml": "[package]\n",
		"sub/main.rs":    "fn main() {}\n",
	})

	facts, err := BuildSystems().Detect(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, []string{"go-module", "make", "npm"}, facts.BuildSystems)
	assert.Empty(t, facts.Languages, "build system rules do not walk files")
}

func TestRuleDiscoverer_Declarative(t *testing.T) {
	desc, err := plugin.ParseDescriptor([]byte(`
name: protobuf
kind: discovery
detect:
  languages:
    protobuf: [.proto]
  build_systems:
    buf: [buf.yaml, buf.work.yaml]
`), "test.yaml")
	require.NoError(t, err)

	d, err := NewRuleDiscoverer(desc)
	require.NoError(t, err)

	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"buf.yaml":             "version: v1\n",
		"api/v1/service.proto": "syntax = \"proto3\";\n",
		"main.go":              "package main\n",
	})

	facts, err := d.Detect(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, []string{"protobuf"}, facts.Languages)
	assert.Equal(t, []string{"buf"}, facts.BuildSystems)
}

func TestRuleDiscoverer_WithExcludes(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"gen/a.go": "package gen\n",
		"main.go":  "package main\n",
		"x.pb.go":  "package main\n",
	})

	facts, err := Languages().WithExcludes([]string{"gen/", "*.pb.go"}).Detect(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(root, "main.go")}, facts.Files["go"])
}

func TestRuleDiscoverer_CancelledContext(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"main.go": "package main\n"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Languages().Detect(ctx, root)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewRuleDiscoverer_Errors(t *testing.T) {
	_, err := NewRuleDiscoverer(plugin.Descriptor{Name: "x", Kind: plugin.KindTool, Detect: &plugin.Detect{}})
	assert.Error(t, err)

	_, err = NewRuleDiscoverer(plugin.Descriptor{Name: "x", Kind: plugin.KindDiscovery})
	assert.Error(t, err)

	_, err = NewRuleDiscoverer(plugin.Descriptor{Name: "x", Kind: plugin.KindDiscovery, Detect: &plugin.Detect{
		Languages: map[string][]string{"x": {"["}},
	}})
	assert.Error(t, err)
}

func TestMatchesPattern(t *testing.T) {
	tests := []struct {
		path    string
		pattern string
		isDir   bool
		want    bool
	}{
		{"vendor", "vendor/", true, true},
		{"a/vendor", "vendor/", true, true},
		{"vendor/x.go", "vendor/", false, true},
		{"vendors/x.go", "vendor/", false, false},
		{"a/b/x.pb.go", "*.pb.go", false, true},
		{"docs", "docs", true, true},
		{"docs/readme.md", "docs", false, true},
		{"mydocs/readme.md", "docs", false, false},
	}
	for _, tt := range tests {
		if got := matchesPattern(tt.path, tt.pattern, tt.isDir); got != tt.want {
			t.Errorf("matchesPattern(%q, %q, %v) = %v, want %v", tt.path, tt.pattern, tt.isDir, got, tt.want)
		}
	}
}

func TestShebang(t *testing.T) {
	root := t.TempDir()
	tests := map[string]string{
		"#!/bin/sh\n":                 "sh",
		"#!/usr/bin/env -S bash -e\n": "bash",
		"#! /usr/bin/python3 -u\n":    "python3",
		"no shebang\n":                "",
		"":                            "",
	}
	i := 0
	for content, want := range tests {
		path := filepath.Join(root, "f"+string(rune('a'+i)))
		i++
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
		assert.Equal(t, want, shebang(path), content)
	}
}
