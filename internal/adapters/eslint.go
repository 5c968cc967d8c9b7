package adapters

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/steveyegge/gauntlet/internal/plugin"
	"github.com/steveyegge/gauntlet/internal/types"
)

//go:embed rsc/eslint.config.mjs
var eslintConfig []byte

// ESLintConfig returns the bundled flat config passed to eslint via -c.
func ESLintConfig() []byte { return append([]byte(nil), eslintConfig...) }

// ESLintDescriptor describes the built-in ESLint tool.
func ESLintDescriptor() plugin.Descriptor {
	return plugin.Descriptor{
		Name:         "eslint",
		Kind:         plugin.KindTool,
		Description:  "JavaScript and HTML linting with ESLint",
		APIVersion:   plugin.APIVersion,
		Priority:     plugin.DefaultPriority,
		AppliesTo:    []string{"javascript", "html"},
		Command:      []string{"eslint", "-f", "json", PlaceholderFiles},
		Parser:       "eslint",
		ResourceFlag: "-c",
		OKExitCodes:  []int{0, 1}, // 1 means lint errors were found
	}
}

// NewESLint returns the ESLint tool with its bundled configuration.
func NewESLint() *CommandTool {
	t, err := NewCommandTool(ESLintDescriptor(),
		WithEmbeddedResource("eslint.config.mjs", eslintConfig),
		WithOutputCheck(checkNodeModules),
	)
	if err != nil {
		panic(fmt.Sprintf("eslint descriptor: %v", err))
	}
	return t
}

// checkNodeModules rejects output from a node installation that is missing
// modules. Node exits with 1 in that case, the same code ESLint uses for lint
// errors.
func checkNodeModules(out types.RawOutput) error {
	if out.ExitCode != 1 {
		return nil
	}
	for _, stream := range [][]byte{out.Stdout, out.Stderr} {
		s := string(stream)
		if strings.Contains(s, "Error: Cannot find module") || strings.Contains(s, "Require stack:") {
			return fmt.Errorf("eslint could not load its modules: %s", firstLine(s))
		}
	}
	return nil
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
