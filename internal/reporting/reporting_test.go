package reporting

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/gauntlet/internal/plugin"
	"github.com/steveyegge/gauntlet/internal/types"
)

func init() {
	color.NoColor = true
}

func sampleReport() *types.RunReport {
	return &types.RunReport{
		ID:          "7d1c9a9e-0000-4000-8000-000000000001",
		Profile:     "default",
		StartedAt:   time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		CompletedAt: time.Date(2026, 1, 2, 3, 4, 9, 0, time.UTC),
		Packages: []types.PackageReport{
			{
				Name:              "web",
				Path:              "/src/web",
				Profile:           "default",
				Languages:         []string{"javascript"},
				SeverityThreshold: types.SeverityWarning,
				Issues: []types.Issue{
					types.NewIssue("eslint", "app.js", 3, 5, types.SeverityError, "no-undef", "'x' is not defined"),
				},
				Executions: []types.ExecutionSummary{
					{Result: types.ExecutionResult{Plugin: "eslint", Status: types.StatusSuccess, Duration: 1500 * time.Millisecond}, Kind: "tool", Issues: 1},
					{Result: types.ExecutionResult{
						Plugin:    "shellcheck",
						Status:    types.StatusFailure,
						ErrorKind: types.ErrorInvocation,
						Message:   "tool executable not found: shellcheck",
						Output:    types.RawOutput{Stderr: []byte("command not found\n")},
					}, Kind: "tool"},
				},
				Suppressed: 2,
			},
			{Name: "legacy", Path: "/src/legacy", Skipped: true},
		},
	}
}

func TestDescriptorsAreValid(t *testing.T) {
	for _, p := range []plugin.Reporter{NewConsole(ConsoleOptions{}), NewJSON(), NewNone()} {
		d := p.Descriptor()
		assert.Equal(t, plugin.KindReporting, d.Kind)
		assert.NoError(t, d.Validate(), d.Name)
	}
}

func TestConsole(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewConsole(ConsoleOptions{}).Report(context.Background(), &buf, sampleReport()))
	out := buf.String()

	assert.Contains(t, out, "=== gauntlet run 7d1c9a9e-0000-4000-8000-000000000001 (profile default) ===")
	assert.Contains(t, out, "app.js:3:5: error: 'x' is not defined [no-undef] (eslint)")
	assert.Contains(t, out, "shellcheck     failure: tool executable not found: shellcheck")
	assert.Contains(t, out, "2 suppressed, 0 duplicates removed")
	assert.Contains(t, out, "skipped (ignore_packages)")
	assert.Contains(t, out, "1 issues (1 errors, 0 warnings, 0 info) in 2 packages")
	assert.Contains(t, out, "Status: issues_found")
	assert.NotContains(t, out, "command not found")
}

func TestConsole_PackageProfile(t *testing.T) {
	report := &types.RunReport{
		Profile: "ci",
		Packages: []types.PackageReport{
			{Name: "api", Profile: "ci"},
			{Name: "legacy", Profile: "lenient"},
		},
	}
	var buf bytes.Buffer
	require.NoError(t, NewConsole(ConsoleOptions{}).Report(context.Background(), &buf, report))
	out := buf.String()
	assert.Contains(t, out, "legacy \n  profile: lenient\n")
	assert.Equal(t, 1, strings.Count(out, "profile: "))
}

func TestConsole_ShowToolOutput(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewConsole(ConsoleOptions{ShowToolOutput: true}).Report(context.Background(), &buf, sampleReport()))
	assert.Contains(t, buf.String(), "--- stderr ---\n      command not found\n")
}

func TestConsole_PackageError(t *testing.T) {
	report := &types.RunReport{Packages: []types.PackageReport{{Name: "bad", Error: "profile \"nope\" not found"}}}
	var buf bytes.Buffer
	require.NoError(t, NewConsole(ConsoleOptions{}).Report(context.Background(), &buf, report))
	assert.Contains(t, buf.String(), "error: profile \"nope\" not found")
	assert.Contains(t, buf.String(), "Status: fatal")
}

func TestJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewJSON().Report(context.Background(), &buf, sampleReport()))

	var doc struct {
		ID       string `json:"id"`
		Status   string `json:"status"`
		Stats    types.Stats `json:"stats"`
		Packages []struct {
			Name   string        `json:"name"`
			Issues []types.Issue `json:"issues"`
		} `json:"packages"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))
	assert.Equal(t, "7d1c9a9e-0000-4000-8000-000000000001", doc.ID)
	assert.Equal(t, "issues_found", doc.Status)
	assert.Equal(t, 1, doc.Stats.Errors)
	assert.Equal(t, 1, doc.Stats.PluginsFailed)
	require.Len(t, doc.Packages, 2)
	require.Len(t, doc.Packages[0].Issues, 1)
	assert.Equal(t, types.SeverityError, doc.Packages[0].Issues[0].Severity)
	assert.Contains(t, buf.String(), `"severity": "error"`)
}

func TestNone(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewNone().Report(context.Background(), &buf, sampleReport()))
	assert.Zero(t, buf.Len())
}
