package aggregate

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/gauntlet/internal/config"
	"github.com/steveyegge/gauntlet/internal/plugin"
	"github.com/steveyegge/gauntlet/internal/types"
)

type parserFunc func(types.RawOutput) ([]plugin.Finding, error)

func (f parserFunc) Parse(out types.RawOutput) ([]plugin.Finding, error) { return f(out) }

func findings(fs ...plugin.Finding) Parser {
	return parserFunc(func(types.RawOutput) ([]plugin.Finding, error) { return fs, nil })
}

func issue(plugin, file string, line int, sev types.Severity, msg string) types.Issue {
	return types.NewIssue(plugin, file, line, 0, sev, "", msg)
}

func TestNormalize(t *testing.T) {
	root := t.TempDir()
	result := types.ExecutionResult{Plugin: "shellcheck", Status: types.StatusSuccess}
	parser := findings(
		plugin.Finding{File: filepath.Join(root, "scripts", "build.sh"), Line: 3, Column: 7, Severity: types.SeverityWarning, Code: "SC2086", Message: " Double quote to prevent globbing "},
		plugin.Finding{File: "./run.sh", Line: -1, Severity: types.SeverityError, Message: "parse error"},
		plugin.Finding{File: "/elsewhere/lib.sh", Line: 1, Severity: types.Severity(42), Message: "odd"},
		plugin.Finding{File: "x.sh", Code: "SC1000"},
		plugin.Finding{File: "x.sh"},
	)

	got, issues := Normalize(result, parser, root)
	assert.Equal(t, result, got)
	require.Len(t, issues, 4)

	assert.Equal(t, "scripts/build.sh", issues[0].File)
	assert.Equal(t, 3, issues[0].Line)
	assert.Equal(t, 7, issues[0].Column)
	assert.Equal(t, "Double quote to prevent globbing", issues[0].Message)
	assert.Equal(t, "shellcheck", issues[0].Plugin)
	assert.NoError(t, issues[0].Validate())

	assert.Equal(t, "run.sh", issues[1].File)
	assert.Equal(t, 0, issues[1].Line)

	assert.Equal(t, "/elsewhere/lib.sh", issues[2].File)
	assert.Equal(t, types.SeverityWarning, issues[2].Severity)

	assert.Equal(t, "SC1000", issues[3].Message)
}

func TestNormalize_FingerprintIsStable(t *testing.T) {
	parser := findings(plugin.Finding{File: "a.py", Line: 2, Severity: types.SeverityError, Message: "bad"})
	result := types.ExecutionResult{Plugin: "pylint", Status: types.StatusSuccess}

	_, first := Normalize(result, parser, "/work/one")
	_, second := Normalize(result, parser, "/work/two")
	assert.Equal(t, first[0].Fingerprint, second[0].Fingerprint)
}

func TestNormalize_ParseErrorBecomesFailure(t *testing.T) {
	result := types.ExecutionResult{Plugin: "eslint", Status: types.StatusSuccess}
	parser := parserFunc(func(types.RawOutput) ([]plugin.Finding, error) {
		return nil, errors.New("unexpected end of JSON input")
	})

	got, issues := Normalize(result, parser, "/work")
	assert.Nil(t, issues)
	assert.Equal(t, types.StatusFailure, got.Status)
	assert.Equal(t, types.ErrorOutputParse, got.ErrorKind)
	assert.Equal(t, "unexpected end of JSON input", got.Message)
	assert.Equal(t, types.StatusSuccess, result.Status, "input result untouched")
}

func TestNormalize_SkipsUnsuccessfulResults(t *testing.T) {
	called := false
	parser := parserFunc(func(types.RawOutput) ([]plugin.Finding, error) {
		called = true
		return nil, nil
	})
	result := types.ExecutionResult{Plugin: "eslint", Status: types.StatusTimeout, ErrorKind: types.ErrorTimeout}

	got, issues := Normalize(result, parser, "/work")
	assert.False(t, called)
	assert.Nil(t, issues)
	assert.Equal(t, result, got)
}

func TestFilterInline(t *testing.T) {
	root := t.TempDir()
	src := "import os\nimport sys  # NOLINT\nprint(os)\n"
	require.NoError(t, os.WriteFile(filepath.Join(root, "app.py"), []byte(src), 0644))

	issues := []types.Issue{
		issue("pylint", "app.py", 1, types.SeverityWarning, "unused import"),
		issue("pylint", "app.py", 2, types.SeverityWarning, "unused import"),
		issue("pylint", "app.py", 9, types.SeverityWarning, "past the end"),
		issue("pylint", "app.py", 0, types.SeverityWarning, "file level"),
		issue("pylint", "missing.py", 2, types.SeverityWarning, "unreadable"),
	}

	kept, dropped := FilterInline(root, issues)
	assert.Equal(t, 1, dropped)
	require.Len(t, kept, 4)
	for _, is := range kept {
		assert.False(t, is.File == "app.py" && is.Line == 2, "NOLINT line kept")
	}
}

func TestAggregate_SortsAndDeduplicates(t *testing.T) {
	a1 := issue("eslint", "b.js", 3, types.SeverityWarning, "w")
	a2 := issue("eslint", "a.js", 10, types.SeverityInfo, "i")
	b1 := issue("jshint", "a.js", 10, types.SeverityError, "e")
	dup := a1

	res, err := Aggregate([][]types.Issue{{a1, a2}, {b1, dup}}, nil)
	require.NoError(t, err)
	assert.Equal(t, []types.Issue{b1, a2, a1}, res.Issues)
	assert.Equal(t, 1, res.Duplicates)
	assert.Equal(t, 0, res.Suppressed)
}

func TestAggregate_DeterministicAcrossInputOrder(t *testing.T) {
	x := issue("a", "f.go", 1, types.SeverityWarning, "x")
	y := issue("b", "f.go", 1, types.SeverityWarning, "y")
	z := issue("c", "e.go", 5, types.SeverityError, "z")

	first, err := Aggregate([][]types.Issue{{x, y}, {z}}, nil)
	require.NoError(t, err)
	second, err := Aggregate([][]types.Issue{{z}, {y, x}}, nil)
	require.NoError(t, err)
	assert.Equal(t, first.Issues, second.Issues)
}

func TestAggregate_Suppression(t *testing.T) {
	vendored := issue("eslint", "vendor/lib/x.js", 1, types.SeverityError, "vendored")
	generated := types.NewIssue("pylint", "pkg/gen_pb2.py", 4, 0, types.SeverityWarning, "C0301", "Line too long (130/100)")
	console := types.NewIssue("eslint", "src/app.js", 8, 2, types.SeverityWarning, "no-console", "Unexpected console statement")
	kept := types.NewIssue("eslint", "src/app.js", 9, 2, types.SeverityError, "no-undef", "'x' is not defined")

	rules := []config.SuppressionRule{
		{Path: "vendor/**"},
		{Path: "*_pb2.py"},
		{Plugin: "eslint", Code: "no-console"},
		{Message: "console"}, // would also match, but the rule above is credited
	}

	res, err := Aggregate([][]types.Issue{{vendored, console, kept}, {generated}}, rules)
	require.NoError(t, err)
	assert.Equal(t, []types.Issue{kept}, res.Issues)
	assert.Equal(t, 3, res.Suppressed)
	assert.Equal(t, []int{1, 1, 1, 0}, res.RuleHits)
}

func TestAggregate_RuleFieldsAreANDed(t *testing.T) {
	a := types.NewIssue("eslint", "src/a.js", 1, 0, types.SeverityError, "no-undef", "x")
	b := types.NewIssue("jshint", "src/a.js", 1, 0, types.SeverityError, "no-undef", "x")

	res, err := Aggregate([][]types.Issue{{a, b}}, []config.SuppressionRule{{Plugin: "eslint", Path: "src/*.js"}})
	require.NoError(t, err)
	assert.Equal(t, []types.Issue{b}, res.Issues)
}

func TestAggregate_FingerprintAndMessageRules(t *testing.T) {
	a := issue("bandit", "app.py", 5, types.SeverityError, "Use of assert detected")
	b := issue("bandit", "app.py", 6, types.SeverityError, "Possible hardcoded password: 'x'")
	c := issue("bandit", "app.py", 7, types.SeverityError, "subprocess call with shell=True")

	res, err := Aggregate([][]types.Issue{{a, b, c}}, []config.SuppressionRule{
		{Fingerprint: a.Fingerprint},
		{Message: `hardcoded password: '\w+'`},
	})
	require.NoError(t, err)
	assert.Equal(t, []types.Issue{c}, res.Issues)
	assert.Equal(t, []int{1, 1}, res.RuleHits)
}

func TestAggregate_InvalidRule(t *testing.T) {
	_, err := Aggregate(nil, []config.SuppressionRule{{Source: "override:.gauntlet.yaml"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "override:.gauntlet.yaml")

	_, err = Aggregate(nil, []config.SuppressionRule{{Message: "("}})
	assert.Error(t, err)
}

func TestAggregate_DoesNotModifyInput(t *testing.T) {
	list := []types.Issue{
		issue("a", "z.go", 1, types.SeverityInfo, "z"),
		issue("a", "a.go", 1, types.SeverityInfo, "a"),
	}
	before := append([]types.Issue(nil), list...)

	_, err := Aggregate([][]types.Issue{list}, nil)
	require.NoError(t, err)
	assert.Equal(t, before, list)
}

func TestMatchPath(t *testing.T) {
	tests := []struct {
		pattern string
		path    string
		want    bool
	}{
		{"vendor/**", "vendor/a/b.go", true},
		{"vendor/**", "src/vendor/a.go", false},
		{"**/vendor/**", "src/vendor/a.go", true},
		{"**/vendor/**", "vendor/a.go", true},
		{"**/*.min.js", "static/js/app.min.js", true},
		{"**/*.min.js", "app.min.js", true},
		{"src/**/test_*.py", "src/test_a.py", true},
		{"src/**/test_*.py", "src/x/y/test_a.py", true},
		{"src/**/test_*.py", "lib/test_a.py", false},
		{"*.py", "deep/nested/file.py", true},
		{"*.py", "file.PY", false},
		{"src/*.go", "src/a.go", true},
		{"src/*.go", "src/sub/a.go", false},
		{"docs/README.md", "docs/README.md", true},
		{"docs/readme.md", "docs/README.md", false},
		{"a?c.txt", "abc.txt", true},
		{"[ab].txt", "c.txt", false},
	}
	for _, tt := range tests {
		t.Run(tt.pattern+"~"+tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, MatchPath(tt.pattern, tt.path))
		})
	}
}

func TestRelativePath(t *testing.T) {
	root := filepath.Join(string(filepath.Separator), "work", "pkg")
	assert.Equal(t, "a/b.go", RelativePath(root, filepath.Join(root, "a", "b.go")))
	assert.Equal(t, "b.go", RelativePath(root, "./a/../b.go"))
	assert.Equal(t, "", RelativePath(root, ""))
	assert.Equal(t, "/work/other/c.go", RelativePath(root, filepath.Join(string(filepath.Separator), "work", "other", "c.go")))
}
