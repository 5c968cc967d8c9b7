// Package aggregate turns raw tool output into the final issue list of a
// package: findings are normalized into Issues, then suppressed, deduplicated
// and sorted.
package aggregate

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"

	"github.com/steveyegge/gauntlet/internal/plugin"
	"github.com/steveyegge/gauntlet/internal/types"
)

// Parser converts a tool's raw output into findings. Every plugin.Tool is a
// Parser.
type Parser interface {
	Parse(out types.RawOutput) ([]plugin.Finding, error)
}

// NolintMarker on a source line drops every issue reported on that line.
const NolintMarker = "NOLINT"

// Normalize parses the output of a successful invocation into Issues. Results
// that did not succeed are returned unchanged with no issues. A parser error
// turns the result into an output_parse failure.
func Normalize(result types.ExecutionResult, parser Parser, root string) (types.ExecutionResult, []types.Issue) {
	if !result.Succeeded() {
		return result, nil
	}
	findings, err := parser.Parse(result.Output)
	if err != nil {
		return result.WithParseFailure(err), nil
	}

	issues := make([]types.Issue, 0, len(findings))
	for _, f := range findings {
		msg := strings.TrimSpace(f.Message)
		if msg == "" {
			msg = f.Code
		}
		if msg == "" {
			continue
		}
		sev := f.Severity
		if !sev.IsValid() {
			sev = types.SeverityWarning
		}
		issues = append(issues, types.NewIssue(
			result.Plugin,
			RelativePath(root, f.File),
			max(f.Line, 0),
			max(f.Column, 0),
			sev,
			f.Code,
			msg,
		))
	}
	return result, issues
}

// RelativePath returns file as a slash-separated path relative to root.
// Files outside root keep their absolute path.
func RelativePath(root, file string) string {
	if file == "" {
		return ""
	}
	if filepath.IsAbs(file) {
		rel, err := filepath.Rel(root, file)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return filepath.ToSlash(filepath.Clean(file))
		}
		file = rel
	}
	return filepath.ToSlash(filepath.Clean(file))
}

// FilterInline drops issues whose source line carries a NOLINT marker. Files
// that cannot be read keep all their issues. It returns the kept issues and
// the number dropped.
func FilterInline(root string, issues []types.Issue) ([]types.Issue, int) {
	cache := map[string][]string{}
	lines := func(file string) []string {
		if l, ok := cache[file]; ok {
			return l
		}
		p := file
		if !filepath.IsAbs(p) {
			p = filepath.Join(root, filepath.FromSlash(file))
		}
		l := readLines(p)
		cache[file] = l
		return l
	}

	kept := make([]types.Issue, 0, len(issues))
	dropped := 0
	for _, is := range issues {
		if is.File != "" && is.Line > 0 {
			src := lines(is.File)
			if is.Line <= len(src) && strings.Contains(src[is.Line-1], NolintMarker) {
				dropped++
				continue
			}
		}
		kept = append(kept, is)
	}
	return kept, dropped
}

func readLines(path string) []string {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	var out []string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		out = append(out, sc.Text())
	}
	return out
}
