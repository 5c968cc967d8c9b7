// Package status maps a finished run onto its exit status.
package status

import (
	"github.com/steveyegge/gauntlet/internal/types"
)

// Resolve returns the exit status of report. Precedence, highest first:
// Cancelled, Fatal, IssuesFound, Clean.
//
//   - Cancelled: the run was interrupted.
//   - Fatal: a package failed to configure, or a plugin marked required did
//     not succeed.
//   - IssuesFound: some package has an issue at or above its severity
//     threshold.
//
// Resolve is pure: the order of packages, executions and issues does not
// affect the result.
func Resolve(report *types.RunReport) types.ExitStatus {
	if report.Cancelled {
		return types.ExitCancelled
	}
	if Fatal(report) {
		return types.ExitFatal
	}
	for _, pkg := range report.Packages {
		if len(AboveThreshold(pkg)) > 0 {
			return types.ExitIssuesFound
		}
	}
	return types.ExitClean
}

// Fatal reports whether any package has a configuration error or a required
// plugin that did not succeed.
func Fatal(report *types.RunReport) bool {
	for _, pkg := range report.Packages {
		if pkg.Error != "" {
			return true
		}
		for _, e := range pkg.Executions {
			if e.Required && !e.Result.Succeeded() {
				return true
			}
		}
	}
	return false
}

// AboveThreshold returns the package's issues at or above its threshold.
func AboveThreshold(pkg types.PackageReport) []types.Issue {
	var out []types.Issue
	for _, is := range pkg.Issues {
		if is.Severity >= pkg.SeverityThreshold {
			out = append(out, is)
		}
	}
	return out
}
