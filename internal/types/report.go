package types

import (
	"sort"
	"time"
)

// ExitStatus is the overall outcome of a run. Values are the process exit codes.
type ExitStatus int

const (
	ExitClean       ExitStatus = 0
	ExitIssuesFound ExitStatus = 1
	ExitFatal       ExitStatus = 2
	ExitCancelled   ExitStatus = 130
)

func (s ExitStatus) String() string {
	switch s {
	case ExitClean:
		return "clean"
	case ExitIssuesFound:
		return "issues_found"
	case ExitFatal:
		return "fatal"
	case ExitCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// ExecutionSummary pairs an execution result with how the configuration
// treated that plugin.
type ExecutionSummary struct {
	Result   ExecutionResult `json:"result"`
	Kind     string          `json:"kind"`
	Required bool            `json:"required"`
	Issues   int             `json:"issues"`
}

// PackageReport holds everything the run learned about one package.
type PackageReport struct {
	Name              string             `json:"name"`
	Path              string             `json:"path"`
	Profile           string             `json:"profile"`
	Languages         []string           `json:"languages,omitempty"`
	BuildSystems      []string           `json:"build_systems,omitempty"`
	Issues            []Issue            `json:"issues"`
	Executions        []ExecutionSummary `json:"executions"`
	Suppressed        int                `json:"suppressed"`
	Duplicates        int                `json:"duplicates"`
	SeverityThreshold Severity           `json:"severity_threshold"`
	Skipped           bool               `json:"skipped,omitempty"` // listed in ignore_packages
	Error             string             `json:"error,omitempty"`   // package-level failure, e.g. bad config
}

// RunReport is the final aggregate handed to reporting plugins.
type RunReport struct {
	ID          string          `json:"id"`
	Profile     string          `json:"profile"`
	StartedAt   time.Time       `json:"started_at"`
	CompletedAt time.Time       `json:"completed_at"`
	Packages    []PackageReport `json:"packages"`
	Cancelled   bool            `json:"cancelled,omitempty"`
}

// Issues returns the issues of every package merged in report order.
func (r *RunReport) Issues() []Issue {
	var all []Issue
	for _, p := range r.Packages {
		all = append(all, p.Issues...)
	}
	sort.SliceStable(all, func(i, j int) bool { return Less(all[i], all[j]) })
	return all
}

// Stats summarizes a run for listings and history.
type Stats struct {
	Packages        int `json:"packages"`
	Issues          int `json:"issues"`
	Errors          int `json:"errors"`
	Warnings        int `json:"warnings"`
	Infos           int `json:"infos"`
	Suppressed      int `json:"suppressed"`
	Duplicates      int `json:"duplicates"`
	PluginsRun      int `json:"plugins_run"`
	PluginsFailed   int `json:"plugins_failed"`
	PluginsTimedOut int `json:"plugins_timed_out"`
}

// Stats computes aggregate counters over all packages.
func (r *RunReport) Stats() Stats {
	var s Stats
	for _, p := range r.Packages {
		s.Packages++
		s.Suppressed += p.Suppressed
		s.Duplicates += p.Duplicates
		for _, is := range p.Issues {
			s.Issues++
			switch is.Severity {
			case SeverityError:
				s.Errors++
			case SeverityWarning:
				s.Warnings++
			default:
				s.Infos++
			}
		}
		for _, e := range p.Executions {
			s.PluginsRun++
			switch e.Result.Status {
			case StatusFailure:
				s.PluginsFailed++
			case StatusTimeout:
				s.PluginsTimedOut++
			}
		}
	}
	return s
}
