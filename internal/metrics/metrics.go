// Package metrics collects Prometheus metrics for a run. A CLI run is short
// lived, so metrics are exported by writing a node_exporter textfile rather
// than serving /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/steveyegge/gauntlet/internal/types"
)

// Recorder receives one call per finished plugin invocation.
type Recorder interface {
	PluginFinished(plugin string, status types.ExecutionStatus, d time.Duration)
}

// Nop discards everything.
type Nop struct{}

func (Nop) PluginFinished(string, types.ExecutionStatus, time.Duration) {}

// Metrics owns a private registry so that runs (and tests) never share
// collectors.
type Metrics struct {
	registry *prometheus.Registry

	invocations *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	issues      *prometheus.CounterVec
	suppressed  prometheus.Counter
	duplicates  prometheus.Counter
	packages    *prometheus.CounterVec
	lastRun     prometheus.Gauge
}

// New creates the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		// invocations counts plugin invocations by plugin and status
		invocations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gauntlet_plugin_invocations_total",
			Help: "Plugin invocations by plugin and status",
		}, []string{"plugin", "status"}),

		// duration tracks plugin wall-clock time
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gauntlet_plugin_duration_seconds",
			Help:    "Plugin invocation duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms to ~100s
		}, []string{"plugin"}),

		issues: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gauntlet_issues_total",
			Help: "Reported issues by plugin and severity",
		}, []string{"plugin", "severity"}),

		suppressed: factory.NewCounter(prometheus.CounterOpts{
			Name: "gauntlet_issues_suppressed_total",
			Help: "Issues removed by suppression rules or NOLINT markers",
		}),

		duplicates: factory.NewCounter(prometheus.CounterOpts{
			Name: "gauntlet_issues_duplicate_total",
			Help: "Issues dropped as fingerprint duplicates",
		}),

		packages: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gauntlet_packages_total",
			Help: "Packages scanned by outcome",
		}, []string{"outcome"}),

		lastRun: factory.NewGauge(prometheus.GaugeOpts{
			Name: "gauntlet_last_run_timestamp_seconds",
			Help: "Completion time of the last run",
		}),
	}
}

// Registry exposes the registry for custom gatherers and tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// PluginFinished implements Recorder.
func (m *Metrics) PluginFinished(plugin string, status types.ExecutionStatus, d time.Duration) {
	m.invocations.WithLabelValues(plugin, string(status)).Inc()
	m.duration.WithLabelValues(plugin).Observe(d.Seconds())
}

// ObserveReport records the aggregate counts of a finished run.
func (m *Metrics) ObserveReport(report *types.RunReport) {
	for _, pkg := range report.Packages {
		for _, issue := range pkg.Issues {
			m.issues.WithLabelValues(issue.Plugin, issue.Severity.String()).Inc()
		}
		m.suppressed.Add(float64(pkg.Suppressed))
		m.duplicates.Add(float64(pkg.Duplicates))

		outcome := "scanned"
		switch {
		case pkg.Error != "":
			outcome = "error"
		case pkg.Skipped:
			outcome = "skipped"
		}
		m.packages.WithLabelValues(outcome).Inc()
	}
	if !report.CompletedAt.IsZero() {
		m.lastRun.Set(float64(report.CompletedAt.Unix()))
	}
}

// WriteFile writes every metric in the text exposition format, atomically,
// for the node_exporter textfile collector.
func (m *Metrics) WriteFile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}
