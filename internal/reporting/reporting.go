// Package reporting holds the built-in reporting plugins. A reporter renders
// a finished RunReport; the run's exit status does not depend on which
// reporters ran.
package reporting

import (
	"context"
	"encoding/json"
	"io"

	"github.com/steveyegge/gauntlet/internal/plugin"
	"github.com/steveyegge/gauntlet/internal/status"
	"github.com/steveyegge/gauntlet/internal/types"
)

func descriptor(name, description string, priority int) plugin.Descriptor {
	return plugin.Descriptor{
		Name:        name,
		Kind:        plugin.KindReporting,
		Description: description,
		APIVersion:  plugin.APIVersion,
		Priority:    priority,
	}
}

// JSON writes the report as one indented JSON document, together with its
// statistics and exit status.
type JSON struct{}

// NewJSON returns the json reporter.
func NewJSON() *JSON { return &JSON{} }

func (*JSON) Descriptor() plugin.Descriptor {
	return descriptor("json", "Machine-readable JSON report", 20)
}

// jsonReport is the document the json reporter writes.
type jsonReport struct {
	*types.RunReport
	Status string      `json:"status"`
	Stats  types.Stats `json:"stats"`
}

func (*JSON) Report(_ context.Context, w io.Writer, report *types.RunReport) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(jsonReport{
		RunReport: report,
		Status:    status.Resolve(report).String(),
		Stats:     report.Stats(),
	})
}

// None renders nothing. It lets a configuration turn reporting off while the
// exit status still reflects the run.
type None struct{}

// NewNone returns the none reporter.
func NewNone() *None { return &None{} }

func (*None) Descriptor() plugin.Descriptor {
	return descriptor("none", "Produce no report output", 90)
}

func (*None) Report(context.Context, io.Writer, *types.RunReport) error { return nil }
