package reporting

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/steveyegge/gauntlet/internal/plugin"
	"github.com/steveyegge/gauntlet/internal/status"
	"github.com/steveyegge/gauntlet/internal/types"
)

// ConsoleOptions configures the console reporter.
type ConsoleOptions struct {
	// ShowToolOutput prints the captured stdout/stderr of plugins that did
	// not succeed.
	ShowToolOutput bool
}

// Console prints a human-readable report grouped by package.
type Console struct {
	opts ConsoleOptions
}

// NewConsole returns the console reporter.
func NewConsole(opts ConsoleOptions) *Console { return &Console{opts: opts} }

func (*Console) Descriptor() plugin.Descriptor {
	return descriptor("console", "Human-readable report on standard output", 10)
}

func (c *Console) Report(_ context.Context, w io.Writer, report *types.RunReport) error {
	bw := bufio.NewWriter(w)

	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()

	severity := func(s types.Severity) string {
		switch s {
		case types.SeverityError:
			return red(s.String())
		case types.SeverityWarning:
			return yellow(s.String())
		default:
			return gray(s.String())
		}
	}

	fmt.Fprintf(bw, "%s\n", cyan(fmt.Sprintf("=== gauntlet run %s (profile %s) ===", report.ID, report.Profile)))

	for _, pkg := range report.Packages {
		fmt.Fprintf(bw, "\n%s %s\n", cyan(pkg.Name), gray(pkg.Path))
		if pkg.Profile != "" && pkg.Profile != report.Profile {
			fmt.Fprintf(bw, "  %s\n", gray("profile: "+pkg.Profile))
		}
		switch {
		case pkg.Skipped:
			fmt.Fprintf(bw, "  %s\n", gray("skipped (ignore_packages)"))
			continue
		case pkg.Error != "":
			fmt.Fprintf(bw, "  %s %s\n", red("error:"), pkg.Error)
			continue
		}
		if len(pkg.Languages)+len(pkg.BuildSystems) > 0 {
			fmt.Fprintf(bw, "  %s\n", gray("detected: "+strings.Join(append(append([]string{}, pkg.Languages...), pkg.BuildSystems...), ", ")))
		}

		for _, e := range pkg.Executions {
			r := e.Result
			if r.Succeeded() {
				fmt.Fprintf(bw, "  %s %-14s %3d issues  %s\n", green("✓"), r.Plugin, e.Issues, gray(r.Duration.Round(time.Millisecond)))
				continue
			}
			mark := yellow("⚠")
			if e.Required {
				mark = red("✗")
			}
			fmt.Fprintf(bw, "  %s %-14s %s: %s\n", mark, r.Plugin, r.Status, r.Message)
			if c.opts.ShowToolOutput {
				writeOutput(bw, "stdout", r.Output.Stdout)
				writeOutput(bw, "stderr", r.Output.Stderr)
			}
		}

		if len(pkg.Issues) == 0 {
			fmt.Fprintf(bw, "  %s\n", green("no issues"))
		}
		for _, is := range pkg.Issues {
			code := ""
			if is.Code != "" {
				code = " [" + is.Code + "]"
			}
			fmt.Fprintf(bw, "  %s: %s: %s%s %s\n", is.Location(), severity(is.Severity), is.Message, code, gray("("+is.Plugin+")"))
		}
		if pkg.Suppressed+pkg.Duplicates > 0 {
			fmt.Fprintf(bw, "  %s\n", gray(fmt.Sprintf("%d suppressed, %d duplicates removed", pkg.Suppressed, pkg.Duplicates)))
		}
	}

	st := report.Stats()
	exit := status.Resolve(report)
	statusText := green(exit.String())
	switch exit {
	case types.ExitIssuesFound:
		statusText = yellow(exit.String())
	case types.ExitFatal, types.ExitCancelled:
		statusText = red(exit.String())
	}
	fmt.Fprintf(bw, "\n%d issues (%d errors, %d warnings, %d info) in %d packages; %d plugins run, %d failed, %d timed out\n",
		st.Issues, st.Errors, st.Warnings, st.Infos, st.Packages, st.PluginsRun, st.PluginsFailed, st.PluginsTimedOut)
	fmt.Fprintf(bw, "Status: %s\n", statusText)
	return bw.Flush()
}

func writeOutput(w io.Writer, label string, data []byte) {
	text := strings.TrimRight(string(data), "\n")
	if text == "" {
		return
	}
	fmt.Fprintf(w, "      --- %s ---\n", label)
	for _, line := range strings.Split(text, "\n") {
		fmt.Fprintf(w, "      %s\n", line)
	}
}
