package types

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// Severity ranks an issue. Values are ordered so that comparisons work
// directly (SeverityError > SeverityWarning > SeverityInfo).
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityError
)

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	default:
		return "unknown"
	}
}

// IsValid checks if the severity value is one of the defined levels
func (s Severity) IsValid() bool {
	return s >= SeverityInfo && s <= SeverityError
}

// ParseSeverity converts a level name into a Severity. Common aliases used by
// external tools ("note", "warn", "fatal", ...) are accepted.
func ParseSeverity(s string) (Severity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "info", "note", "notice", "hint", "style", "convention", "refactor", "low":
		return SeverityInfo, nil
	case "warning", "warn", "medium":
		return SeverityWarning, nil
	case "error", "err", "fatal", "critical", "high":
		return SeverityError, nil
	default:
		return SeverityInfo, fmt.Errorf("unknown severity: %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler so severities serialize by name.
func (s Severity) MarshalText() ([]byte, error) {
	if !s.IsValid() {
		return nil, fmt.Errorf("invalid severity: %d", int(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Severity) UnmarshalText(text []byte) error {
	parsed, err := ParseSeverity(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Issue is one normalized finding. Issues are values: once built by NewIssue
// they are only filtered and merged, never modified.
type Issue struct {
	Plugin      string   `json:"plugin"`
	File        string   `json:"file"`
	Line        int      `json:"line,omitempty"`   // 0 when the tool reported no line
	Column      int      `json:"column,omitempty"` // 0 when the tool reported no column
	Severity    Severity `json:"severity"`
	Code        string   `json:"code,omitempty"`
	Message     string   `json:"message"`
	Fingerprint string   `json:"fingerprint"`
}

// NewIssue builds an Issue and computes its fingerprint.
func NewIssue(plugin, file string, line, column int, severity Severity, code, message string) Issue {
	return Issue{
		Plugin:      plugin,
		File:        file,
		Line:        line,
		Column:      column,
		Severity:    severity,
		Code:        code,
		Message:     message,
		Fingerprint: Fingerprint(plugin, file, line, message),
	}
}

// Fingerprint returns the stable identity of an issue: the same plugin
// reporting the same message on the same file and line always yields the
// same fingerprint, across runs and machines.
func Fingerprint(plugin, file string, line int, message string) string {
	h := sha256.New()
	for _, part := range []string{plugin, file, strconv.Itoa(line), message} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// Validate checks if the issue has valid field values
func (i Issue) Validate() error {
	if i.Plugin == "" {
		return fmt.Errorf("plugin is required")
	}
	if strings.TrimSpace(i.Message) == "" {
		return fmt.Errorf("message is required")
	}
	if i.Line < 0 || i.Column < 0 {
		return fmt.Errorf("line and column cannot be negative (got %d:%d)", i.Line, i.Column)
	}
	if !i.Severity.IsValid() {
		return fmt.Errorf("invalid severity: %d", int(i.Severity))
	}
	if i.Fingerprint != Fingerprint(i.Plugin, i.File, i.Line, i.Message) {
		return fmt.Errorf("fingerprint does not match issue contents")
	}
	return nil
}

// Location renders file:line:column, omitting parts that are unknown.
func (i Issue) Location() string {
	switch {
	case i.Line > 0 && i.Column > 0:
		return fmt.Sprintf("%s:%d:%d", i.File, i.Line, i.Column)
	case i.Line > 0:
		return fmt.Sprintf("%s:%d", i.File, i.Line)
	default:
		return i.File
	}
}

// Less reports whether a sorts before b in report order: file path, line,
// column, severity descending, then plugin, code, message and fingerprint so
// the order is total.
func Less(a, b Issue) bool {
	if a.File != b.File {
		return a.File < b.File
	}
	if a.Line != b.Line {
		return a.Line < b.Line
	}
	if a.Column != b.Column {
		return a.Column < b.Column
	}
	if a.Severity != b.Severity {
		return a.Severity > b.Severity
	}
	if a.Plugin != b.Plugin {
		return a.Plugin < b.Plugin
	}
	if a.Code != b.Code {
		return a.Code < b.Code
	}
	if a.Message != b.Message {
		return a.Message < b.Message
	}
	return a.Fingerprint < b.Fingerprint
}
