package adapters

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/steveyegge/gauntlet/internal/plugin"
	"github.com/steveyegge/gauntlet/internal/types"
)

// Parser turns a tool's native output into findings.
type Parser interface {
	Parse(out types.RawOutput) ([]plugin.Finding, error)
}

// DefaultLinePattern matches the common compiler-style format
//
//	path/file.ext:LINE[:COL]: [severity:] message [CODE]
//
// as printed by gcc, go vet and shellcheck --format=gcc. Severity names are
// matched case-insensitively.
const DefaultLinePattern = `^(?P<file>[^:\s][^:]*):(?P<line>\d+):(?:(?P<column>\d+):)?\s*(?:(?P<severity>(?i:error|warning|warn|info|note|style|convention|refactor|fatal|low|medium|high))\s*:\s*)?(?P<message>.+?)(?:\s+\[(?P<code>[^\]]+)\])?\s*$`

// LineParser matches each output line against a regular expression with
// named groups file, line, column, severity, code and message. Only file and
// message are required; lines that do not match are ignored.
type LineParser struct {
	re              *regexp.Regexp
	defaultSeverity types.Severity
}

// NewLineParser compiles pattern, or DefaultLinePattern when empty.
func NewLineParser(pattern string) (*LineParser, error) {
	if pattern == "" {
		pattern = DefaultLinePattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("compiling line pattern: %w", err)
	}
	if re.SubexpIndex("file") < 0 || re.SubexpIndex("message") < 0 {
		return nil, fmt.Errorf("line pattern must have named groups file and message")
	}
	return &LineParser{re: re, defaultSeverity: types.SeverityWarning}, nil
}

// Parse scans stdout and then stderr. Tools differ on which stream carries
// diagnostics (go vet writes to stderr).
func (p *LineParser) Parse(out types.RawOutput) ([]plugin.Finding, error) {
	var findings []plugin.Finding
	for _, stream := range [][]byte{out.Stdout, out.Stderr} {
		scanner := bufio.NewScanner(bytes.NewReader(stream))
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			if f, ok := p.parseLine(scanner.Text()); ok {
				findings = append(findings, f)
			}
		}
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("reading output: %w", err)
		}
	}
	return findings, nil
}

func (p *LineParser) parseLine(line string) (plugin.Finding, bool) {
	m := p.re.FindStringSubmatch(line)
	if m == nil {
		return plugin.Finding{}, false
	}
	group := func(name string) string {
		if i := p.re.SubexpIndex(name); i >= 0 {
			return strings.TrimSpace(m[i])
		}
		return ""
	}
	f := plugin.Finding{
		File:     group("file"),
		Code:     group("code"),
		Message:  group("message"),
		Severity: p.defaultSeverity,
	}
	if f.File == "" || f.Message == "" {
		return plugin.Finding{}, false
	}
	f.Line, _ = strconv.Atoi(group("line"))
	f.Column, _ = strconv.Atoi(group("column"))
	if sev, err := types.ParseSeverity(group("severity")); err == nil {
		f.Severity = sev
	}
	return f, true
}

// jsonFinding is one line of jsonl output.
type jsonFinding struct {
	File     string `json:"file"`
	Line     int    `json:"line"`
	Column   int    `json:"column"`
	Severity string `json:"severity"`
	Code     string `json:"code"`
	Message  string `json:"message"`
}

// JSONLParser reads one JSON object per stdout line. It is the format for
// wrapper scripts written against gauntlet directly. Any malformed line fails
// the whole parse.
type JSONLParser struct{}

func (JSONLParser) Parse(out types.RawOutput) ([]plugin.Finding, error) {
	var findings []plugin.Finding
	scanner := bufio.NewScanner(bytes.NewReader(out.Stdout))
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	n := 0
	for scanner.Scan() {
		n++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var jf jsonFinding
		if err := json.Unmarshal(line, &jf); err != nil {
			return nil, fmt.Errorf("line %d: %w", n, err)
		}
		if jf.File == "" || jf.Message == "" {
			return nil, fmt.Errorf("line %d: file and message are required", n)
		}
		sev := types.SeverityWarning
		if jf.Severity != "" {
			s, err := types.ParseSeverity(jf.Severity)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", n, err)
			}
			sev = s
		}
		findings = append(findings, plugin.Finding{
			File:     jf.File,
			Line:     jf.Line,
			Column:   jf.Column,
			Severity: sev,
			Code:     jf.Code,
			Message:  jf.Message,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading output: %w", err)
	}
	return findings, nil
}

type eslintFile struct {
	FilePath string          `json:"filePath"`
	Messages []eslintMessage `json:"messages"`
}

type eslintMessage struct {
	RuleID   *string `json:"ruleId"`
	Severity int     `json:"severity"`
	Message  string  `json:"message"`
	Line     int     `json:"line"`
	Column   int     `json:"column"`
	Fatal    bool    `json:"fatal"`
}

// ESLintParser reads the output of eslint -f json: an array of files, each
// with its messages. ESLint severity 1 is a warning and 2 an error.
type ESLintParser struct{}

func (ESLintParser) Parse(out types.RawOutput) ([]plugin.Finding, error) {
	data := bytes.TrimSpace(out.Stdout)
	if len(data) == 0 {
		return nil, nil
	}
	var files []eslintFile
	if err := json.Unmarshal(data, &files); err != nil {
		return nil, fmt.Errorf("decoding eslint json: %w", err)
	}
	var findings []plugin.Finding
	for _, file := range files {
		for _, msg := range file.Messages {
			f := plugin.Finding{
				File:     file.FilePath,
				Line:     msg.Line,
				Column:   msg.Column,
				Severity: types.SeverityWarning,
				Message:  msg.Message,
			}
			if msg.RuleID != nil {
				f.Code = *msg.RuleID
			}
			if msg.Severity == 2 || msg.Fatal {
				f.Severity = types.SeverityError
			}
			findings = append(findings, f)
		}
	}
	return findings, nil
}

// NewParser returns the parser named by a descriptor.
func NewParser(name, pattern string) (Parser, error) {
	switch name {
	case "", "line":
		return NewLineParser(pattern)
	case "jsonl":
		return JSONLParser{}, nil
	case "eslint":
		return ESLintParser{}, nil
	default:
		return nil, fmt.Errorf("unknown parser %q", name)
	}
}
