package config

import (
	"fmt"
	"maps"
	"strconv"
	"time"

	"github.com/steveyegge/gauntlet/internal/types"
)

// Settings holds the run-level knobs that are not tied to one plugin.
type Settings struct {
	// Timeout is the per-plugin invocation timeout used when a plugin does not
	// set its own. Default: 5m
	Timeout time.Duration

	// Concurrency bounds how many plugins run at once.
	// 0 means one per logical CPU. Default: 0
	Concurrency int

	// SeverityThreshold is the lowest severity that makes a run report
	// IssuesFound. Default: warning
	SeverityThreshold types.Severity

	// LaunchRate limits plugin launches per second. 0 means unlimited.
	LaunchRate float64

	// HonorNolint drops issues whose source line contains a NOLINT marker.
	// Default: true
	HonorNolint bool

	// IgnorePackages lists package names that are skipped entirely.
	IgnorePackages []string

	// Reporters names the reporting plugins that render the run.
	// Default: [console]
	Reporters []string
}

// DefaultSettings returns the settings used when no layer sets a key.
func DefaultSettings() Settings {
	return Settings{
		Timeout:           5 * time.Minute,
		Concurrency:       0,
		SeverityThreshold: types.SeverityWarning,
		LaunchRate:        0,
		HonorNolint:       true,
		Reporters:         []string{"console"},
	}
}

// decodeSettings applies a raw settings map on top of base.
func decodeSettings(base Settings, raw map[string]any) (Settings, error) {
	s := base
	for key, v := range raw {
		var err error
		switch key {
		case "timeout":
			s.Timeout, err = asDuration(v)
			if err == nil && s.Timeout <= 0 {
				err = fmt.Errorf("must be positive")
			}
		case "concurrency":
			s.Concurrency, err = asInt(v)
			if err == nil && s.Concurrency < 0 {
				err = fmt.Errorf("cannot be negative")
			}
		case "severity_threshold":
			var str string
			if str, err = asString(v); err == nil {
				s.SeverityThreshold, err = types.ParseSeverity(str)
			}
		case "launch_rate":
			s.LaunchRate, err = asFloat(v)
			if err == nil && s.LaunchRate < 0 {
				err = fmt.Errorf("cannot be negative")
			}
		case "honor_nolint":
			s.HonorNolint, err = asBool(v)
		case "ignore_packages":
			s.IgnorePackages, err = asStrings(v)
		case "reporters":
			s.Reporters, err = asStrings(v)
		default:
			err = fmt.Errorf("unknown setting")
		}
		if err != nil {
			return Settings{}, fmt.Errorf("settings.%s: %w", key, err)
		}
	}
	return s, nil
}

// Reserved plugin option keys understood by the core. Everything else in a
// plugin's option map is passed to the adapter untouched.
const (
	OptEnabled  = "enabled"
	OptRequired = "required"
	OptTimeout  = "timeout"
	OptFlags    = "flags"
	OptArgs     = "args"
	OptResource = "resource"
)

func validateOptions(opts map[string]any) error {
	for key, v := range opts {
		var err error
		switch key {
		case OptEnabled, OptRequired:
			_, err = asBool(v)
		case OptTimeout:
			var d time.Duration
			if d, err = asDuration(v); err == nil && d <= 0 {
				err = fmt.Errorf("must be positive")
			}
		case OptFlags, OptResource:
			_, err = asString(v)
		case OptArgs:
			_, err = asStrings(v)
		}
		if err != nil {
			return fmt.Errorf("option %s: %w", key, err)
		}
	}
	return nil
}

// PluginOptions is the resolved option map of one plugin. Values were
// validated when their document was parsed, so accessors do not fail.
type PluginOptions map[string]any

// Enabled reports whether the plugin should run.
func (o PluginOptions) Enabled() bool { return o.Bool(OptEnabled, false) }

// Required reports whether a failure of the plugin makes the run fatal.
func (o PluginOptions) Required() bool { return o.Bool(OptRequired, false) }

// Timeout returns the plugin's own timeout, or def when it has none.
func (o PluginOptions) Timeout(def time.Duration) time.Duration {
	if v, ok := o[OptTimeout]; ok {
		if d, err := asDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return def
}

// Bool returns a boolean option or def.
func (o PluginOptions) Bool(key string, def bool) bool {
	if v, ok := o[key]; ok {
		if b, err := asBool(v); err == nil {
			return b
		}
	}
	return def
}

// String returns a string option or "".
func (o PluginOptions) String(key string) string {
	if v, ok := o[key]; ok {
		if s, err := asString(v); err == nil {
			return s
		}
	}
	return ""
}

// Strings returns a list option or nil.
func (o PluginOptions) Strings(key string) []string {
	if v, ok := o[key]; ok {
		if s, err := asStrings(v); err == nil {
			return s
		}
	}
	return nil
}

// Clone returns a copy that can be handed to an adapter.
func (o PluginOptions) Clone() PluginOptions {
	if o == nil {
		return PluginOptions{}
	}
	return maps.Clone(o)
}

func asBool(v any) (bool, error) {
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("expected boolean, got %T", v)
	}
	return b, nil
}

func asString(v any) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("expected string, got %T", v)
	}
	return s, nil
}

func asInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case uint64:
		return int(n), nil
	default:
		return 0, fmt.Errorf("expected integer, got %T", v)
	}
}

func asFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("expected number, got %T", v)
	}
}

func asStrings(v any) ([]string, error) {
	switch list := v.(type) {
	case []string:
		return list, nil
	case []any:
		out := make([]string, 0, len(list))
		for i, item := range list {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("item %d: expected string, got %T", i, item)
			}
			out = append(out, s)
		}
		return out, nil
	case nil:
		return nil, nil
	default:
		return nil, fmt.Errorf("expected list of strings, got %T", v)
	}
}

// asDuration accepts duration strings ("90s", "5m", "1d") or a plain
// number of seconds.
func asDuration(v any) (time.Duration, error) {
	switch d := v.(type) {
	case string:
		return ParseDuration(d)
	case int:
		return time.Duration(d) * time.Second, nil
	case float64:
		return time.Duration(d * float64(time.Second)), nil
	default:
		return 0, fmt.Errorf("expected duration, got %T", v)
	}
}

// ParseDuration parses duration strings like "5m", "1h", "7d". The day form
// takes a whole, unsigned number of days.
func ParseDuration(s string) (time.Duration, error) {
	// Handle day suffix
	if len(s) > 1 && s[len(s)-1] == 'd' {
		days, err := strconv.ParseUint(s[:len(s)-1], 10, 16)
		if err != nil {
			return 0, fmt.Errorf("invalid duration: %s", s)
		}
		return time.Duration(days) * 24 * time.Hour, nil
	}

	// Use standard time.ParseDuration for other formats
	return time.ParseDuration(s)
}
