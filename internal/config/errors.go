package config

import (
	"errors"
	"fmt"
	"strings"
)

// Layer names one of the configuration scopes, in precedence order.
type Layer string

const (
	LayerDefaults Layer = "defaults"
	LayerProfile  Layer = "profile"
	LayerOverride Layer = "override"
)

var (
	// ErrConfigParse matches any ConfigParseError via errors.Is.
	ErrConfigParse = errors.New("config parse error")

	// ErrProfileNotFound matches any ProfileNotFoundError via errors.Is.
	ErrProfileNotFound = errors.New("profile not found")
)

// ConfigParseError reports a document that could not be read or is malformed.
type ConfigParseError struct {
	Layer Layer
	Path  string
	Err   error
}

func (e *ConfigParseError) Error() string {
	return fmt.Sprintf("%s config %s: %v", e.Layer, e.Path, e.Err)
}

func (e *ConfigParseError) Unwrap() error { return e.Err }

func (e *ConfigParseError) Is(target error) bool { return target == ErrConfigParse }

// ProfileNotFoundError reports a profile name no configuration source defines.
type ProfileNotFoundError struct {
	Name     string
	Searched []string
}

func (e *ProfileNotFoundError) Error() string {
	return fmt.Sprintf("profile %q not found (searched: %s)", e.Name, strings.Join(e.Searched, ", "))
}

func (e *ProfileNotFoundError) Is(target error) bool { return target == ErrProfileNotFound }
