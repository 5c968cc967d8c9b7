package plugin

import (
	"errors"
	"fmt"
)

var (
	// ErrPluginNotFound matches any PluginNotFoundError via errors.Is.
	ErrPluginNotFound = errors.New("plugin not found")

	// ErrDuplicatePluginName matches any DuplicatePluginNameError via errors.Is.
	ErrDuplicatePluginName = errors.New("duplicate plugin name")

	// ErrDependency matches selection failures caused by depends_on.
	ErrDependency = errors.New("plugin dependency error")
)

// PluginNotFoundError reports a name the registry does not know, optionally
// restricted to one kind.
type PluginNotFoundError struct {
	Name string
	Kind Kind
}

func (e *PluginNotFoundError) Error() string {
	if e.Kind != "" {
		return fmt.Sprintf("%s plugin %q not found", e.Kind, e.Name)
	}
	return fmt.Sprintf("plugin %q not found", e.Name)
}

func (e *PluginNotFoundError) Is(target error) bool { return target == ErrPluginNotFound }

// DuplicatePluginNameError reports two plugins registered under one name.
type DuplicatePluginNameError struct {
	Name   string
	First  string
	Second string
}

func (e *DuplicatePluginNameError) Error() string {
	return fmt.Sprintf("plugin %q registered twice (%s and %s)", e.Name, e.First, e.Second)
}

func (e *DuplicatePluginNameError) Is(target error) bool { return target == ErrDuplicatePluginName }

// DependencyError reports a depends_on edge that cannot be satisfied.
type DependencyError struct {
	Plugin     string
	Dependency string // empty for cycles
	Reason     string
}

func (e *DependencyError) Error() string {
	if e.Dependency == "" {
		return fmt.Sprintf("plugin %q: %s", e.Plugin, e.Reason)
	}
	return fmt.Sprintf("plugin %q depends on %q which %s", e.Plugin, e.Dependency, e.Reason)
}

func (e *DependencyError) Is(target error) bool { return target == ErrDependency }
