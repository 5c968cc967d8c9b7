package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"maps"
	"path"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Document is one configuration layer as written on disk. Built-in defaults,
// profiles and per-package overrides all share this shape:
//
//	inherits: default            # profiles only
//	description: Strict checks
//	packages:                    # profiles only: package name -> profile
//	  legacy-api: default
//	profile: security            # package overrides only
//	settings:
//	  timeout: 2m
//	  severity_threshold: info
//	plugins:
//	  eslint:
//	    enabled: true
//	    required: true
//	    flags: "--max-warnings 0"
//	suppressions:
//	  - path: "vendor/**"
//	  - plugin: eslint
//	    code: no-console
type Document struct {
	Inherits     string                    `yaml:"inherits,omitempty"`
	Description  string                    `yaml:"description,omitempty"`
	Packages     map[string]string         `yaml:"packages,omitempty"`
	Profile      string                    `yaml:"profile,omitempty"`
	Settings     map[string]any            `yaml:"settings,omitempty"`
	Plugins      map[string]map[string]any `yaml:"plugins,omitempty"`
	Suppressions []SuppressionRule         `yaml:"suppressions,omitempty"`
}

// SuppressionRule removes issues from the aggregate. Every field that is set
// must match; a rule with no fields is invalid.
type SuppressionRule struct {
	Path        string `yaml:"path,omitempty" json:"path,omitempty"`               // glob on the package-relative path
	Fingerprint string `yaml:"fingerprint,omitempty" json:"fingerprint,omitempty"` // exact fingerprint
	Plugin      string `yaml:"plugin,omitempty" json:"plugin,omitempty"`
	Code        string `yaml:"code,omitempty" json:"code,omitempty"`
	Message     string `yaml:"message,omitempty" json:"message,omitempty"` // regular expression
	Source      string `yaml:"-" json:"source,omitempty"`                  // layer and file the rule came from
}

// Validate checks that the rule selects something and that its patterns compile.
func (r SuppressionRule) Validate() error {
	if r.Path == "" && r.Fingerprint == "" && r.Plugin == "" && r.Code == "" && r.Message == "" {
		return fmt.Errorf("suppression rule must set at least one of path, fingerprint, plugin, code, message")
	}
	if r.Path != "" {
		for _, seg := range strings.Split(r.Path, "/") {
			if seg == "**" {
				continue
			}
			if _, err := path.Match(seg, ""); err != nil {
				return fmt.Errorf("invalid path glob %q: %w", r.Path, err)
			}
		}
	}
	if r.Message != "" {
		if _, err := regexp.Compile(r.Message); err != nil {
			return fmt.Errorf("invalid message pattern %q: %w", r.Message, err)
		}
	}
	return nil
}

// ParseDocument decodes and validates one configuration document. Unknown
// top-level keys, mistyped reserved options and invalid suppression rules are
// errors. An empty document is valid.
func ParseDocument(data []byte) (*Document, error) {
	doc := &Document{}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing YAML: %w", err)
	}
	if err := doc.validate(); err != nil {
		return nil, err
	}
	return doc, nil
}

func (d *Document) validate() error {
	if _, err := decodeSettings(DefaultSettings(), d.Settings); err != nil {
		return err
	}
	for name, opts := range d.Plugins {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("plugin name cannot be empty")
		}
		if err := validateOptions(opts); err != nil {
			return fmt.Errorf("plugin %q: %w", name, err)
		}
	}
	for i, rule := range d.Suppressions {
		if err := rule.Validate(); err != nil {
			return fmt.Errorf("suppressions[%d]: %w", i, err)
		}
	}
	for name, profile := range d.Packages {
		if strings.TrimSpace(name) == "" || strings.TrimSpace(profile) == "" {
			return fmt.Errorf("packages: package and profile names cannot be empty")
		}
	}
	return nil
}

// clone returns a deep enough copy for merging: option maps are copied one
// level down, which is as deep as merging ever reaches.
func (d *Document) clone() *Document {
	out := &Document{
		Inherits:     d.Inherits,
		Description:  d.Description,
		Packages:     maps.Clone(d.Packages),
		Profile:      d.Profile,
		Settings:     maps.Clone(d.Settings),
		Plugins:      make(map[string]map[string]any, len(d.Plugins)),
		Suppressions: append([]SuppressionRule(nil), d.Suppressions...),
	}
	for name, opts := range d.Plugins {
		out.Plugins[name] = maps.Clone(opts)
	}
	return out
}

// overlay applies src on top of d: plugin option maps and settings are
// overwritten key by key, suppression rules are appended.
func (d *Document) overlay(src *Document) {
	if d.Settings == nil {
		d.Settings = make(map[string]any)
	}
	for k, v := range src.Settings {
		d.Settings[k] = v
	}
	if d.Plugins == nil {
		d.Plugins = make(map[string]map[string]any)
	}
	for name, opts := range src.Plugins {
		dst, ok := d.Plugins[name]
		if !ok || dst == nil {
			dst = make(map[string]any, len(opts))
			d.Plugins[name] = dst
		}
		for k, v := range opts {
			dst[k] = v
		}
	}
	d.Suppressions = append(d.Suppressions, src.Suppressions...)
	if len(src.Packages) > 0 {
		if d.Packages == nil {
			d.Packages = make(map[string]string, len(src.Packages))
		}
		maps.Copy(d.Packages, src.Packages)
	}
	if src.Description != "" {
		d.Description = src.Description
	}
}

func (d *Document) tagSuppressions(source string) {
	for i := range d.Suppressions {
		d.Suppressions[i].Source = source
	}
}
