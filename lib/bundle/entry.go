// Copyright 2026 The Greytar Authors
// SPDX-License-Identifier: Apache-2.0

package bundle

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// Entry is one descriptor instruction. Which fields are meaningful
// depends on Type; unused fields stay zero.
type Entry struct {
	Type string `json:"type" yaml:"type"`

	// Filesystem entries.
	Path     string     `json:"path" yaml:"path"`
	Contents string     `json:"contents" yaml:"contents"`
	Local    StringList `json:"local" yaml:"local"`

	// Build and test entries.
	Name       string     `json:"name" yaml:"name"`
	Source     string     `json:"source" yaml:"source"`
	Target     string     `json:"target" yaml:"target"`
	LocalTests StringList `json:"local-tests" yaml:"local-tests"`

	// Account entries.
	User       string `json:"user" yaml:"user"`
	Password   string `json:"password" yaml:"password"`
	Group      string `json:"group" yaml:"group"`
	RemoveHome bool   `json:"remove-home" yaml:"remove-home"`

	// Attribute entries.
	Permissions string `json:"permissions" yaml:"permissions"`
	Owner       string `json:"owner" yaml:"owner"`
	Recursive   bool   `json:"recursive" yaml:"recursive"`

	// Execution and transfer entries.
	Command   string     `json:"cmd" yaml:"cmd"`
	Arguments StringList `json:"arguments" yaml:"arguments"`
	From      string     `json:"from" yaml:"from"`
	To        string     `json:"to" yaml:"to"`
}

// StringList accepts either a single string or a list of strings in
// the descriptor.
type StringList []string

func (l *StringList) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*l = StringList{single}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("expected a string or list of strings: %w", err)
	}
	*l = many
	return nil
}

func (l *StringList) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		var single string
		if err := value.Decode(&single); err != nil {
			return err
		}
		*l = StringList{single}
		return nil
	}
	var many []string
	if err := value.Decode(&many); err != nil {
		return fmt.Errorf("expected a string or list of strings: %w", err)
	}
	*l = many
	return nil
}

// LoadEntries reads a descriptor file. The format follows the file
// extension: .yaml/.yml is YAML, everything else is JSONC (JSON with
// comments and trailing commas).
func LoadEntries(path string) ([]Entry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading descriptor: %w", err)
	}
	var entries []Entry
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(raw, &entries); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(jsonc.ToJSON(raw), &entries); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	}
	return entries, nil
}
