// Package style provides named attribute and style rule sets loaded from
// YAML. A stylesheet is carried on the build context and resolved when a
// builder declares a class; there is no process-wide registry.
package style

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Rule is one named set of attribute and style declarations.
type Rule struct {
	// Attributes are applied with SetAttribute before any builder-declared
	// attribute, so explicit declarations win.
	Attributes map[string]string `yaml:"attributes"`
	// Styles are merged into the node's style set.
	Styles map[string]string `yaml:"styles"`
}

// Sheet is a collection of named rules.
type Sheet struct {
	Classes map[string]Rule `yaml:"classes"`
}

// Parse reads a stylesheet from YAML.
func Parse(data []byte) (*Sheet, error) {
	var s Sheet
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parsing stylesheet: %w", err)
	}
	return &s, nil
}

// Rule returns the rule registered under name.
func (s *Sheet) Rule(name string) (Rule, bool) {
	if s == nil {
		return Rule{}, false
	}
	r, ok := s.Classes[name]
	return r, ok
}
