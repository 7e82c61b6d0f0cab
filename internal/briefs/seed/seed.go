// Package seed holds the default brief template catalog shipped with the
// binary. Every organization gets these templates on startup; organizations
// can edit or delete their copies without affecting anyone else.
package seed

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed templates.yaml
var templatesYAML []byte

// Template is one default brief template from the embedded catalog.
type Template struct {
	Slug        string   `yaml:"slug"`
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Tone        string   `yaml:"tone"`
	Sections    []string `yaml:"sections"`
}

type catalog struct {
	Templates []Template `yaml:"templates"`
}

// DefaultTemplates parses the embedded catalog.
func DefaultTemplates() ([]Template, error) {
	var c catalog
	if err := yaml.Unmarshal(templatesYAML, &c); err != nil {
		return nil, fmt.Errorf("parse embedded brief templates: %w", err)
	}
	if len(c.Templates) == 0 {
		return nil, fmt.Errorf("embedded brief template catalog is empty")
	}

	seen := make(map[string]struct{}, len(c.Templates))
	for _, t := range c.Templates {
		if t.Slug == "" || t.Name == "" {
			return nil, fmt.Errorf("brief template seed missing slug or name")
		}
		if _, dup := seen[t.Slug]; dup {
			return nil, fmt.Errorf("duplicate brief template slug %q", t.Slug)
		}
		seen[t.Slug] = struct{}{}
	}

	return c.Templates, nil
}
