// Package content holds the catalog every user shares (checklist items,
// modules and lessons, discussion prompts, resources) and renders lesson
// markdown.
package content

import (
	"bytes"
	_ "embed"
	"fmt"

	"github.com/atinyakov/NikahPrep/internal/models"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"gopkg.in/yaml.v3"
)

//go:embed seed.yaml
var seed []byte

// Catalog is the shared content seeded into the database at startup.
type Catalog struct {
	Checklist []models.ChecklistItem    `yaml:"checklist"`
	Modules   []models.Module           `yaml:"modules"`
	Prompts   []models.DiscussionPrompt `yaml:"prompts"`
	Resources []models.Resource         `yaml:"resources"`
}

// Load parses the embedded catalog.
func Load() (*Catalog, error) {
	return Parse(seed)
}

// Parse decodes a catalog document and checks that ids are unique.
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}

	seen := map[string]bool{}
	check := func(kind, id string) error {
		if id == "" {
			return fmt.Errorf("parse catalog: %s without id", kind)
		}
		if seen[id] {
			return fmt.Errorf("parse catalog: duplicate id %q", id)
		}
		seen[id] = true
		return nil
	}
	for _, it := range c.Checklist {
		if err := check("checklist item", it.ID); err != nil {
			return nil, err
		}
	}
	for i, m := range c.Modules {
		if err := check("module", m.ID); err != nil {
			return nil, err
		}
		for j, l := range m.Lessons {
			if err := check("lesson", l.ID); err != nil {
				return nil, err
			}
			c.Modules[i].Lessons[j].ModuleID = m.ID
		}
	}
	for _, p := range c.Prompts {
		if err := check("prompt", p.ID); err != nil {
			return nil, err
		}
	}
	for _, r := range c.Resources {
		if err := check("resource", r.ID); err != nil {
			return nil, err
		}
	}
	return &c, nil
}

// Renderer converts lesson markdown to HTML.
type Renderer struct {
	md goldmark.Markdown
}

// NewRenderer returns a renderer with GitHub-flavoured extensions. Raw HTML
// in lesson bodies is not passed through.
func NewRenderer() *Renderer {
	return &Renderer{md: goldmark.New(goldmark.WithExtensions(extension.GFM))}
}

// Render converts markdown source to HTML.
func (r *Renderer) Render(source string) (string, error) {
	var buf bytes.Buffer
	if err := r.md.Convert([]byte(source), &buf); err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	return buf.String(), nil
}
