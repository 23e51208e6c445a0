// Package catalog loads the list of generation models offered to clients.
package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"github.com/bnema/orator/internal/domain"
	"gopkg.in/yaml.v3"
)

//go:embed models.yaml
var builtin []byte

type file struct {
	Models []domain.Model `yaml:"models"`
}

// Load reads the catalog at path, or the built-in one when path is empty. The
// default model is always present and listed first.
func Load(path, defaultModel string) ([]domain.Model, error) {
	data := builtin
	if path != "" {
		var err error
		if data, err = os.ReadFile(path); err != nil {
			return nil, fmt.Errorf("read model catalog: %w", err)
		}
	}

	models, err := Parse(data)
	if err != nil {
		return nil, err
	}
	return withDefault(models, defaultModel), nil
}

func Parse(data []byte) ([]domain.Model, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse model catalog: %w", err)
	}

	models := make([]domain.Model, 0, len(f.Models))
	seen := make(map[string]bool)
	for i, m := range f.Models {
		m.Name = strings.TrimSpace(m.Name)
		if m.Name == "" {
			return nil, fmt.Errorf("parse model catalog: entry %d has no name", i)
		}
		if seen[m.Name] {
			continue
		}
		seen[m.Name] = true
		if m.DisplayName == "" {
			m.DisplayName = m.Name
		}
		models = append(models, m)
	}
	return models, nil
}

// Minimal is the fallback list used when nothing better is known.
func Minimal(defaultModel string) []domain.Model {
	return []domain.Model{{Name: defaultModel, DisplayName: defaultModel + " (Default)"}}
}

func withDefault(models []domain.Model, defaultModel string) []domain.Model {
	for i, m := range models {
		if m.Name == defaultModel {
			if i == 0 {
				return models
			}
			out := append([]domain.Model{m}, models[:i]...)
			return append(out, models[i+1:]...)
		}
	}
	return append(Minimal(defaultModel), models...)
}
