package sprint

import (
	_ "embed"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed data/categories.yaml
var defaultCategoriesYAML []byte

// Categories maps tracker statuses onto sprint metric buckets.
type Categories struct {
	ToDo                []string `yaml:"todo"`
	InProgress          []string `yaml:"in_progress"`
	Done                []string `yaml:"done"`
	ExcludedResolutions []string `yaml:"excluded_resolutions"`
}

// DefaultCategories returns the built-in status mapping.
func DefaultCategories() *Categories {
	c, err := ParseCategories(defaultCategoriesYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded categories are invalid: %v", err))
	}
	return c
}

// LoadCategories reads a category file. An empty path returns the defaults.
func LoadCategories(path string) (*Categories, error) {
	if path == "" {
		return DefaultCategories(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read categories file: %w", err)
	}
	return ParseCategories(data)
}

// ParseCategories decodes and validates a YAML category document.
func ParseCategories(data []byte) (*Categories, error) {
	var c Categories
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse categories: %w", err)
	}
	if len(c.ToDo) == 0 || len(c.InProgress) == 0 || len(c.Done) == 0 {
		return nil, errors.New("categories must list todo, in_progress and done statuses")
	}
	return &c, nil
}
