package ingest

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ProjectMetadata defines the structure of the project.yaml file.
type ProjectMetadata struct {
	Name        string   `yaml:"name" json:"name"`
	Description string   `yaml:"description" json:"description,omitempty"`
	Version     string   `yaml:"version" json:"version,omitempty"`
	Tags        []string `yaml:"tags" json:"tags,omitempty"`
	// Files lists model files relative to the project directory, in load order.
	Files []string `yaml:"files" json:"files,omitempty"`
	// NameHints overrides the short name used for instances of an element.
	NameHints map[string]string `yaml:"name_hints" json:"nameHints,omitempty"`
	// Seed fixes the sampling seed for this project; 0 leaves it to the caller.
	Seed int64 `yaml:"seed" json:"seed,omitempty"`
}

// LoadProjectMetadata reads and parses the project.yaml file from the given path.
func LoadProjectMetadata(path string) (*ProjectMetadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read project metadata: %w", err)
	}

	var metadata ProjectMetadata
	if err := yaml.Unmarshal(data, &metadata); err != nil {
		return nil, fmt.Errorf("failed to parse project metadata: %w", err)
	}

	return &metadata, nil
}
