package prompt

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/zero-day-ai/crucible/internal/types"
	"gopkg.in/yaml.v3"
)

// ParseDataset parses a seed prompt dataset from YAML. source names the
// document in error messages.
func ParseDataset(data []byte, source string) (*SeedPromptDataset, error) {
	var dataset SeedPromptDataset
	if err := yaml.Unmarshal(data, &dataset); err != nil {
		return nil, NewYAMLParseError(source, enrichYAMLError(err))
	}
	if len(dataset.Prompts) == 0 {
		return nil, NewYAMLParseError(source, fmt.Errorf("dataset has no prompts"))
	}

	dataset.applyDefaults()
	if err := dataset.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", source, err)
	}
	return &dataset, nil
}

// LoadDatasetFromFile loads a seed prompt dataset from a YAML file.
func LoadDatasetFromFile(path string) (*SeedPromptDataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, NewYAMLParseError(path, fmt.Errorf("failed to read file: %w", err))
	}
	return ParseDataset(data, path)
}

// LoadDatasetsFromDirectory loads every .yaml and .yml file in dir.
//
// Loading continues past files that fail; the first error is returned along
// with whatever loaded successfully.
func LoadDatasetsFromDirectory(dir string) ([]*SeedPromptDataset, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, NewYAMLParseError(dir, fmt.Errorf("failed to read directory: %w", err))
	}

	var datasets []*SeedPromptDataset
	var firstError error

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}

		ds, err := LoadDatasetFromFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			if firstError == nil {
				firstError = err
			}
			continue
		}
		datasets = append(datasets, ds)
	}

	return datasets, firstError
}

// ParseSeedPrompt parses a single seed prompt document, the format used for
// attack strategies and system prompt templates.
func ParseSeedPrompt(data []byte, source string) (*SeedPrompt, error) {
	var p SeedPrompt
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, NewYAMLParseError(source, enrichYAMLError(err))
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", source, err)
	}
	if p.ID == "" {
		p.ID = types.NewID()
	}
	return &p, nil
}

// LoadSeedPromptFromFile loads a single seed prompt from a YAML file.
func LoadSeedPromptFromFile(path string) (*SeedPrompt, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, NewYAMLParseError(path, fmt.Errorf("failed to read file: %w", err))
	}
	return ParseSeedPrompt(data, path)
}

// enrichYAMLError keeps yaml.v3's line:column detail and marks the failure
// as a syntax problem.
func enrichYAMLError(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("YAML syntax error: %w", err)
}
