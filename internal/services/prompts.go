package services

import (
	"context"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Prompts is the transformation prompt configuration, stored as a YAML
// object in the prompts bucket.
type Prompts struct {
	SystemPrompt string `yaml:"system_prompt"`
	UserPrompt   string `yaml:"user_prompt"`
}

// ParsePrompts decodes and validates a YAML prompt document.
func ParsePrompts(data []byte) (Prompts, error) {
	var prompts Prompts
	if err := yaml.Unmarshal(data, &prompts); err != nil {
		return Prompts{}, fmt.Errorf("failed to parse prompt configuration: %w", err)
	}
	if prompts.SystemPrompt == "" {
		return Prompts{}, fmt.Errorf("prompt configuration is missing required key system_prompt")
	}
	if prompts.UserPrompt == "" {
		return Prompts{}, fmt.Errorf("prompt configuration is missing required key user_prompt")
	}
	return prompts, nil
}

// BlobReader is the read-side storage contract consumed by prompt loading
// and text extraction.
type BlobReader interface {
	Read(ctx context.Context, container, objectPath string) ([]byte, error)
}

// LoadPrompts fetches the prompt configuration object and parses it.
func LoadPrompts(ctx context.Context, reader BlobReader, bucket, object string) (Prompts, error) {
	data, err := reader.Read(ctx, bucket, object)
	if err != nil {
		return Prompts{}, fmt.Errorf("failed to load prompt configuration %s/%s: %w", bucket, object, err)
	}
	return ParsePrompts(data)
}
