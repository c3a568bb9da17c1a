// Package config loads the pipeline's deployment configuration from the
// environment.
package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config carries every externally supplied setting.
type Config struct {
	ProjectID              string
	VertexAIRegion         string
	ModelName              string
	OutputBucket           string
	PromptBucket           string
	PromptObject           string
	RegistryCollection     string
	MaxConcurrentDocuments int
}

// Load reads configuration from the environment. GCP_PROJECT and
// OUTPUT_BUCKET are required; everything else has a deployment default.
func Load() (Config, error) {
	cfg := Config{
		ProjectID:          os.Getenv("GCP_PROJECT"),
		VertexAIRegion:     getEnv("VERTEX_AI_REGION", "us-central1"),
		ModelName:          getEnv("MODEL_NAME", "gemini-2.5-flash"),
		OutputBucket:       os.Getenv("OUTPUT_BUCKET"),
		PromptBucket:       os.Getenv("PROMPT_BUCKET"),
		PromptObject:       getEnv("PROMPT_OBJECT", "prompts.yaml"),
		RegistryCollection: getEnv("REGISTRY_COLLECTION", "workflowInstances"),
	}
	if cfg.ProjectID == "" {
		return Config{}, fmt.Errorf("environment variable GCP_PROJECT must be set")
	}
	if cfg.OutputBucket == "" {
		return Config{}, fmt.Errorf("environment variable OUTPUT_BUCKET must be set")
	}
	if cfg.PromptBucket == "" {
		cfg.PromptBucket = cfg.OutputBucket
	}

	concurrency, err := strconv.Atoi(getEnv("MAX_CONCURRENT_DOCUMENTS", "8"))
	if err != nil || concurrency < 0 {
		return Config{}, fmt.Errorf("MAX_CONCURRENT_DOCUMENTS must be a non-negative integer")
	}
	cfg.MaxConcurrentDocuments = concurrency

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
