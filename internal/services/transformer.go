package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"cloud.google.com/go/vertexai/genai"
)

// ModelTransformer implements the transformation stage: it sends extracted
// text to the model with the configured user prompt and normalizes the
// response.
type ModelTransformer struct {
	model      *genai.GenerativeModel
	userPrompt string
	logger     *slog.Logger
}

func NewModelTransformer(model *genai.GenerativeModel, userPrompt string, logger *slog.Logger) *ModelTransformer {
	if logger == nil {
		logger = slog.Default()
	}
	return &ModelTransformer{model: model, userPrompt: userPrompt, logger: logger}
}

// Transform produces the structured representation of the extracted text.
func (t *ModelTransformer) Transform(ctx context.Context, instanceID, text string) (string, error) {
	prompt := strings.TrimRight(t.userPrompt, "\n") + "\n\n" + text

	resp, err := t.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("transformation model call failed: %w", err)
	}

	raw := responseText(resp)
	if raw == "" {
		return "", fmt.Errorf("transformation model returned no content")
	}

	normalized, wasJSON := NormalizeModelResponse(raw)
	if !wasJSON {
		t.logger.Warn("Transformation output is not valid JSON; storing raw response.",
			"instanceId", instanceID)
	}
	return normalized, nil
}
