package services

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/vertexai/genai"
)

// --- Extraction model prompts ---
const ExtractorSystemPrompt = "You are a document text extraction engine. Your task is to read the provided document and return its full text content as plain text. Accuracy and completeness are of utmost importance."
const ExtractorUserPrompt = `Read the attached document and return every piece of text it contains.

Follow these instructions:

Text: Return all text content in reading order as plain text paragraphs.
Tables: Flatten each table row into a single line, separating cells with " | ".
Images: Skip images; do not describe them.
Headers and Footers: Ignore repeated page headers, footers, and page numbers.

Return ONLY the extracted text. Do not add commentary, summaries, or markup.`

// VertexClient holds the pre-configured generative models for the pipeline.
type VertexClient struct {
	ExtractorModel   *genai.GenerativeModel
	TransformerModel *genai.GenerativeModel
	baseClient       *genai.Client
}

// NewVertexClient creates a client holding the extraction and
// transformation models. The transformation model's system instruction
// comes from the loaded prompt configuration.
func NewVertexClient(ctx context.Context, projectID, region, modelName string, prompts Prompts) (*VertexClient, error) {
	if projectID == "" || region == "" {
		return nil, fmt.Errorf("NewVertexClient: projectID and region cannot be empty")
	}

	baseClient, err := genai.NewClient(ctx, projectID, region)
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}

	extractorModel := baseClient.GenerativeModel(modelName)
	extractorModel.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(ExtractorSystemPrompt)},
	}
	extractorModel.GenerationConfig = genai.GenerationConfig{
		Temperature: genai.Ptr[float32](0.0),
	}

	transformerModel := baseClient.GenerativeModel(modelName)
	transformerModel.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(prompts.SystemPrompt)},
	}
	transformerModel.GenerationConfig = genai.GenerationConfig{
		Temperature: genai.Ptr[float32](0.0),
	}

	return &VertexClient{
		ExtractorModel:   extractorModel,
		TransformerModel: transformerModel,
		baseClient:       baseClient,
	}, nil
}

func (c *VertexClient) Close() error {
	if c.baseClient != nil {
		return c.baseClient.Close()
	}
	return nil
}

// responseText concatenates the text parts of a model response and trims
// surrounding whitespace. An empty string means the model returned no
// usable content.
func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}

	var builder strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			builder.WriteString(string(txt))
		}
	}
	return strings.TrimSpace(builder.String())
}
