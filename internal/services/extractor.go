package services

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"

	"cloud.google.com/go/vertexai/genai"
	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/Lllllllleong/documentpipeline/internal/models"
)

// DocumentExtractor implements the extraction stage: it downloads the
// source document and asks the model for its full text content.
type DocumentExtractor struct {
	model *genai.GenerativeModel
	store BlobReader
}

func NewDocumentExtractor(model *genai.GenerativeModel, store BlobReader) *DocumentExtractor {
	return &DocumentExtractor{model: model, store: store}
}

// Extract downloads the referenced document and returns its extracted text.
func (e *DocumentExtractor) Extract(ctx context.Context, ref models.DocumentReference) (string, error) {
	data, err := e.store.Read(ctx, ref.Container, ref.ObjectPath())
	if err != nil {
		return "", fmt.Errorf("failed to download source document: %w", err)
	}
	if len(data) == 0 {
		return "", fmt.Errorf("source document %s is empty", ref.Name)
	}

	mimeType := mimeTypeFor(ref.Name)
	if mimeType == "application/pdf" {
		if _, err := api.PageCount(bytes.NewReader(data), nil); err != nil {
			return "", fmt.Errorf("source document %s is not a readable PDF: %w", ref.Name, err)
		}
	}

	resp, err := e.model.GenerateContent(ctx,
		genai.Blob{MIMEType: mimeType, Data: data},
		genai.Text(ExtractorUserPrompt),
	)
	if err != nil {
		return "", fmt.Errorf("extraction model call failed for %s: %w", ref.Name, err)
	}

	text := responseText(resp)
	if text == "" {
		return "", fmt.Errorf("extraction model returned no content for %s", ref.Name)
	}
	return text, nil
}

func mimeTypeFor(name string) string {
	switch strings.ToLower(path.Ext(name)) {
	case ".pdf":
		return "application/pdf"
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".txt":
		return "text/plain"
	default:
		return "application/octet-stream"
	}
}
