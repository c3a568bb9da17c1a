package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Lllllllleong/documentpipeline/internal/models"
	"github.com/Lllllllleong/documentpipeline/internal/registry"
)

// ExtractionService turns a stored document into plain text.
type ExtractionService interface {
	Extract(ctx context.Context, ref models.DocumentReference) (string, error)
}

// TransformationService sends extracted text to the model and returns the
// normalized structured response.
type TransformationService interface {
	Transform(ctx context.Context, instanceID, text string) (string, error)
}

// PersistenceService writes the structured result to the output bucket.
type PersistenceService interface {
	Write(ctx context.Context, objectPath string, data []byte) (models.PersistenceReceipt, error)
}

// DocumentWorkflow runs the three-stage pipeline for a single document.
type DocumentWorkflow struct {
	registry    registry.Registry
	extractor   ExtractionService
	transformer TransformationService
	persister   PersistenceService
	policies    Policies
	logger      *slog.Logger
}

// NewDocumentWorkflow wires the workflow's collaborators.
func NewDocumentWorkflow(reg registry.Registry, extractor ExtractionService, transformer TransformationService, persister PersistenceService, policies Policies, logger *slog.Logger) *DocumentWorkflow {
	if logger == nil {
		logger = slog.Default()
	}
	return &DocumentWorkflow{
		registry:    reg,
		extractor:   extractor,
		transformer: transformer,
		persister:   persister,
		policies:    policies,
		logger:      logger,
	}
}

// Run drives one document through extraction, transformation, and
// persistence. Stages are strictly sequential; a terminal stage failure
// stops the pipeline immediately and marks only this document's instance
// Failed. The returned result is always terminal and never carries an error
// that could abort sibling documents.
func (w *DocumentWorkflow) Run(ctx context.Context, parentID string, ref models.DocumentReference) models.DocumentResult {
	instanceID, err := w.registry.Create(ctx, models.KindDocument, ref, parentID)
	if err != nil {
		w.logger.Error("Failed to register document instance.", "document", ref.Name, "error", err)
		return models.DocumentResult{
			Reference: ref,
			Status:    models.StatusFailed,
			Failure:   &models.FailureRecord{Stage: "registration", Attempts: 1, Message: err.Error()},
		}
	}

	logCtx := w.logger.With("instanceId", instanceID, "parentInstanceId", parentID, "document", ref.Name)
	if err := w.registry.MarkRunning(ctx, instanceID); err != nil {
		logCtx.Error("Failed to mark instance running.", "error", err)
		return w.fail(ctx, logCtx, instanceID, ref, &StageError{Stage: "registration", Attempts: 1, Err: err})
	}
	logCtx.Info("Document workflow started.")

	text, err := runStage(ctx, logCtx, StageExtraction, w.policies.Extraction, func(ctx context.Context) (string, error) {
		return w.extractor.Extract(ctx, ref)
	})
	if err != nil {
		return w.fail(ctx, logCtx, instanceID, ref, asStageError(err))
	}

	transformed, err := runStage(ctx, logCtx, StageTransformation, w.policies.Transformation, func(ctx context.Context) (string, error) {
		return w.transformer.Transform(ctx, instanceID, text)
	})
	if err != nil {
		return w.fail(ctx, logCtx, instanceID, ref, asStageError(err))
	}

	// The destination key is scoped by the batch so all of a batch's outputs
	// share one namespace; a document started outside a batch falls back to
	// its own id.
	destinationScope := parentID
	if destinationScope == "" {
		destinationScope = instanceID
	}
	objectPath := fmt.Sprintf("%s/%s-output.json", destinationScope, ref.BaseName())

	receipt, err := runStage(ctx, logCtx, StagePersistence, w.policies.Persistence, func(ctx context.Context) (models.PersistenceReceipt, error) {
		return w.persister.Write(ctx, objectPath, []byte(transformed))
	})
	if err != nil {
		return w.fail(ctx, logCtx, instanceID, ref, asStageError(err))
	}

	output := models.DocumentOutput{
		Reference:     ref,
		ExtractedText: text,
		Receipt:       receipt,
	}
	if err := w.registry.Complete(ctx, instanceID, output); err != nil {
		// A terminal-state rejection here means the orchestration committed
		// twice; surface it loudly rather than masking the recorded outcome.
		logCtx.Error("CRITICAL: Failed to commit completed instance.", "error", err)
	}
	logCtx.Info("Document workflow completed.", "outputObject", receipt.OutputObject)

	return models.DocumentResult{
		Reference: ref,
		Status:    models.StatusCompleted,
		Output:    &output,
	}
}

func (w *DocumentWorkflow) fail(ctx context.Context, logCtx *slog.Logger, instanceID string, ref models.DocumentReference, stageErr *StageError) models.DocumentResult {
	failure := stageErr.FailureRecord()
	if err := w.registry.Fail(ctx, instanceID, failure); err != nil {
		logCtx.Error("CRITICAL: Failed to commit failed instance.", "error", err)
	}
	logCtx.Warn("Document workflow failed.", "stage", failure.Stage, "attempts", failure.Attempts)

	return models.DocumentResult{
		Reference: ref,
		Status:    models.StatusFailed,
		Failure:   &failure,
	}
}

func asStageError(err error) *StageError {
	var stageErr *StageError
	if errors.As(err, &stageErr) {
		return stageErr
	}
	return &StageError{Stage: "unknown", Attempts: 1, Err: err}
}
