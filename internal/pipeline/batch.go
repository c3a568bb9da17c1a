package pipeline

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/Lllllllleong/documentpipeline/internal/models"
	"github.com/Lllllllleong/documentpipeline/internal/registry"
)

// BatchCoordinator fans a batch of document references out to concurrent
// document workflows and joins on all of them. Sibling documents share no
// mutable state beyond the registry, so one document's failure never
// affects another's progress or the batch's ability to complete.
type BatchCoordinator struct {
	registry    registry.Registry
	workflow    *DocumentWorkflow
	concurrency int
	logger      *slog.Logger
}

// NewBatchCoordinator wires the coordinator. concurrency bounds the number
// of documents processed in parallel; zero or negative means unbounded.
func NewBatchCoordinator(reg registry.Registry, workflow *DocumentWorkflow, concurrency int, logger *slog.Logger) *BatchCoordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &BatchCoordinator{
		registry:    reg,
		workflow:    workflow,
		concurrency: concurrency,
		logger:      logger,
	}
}

// Run processes every reference of an already-registered batch instance and
// commits the aggregate result. This is a join, not a race: Run returns
// only after every child reached a terminal state. Results preserve the
// batch's input order regardless of completion order, and the batch itself
// completes even when children failed. An empty batch completes immediately
// with an empty result.
func (c *BatchCoordinator) Run(ctx context.Context, batchID string, refs []models.DocumentReference) (models.BatchResult, error) {
	logCtx := c.logger.With("instanceId", batchID)

	if err := c.registry.MarkRunning(ctx, batchID); err != nil {
		logCtx.Error("Failed to mark batch running.", "error", err)
		return models.BatchResult{}, err
	}
	logCtx.Info("Batch started.", "documentCount", len(refs))

	results := make([]models.DocumentResult, len(refs))
	g, gctx := errgroup.WithContext(ctx)
	if c.concurrency > 0 {
		g.SetLimit(c.concurrency)
	}
	for i, ref := range refs {
		g.Go(func() error {
			// Workflow results are terminal records, never errors: returning
			// nil keeps the group from cancelling sibling workflows.
			results[i] = c.workflow.Run(gctx, batchID, ref)
			return nil
		})
	}
	_ = g.Wait()

	batch := models.BatchResult{Documents: results}
	if err := c.registry.Complete(ctx, batchID, batch); err != nil {
		logCtx.Error("CRITICAL: Failed to commit completed batch.", "error", err)
		return batch, err
	}

	var failed int
	for _, result := range results {
		if result.Status == models.StatusFailed {
			failed++
		}
	}
	logCtx.Info("Batch completed.", "documentCount", len(refs), "failedCount", failed)
	return batch, nil
}
