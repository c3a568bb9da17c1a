package ingress

import (
	"context"
	"fmt"

	cloudevents "github.com/cloudevents/sdk-go/v2"

	"github.com/Lllllllleong/documentpipeline/internal/models"
)

// GCSEvent is the payload of a storage object-finalized event.
type GCSEvent struct {
	Bucket string `json:"bucket"`
	Name   string `json:"name"`
}

// HandleObjectFinalized ingests one uploaded object as a single-document
// batch. Unlike the HTTP surface this runs the batch synchronously, so the
// event is only acknowledged once the document reached a terminal state.
func (s *Service) HandleObjectFinalized(ctx context.Context, e cloudevents.Event) error {
	var gcsEvent GCSEvent
	if err := e.DataAs(&gcsEvent); err != nil {
		return fmt.Errorf("failed to parse storage event data: %w", err)
	}
	if gcsEvent.Bucket == "" || gcsEvent.Name == "" {
		return fmt.Errorf("storage event is missing bucket or object name")
	}

	ref := models.DocumentReference{
		Name:      gcsEvent.Name,
		URL:       fmt.Sprintf("gs://%s/%s", gcsEvent.Bucket, gcsEvent.Name),
		Container: gcsEvent.Bucket,
	}

	instanceID, err := s.registry.Create(ctx, models.KindBatch, models.StartBatchRequest{Documents: []models.DocumentReference{ref}}, "")
	if err != nil {
		return fmt.Errorf("failed to register batch for %s: %w", gcsEvent.Name, err)
	}

	s.logger.Info("Storage event accepted.", "instanceId", instanceID, "bucket", gcsEvent.Bucket, "object", gcsEvent.Name)
	if _, err := s.runner.Run(ctx, instanceID, []models.DocumentReference{ref}); err != nil {
		return fmt.Errorf("batch %s failed: %w", instanceID, err)
	}
	return nil
}
