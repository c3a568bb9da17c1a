package registry

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/Lllllllleong/documentpipeline/internal/models"
)

// FirestoreRegistry persists workflow instances as documents in a single
// Firestore collection. Terminal transitions run inside a transaction so a
// Complete/Fail on an already-terminal instance is detected and rejected
// instead of overwriting the recorded outcome.
type FirestoreRegistry struct {
	client     *firestore.Client
	collection string
}

// NewFirestoreRegistry creates a registry backed by the given collection.
func NewFirestoreRegistry(ctx context.Context, projectID, collection string) (*FirestoreRegistry, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID must be provided to create a firestore registry")
	}
	if collection == "" {
		return nil, fmt.Errorf("collection must be provided to create a firestore registry")
	}

	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}
	return &FirestoreRegistry{client: client, collection: collection}, nil
}

// Close releases the underlying Firestore client.
func (r *FirestoreRegistry) Close() error {
	return r.client.Close()
}

// Create inserts a Pending record with a fresh unique id.
func (r *FirestoreRegistry) Create(ctx context.Context, kind models.InstanceKind, input any, parentID string) (string, error) {
	now := time.Now().UTC()
	instance := models.WorkflowInstance{
		InstanceID:       uuid.NewString(),
		ParentInstanceID: parentID,
		Kind:             kind,
		Status:           models.StatusPending,
		CreatedTime:      now,
		LastUpdatedTime:  now,
		Input:            input,
		History:          []models.Transition{{Status: models.StatusPending, Timestamp: now}},
	}

	if _, err := r.client.Collection(r.collection).Doc(instance.InstanceID).Create(ctx, instance); err != nil {
		return "", fmt.Errorf("failed to create instance record: %w", err)
	}
	return instance.InstanceID, nil
}

// MarkRunning transitions a Pending instance to Running.
func (r *FirestoreRegistry) MarkRunning(ctx context.Context, id string) error {
	return r.transition(ctx, id, func(instance *models.WorkflowInstance, now time.Time) error {
		if instance.Status != models.StatusPending {
			return fmt.Errorf("instance %s is %s, not PENDING: %w", id, instance.Status, ErrInvalidTransition)
		}
		instance.Status = models.StatusRunning
		instance.History = append(instance.History, models.Transition{Status: models.StatusRunning, Timestamp: now})
		return nil
	})
}

// Complete commits the instance's output and Completed status.
func (r *FirestoreRegistry) Complete(ctx context.Context, id string, output any) error {
	return r.transition(ctx, id, func(instance *models.WorkflowInstance, now time.Time) error {
		instance.Status = models.StatusCompleted
		instance.Output = output
		instance.History = append(instance.History, models.Transition{Status: models.StatusCompleted, Timestamp: now})
		return nil
	})
}

// Fail commits the instance's failure record and Failed status.
func (r *FirestoreRegistry) Fail(ctx context.Context, id string, failure models.FailureRecord) error {
	return r.transition(ctx, id, func(instance *models.WorkflowInstance, now time.Time) error {
		instance.Status = models.StatusFailed
		instance.Failure = &failure
		instance.History = append(instance.History, models.Transition{
			Status:    models.StatusFailed,
			Timestamp: now,
			Detail:    fmt.Sprintf("stage %s failed after %d attempts: %s", failure.Stage, failure.Attempts, failure.Message),
		})
		return nil
	})
}

func (r *FirestoreRegistry) transition(ctx context.Context, id string, apply func(*models.WorkflowInstance, time.Time) error) error {
	docRef := r.client.Collection(r.collection).Doc(id)

	return r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(docRef)
		if status.Code(err) == codes.NotFound {
			return fmt.Errorf("instance %s: %w", id, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("failed to read instance %s: %w", id, err)
		}

		var instance models.WorkflowInstance
		if err := snap.DataTo(&instance); err != nil {
			return fmt.Errorf("failed to decode instance %s: %w", id, err)
		}
		if instance.Status.Terminal() {
			return fmt.Errorf("instance %s is %s: %w", id, instance.Status, ErrTerminalState)
		}

		now := time.Now().UTC()
		if err := apply(&instance, now); err != nil {
			return err
		}
		instance.LastUpdatedTime = now
		return tx.Set(docRef, instance)
	})
}

// Get returns the instance or ErrNotFound.
func (r *FirestoreRegistry) Get(ctx context.Context, id string) (*models.WorkflowInstance, error) {
	snap, err := r.client.Collection(r.collection).Doc(id).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, fmt.Errorf("instance %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read instance %s: %w", id, err)
	}

	var instance models.WorkflowInstance
	if err := snap.DataTo(&instance); err != nil {
		return nil, fmt.Errorf("failed to decode instance %s: %w", id, err)
	}
	return &instance, nil
}

// List returns instances newest-first by creation time, truncated to limit.
func (r *FirestoreRegistry) List(ctx context.Context, since time.Time, limit int) ([]*models.WorkflowInstance, error) {
	limit = ClampLimit(limit)

	query := r.client.Collection(r.collection).OrderBy("createdTime", firestore.Desc).Limit(limit)
	if !since.IsZero() {
		query = r.client.Collection(r.collection).
			Where("createdTime", ">=", since).
			OrderBy("createdTime", firestore.Desc).
			Limit(limit)
	}

	it := query.Documents(ctx)
	defer it.Stop()

	var out []*models.WorkflowInstance
	for {
		snap, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list instances: %w", err)
		}
		var instance models.WorkflowInstance
		if err := snap.DataTo(&instance); err != nil {
			return nil, fmt.Errorf("failed to decode instance %s: %w", snap.Ref.ID, err)
		}
		out = append(out, &instance)
	}
	return out, nil
}
