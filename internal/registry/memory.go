package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Lllllllleong/documentpipeline/internal/models"
)

// MemoryRegistry is an in-process Registry backed by a map. It serves local
// runs and tests; deployments use the Firestore-backed registry.
type MemoryRegistry struct {
	mu        sync.Mutex
	instances map[string]*models.WorkflowInstance
	sequence  map[string]int
	nextSeq   int
}

// NewMemoryRegistry returns an empty in-memory registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		instances: make(map[string]*models.WorkflowInstance),
		sequence:  make(map[string]int),
	}
}

// Create inserts a Pending record with a fresh unique id.
func (r *MemoryRegistry) Create(_ context.Context, kind models.InstanceKind, input any, parentID string) (string, error) {
	now := time.Now().UTC()
	instance := &models.WorkflowInstance{
		InstanceID:       uuid.NewString(),
		ParentInstanceID: parentID,
		Kind:             kind,
		Status:           models.StatusPending,
		CreatedTime:      now,
		LastUpdatedTime:  now,
		Input:            input,
		History:          []models.Transition{{Status: models.StatusPending, Timestamp: now}},
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.instances[instance.InstanceID] = instance
	r.sequence[instance.InstanceID] = r.nextSeq
	r.nextSeq++
	return instance.InstanceID, nil
}

// MarkRunning transitions a Pending instance to Running.
func (r *MemoryRegistry) MarkRunning(_ context.Context, id string) error {
	return r.transition(id, func(instance *models.WorkflowInstance, now time.Time) error {
		if instance.Status != models.StatusPending {
			return fmt.Errorf("instance %s is %s, not PENDING: %w", id, instance.Status, ErrInvalidTransition)
		}
		instance.Status = models.StatusRunning
		instance.History = append(instance.History, models.Transition{Status: models.StatusRunning, Timestamp: now})
		return nil
	})
}

// Complete commits the instance's output. The transition is rejected if the
// instance is already terminal.
func (r *MemoryRegistry) Complete(_ context.Context, id string, output any) error {
	return r.transition(id, func(instance *models.WorkflowInstance, now time.Time) error {
		instance.Status = models.StatusCompleted
		instance.Output = output
		instance.History = append(instance.History, models.Transition{Status: models.StatusCompleted, Timestamp: now})
		return nil
	})
}

// Fail commits the instance's failure record. The transition is rejected if
// the instance is already terminal.
func (r *MemoryRegistry) Fail(_ context.Context, id string, failure models.FailureRecord) error {
	return r.transition(id, func(instance *models.WorkflowInstance, now time.Time) error {
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

func (r *MemoryRegistry) transition(id string, apply func(*models.WorkflowInstance, time.Time) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	instance, ok := r.instances[id]
	if !ok {
		return fmt.Errorf("instance %s: %w", id, ErrNotFound)
	}
	if instance.Status.Terminal() {
		return fmt.Errorf("instance %s is %s: %w", id, instance.Status, ErrTerminalState)
	}

	now := time.Now().UTC()
	if err := apply(instance, now); err != nil {
		return err
	}
	instance.LastUpdatedTime = now
	return nil
}

// Get returns a copy of the instance so callers cannot mutate registry state.
func (r *MemoryRegistry) Get(_ context.Context, id string) (*models.WorkflowInstance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	instance, ok := r.instances[id]
	if !ok {
		return nil, fmt.Errorf("instance %s: %w", id, ErrNotFound)
	}
	return cloneInstance(instance), nil
}

// List returns instances newest-first by creation time, truncated to limit.
func (r *MemoryRegistry) List(_ context.Context, since time.Time, limit int) ([]*models.WorkflowInstance, error) {
	limit = ClampLimit(limit)

	r.mu.Lock()
	type entry struct {
		instance *models.WorkflowInstance
		seq      int
	}
	all := make([]entry, 0, len(r.instances))
	for id, instance := range r.instances {
		if !since.IsZero() && instance.CreatedTime.Before(since) {
			continue
		}
		all = append(all, entry{instance: cloneInstance(instance), seq: r.sequence[id]})
	}
	r.mu.Unlock()

	sort.Slice(all, func(i, j int) bool {
		if all[i].instance.CreatedTime.Equal(all[j].instance.CreatedTime) {
			return all[i].seq > all[j].seq
		}
		return all[i].instance.CreatedTime.After(all[j].instance.CreatedTime)
	})

	if len(all) > limit {
		all = all[:limit]
	}
	out := make([]*models.WorkflowInstance, len(all))
	for i, e := range all {
		out[i] = e.instance
	}
	return out, nil
}

func cloneInstance(instance *models.WorkflowInstance) *models.WorkflowInstance {
	clone := *instance
	if instance.Failure != nil {
		failure := *instance.Failure
		clone.Failure = &failure
	}
	clone.History = append([]models.Transition(nil), instance.History...)
	return &clone
}
