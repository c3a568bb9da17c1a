// Package registry tracks every workflow instance — batch and document —
// by identifier. It is the single shared mutable resource crossed by
// concurrent document workflows; every mutating call is linearizable with
// respect to other calls on the same instance id.
package registry

import (
	"context"
	"errors"
	"time"

	"github.com/Lllllllleong/documentpipeline/internal/models"
)

// ErrNotFound is returned when no instance exists for the given id.
var ErrNotFound = errors.New("workflow instance not found")

// ErrTerminalState is returned when Complete or Fail is invoked on an
// instance that already reached a terminal status. This indicates a bug in
// the orchestration logic, not an external condition: the already-recorded
// outcome is never overwritten.
var ErrTerminalState = errors.New("workflow instance already in a terminal state")

// ErrInvalidTransition is returned when a transition skips or repeats a step
// of the Pending → Running → terminal lifecycle, such as marking a Running
// instance Running again.
var ErrInvalidTransition = errors.New("invalid workflow instance transition")

// Listing limits for the recent-instances query surface.
const (
	MinListLimit     = 1
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// ClampLimit normalizes a caller-supplied limit into [MinListLimit, MaxListLimit].
// Zero and negative values fall back to DefaultListLimit.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	if limit < MinListLimit {
		return MinListLimit
	}
	if limit > MaxListLimit {
		return MaxListLimit
	}
	return limit
}

// Registry is the execution-state table. Implementations must allocate
// unique ids under concurrent Create calls and must treat Complete/Fail as
// single atomic transitions guarded against terminal overwrites.
type Registry interface {
	// Create inserts a Pending record and returns its generated id.
	// parentID is empty for batch instances and set to the owning batch's
	// id for document instances.
	Create(ctx context.Context, kind models.InstanceKind, input any, parentID string) (string, error)

	// MarkRunning transitions a Pending instance to Running.
	MarkRunning(ctx context.Context, id string) error

	// Complete commits the instance's output and Completed status.
	Complete(ctx context.Context, id string, output any) error

	// Fail commits the instance's failure record and Failed status.
	Fail(ctx context.Context, id string, failure models.FailureRecord) error

	// Get returns the instance or ErrNotFound.
	Get(ctx context.Context, id string) (*models.WorkflowInstance, error)

	// List returns instances created at or after since (zero value means no
	// filter), newest-first by creation time, truncated to limit.
	List(ctx context.Context, since time.Time, limit int) ([]*models.WorkflowInstance, error)
}
