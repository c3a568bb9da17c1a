// Package pipeline drives each document through the extraction →
// transformation → persistence stages and fans batches out to concurrent
// document workflows.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Lllllllleong/documentpipeline/internal/models"
	"github.com/Lllllllleong/documentpipeline/internal/retry"
)

// Stage names recorded on failure records and telemetry events.
const (
	StageExtraction     = "extraction"
	StageTransformation = "transformation"
	StagePersistence    = "persistence"
)

// Policies bundles the per-stage retry configurations.
type Policies struct {
	Extraction     retry.Policy
	Transformation retry.Policy
	Persistence    retry.Policy
}

// DefaultPolicies returns the tuned per-stage retry configurations.
func DefaultPolicies() Policies {
	return Policies{
		Extraction: retry.Policy{
			MaxAttempts:        3,
			InitialInterval:    5 * time.Second,
			BackoffCoefficient: 2,
			MaxInterval:        30 * time.Second,
		},
		Transformation: retry.Policy{
			MaxAttempts:        3,
			InitialInterval:    10 * time.Second,
			BackoffCoefficient: 2,
			MaxInterval:        60 * time.Second,
		},
		Persistence: retry.Policy{
			MaxAttempts:        5,
			InitialInterval:    5 * time.Second,
			BackoffCoefficient: 2,
			MaxInterval:        30 * time.Second,
		},
	}
}

// StageError is the terminal failure of one stage after retry exhaustion.
type StageError struct {
	Stage    string
	Attempts int
	Err      error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s failed after %d attempts: %v", e.Stage, e.Attempts, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// FailureRecord converts the stage error into the registry's failure shape.
func (e *StageError) FailureRecord() models.FailureRecord {
	return models.FailureRecord{
		Stage:    e.Stage,
		Attempts: e.Attempts,
		Message:  e.Err.Error(),
	}
}

// runStage executes one external call under the stage's retry policy.
// Success returns immediately; every error is retried until the policy is
// exhausted, at which point the last error is wrapped into a StageError.
func runStage[T any](ctx context.Context, logger *slog.Logger, stageName string, policy retry.Policy, op func(context.Context) (T, error)) (T, error) {
	logger.Info("Stage started.", "stage", stageName)

	out, attempts, err := retry.Do(ctx, policy, func(ctx context.Context) (T, error) {
		result, opErr := op(ctx)
		if opErr != nil {
			logger.Warn("Stage attempt failed.", "stage", stageName, "error", opErr)
		}
		return result, opErr
	})
	if err != nil {
		stageErr := &StageError{Stage: stageName, Attempts: attempts, Err: err}
		logger.Error("Stage exhausted retries.", "stage", stageName, "attempts", attempts, "error", err)
		return out, stageErr
	}

	logger.Info("Stage completed.", "stage", stageName, "attempts", attempts)
	return out, nil
}
