// Package ingress exposes the pipeline over HTTP and CloudEvents. Batch
// submission is fire-and-forget: the start endpoint registers the batch,
// responds immediately with its instance id, and processing proceeds in the
// background. All later interaction happens through the query endpoints.
package ingress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/Lllllllleong/documentpipeline/internal/models"
	"github.com/Lllllllleong/documentpipeline/internal/registry"
)

// BatchRunner processes an already-registered batch to completion.
type BatchRunner interface {
	Run(ctx context.Context, batchID string, refs []models.DocumentReference) (models.BatchResult, error)
}

// Service handles the pipeline's inbound traffic.
type Service struct {
	registry registry.Registry
	runner   BatchRunner
	logger   *slog.Logger

	// launch dispatches background batch processing. Overridden in tests to
	// run synchronously.
	launch func(fn func())
}

func NewService(reg registry.Registry, runner BatchRunner, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		registry: reg,
		runner:   runner,
		logger:   logger,
		launch:   func(fn func()) { go fn() },
	}
}

// Routes returns the HTTP handler for the pipeline's API surface.
func (s *Service) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /batches", s.handleStartBatch)
	mux.HandleFunc("GET /status/{instanceId}", s.handleStatus)
	mux.HandleFunc("GET /results/{instanceId}", s.handleResults)
	mux.HandleFunc("GET /history", s.handleHistory)
	return mux
}

func (s *Service) handleStartBatch(w http.ResponseWriter, r *http.Request) {
	correlationID := uuid.NewString()
	logCtx := s.logger.With("correlationId", correlationID)

	var req models.StartBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeEnvelope(w, http.StatusBadRequest, models.APIResponse{
			Success:       false,
			Message:       "Request body is not valid JSON.",
			CorrelationID: correlationID,
		})
		return
	}
	if len(req.Documents) == 0 {
		writeEnvelope(w, http.StatusBadRequest, models.APIResponse{
			Success:       false,
			Message:       "Request must include at least one document.",
			CorrelationID: correlationID,
		})
		return
	}
	for i, ref := range req.Documents {
		if err := ref.Validate(); err != nil {
			writeEnvelope(w, http.StatusBadRequest, models.APIResponse{
				Success:       false,
				Message:       fmt.Sprintf("Document at index %d is invalid: %v.", i, err),
				CorrelationID: correlationID,
			})
			return
		}
	}

	instanceID, err := s.startBatch(r.Context(), req.Documents)
	if err != nil {
		logCtx.Error("Failed to register batch.", "error", err)
		writeEnvelope(w, http.StatusInternalServerError, models.APIResponse{
			Success:       false,
			Message:       "Failed to register batch.",
			CorrelationID: correlationID,
		})
		return
	}

	logCtx.Info("Batch accepted.", "instanceId", instanceID, "documentCount", len(req.Documents))
	writeEnvelope(w, http.StatusAccepted, models.APIResponse{
		Success:       true,
		Message:       "Batch accepted for processing.",
		CorrelationID: correlationID,
		Data:          models.StartBatchData{InstanceID: instanceID, Accepted: true},
	})
}

// startBatch registers the batch instance and hands processing off to the
// background. The request context is deliberately not propagated: the
// caller has already been answered, and processing must outlive the request.
func (s *Service) startBatch(ctx context.Context, refs []models.DocumentReference) (string, error) {
	instanceID, err := s.registry.Create(ctx, models.KindBatch, models.StartBatchRequest{Documents: refs}, "")
	if err != nil {
		return "", err
	}

	s.launch(func() {
		if _, err := s.runner.Run(context.Background(), instanceID, refs); err != nil {
			s.logger.Error("Background batch processing failed.", "instanceId", instanceID, "error", err)
		}
	})
	return instanceID, nil
}

func (s *Service) handleStatus(w http.ResponseWriter, r *http.Request) {
	correlationID := uuid.NewString()
	instanceID := r.PathValue("instanceId")

	instance, err := s.registry.Get(r.Context(), instanceID)
	if err != nil {
		s.writeLookupError(w, correlationID, instanceID, err)
		return
	}

	data := models.InstanceStatusData{
		InstanceID:       instance.InstanceID,
		ParentInstanceID: instance.ParentInstanceID,
		Kind:             instance.Kind,
		Status:           instance.Status,
		CreatedTime:      instance.CreatedTime,
		LastUpdatedTime:  instance.LastUpdatedTime,
		Output:           instance.Output,
		Failure:          instance.Failure,
	}
	if r.URL.Query().Get("history") == "true" {
		data.History = instance.History
	}

	writeEnvelope(w, http.StatusOK, models.APIResponse{
		Success:       true,
		Message:       fmt.Sprintf("Instance is %s.", instance.Status),
		CorrelationID: correlationID,
		Data:          data,
	})
}

func (s *Service) handleResults(w http.ResponseWriter, r *http.Request) {
	correlationID := uuid.NewString()
	instanceID := r.PathValue("instanceId")

	instance, err := s.registry.Get(r.Context(), instanceID)
	if err != nil {
		s.writeLookupError(w, correlationID, instanceID, err)
		return
	}
	if instance.Status != models.StatusCompleted {
		writeEnvelope(w, http.StatusNotFound, models.APIResponse{
			Success:       false,
			Message:       fmt.Sprintf("Instance is %s and has no output yet.", instance.Status),
			CorrelationID: correlationID,
		})
		return
	}

	writeEnvelope(w, http.StatusOK, models.APIResponse{
		Success:       true,
		Message:       "Instance completed.",
		CorrelationID: correlationID,
		Data:          models.InstanceResultsData{InstanceID: instance.InstanceID, Output: instance.Output},
	})
}

func (s *Service) handleHistory(w http.ResponseWriter, r *http.Request) {
	correlationID := uuid.NewString()
	query := r.URL.Query()

	limit := 0
	if raw := query.Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeEnvelope(w, http.StatusBadRequest, models.APIResponse{
				Success:       false,
				Message:       fmt.Sprintf("Query parameter limit must be an integer, got %q.", raw),
				CorrelationID: correlationID,
			})
			return
		}
		limit = parsed
	}

	var since time.Time
	if raw := query.Get("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeEnvelope(w, http.StatusBadRequest, models.APIResponse{
				Success:       false,
				Message:       fmt.Sprintf("Query parameter since must be RFC 3339, got %q.", raw),
				CorrelationID: correlationID,
			})
			return
		}
		since = parsed
	}

	instances, err := s.registry.List(r.Context(), since, registry.ClampLimit(limit))
	if err != nil {
		s.logger.Error("Failed to list instances.", "correlationId", correlationID, "error", err)
		writeEnvelope(w, http.StatusInternalServerError, models.APIResponse{
			Success:       false,
			Message:       "Failed to list instances.",
			CorrelationID: correlationID,
		})
		return
	}

	items := make([]models.InstanceSummary, 0, len(instances))
	for _, instance := range instances {
		items = append(items, models.InstanceSummary{
			InstanceID:      instance.InstanceID,
			Kind:            instance.Kind,
			Status:          instance.Status,
			CreatedTime:     instance.CreatedTime,
			LastUpdatedTime: instance.LastUpdatedTime,
			OutputAvailable: instance.Status == models.StatusCompleted && instance.Output != nil,
		})
	}

	writeEnvelope(w, http.StatusOK, models.APIResponse{
		Success:       true,
		Message:       fmt.Sprintf("Found %d instances.", len(items)),
		CorrelationID: correlationID,
		Data:          models.InstanceListData{Items: items},
	})
}

func (s *Service) writeLookupError(w http.ResponseWriter, correlationID, instanceID string, err error) {
	if errors.Is(err, registry.ErrNotFound) {
		writeEnvelope(w, http.StatusNotFound, models.APIResponse{
			Success:       false,
			Message:       fmt.Sprintf("No instance found with id %s.", instanceID),
			CorrelationID: correlationID,
		})
		return
	}
	s.logger.Error("Failed to load instance.", "correlationId", correlationID, "instanceId", instanceID, "error", err)
	writeEnvelope(w, http.StatusInternalServerError, models.APIResponse{
		Success:       false,
		Message:       "Failed to load instance.",
		CorrelationID: correlationID,
	})
}

func writeEnvelope(w http.ResponseWriter, status int, resp models.APIResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("Failed to encode response.", "error", err)
	}
}
