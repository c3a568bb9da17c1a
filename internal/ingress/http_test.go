package ingress

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"

	"github.com/Lllllllleong/documentpipeline/internal/models"
	"github.com/Lllllllleong/documentpipeline/internal/registry"
)

// completingRunner stands in for the batch coordinator: it drives the batch
// instance straight to Completed and records what it was asked to run.
type completingRunner struct {
	registry registry.Registry
	calls    int
	lastRefs []models.DocumentReference
}

func (r *completingRunner) Run(ctx context.Context, batchID string, refs []models.DocumentReference) (models.BatchResult, error) {
	r.calls++
	r.lastRefs = refs
	if err := r.registry.MarkRunning(ctx, batchID); err != nil {
		return models.BatchResult{}, err
	}
	results := make([]models.DocumentResult, len(refs))
	for i, ref := range refs {
		results[i] = models.DocumentResult{Reference: ref, Status: models.StatusCompleted}
	}
	batch := models.BatchResult{Documents: results}
	if err := r.registry.Complete(ctx, batchID, batch); err != nil {
		return models.BatchResult{}, err
	}
	return batch, nil
}

func newTestService(t *testing.T) (*Service, *registry.MemoryRegistry, *completingRunner) {
	t.Helper()
	reg := registry.NewMemoryRegistry()
	runner := &completingRunner{registry: reg}
	svc := NewService(reg, runner, slog.New(slog.DiscardHandler))
	// Run background processing inline so tests observe terminal state
	// immediately after the response.
	svc.launch = func(fn func()) { fn() }
	return svc, reg, runner
}

func decodeEnvelope(t *testing.T, body *strings.Reader) models.APIResponse {
	t.Helper()
	var resp models.APIResponse
	if err := json.NewDecoder(body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response envelope: %v", err)
	}
	return resp
}

func doRequest(t *testing.T, svc *Service, method, target, body string) (*httptest.ResponseRecorder, models.APIResponse) {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	svc.Routes().ServeHTTP(rec, req)
	return rec, decodeEnvelope(t, strings.NewReader(rec.Body.String()))
}

func validBatchBody() string {
	return `{"documents":[{"name":"inbox/report.pdf","url":"gs://inbox/report.pdf","container":"inbox"}]}`
}

func TestStartBatchAccepted(t *testing.T) {
	svc, reg, runner := newTestService(t)

	rec, resp := doRequest(t, svc, http.MethodPost, "/batches", validBatchBody())
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusAccepted)
	}
	if !resp.Success || resp.CorrelationID == "" {
		t.Fatalf("unexpected envelope: %+v", resp)
	}

	data := resp.Data.(map[string]any)
	instanceID, _ := data["instanceId"].(string)
	if instanceID == "" {
		t.Fatal("response carries no instanceId")
	}
	if accepted, _ := data["accepted"].(bool); !accepted {
		t.Error("accepted = false, want true")
	}

	if runner.calls != 1 {
		t.Fatalf("runner calls = %d, want 1", runner.calls)
	}
	instance, err := reg.Get(context.Background(), instanceID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if instance.Status != models.StatusCompleted {
		t.Errorf("status = %s, want %s", instance.Status, models.StatusCompleted)
	}
	if instance.Kind != models.KindBatch {
		t.Errorf("kind = %s, want %s", instance.Kind, models.KindBatch)
	}
}

func TestStartBatchRejectsEmptyList(t *testing.T) {
	svc, reg, runner := newTestService(t)

	rec, resp := doRequest(t, svc, http.MethodPost, "/batches", `{"documents":[]}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	if resp.Success {
		t.Error("success = true, want false")
	}
	if runner.calls != 0 {
		t.Errorf("runner calls = %d, want 0", runner.calls)
	}

	// Nothing may be registered for a rejected request.
	instances, err := reg.List(context.Background(), time.Time{}, registry.DefaultListLimit)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(instances) != 0 {
		t.Errorf("registered instances = %d, want 0", len(instances))
	}
}

func TestStartBatchRejectsInvalidDocument(t *testing.T) {
	svc, _, runner := newTestService(t)

	body := `{"documents":[{"name":"report.pdf","url":"","container":"inbox"}]}`
	rec, resp := doRequest(t, svc, http.MethodPost, "/batches", body)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	if !strings.Contains(resp.Message, "index 0") {
		t.Errorf("message %q does not name the offending document", resp.Message)
	}
	if runner.calls != 0 {
		t.Errorf("runner calls = %d, want 0", runner.calls)
	}
}

func TestStartBatchRejectsMalformedJSON(t *testing.T) {
	svc, _, _ := newTestService(t)

	rec, resp := doRequest(t, svc, http.MethodPost, "/batches", `{"documents":`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	if resp.Success {
		t.Error("success = true, want false")
	}
}

func TestStatusUnknownInstance(t *testing.T) {
	svc, _, _ := newTestService(t)

	rec, resp := doRequest(t, svc, http.MethodGet, "/status/no-such-id", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
	if resp.Success {
		t.Error("success = true, want false")
	}
}

func TestStatusIncludesHistoryOnRequest(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, started := doRequest(t, svc, http.MethodPost, "/batches", validBatchBody())
	instanceID := started.Data.(map[string]any)["instanceId"].(string)

	_, withoutHistory := doRequest(t, svc, http.MethodGet, "/status/"+instanceID, "")
	data := withoutHistory.Data.(map[string]any)
	if _, ok := data["history"]; ok {
		t.Error("history present without history=true")
	}

	_, withHistory := doRequest(t, svc, http.MethodGet, "/status/"+instanceID+"?history=true", "")
	data = withHistory.Data.(map[string]any)
	history, ok := data["history"].([]any)
	if !ok || len(history) != 3 {
		t.Fatalf("history = %v, want 3 transitions", data["history"])
	}
}

func TestResultsOnlyAfterCompletion(t *testing.T) {
	svc, reg, _ := newTestService(t)

	// A batch that never ran stays Pending.
	instanceID, err := reg.Create(context.Background(), models.KindBatch, nil, "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	rec, resp := doRequest(t, svc, http.MethodGet, "/results/"+instanceID, "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
	if resp.Success {
		t.Error("success = true, want false")
	}
	if !strings.Contains(resp.Message, "no output yet") {
		t.Errorf("message %q should distinguish in-flight from unknown id", resp.Message)
	}

	_, started := doRequest(t, svc, http.MethodPost, "/batches", validBatchBody())
	completedID := started.Data.(map[string]any)["instanceId"].(string)

	rec, resp = doRequest(t, svc, http.MethodGet, "/results/"+completedID, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	data := resp.Data.(map[string]any)
	output, ok := data["output"].(map[string]any)
	if !ok {
		t.Fatalf("output missing from results payload: %v", data)
	}
	if _, ok := output["documents"]; !ok {
		t.Error("results output carries no documents")
	}
}

func TestHistoryListsRecentInstances(t *testing.T) {
	svc, _, _ := newTestService(t)

	for range 3 {
		doRequest(t, svc, http.MethodPost, "/batches", validBatchBody())
	}

	rec, resp := doRequest(t, svc, http.MethodGet, "/history?limit=2", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	items := resp.Data.(map[string]any)["items"].([]any)
	if len(items) != 2 {
		t.Fatalf("items = %d, want 2", len(items))
	}
	first := items[0].(map[string]any)
	if available, _ := first["outputAvailable"].(bool); !available {
		t.Error("outputAvailable = false for completed batch")
	}
}

func TestHistoryRejectsBadParameters(t *testing.T) {
	svc, _, _ := newTestService(t)

	rec, _ := doRequest(t, svc, http.MethodGet, "/history?limit=abc", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("limit=abc status = %d, want %d", rec.Code, http.StatusBadRequest)
	}

	rec, _ = doRequest(t, svc, http.MethodGet, "/history?since=yesterday", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("since=yesterday status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestHandleObjectFinalized(t *testing.T) {
	svc, reg, runner := newTestService(t)

	e := cloudevents.NewEvent()
	e.SetType("google.cloud.storage.object.v1.finalized")
	if err := e.SetData(cloudevents.ApplicationJSON, GCSEvent{Bucket: "inbox", Name: "inbox/report.pdf"}); err != nil {
		t.Fatalf("SetData: %v", err)
	}

	if err := svc.HandleObjectFinalized(context.Background(), e); err != nil {
		t.Fatalf("HandleObjectFinalized: %v", err)
	}
	if runner.calls != 1 {
		t.Fatalf("runner calls = %d, want 1", runner.calls)
	}
	if len(runner.lastRefs) != 1 {
		t.Fatalf("refs = %d, want 1", len(runner.lastRefs))
	}
	ref := runner.lastRefs[0]
	if ref.Container != "inbox" || ref.URL != "gs://inbox/inbox/report.pdf" {
		t.Errorf("unexpected reference: %+v", ref)
	}
	if ref.ObjectPath() != "report.pdf" {
		t.Errorf("ObjectPath() = %q, want %q", ref.ObjectPath(), "report.pdf")
	}

	instances, err := reg.List(context.Background(), time.Time{}, registry.DefaultListLimit)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(instances) != 1 || instances[0].Status != models.StatusCompleted {
		t.Fatalf("unexpected registry state: %+v", instances)
	}
}

func TestHandleObjectFinalizedRejectsMissingFields(t *testing.T) {
	svc, _, runner := newTestService(t)

	e := cloudevents.NewEvent()
	if err := e.SetData(cloudevents.ApplicationJSON, GCSEvent{Bucket: "", Name: "report.pdf"}); err != nil {
		t.Fatalf("SetData: %v", err)
	}
	if err := svc.HandleObjectFinalized(context.Background(), e); err == nil {
		t.Fatal("expected error for event without bucket")
	}
	if runner.calls != 0 {
		t.Errorf("runner calls = %d, want 0", runner.calls)
	}
}
