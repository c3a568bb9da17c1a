package models

import "time"

// Status is the lifecycle state of a workflow instance.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusRunning   Status = "RUNNING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
)

// Terminal reports whether the status is final. Completed and Failed are
// irreversible; the registry refuses further transitions once either is set.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// InstanceKind distinguishes batch instances (which fan out to document
// instances) from document instances (which run the three-stage pipeline).
type InstanceKind string

const (
	KindBatch    InstanceKind = "batch"
	KindDocument InstanceKind = "document"
)

// Transition is one entry in an instance's append-only history log.
type Transition struct {
	Status    Status    `json:"status" firestore:"status"`
	Timestamp time.Time `json:"timestamp" firestore:"timestamp"`
	Detail    string    `json:"detail,omitempty" firestore:"detail,omitempty"`
}

// FailureRecord captures the terminal failure of one document workflow:
// the stage that exhausted its retries, how many attempts were made, and
// the last underlying error message.
type FailureRecord struct {
	Stage    string `json:"stage" firestore:"stage"`
	Attempts int    `json:"attempts" firestore:"attempts"`
	Message  string `json:"message" firestore:"message"`
}

// PersistenceReceipt confirms the structured result was written.
type PersistenceReceipt struct {
	Bucket       string `json:"bucket" firestore:"bucket"`
	OutputObject string `json:"outputObject" firestore:"outputObject"`
}

// DocumentOutput is the terminal success payload of one document workflow.
type DocumentOutput struct {
	Reference     DocumentReference  `json:"reference" firestore:"reference"`
	ExtractedText string             `json:"extractedText" firestore:"extractedText"`
	Receipt       PersistenceReceipt `json:"receipt" firestore:"receipt"`
}

// DocumentResult is one entry of a BatchResult: either the document's
// success payload or its failure record, never both.
type DocumentResult struct {
	Reference DocumentReference `json:"reference" firestore:"reference"`
	Status    Status            `json:"status" firestore:"status"`
	Output    *DocumentOutput   `json:"output,omitempty" firestore:"output,omitempty"`
	Failure   *FailureRecord    `json:"failure,omitempty" firestore:"failure,omitempty"`
}

// BatchResult aggregates the terminal outcomes of all child document
// workflows, ordered by the batch's original input order. A batch with
// failed children still completes; failure isolation is per document.
type BatchResult struct {
	Documents []DocumentResult `json:"documents" firestore:"documents"`
}

// WorkflowInstance is one tracked execution unit, batch or document.
// Instances are owned by the execution registry: created Pending, moved to
// Running on first dispatch, and committed exactly once to Completed or
// Failed. Records are never deleted, only appended and updated.
type WorkflowInstance struct {
	InstanceID       string         `json:"instanceId" firestore:"instanceId"`
	ParentInstanceID string         `json:"parentInstanceId,omitempty" firestore:"parentInstanceId,omitempty"`
	Kind             InstanceKind   `json:"kind" firestore:"kind"`
	Status           Status         `json:"status" firestore:"status"`
	CreatedTime      time.Time      `json:"createdTime" firestore:"createdTime"`
	LastUpdatedTime  time.Time      `json:"lastUpdatedTime" firestore:"lastUpdatedTime"`
	Input            any            `json:"input,omitempty" firestore:"input,omitempty"`
	Output           any            `json:"output,omitempty" firestore:"output,omitempty"`
	Failure          *FailureRecord `json:"failure,omitempty" firestore:"failure,omitempty"`
	History          []Transition   `json:"history,omitempty" firestore:"history,omitempty"`
}
