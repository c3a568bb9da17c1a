package models

import "time"

// These structs define the JSON payloads of the pipeline's HTTP surface.

// StartBatchRequest is the body of a start-batch request: an ordered list
// of document references to process together under one batch instance.
type StartBatchRequest struct {
	Documents []DocumentReference `json:"documents"`
}

// APIResponse is the envelope returned by every HTTP endpoint.
type APIResponse struct {
	Success       bool   `json:"success"`
	Message       string `json:"message"`
	CorrelationID string `json:"correlationId"`
	Data          any    `json:"data,omitempty"`
}

// StartBatchData is returned when a batch is accepted for processing.
type StartBatchData struct {
	InstanceID string `json:"instanceId"`
	Accepted   bool   `json:"accepted"`
}

// InstanceStatusData is the status-query payload for one instance.
type InstanceStatusData struct {
	InstanceID       string         `json:"instanceId"`
	ParentInstanceID string         `json:"parentInstanceId,omitempty"`
	Kind             InstanceKind   `json:"kind"`
	Status           Status         `json:"status"`
	CreatedTime      time.Time      `json:"createdTime"`
	LastUpdatedTime  time.Time      `json:"lastUpdatedTime"`
	Output           any            `json:"output,omitempty"`
	Failure          *FailureRecord `json:"failure,omitempty"`
	History          []Transition   `json:"history,omitempty"`
}

// InstanceResultsData carries a completed instance's output.
type InstanceResultsData struct {
	InstanceID string `json:"instanceId"`
	Output     any    `json:"output"`
}

// InstanceSummary is one entry of the recent-instances listing.
type InstanceSummary struct {
	InstanceID      string       `json:"instanceId"`
	Kind            InstanceKind `json:"kind"`
	Status          Status       `json:"status"`
	CreatedTime     time.Time    `json:"createdTime"`
	LastUpdatedTime time.Time    `json:"lastUpdatedTime"`
	OutputAvailable bool         `json:"outputAvailable"`
}

// InstanceListData is the recent-instances listing payload.
type InstanceListData struct {
	Items []InstanceSummary `json:"items"`
}
