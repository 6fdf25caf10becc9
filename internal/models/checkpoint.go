package models

import (
	"encoding/json"
	"time"
)

// Checkpoint is a named snapshot of in-flight automation state. The three
// state blobs are owned by the executor and stay opaque to the store.
type Checkpoint struct {
	ID        uint64
	SessionID string
	StepName  string

	BrowserState    json.RawMessage
	WorkflowState   json.RawMessage
	ProviderContext json.RawMessage

	Success  bool
	Metadata json.RawMessage

	CreatedAt time.Time
}

type CheckpointInput struct {
	StepName        string
	BrowserState    json.RawMessage
	WorkflowState   json.RawMessage
	ProviderContext json.RawMessage
	Success         bool
	Metadata        json.RawMessage
}
