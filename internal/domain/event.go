package domain

import (
	"encoding/json"
	"time"
)

// EventType defines the type of pipeline lifecycle event.
type EventType string

const (
	EventPipelineStarted   EventType = "PIPELINE_STARTED"
	EventPipelineCompleted EventType = "PIPELINE_COMPLETED"
	EventPipelineFailed    EventType = "PIPELINE_FAILED"

	EventStepCompleted EventType = "STEP_COMPLETED"
	EventStepSkipped   EventType = "STEP_SKIPPED"
	EventStepFailed    EventType = "STEP_FAILED"

	EventRollbackCompleted  EventType = "ROLLBACK_COMPLETED"
	EventRollbackIncomplete EventType = "ROLLBACK_INCOMPLETE"
)

// Event is an immutable notification about one pipeline run.
type Event struct {
	EventID   string          `json:"event_id"`
	EventType EventType       `json:"event_type"`
	RunID     string          `json:"run_id"`
	Pipeline  string          `json:"pipeline"`
	Step      string          `json:"step,omitempty"`
	Index     int             `json:"index"`
	Error     string          `json:"error,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}
