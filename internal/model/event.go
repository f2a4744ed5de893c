package model

import (
	"slices"
	"time"
)

// EventType names a domain event published on the submission stream.
type EventType string

const (
	EventSubmissionCreated  EventType = "submission.created"
	EventSubmissionReviewed EventType = "submission.reviewed"
	EventSubmissionDeleted  EventType = "submission.deleted"
	EventBillingRecorded    EventType = "billing.recorded"
)

// ValidEventTypes contains all event types endpoints may subscribe to.
var ValidEventTypes = []EventType{
	EventSubmissionCreated,
	EventSubmissionReviewed,
	EventSubmissionDeleted,
	EventBillingRecorded,
}

// IsValidEventType checks if an event type is valid.
func IsValidEventType(et EventType) bool {
	return slices.Contains(ValidEventTypes, et)
}

// Event is a submission lifecycle notification.
type Event struct {
	ID           string           `json:"id"`
	Type         EventType        `json:"type"`
	SubmissionID int64            `json:"submission_id"`
	ScriptID     int64            `json:"script_id,omitempty"`
	UserID       *int64           `json:"user_id,omitempty"`
	ActorID      int64            `json:"actor_id,omitempty"`
	Status       SubmissionStatus `json:"status,omitempty"`
	Language     string           `json:"language,omitempty"`
	Amount       float64          `json:"amount,omitempty"`
	OccurredAt   time.Time        `json:"occurred_at"`
}
