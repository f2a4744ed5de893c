package model

import (
	"slices"
	"time"
)

// DeliveryStatus represents webhook delivery state.
type DeliveryStatus string

const (
	DeliveryStatusPending   DeliveryStatus = "pending"
	DeliveryStatusSuccess   DeliveryStatus = "success"
	DeliveryStatusFailed    DeliveryStatus = "failed"
	DeliveryStatusExhausted DeliveryStatus = "exhausted"
)

// WebhookEndpoint is an outbound notification target managed by admins.
type WebhookEndpoint struct {
	ID          string      `json:"id"`
	CreatedBy   int64       `json:"created_by"`
	TargetURL   string      `json:"target_url"`
	Secret      string      `json:"-"`
	Enabled     bool        `json:"enabled"`
	EventTypes  []EventType `json:"event_types"`
	Description string      `json:"description,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
}

// SubscribesToEvent checks if endpoint subscribes to given event type.
func (e *WebhookEndpoint) SubscribesToEvent(et EventType) bool {
	return slices.Contains(e.EventTypes, et)
}

// WebhookDelivery is one queued notification for one endpoint.
type WebhookDelivery struct {
	ID             string         `json:"id"`
	EndpointID     string         `json:"endpoint_id"`
	EventID        string         `json:"event_id"`
	EventType      EventType      `json:"event_type"`
	PayloadJSON    string         `json:"-"`
	Status         DeliveryStatus `json:"status"`
	AttemptCount   int            `json:"attempt_count"`
	MaxAttempts    int            `json:"max_attempts"`
	NextRetryAt    time.Time      `json:"next_retry_at"`
	LastAttemptAt  *time.Time     `json:"last_attempt_at,omitempty"`
	LastHTTPStatus *int           `json:"last_http_status,omitempty"`
	LastError      string         `json:"last_error,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// IsTerminal returns true if delivery is in a terminal state.
func (d *WebhookDelivery) IsTerminal() bool {
	return d.Status == DeliveryStatusSuccess || d.Status == DeliveryStatusExhausted
}

// WebhookPayload is the JSON body posted to endpoints.
type WebhookPayload struct {
	EventType EventType `json:"event_type"`
	EventID   string    `json:"event_id"`
	Timestamp time.Time `json:"timestamp"`
	Data      *Event    `json:"data"`
}
