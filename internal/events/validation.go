package events

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/voicescript/collector/internal/model"
)

// ValidateEvent checks the fields every consumer relies on.
func ValidateEvent(e *model.Event) error {
	if e.ID == "" {
		return errors.New("id is required")
	}
	if !model.IsValidEventType(e.Type) {
		return fmt.Errorf("unknown event type %q", e.Type)
	}
	if e.SubmissionID <= 0 {
		return errors.New("submission_id must be positive")
	}
	if e.OccurredAt.IsZero() {
		return errors.New("occurred_at must be set")
	}
	return nil
}

// decodeMessage turns a stream entry into an event. The returned reason
// classifies failures for the dead-letter stream.
func decodeMessage(msg redis.XMessage) (*model.Event, string, error) {
	payload, ok := msg.Values["payload"].(string)
	if !ok {
		return nil, "invalid_format", errors.New("payload field missing or not a string")
	}

	var event model.Event
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		return nil, "unmarshal_error", err
	}
	if err := ValidateEvent(&event); err != nil {
		return nil, "validation_error", err
	}
	return &event, "", nil
}
