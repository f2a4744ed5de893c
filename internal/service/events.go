package service

import (
	"time"

	"github.com/voicescript/collector/internal/model"
)

// EventPublisher receives domain events. Publishing never fails the caller.
type EventPublisher interface {
	PublishAsync(event *model.Event)
}

type noopPublisher struct{}

func (noopPublisher) PublishAsync(*model.Event) {}

func publisherOrNoop(p EventPublisher) EventPublisher {
	if p == nil {
		return noopPublisher{}
	}
	return p
}

func submissionEvent(t model.EventType, s *model.Submission, actorID int64) *model.Event {
	return &model.Event{
		Type:         t,
		SubmissionID: s.ID,
		ScriptID:     s.ScriptID,
		UserID:       s.UserID,
		ActorID:      actorID,
		Status:       s.Status,
		Language:     s.LanguageCode,
		OccurredAt:   time.Now().UTC(),
	}
}
