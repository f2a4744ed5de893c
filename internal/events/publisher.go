// Package events carries submission lifecycle events from the services to
// the websocket feed and outbound webhooks over a Redis stream.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"

	"github.com/voicescript/collector/internal/metrics"
	"github.com/voicescript/collector/internal/model"
)

const (
	// StreamKey is the Redis stream for submission events.
	StreamKey = "stream:submission_events"

	// DeadLetterStreamKey is the Redis stream for poison messages.
	DeadLetterStreamKey = "stream:submission_events:dlq"

	// MaxStreamLen is the approximate max length of the stream.
	MaxStreamLen = 100000

	// PublishTimeout is the max time to wait for Redis publish.
	PublishTimeout = 100 * time.Millisecond
)

// Publisher enqueues events to the Redis stream.
type Publisher struct {
	redis   *redis.Client
	logger  *slog.Logger
	metrics metrics.Recorder
}

// NewPublisher creates a new event publisher.
func NewPublisher(client *redis.Client, logger *slog.Logger, recorder metrics.Recorder) *Publisher {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		redis:   client,
		logger:  logger.With("component", "events.publisher"),
		metrics: recorder,
	}
}

// NewEventID returns a time-ordered event identifier.
func NewEventID() string {
	return ulid.Make().String()
}

// Publish adds an event to the stream synchronously, assigning an ID and
// timestamp when missing.
func (p *Publisher) Publish(ctx context.Context, event *model.Event) (string, error) {
	if event.ID == "" {
		event.ID = NewEventID()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return "", fmt.Errorf("marshal event: %w", err)
	}

	result, err := p.redis.XAdd(ctx, &redis.XAddArgs{
		Stream: StreamKey,
		MaxLen: MaxStreamLen,
		Approx: true,
		ID:     "*",
		Values: map[string]interface{}{
			"type":    string(event.Type),
			"payload": string(data),
		},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("xadd: %w", err)
	}
	return result, nil
}

// PublishAsync publishes without blocking the caller.
// Errors are logged and counted, never returned.
func (p *Publisher) PublishAsync(event *model.Event) {
	if event == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), PublishTimeout)
		defer cancel()

		streamID, err := p.Publish(ctx, event)
		if err != nil {
			p.logger.Warn("failed to publish event",
				"type", event.Type,
				"submission_id", event.SubmissionID,
				"error", err,
			)
			p.metrics.IncEventPublished("dropped")
			return
		}

		p.logger.Debug("event published",
			"type", event.Type,
			"event_id", event.ID,
			"stream_id", streamID,
		)
		p.metrics.IncEventPublished("success")
	}()
}
