package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/voicescript/collector/internal/model"
)

// Publisher queues deliveries for events. It is a sink of the event worker.
type Publisher struct {
	repo   *Repository
	logger *slog.Logger
}

// NewPublisher creates a new webhook publisher.
func NewPublisher(repo *Repository, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		repo:   repo,
		logger: logger.With("component", "webhook.publisher"),
	}
}

// Name identifies the sink in logs.
func (p *Publisher) Name() string { return "webhook" }

// Handle queues the event.
func (p *Publisher) Handle(ctx context.Context, event *model.Event) error {
	_, err := p.Publish(ctx, event)
	return err
}

// Publish inserts one pending delivery per enabled endpoint subscribed to
// the event type and reports how many were queued.
func (p *Publisher) Publish(ctx context.Context, event *model.Event) (int, error) {
	endpoints, err := p.repo.ListSubscribedEndpoints(ctx, event.Type)
	if err != nil {
		return 0, err
	}
	if len(endpoints) == 0 {
		return 0, nil
	}

	payload, err := json.Marshal(model.WebhookPayload{
		EventType: event.Type,
		EventID:   event.ID,
		Timestamp: event.OccurredAt,
		Data:      event,
	})
	if err != nil {
		return 0, fmt.Errorf("marshal payload: %w", err)
	}

	now := time.Now().UTC()
	for _, endpoint := range endpoints {
		delivery := &model.WebhookDelivery{
			ID:          ulid.Make().String(),
			EndpointID:  endpoint.ID,
			EventID:     event.ID,
			EventType:   event.Type,
			PayloadJSON: string(payload),
			Status:      model.DeliveryStatusPending,
			MaxAttempts: DefaultMaxAttempts,
			NextRetryAt: now,
		}
		// A failure here is returned so the event worker retries; deliveries
		// already queued are deduplicated on (endpoint, event).
		if err := p.repo.CreateDelivery(ctx, delivery); err != nil {
			return 0, err
		}
		p.logger.Debug("webhook delivery queued",
			"delivery_id", delivery.ID,
			"endpoint_id", endpoint.ID,
			"event_id", event.ID,
		)
	}
	return len(endpoints), nil
}
