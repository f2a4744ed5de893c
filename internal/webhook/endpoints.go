package webhook

import (
	"context"
	"log/slog"
	"strings"

	"github.com/oklog/ulid/v2"

	"github.com/voicescript/collector/internal/model"
)

// CreateEndpointInput defines a new endpoint.
type CreateEndpointInput struct {
	TargetURL   string
	EventTypes  []string
	Description string
}

// EndpointService manages admin-configured endpoints.
type EndpointService struct {
	repo   *Repository
	policy URLPolicy
	logger *slog.Logger
}

// NewEndpointService creates a new EndpointService.
func NewEndpointService(repo *Repository, policy URLPolicy, logger *slog.Logger) *EndpointService {
	if logger == nil {
		logger = slog.Default()
	}
	return &EndpointService{repo: repo, policy: policy, logger: logger.With("component", "webhook.endpoints")}
}

// Create stores an endpoint with a fresh secret. The secret is readable on
// the returned endpoint only; list responses never include it.
func (s *EndpointService) Create(ctx context.Context, adminID int64, in CreateEndpointInput) (*model.WebhookEndpoint, error) {
	target := strings.TrimSpace(in.TargetURL)
	if err := s.policy.Check(target); err != nil {
		return nil, err
	}
	types, err := ParseEventTypes(in.EventTypes)
	if err != nil {
		return nil, err
	}
	secret, err := GenerateSecret()
	if err != nil {
		return nil, err
	}

	endpoint := &model.WebhookEndpoint{
		ID:          ulid.Make().String(),
		CreatedBy:   adminID,
		TargetURL:   target,
		Secret:      secret,
		Enabled:     true,
		EventTypes:  types,
		Description: strings.TrimSpace(in.Description),
	}
	if err := s.repo.CreateEndpoint(ctx, endpoint); err != nil {
		return nil, err
	}

	s.logger.Info("webhook_endpoint_created",
		"endpoint_id", endpoint.ID,
		"target_host", ExtractHost(target),
		"admin_id", adminID,
	)
	return endpoint, nil
}

// List returns every endpoint.
func (s *EndpointService) List(ctx context.Context) ([]*model.WebhookEndpoint, error) {
	return s.repo.ListEndpoints(ctx)
}

// Delete removes an endpoint and its queued deliveries.
func (s *EndpointService) Delete(ctx context.Context, id string) error {
	if err := s.repo.DeleteEndpoint(ctx, id); err != nil {
		return err
	}
	s.logger.Info("webhook_endpoint_deleted", "endpoint_id", id)
	return nil
}

// ParseEventTypes validates and deduplicates event type names.
func ParseEventTypes(names []string) ([]model.EventType, error) {
	seen := make(map[model.EventType]struct{}, len(names))
	types := make([]model.EventType, 0, len(names))
	for _, n := range names {
		et := model.EventType(strings.TrimSpace(n))
		if !model.IsValidEventType(et) {
			return nil, ErrInvalidEventType
		}
		if _, ok := seen[et]; ok {
			continue
		}
		seen[et] = struct{}{}
		types = append(types, et)
	}
	if len(types) == 0 {
		return nil, ErrNoEventTypes
	}
	return types, nil
}
