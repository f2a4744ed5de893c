package webhook

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/voicescript/collector/internal/model"
)

// Repository handles webhook persistence over database/sql.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a new webhook repository.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const endpointColumns = `id, created_by, target_url, secret, enabled, event_types, description, created_at`

const deliveryColumns = `id, endpoint_id, event_id, event_type, payload_json,
	status, attempt_count, max_attempts, next_retry_at,
	last_attempt_at, last_http_status, last_error, created_at`

// CreateEndpoint inserts an endpoint.
func (r *Repository) CreateEndpoint(ctx context.Context, e *model.WebhookEndpoint) error {
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO webhook_endpoints (id, created_by, target_url, secret, enabled, event_types, description)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`, e.ID, nullID(e.CreatedBy), e.TargetURL, e.Secret, e.Enabled,
		pq.Array(eventTypeStrings(e.EventTypes)), nullText(e.Description),
	).Scan(&e.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create webhook endpoint: %w", err)
	}
	return nil
}

// GetEndpoint returns one endpoint.
func (r *Repository) GetEndpoint(ctx context.Context, id string) (*model.WebhookEndpoint, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+endpointColumns+` FROM webhook_endpoints WHERE id = $1`, id)
	e, err := scanEndpoint(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEndpointNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get webhook endpoint: %w", err)
	}
	return e, nil
}

// ListEndpoints returns every endpoint, newest first.
func (r *Repository) ListEndpoints(ctx context.Context) ([]*model.WebhookEndpoint, error) {
	return r.queryEndpoints(ctx, `SELECT `+endpointColumns+` FROM webhook_endpoints ORDER BY created_at DESC`)
}

// ListSubscribedEndpoints returns enabled endpoints subscribed to eventType.
func (r *Repository) ListSubscribedEndpoints(ctx context.Context, eventType model.EventType) ([]*model.WebhookEndpoint, error) {
	return r.queryEndpoints(ctx, `
		SELECT `+endpointColumns+`
		FROM webhook_endpoints
		WHERE enabled AND $1 = ANY(event_types)
		ORDER BY created_at
	`, string(eventType))
}

func (r *Repository) queryEndpoints(ctx context.Context, query string, args ...any) ([]*model.WebhookEndpoint, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list webhook endpoints: %w", err)
	}
	defer rows.Close()

	endpoints := []*model.WebhookEndpoint{}
	for rows.Next() {
		e, err := scanEndpoint(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan webhook endpoint: %w", err)
		}
		endpoints = append(endpoints, e)
	}
	return endpoints, rows.Err()
}

// DeleteEndpoint removes an endpoint and, by cascade, its deliveries.
func (r *Repository) DeleteEndpoint(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM webhook_endpoints WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete webhook endpoint: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrEndpointNotFound
	}
	return nil
}

// CreateDelivery queues a delivery. A repeat of the same event for the same
// endpoint is ignored.
func (r *Repository) CreateDelivery(ctx context.Context, d *model.WebhookDelivery) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO webhook_deliveries (
			id, endpoint_id, event_id, event_type, payload_json,
			status, attempt_count, max_attempts, next_retry_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (endpoint_id, event_id) DO NOTHING
	`, d.ID, d.EndpointID, d.EventID, string(d.EventType), d.PayloadJSON,
		string(d.Status), d.AttemptCount, d.MaxAttempts, d.NextRetryAt)
	if err != nil {
		return fmt.Errorf("failed to create webhook delivery: %w", err)
	}
	return nil
}

// ClaimDueDeliveries leases up to limit due deliveries by pushing their
// next_retry_at forward, so concurrent workers never send the same row.
func (r *Repository) ClaimDueDeliveries(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]*model.WebhookDelivery, error) {
	rows, err := r.db.QueryContext(ctx, `
		UPDATE webhook_deliveries
		SET next_retry_at = $2, updated_at = $1
		WHERE id IN (
			SELECT d.id
			FROM webhook_deliveries d
			JOIN webhook_endpoints e ON e.id = d.endpoint_id
			WHERE d.status IN ('pending', 'failed')
			  AND d.next_retry_at <= $1
			  AND e.enabled
			ORDER BY d.next_retry_at
			LIMIT $3
			FOR UPDATE OF d SKIP LOCKED
		)
		RETURNING `+deliveryColumns,
		now, now.Add(lease), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to claim webhook deliveries: %w", err)
	}
	defer rows.Close()
	return scanDeliveries(rows)
}

// ListDeliveries returns the most recent deliveries for an endpoint.
func (r *Repository) ListDeliveries(ctx context.Context, endpointID string, limit int) ([]*model.WebhookDelivery, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+deliveryColumns+`
		FROM webhook_deliveries
		WHERE endpoint_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, endpointID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list webhook deliveries: %w", err)
	}
	defer rows.Close()
	return scanDeliveries(rows)
}

// MarkDelivered records a successful attempt.
func (r *Repository) MarkDelivered(ctx context.Context, id string, httpStatus int, at time.Time) error {
	return r.exec(ctx, `
		UPDATE webhook_deliveries
		SET status = 'success',
			attempt_count = attempt_count + 1,
			last_attempt_at = $2,
			last_http_status = $3,
			last_error = NULL,
			updated_at = $2
		WHERE id = $1
	`, id, at, httpStatus)
}

// MarkFailed records a failed attempt and schedules the next one, or marks
// the delivery exhausted.
func (r *Repository) MarkFailed(ctx context.Context, id string, httpStatus *int, errMsg string, at, nextRetryAt time.Time, exhausted bool) error {
	status := model.DeliveryStatusFailed
	if exhausted {
		status = model.DeliveryStatusExhausted
	}
	errMsg = truncateText(errMsg, maxErrorLength)
	return r.exec(ctx, `
		UPDATE webhook_deliveries
		SET status = $2,
			attempt_count = attempt_count + 1,
			last_attempt_at = $3,
			last_http_status = $4,
			last_error = $5,
			next_retry_at = $6,
			updated_at = $3
		WHERE id = $1
	`, id, string(status), at, httpStatus, errMsg, nextRetryAt)
}

// QueueDepth counts deliveries still waiting to be sent.
func (r *Repository) QueueDepth(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM webhook_deliveries WHERE status IN ('pending', 'failed')
	`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count webhook queue: %w", err)
	}
	return n, nil
}

func (r *Repository) exec(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update webhook delivery: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrDeliveryNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEndpoint(row scanner) (*model.WebhookEndpoint, error) {
	var (
		e           model.WebhookEndpoint
		createdBy   sql.NullInt64
		description sql.NullString
		types       []string
	)
	err := row.Scan(&e.ID, &createdBy, &e.TargetURL, &e.Secret, &e.Enabled,
		pq.Array(&types), &description, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	e.CreatedBy = createdBy.Int64
	e.Description = description.String
	e.EventTypes = make([]model.EventType, len(types))
	for i, t := range types {
		e.EventTypes[i] = model.EventType(t)
	}
	return &e, nil
}

func scanDeliveries(rows *sql.Rows) ([]*model.WebhookDelivery, error) {
	deliveries := []*model.WebhookDelivery{}
	for rows.Next() {
		var (
			d          model.WebhookDelivery
			eventType  string
			status     string
			lastAt     sql.NullTime
			lastStatus sql.NullInt32
			lastError  sql.NullString
		)
		if err := rows.Scan(&d.ID, &d.EndpointID, &d.EventID, &eventType, &d.PayloadJSON,
			&status, &d.AttemptCount, &d.MaxAttempts, &d.NextRetryAt,
			&lastAt, &lastStatus, &lastError, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan webhook delivery: %w", err)
		}
		d.EventType = model.EventType(eventType)
		d.Status = model.DeliveryStatus(status)
		if lastAt.Valid {
			t := lastAt.Time
			d.LastAttemptAt = &t
		}
		if lastStatus.Valid {
			s := int(lastStatus.Int32)
			d.LastHTTPStatus = &s
		}
		d.LastError = lastError.String
		deliveries = append(deliveries, &d)
	}
	return deliveries, rows.Err()
}

func eventTypeStrings(types []model.EventType) []string {
	out := make([]string, len(types))
	for i, t := range types {
		out[i] = string(t)
	}
	return out
}

func nullID(id int64) any {
	if id == 0 {
		return nil
	}
	return id
}

func nullText(s string) any {
	if s == "" {
		return nil
	}
	return s
}
