package webhook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/voicescript/collector/internal/metrics"
	"github.com/voicescript/collector/internal/model"
)

const (
	// DefaultBatchSize is the number of deliveries claimed per poll.
	DefaultBatchSize = 50
	// DefaultPollInterval is the time between polls.
	DefaultPollInterval = 5 * time.Second
	// DefaultLease is how long a claimed delivery is hidden from other workers.
	DefaultLease = 2 * time.Minute
)

// Worker sends queued deliveries.
type Worker struct {
	repo         *Repository
	client       *resty.Client
	backoff      *Backoff
	logger       *slog.Logger
	metrics      metrics.Recorder
	batchSize    int
	pollInterval time.Duration
	now          func() time.Time
}

// NewWorker creates a new delivery worker.
func NewWorker(repo *Repository, logger *slog.Logger, recorder metrics.Recorder) *Worker {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		repo:         repo,
		client:       NewClient(ClientTimeout),
		backoff:      DefaultBackoff(),
		logger:       logger.With("component", "webhook.worker"),
		metrics:      recorder,
		batchSize:    DefaultBatchSize,
		pollInterval: DefaultPollInterval,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// SetPollInterval overrides the default poll interval.
func (w *Worker) SetPollInterval(interval time.Duration) {
	if interval > 0 {
		w.pollInterval = interval
	}
}

// Run polls until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("webhook worker started", "batch_size", w.batchSize, "poll_interval", w.pollInterval)

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("webhook worker stopping")
			return nil
		case <-ticker.C:
			if _, err := w.ProcessOnce(ctx); err != nil {
				if errors.Is(err, context.Canceled) {
					return nil
				}
				w.logger.Error("process error", "error", err)
			}
		}
	}
}

// ProcessOnce claims and sends one batch, returning how many were attempted.
func (w *Worker) ProcessOnce(ctx context.Context) (int, error) {
	deliveries, err := w.repo.ClaimDueDeliveries(ctx, w.now(), DefaultLease, w.batchSize)
	if err != nil {
		return 0, err
	}
	for _, d := range deliveries {
		if err := w.deliver(ctx, d); err != nil {
			w.logger.Warn("delivery bookkeeping failed", "delivery_id", d.ID, "error", err)
		}
	}
	return len(deliveries), nil
}

func (w *Worker) deliver(ctx context.Context, d *model.WebhookDelivery) error {
	endpoint, err := w.repo.GetEndpoint(ctx, d.EndpointID)
	if err != nil {
		if errors.Is(err, ErrEndpointNotFound) {
			return w.fail(ctx, d, nil, "endpoint deleted", true)
		}
		return err
	}
	if !endpoint.Enabled {
		return w.fail(ctx, d, nil, "endpoint disabled", true)
	}

	payload := []byte(d.PayloadJSON)
	ts := w.now().Unix()

	start := time.Now()
	resp, err := w.client.R().
		SetContext(ctx).
		SetHeader(HeaderSignature, SignatureHeader(endpoint.Secret, ts, payload)).
		SetHeader(HeaderEvent, string(d.EventType)).
		SetHeader(HeaderDeliveryID, d.ID).
		SetBody(payload).
		Post(endpoint.TargetURL)
	elapsed := time.Since(start)

	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return w.fail(ctx, d, nil, err.Error(), false)
	}

	status := resp.StatusCode()
	if status >= 200 && status < 300 {
		w.logger.Info("webhook_delivered",
			"delivery_id", d.ID,
			"target_host", ExtractHost(endpoint.TargetURL),
			"http_status", status,
			"duration_ms", elapsed.Milliseconds(),
		)
		w.metrics.IncWebhookDelivery("success")
		return w.repo.MarkDelivered(ctx, d.ID, status, w.now())
	}

	body := truncateText(resp.String(), maxResponseBody)
	return w.fail(ctx, d, &status, fmt.Sprintf("HTTP %d: %s", status, body), false)
}

// fail records an unsuccessful attempt. terminal skips remaining attempts.
func (w *Worker) fail(ctx context.Context, d *model.WebhookDelivery, httpStatus *int, msg string, terminal bool) error {
	attempts := d.AttemptCount + 1
	maxAttempts := d.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	exhausted := terminal || IsExhausted(attempts, maxAttempts)

	status := "failed"
	if exhausted {
		status = "exhausted"
	}
	w.logger.Warn("webhook_delivery_failed",
		"delivery_id", d.ID,
		"attempt", attempts,
		"exhausted", exhausted,
		"error", msg,
	)
	w.metrics.IncWebhookDelivery(status)

	now := w.now()
	return w.repo.MarkFailed(ctx, d.ID, httpStatus, msg, now, w.backoff.Next(now, attempts), exhausted)
}
