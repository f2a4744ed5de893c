package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/voicescript/collector/internal/metrics"
	"github.com/voicescript/collector/internal/model"
)

const (
	// ConsumerGroup is the Redis consumer group name.
	ConsumerGroup = "event_workers"

	// DefaultBatchSize is the max events per read.
	DefaultBatchSize = 100

	// DefaultBlockTimeout is how long to block waiting for messages.
	DefaultBlockTimeout = 5 * time.Second

	// DefaultMaxRetries is the max dispatch attempts per batch.
	DefaultMaxRetries = 3

	// DefaultClaimInterval is how often to scan pending messages.
	DefaultClaimInterval = 10 * time.Second

	// DefaultClaimIdle is the idle time before reclaiming pending messages.
	DefaultClaimIdle = 30 * time.Second

	// DefaultMetricsInterval is how often to refresh queue depth metrics.
	DefaultMetricsInterval = 5 * time.Second

	// completedKeyPrefix keys the set of sinks that already handled an
	// unacked message.
	completedKeyPrefix = StreamKey + ":completed:"
	completedTTL       = 24 * time.Hour
)

// Sink consumes events read from the stream.
type Sink interface {
	Name() string
	Handle(ctx context.Context, event *model.Event) error
}

// Worker reads submission events from the stream and fans them out to sinks.
type Worker struct {
	redis           *redis.Client
	sinks           []Sink
	logger          *slog.Logger
	metrics         metrics.Recorder
	consumerID      string
	batchSize       int
	blockTimeout    time.Duration
	maxRetries      int
	retryBase       time.Duration
	claimInterval   time.Duration
	claimIdle       time.Duration
	metricsInterval time.Duration
	claimStartID    string
	lastClaim       time.Time
	lastMetrics     time.Time

	started  bool
	draining bool
	cancel   context.CancelFunc
	done     chan struct{}
	mu       sync.Mutex
}

// NewWorker creates a new event worker.
func NewWorker(client *redis.Client, logger *slog.Logger, consumerID string, recorder metrics.Recorder, sinks ...Sink) *Worker {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		redis:           client,
		sinks:           sinks,
		logger:          logger.With("component", "events.worker", "consumer_id", consumerID),
		metrics:         recorder,
		consumerID:      consumerID,
		batchSize:       DefaultBatchSize,
		blockTimeout:    DefaultBlockTimeout,
		maxRetries:      DefaultMaxRetries,
		retryBase:       time.Second,
		claimInterval:   DefaultClaimInterval,
		claimIdle:       DefaultClaimIdle,
		metricsInterval: DefaultMetricsInterval,
		claimStartID:    "0-0",
	}
}

// Run starts the worker loop. Blocks until ctx is cancelled or Shutdown is called.
func (w *Worker) Run(ctx context.Context) error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return errors.New("worker already started")
	}
	w.started = true
	w.done = make(chan struct{})
	ctx, w.cancel = context.WithCancel(ctx)
	w.mu.Unlock()

	defer close(w.done)

	if err := w.ensureConsumerGroup(ctx); err != nil {
		return fmt.Errorf("ensure consumer group: %w", err)
	}

	w.logger.Info("event worker started", "sinks", len(w.sinks))

	for {
		w.mu.Lock()
		draining := w.draining
		w.mu.Unlock()
		if draining {
			w.logger.Info("event worker draining, stopping")
			return nil
		}

		select {
		case <-ctx.Done():
			w.logger.Info("event worker stopping")
			return nil
		default:
			if err := w.processOnce(ctx); err != nil {
				if errors.Is(err, context.Canceled) {
					return nil
				}
				w.logger.Error("process error", "error", err)
				if !sleepCtx(ctx, time.Second) {
					return nil
				}
			}
		}
	}
}

// Shutdown stops the worker and waits for the in-flight batch.
func (w *Worker) Shutdown(ctx context.Context) error {
	w.mu.Lock()
	if !w.started {
		w.mu.Unlock()
		return nil
	}
	w.draining = true
	cancel := w.cancel
	done := w.done
	w.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	select {
	case <-done:
		w.logger.Info("event worker shutdown complete")
		return nil
	case <-ctx.Done():
		w.logger.Warn("event worker shutdown timed out")
		return ctx.Err()
	}
}

// SetBatchSize overrides the default batch size.
func (w *Worker) SetBatchSize(size int) {
	if size > 0 {
		w.batchSize = size
	}
}

// SetBlockTimeout overrides the default blocking timeout.
func (w *Worker) SetBlockTimeout(timeout time.Duration) {
	if timeout > 0 {
		w.blockTimeout = timeout
	}
}

// SetRetryBase overrides the first retry backoff. Later retries double it.
func (w *Worker) SetRetryBase(d time.Duration) {
	if d > 0 {
		w.retryBase = d
	}
}

// SetClaimIdle overrides the default pending idle threshold.
func (w *Worker) SetClaimIdle(idle time.Duration) {
	if idle > 0 {
		w.claimIdle = idle
	}
}

func (w *Worker) ensureConsumerGroup(ctx context.Context) error {
	err := w.redis.XGroupCreateMkStream(ctx, StreamKey, ConsumerGroup, "0").Err()
	if err != nil && !isConsumerGroupExistsError(err) {
		return err
	}
	return nil
}

// processOnce reads and dispatches a single batch.
func (w *Worker) processOnce(ctx context.Context) error {
	w.maybeUpdateQueueDepth(ctx)

	messages, err := w.maybeClaimPending(ctx)
	if err != nil {
		w.logger.Warn("failed to claim pending messages", "error", err)
	}
	if len(messages) == 0 {
		messages, err = w.readBatch(ctx)
		if err != nil {
			return err
		}
	}
	if len(messages) == 0 {
		return nil
	}

	for _, msg := range messages {
		event, reason, err := decodeMessage(msg)
		if err != nil {
			w.deadLetterMessage(ctx, msg, reason, err.Error())
			if ackErr := w.ack(ctx, msg.ID); ackErr != nil {
				return ackErr
			}
			continue
		}

		if err := w.dispatchWithRetry(ctx, msg.ID, event); err != nil {
			w.logger.Error("event dispatch failed after retries",
				"event_id", event.ID,
				"type", event.Type,
				"error", err,
			)
			w.metrics.IncEventProcessed("failed")
			// Left unacked so XAUTOCLAIM picks it up later.
			return err
		}
		if err := w.ack(ctx, msg.ID); err != nil {
			return err
		}
		w.metrics.IncEventProcessed("success")
	}
	return nil
}

// dispatchWithRetry hands the event to each sink, retrying only the sinks
// that failed, with exponential backoff. Sinks that succeed on a message
// left unacked are recorded, so a reclaimed message skips them.
func (w *Worker) dispatchWithRetry(ctx context.Context, msgID string, event *model.Event) error {
	completed := w.completedSinks(ctx, msgID)
	var pending []Sink
	for _, sink := range w.sinks {
		if !completed[sink.Name()] {
			pending = append(pending, sink)
		}
	}
	if len(pending) == 0 {
		w.clearCompleted(ctx, msgID)
		return nil
	}

	var (
		succeeded []string
		lastErr   error
	)
	for attempt := 1; attempt <= w.maxRetries; attempt++ {
		var failed []Sink
		for _, sink := range pending {
			if err := sink.Handle(ctx, event); err != nil {
				lastErr = fmt.Errorf("%s: %w", sink.Name(), err)
				failed = append(failed, sink)
				continue
			}
			succeeded = append(succeeded, sink.Name())
		}
		if len(failed) == 0 {
			if len(completed) > 0 {
				w.clearCompleted(ctx, msgID)
			}
			return nil
		}
		pending = failed

		if attempt == w.maxRetries {
			break
		}
		backoff := w.retryBase << (attempt - 1)
		w.logger.Warn("event dispatch failed, retrying",
			"event_id", event.ID,
			"attempt", attempt,
			"backoff_seconds", backoff.Seconds(),
			"error", lastErr,
		)
		if !sleepCtx(ctx, backoff) {
			w.recordCompleted(ctx, msgID, succeeded)
			return ctx.Err()
		}
	}
	w.recordCompleted(ctx, msgID, succeeded)
	return lastErr
}

// completedSinks returns the sinks that already handled msgID. Lookup
// failures are logged and treated as none.
func (w *Worker) completedSinks(ctx context.Context, msgID string) map[string]bool {
	names, err := w.redis.SMembers(ctx, completedKeyPrefix+msgID).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		w.logger.Warn("failed to load sink progress", "message_id", msgID, "error", err)
		return nil
	}
	done := make(map[string]bool, len(names))
	for _, n := range names {
		done[n] = true
	}
	return done
}

func (w *Worker) recordCompleted(ctx context.Context, msgID string, sinks []string) {
	if len(sinks) == 0 {
		return
	}
	ctx = context.WithoutCancel(ctx)
	key := completedKeyPrefix + msgID
	members := make([]interface{}, len(sinks))
	for i, s := range sinks {
		members[i] = s
	}
	pipe := w.redis.TxPipeline()
	pipe.SAdd(ctx, key, members...)
	pipe.Expire(ctx, key, completedTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		w.logger.Warn("failed to record sink progress", "message_id", msgID, "error", err)
	}
}

func (w *Worker) clearCompleted(ctx context.Context, msgID string) {
	if err := w.redis.Del(ctx, completedKeyPrefix+msgID).Err(); err != nil {
		w.logger.Warn("failed to clear sink progress", "message_id", msgID, "error", err)
	}
}

func (w *Worker) maybeClaimPending(ctx context.Context) ([]redis.XMessage, error) {
	if w.claimInterval <= 0 || w.claimIdle <= 0 {
		return nil, nil
	}
	if !w.lastClaim.IsZero() && time.Since(w.lastClaim) < w.claimInterval {
		return nil, nil
	}
	w.lastClaim = time.Now()

	messages, start, err := w.redis.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   StreamKey,
		Group:    ConsumerGroup,
		Consumer: w.consumerID,
		MinIdle:  w.claimIdle,
		Start:    w.claimStartID,
		Count:    int64(w.batchSize),
	}).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("xautoclaim: %w", err)
	}
	if start != "" {
		w.claimStartID = start
	}
	return messages, nil
}

func (w *Worker) maybeUpdateQueueDepth(ctx context.Context) {
	if w.metricsInterval <= 0 {
		return
	}
	if !w.lastMetrics.IsZero() && time.Since(w.lastMetrics) < w.metricsInterval {
		return
	}
	w.lastMetrics = time.Now()

	groups, err := w.redis.XInfoGroups(ctx, StreamKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		w.logger.Warn("failed to read stream group info", "error", err)
		return
	}
	for _, group := range groups {
		if group.Name == ConsumerGroup {
			w.metrics.SetEventQueueDepth(group.Pending + group.Lag)
			return
		}
	}
}

func (w *Worker) readBatch(ctx context.Context) ([]redis.XMessage, error) {
	streams, err := w.redis.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    ConsumerGroup,
		Consumer: w.consumerID,
		Streams:  []string{StreamKey, ">"},
		Count:    int64(w.batchSize),
		Block:    w.blockTimeout,
	}).Result()
	if errors.Is(err, redis.Nil) || len(streams) == 0 {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("xreadgroup: %w", err)
	}
	return streams[0].Messages, nil
}

// deadLetterMessage moves a poison message to the dead-letter stream.
func (w *Worker) deadLetterMessage(ctx context.Context, msg redis.XMessage, reason, detail string) {
	w.logger.Warn("dead-lettering poison message",
		"message_id", msg.ID,
		"reason", reason,
		"detail", detail,
	)

	err := w.redis.XAdd(ctx, &redis.XAddArgs{
		Stream: DeadLetterStreamKey,
		MaxLen: 10000,
		Approx: true,
		ID:     "*",
		Values: map[string]interface{}{
			"original_id":      msg.ID,
			"original_stream":  StreamKey,
			"reason":           reason,
			"detail":           detail,
			"payload":          msg.Values["payload"],
			"dead_lettered_at": time.Now().UTC().Format(time.RFC3339),
		},
	}).Err()
	if err != nil {
		w.logger.Error("failed to write to dead-letter stream", "message_id", msg.ID, "error", err)
	}
	w.metrics.IncEventProcessed("dead_lettered")
}

func (w *Worker) ack(ctx context.Context, ids ...string) error {
	if err := w.redis.XAck(ctx, StreamKey, ConsumerGroup, ids...).Err(); err != nil {
		return fmt.Errorf("xack: %w", err)
	}
	return nil
}

func isConsumerGroupExistsError(err error) bool {
	return err != nil && strings.HasPrefix(err.Error(), "BUSYGROUP")
}

// sleepCtx waits for d and reports false if ctx ended first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
