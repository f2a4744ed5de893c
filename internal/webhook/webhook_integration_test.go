//go:build integration

package webhook

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voicescript/collector/internal/model"
	"github.com/voicescript/collector/internal/testutil"
)

func newWebhookEnv(t *testing.T) (context.Context, *Repository) {
	t.Helper()
	ctx := context.Background()

	pool, err := pgxpool.New(ctx, testutil.RequireEnv(t, "DATABASE_URL"))
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	unlock, err := testutil.AcquireDBLock(ctx, pool)
	require.NoError(t, err)
	t.Cleanup(func() { _ = unlock() })
	require.NoError(t, testutil.ResetSchema(ctx, pool))

	db := stdlib.OpenDBFromPool(pool)
	t.Cleanup(func() { _ = db.Close() })
	return ctx, NewRepository(db)
}

func mustEndpoint(t *testing.T, ctx context.Context, repo *Repository, target string, types ...model.EventType) *model.WebhookEndpoint {
	t.Helper()
	svc := NewEndpointService(repo, URLPolicy{AllowInsecure: true}, nil)
	names := make([]string, len(types))
	for i, et := range types {
		names[i] = string(et)
	}
	e, err := svc.Create(ctx, 0, CreateEndpointInput{TargetURL: target, EventTypes: names})
	require.NoError(t, err)
	return e
}

func testEvent(id string) *model.Event {
	return &model.Event{
		ID:           id,
		Type:         model.EventSubmissionReviewed,
		SubmissionID: 42,
		Status:       model.SubmissionApproved,
		OccurredAt:   time.Now().UTC(),
	}
}

func TestIntegrationPublishFansOutToSubscribers(t *testing.T) {
	ctx, repo := newWebhookEnv(t)

	a := mustEndpoint(t, ctx, repo, "http://127.0.0.1:1/a", model.EventSubmissionReviewed)
	mustEndpoint(t, ctx, repo, "http://127.0.0.1:1/b", model.EventSubmissionCreated)

	pub := NewPublisher(repo, nil)
	n, err := pub.Publish(ctx, testEvent("evt-1"))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// Same event again is deduplicated.
	_, err = pub.Publish(ctx, testEvent("evt-1"))
	require.NoError(t, err)

	deliveries, err := repo.ListDeliveries(ctx, a.ID, 10)
	require.NoError(t, err)
	require.Len(t, deliveries, 1)
	assert.Equal(t, model.DeliveryStatusPending, deliveries[0].Status)
	assert.Equal(t, DefaultMaxAttempts, deliveries[0].MaxAttempts)

	depth, err := repo.QueueDepth(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), depth)
}

func TestIntegrationWorkerDeliversSigned(t *testing.T) {
	ctx, repo := newWebhookEnv(t)

	var (
		gotSig   atomic.Value
		gotEvent atomic.Value
		gotBody  atomic.Value
	)
	receiver := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		gotBody.Store(body)
		gotSig.Store(r.Header.Get(HeaderSignature))
		gotEvent.Store(r.Header.Get(HeaderEvent))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer receiver.Close()

	endpoint := mustEndpoint(t, ctx, repo, receiver.URL, model.EventSubmissionReviewed)
	_, err := NewPublisher(repo, nil).Publish(ctx, testEvent("evt-ok"))
	require.NoError(t, err)

	n, err := NewWorker(repo, nil, nil).ProcessOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.Equal(t, string(model.EventSubmissionReviewed), gotEvent.Load())
	require.NoError(t, Verify(endpoint.Secret, gotSig.Load().(string), gotBody.Load().([]byte), DefaultTolerance))

	deliveries, err := repo.ListDeliveries(ctx, endpoint.ID, 10)
	require.NoError(t, err)
	assert.Equal(t, model.DeliveryStatusSuccess, deliveries[0].Status)
	assert.Equal(t, 1, deliveries[0].AttemptCount)
}

func TestIntegrationWorkerRetriesThenExhausts(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"ascii", "nope"},
		{"multibyte past limit", strings.Repeat("€", 300)},
		{"invalid utf8", "\xff\xfe broken \xff"},
		{"invalid utf8 past limit", strings.Repeat("\xff€", 400)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, repo := newWebhookEnv(t)

			var calls atomic.Int32
			receiver := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				w.WriteHeader(http.StatusInternalServerError)
				_, _ = io.WriteString(w, tt.body)
			}))
			defer receiver.Close()

			endpoint := mustEndpoint(t, ctx, repo, receiver.URL, model.EventSubmissionReviewed)
			_, err := NewPublisher(repo, nil).Publish(ctx, testEvent("evt-fail"))
			require.NoError(t, err)

			w := NewWorker(repo, nil, nil)
			clock := time.Now().UTC()
			w.now = func() time.Time { return clock }

			for i := 1; i <= DefaultMaxAttempts; i++ {
				n, err := w.ProcessOnce(ctx)
				require.NoError(t, err)
				require.Equal(t, 1, n, "attempt %d", i)

				deliveries, err := repo.ListDeliveries(ctx, endpoint.ID, 1)
				require.NoError(t, err)
				d := deliveries[0]
				require.Equal(t, i, d.AttemptCount, "attempt_count must advance")
				require.NotNil(t, d.LastHTTPStatus)
				assert.Equal(t, http.StatusInternalServerError, *d.LastHTTPStatus)
				assert.True(t, utf8.ValidString(d.LastError), "last_error %q", d.LastError)
				assert.LessOrEqual(t, len(d.LastError), maxErrorLength)
				assert.True(t, strings.HasPrefix(d.LastError, "HTTP 500: "))
				if i < DefaultMaxAttempts {
					assert.Equal(t, model.DeliveryStatusFailed, d.Status)
					assert.True(t, d.NextRetryAt.After(clock))
				} else {
					assert.Equal(t, model.DeliveryStatusExhausted, d.Status)
				}

				// Jump past the scheduled retry and any lease.
				clock = clock.Add(15 * time.Hour)
			}

			n, err := w.ProcessOnce(ctx)
			require.NoError(t, err)
			assert.Zero(t, n)
			assert.Equal(t, int32(DefaultMaxAttempts), calls.Load())
		})
	}
}

func TestIntegrationDeleteEndpoint(t *testing.T) {
	ctx, repo := newWebhookEnv(t)
	svc := NewEndpointService(repo, URLPolicy{AllowInsecure: true}, nil)

	e := mustEndpoint(t, ctx, repo, "http://127.0.0.1:1/x", model.EventBillingRecorded)
	require.NoError(t, svc.Delete(ctx, e.ID))
	assert.ErrorIs(t, svc.Delete(ctx, e.ID), ErrEndpointNotFound)

	list, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}
