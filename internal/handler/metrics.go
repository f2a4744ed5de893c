package handler

import (
	"fmt"
	"net/http"

	"github.com/voicescript/collector/internal/metrics"
)

// MetricsHandler exposes in-memory metrics.
type MetricsHandler struct {
	snapshotter metrics.Snapshotter
}

// NewMetricsHandler creates a new MetricsHandler.
func NewMetricsHandler(snapshotter metrics.Snapshotter) *MetricsHandler {
	return &MetricsHandler{snapshotter: snapshotter}
}

// Metrics returns metrics in Prometheus exposition format.
func (h *MetricsHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	if h.snapshotter == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	snap := h.snapshotter.Snapshot()

	w.Header().Set("Content-Type", "text/plain; version=0.0.4")

	writeVec(w, "voicescript_submissions_created_total", snap.SubmissionsCreated)
	writeVec(w, "voicescript_submissions_reviewed_total", snap.SubmissionsReviewed)
	writeVec(w, "voicescript_billing_cents_total", snap.BillingCents)
	writeMetric(w, "voicescript_scripts_imported_total %d\n", snap.ScriptsImported)
	writeVec(w, "voicescript_logins_total", snap.Logins)

	writeVec(w, "voicescript_events_published_total", snap.EventsPublished)
	writeVec(w, "voicescript_events_processed_total", snap.EventsProcessed)
	writeMetric(w, "voicescript_events_queue_depth %d\n", snap.EventQueueDepth)
	writeVec(w, "voicescript_webhook_deliveries_total", snap.WebhookDeliveries)
	writeMetric(w, "voicescript_websocket_clients %d\n", snap.WebsocketClients)
}

func writeVec(w http.ResponseWriter, name string, values []metrics.LabeledValue) {
	for _, v := range values {
		writeMetric(w, "%s{%s} %d\n", name, v.Labels, v.Value)
	}
}

func writeMetric(w http.ResponseWriter, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format, args...)
}
