// Package metrics provides lightweight hooks for instrumentation.
package metrics

// Recorder captures metric events for the application.
// Implementations can expose these to Prometheus, StatsD, etc.
type Recorder interface {
	// Collection metrics
	IncSubmissionCreated(kind string) // kind: "recording", "text" or "field"
	IncSubmissionReviewed(status string)
	AddBillingAmount(billingType string, cents int64)
	IncScriptsImported(n int)

	// Auth metrics
	IncLogin(method, result string)

	// Event pipeline metrics
	IncEventPublished(status string) // status: "success" or "dropped"
	IncEventProcessed(status string) // status: "success", "failed", "skipped"
	SetEventQueueDepth(depth int64)
	IncWebhookDelivery(status string)
	SetWebsocketClients(n int64)
}

// Snapshotter exposes a snapshot of current metrics.
type Snapshotter interface {
	Snapshot() Snapshot
}
