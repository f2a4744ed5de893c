package metrics

// NoopRecorder implements Recorder with no-op methods.
type NoopRecorder struct{}

// NewNoop returns a Recorder that discards all metrics.
func NewNoop() Recorder {
	return &NoopRecorder{}
}

func (n *NoopRecorder) IncSubmissionCreated(kind string)                 {}
func (n *NoopRecorder) IncSubmissionReviewed(status string)              {}
func (n *NoopRecorder) AddBillingAmount(billingType string, cents int64) {}
func (n *NoopRecorder) IncScriptsImported(count int)                     {}
func (n *NoopRecorder) IncLogin(method, result string)                   {}
func (n *NoopRecorder) IncEventPublished(status string)                  {}
func (n *NoopRecorder) IncEventProcessed(status string)                  {}
func (n *NoopRecorder) SetEventQueueDepth(depth int64)                   {}
func (n *NoopRecorder) IncWebhookDelivery(status string)                 {}
func (n *NoopRecorder) SetWebsocketClients(count int64)                  {}
