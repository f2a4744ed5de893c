package metrics

import (
	"sort"
	"sync"
	"sync/atomic"
)

// LabeledValue is one series of a labeled counter.
type LabeledValue struct {
	Labels string // e.g. method="password",result="success"
	Value  uint64
}

// Snapshot captures current in-memory counters.
type Snapshot struct {
	SubmissionsCreated  []LabeledValue
	SubmissionsReviewed []LabeledValue
	BillingCents        []LabeledValue
	ScriptsImported     uint64
	Logins              []LabeledValue
	EventsPublished     []LabeledValue
	EventsProcessed     []LabeledValue
	EventQueueDepth     int64
	WebhookDeliveries   []LabeledValue
	WebsocketClients    int64
}

// counterVec is a label-keyed set of counters.
type counterVec struct {
	mu     sync.Mutex
	values map[string]uint64
}

func (c *counterVec) add(labels string, n uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.values == nil {
		c.values = make(map[string]uint64)
	}
	c.values[labels] += n
}

func (c *counterVec) snapshot() []LabeledValue {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]LabeledValue, 0, len(c.values))
	for k, v := range c.values {
		out = append(out, LabeledValue{Labels: k, Value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Labels < out[j].Labels })
	return out
}

// Get returns the value for an exact label string, or zero.
func Get(values []LabeledValue, labels string) uint64 {
	for _, v := range values {
		if v.Labels == labels {
			return v.Value
		}
	}
	return 0
}

// InMemoryRecorder stores metrics in memory.
type InMemoryRecorder struct {
	submissionsCreated  counterVec
	submissionsReviewed counterVec
	billingCents        counterVec
	scriptsImported     uint64
	logins              counterVec
	eventsPublished     counterVec
	eventsProcessed     counterVec
	eventQueueDepth     int64
	webhookDeliveries   counterVec
	websocketClients    int64
}

// NewInMemory returns a Recorder that stores counters in memory.
func NewInMemory() *InMemoryRecorder {
	return &InMemoryRecorder{}
}

// Snapshot returns a copy of the counters.
func (m *InMemoryRecorder) Snapshot() Snapshot {
	return Snapshot{
		SubmissionsCreated:  m.submissionsCreated.snapshot(),
		SubmissionsReviewed: m.submissionsReviewed.snapshot(),
		BillingCents:        m.billingCents.snapshot(),
		ScriptsImported:     atomic.LoadUint64(&m.scriptsImported),
		Logins:              m.logins.snapshot(),
		EventsPublished:     m.eventsPublished.snapshot(),
		EventsProcessed:     m.eventsProcessed.snapshot(),
		EventQueueDepth:     atomic.LoadInt64(&m.eventQueueDepth),
		WebhookDeliveries:   m.webhookDeliveries.snapshot(),
		WebsocketClients:    atomic.LoadInt64(&m.websocketClients),
	}
}

func label(name, value string) string {
	return name + `="` + value + `"`
}

// IncSubmissionCreated counts a new submission by kind.
func (m *InMemoryRecorder) IncSubmissionCreated(kind string) {
	m.submissionsCreated.add(label("kind", kind), 1)
}

// IncSubmissionReviewed counts a review outcome.
func (m *InMemoryRecorder) IncSubmissionReviewed(status string) {
	m.submissionsReviewed.add(label("status", status), 1)
}

// AddBillingAmount accumulates billed cents.
func (m *InMemoryRecorder) AddBillingAmount(billingType string, cents int64) {
	if cents <= 0 {
		return
	}
	m.billingCents.add(label("type", billingType), uint64(cents))
}

// IncScriptsImported adds to the bulk import counter.
func (m *InMemoryRecorder) IncScriptsImported(n int) {
	if n > 0 {
		atomic.AddUint64(&m.scriptsImported, uint64(n))
	}
}

// IncLogin counts login attempts.
func (m *InMemoryRecorder) IncLogin(method, result string) {
	m.logins.add(label("method", method)+","+label("result", result), 1)
}

// IncEventPublished counts stream publishes.
func (m *InMemoryRecorder) IncEventPublished(status string) {
	m.eventsPublished.add(label("status", status), 1)
}

// IncEventProcessed counts worker outcomes.
func (m *InMemoryRecorder) IncEventProcessed(status string) {
	m.eventsProcessed.add(label("status", status), 1)
}

// SetEventQueueDepth records the stream length.
func (m *InMemoryRecorder) SetEventQueueDepth(depth int64) {
	atomic.StoreInt64(&m.eventQueueDepth, depth)
}

// IncWebhookDelivery counts delivery attempts by outcome.
func (m *InMemoryRecorder) IncWebhookDelivery(status string) {
	m.webhookDeliveries.add(label("status", status), 1)
}

// SetWebsocketClients records connected websocket clients.
func (m *InMemoryRecorder) SetWebsocketClients(n int64) {
	atomic.StoreInt64(&m.websocketClients, n)
}
