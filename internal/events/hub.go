package events

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync/atomic"

	"github.com/voicescript/collector/internal/metrics"
	"github.com/voicescript/collector/internal/model"
)

// ErrHubClosed is returned once the hub has stopped.
var ErrHubClosed = errors.New("websocket hub closed")

// Message is the frame pushed to websocket clients.
type Message struct {
	Type  string       `json:"type"`
	Event *model.Event `json:"event,omitempty"`
}

type broadcast struct {
	event *model.Event
	data  []byte
}

// Hub fans events out to connected websocket clients. A single goroutine
// (Run) owns the client set.
type Hub struct {
	clients    map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	broadcast  chan broadcast
	done       chan struct{}
	count      atomic.Int64

	logger  *slog.Logger
	metrics metrics.Recorder
}

// NewHub creates a hub. Call Run to start it.
func NewHub(logger *slog.Logger, recorder metrics.Recorder) *Hub {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients:    make(map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan broadcast, 64),
		done:       make(chan struct{}),
		logger:     logger.With("component", "events.hub"),
		metrics:    recorder,
	}
}

// Run serves registrations and broadcasts until ctx is cancelled, then
// closes every client.
func (h *Hub) Run(ctx context.Context) error {
	defer func() {
		close(h.done)
		for c := range h.clients {
			h.drop(c)
		}
		h.logger.Info("websocket hub stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case c := <-h.register:
			h.clients[c] = struct{}{}
			h.updateCount()
			h.logger.Debug("client registered", "client_id", c.id, "user_id", c.principal.UserID)

		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				h.drop(c)
				h.logger.Debug("client unregistered", "client_id", c.id)
			}

		case b := <-h.broadcast:
			for c := range h.clients {
				if !c.wants(b.event) {
					continue
				}
				select {
				case c.send <- b.data:
				default:
					h.logger.Warn("dropping slow client", "client_id", c.id)
					h.drop(c)
				}
			}
		}
	}
}

// Name implements Sink.
func (h *Hub) Name() string { return "websocket" }

// Handle implements Sink by broadcasting the event.
func (h *Hub) Handle(ctx context.Context, event *model.Event) error {
	data, err := json.Marshal(Message{Type: "event", Event: event})
	if err != nil {
		return err
	}
	select {
	case h.broadcast <- broadcast{event: event, data: data}:
		return nil
	case <-h.done:
		// Nobody is listening once the hub stopped.
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	return int(h.count.Load())
}

func (h *Hub) add(c *Client) error {
	select {
	case h.register <- c:
		return nil
	case <-h.done:
		return ErrHubClosed
	}
}

func (h *Hub) remove(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

func (h *Hub) drop(c *Client) {
	delete(h.clients, c)
	close(c.send)
	h.updateCount()
}

func (h *Hub) updateCount() {
	n := int64(len(h.clients))
	h.count.Store(n)
	h.metrics.SetWebsocketClients(n)
}
