package events

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/voicescript/collector/internal/model"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxMessageSize = 4096
	sendBuffer     = 256
)

var errClientClosed = errors.New("websocket client closed")

// Client is one websocket connection subscribed to the hub.
type Client struct {
	id        string
	hub       *Hub
	conn      *websocket.Conn
	send      chan []byte
	principal *model.Principal
}

// NewClient wraps an upgraded connection for p.
func NewClient(hub *Hub, conn *websocket.Conn, p *model.Principal) *Client {
	return &Client{
		id:        uuid.NewString(),
		hub:       hub,
		conn:      conn,
		send:      make(chan []byte, sendBuffer),
		principal: p,
	}
}

// wants reports whether the client should see e. Reviewers and admins see
// every event; providers only their own.
func (c *Client) wants(e *model.Event) bool {
	if c.principal.HasRole(model.RoleAdmin, model.RoleReviewer) {
		return true
	}
	return e.UserID != nil && *e.UserID == c.principal.UserID
}

// Serve registers the client and pumps frames until either side closes.
func (c *Client) Serve(ctx context.Context) error {
	if err := c.hub.add(c); err != nil {
		_ = c.conn.Close()
		return err
	}
	defer c.hub.remove(c)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(c.readPump)
	g.Go(func() error { return c.writePump(ctx) })

	err := g.Wait()
	if errors.Is(err, errClientClosed) {
		return nil
	}
	return err
}

// readPump discards inbound frames; it only exists to process control
// frames and notice disconnects.
func (c *Client) readPump() error {
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Warn("websocket read error", "client_id", c.id, "error", err)
			}
			return errClientClosed
		}
	}
}

func (c *Client) writePump(ctx context.Context) error {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return errClientClosed

		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return errClientClosed
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return err
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return err
			}
		}
	}
}
