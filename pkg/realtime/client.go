package realtime

import (
	"encoding/json"
	"time"

	"tradetalk/pkg/logger"
	"tradetalk/pkg/models"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
	pongWait   = 60 * time.Second
)

// Client is one websocket connection. A connection is anonymous until
// its register event binds it to an account room.
type Client struct {
	ID        string
	AccountID string

	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

func newClient(h *Hub, conn *websocket.Conn) *Client {
	return &Client{
		ID:   uuid.NewString(),
		hub:  h,
		conn: conn,
		send: make(chan []byte, h.sendBuffer),
	}
}

// enqueue hands payload to the write pump. A full buffer drops the
// event: delivery is at-most-once and the durable store self-heals on
// the next fetch.
func (c *Client) enqueue(payload []byte) bool {
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// readPump consumes inbound events until the connection drops, then
// unregisters the client.
func (c *Client) readPump() {
	defer func() {
		c.hub.dropClient(c)
		_ = c.conn.Close()
	}()
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				logger.Warn("ws_read_error", "conn", c.ID, "error", err)
			}
			return
		}
		var ev models.Event
		if err := json.Unmarshal(raw, &ev); err != nil {
			logger.Debug("ws_invalid_event", "conn", c.ID, "error", err)
			continue
		}
		c.handleEvent(ev)
	}
}

func (c *Client) handleEvent(ev models.Event) {
	switch ev.Type {
	case models.EventRegister:
		var p models.RegisterPayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil || p.AccountID == "" {
			return
		}
		c.hub.bind(c, p.AccountID)

	case models.EventJoinConversation:
		var p models.ConversationPayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil || p.ConversationID == "" {
			return
		}
		c.hub.JoinConversation(c, p.ConversationID)

	case models.EventLeaveConversation:
		var p models.ConversationPayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil || p.ConversationID == "" {
			return
		}
		c.hub.LeaveConversation(c, p.ConversationID)

	case models.EventTyping:
		var p models.TypingPayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil || p.ConversationID == "" {
			return
		}
		// the connection's bound account is authoritative, not the payload
		if c.AccountID == "" {
			return
		}
		p.AccountID = c.AccountID
		c.hub.PublishTyping(p.ConversationID, p.AccountID, p.IsTyping)

	default:
		logger.Debug("ws_unknown_event", "conn", c.ID, "type", ev.Type)
	}
}

// writePump drains the send queue and keeps the connection alive with
// pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
