// Package realtime is the delivery channel: a presence-aware hub with
// per-account rooms for direct delivery and per-conversation rooms for
// typing broadcast. Delivery is fire-and-forget; the durable store is
// the source of truth and a missed event is reconciled on the next
// REST fetch.
package realtime

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"tradetalk/pkg/logger"
	"tradetalk/pkg/metrics"
	"tradetalk/pkg/models"

	"github.com/gorilla/websocket"
)

const defaultSendBuffer = 256

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// origin policy is enforced by the auth gateway in front
		return true
	},
}

// Options tunes the hub.
type Options struct {
	// TypingTTL bounds how long a typing indicator may stay set without
	// a refresh before the hub clears it itself.
	TypingTTL time.Duration
	// SendBuffer is the per-connection outbound queue length.
	SendBuffer int
}

// Hub owns all live connections, the presence registry and the typing
// state.
type Hub struct {
	mu sync.RWMutex
	// clients maps account ID -> connection ID -> client. One account
	// may hold several connections (tabs, devices); all of them form
	// the account's room.
	clients map[string]map[string]*Client
	// convRooms maps conversation ID -> connection ID -> client, used
	// only for typing broadcast.
	convRooms map[string]map[string]*Client

	presence *Registry
	typing   *typingState

	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	sendBuffer int
}

// NewHub constructs a hub; call Run in a goroutine to start it.
func NewHub(opts Options) *Hub {
	buf := opts.SendBuffer
	if buf <= 0 {
		buf = defaultSendBuffer
	}
	h := &Hub{
		clients:    map[string]map[string]*Client{},
		convRooms:  map[string]map[string]*Client{},
		presence:   NewRegistry(),
		register:   make(chan *Client),
		unregister: make(chan *Client, 16),
		done:       make(chan struct{}),
		sendBuffer: buf,
	}
	h.typing = newTypingState(h, opts.TypingTTL)
	return h
}

// Presence exposes the registry for read-only use by handlers.
func (h *Hub) Presence() *Registry { return h.presence }

// Run processes connection lifecycle events until Stop is called.
func (h *Hub) Run() {
	for {
		select {
		case c := <-h.register:
			h.addClient(c)
		case c := <-h.unregister:
			h.removeClient(c)
		case <-h.done:
			return
		}
	}
}

// Stop terminates the Run loop.
func (h *Hub) Stop() { close(h.done) }

// dropClient hands a finished connection to the Run loop. Once the hub
// has stopped nobody drains unregister, so give up instead of blocking
// a late readPump exit forever.
func (h *Hub) dropClient(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// ServeWS upgrades an HTTP request and starts the connection pumps.
// The connection stays anonymous until its register event arrives.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("ws_upgrade_failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	c := newClient(h, conn)
	h.register <- c
	go c.writePump()
	go c.readPump()
}

func (h *Hub) addClient(c *Client) {
	metrics.WSConnections.Inc()
	logger.Info("ws_connected", "conn", c.ID)
}

// bind attaches a connection to its account room after the register
// event. First connection for an account flips presence to online. A
// re-register for a different account detaches the connection from its
// old room first, so the old room cannot retain a stale client.
func (h *Hub) bind(c *Client, accountID string) {
	h.mu.Lock()
	var prev string
	var prevLast bool
	if c.AccountID != "" && c.AccountID != accountID {
		prev = c.AccountID
		if room, ok := h.clients[prev]; ok {
			delete(room, c.ID)
			if len(room) == 0 {
				delete(h.clients, prev)
				prevLast = true
			}
		}
	}
	c.AccountID = accountID
	room, ok := h.clients[accountID]
	if !ok {
		room = map[string]*Client{}
		h.clients[accountID] = room
	}
	first := len(room) == 0
	room[c.ID] = c
	h.mu.Unlock()

	if prevLast {
		h.presence.Clear(prev)
		h.typing.clearAccount(prev)
		h.broadcastPresence(prev, false)
	}
	h.presence.Set(accountID, c.ID)
	logger.Info("ws_registered", "conn", c.ID, "account", accountID)
	if first {
		h.broadcastPresence(accountID, true)
	}
}

func (h *Hub) removeClient(c *Client) {
	h.mu.Lock()
	var last bool
	if c.AccountID != "" {
		if room, ok := h.clients[c.AccountID]; ok {
			if _, ok := room[c.ID]; ok {
				delete(room, c.ID)
				close(c.send)
			}
			if len(room) == 0 {
				delete(h.clients, c.AccountID)
				last = true
			}
		}
	}
	for convID, room := range h.convRooms {
		delete(room, c.ID)
		if len(room) == 0 {
			delete(h.convRooms, convID)
		}
	}
	h.mu.Unlock()

	metrics.WSConnections.Dec()
	logger.Info("ws_disconnected", "conn", c.ID, "account", c.AccountID)
	if last {
		h.presence.Clear(c.AccountID)
		h.typing.clearAccount(c.AccountID)
		h.broadcastPresence(c.AccountID, false)
	}
}

// JoinConversation adds the connection to a conversation room. The room
// scopes typing broadcast only; message delivery always targets account
// rooms so a participant receives messages while outside the view.
func (h *Hub) JoinConversation(c *Client, convID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room, ok := h.convRooms[convID]
	if !ok {
		room = map[string]*Client{}
		h.convRooms[convID] = room
	}
	room[c.ID] = c
}

// LeaveConversation removes the connection from a conversation room.
func (h *Hub) LeaveConversation(c *Client, convID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if room, ok := h.convRooms[convID]; ok {
		delete(room, c.ID)
		if len(room) == 0 {
			delete(h.convRooms, convID)
		}
	}
}

// PublishMessage emits newMessage to both account rooms. The sender's
// room is included so the sender's other tabs observe the echo.
func (h *Hub) PublishMessage(msg models.Message) {
	data, err := marshalEvent(models.EventNewMessage, msg)
	if err != nil {
		logger.Error("event_marshal_failed", "type", models.EventNewMessage, "error", err)
		return
	}
	h.sendToAccount(msg.SenderAccount, data)
	if msg.RecipientAccount != msg.SenderAccount {
		h.sendToAccount(msg.RecipientAccount, data)
	}
	metrics.EventsPublished.WithLabelValues(models.EventNewMessage).Inc()
}

// PublishRead emits messageRead to the message sender's room only, to
// update their receipt UI.
func (h *Hub) PublishRead(messageID, convID, readerAccount, senderAccount string) {
	data, err := marshalEvent(models.EventMessageRead, models.ReadPayload{
		MessageID:      messageID,
		ConversationID: convID,
		ReaderID:       readerAccount,
	})
	if err != nil {
		logger.Error("event_marshal_failed", "type", models.EventMessageRead, "error", err)
		return
	}
	h.sendToAccount(senderAccount, data)
	metrics.EventsPublished.WithLabelValues(models.EventMessageRead).Inc()
}

// PublishTyping broadcasts the indicator to the conversation room,
// excluding the typist's own connections, and arms the TTL that clears
// a stale indicator when the isTyping=false event never arrives.
func (h *Hub) PublishTyping(convID, accountID string, isTyping bool) {
	h.typing.set(convID, accountID, isTyping)
	h.emitTyping(convID, accountID, isTyping)
}

func (h *Hub) emitTyping(convID, accountID string, isTyping bool) {
	data, err := marshalEvent(models.EventTyping, models.TypingPayload{
		ConversationID: convID,
		AccountID:      accountID,
		IsTyping:       isTyping,
	})
	if err != nil {
		return
	}
	h.mu.RLock()
	for _, c := range h.convRooms[convID] {
		if c.AccountID == accountID {
			continue
		}
		if !c.enqueue(data) {
			metrics.EventsDropped.Inc()
		}
	}
	h.mu.RUnlock()
	metrics.EventsPublished.WithLabelValues(models.EventTyping).Inc()
}

// broadcastPresence announces an online/offline transition to every
// connected client except the affected account's own connections.
func (h *Hub) broadcastPresence(accountID string, online bool) {
	data, err := marshalEvent(models.EventOnlineStatus, models.OnlineStatusPayload{
		AccountID: accountID,
		IsOnline:  online,
	})
	if err != nil {
		return
	}
	h.mu.RLock()
	for acct, room := range h.clients {
		if acct == accountID {
			continue
		}
		for _, c := range room {
			if !c.enqueue(data) {
				metrics.EventsDropped.Inc()
			}
		}
	}
	h.mu.RUnlock()
	metrics.EventsPublished.WithLabelValues(models.EventOnlineStatus).Inc()
}

// sendToAccount enqueues while holding the read lock: send channels are
// closed under the write lock in removeClient, so a close can never
// interleave with an enqueue. enqueue never blocks, keeping the
// critical section short.
func (h *Hub) sendToAccount(accountID string, data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients[accountID] {
		if !c.enqueue(data) {
			metrics.EventsDropped.Inc()
		}
	}
}

func marshalEvent(typ string, payload interface{}) ([]byte, error) {
	ev, err := models.NewEvent(typ, payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(ev)
}
