// Package client is the Go client for a tradetalk server: thin REST
// wrappers plus a websocket dialer for the realtime channel. Callers
// authenticate with an API key and a signed account identity; Sign
// produces the signature from a shared backend key.
package client

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"tradetalk/pkg/models"

	"github.com/gorilla/websocket"
)

// Client talks to one tradetalk server on behalf of one account.
type Client struct {
	BaseURL   string
	APIKey    string
	AccountID string
	// Role selects the send identity: "" or "user" sends as the
	// account, "contractor" as the owned contractor profile.
	Role      string
	Signature string

	HTTP *http.Client
}

// New builds a client. signingKey is the shared secret the server
// verifies caller signatures with; pass "" to skip signing (backend
// keys may authenticate without one).
func New(baseURL, apiKey, accountID, role, signingKey string) *Client {
	c := &Client{
		BaseURL:   strings.TrimRight(baseURL, "/"),
		APIKey:    apiKey,
		AccountID: accountID,
		Role:      role,
		HTTP:      &http.Client{Timeout: 15 * time.Second},
	}
	if signingKey != "" {
		c.Signature = Sign(signingKey, accountID)
	}
	return c
}

// Sign computes the hex HMAC-SHA256 signature of an account ID.
func Sign(key, accountID string) string {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write([]byte(accountID))
	return hex.EncodeToString(mac.Sum(nil))
}

func (c *Client) headers(h http.Header) {
	h.Set("X-API-Key", c.APIKey)
	h.Set("X-User-ID", c.AccountID)
	if c.Role != "" {
		h.Set("X-User-Role", c.Role)
	}
	if c.Signature != "" {
		h.Set("X-User-Signature", c.Signature)
	}
}

func (c *Client) do(method, path string, body interface{}, out interface{}) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, c.BaseURL+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.headers(req.Header)
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		var e struct {
			Error string `json:"error"`
		}
		data, _ := io.ReadAll(resp.Body)
		if jsonErr := json.Unmarshal(data, &e); jsonErr == nil && e.Error != "" {
			return fmt.Errorf("%s %s: %d: %s", method, path, resp.StatusCode, e.Error)
		}
		return fmt.Errorf("%s %s: %d", method, path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// SendMessage posts a message to the given recipient reference.
func (c *Client) SendMessage(recipient models.Participant, text string) (models.Message, error) {
	var m models.Message
	err := c.do(http.MethodPost, "/v1/messages", map[string]interface{}{
		"recipient": recipient,
		"text":      text,
	}, &m)
	return m, err
}

// Conversations fetches the caller's inbox projections.
func (c *Client) Conversations() ([]models.ConversationProjection, error) {
	var out []models.ConversationProjection
	err := c.do(http.MethodGet, "/v1/messages/conversations", nil, &out)
	return out, err
}

// ConversationMessages fetches the history with otherRef. peek=false
// marks inbound unread messages as read on the server.
func (c *Client) ConversationMessages(otherRef string, peek bool) ([]models.Message, error) {
	path := "/v1/messages/conversation/" + url.PathEscape(otherRef)
	if peek {
		path += "?peek=1"
	}
	var out []models.Message
	err := c.do(http.MethodGet, path, nil, &out)
	return out, err
}

// MarkConversationRead explicitly flips the unread inbound messages of
// the conversation with otherRef.
func (c *Client) MarkConversationRead(otherRef string) (int, error) {
	var out struct {
		Read int `json:"read"`
	}
	err := c.do(http.MethodPost, "/v1/messages/conversation/"+url.PathEscape(otherRef)+"/read", nil, &out)
	return out.Read, err
}

// MarkMessageRead flips one message's read flag.
func (c *Client) MarkMessageRead(messageID string) (models.Message, error) {
	var m models.Message
	err := c.do(http.MethodPut, "/v1/messages/"+url.PathEscape(messageID)+"/read", nil, &m)
	return m, err
}

// Presence reports whether an account is online.
func (c *Client) Presence(accountID string) (bool, error) {
	var out struct {
		Online bool `json:"online"`
	}
	err := c.do(http.MethodGet, "/v1/presence/"+url.PathEscape(accountID), nil, &out)
	return out.Online, err
}

// Conn is a live realtime connection.
type Conn struct {
	ws *websocket.Conn
}

// Dial opens the realtime channel and registers the client's account.
func (c *Client) Dial() (*Conn, error) {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u.Path = "/v1/ws"

	h := http.Header{}
	c.headers(h)
	ws, _, err := websocket.DefaultDialer.Dial(u.String(), h)
	if err != nil {
		return nil, err
	}
	conn := &Conn{ws: ws}
	if err := conn.Send(models.EventRegister, models.RegisterPayload{AccountID: c.AccountID}); err != nil {
		_ = ws.Close()
		return nil, err
	}
	return conn, nil
}

// Send emits one event to the server.
func (c *Conn) Send(typ string, payload interface{}) error {
	ev, err := models.NewEvent(typ, payload)
	if err != nil {
		return err
	}
	return c.ws.WriteJSON(ev)
}

// Join scopes the connection into a conversation's typing room.
func (c *Conn) Join(convID string) error {
	return c.Send(models.EventJoinConversation, models.ConversationPayload{ConversationID: convID})
}

// Leave exits a conversation's typing room.
func (c *Conn) Leave(convID string) error {
	return c.Send(models.EventLeaveConversation, models.ConversationPayload{ConversationID: convID})
}

// Typing publishes a typing indicator for convID.
func (c *Conn) Typing(convID string, isTyping bool) error {
	return c.Send(models.EventTyping, models.TypingPayload{ConversationID: convID, IsTyping: isTyping})
}

// Next blocks until the next server event arrives.
func (c *Conn) Next() (models.Event, error) {
	var ev models.Event
	err := c.ws.ReadJSON(&ev)
	return ev, err
}

// SetReadDeadline bounds the next Read call.
func (c *Conn) SetReadDeadline(t time.Time) error {
	return c.ws.SetReadDeadline(t)
}

// Close tears the connection down.
func (c *Conn) Close() error {
	return c.ws.Close()
}
