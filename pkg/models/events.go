package models

import "encoding/json"

// Realtime wire events. The envelope carries a type tag and a raw
// payload; both directions use the same shape.
const (
	EventRegister          = "register"
	EventJoinConversation  = "joinConversation"
	EventLeaveConversation = "leaveConversation"
	EventTyping            = "typing"
	EventNewMessage        = "newMessage"
	EventMessageRead       = "messageRead"
	EventOnlineStatus      = "userOnlineStatus"
)

// Event is the websocket envelope.
type Event struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewEvent marshals payload into an envelope. Marshal failures are
// returned so callers can drop the event rather than emit garbage.
func NewEvent(typ string, payload interface{}) (Event, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{Type: typ, Payload: b}, nil
}

// RegisterPayload binds a connection to an account room.
type RegisterPayload struct {
	AccountID string `json:"accountId"`
}

// ConversationPayload scopes join/leave to a conversation room.
type ConversationPayload struct {
	ConversationID string `json:"conversationId"`
}

// TypingPayload is the ephemeral typing indicator, both directions.
type TypingPayload struct {
	ConversationID string `json:"conversationId"`
	AccountID      string `json:"userId"`
	IsTyping       bool   `json:"isTyping"`
}

// ReadPayload notifies a sender that the recipient read a message.
type ReadPayload struct {
	MessageID      string `json:"messageId"`
	ConversationID string `json:"conversationId"`
	ReaderID       string `json:"readerId"`
}

// OnlineStatusPayload announces a presence transition.
type OnlineStatusPayload struct {
	AccountID string `json:"userId"`
	IsOnline  bool   `json:"isOnline"`
}
