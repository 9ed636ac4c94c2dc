package models

// ConversationProjection is the computed list-view entry for one
// conversation from a caller's perspective. It is never stored.
type ConversationProjection struct {
	ConversationID string   `json:"conversation_id"`
	Other          Resolved `json:"other"`
	LastMessage    *Message `json:"last_message,omitempty"`
	UnreadCount    int      `json:"unread_count"`
	// Participants lists both stored references for the thread.
	Participants []Participant `json:"participants"`
}

// Presence is the ephemeral connection record kept per account by the
// realtime hub. It is never persisted.
type Presence struct {
	AccountID    string `json:"account_id"`
	ConnectionID string `json:"connection_id"`
	LastSeen     int64  `json:"last_seen"`
}
