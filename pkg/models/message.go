package models

// Message is one entry in a conversation's append-only log. A message
// is immutable once written except for the Read flag, which moves
// false->true exactly once and only on behalf of the recipient.
type Message struct {
	ID             string      `json:"id"`
	ConversationID string      `json:"conversation_id"`
	Sender         Participant `json:"sender"`
	Recipient      Participant `json:"recipient"`
	// Account IDs backing each end; these address delivery rooms.
	SenderAccount    string `json:"sender_account"`
	RecipientAccount string `json:"recipient_account"`
	// Display names resolved at append time so a live event can render
	// without a directory round-trip.
	SenderName    string `json:"sender_name,omitempty"`
	RecipientName string `json:"recipient_name,omitempty"`
	Text          string `json:"text"`
	Read          bool   `json:"read"`
	// TS is unix nanoseconds; Seq breaks ties when two appends share a
	// nanosecond. Together they define log order.
	TS  int64  `json:"ts"`
	Seq uint64 `json:"seq"`
}
