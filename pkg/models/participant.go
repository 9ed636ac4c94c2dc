package models

// Kind discriminates the two participant identities a message endpoint
// may carry. A contractor profile always maps back to exactly one
// owning account; realtime delivery is addressed by account ID only.
type Kind string

const (
	KindUser       Kind = "user"
	KindContractor Kind = "contractor"
)

// Participant is a tagged reference as stored on messages. ID is an
// account ID when Kind is "user" and a contractor profile ID when Kind
// is "contractor".
type Participant struct {
	Kind Kind   `json:"kind"`
	ID   string `json:"id"`
}

// Resolved is the resolver's expansion of a Participant reference:
// the canonical kind, the underlying account used for delivery rooms,
// and a display name for list views.
type Resolved struct {
	Kind        Kind   `json:"kind"`
	ID          string `json:"id"`
	AccountID   string `json:"account_id"`
	DisplayName string `json:"display_name"`
}

// Ref returns the stored reference form of a resolved identity.
func (r Resolved) Ref() Participant {
	return Participant{Kind: r.Kind, ID: r.ID}
}

// Account is a directory record for a person. Accounts address realtime
// rooms and presence.
type Account struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	CreatedTS   int64  `json:"created_ts,omitempty"`
}

// Contractor is a business-facing profile authored by an account.
type Contractor struct {
	ID           string `json:"id"`
	AccountID    string `json:"account_id"`
	BusinessName string `json:"business_name"`
	CreatedTS    int64  `json:"created_ts,omitempty"`
}
