package models

import "strings"

// Conversation is the single thread record between two parties. It is
// stored under its PairKey, so at most one conversation can exist per
// unordered pair of accounts regardless of whether either side was
// addressed by account ID or by contractor profile ID.
type Conversation struct {
	ID string `json:"id"`
	// PairKey is the order-independent pair of underlying account IDs.
	PairKey string `json:"pair_key"`
	// A and B keep the references as first used, for display fallback.
	A        Participant `json:"a"`
	B        Participant `json:"b"`
	AccountA string      `json:"account_a"`
	AccountB string      `json:"account_b"`
	// LastMessageID points at the newest entry in the log.
	LastMessageID string `json:"last_message_id,omitempty"`
	CreatedTS     int64  `json:"created_ts"`
	UpdatedTS     int64  `json:"updated_ts"`
}

// OtherAccount returns the counterpart account for the given caller
// account, or empty if the caller is not a party.
func (c Conversation) OtherAccount(account string) string {
	switch account {
	case c.AccountA:
		return c.AccountB
	case c.AccountB:
		return c.AccountA
	}
	return ""
}

// HasAccount reports whether the account is one of the two parties.
func (c Conversation) HasAccount(account string) bool {
	return account == c.AccountA || account == c.AccountB
}

// PairKey computes the canonical order-independent key for two account
// IDs. The NUL separator cannot appear in IDs, so the key is unique per
// unordered pair.
func PairKey(accountA, accountB string) string {
	if strings.Compare(accountA, accountB) > 0 {
		accountA, accountB = accountB, accountA
	}
	return accountA + "\x00" + accountB
}
