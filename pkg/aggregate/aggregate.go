// Package aggregate builds the conversation list view for a caller:
// one projection per counterpart with last message, unread count and
// the counterpart's resolved display identity.
package aggregate

import (
	"sort"

	"tradetalk/pkg/identity"
	"tradetalk/pkg/logger"
	"tradetalk/pkg/models"
	"tradetalk/pkg/store"
)

// ListConversations computes the projections for the given account.
// Conversations sharing a resolved counterpart collapse onto the
// earliest-created record; the store's pair-key upsert makes such
// fragments impossible for new writes, but feeds migrated from stores
// without that constraint may still carry them.
func ListConversations(callerAccount string) ([]models.ConversationProjection, error) {
	convs, err := store.ListConversationsForAccount(callerAccount)
	if err != nil {
		return nil, err
	}

	// group fragments by counterpart account, earliest created first
	byOther := map[string][]models.Conversation{}
	for _, c := range convs {
		other := c.OtherAccount(callerAccount)
		if other == "" {
			continue
		}
		byOther[other] = append(byOther[other], c)
	}

	out := []models.ConversationProjection{}
	for other, group := range byOther {
		sort.Slice(group, func(i, j int) bool { return group[i].CreatedTS < group[j].CreatedTS })
		canonical := group[0]

		otherRef := canonical.B
		if canonical.AccountA == other {
			otherRef = canonical.A
		}
		resolved, err := identity.Resolve(otherRef)
		if err != nil {
			if store.IsNotFound(err) {
				// orphaned reference; drop the group rather than render
				// a thread nobody can address
				logger.Warn("conversation_counterpart_unresolved", "conversation", canonical.ID, "ref", otherRef.ID)
				continue
			}
			return nil, err
		}

		proj := models.ConversationProjection{
			ConversationID: canonical.ID,
			Other:          resolved,
			Participants:   []models.Participant{canonical.A, canonical.B},
		}
		for _, c := range group {
			last, err := store.LastMessage(c.ID)
			if err != nil {
				if store.IsNotFound(err) {
					continue
				}
				return nil, err
			}
			if proj.LastMessage == nil || newerThan(last, *proj.LastMessage) {
				m := last
				proj.LastMessage = &m
			}
			n, err := store.UnreadCount(c.ID, callerAccount)
			if err != nil {
				return nil, err
			}
			proj.UnreadCount += n
		}
		out = append(out, proj)
	}

	sort.Slice(out, func(i, j int) bool {
		ti, tj := lastTS(out[i]), lastTS(out[j])
		if ti != tj {
			return ti > tj
		}
		return out[i].ConversationID < out[j].ConversationID
	})
	return out, nil
}

// newerThan orders messages by (TS, Seq), the store's append order.
func newerThan(a, b models.Message) bool {
	if a.TS != b.TS {
		return a.TS > b.TS
	}
	return a.Seq > b.Seq
}

func lastTS(p models.ConversationProjection) int64 {
	if p.LastMessage == nil {
		return 0
	}
	return p.LastMessage.TS
}
