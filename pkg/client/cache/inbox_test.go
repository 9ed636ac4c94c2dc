package cache

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"tradetalk/pkg/models"

	"github.com/stretchr/testify/require"
)

func newTestInbox(t *testing.T, account string, opts Options) *Inbox {
	t.Helper()
	in, err := NewInbox(account, opts)
	require.NoError(t, err)
	return in
}

func msg(id, conv, from, to, text string, ts int64) models.Message {
	return models.Message{
		ID:               id,
		ConversationID:   conv,
		SenderAccount:    from,
		RecipientAccount: to,
		Sender:           models.Participant{Kind: models.KindUser, ID: from},
		Recipient:        models.Participant{Kind: models.KindUser, ID: to},
		Text:             text,
		TS:               ts,
	}
}

func event(t *testing.T, typ string, payload interface{}) models.Event {
	t.Helper()
	ev, err := models.NewEvent(typ, payload)
	require.NoError(t, err)
	return ev
}

func TestApplyHistoryAndOrdering(t *testing.T) {
	in := newTestInbox(t, "acct-a", Options{})
	other := models.Resolved{Kind: models.KindUser, ID: "acct-b", AccountID: "acct-b", DisplayName: "Bob"}

	in.ApplyHistory(other, []models.Message{
		msg("m2", "conv-1", "acct-b", "acct-a", "two", 200),
		msg("m1", "conv-1", "acct-a", "acct-b", "one", 100),
		msg("m3", "conv-1", "acct-b", "acct-a", "three", 300),
	})

	got := in.Messages("conv-1")
	require.Len(t, got, 3)
	require.Equal(t, "one", got[0].Text)
	require.Equal(t, "three", got[2].Text)

	convs := in.Conversations()
	require.Len(t, convs, 1)
	require.Equal(t, "m3", convs[0].LastMessage.ID)
	require.Equal(t, 2, convs[0].UnreadCount, "only inbound unread counts")
}

func TestLiveEventSynthesizesEntry(t *testing.T) {
	in := newTestInbox(t, "acct-a", Options{})

	m := msg("m1", "conv-9", "acct-b", "acct-a", "surprise", 100)
	m.SenderName = "Bob"
	in.ApplyEvent(event(t, models.EventNewMessage, m))

	convs := in.Conversations()
	require.Len(t, convs, 1)
	require.Equal(t, "acct-b", convs[0].Other.AccountID)
	require.Equal(t, "Bob", convs[0].Other.DisplayName, "counterpart rendered from the embedded names")
	require.Equal(t, 1, convs[0].UnreadCount)
}

func TestRestAndLiveInterleaveIsIdempotent(t *testing.T) {
	in := newTestInbox(t, "acct-a", Options{})
	other := models.Resolved{Kind: models.KindUser, ID: "acct-b", AccountID: "acct-b"}

	m := msg("m1", "conv-1", "acct-b", "acct-a", "hello", 100)
	in.ApplyEvent(event(t, models.EventNewMessage, m))
	in.ApplyHistory(other, []models.Message{m})
	in.ApplyEvent(event(t, models.EventNewMessage, m))

	require.Len(t, in.Messages("conv-1"), 1)
	require.Equal(t, 1, in.Conversations()[0].UnreadCount)
}

func TestReadFlagIsMonotonic(t *testing.T) {
	in := newTestInbox(t, "acct-a", Options{})
	other := models.Resolved{Kind: models.KindUser, ID: "acct-b", AccountID: "acct-b"}

	sent := msg("m1", "conv-1", "acct-a", "acct-b", "hi", 100)
	in.ApplyHistory(other, []models.Message{sent})

	in.ApplyEvent(event(t, models.EventMessageRead, models.ReadPayload{
		MessageID: "m1", ConversationID: "conv-1", ReaderID: "acct-b",
	}))
	require.True(t, in.Messages("conv-1")[0].Read)

	// a replayed unread copy must not clear the observed read
	in.ApplyHistory(other, []models.Message{sent})
	require.True(t, in.Messages("conv-1")[0].Read)
}

func TestFragmentConversationsCollapse(t *testing.T) {
	in := newTestInbox(t, "acct-a", Options{})
	byAccount := models.Resolved{Kind: models.KindUser, ID: "acct-b", AccountID: "acct-b", DisplayName: "Bob"}
	byProfile := models.Resolved{Kind: models.KindContractor, ID: "ctr-b", AccountID: "acct-b", DisplayName: "Bob Plumbing"}

	// two server-side conversation IDs for the same counterpart account
	in.ApplyHistory(byAccount, []models.Message{msg("m1", "conv-old", "acct-a", "acct-b", "first", 100)})
	in.ApplyHistory(byProfile, []models.Message{msg("m2", "conv-dup", "acct-b", "acct-a", "second", 200)})

	convs := in.Conversations()
	require.Len(t, convs, 1, "same counterpart account collapses to one thread")
	require.Equal(t, "conv-old", convs[0].ConversationID)
	require.Equal(t, "m2", convs[0].LastMessage.ID)

	// events addressed to the fragment still route to the canonical entry
	in.ApplyEvent(event(t, models.EventNewMessage, msg("m3", "conv-dup", "acct-b", "acct-a", "third", 300)))
	got := in.Messages("conv-old")
	require.Len(t, got, 3)
	require.Equal(t, got, in.Messages("conv-dup"))
}

func TestReconcileMergesPreexistingDuplicates(t *testing.T) {
	in := newTestInbox(t, "acct-a", Options{})

	// seed two entries directly as a snapshot would after a crash: the
	// counterpart was not known at insert time, so no absorption happened
	in.mu.Lock()
	in.entries["conv-x"] = &Entry{
		ConversationID: "conv-x",
		Other:          models.Resolved{AccountID: "acct-b"},
		Messages:       map[string]models.Message{"m1": msg("m1", "conv-x", "acct-a", "acct-b", "older", 100)},
	}
	in.entries["conv-y"] = &Entry{
		ConversationID: "conv-y",
		Other:          models.Resolved{AccountID: "acct-b"},
		Messages:       map[string]models.Message{"m2": msg("m2", "conv-y", "acct-b", "acct-a", "newer", 200)},
	}
	in.routes["conv-x"] = "conv-x"
	in.routes["conv-y"] = "conv-y"
	in.mu.Unlock()

	in.Reconcile()

	convs := in.Conversations()
	require.Len(t, convs, 1)
	require.Equal(t, "conv-x", convs[0].ConversationID, "earliest message wins canonicality")
	require.Len(t, in.Messages("conv-y"), 2, "fragment ID keeps routing")
}

func TestSnapshotRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "inbox.json")
	in := newTestInbox(t, "acct-a", Options{SnapshotPath: path})
	other := models.Resolved{Kind: models.KindUser, ID: "acct-b", AccountID: "acct-b", DisplayName: "Bob"}

	in.ApplyHistory(other, []models.Message{
		msg("m1", "conv-1", "acct-b", "acct-a", "persist me", 100),
	})
	require.NoError(t, in.Save())

	reloaded := newTestInbox(t, "acct-a", Options{SnapshotPath: path})
	got := reloaded.Messages("conv-1")
	require.Len(t, got, 1)
	require.Equal(t, "persist me", got[0].Text)
	require.Equal(t, "Bob", reloaded.Conversations()[0].Other.DisplayName)
}

func TestTypingIndicatorTTL(t *testing.T) {
	in := newTestInbox(t, "acct-a", Options{TypingTTL: 50 * time.Millisecond})

	in.ApplyEvent(event(t, models.EventTyping, models.TypingPayload{
		ConversationID: "conv-1", AccountID: "acct-b", IsTyping: true,
	}))
	require.Equal(t, []string{"acct-b"}, in.TypingAccounts("conv-1"))

	// an explicit clear removes it immediately
	in.ApplyEvent(event(t, models.EventTyping, models.TypingPayload{
		ConversationID: "conv-1", AccountID: "acct-b", IsTyping: false,
	}))
	require.Empty(t, in.TypingAccounts("conv-1"))

	// without a clear, the TTL expires it
	in.ApplyEvent(event(t, models.EventTyping, models.TypingPayload{
		ConversationID: "conv-1", AccountID: "acct-b", IsTyping: true,
	}))
	require.Eventually(t, func() bool {
		return len(in.TypingAccounts("conv-1")) == 0
	}, time.Second, 10*time.Millisecond)
}

func TestOnlineStatusEvents(t *testing.T) {
	in := newTestInbox(t, "acct-a", Options{})
	require.False(t, in.IsOnline("acct-b"))

	in.ApplyEvent(event(t, models.EventOnlineStatus, models.OnlineStatusPayload{AccountID: "acct-b", IsOnline: true}))
	require.True(t, in.IsOnline("acct-b"))

	in.ApplyEvent(event(t, models.EventOnlineStatus, models.OnlineStatusPayload{AccountID: "acct-b", IsOnline: false}))
	require.False(t, in.IsOnline("acct-b"))
}

func TestMalformedEventIgnored(t *testing.T) {
	in := newTestInbox(t, "acct-a", Options{})
	in.ApplyEvent(models.Event{Type: models.EventNewMessage, Payload: json.RawMessage(`{"broken"`)})
	in.ApplyEvent(models.Event{Type: "somethingElse", Payload: json.RawMessage(`{}`)})
	require.Empty(t, in.Conversations())
}
