package store_test

import (
	"sync"
	"testing"
	"time"

	"tradetalk/pkg/logger"
	"tradetalk/pkg/models"
	"tradetalk/pkg/store"

	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) {
	t.Helper()
	logger.Init()
	require.NoError(t, store.Open(t.TempDir()+"/db"))
	t.Cleanup(func() { _ = store.Close() })
}

func seedPair(t *testing.T) (user models.Resolved, contractor models.Resolved) {
	t.Helper()
	require.NoError(t, store.SaveAccount(models.Account{ID: "acct-a", DisplayName: "Ada"}))
	require.NoError(t, store.SaveAccount(models.Account{ID: "acct-b", DisplayName: "Bob"}))
	require.NoError(t, store.SaveContractor(models.Contractor{ID: "ctr-b", AccountID: "acct-b", BusinessName: "Bob Plumbing"}))

	user = models.Resolved{Kind: models.KindUser, ID: "acct-a", AccountID: "acct-a", DisplayName: "Ada"}
	contractor = models.Resolved{Kind: models.KindContractor, ID: "ctr-b", AccountID: "acct-b", DisplayName: "Bob Plumbing"}
	return user, contractor
}

func TestAppendSharesCanonicalConversationAcrossAliases(t *testing.T) {
	openTestStore(t)
	a, ctr := seedPair(t)

	// address B once by account and once by contractor profile
	byAccount := models.Resolved{Kind: models.KindUser, ID: "acct-b", AccountID: "acct-b", DisplayName: "Bob"}
	m1, err := store.AppendMessage(a, byAccount, "hello")
	require.NoError(t, err)
	m2, err := store.AppendMessage(a, ctr, "hello again")
	require.NoError(t, err)

	require.Equal(t, m1.ConversationID, m2.ConversationID,
		"aliased addressing must land on one conversation")

	conv, err := store.GetConversationByAccounts("acct-a", "acct-b")
	require.NoError(t, err)
	require.Equal(t, m1.ConversationID, conv.ID)
	require.Equal(t, m2.ID, conv.LastMessageID)

	// pair key is order independent
	conv2, err := store.GetConversationByAccounts("acct-b", "acct-a")
	require.NoError(t, err)
	require.Equal(t, conv.ID, conv2.ID)
}

func TestConcurrentFirstMessagesShareConversation(t *testing.T) {
	openTestStore(t)
	a, ctr := seedPair(t)
	byAccount := models.Resolved{Kind: models.KindUser, ID: "acct-b", AccountID: "acct-b", DisplayName: "Bob"}

	// two near-simultaneous first messages for a fresh pair, one per
	// addressing alias, must not fork the thread
	var wg sync.WaitGroup
	msgs := make([]models.Message, 2)
	errs := make([]error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		msgs[0], errs[0] = store.AppendMessage(a, ctr, "first by profile")
	}()
	go func() {
		defer wg.Done()
		msgs[1], errs[1] = store.AppendMessage(a, byAccount, "first by account")
	}()
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	require.Equal(t, msgs[0].ConversationID, msgs[1].ConversationID)

	convs, err := store.ListConversationsForAccount("acct-a")
	require.NoError(t, err)
	require.Len(t, convs, 1)
	history, err := store.ListConversationMessages(msgs[0].ConversationID)
	require.NoError(t, err)
	require.Len(t, history, 2)
}

func TestMessageOrdering(t *testing.T) {
	openTestStore(t)
	a, ctr := seedPair(t)

	texts := []string{"one", "two", "three"}
	for _, txt := range texts {
		_, err := store.AppendMessage(a, ctr, txt)
		require.NoError(t, err)
	}
	conv, err := store.GetConversationByAccounts("acct-a", "acct-b")
	require.NoError(t, err)

	msgs, err := store.ListConversationMessages(conv.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	for i, m := range msgs {
		require.Equal(t, texts[i], m.Text)
		if i > 0 {
			prev, cur := msgs[i-1], m
			require.True(t, prev.TS < cur.TS || (prev.TS == cur.TS && prev.Seq < cur.Seq))
		}
	}
}

func TestListBetweenFlipsUnreadForCaller(t *testing.T) {
	openTestStore(t)
	a, ctr := seedPair(t)

	_, err := store.AppendMessage(a, ctr, "first")
	require.NoError(t, err)
	_, err = store.AppendMessage(a, ctr, "second")
	require.NoError(t, err)

	// sender's own view flips nothing
	msgs, flipped, err := store.ListMessagesBetween("acct-a", "acct-b", true)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	require.Empty(t, flipped)

	// recipient's view flips both
	msgs, flipped, err = store.ListMessagesBetween("acct-b", "acct-a", true)
	require.NoError(t, err)
	require.Len(t, flipped, 2)
	for _, m := range msgs {
		require.True(t, m.Read)
	}

	// second view is a no-op: read is monotonic
	_, flipped, err = store.ListMessagesBetween("acct-b", "acct-a", true)
	require.NoError(t, err)
	require.Empty(t, flipped)
}

func TestListBetweenPeekLeavesFlags(t *testing.T) {
	openTestStore(t)
	a, ctr := seedPair(t)
	_, err := store.AppendMessage(a, ctr, "unread")
	require.NoError(t, err)

	msgs, flipped, err := store.ListMessagesBetween("acct-b", "acct-a", false)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Empty(t, flipped)
	require.False(t, msgs[0].Read)
}

func TestListBetweenNoConversation(t *testing.T) {
	openTestStore(t)
	seedPair(t)
	msgs, flipped, err := store.ListMessagesBetween("acct-a", "acct-b", true)
	require.NoError(t, err)
	require.Empty(t, msgs)
	require.Empty(t, flipped)
}

func TestMarkMessageRead(t *testing.T) {
	openTestStore(t)
	a, ctr := seedPair(t)
	m, err := store.AppendMessage(a, ctr, "receipt me")
	require.NoError(t, err)

	// only the recipient may flip
	_, err = store.MarkMessageRead(m.ID, "acct-a")
	require.ErrorIs(t, err, store.ErrForbidden)
	got, err := store.GetMessage(m.ID)
	require.NoError(t, err)
	require.False(t, got.Read, "forbidden mark must not change the flag")

	got, err = store.MarkMessageRead(m.ID, "acct-b")
	require.NoError(t, err)
	require.True(t, got.Read)

	// idempotent
	got, err = store.MarkMessageRead(m.ID, "acct-b")
	require.NoError(t, err)
	require.True(t, got.Read)

	_, err = store.MarkMessageRead("msg-missing", "acct-b")
	require.True(t, store.IsNotFound(err))
}

func TestUnreadCountAndLastMessage(t *testing.T) {
	openTestStore(t)
	a, ctr := seedPair(t)
	_, err := store.AppendMessage(a, ctr, "m1")
	require.NoError(t, err)
	last, err := store.AppendMessage(a, ctr, "m2")
	require.NoError(t, err)

	n, err := store.UnreadCount(last.ConversationID, "acct-b")
	require.NoError(t, err)
	require.Equal(t, 2, n)
	n, err = store.UnreadCount(last.ConversationID, "acct-a")
	require.NoError(t, err)
	require.Equal(t, 0, n)

	lm, err := store.LastMessage(last.ConversationID)
	require.NoError(t, err)
	require.Equal(t, last.ID, lm.ID)
}

func TestPurgeMessagesBefore(t *testing.T) {
	openTestStore(t)
	a, ctr := seedPair(t)
	m, err := store.AppendMessage(a, ctr, "old news")
	require.NoError(t, err)

	cutoff := time.Now().UTC().Add(time.Hour).UnixNano()

	// dry run counts but deletes nothing
	n, err := store.PurgeMessagesBefore(cutoff, 100, true)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	_, err = store.GetMessage(m.ID)
	require.NoError(t, err)

	n, err = store.PurgeMessagesBefore(cutoff, 100, false)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	_, err = store.GetMessage(m.ID)
	require.True(t, store.IsNotFound(err))

	// conversation meta survives a purge
	_, err = store.GetConversation(m.ConversationID)
	require.NoError(t, err)
}

func TestDirectory(t *testing.T) {
	openTestStore(t)

	// contractor requires an owning account
	err := store.SaveContractor(models.Contractor{ID: "ctr-x", AccountID: "acct-missing", BusinessName: "Ghost LLC"})
	require.Error(t, err)

	require.NoError(t, store.SaveAccount(models.Account{ID: "acct-c", DisplayName: "Cleo"}))
	require.NoError(t, store.SaveContractor(models.Contractor{ID: "ctr-c", AccountID: "acct-c", BusinessName: "Cleo Roofing"}))

	c, err := store.ContractorForAccount("acct-c")
	require.NoError(t, err)
	require.Equal(t, "ctr-c", c.ID)

	_, err = store.ContractorForAccount("acct-without-profile")
	require.True(t, store.IsNotFound(err))
}
