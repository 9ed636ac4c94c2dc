package realtime

import (
	"testing"
	"time"

	"tradetalk/pkg/logger"

	"github.com/stretchr/testify/require"
)

// Publishing concurrently with a disconnect must never send on the
// closed channel of a client that just left its room.
func TestPublishRacesDisconnect(t *testing.T) {
	logger.Init()
	h := NewHub(Options{})
	data := []byte(`{"type":"newMessage"}`)

	churned := make(chan struct{})
	go func() {
		defer close(churned)
		for i := 0; i < 500; i++ {
			c := newClient(h, nil)
			h.bind(c, "acct-a")
			h.JoinConversation(c, "conv-1")
			h.removeClient(c)
		}
	}()
	for {
		select {
		case <-churned:
			return
		default:
			h.sendToAccount("acct-a", data)
			h.emitTyping("conv-1", "acct-b", true)
			h.broadcastPresence("acct-b", true)
		}
	}
}

func TestRebindDetachesPreviousAccount(t *testing.T) {
	logger.Init()
	h := NewHub(Options{})
	c := newClient(h, nil)

	h.bind(c, "acct-a")
	require.True(t, h.Presence().IsOnline("acct-a"))

	// a second register for another account must move the connection
	h.bind(c, "acct-b")
	require.False(t, h.Presence().IsOnline("acct-a"))
	require.True(t, h.Presence().IsOnline("acct-b"))
	h.mu.RLock()
	_, staleRoom := h.clients["acct-a"]
	h.mu.RUnlock()
	require.False(t, staleRoom, "old room must not retain the client")

	h.removeClient(c)
	require.False(t, h.Presence().IsOnline("acct-b"))
	h.sendToAccount("acct-a", []byte("x"))
	h.sendToAccount("acct-b", []byte("x"))
}

func TestRebindSameAccountKeepsRoom(t *testing.T) {
	logger.Init()
	h := NewHub(Options{})
	c := newClient(h, nil)

	h.bind(c, "acct-a")
	h.bind(c, "acct-a")
	require.True(t, h.Presence().IsOnline("acct-a"))

	h.removeClient(c)
	require.False(t, h.Presence().IsOnline("acct-a"))
}

// A readPump that exits after Stop must not block on the unregister
// handoff once its buffer is full.
func TestDropClientAfterStop(t *testing.T) {
	logger.Init()
	h := NewHub(Options{})
	h.Stop()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 40; i++ {
			h.dropClient(newClient(h, nil))
		}
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("dropClient blocked after Stop")
	}
}
