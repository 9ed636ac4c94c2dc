package realtime

import (
	"sync"
	"time"
)

const defaultTypingTTL = 5 * time.Second

// typingState tracks who is typing in which conversation. Each set
// indicator carries a TTL timer: if the clearing isTyping=false event
// is lost (client crash, dropped socket), the hub emits the clear
// itself when the timer fires.
type typingState struct {
	mu  sync.Mutex
	m   map[string]map[string]*time.Timer // convID -> accountID -> expiry
	hub *Hub
	ttl time.Duration
}

func newTypingState(h *Hub, ttl time.Duration) *typingState {
	if ttl <= 0 {
		ttl = defaultTypingTTL
	}
	return &typingState{
		m:   map[string]map[string]*time.Timer{},
		hub: h,
		ttl: ttl,
	}
}

func (t *typingState) set(convID, accountID string, isTyping bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	room, ok := t.m[convID]
	if !ok {
		if !isTyping {
			return
		}
		room = map[string]*time.Timer{}
		t.m[convID] = room
	}
	if timer, ok := room[accountID]; ok {
		timer.Stop()
		delete(room, accountID)
	}
	if !isTyping {
		if len(room) == 0 {
			delete(t.m, convID)
		}
		return
	}
	room[accountID] = time.AfterFunc(t.ttl, func() {
		t.expire(convID, accountID)
	})
}

// expire clears a stale indicator and tells the room about it.
func (t *typingState) expire(convID, accountID string) {
	t.mu.Lock()
	room, ok := t.m[convID]
	if ok {
		delete(room, accountID)
		if len(room) == 0 {
			delete(t.m, convID)
		}
	}
	t.mu.Unlock()
	if ok {
		t.hub.emitTyping(convID, accountID, false)
	}
}

// clearAccount drops every indicator the account holds, used when its
// last connection goes away.
func (t *typingState) clearAccount(accountID string) {
	t.mu.Lock()
	var stale []string
	for convID, room := range t.m {
		if timer, ok := room[accountID]; ok {
			timer.Stop()
			delete(room, accountID)
			stale = append(stale, convID)
			if len(room) == 0 {
				delete(t.m, convID)
			}
		}
	}
	t.mu.Unlock()
	for _, convID := range stale {
		t.hub.emitTyping(convID, accountID, false)
	}
}

// isTyping reports the current indicator, for tests.
func (t *typingState) isTyping(convID, accountID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	room, ok := t.m[convID]
	if !ok {
		return false
	}
	_, ok = room[accountID]
	return ok
}
