// Package cache keeps a client-side mirror of the caller's inbox: a
// durable JSON snapshot merged from REST fetches and live websocket
// events. Every merge is idempotent by message ID, so replayed or
// out-of-order inputs converge on the same state; the durable store is
// authoritative and the next fetch repairs anything a lost event left
// behind.
package cache

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"tradetalk/pkg/models"
)

const defaultTypingTTL = 5 * time.Second

// Entry is one conversation as the cache sees it.
type Entry struct {
	ConversationID string                    `json:"conversation_id"`
	Other          models.Resolved           `json:"other"`
	Messages       map[string]models.Message `json:"messages"`
	// FragmentIDs remembers duplicate conversation IDs that collapsed
	// onto this entry, so events addressed to a fragment still route
	// here.
	FragmentIDs []string `json:"fragment_ids,omitempty"`
}

// Summary is the computed list-view row for one entry.
type Summary struct {
	ConversationID string
	Other          models.Resolved
	LastMessage    *models.Message
	UnreadCount    int
}

// Inbox mirrors one account's conversations.
type Inbox struct {
	mu      sync.Mutex
	account string
	path    string

	entries map[string]*Entry // canonical conversation ID -> entry
	routes  map[string]string // any known conversation ID -> canonical ID

	typing    map[string]map[string]*time.Timer // convID -> accountID -> expiry
	typingTTL time.Duration
	online    map[string]bool
}

// Options tunes the inbox.
type Options struct {
	// SnapshotPath is the JSON file the inbox persists to. Empty keeps
	// the cache in memory only.
	SnapshotPath string
	// TypingTTL bounds how long a typing indicator stays set without a
	// refresh. Default 5s.
	TypingTTL time.Duration
}

// NewInbox builds the cache for one account and loads the snapshot file
// when it exists.
func NewInbox(accountID string, opts Options) (*Inbox, error) {
	ttl := opts.TypingTTL
	if ttl <= 0 {
		ttl = defaultTypingTTL
	}
	in := &Inbox{
		account:   accountID,
		path:      opts.SnapshotPath,
		entries:   map[string]*Entry{},
		routes:    map[string]string{},
		typing:    map[string]map[string]*time.Timer{},
		typingTTL: ttl,
		online:    map[string]bool{},
	}
	if in.path != "" {
		if err := in.load(); err != nil && !os.IsNotExist(err) {
			return nil, err
		}
	}
	return in, nil
}

type snapshotFile struct {
	Account string            `json:"account"`
	Entries map[string]*Entry `json:"entries"`
	Routes  map[string]string `json:"routes"`
}

func (in *Inbox) load() error {
	data, err := os.ReadFile(in.path)
	if err != nil {
		return err
	}
	var sf snapshotFile
	if err := json.Unmarshal(data, &sf); err != nil {
		return err
	}
	if sf.Entries != nil {
		in.entries = sf.Entries
	}
	if sf.Routes != nil {
		in.routes = sf.Routes
	}
	for id, e := range in.entries {
		if e.Messages == nil {
			e.Messages = map[string]models.Message{}
		}
		in.routes[id] = id
	}
	return nil
}

// Save writes the snapshot atomically (temp file + rename). No-op for a
// memory-only inbox.
func (in *Inbox) Save() error {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.saveLocked()
}

func (in *Inbox) saveLocked() error {
	if in.path == "" {
		return nil
	}
	sf := snapshotFile{Account: in.account, Entries: in.entries, Routes: in.routes}
	data, err := json.MarshalIndent(sf, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(in.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".inbox-*.tmp")
	if err != nil {
		return err
	}
	name := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		_ = os.Remove(name)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(name)
		return err
	}
	return os.Rename(name, in.path)
}

// canonical returns the entry an event or message for convID should
// land in, creating nothing.
func (in *Inbox) canonical(convID string) (*Entry, bool) {
	id, ok := in.routes[convID]
	if !ok {
		return nil, false
	}
	e, ok := in.entries[id]
	return e, ok
}

// ApplySnapshot merges a fetched conversation list. Projections sharing
// a counterpart account collapse onto one canonical entry; duplicates
// produced by the server-side aliasing race are repaired here and their
// IDs remembered for event routing.
func (in *Inbox) ApplySnapshot(projs []models.ConversationProjection) {
	in.mu.Lock()
	defer in.mu.Unlock()
	for _, p := range projs {
		e := in.entryForLocked(p.ConversationID, p.Other)
		if p.LastMessage != nil {
			e.Messages[p.LastMessage.ID] = mergeMessage(e.Messages[p.LastMessage.ID], *p.LastMessage)
		}
	}
}

// ApplyHistory merges a full conversation fetch.
func (in *Inbox) ApplyHistory(other models.Resolved, msgs []models.Message) {
	in.mu.Lock()
	defer in.mu.Unlock()
	for _, m := range msgs {
		e := in.entryForLocked(m.ConversationID, other)
		e.Messages[m.ID] = mergeMessage(e.Messages[m.ID], m)
	}
}

// entryForLocked finds or creates the canonical entry for a counterpart
// and routes convID onto it. When two entries for the same counterpart
// exist, the one whose earliest message is older is canonical and the
// other becomes a fragment.
func (in *Inbox) entryForLocked(convID string, other models.Resolved) *Entry {
	if e, ok := in.canonical(convID); ok {
		if e.Other.DisplayName == "" && other.DisplayName != "" {
			e.Other = other
		}
		return e
	}
	// an existing entry with the same counterpart account absorbs the
	// new ID as a fragment
	for _, e := range in.entries {
		if e.Other.AccountID != "" && e.Other.AccountID == other.AccountID {
			e.FragmentIDs = append(e.FragmentIDs, convID)
			in.routes[convID] = e.ConversationID
			return e
		}
	}
	e := &Entry{ConversationID: convID, Other: other, Messages: map[string]models.Message{}}
	in.entries[convID] = e
	in.routes[convID] = convID
	return e
}

// Reconcile collapses entries that ended up sharing a counterpart
// account (seen when fragments were created before their counterpart
// was known). The entry with the earliest message wins; fragments keep
// routing.
func (in *Inbox) Reconcile() {
	in.mu.Lock()
	defer in.mu.Unlock()
	byAccount := map[string][]*Entry{}
	for _, e := range in.entries {
		if e.Other.AccountID == "" {
			continue
		}
		byAccount[e.Other.AccountID] = append(byAccount[e.Other.AccountID], e)
	}
	for _, group := range byAccount {
		if len(group) < 2 {
			continue
		}
		sort.Slice(group, func(i, j int) bool {
			ti, tj := entryEarliestTS(group[i]), entryEarliestTS(group[j])
			if ti != tj {
				return ti < tj
			}
			return group[i].ConversationID < group[j].ConversationID
		})
		canonical := group[0]
		for _, frag := range group[1:] {
			for id, m := range frag.Messages {
				canonical.Messages[id] = mergeMessage(canonical.Messages[id], m)
			}
			canonical.FragmentIDs = append(canonical.FragmentIDs, frag.ConversationID)
			canonical.FragmentIDs = append(canonical.FragmentIDs, frag.FragmentIDs...)
			in.routes[frag.ConversationID] = canonical.ConversationID
			for _, fid := range frag.FragmentIDs {
				in.routes[fid] = canonical.ConversationID
			}
			delete(in.entries, frag.ConversationID)
		}
	}
}

// ApplyEvent folds one live websocket event into the cache. Unknown
// event types are ignored.
func (in *Inbox) ApplyEvent(ev models.Event) {
	switch ev.Type {
	case models.EventNewMessage:
		var m models.Message
		if err := json.Unmarshal(ev.Payload, &m); err != nil || m.ID == "" {
			return
		}
		in.applyMessage(m)

	case models.EventMessageRead:
		var p models.ReadPayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			return
		}
		in.applyRead(p)

	case models.EventTyping:
		var p models.TypingPayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			return
		}
		in.setTyping(p.ConversationID, p.AccountID, p.IsTyping)

	case models.EventOnlineStatus:
		var p models.OnlineStatusPayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			return
		}
		in.mu.Lock()
		if p.IsOnline {
			in.online[p.AccountID] = true
		} else {
			delete(in.online, p.AccountID)
		}
		in.mu.Unlock()
	}
}

// applyMessage lands a live message. A message for an unknown
// conversation synthesizes the entry from the embedded snapshot: the
// counterpart is whichever end is not this account.
func (in *Inbox) applyMessage(m models.Message) {
	in.mu.Lock()
	defer in.mu.Unlock()
	other := models.Resolved{}
	if m.SenderAccount == in.account {
		other = models.Resolved{Kind: m.Recipient.Kind, ID: m.Recipient.ID, AccountID: m.RecipientAccount, DisplayName: m.RecipientName}
	} else {
		other = models.Resolved{Kind: m.Sender.Kind, ID: m.Sender.ID, AccountID: m.SenderAccount, DisplayName: m.SenderName}
	}
	e := in.entryForLocked(m.ConversationID, other)
	e.Messages[m.ID] = mergeMessage(e.Messages[m.ID], m)
}

func (in *Inbox) applyRead(p models.ReadPayload) {
	in.mu.Lock()
	defer in.mu.Unlock()
	e, ok := in.canonical(p.ConversationID)
	if !ok {
		return
	}
	if m, ok := e.Messages[p.MessageID]; ok {
		m.Read = true
		e.Messages[p.MessageID] = m
	}
}

// Conversations returns the list view, newest activity first.
func (in *Inbox) Conversations() []Summary {
	in.mu.Lock()
	defer in.mu.Unlock()
	out := make([]Summary, 0, len(in.entries))
	for _, e := range in.entries {
		s := Summary{ConversationID: e.ConversationID, Other: e.Other}
		for _, m := range e.Messages {
			m := m
			if s.LastMessage == nil || newer(m, *s.LastMessage) {
				s.LastMessage = &m
			}
			if m.RecipientAccount == in.account && !m.Read {
				s.UnreadCount++
			}
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		ti, tj := summaryTS(out[i]), summaryTS(out[j])
		if ti != tj {
			return ti > tj
		}
		return out[i].ConversationID < out[j].ConversationID
	})
	return out
}

// Messages returns a conversation's history ascending by (TS, Seq).
func (in *Inbox) Messages(convID string) []models.Message {
	in.mu.Lock()
	defer in.mu.Unlock()
	e, ok := in.canonical(convID)
	if !ok {
		return nil
	}
	out := make([]models.Message, 0, len(e.Messages))
	for _, m := range e.Messages {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TS != out[j].TS {
			return out[i].TS < out[j].TS
		}
		return out[i].Seq < out[j].Seq
	})
	return out
}

// IsOnline reports the last observed presence of an account.
func (in *Inbox) IsOnline(accountID string) bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.online[accountID]
}

// setTyping mirrors the server-side indicator with a local TTL so a
// lost isTyping=false event cannot stick the UI.
func (in *Inbox) setTyping(convID, accountID string, isTyping bool) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if id, ok := in.routes[convID]; ok {
		convID = id
	}
	room, ok := in.typing[convID]
	if !ok {
		if !isTyping {
			return
		}
		room = map[string]*time.Timer{}
		in.typing[convID] = room
	}
	if t, ok := room[accountID]; ok {
		t.Stop()
		delete(room, accountID)
	}
	if !isTyping {
		if len(room) == 0 {
			delete(in.typing, convID)
		}
		return
	}
	room[accountID] = time.AfterFunc(in.typingTTL, func() {
		in.mu.Lock()
		defer in.mu.Unlock()
		if r, ok := in.typing[convID]; ok {
			delete(r, accountID)
			if len(r) == 0 {
				delete(in.typing, convID)
			}
		}
	})
}

// TypingAccounts lists who is currently typing in a conversation.
func (in *Inbox) TypingAccounts(convID string) []string {
	in.mu.Lock()
	defer in.mu.Unlock()
	if id, ok := in.routes[convID]; ok {
		convID = id
	}
	room := in.typing[convID]
	out := make([]string, 0, len(room))
	for acct := range room {
		out = append(out, acct)
	}
	sort.Strings(out)
	return out
}

// mergeMessage keeps merges idempotent and the read flag monotonic: a
// replayed unread copy never clears a locally observed read.
func mergeMessage(existing, incoming models.Message) models.Message {
	if existing.ID == "" {
		return incoming
	}
	if existing.Read {
		incoming.Read = true
	}
	return incoming
}

func newer(a, b models.Message) bool {
	if a.TS != b.TS {
		return a.TS > b.TS
	}
	return a.Seq > b.Seq
}

func entryEarliestTS(e *Entry) int64 {
	var min int64
	for _, m := range e.Messages {
		if min == 0 || m.TS < min {
			min = m.TS
		}
	}
	return min
}

func summaryTS(s Summary) int64 {
	if s.LastMessage == nil {
		return 0
	}
	return s.LastMessage.TS
}
