package realtime

import (
	"sync"
	"time"

	"tradetalk/pkg/models"
)

// Registry is the process-wide presence map, keyed by account ID. It is
// owned by the Hub: connect/disconnect paths mutate it, everything else
// only reads.
type Registry struct {
	mu sync.RWMutex
	m  map[string]models.Presence
}

func NewRegistry() *Registry {
	return &Registry{m: map[string]models.Presence{}}
}

// Set records a live connection for the account.
func (r *Registry) Set(accountID, connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.m[accountID] = models.Presence{
		AccountID:    accountID,
		ConnectionID: connID,
		LastSeen:     time.Now().UTC().UnixNano(),
	}
}

// Clear removes the account's presence record.
func (r *Registry) Clear(accountID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.m, accountID)
}

// IsOnline reports whether the account currently has a registered
// connection.
func (r *Registry) IsOnline(accountID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.m[accountID]
	return ok
}

// Snapshot returns a copy of all presence records.
func (r *Registry) Snapshot() []models.Presence {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.Presence, 0, len(r.m))
	for _, p := range r.m {
		out = append(out, p)
	}
	return out
}
