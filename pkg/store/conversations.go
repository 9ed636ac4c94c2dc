package store

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"tradetalk/pkg/logger"
	"tradetalk/pkg/models"
	"tradetalk/pkg/utils"

	"github.com/cockroachdb/pebble"
)

// writeMu serializes conversation upsert and message append. Pebble
// writes are atomic per batch; the mutex gives the pair-key
// check-then-create the atomicity a concurrent first-message race needs.
var writeMu sync.Mutex

// UpsertConversation returns the canonical conversation for the two
// resolved parties, creating it when absent. Conversations are keyed by
// the order-independent pair of account IDs, so two callers racing with
// different addressing (account ID vs contractor profile ID) still land
// on one thread.
func UpsertConversation(a, b models.Resolved) (models.Conversation, error) {
	writeMu.Lock()
	defer writeMu.Unlock()
	return upsertConversationLocked(a, b)
}

func upsertConversationLocked(a, b models.Resolved) (models.Conversation, error) {
	if db == nil {
		return models.Conversation{}, errNotOpen
	}
	pair := models.PairKey(a.AccountID, b.AccountID)
	if id, err := GetKey(convPairKey(pair)); err == nil {
		return getConversation(id)
	} else if !IsNotFound(normalizeNotFound(err)) {
		return models.Conversation{}, err
	}

	now := time.Now().UTC().UnixNano()
	conv := models.Conversation{
		ID:        utils.GenConversationID(),
		PairKey:   pair,
		A:         a.Ref(),
		B:         b.Ref(),
		AccountA:  a.AccountID,
		AccountB:  b.AccountID,
		CreatedTS: now,
		UpdatedTS: now,
	}
	mb, err := json.Marshal(conv)
	if err != nil {
		return models.Conversation{}, fmt.Errorf("failed to marshal conversation: %w", err)
	}

	batch := db.NewBatch()
	defer batch.Close()
	if err := batch.Set([]byte(convPairKey(pair)), []byte(conv.ID), nil); err != nil {
		return models.Conversation{}, err
	}
	if err := batch.Set([]byte(convMetaKey(conv.ID)), mb, nil); err != nil {
		return models.Conversation{}, err
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		logger.Error("conversation_create_failed", "pair", pair, "error", err)
		return models.Conversation{}, err
	}
	logger.Info("conversation_created", "id", conv.ID, "account_a", conv.AccountA, "account_b", conv.AccountB)
	return conv, nil
}

// GetConversation returns the conversation with the given ID.
func GetConversation(id string) (models.Conversation, error) {
	if db == nil {
		return models.Conversation{}, errNotOpen
	}
	return getConversation(id)
}

func getConversation(id string) (models.Conversation, error) {
	var c models.Conversation
	s, err := GetKey(convMetaKey(id))
	if err != nil {
		return c, normalizeNotFound(err)
	}
	if err := json.Unmarshal([]byte(s), &c); err != nil {
		return c, fmt.Errorf("invalid conversation record: %w", err)
	}
	return c, nil
}

// GetConversationByAccounts returns the canonical conversation for two
// account IDs, or ErrNotFound.
func GetConversationByAccounts(accountA, accountB string) (models.Conversation, error) {
	id, err := GetKey(convPairKey(models.PairKey(accountA, accountB)))
	if err != nil {
		return models.Conversation{}, normalizeNotFound(err)
	}
	return getConversation(id)
}

// ListConversationsForAccount returns every conversation the account is
// party to, in no particular order.
func ListConversationsForAccount(accountID string) ([]models.Conversation, error) {
	var out []models.Conversation
	err := scanPrefix("conv:", func(key string, val []byte) bool {
		if !strings.HasSuffix(key, ":meta") {
			return true
		}
		var c models.Conversation
		if err := json.Unmarshal(val, &c); err != nil {
			logger.Warn("invalid_conversation_record", "key", key, "error", err)
			return true
		}
		if c.HasAccount(accountID) {
			out = append(out, c)
		}
		return true
	})
	return out, err
}

func saveConversationLocked(c models.Conversation, batch *pebble.Batch) error {
	mb, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal conversation: %w", err)
	}
	return batch.Set([]byte(convMetaKey(c.ID)), mb, nil)
}
