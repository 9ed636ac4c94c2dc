package store

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"tradetalk/pkg/logger"
	"tradetalk/pkg/models"
	"tradetalk/pkg/utils"

	"github.com/cockroachdb/pebble"
)

// seq provides a small counter to break ties when multiple messages
// share the same nanosecond timestamp.
var seq uint64

// AppendMessage appends a message between two resolved parties. The
// owning conversation is created when absent; the log key, the message
// ID index and the conversation's last-message pointer commit in one
// batch. The returned message carries resolved display names so it can
// be emitted to the realtime bus without another lookup.
func AppendMessage(sender, recipient models.Resolved, text string) (models.Message, error) {
	if db == nil {
		return models.Message{}, errNotOpen
	}
	writeMu.Lock()
	defer writeMu.Unlock()

	conv, err := upsertConversationLocked(sender, recipient)
	if err != nil {
		return models.Message{}, err
	}

	ts := time.Now().UTC().UnixNano()
	s := atomic.AddUint64(&seq, 1)
	msg := models.Message{
		ID:               utils.GenID(),
		ConversationID:   conv.ID,
		Sender:           sender.Ref(),
		Recipient:        recipient.Ref(),
		SenderAccount:    sender.AccountID,
		RecipientAccount: recipient.AccountID,
		SenderName:       sender.DisplayName,
		RecipientName:    recipient.DisplayName,
		Text:             text,
		Read:             false,
		TS:               ts,
		Seq:              s,
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return models.Message{}, fmt.Errorf("failed to marshal message: %w", err)
	}

	logKey := convMsgKey(conv.ID, ts, s)
	conv.LastMessageID = msg.ID
	conv.UpdatedTS = ts

	batch := db.NewBatch()
	defer batch.Close()
	if err := batch.Set([]byte(logKey), data, nil); err != nil {
		return models.Message{}, err
	}
	if err := batch.Set([]byte(msgIDKey(msg.ID)), []byte(logKey), nil); err != nil {
		return models.Message{}, err
	}
	if err := saveConversationLocked(conv, batch); err != nil {
		return models.Message{}, err
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		logger.Error("append_message_failed", "conversation", conv.ID, "key", logKey, "error", err)
		return models.Message{}, err
	}
	logger.Info("message_appended", "conversation", conv.ID, "id", msg.ID)
	return msg, nil
}

// ListConversationMessages returns all messages of a conversation in
// append order.
func ListConversationMessages(convID string) ([]models.Message, error) {
	out := []models.Message{}
	err := scanPrefix(convMsgPrefix(convID), func(key string, val []byte) bool {
		var m models.Message
		if err := json.Unmarshal(val, &m); err != nil {
			logger.Warn("invalid_message_record", "key", key, "error", err)
			return true
		}
		out = append(out, m)
		return true
	})
	return out, err
}

// ListMessagesBetween returns all messages between the two accounts in
// append order. When markRead is true, every unread message addressed
// to callerAccount is flipped to read in the same call; the flipped IDs
// are returned so callers can fan out read receipts. The flip makes
// this a read/write operation despite the query-shaped name.
func ListMessagesBetween(callerAccount, otherAccount string, markRead bool) ([]models.Message, []models.Message, error) {
	conv, err := GetConversationByAccounts(callerAccount, otherAccount)
	if err != nil {
		if IsNotFound(err) {
			return []models.Message{}, nil, nil
		}
		return nil, nil, err
	}

	if db == nil {
		return nil, nil, errNotOpen
	}
	writeMu.Lock()
	defer writeMu.Unlock()

	msgs := []models.Message{}
	var flipped []models.Message
	batch := db.NewBatch()
	defer batch.Close()

	err = scanPrefix(convMsgPrefix(conv.ID), func(key string, val []byte) bool {
		var m models.Message
		if err := json.Unmarshal(val, &m); err != nil {
			logger.Warn("invalid_message_record", "key", key, "error", err)
			return true
		}
		if markRead && !m.Read && m.RecipientAccount == callerAccount {
			m.Read = true
			if nb, merr := json.Marshal(m); merr == nil {
				if serr := batch.Set([]byte(key), nb, nil); serr == nil {
					flipped = append(flipped, m)
				}
			}
		}
		msgs = append(msgs, m)
		return true
	})
	if err != nil {
		return nil, nil, err
	}
	if len(flipped) > 0 {
		if err := batch.Commit(pebble.Sync); err != nil {
			logger.Error("mark_read_on_view_failed", "conversation", conv.ID, "error", err)
			return nil, nil, err
		}
		logger.Info("messages_read_on_view", "conversation", conv.ID, "count", len(flipped))
	}
	return msgs, flipped, nil
}

// GetMessage returns the message with the given ID via the ID index.
func GetMessage(msgID string) (models.Message, error) {
	var m models.Message
	logKey, err := GetKey(msgIDKey(msgID))
	if err != nil {
		return m, normalizeNotFound(err)
	}
	s, err := GetKey(logKey)
	if err != nil {
		return m, normalizeNotFound(err)
	}
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return m, fmt.Errorf("invalid message record: %w", err)
	}
	return m, nil
}

// MarkMessageRead flips a message's read flag on behalf of its
// recipient. It is idempotent; a caller other than the recipient gets
// ErrForbidden and the flag is left untouched.
func MarkMessageRead(msgID, callerAccount string) (models.Message, error) {
	if db == nil {
		return models.Message{}, errNotOpen
	}
	writeMu.Lock()
	defer writeMu.Unlock()

	logKey, err := GetKey(msgIDKey(msgID))
	if err != nil {
		return models.Message{}, normalizeNotFound(err)
	}
	s, err := GetKey(logKey)
	if err != nil {
		return models.Message{}, normalizeNotFound(err)
	}
	var m models.Message
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return models.Message{}, fmt.Errorf("invalid message record: %w", err)
	}
	if m.RecipientAccount != callerAccount {
		return models.Message{}, ErrForbidden
	}
	if m.Read {
		return m, nil
	}
	m.Read = true
	nb, err := json.Marshal(m)
	if err != nil {
		return models.Message{}, fmt.Errorf("failed to marshal message: %w", err)
	}
	if err := db.Set([]byte(logKey), nb, pebble.Sync); err != nil {
		logger.Error("mark_read_failed", "id", msgID, "error", err)
		return models.Message{}, err
	}
	logger.Info("message_read", "id", msgID, "reader", callerAccount)
	return m, nil
}

// UnreadCount returns the number of unread messages addressed to the
// account within the conversation.
func UnreadCount(convID, accountID string) (int, error) {
	n := 0
	err := scanPrefix(convMsgPrefix(convID), func(key string, val []byte) bool {
		var m models.Message
		if err := json.Unmarshal(val, &m); err != nil {
			return true
		}
		if !m.Read && m.RecipientAccount == accountID {
			n++
		}
		return true
	})
	return n, err
}

// LastMessage returns the newest message of a conversation, or
// ErrNotFound for an empty log.
func LastMessage(convID string) (models.Message, error) {
	var last *models.Message
	err := scanPrefix(convMsgPrefix(convID), func(key string, val []byte) bool {
		var m models.Message
		if err := json.Unmarshal(val, &m); err != nil {
			return true
		}
		last = &m
		return true
	})
	if err != nil {
		return models.Message{}, err
	}
	if last == nil {
		return models.Message{}, ErrNotFound
	}
	return *last, nil
}

// PurgeMessagesBefore deletes log entries older than cutoff (unix ns)
// across all conversations, up to batchSize entries per call. It
// returns the number deleted; retention calls it repeatedly. Dry runs
// only count.
func PurgeMessagesBefore(cutoff int64, batchSize int, dryRun bool) (int, error) {
	if db == nil {
		return 0, errNotOpen
	}
	writeMu.Lock()
	defer writeMu.Unlock()

	type victim struct{ logKey, msgID string }
	var victims []victim
	err := scanPrefix("conv:", func(key string, val []byte) bool {
		if !strings.Contains(key, ":msg:") {
			return true
		}
		var m models.Message
		if err := json.Unmarshal(val, &m); err != nil || m.ID == "" {
			return true
		}
		if m.TS < cutoff {
			victims = append(victims, victim{logKey: key, msgID: m.ID})
		}
		return batchSize <= 0 || len(victims) < batchSize
	})
	if err != nil {
		return 0, err
	}
	if dryRun || len(victims) == 0 {
		return len(victims), nil
	}

	batch := db.NewBatch()
	defer batch.Close()
	for _, v := range victims {
		if err := batch.Delete([]byte(v.logKey), nil); err != nil {
			return 0, err
		}
		if err := batch.Delete([]byte(msgIDKey(v.msgID)), nil); err != nil {
			return 0, err
		}
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return 0, err
	}
	logger.Info("messages_purged", "count", len(victims), "cutoff", cutoff)
	return len(victims), nil
}
