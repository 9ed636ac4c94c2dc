package handlers

import (
	"net/http"

	"tradetalk/pkg/aggregate"
	"tradetalk/pkg/identity"
	"tradetalk/pkg/logger"
	"tradetalk/pkg/metrics"
	"tradetalk/pkg/models"
	"tradetalk/pkg/store"
	"tradetalk/pkg/telemetry"
	"tradetalk/pkg/utils"

	"github.com/gorilla/mux"
)

// listConversations handles GET /v1/messages/conversations: one
// projection per counterpart, newest activity first.
func listConversations(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	callerAccount, _, status, msg := caller(r)
	if status != 0 {
		utils.JSONError(w, status, msg)
		return
	}
	span := telemetry.StartSpan(r.Context(), "aggregate.list_conversations")
	out, err := aggregate.ListConversations(callerAccount)
	span()
	if err != nil {
		writeStoreError(w, err)
		return
	}
	logger.Debug("conversations_list", "caller", callerAccount, "count", len(out))
	_ = utils.JSONWrite(w, http.StatusOK, out)
}

// getConversationMessages handles GET /v1/messages/conversation/{otherRef}.
// Opening a conversation marks inbound unread messages as read; the
// flipped messages trigger read receipts to the other side. Pass
// ?peek=1 for a pure read with no side effect.
func getConversationMessages(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	callerAccount, _, status, msg := caller(r)
	if status != 0 {
		utils.JSONError(w, status, msg)
		return
	}
	otherRef := mux.Vars(r)["otherRef"]
	other, err := identity.Resolve(models.Participant{ID: otherRef})
	if err != nil {
		if store.IsNotFound(err) {
			utils.JSONError(w, http.StatusNotFound, "participant not found")
			return
		}
		writeStoreError(w, err)
		return
	}

	peek := r.URL.Query().Get("peek") == "1"
	msgs, flipped, err := store.ListMessagesBetween(callerAccount, other.AccountID, !peek)
	if err != nil {
		if store.IsNotFound(err) {
			// no conversation yet is an empty history, not an error
			_ = utils.JSONWrite(w, http.StatusOK, []models.Message{})
			return
		}
		writeStoreError(w, err)
		return
	}
	for _, m := range flipped {
		metrics.MessagesRead.Inc()
		hub.PublishRead(m.ID, m.ConversationID, callerAccount, m.SenderAccount)
	}
	_ = utils.JSONWrite(w, http.StatusOK, msgs)
}

// markConversationRead handles POST /v1/messages/conversation/{otherRef}/read,
// the explicit mark-read companion to the peek variant of the GET.
func markConversationRead(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	callerAccount, _, status, msg := caller(r)
	if status != 0 {
		utils.JSONError(w, status, msg)
		return
	}
	otherRef := mux.Vars(r)["otherRef"]
	other, err := identity.Resolve(models.Participant{ID: otherRef})
	if err != nil {
		if store.IsNotFound(err) {
			utils.JSONError(w, http.StatusNotFound, "participant not found")
			return
		}
		writeStoreError(w, err)
		return
	}
	_, flipped, err := store.ListMessagesBetween(callerAccount, other.AccountID, true)
	if err != nil {
		if store.IsNotFound(err) {
			_ = utils.JSONWrite(w, http.StatusOK, map[string]int{"read": 0})
			return
		}
		writeStoreError(w, err)
		return
	}
	for _, m := range flipped {
		metrics.MessagesRead.Inc()
		hub.PublishRead(m.ID, m.ConversationID, callerAccount, m.SenderAccount)
	}
	_ = utils.JSONWrite(w, http.StatusOK, map[string]int{"read": len(flipped)})
}
