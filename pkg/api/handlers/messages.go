package handlers

import (
	"encoding/json"
	"net/http"

	"tradetalk/pkg/identity"
	"tradetalk/pkg/logger"
	"tradetalk/pkg/metrics"
	"tradetalk/pkg/models"
	"tradetalk/pkg/store"
	"tradetalk/pkg/telemetry"
	"tradetalk/pkg/utils"
	"tradetalk/pkg/validation"

	"github.com/gorilla/mux"
)

type createMessageRequest struct {
	// Recipient is the preferred tagged reference form.
	Recipient models.Participant `json:"recipient"`
	// RecipientRef is the bare-ID shorthand; the resolver probes the
	// account directory first, then contractor profiles.
	RecipientRef string `json:"recipientRef,omitempty"`
	Text         string `json:"text"`
}

// createMessage handles POST /v1/messages: resolve both endpoints,
// durably append, then fan out over the realtime hub.
func createMessage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	telemetry.SetRequestOp(r.Context(), "create_message")

	callerAccount, sendAs, status, msg := caller(r)
	if status != 0 {
		utils.JSONError(w, status, msg)
		return
	}

	var req createMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	ref := req.Recipient
	if ref.ID == "" {
		ref.ID = req.RecipientRef
	}
	if err := validation.ValidateRef(ref); err != nil {
		utils.JSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := validation.ValidateText(req.Text); err != nil {
		utils.JSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	span := telemetry.StartSpan(r.Context(), "identity.resolve_recipient")
	recipient, err := identity.Resolve(ref)
	span()
	if err != nil {
		if store.IsNotFound(err) {
			utils.JSONError(w, http.StatusNotFound, "recipient not found")
			return
		}
		writeStoreError(w, err)
		return
	}

	span = telemetry.StartSpan(r.Context(), "store.append")
	m, err := store.AppendMessage(sendAs, recipient, req.Text)
	span()
	if err != nil {
		writeStoreError(w, err)
		return
	}
	metrics.MessagesAppended.Inc()

	hub.PublishMessage(m)
	logger.Info("message_created", "conversation", m.ConversationID, "id", m.ID, "caller", callerAccount)
	_ = utils.JSONWrite(w, http.StatusCreated, m)
}

func getMessage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	callerAccount, _, status, msg := caller(r)
	if status != 0 {
		utils.JSONError(w, status, msg)
		return
	}
	id := mux.Vars(r)["id"]
	m, err := store.GetMessage(id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	// only the two participants may read a message
	if m.SenderAccount != callerAccount && m.RecipientAccount != callerAccount {
		utils.JSONError(w, http.StatusForbidden, "forbidden")
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, m)
}

// markMessageRead handles PUT /v1/messages/{id}/read. Only the
// recipient may flip the flag; the flip is monotonic and idempotent.
func markMessageRead(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	callerAccount, _, status, msg := caller(r)
	if status != 0 {
		utils.JSONError(w, status, msg)
		return
	}
	id := mux.Vars(r)["id"]
	m, err := store.MarkMessageRead(id, callerAccount)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	metrics.MessagesRead.Inc()
	hub.PublishRead(m.ID, m.ConversationID, callerAccount, m.SenderAccount)
	_ = utils.JSONWrite(w, http.StatusOK, m)
}
