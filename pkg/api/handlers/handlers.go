package handlers

import (
	"errors"
	"net/http"

	"tradetalk/pkg/auth"
	"tradetalk/pkg/identity"
	"tradetalk/pkg/models"
	"tradetalk/pkg/realtime"
	"tradetalk/pkg/store"
	"tradetalk/pkg/utils"

	"github.com/gorilla/mux"
)

// hub is the process realtime hub, shared so REST mutations can emit
// events. Set once by Register before the server accepts traffic.
var hub *realtime.Hub

// Register wires all /v1 routes.
func Register(r *mux.Router, h *realtime.Hub) {
	hub = h

	// messaging
	r.HandleFunc("/messages", createMessage).Methods(http.MethodPost)
	r.HandleFunc("/messages/conversations", listConversations).Methods(http.MethodGet)
	r.HandleFunc("/messages/conversation/{otherRef}", getConversationMessages).Methods(http.MethodGet)
	r.HandleFunc("/messages/conversation/{otherRef}/read", markConversationRead).Methods(http.MethodPost)
	r.HandleFunc("/messages/{id}", getMessage).Methods(http.MethodGet)
	r.HandleFunc("/messages/{id}/read", markMessageRead).Methods(http.MethodPut)

	// realtime + presence
	r.HandleFunc("/ws", serveWS).Methods(http.MethodGet)
	r.HandleFunc("/presence/{accountID}", getPresence).Methods(http.MethodGet)

	// directory (backend/admin keys only)
	r.HandleFunc("/accounts", createAccount).Methods(http.MethodPost)
	r.HandleFunc("/accounts/{id}", getAccount).Methods(http.MethodGet)
	r.HandleFunc("/contractors", createContractor).Methods(http.MethodPost)
	r.HandleFunc("/contractors/{id}", getContractor).Methods(http.MethodGet)
}

// caller resolves the request's verified account id and the identity it
// sends as. A zero status means success.
func caller(r *http.Request) (string, models.Resolved, int, string) {
	accountID, roleName, status, msg := auth.ResolveCallerFromRequest(r)
	if status != 0 {
		return "", models.Resolved{}, status, msg
	}
	sendAs, err := identity.ResolveCallerSendIdentity(accountID, models.Kind(roleName))
	if err != nil {
		if store.IsNotFound(err) {
			return "", models.Resolved{}, http.StatusNotFound, "caller profile not found"
		}
		return "", models.Resolved{}, http.StatusInternalServerError, "caller resolution failed"
	}
	return accountID, sendAs, 0, ""
}

// writeStoreError maps store/identity sentinels onto HTTP statuses.
func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrSenderNotFound):
		utils.JSONError(w, http.StatusNotFound, "sender profile not found")
	case errors.Is(err, store.ErrRecipientNotFound):
		utils.JSONError(w, http.StatusNotFound, "recipient not found")
	case errors.Is(err, store.ErrForbidden):
		utils.JSONError(w, http.StatusForbidden, "forbidden")
	case store.IsNotFound(err):
		utils.JSONError(w, http.StatusNotFound, "not found")
	default:
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
	}
}

func requireBackend(w http.ResponseWriter, r *http.Request) bool {
	role := r.Header.Get("X-Role-Name")
	if role != "backend" && role != "admin" {
		utils.JSONError(w, http.StatusForbidden, "forbidden")
		return false
	}
	return true
}
