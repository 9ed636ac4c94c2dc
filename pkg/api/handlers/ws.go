package handlers

import (
	"net/http"

	"tradetalk/pkg/utils"

	"github.com/gorilla/mux"
)

// serveWS hands the connection to the hub. The socket is registered
// anonymously; the client binds it to an account with its register
// event after the upgrade.
func serveWS(w http.ResponseWriter, r *http.Request) {
	hub.ServeWS(w, r)
}

// getPresence reports whether an account currently holds a registered
// connection.
func getPresence(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if _, _, status, msg := caller(r); status != 0 {
		utils.JSONError(w, status, msg)
		return
	}
	accountID := mux.Vars(r)["accountID"]
	_ = utils.JSONWrite(w, http.StatusOK, map[string]interface{}{
		"accountId": accountID,
		"online":    hub.Presence().IsOnline(accountID),
	})
}
