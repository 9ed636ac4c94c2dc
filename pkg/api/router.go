// Package api assembles the versioned HTTP surface. Routing is
// gorilla/mux; every /v1 route sits behind the signed-caller middleware
// so handlers can trust the caller identity in the request context.
package api

import (
	"net/http"

	"tradetalk/pkg/api/handlers"
	"tradetalk/pkg/auth"
	"tradetalk/pkg/realtime"

	"github.com/gorilla/mux"
)

// Router builds the /v1 router. The hub is shared with the app so REST
// mutations can fan out realtime events.
func Router(hub *realtime.Hub) http.Handler {
	r := mux.NewRouter()
	v1 := r.PathPrefix("/v1").Subrouter()
	v1.Use(auth.RequireSignedCaller)
	handlers.Register(v1, hub)
	return r
}
