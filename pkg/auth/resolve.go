package auth

import (
	"net/http"
	"strings"

	"tradetalk/pkg/logger"
)

func validateCaller(a string) (bool, string) {
	if a == "" {
		return false, "caller account required"
	}
	if len(a) > 128 {
		return false, "caller account too long"
	}
	return true, ""
}

// ResolveCallerFromRequest is the single canonical resolver handlers
// should call. It prefers a signature-verified account (in context). If
// a signature is present it is authoritative; any conflicting account
// provided via header or query causes a 403. When no signature is
// present, backend/admin tiers may supply the caller via the X-User-ID
// header or ?account= query. Frontend callers require a signature and
// receive 401 when it is missing.
//
// Returns (accountID, callerRole, httpStatus, message); status 0 means
// success.
func ResolveCallerFromRequest(r *http.Request) (string, string, int, string) {
	callerRole := strings.TrimSpace(r.Header.Get("X-User-Role"))

	if id := CallerAccountFromContext(r.Context()); id != "" {
		if q := strings.TrimSpace(r.URL.Query().Get("account")); q != "" && q != id {
			logger.Warn("caller_mismatch_signature_query", "signature", id, "query", q, "path", r.URL.Path)
			return "", "", http.StatusForbidden, "caller mismatch between signature and query param"
		}
		if cr := CallerRoleFromContext(r.Context()); cr != "" {
			callerRole = cr
		}
		return id, callerRole, 0, ""
	}

	// No signature; allow backend/admin tiers to supply the caller.
	role := r.Header.Get("X-Role-Name")
	if role == "backend" || role == "admin" {
		if h := strings.TrimSpace(r.Header.Get("X-User-ID")); h != "" {
			if ok, msg := validateCaller(h); !ok {
				return "", "", http.StatusBadRequest, msg
			}
			logger.Debug("caller_from_header_backend", "account", h, "path", r.URL.Path)
			return h, callerRole, 0, ""
		}
		if q := strings.TrimSpace(r.URL.Query().Get("account")); q != "" {
			if ok, msg := validateCaller(q); !ok {
				return "", "", http.StatusBadRequest, msg
			}
			logger.Debug("caller_from_query_backend", "account", q, "path", r.URL.Path)
			return q, callerRole, 0, ""
		}
		logger.Warn("backend_missing_caller", "remote", r.RemoteAddr, "path", r.URL.Path)
		return "", "", http.StatusBadRequest, "caller account required for backend requests"
	}

	logger.Warn("missing_caller_signature", "role", role, "remote", r.RemoteAddr, "path", r.URL.Path)
	return "", "", http.StatusUnauthorized, "missing or invalid caller signature"
}
