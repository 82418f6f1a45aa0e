package handlers

import (
	"net/http"

	"github.com/upb/workdesk/auth"
	"github.com/upb/workdesk/utils"
)

// AuthDeps exposes the auth handler, which is nil when Cognito is not configured
type AuthDeps interface {
	AuthHandler() *auth.Handler
}

// AuthLoginHandler redirects to the hosted login page
func AuthLoginHandler(deps AuthDeps) http.HandlerFunc {
	return authEndpoint(deps, (*auth.Handler).HandleLogin)
}

// AuthCallbackHandler completes the code exchange and opens a session
func AuthCallbackHandler(deps AuthDeps) http.HandlerFunc {
	return authEndpoint(deps, (*auth.Handler).HandleCallback)
}

// AuthLogoutHandler ends the session
func AuthLogoutHandler(deps AuthDeps) http.HandlerFunc {
	return authEndpoint(deps, (*auth.Handler).HandleLogout)
}

func authEndpoint(deps AuthDeps, serve func(*auth.Handler, http.ResponseWriter, *http.Request)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h := deps.AuthHandler()
		if h == nil {
			_ = utils.WriteInternalServerError(w, "Authentication not configured")
			return
		}
		serve(h, w, r)
	}
}
