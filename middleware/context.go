package middleware

import (
	"context"
	"net"
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/upb/workdesk/internal/access"
	"github.com/upb/workdesk/services/audit"
)

// GetRequestIDFromContext retrieves the request ID set by chi's RequestID
// middleware
func GetRequestIDFromContext(ctx context.Context) string {
	return chimw.GetReqID(ctx)
}

// GetSessionFromContext retrieves the session attached by RequireSession,
// nil when there is none
func GetSessionFromContext(ctx context.Context) *access.Session {
	sess, err := access.FromContext(ctx)
	if err != nil {
		return nil
	}
	return sess
}

// RequestInfo attaches the request id, client address and user agent to the
// context so audit events can record them. It must run after RequestID and
// RealIP.
func RequestInfo(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := audit.WithRequestInfo(r.Context(), audit.RequestInfo{
			RequestID: chimw.GetReqID(r.Context()),
			IPAddress: clientIP(r.RemoteAddr),
			UserAgent: r.UserAgent(),
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func clientIP(remoteAddr string) string {
	if host, _, err := net.SplitHostPort(remoteAddr); err == nil {
		return host
	}
	return remoteAddr
}
