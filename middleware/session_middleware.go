package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/upb/workdesk/internal/access"
	"github.com/upb/workdesk/internal/observability"
	"github.com/upb/workdesk/utils"
	"go.uber.org/zap"
)

// SessionLookup finds live sessions
type SessionLookup interface {
	Get(id uuid.UUID) (*access.Session, error)
	Lookup(raw string) (*access.Session, error)
}

// SessionCookieReader decodes the session cookie
type SessionCookieReader interface {
	ReadSession(r *http.Request) (uuid.UUID, bool)
}

// AccessAuditor records denied requests
type AccessAuditor interface {
	LogAccessDenied(ctx context.Context, sess *access.Session, permission access.Permission, route string) error
}

// SessionMiddleware attaches sessions to requests and guards routes by
// permission
type SessionMiddleware struct {
	sessions SessionLookup
	cookies  SessionCookieReader
	resolver *access.Resolver
	auditor  AccessAuditor
	metrics  *observability.Metrics
	logger   *zap.Logger
}

// NewSessionMiddleware creates a new SessionMiddleware
func NewSessionMiddleware(sessions SessionLookup, cookies SessionCookieReader, resolver *access.Resolver, auditor AccessAuditor, metrics *observability.Metrics, logger *zap.Logger) *SessionMiddleware {
	return &SessionMiddleware{
		sessions: sessions,
		cookies:  cookies,
		resolver: resolver,
		auditor:  auditor,
		metrics:  metrics,
		logger:   logger,
	}
}

// RequireSession loads the session named by the Authorization header or,
// failing that, the session cookie
func (m *SessionMiddleware) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		requestID := GetRequestIDFromContext(ctx)

		sess, err := m.loadSession(r)
		if err != nil {
			m.logger.Debug("no valid session",
				zap.String("request_id", requestID),
				zap.Error(err))
			_ = utils.WriteUnauthorized(w, "Authentication required")
			return
		}

		m.logger.Debug("session loaded",
			zap.String("request_id", requestID),
			zap.String("session_id", sess.ID.String()),
			zap.String("role", sess.Role().String()))

		next.ServeHTTP(w, r.WithContext(access.NewContext(ctx, sess)))
	})
}

func (m *SessionMiddleware) loadSession(r *http.Request) (*access.Session, error) {
	if token := extractBearerToken(r); token != "" {
		return m.sessions.Lookup(token)
	}
	if m.cookies != nil {
		if id, ok := m.cookies.ReadSession(r); ok {
			return m.sessions.Get(id)
		}
	}
	return nil, access.ErrNoSession
}

// RequirePermission allows the request only when the active role of the
// session holds permission. It must run after RequireSession.
func (m *SessionMiddleware) RequirePermission(permission access.Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			requestID := GetRequestIDFromContext(ctx)

			sess, err := access.FromContext(ctx)
			if err != nil {
				m.logger.Error("session not found in context",
					zap.String("request_id", requestID))
				_ = utils.WriteUnauthorized(w, "Authentication required")
				return
			}

			allowed, err := sess.Can(m.resolver, permission)
			if err != nil {
				m.logger.Error("permission check failed",
					zap.String("request_id", requestID),
					zap.Error(err))
				allowed = false
			}
			m.metrics.RecordAccessDecision(permission.String(), allowed)

			if !allowed {
				route := r.Method + " " + r.URL.Path
				m.logger.Warn("insufficient permissions",
					zap.String("request_id", requestID),
					zap.String("session_id", sess.ID.String()),
					zap.String("role", sess.Role().String()),
					zap.String("required_permission", permission.String()),
					zap.String("route", route))
				if m.auditor != nil {
					if err := m.auditor.LogAccessDenied(ctx, sess, permission, route); err != nil {
						m.logger.Warn("failed to queue access denied event", zap.Error(err))
					}
				}
				_ = utils.WriteForbidden(w, "Insufficient permissions")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// extractBearerToken extracts the Bearer token from the Authorization header
func extractBearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return ""
	}

	return strings.TrimSpace(parts[1])
}
