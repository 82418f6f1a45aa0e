package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/upb/workdesk/internal/access"
	"github.com/upb/workdesk/middleware"
	"github.com/upb/workdesk/services"
	"github.com/upb/workdesk/utils"
	"go.uber.org/zap"
)

// SimulateRoleRequest represents a request to switch the active role
type SimulateRoleRequest struct {
	Role string `json:"role" validate:"required"`
}

// SessionResponse describes the caller's session
type SessionResponse struct {
	UserID             uuid.UUID   `json:"user_id"`
	Email              string      `json:"email"`
	Name               string      `json:"name,omitempty"`
	Role               access.Role `json:"role"`
	AuthenticatedRole  access.Role `json:"authenticated_role"`
	Simulating         bool        `json:"simulating"`
	SimulatorAvailable bool        `json:"simulator_available"`
	Permissions        []string    `json:"permissions"`
	CreatedAt          string      `json:"created_at"`
}

// SessionService changes the active role of a session
type SessionService interface {
	SimulateRole(ctx context.Context, id uuid.UUID, role string) (*access.Session, error)
	ResetRole(ctx context.Context, id uuid.UUID) (*access.Session, error)
	SimulatorEnabled() bool
}

// SessionHandler handles session-related HTTP requests
type SessionHandler struct {
	sessions SessionService
	resolver *access.Resolver
	logger   *zap.Logger
}

// NewSessionHandler creates a new SessionHandler
func NewSessionHandler(sessions SessionService, resolver *access.Resolver, logger *zap.Logger) *SessionHandler {
	return &SessionHandler{
		sessions: sessions,
		resolver: resolver,
		logger:   logger,
	}
}

// HandleGetSession handles GET /api/v1/session
func (h *SessionHandler) HandleGetSession(w http.ResponseWriter, r *http.Request) {
	sess := middleware.GetSessionFromContext(r.Context())
	if sess == nil {
		HandleServiceError(w, services.ErrNoSession, h.logger)
		return
	}
	h.writeSession(w, sess)
}

// HandleSimulateRole handles PUT /api/v1/session/role
func (h *SessionHandler) HandleSimulateRole(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)

	sess := middleware.GetSessionFromContext(ctx)
	if sess == nil {
		HandleServiceError(w, services.ErrNoSession, h.logger)
		return
	}

	var req SimulateRoleRequest
	if err := utils.DecodeJSON(w, r, &req); err != nil {
		h.logger.Warn("failed to parse request body",
			zap.String("request_id", requestID),
			zap.Error(err))
		_ = utils.WriteBadRequest(w, "Invalid request body", nil)
		return
	}
	if err := utils.ValidateStruct(&req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	updated, err := h.sessions.SimulateRole(ctx, sess.ID, req.Role)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	h.logger.Info("role simulation started",
		zap.String("request_id", requestID),
		zap.String("session_id", updated.ID.String()),
		zap.String("role", updated.Role().String()))
	h.writeSession(w, updated)
}

// HandleResetRole handles DELETE /api/v1/session/role
func (h *SessionHandler) HandleResetRole(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	sess := middleware.GetSessionFromContext(ctx)
	if sess == nil {
		HandleServiceError(w, services.ErrNoSession, h.logger)
		return
	}

	updated, err := h.sessions.ResetRole(ctx, sess.ID)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	h.writeSession(w, updated)
}

func (h *SessionHandler) writeSession(w http.ResponseWriter, sess *access.Session) {
	perms, err := sess.Permissions(h.resolver)
	if err != nil {
		HandleServiceError(w, services.FromAccessError(err), h.logger)
		return
	}

	authenticated := sess.AuthenticatedRole()
	resp := SessionResponse{
		UserID:            sess.Identity.UserID,
		Email:             sess.Identity.Email,
		Name:              sess.Identity.Name,
		Role:              sess.Role(),
		AuthenticatedRole: authenticated,
		Simulating:        sess.Simulating(),
		SimulatorAvailable: h.sessions.SimulatorEnabled() &&
			h.resolver.HasPermission(authenticated, access.PermissionRolesManage),
		Permissions: perms.Strings(),
		CreatedAt:   sess.CreatedAt.UTC().Format(time.RFC3339),
	}

	if err := utils.WriteOK(w, resp); err != nil {
		h.logger.Error("failed to write session response", zap.Error(err))
	}
}
