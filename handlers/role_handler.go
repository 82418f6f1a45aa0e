package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/upb/workdesk/internal/access"
	"github.com/upb/workdesk/middleware"
	"github.com/upb/workdesk/models"
	"github.com/upb/workdesk/utils"
	"go.uber.org/zap"
)

// UpdateRolePermissionsRequest replaces the permission set of one role
type UpdateRolePermissionsRequest struct {
	Permissions []string `json:"permissions" validate:"max=64"`
}

// RoleGrantsResponse is one row of the role management screen
type RoleGrantsResponse struct {
	Role        access.Role `json:"role"`
	Label       string      `json:"label"`
	Permissions []string    `json:"permissions"`
}

// RoleTableResponse is the full role permission table
type RoleTableResponse struct {
	Version  int64                `json:"version"`
	ReadOnly bool                 `json:"read_only"`
	Roles    []RoleGrantsResponse `json:"roles"`
}

// RoleService manages the role permission table
type RoleService interface {
	Table(ctx context.Context) access.Table
	Persisted() bool
	UpdateRolePermissions(ctx context.Context, actor *access.Session, role string, permissions []string) (access.Table, error)
	History(ctx context.Context, limit int) ([]*models.RoleTableVersion, error)
}

// RoleHandler handles the role management endpoints
type RoleHandler struct {
	roles  RoleService
	logger *zap.Logger
}

// NewRoleHandler creates a new RoleHandler
func NewRoleHandler(roles RoleService, logger *zap.Logger) *RoleHandler {
	return &RoleHandler{
		roles:  roles,
		logger: logger,
	}
}

// HandleListRoles handles GET /api/v1/roles
func (h *RoleHandler) HandleListRoles(w http.ResponseWriter, r *http.Request) {
	h.writeTable(w, h.roles.Table(r.Context()))
}

// HandleUpdateRolePermissions handles PUT /api/v1/roles/{role}/permissions
func (h *RoleHandler) HandleUpdateRolePermissions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)
	role := chi.URLParam(r, "role")

	var req UpdateRolePermissionsRequest
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

	table, err := h.roles.UpdateRolePermissions(ctx, middleware.GetSessionFromContext(ctx), role, req.Permissions)
	if err != nil {
		h.logger.Warn("role permission update rejected",
			zap.String("request_id", requestID),
			zap.String("role", role),
			zap.Error(err))
		HandleServiceError(w, err, h.logger)
		return
	}

	h.writeTable(w, table)
}

// HandleRoleHistory handles GET /api/v1/roles/history
func (h *RoleHandler) HandleRoleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			_ = utils.WriteBadRequest(w, "Invalid limit", map[string]interface{}{"limit": raw})
			return
		}
		limit = parsed
	}

	versions, err := h.roles.History(r.Context(), limit)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	if err := utils.WriteOK(w, versions); err != nil {
		h.logger.Error("failed to write role history response", zap.Error(err))
	}
}

func (h *RoleHandler) writeTable(w http.ResponseWriter, table access.Table) {
	resp := RoleTableResponse{
		Version:  table.Version,
		ReadOnly: !h.roles.Persisted(),
		Roles:    make([]RoleGrantsResponse, 0, len(access.Roles())),
	}
	for _, role := range access.Roles() {
		resp.Roles = append(resp.Roles, RoleGrantsResponse{
			Role:        role,
			Label:       role.Label(),
			Permissions: table.Grants(role).Strings(),
		})
	}

	if err := utils.WriteOK(w, resp); err != nil {
		h.logger.Error("failed to write role table response", zap.Error(err))
	}
}
