package handlers

import (
	"net/http"

	"github.com/upb/workdesk/internal/access"
	"github.com/upb/workdesk/internal/observability"
	"github.com/upb/workdesk/middleware"
	"github.com/upb/workdesk/services"
	"github.com/upb/workdesk/utils"
	"go.uber.org/zap"
)

// CheckAccessRequest lists the permissions a page wants to render against
type CheckAccessRequest struct {
	Permissions []string `json:"permissions" validate:"required,min=1,max=64"`
}

// CheckAccessResponse maps each requested permission to the decision for
// the active role
type CheckAccessResponse struct {
	Role        access.Role     `json:"role"`
	Permissions map[string]bool `json:"permissions"`
}

// RoleDescription pairs a role with its identity provider label
type RoleDescription struct {
	Role  access.Role `json:"role"`
	Label string      `json:"label"`
}

// CatalogResponse lists every permission and role
type CatalogResponse struct {
	Permissions []string          `json:"permissions"`
	Roles       []RoleDescription `json:"roles"`
}

// AccessHandler answers permission queries for the presentation layer
type AccessHandler struct {
	resolver *access.Resolver
	metrics  *observability.Metrics
	logger   *zap.Logger
}

// NewAccessHandler creates a new AccessHandler
func NewAccessHandler(resolver *access.Resolver, metrics *observability.Metrics, logger *zap.Logger) *AccessHandler {
	return &AccessHandler{
		resolver: resolver,
		metrics:  metrics,
		logger:   logger,
	}
}

// HandleCheck handles POST /api/v1/access/check. Unknown permission
// strings are reported as denied.
func (h *AccessHandler) HandleCheck(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)

	sess := middleware.GetSessionFromContext(ctx)
	if sess == nil {
		HandleServiceError(w, services.ErrNoSession, h.logger)
		return
	}

	var req CheckAccessRequest
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

	role := sess.Role()
	decisions := make(map[string]bool, len(req.Permissions))
	for _, name := range req.Permissions {
		p, ok := access.ParsePermission(name)
		allowed := ok && h.resolver.HasPermission(role, p)
		decisions[name] = allowed
		if ok {
			h.metrics.RecordAccessDecision(p.String(), allowed)
		}
	}

	if err := utils.WriteOK(w, CheckAccessResponse{Role: role, Permissions: decisions}); err != nil {
		h.logger.Error("failed to write access check response", zap.Error(err))
	}
}

// HandleCatalog handles GET /api/v1/access/catalog
func (h *AccessHandler) HandleCatalog(w http.ResponseWriter, r *http.Request) {
	catalog := access.Catalog()
	perms := make([]string, len(catalog))
	for i, p := range catalog {
		perms[i] = p.String()
	}

	roles := make([]RoleDescription, 0, len(access.Roles()))
	for _, role := range access.Roles() {
		roles = append(roles, RoleDescription{Role: role, Label: role.Label()})
	}

	if err := utils.WriteOK(w, CatalogResponse{Permissions: perms, Roles: roles}); err != nil {
		h.logger.Error("failed to write catalog response", zap.Error(err))
	}
}
