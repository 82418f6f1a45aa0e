package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/upb/workdesk/middleware"
	"github.com/upb/workdesk/models"
	"github.com/upb/workdesk/repositories"
	"github.com/upb/workdesk/services"
	"github.com/upb/workdesk/utils"
	"go.uber.org/zap"
)

const (
	defaultAuditPageSize = 50
	maxAuditPageSize     = 200
)

// AuditLogListResponse is one page of audit entries
type AuditLogListResponse struct {
	Logs   []*models.AuditLog `json:"logs"`
	Limit  int                `json:"limit"`
	Offset int                `json:"offset"`
}

// AuditHandler serves the audit trail
type AuditHandler struct {
	auditRepo repositories.AuditRepository
	logger    *zap.Logger
}

// NewAuditHandler creates a new AuditHandler
func NewAuditHandler(auditRepo repositories.AuditRepository, logger *zap.Logger) *AuditHandler {
	return &AuditHandler{
		auditRepo: auditRepo,
		logger:    logger,
	}
}

// HandleListAuditLogs handles GET /api/v1/audit/logs. The optional action
// and user_id filters are mutually exclusive.
func (h *AuditHandler) HandleListAuditLogs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)
	query := r.URL.Query()

	limit, offset, ok := parsePage(w, query.Get("limit"), query.Get("offset"))
	if !ok {
		return
	}

	action := query.Get("action")
	userIDStr := query.Get("user_id")
	if action != "" && userIDStr != "" {
		_ = utils.WriteBadRequest(w, "Filter by action or user_id, not both", nil)
		return
	}

	var (
		logs []*models.AuditLog
		err  error
	)
	switch {
	case action != "":
		if !models.AuditAction(action).Valid() {
			_ = utils.WriteBadRequest(w, "Invalid action", map[string]interface{}{"action": action})
			return
		}
		logs, err = h.auditRepo.GetByAction(ctx, models.AuditAction(action), limit, offset)
	case userIDStr != "":
		userID, parseErr := uuid.Parse(userIDStr)
		if parseErr != nil {
			_ = utils.WriteBadRequest(w, "Invalid user_id format", nil)
			return
		}
		logs, err = h.auditRepo.GetByUserID(ctx, userID, limit, offset)
	default:
		logs, err = h.auditRepo.List(ctx, limit, offset)
	}
	if err != nil {
		h.logger.Error("failed to list audit logs",
			zap.String("request_id", requestID),
			zap.Error(err))
		HandleServiceError(w, services.WrapInternal("failed to list audit logs", err), h.logger)
		return
	}
	if logs == nil {
		logs = []*models.AuditLog{}
	}

	if err := utils.WriteOK(w, AuditLogListResponse{Logs: logs, Limit: limit, Offset: offset}); err != nil {
		h.logger.Error("failed to write audit log response", zap.Error(err))
	}
}

// HandleGetAuditLog handles GET /api/v1/audit/logs/{id}
func (h *AuditHandler) HandleGetAuditLog(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		_ = utils.WriteBadRequest(w, "Invalid audit log ID format", nil)
		return
	}

	entry, err := h.auditRepo.GetByID(r.Context(), id)
	if errors.Is(err, repositories.ErrNotFound) {
		HandleServiceError(w, services.ErrAuditLogNotFound, h.logger)
		return
	}
	if err != nil {
		HandleServiceError(w, services.WrapInternal("failed to load audit log", err), h.logger)
		return
	}

	if err := utils.WriteOK(w, entry); err != nil {
		h.logger.Error("failed to write audit log response", zap.Error(err))
	}
}

func parsePage(w http.ResponseWriter, rawLimit, rawOffset string) (int, int, bool) {
	limit := defaultAuditPageSize
	if rawLimit != "" {
		parsed, err := strconv.Atoi(rawLimit)
		if err != nil || parsed < 1 {
			_ = utils.WriteBadRequest(w, "Invalid limit", map[string]interface{}{"limit": rawLimit})
			return 0, 0, false
		}
		limit = min(parsed, maxAuditPageSize)
	}

	offset := 0
	if rawOffset != "" {
		parsed, err := strconv.Atoi(rawOffset)
		if err != nil || parsed < 0 {
			_ = utils.WriteBadRequest(w, "Invalid offset", map[string]interface{}{"offset": rawOffset})
			return 0, 0, false
		}
		offset = parsed
	}

	return limit, offset, true
}
