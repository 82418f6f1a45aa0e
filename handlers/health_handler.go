package handlers

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"time"

	"github.com/upb/workdesk/internal/access"
	"github.com/upb/workdesk/services/audit"
	"github.com/upb/workdesk/utils"
	"go.uber.org/zap"
)

const (
	statusHealthy   = "healthy"
	statusUnhealthy = "unhealthy"
)

var errAuditStopped = errors.New("audit pipeline is not running")

// HealthResponse is the body of /healthz and /readyz
type HealthResponse struct {
	Status           string            `json:"status"`
	Timestamp        string            `json:"timestamp"`
	Checks           map[string]string `json:"checks,omitempty"`
	Audit            *audit.Stats      `json:"audit,omitempty"`
	RoleTableVersion *int64            `json:"role_table_version,omitempty"`
}

// AuditStatsProvider reports the state of the audit pipeline
type AuditStatsProvider interface {
	GetStats() audit.Stats
}

// RoleTableProvider exposes the installed role permission table
type RoleTableProvider interface {
	Table() access.Table
}

// HealthHandler serves liveness and readiness probes
type HealthHandler struct {
	db     *sql.DB
	audit  AuditStatsProvider
	roles  RoleTableProvider
	logger *zap.Logger
}

// NewHealthHandler creates a new HealthHandler. Every dependency may be nil,
// in which case its check is skipped.
func NewHealthHandler(db *sql.DB, auditStats AuditStatsProvider, roles RoleTableProvider, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		db:     db,
		audit:  auditStats,
		roles:  roles,
		logger: logger,
	}
}

// HandleHealth handles GET /healthz. It answers 200 while the process runs.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	_ = utils.WriteOK(w, HealthResponse{
		Status:    statusHealthy,
		Timestamp: now(),
	})
}

// HandleReadiness handles GET /readyz
func (h *HealthHandler) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	resp := HealthResponse{
		Status:    statusHealthy,
		Timestamp: now(),
		Checks:    make(map[string]string),
	}
	record := func(name string, err error) {
		if err == nil {
			resp.Checks[name] = statusHealthy
			return
		}
		h.logger.Warn("readiness check failed", zap.String("check", name), zap.Error(err))
		resp.Checks[name] = statusUnhealthy
		resp.Status = statusUnhealthy
	}

	record("database", h.checkDatabase(ctx))

	if h.audit != nil {
		stats := h.audit.GetStats()
		resp.Audit = &stats
		if stats.Started {
			record("audit", nil)
		} else {
			record("audit", errAuditStopped)
		}
	}

	if h.roles != nil {
		table := h.roles.Table()
		resp.RoleTableVersion = &table.Version
		record("role_table", table.Validate())
	}

	status := http.StatusOK
	if resp.Status != statusHealthy {
		status = http.StatusServiceUnavailable
	}
	if err := utils.WriteJSON(w, status, utils.SuccessResponse{Data: resp}); err != nil {
		h.logger.Error("failed to write readiness response", zap.Error(err))
	}
}

func (h *HealthHandler) checkDatabase(ctx context.Context) error {
	if h.db == nil {
		return nil
	}
	if err := h.db.PingContext(ctx); err != nil {
		return err
	}
	var one int
	return h.db.QueryRowContext(ctx, "SELECT 1").Scan(&one)
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}
