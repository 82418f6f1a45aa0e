package routes

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/upb/workdesk/app"
	"github.com/upb/workdesk/handlers"
	"github.com/upb/workdesk/internal/access"
	"github.com/upb/workdesk/middleware"
	"github.com/upb/workdesk/utils"
)

// SetupRoutes configures all application routes and middleware
func SetupRoutes(deps *app.Dependencies) http.Handler {
	r := chi.NewRouter()

	// Core middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestInfo)
	r.Use(middleware.RequestMetrics(deps.Metrics, deps.Logger))
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(60 * time.Second))

	// CORS middleware
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(deps),
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check endpoints
	var db *sql.DB
	if deps.DB != nil {
		db = deps.DB.DB
	}
	health := handlers.NewHealthHandler(db, deps.Audit, deps.Resolver, deps.Logger)
	r.Get("/healthz", health.HandleHealth)
	r.Get("/readyz", health.HandleReadiness)

	obs := deps.Config.Observability
	if obs.MetricsEnabled {
		path := obs.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.Handle(path, deps.Metrics.Handler())
	}

	// OAuth2 auth endpoints (Cognito), rate limited per client IP
	r.Group(func(r chi.Router) {
		if deps.AuthRateLimit != nil {
			r.Use(deps.AuthRateLimit)
		}
		r.Route("/auth", func(r chi.Router) {
			r.Get("/login", handlers.AuthLoginHandler(deps))
			r.Get("/callback", handlers.AuthCallbackHandler(deps))
			r.Get("/logout", handlers.AuthLogoutHandler(deps))
		})
		// Cognito Hosted UI default callback path
		r.Get("/oauth2/idpresponse", handlers.AuthCallbackHandler(deps))
	})

	sessionHandler := handlers.NewSessionHandler(deps.Sessions, deps.Resolver, deps.Logger)
	accessHandler := handlers.NewAccessHandler(deps.Resolver, deps.Metrics, deps.Logger)
	roleHandler := handlers.NewRoleHandler(deps.Roles, deps.Logger)
	auditHandler := handlers.NewAuditHandler(deps.AuditLogs, deps.Logger)
	guard := deps.SessionMiddleware

	// API v1 routes, all behind a session
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(guard.RequireSession)

		r.Route("/session", func(r chi.Router) {
			r.Get("/", sessionHandler.HandleGetSession)
			r.Put("/role", sessionHandler.HandleSimulateRole)
			r.Delete("/role", sessionHandler.HandleResetRole)
		})

		r.Route("/access", func(r chi.Router) {
			r.Post("/check", accessHandler.HandleCheck)
			r.Get("/catalog", accessHandler.HandleCatalog)
		})

		// Role Management screen
		r.Route("/roles", func(r chi.Router) {
			r.Use(guard.RequirePermission(access.PermissionRolesManage))
			r.Get("/", roleHandler.HandleListRoles)
			r.Get("/history", roleHandler.HandleRoleHistory)
			r.Put("/{role}/permissions", roleHandler.HandleUpdateRolePermissions)
		})

		r.Route("/audit", func(r chi.Router) {
			r.Use(guard.RequirePermission(access.PermissionAdminAccess))
			r.Get("/logs", auditHandler.HandleListAuditLogs)
			r.Get("/logs/{id}", auditHandler.HandleGetAuditLog)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteNotFound(w, "Resource not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed", nil)
	})

	return r
}

func allowedOrigins(deps *app.Dependencies) []string {
	if origins := deps.Config.Server.AllowedOrigins; len(origins) > 0 {
		return origins
	}
	if front := deps.Config.Cognito.FrontEndURL; front != "" {
		return []string{front}
	}
	return []string{"http://localhost:*"}
}
