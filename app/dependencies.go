package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/securecookie"
	"github.com/upb/workdesk/auth"
	"github.com/upb/workdesk/cognito"
	"github.com/upb/workdesk/config"
	"github.com/upb/workdesk/internal/access"
	"github.com/upb/workdesk/internal/observability"
	"github.com/upb/workdesk/middleware"
	"github.com/upb/workdesk/repositories"
	"github.com/upb/workdesk/repositories/postgres"
	"github.com/upb/workdesk/services"
	"github.com/upb/workdesk/services/audit"
	"github.com/upb/workdesk/services/roles"
	"github.com/upb/workdesk/services/sessions"
	"go.uber.org/zap"
)

const auditStopTimeout = 5 * time.Second

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config  *config.Config
	DB      *postgres.DB
	Logger  *zap.Logger
	Metrics *observability.Metrics

	// Repository Factory
	RepoFactory *postgres.RepositoryFactory

	// Repositories
	Users           repositories.UserRepository
	RolePermissions repositories.RolePermissionRepository
	AuditLogs       repositories.AuditRepository
	TxManager       repositories.TransactionManager

	// Access control
	Resolver *access.Resolver
	Roles    *roles.Service
	Audit    *audit.AuditService
	Sessions *sessions.Store
	Cookies  *auth.Cookies

	// Auth
	authHandler       *auth.Handler
	SessionMiddleware *middleware.SessionMiddleware
	// AuthRateLimit guards the login endpoints; nil when rate limiting is off
	AuthRateLimit func(http.Handler) http.Handler

	stopWatch context.CancelFunc
}

// AuthHandler returns the auth handler for route wiring (implements handlers.AuthDeps)
func (d *Dependencies) AuthHandler() *auth.Handler {
	return d.authHandler
}

// NewDependencies connects to PostgreSQL and wires up all application
// dependencies.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	factory, err := postgres.NewRepositoryFactory(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := factory.InitSchema(ctx); err != nil {
		_ = factory.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	deps, err := NewDependenciesFromRepositories(ctx, cfg, logger, factory.NewRepositories(), factory.GetTransactionManager())
	if err != nil {
		_ = factory.Close()
		return nil, err
	}
	deps.RepoFactory = factory
	deps.DB = factory.GetDB()

	logger.Info("all dependencies initialized successfully")
	return deps, nil
}

// NewDependenciesFromRepositories wires the services on top of already
// constructed repositories
func NewDependenciesFromRepositories(ctx context.Context, cfg *config.Config, logger *zap.Logger, repos *repositories.Repositories, txManager repositories.TransactionManager) (*Dependencies, error) {
	d := &Dependencies{
		Config:          cfg,
		Logger:          logger,
		Metrics:         observability.NewMetrics(),
		Users:           repos.Users,
		RolePermissions: repos.RolePermissions,
		AuditLogs:       repos.AuditLogs,
		TxManager:       txManager,
	}

	if err := d.initAccess(ctx); err != nil {
		_ = d.shutdownServices()
		return nil, fmt.Errorf("failed to initialize access control: %w", err)
	}

	if err := d.initSessions(); err != nil {
		_ = d.shutdownServices()
		return nil, fmt.Errorf("failed to initialize sessions: %w", err)
	}

	if err := d.initAuth(); err != nil {
		_ = d.shutdownServices()
		return nil, fmt.Errorf("failed to initialize auth: %w", err)
	}
	return d, nil
}

// initAccess builds the resolver, starts the audit pipeline and installs
// the role permission table
func (d *Dependencies) initAccess(ctx context.Context) error {
	cfg := d.Config

	resolver, err := access.NewResolver(access.DefaultTable(), cfg.Access.UnknownRolePolicy, d.Logger)
	if err != nil {
		return err
	}
	d.Resolver = resolver

	auditCfg := audit.DefaultConfig()
	auditCfg.Metrics = d.Metrics
	d.Audit = audit.NewAuditService(d.AuditLogs, d.Logger, auditCfg)
	if err := d.Audit.Start(); err != nil {
		return fmt.Errorf("failed to start audit service: %w", err)
	}

	d.Roles = roles.NewService(roles.Config{
		Repo:      d.RolePermissions,
		TxManager: d.TxManager,
		Resolver:  resolver,
		Auditor:   d.Audit,
		Metrics:   d.Metrics,
		Logger:    d.Logger,
		Persisted: cfg.Access.PersistedTable,
	})
	if err := d.Roles.Load(ctx); err != nil {
		return err
	}

	if cfg.Access.PersistedTable && cfg.Access.RefreshInterval > 0 {
		watchCtx, cancel := context.WithCancel(context.Background())
		d.stopWatch = cancel
		go d.Roles.Watch(watchCtx, cfg.Access.RefreshInterval)
	}

	if err := d.Metrics.RegisterGaugeFunc("audit_pending_events",
		"Audit events waiting to be written.",
		func() float64 { return float64(d.Audit.GetStats().PendingEvents) }); err != nil {
		return err
	}

	d.Logger.Info("access control initialized",
		zap.String("unknown_role_policy", string(resolver.Policy())),
		zap.Bool("persisted_table", cfg.Access.PersistedTable),
		zap.Int64("table_version", resolver.Table().Version))
	return nil
}

func (d *Dependencies) initSessions() error {
	cfg := d.Config

	d.Sessions = sessions.NewStore(sessions.Config{
		TTL:              cfg.Sessions.TTL,
		MaxEntries:       cfg.Sessions.MaxEntries,
		SimulatorEnabled: cfg.Access.RoleSimulatorEnabled,
	}, d.Users, d.Resolver, d.Audit, d.Metrics, d.Logger)

	if err := d.Metrics.RegisterGaugeFunc("sessions_active",
		"Sessions currently held in memory.",
		func() float64 { return float64(d.Sessions.Len()) }); err != nil {
		return err
	}

	hashKey := []byte(cfg.Sessions.HashKey)
	if len(hashKey) == 0 {
		// Validate rejects this in production; sessions will not survive
		// a restart
		d.Logger.Warn("SESSION_HASH_KEY not set, using a random key")
		hashKey = securecookie.GenerateRandomKey(32)
	}
	var blockKey []byte
	if cfg.Sessions.BlockKey != "" {
		blockKey = []byte(cfg.Sessions.BlockKey)
	}
	d.Cookies = auth.NewCookies(hashKey, blockKey, auth.CookieConfig{
		SessionName: cfg.Sessions.CookieName,
		Secure:      cfg.Sessions.CookieSecure,
		TTL:         cfg.Sessions.TTL,
	})

	d.SessionMiddleware = middleware.NewSessionMiddleware(d.Sessions, d.Cookies, d.Resolver, d.Audit, d.Metrics, d.Logger)

	d.Logger.Info("session store initialized",
		zap.Duration("ttl", cfg.Sessions.TTL),
		zap.Int("max_entries", cfg.Sessions.MaxEntries),
		zap.Bool("role_simulator", cfg.Access.RoleSimulatorEnabled))
	return nil
}

func (d *Dependencies) initAuth() error {
	cfg := d.Config
	if cfg.RateLimit.Enabled {
		limit, err := middleware.RateLimit(cfg.RateLimit.Auth, d.Metrics, d.Logger)
		if err != nil {
			return err
		}
		d.AuthRateLimit = limit
	}

	if cfg.Cognito.Domain == "" || cfg.Cognito.ClientID == "" {
		d.Logger.Warn("cognito not configured, auth endpoints disabled")
		return nil
	}

	validator := cognito.NewCognitoValidator(cognito.Config{
		Region:       cfg.Cognito.Region,
		UserPoolID:   cfg.Cognito.UserPoolID,
		ClientID:     cfg.Cognito.ClientID,
		CacheTTL:     time.Hour,
		HTTPTimeout:  10 * time.Second,
		FetchRetries: 2,
	})
	exchanger := services.NewCognitoTokenExchanger(cfg.Cognito)
	d.authHandler = auth.NewHandler(cfg.Cognito, exchanger, validator, d.Sessions, d.Cookies, d.Logger)
	d.Logger.Info("auth handler initialized")
	return nil
}

func (d *Dependencies) shutdownServices() error {
	if d.stopWatch != nil {
		d.stopWatch()
		d.stopWatch = nil
	}
	if d.Audit != nil && d.Audit.GetStats().Started {
		return d.Audit.Stop(auditStopTimeout)
	}
	return nil
}

// Close gracefully shuts down all dependencies. Pending audit events are
// flushed before the database is closed.
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	var errs []error

	if err := d.shutdownServices(); err != nil {
		errs = append(errs, fmt.Errorf("failed to stop audit service: %w", err))
	}

	if d.RepoFactory != nil {
		if err := d.RepoFactory.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		} else {
			d.Logger.Info("database connection closed")
		}
		d.RepoFactory = nil
	}

	if d.Logger != nil {
		_ = d.Logger.Sync()
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during shutdown: %v", errs)
	}

	return nil
}
