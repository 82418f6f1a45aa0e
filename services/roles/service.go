// Package roles manages the role permission table behind the Role
// Management screen.
package roles

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/upb/workdesk/internal/access"
	"github.com/upb/workdesk/internal/observability"
	"github.com/upb/workdesk/models"
	"github.com/upb/workdesk/repositories"
	"github.com/upb/workdesk/services"
	"go.uber.org/zap"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

// Auditor records role table changes
type Auditor interface {
	LogRolePermissionsUpdated(ctx context.Context, actor *access.Session, role access.Role, version int64, perms access.PermissionSet) error
}

// Service loads, edits and publishes the role permission table
type Service struct {
	repo      repositories.RolePermissionRepository
	txManager repositories.TransactionManager
	resolver  *access.Resolver
	auditor   Auditor
	metrics   *observability.Metrics
	logger    *zap.Logger
	persisted bool

	// mu serializes writes so the resolver never installs an older
	// version over a newer one
	mu sync.Mutex
}

// Config holds the Service collaborators
type Config struct {
	Repo      repositories.RolePermissionRepository
	TxManager repositories.TransactionManager
	Resolver  *access.Resolver
	Auditor   Auditor
	Metrics   *observability.Metrics
	Logger    *zap.Logger
	Persisted bool
}

// NewService creates a new role table service
func NewService(cfg Config) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		repo:      cfg.Repo,
		txManager: cfg.TxManager,
		resolver:  cfg.Resolver,
		auditor:   cfg.Auditor,
		metrics:   cfg.Metrics,
		logger:    logger,
		persisted: cfg.Persisted,
	}
}

// Persisted reports whether the table is stored in the database
func (s *Service) Persisted() bool {
	return s.persisted
}

// Load installs the stored table in the resolver. An empty store is
// seeded with the built-in table first. With persistence disabled the
// built-in table already held by the resolver is kept.
func (s *Service) Load(ctx context.Context) error {
	if !s.persisted {
		s.metrics.SetRoleTableVersion(s.resolver.Table().Version)
		s.logger.Info("role table is static", zap.Int64("version", s.resolver.Table().Version))
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	version, err := s.repo.CurrentVersion(ctx)
	if err != nil {
		return fmt.Errorf("failed to read role table version: %w", err)
	}

	if version == 0 {
		version, err = services.WithTransactionResult(ctx, s.txManager, func(ctx context.Context, tx repositories.Transaction) (int64, error) {
			return s.repo.Seed(ctx, models.GrantsFromTable(access.DefaultTable()))
		})
		if err != nil {
			return fmt.Errorf("failed to seed role table: %w", err)
		}
		s.logger.Info("seeded role table with defaults", zap.Int64("version", version))
	}

	return s.install(ctx, version)
}

// install reads every grant and swaps the resulting table into the resolver
func (s *Service) install(ctx context.Context, version int64) error {
	grants, err := s.repo.ListGrants(ctx)
	if err != nil {
		return fmt.Errorf("failed to read role grants: %w", err)
	}

	table := models.BuildTable(version, grants)
	if err := s.resolver.Replace(table); err != nil {
		return fmt.Errorf("stored role table is invalid: %w", err)
	}
	s.metrics.SetRoleTableVersion(version)
	return nil
}

// Refresh reloads the table when the store holds a newer version than the
// resolver. It returns true when a new table was installed.
func (s *Service) Refresh(ctx context.Context) (bool, error) {
	if !s.persisted {
		return false, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	version, err := s.repo.CurrentVersion(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to read role table version: %w", err)
	}
	if version <= s.resolver.Table().Version {
		return false, nil
	}
	if err := s.install(ctx, version); err != nil {
		return false, err
	}
	return true, nil
}

// Watch calls Refresh every interval until ctx is done
func (s *Service) Watch(ctx context.Context, interval time.Duration) {
	if !s.persisted || interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			changed, err := s.Refresh(ctx)
			if err != nil {
				s.logger.Error("failed to refresh role table", zap.Error(err))
				continue
			}
			if changed {
				s.logger.Info("role table refreshed from store",
					zap.Int64("version", s.resolver.Table().Version))
			}
		}
	}
}

// Table returns the table currently used for access decisions
func (s *Service) Table(ctx context.Context) access.Table {
	return s.resolver.Table()
}

// UpdateRolePermissions replaces the permission set of one role. The new
// set must be non-empty and contain catalog permissions only. The change
// is stored, installed in the resolver and audited.
func (s *Service) UpdateRolePermissions(ctx context.Context, actor *access.Session, role string, permissions []string) (access.Table, error) {
	if !s.persisted {
		return access.Table{}, services.ErrRoleTableReadOnly
	}
	if actor == nil {
		return access.Table{}, services.ErrNoSession
	}
	if ok, _ := actor.Can(s.resolver, access.PermissionRolesManage); !ok {
		return access.Table{}, services.NewDomainError(services.ErrorTypeForbidden,
			services.ErrInsufficientPermissions.Message, nil).WithDetail("permission", access.PermissionRolesManage)
	}

	target, err := access.ParseRole(role)
	if err != nil {
		return access.Table{}, services.FromAccessError(err)
	}

	set, err := parsePermissions(permissions)
	if err != nil {
		return access.Table{}, err
	}
	perms := set.Sorted()

	var changedBy *uuid.UUID
	if actor.Identity.UserID != uuid.Nil {
		id := actor.Identity.UserID
		changedBy = &id
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.resolver.Table()
	version, err := services.WithTransactionResult(ctx, s.txManager, func(ctx context.Context, tx repositories.Transaction) (int64, error) {
		return s.repo.ReplaceRole(ctx, target, perms, changedBy)
	})
	if err != nil {
		return access.Table{}, services.NewDomainError(services.ErrorTypeInternal,
			"failed to store role permissions", err)
	}

	if version == current.Version+1 {
		if err := s.resolver.Replace(current.WithRole(version, target, perms)); err != nil {
			return access.Table{}, services.FromAccessError(err)
		}
	} else {
		// another writer stored versions this instance has not loaded yet
		s.logger.Info("role table moved ahead of this instance, reloading",
			zap.Int64("installed_version", current.Version),
			zap.Int64("version", version))
		if err := s.install(ctx, version); err != nil {
			return access.Table{}, services.NewDomainError(services.ErrorTypeInternal,
				"failed to reload role table", err)
		}
	}
	table := s.resolver.Table()
	s.metrics.SetRoleTableVersion(version)

	s.logger.Info("role permissions updated",
		zap.String("role", target.String()),
		zap.Int("permissions", len(perms)),
		zap.Int64("version", version),
		zap.String("actor", actor.Identity.Email))

	if err := s.auditor.LogRolePermissionsUpdated(ctx, actor, target, version, set); err != nil {
		s.logger.Warn("failed to queue audit event", zap.Error(err))
	}

	return table, nil
}

// History returns the most recent table changes, newest first
func (s *Service) History(ctx context.Context, limit int) ([]*models.RoleTableVersion, error) {
	if !s.persisted {
		return []*models.RoleTableVersion{}, nil
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	versions, err := s.repo.ListVersions(ctx, limit)
	if err != nil {
		return nil, services.WrapInternal("failed to list role table history", err)
	}
	return versions, nil
}

func parsePermissions(names []string) (access.PermissionSet, error) {
	if len(names) == 0 {
		return nil, services.ErrEmptyPermissionSet
	}

	set := access.NewPermissionSet()
	for _, name := range names {
		p, ok := access.ParsePermission(name)
		if !ok {
			return nil, services.NewDomainError(services.ErrorTypeValidation,
				services.ErrInvalidPermission.Message, nil).WithDetail("permission", name)
		}
		set[p] = struct{}{}
	}
	return set, nil
}
