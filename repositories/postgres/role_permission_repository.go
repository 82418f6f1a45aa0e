package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/upb/workdesk/internal/access"
	"github.com/upb/workdesk/models"
	"github.com/upb/workdesk/repositories"
	"go.uber.org/zap"
)

const (
	// seedVersionRole marks the version row written by Seed, which covers every role
	seedVersionRole = "*"

	// versionLockKey serializes writers of role_table_versions across processes
	versionLockKey = "workdesk.role_table_versions"
)

// RolePermissionRepository implements the repositories.RolePermissionRepository interface
type RolePermissionRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewRolePermissionRepository creates a new role permission repository
func NewRolePermissionRepository(db *DB, logger *zap.Logger) repositories.RolePermissionRepository {
	return &RolePermissionRepository{
		db:     db,
		logger: logger,
	}
}

// ListGrants returns every stored grant ordered by role and permission
func (r *RolePermissionRepository) ListGrants(ctx context.Context) ([]models.RolePermission, error) {
	query := `
		SELECT role, permission
		FROM role_permissions
		ORDER BY role, permission
	`

	rows, err := GetExecutor(ctx, r.db).QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query role permissions: %w", err)
	}
	defer rows.Close()

	var grants []models.RolePermission
	for rows.Next() {
		var g models.RolePermission
		if err := rows.Scan(&g.Role, &g.Permission); err != nil {
			return nil, fmt.Errorf("failed to scan role permission: %w", err)
		}
		grants = append(grants, g)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating role permission rows: %w", err)
	}

	return grants, nil
}

// ReplaceRole deletes the role's grants, inserts the new set and records a
// new version. Callers run it with a transaction context so the statements
// commit together.
func (r *RolePermissionRepository) ReplaceRole(ctx context.Context, role access.Role, perms []access.Permission, changedBy *uuid.UUID) (int64, error) {
	executor := GetExecutor(ctx, r.db)

	if _, err := executor.ExecContext(ctx, `DELETE FROM role_permissions WHERE role = $1`, role); err != nil {
		return 0, fmt.Errorf("failed to clear permissions for role %s: %w", role, err)
	}

	names := make([]string, len(perms))
	for i, p := range perms {
		names[i] = string(p)
	}

	insert := `
		INSERT INTO role_permissions (role, permission)
		SELECT $1, unnest($2::text[])
	`
	if _, err := executor.ExecContext(ctx, insert, role, pq.Array(names)); err != nil {
		return 0, fmt.Errorf("failed to insert permissions for role %s: %w", role, err)
	}

	version, err := r.recordVersion(ctx, executor, string(role), changedBy)
	if err != nil {
		return 0, err
	}

	r.logger.Debug("role permissions replaced",
		zap.String("role", string(role)),
		zap.Int("permissions", len(perms)),
		zap.Int64("version", version),
	)
	return version, nil
}

// Seed writes a complete table into an empty store
func (r *RolePermissionRepository) Seed(ctx context.Context, grants []models.RolePermission) (int64, error) {
	executor := GetExecutor(ctx, r.db)

	roles := make([]string, len(grants))
	perms := make([]string, len(grants))
	for i, g := range grants {
		roles[i] = string(g.Role)
		perms[i] = string(g.Permission)
	}

	insert := `
		INSERT INTO role_permissions (role, permission)
		SELECT * FROM unnest($1::text[], $2::text[])
		ON CONFLICT DO NOTHING
	`
	if _, err := executor.ExecContext(ctx, insert, pq.Array(roles), pq.Array(perms)); err != nil {
		return 0, fmt.Errorf("failed to seed role permissions: %w", err)
	}

	version, err := r.recordVersion(ctx, executor, seedVersionRole, nil)
	if err != nil {
		return 0, err
	}

	r.logger.Info("role permission table seeded", zap.Int("grants", len(grants)), zap.Int64("version", version))
	return version, nil
}

// recordVersion appends the next table version. The advisory lock is held
// until the surrounding transaction ends, so concurrent writers take
// consecutive versions instead of colliding on MAX(version)+1.
func (r *RolePermissionRepository) recordVersion(ctx context.Context, executor Executor, role string, changedBy *uuid.UUID) (int64, error) {
	if _, err := executor.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, versionLockKey); err != nil {
		return 0, fmt.Errorf("failed to lock role table versions: %w", err)
	}

	query := `
		INSERT INTO role_table_versions (version, role, changed_by, changed_at)
		SELECT COALESCE(MAX(version), 0) + 1, $1, $2, $3
		FROM role_table_versions
		RETURNING version
	`

	var version int64
	if err := executor.QueryRowContext(ctx, query, role, changedBy, time.Now().UTC()).Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to record role table version: %w", err)
	}
	return version, nil
}

// CurrentVersion returns the latest table version, 0 when nothing is stored
func (r *RolePermissionRepository) CurrentVersion(ctx context.Context) (int64, error) {
	query := `SELECT COALESCE(MAX(version), 0) FROM role_table_versions`

	var version int64
	if err := GetExecutor(ctx, r.db).QueryRowContext(ctx, query).Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to get role table version: %w", err)
	}
	return version, nil
}

// ListVersions returns the most recent table changes, newest first
func (r *RolePermissionRepository) ListVersions(ctx context.Context, limit int) ([]*models.RoleTableVersion, error) {
	query := `
		SELECT version, role, changed_by, changed_at
		FROM role_table_versions
		ORDER BY version DESC
		LIMIT $1
	`

	rows, err := GetExecutor(ctx, r.db).QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query role table versions: %w", err)
	}
	defer rows.Close()

	var versions []*models.RoleTableVersion
	for rows.Next() {
		v := &models.RoleTableVersion{}
		if err := rows.Scan(&v.Version, &v.Role, &v.ChangedBy, &v.ChangedAt); err != nil {
			return nil, fmt.Errorf("failed to scan role table version: %w", err)
		}
		versions = append(versions, v)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating role table version rows: %w", err)
	}

	return versions, nil
}
