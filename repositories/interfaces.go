package repositories

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/upb/workdesk/internal/access"
	"github.com/upb/workdesk/models"
)

// ErrNotFound is wrapped by repositories when a lookup matches no row
var ErrNotFound = errors.New("record not found")

// TransactionManager manages database transactions
type TransactionManager interface {
	// Begin starts a new transaction. Its Context carries the transaction,
	// so repositories called with it join the transaction.
	Begin(ctx context.Context) (Transaction, error)
}

// Transaction represents a database transaction
type Transaction interface {
	// Commit commits the transaction
	Commit() error

	// Rollback rolls back the transaction
	Rollback() error

	// Context returns the transaction context
	Context() context.Context
}

// UserRepository handles user data operations
type UserRepository interface {
	// Create creates a new user
	Create(ctx context.Context, user *models.User) error

	// GetByID retrieves a user by ID
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)

	// GetByCognitoSub retrieves a user by Cognito subject
	GetByCognitoSub(ctx context.Context, cognitoSub string) (*models.User, error)

	// List retrieves users with pagination
	List(ctx context.Context, limit, offset int) ([]*models.User, error)

	// Update updates a user
	Update(ctx context.Context, user *models.User) error
}

// RolePermissionRepository persists the role permission table
type RolePermissionRepository interface {
	// ListGrants returns every stored grant
	ListGrants(ctx context.Context) ([]models.RolePermission, error)

	// ReplaceRole overwrites the grants of one role and records a new
	// table version. It must run inside a transaction.
	ReplaceRole(ctx context.Context, role access.Role, perms []access.Permission, changedBy *uuid.UUID) (int64, error)

	// Seed stores a complete table into an empty store and records version 1
	Seed(ctx context.Context, grants []models.RolePermission) (int64, error)

	// CurrentVersion returns the latest table version, 0 when nothing is stored
	CurrentVersion(ctx context.Context) (int64, error)

	// ListVersions returns the most recent table changes, newest first
	ListVersions(ctx context.Context, limit int) ([]*models.RoleTableVersion, error)
}

// AuditRepository handles audit log data operations
type AuditRepository interface {
	// Insert inserts a new audit log entry
	Insert(ctx context.Context, log *models.AuditLog) error

	// GetByID retrieves an audit log by ID
	GetByID(ctx context.Context, id uuid.UUID) (*models.AuditLog, error)

	// List retrieves audit logs newest first with pagination
	List(ctx context.Context, limit, offset int) ([]*models.AuditLog, error)

	// GetByUserID retrieves audit logs for a user with pagination
	GetByUserID(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*models.AuditLog, error)

	// GetByAction retrieves audit logs by action type with pagination
	GetByAction(ctx context.Context, action models.AuditAction, limit, offset int) ([]*models.AuditLog, error)
}

// Repositories aggregates all repositories
type Repositories struct {
	Users           UserRepository
	RolePermissions RolePermissionRepository
	AuditLogs       AuditRepository
}
