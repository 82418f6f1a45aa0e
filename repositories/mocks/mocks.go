// Package mocks provides testify mocks of the repository interfaces for
// service and handler tests.
package mocks

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/upb/workdesk/internal/access"
	"github.com/upb/workdesk/models"
	"github.com/upb/workdesk/repositories"
)

// MockTransactionManager is a testify mock of repositories.TransactionManager
type MockTransactionManager struct {
	mock.Mock
}

func (m *MockTransactionManager) Begin(ctx context.Context) (repositories.Transaction, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(repositories.Transaction), args.Error(1)
}

// MockTransaction is a testify mock of repositories.Transaction. When no
// Context expectation is set it returns the context it was created with.
type MockTransaction struct {
	mock.Mock
	ctx context.Context
}

// NewMockTransaction returns a transaction whose Context is ctx
func NewMockTransaction(ctx context.Context) *MockTransaction {
	return &MockTransaction{ctx: ctx}
}

func (m *MockTransaction) Commit() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockTransaction) Rollback() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockTransaction) Context() context.Context {
	if m.ctx != nil {
		return m.ctx
	}
	return context.Background()
}

// MockUserRepository is a testify mock of repositories.UserRepository
type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) Create(ctx context.Context, user *models.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockUserRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserRepository) GetByCognitoSub(ctx context.Context, cognitoSub string) (*models.User, error) {
	args := m.Called(ctx, cognitoSub)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserRepository) List(ctx context.Context, limit, offset int) ([]*models.User, error) {
	args := m.Called(ctx, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.User), args.Error(1)
}

func (m *MockUserRepository) Update(ctx context.Context, user *models.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

// MockRolePermissionRepository is a testify mock of repositories.RolePermissionRepository
type MockRolePermissionRepository struct {
	mock.Mock
}

func (m *MockRolePermissionRepository) ListGrants(ctx context.Context) ([]models.RolePermission, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.RolePermission), args.Error(1)
}

func (m *MockRolePermissionRepository) ReplaceRole(ctx context.Context, role access.Role, perms []access.Permission, changedBy *uuid.UUID) (int64, error) {
	args := m.Called(ctx, role, perms, changedBy)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockRolePermissionRepository) Seed(ctx context.Context, grants []models.RolePermission) (int64, error) {
	args := m.Called(ctx, grants)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockRolePermissionRepository) CurrentVersion(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockRolePermissionRepository) ListVersions(ctx context.Context, limit int) ([]*models.RoleTableVersion, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.RoleTableVersion), args.Error(1)
}

// MockAuditRepository is a testify mock of repositories.AuditRepository
type MockAuditRepository struct {
	mock.Mock
}

func (m *MockAuditRepository) Insert(ctx context.Context, log *models.AuditLog) error {
	args := m.Called(ctx, log)
	return args.Error(0)
}

func (m *MockAuditRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.AuditLog, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.AuditLog), args.Error(1)
}

func (m *MockAuditRepository) List(ctx context.Context, limit, offset int) ([]*models.AuditLog, error) {
	args := m.Called(ctx, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.AuditLog), args.Error(1)
}

func (m *MockAuditRepository) GetByUserID(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*models.AuditLog, error) {
	args := m.Called(ctx, userID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.AuditLog), args.Error(1)
}

func (m *MockAuditRepository) GetByAction(ctx context.Context, action models.AuditAction, limit, offset int) ([]*models.AuditLog, error) {
	args := m.Called(ctx, action, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.AuditLog), args.Error(1)
}

var (
	_ repositories.TransactionManager       = (*MockTransactionManager)(nil)
	_ repositories.Transaction              = (*MockTransaction)(nil)
	_ repositories.UserRepository           = (*MockUserRepository)(nil)
	_ repositories.RolePermissionRepository = (*MockRolePermissionRepository)(nil)
	_ repositories.AuditRepository          = (*MockAuditRepository)(nil)
)
