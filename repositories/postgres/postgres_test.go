package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/workdesk/internal/access"
	"github.com/upb/workdesk/models"
	"github.com/upb/workdesk/repositories"
	"github.com/upb/workdesk/services"
	"go.uber.org/zap"
)

func newMockDB(t *testing.T) (*DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	return &DB{DB: sqlDB, logger: zap.NewNop()}, mock
}

var userRowColumns = []string{"id", "email", "name", "cognito_sub", "role_label", "role", "last_login", "created_at", "updated_at"}

func TestUserRepository_Create(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepository(db, zap.NewNop())

	user := models.NewUser("ana@example.com", "Ana", "sub-1", "Team Lead", access.RoleManager)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO users")).
		WithArgs(user.ID, user.Email, user.Name, user.CognitoSub, "Team Lead", "manager", nil, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Create(context.Background(), user))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_GetByCognitoSub(t *testing.T) {
	ctx := context.Background()

	t.Run("found", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewUserRepository(db, zap.NewNop())

		id := uuid.New()
		now := time.Now()
		mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE cognito_sub = $1")).
			WithArgs("sub-1").
			WillReturnRows(sqlmock.NewRows(userRowColumns).
				AddRow(id.String(), "ana@example.com", "Ana", "sub-1", "Client", "client", now, now, now))

		user, err := repo.GetByCognitoSub(ctx, "sub-1")
		require.NoError(t, err)
		assert.Equal(t, id, user.ID)
		assert.Equal(t, access.RoleClient, user.Role)
		assert.Equal(t, "Client", user.RoleLabel)
		require.NotNil(t, user.LastLogin)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("never logged in", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewUserRepository(db, zap.NewNop())

		now := time.Now()
		mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE cognito_sub = $1")).
			WithArgs("sub-2").
			WillReturnRows(sqlmock.NewRows(userRowColumns).
				AddRow(uuid.New().String(), "b@example.com", "B", "sub-2", "Member", "employee", nil, now, now))

		user, err := repo.GetByCognitoSub(ctx, "sub-2")
		require.NoError(t, err)
		assert.Nil(t, user.LastLogin)
	})

	t.Run("not found", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewUserRepository(db, zap.NewNop())

		mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE cognito_sub = $1")).
			WithArgs("missing").
			WillReturnRows(sqlmock.NewRows(userRowColumns))

		_, err := repo.GetByCognitoSub(ctx, "missing")
		require.Error(t, err)
		assert.True(t, errors.Is(err, repositories.ErrNotFound))
	})
}

func TestUserRepository_Update_NotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepository(db, zap.NewNop())

	user := models.NewUser("a@example.com", "A", "sub", "Admin", access.RoleAdmin)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE users")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Update(context.Background(), user)
	require.Error(t, err)
	assert.True(t, errors.Is(err, repositories.ErrNotFound))
}

func TestUserRepository_List(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepository(db, zap.NewNop())

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("FROM users")).
		WithArgs(10, 0).
		WillReturnRows(sqlmock.NewRows(userRowColumns).
			AddRow(uuid.New().String(), "a@example.com", "A", "s1", "Admin", "admin", nil, now, now).
			AddRow(uuid.New().String(), "b@example.com", "B", "s2", "Member", "employee", nil, now, now))

	users, err := repo.List(context.Background(), 10, 0)
	require.NoError(t, err)
	assert.Len(t, users, 2)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRolePermissionRepository_ListGrants(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRolePermissionRepository(db, zap.NewNop())

	mock.ExpectQuery(regexp.QuoteMeta("SELECT role, permission")).
		WillReturnRows(sqlmock.NewRows([]string{"role", "permission"}).
			AddRow("client", "dashboard.access").
			AddRow("client", "profile.manage"))

	grants, err := repo.ListGrants(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []models.RolePermission{
		{Role: access.RoleClient, Permission: access.PermissionDashboardAccess},
		{Role: access.RoleClient, Permission: access.PermissionProfileManage},
	}, grants)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRolePermissionRepository_ReplaceRole(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRolePermissionRepository(db, zap.NewNop())
	txm := NewTransactionManager(db, zap.NewNop())
	actor := uuid.New()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM role_permissions WHERE role = $1")).
		WithArgs("client").
		WillReturnResult(sqlmock.NewResult(0, 6))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO role_permissions")).
		WithArgs("client", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(regexp.QuoteMeta("SELECT pg_advisory_xact_lock(hashtext($1))")).
		WithArgs(versionLockKey).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO role_table_versions")).
		WithArgs("client", actor, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(int64(7)))
	mock.ExpectCommit()

	version, err := services.WithTransactionResult(context.Background(), txm, func(ctx context.Context, tx repositories.Transaction) (int64, error) {
		return repo.ReplaceRole(ctx, access.RoleClient,
			[]access.Permission{access.PermissionDashboardAccess, access.PermissionProfileManage}, &actor)
	})

	require.NoError(t, err)
	assert.Equal(t, int64(7), version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRolePermissionRepository_ReplaceRoleRollsBack(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRolePermissionRepository(db, zap.NewNop())
	txm := NewTransactionManager(db, zap.NewNop())

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM role_permissions")).
		WillReturnResult(sqlmock.NewResult(0, 6))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO role_permissions")).
		WillReturnError(errors.New("constraint violation"))
	mock.ExpectRollback()

	_, err := services.WithTransactionResult(context.Background(), txm, func(ctx context.Context, tx repositories.Transaction) (int64, error) {
		return repo.ReplaceRole(ctx, access.RoleClient, []access.Permission{access.PermissionDashboardAccess}, nil)
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "constraint violation")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRolePermissionRepository_Seed(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRolePermissionRepository(db, zap.NewNop())

	grants := models.GrantsFromTable(access.DefaultTable())

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO role_permissions")).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, int64(len(grants))))
	mock.ExpectExec(regexp.QuoteMeta("SELECT pg_advisory_xact_lock(hashtext($1))")).
		WithArgs(versionLockKey).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO role_table_versions")).
		WithArgs("*", nil, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(int64(1)))

	version, err := repo.Seed(context.Background(), grants)
	require.NoError(t, err)
	assert.Equal(t, int64(1), version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRolePermissionRepository_CurrentVersion(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRolePermissionRepository(db, zap.NewNop())

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COALESCE(MAX(version), 0) FROM role_table_versions")).
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(int64(0)))

	version, err := repo.CurrentVersion(context.Background())
	require.NoError(t, err)
	assert.Zero(t, version)
}

func TestRolePermissionRepository_ListVersions(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRolePermissionRepository(db, zap.NewNop())

	actor := uuid.New()
	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("FROM role_table_versions")).
		WithArgs(5).
		WillReturnRows(sqlmock.NewRows([]string{"version", "role", "changed_by", "changed_at"}).
			AddRow(int64(2), "manager", actor.String(), now).
			AddRow(int64(1), "*", nil, now))

	versions, err := repo.ListVersions(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, access.RoleManager, versions[0].Role)
	require.NotNil(t, versions[0].ChangedBy)
	assert.Equal(t, actor, *versions[0].ChangedBy)
	assert.Nil(t, versions[1].ChangedBy)
}

var auditRowColumns = []string{"id", "user_id", "session_id", "action", "resource_type", "resource_id",
	"role", "details", "ip_address", "user_agent", "request_id", "timestamp"}

func TestAuditRepository_Insert(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewAuditRepository(db, zap.NewNop())

	log := models.NewAuditLog(models.AuditActionAccessDenied, "permission", "roles.manage").
		WithUser(uuid.New()).
		WithSession(uuid.New(), "employee").
		WithDetails(map[string]string{"path": "/api/v1/roles"}).
		WithRequest("req-1", "10.0.0.1", "curl")

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO audit_logs")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Insert(context.Background(), log))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditRepository_List(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewAuditRepository(db, zap.NewNop())

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("FROM audit_logs")).
		WithArgs(20, 40).
		WillReturnRows(sqlmock.NewRows(auditRowColumns).
			AddRow(uuid.New().String(), nil, nil, "unknown_role_rejected", "role_label", "Contractor", "", nil, "", "", "req", now).
			AddRow(uuid.New().String(), uuid.New().String(), uuid.New().String(), "role_simulated", "session", "s", "client", []byte(`{"from":"admin"}`), "", "", "req", now))

	logs, err := repo.List(context.Background(), 20, 40)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Nil(t, logs[0].UserID)
	assert.Nil(t, logs[0].Details)
	assert.Equal(t, models.AuditActionRoleSimulated, logs[1].Action)
	assert.JSONEq(t, `{"from":"admin"}`, string(logs[1].Details))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditRepository_GetByID_NotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewAuditRepository(db, zap.NewNop())

	id := uuid.New()
	mock.ExpectQuery(regexp.QuoteMeta("FROM audit_logs WHERE id = $1")).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows(auditRowColumns))

	_, err := repo.GetByID(context.Background(), id)
	assert.True(t, errors.Is(err, repositories.ErrNotFound))
}

func TestGetExecutor(t *testing.T) {
	db, mock := newMockDB(t)
	txm := NewTransactionManager(db, zap.NewNop())

	assert.Equal(t, db.DB, GetExecutor(context.Background(), db))

	mock.ExpectBegin()
	mock.ExpectCommit()
	_, err := services.WithTransactionResult(context.Background(), txm, func(ctx context.Context, tx repositories.Transaction) (bool, error) {
		_, inTx := GetTransactionFromContext(ctx)
		assert.True(t, inTx)
		assert.NotEqual(t, db.DB, GetExecutor(ctx, db))
		return inTx, nil
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRolePermissionRepository_ReplaceRoleLocksVersionsFirst(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRolePermissionRepository(db, zap.NewNop())
	txm := NewTransactionManager(db, zap.NewNop())

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM role_permissions")).
		WillReturnResult(sqlmock.NewResult(0, 6))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO role_permissions")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("SELECT pg_advisory_xact_lock(hashtext($1))")).
		WithArgs(versionLockKey).
		WillReturnError(errors.New("canceling statement due to lock timeout"))
	mock.ExpectRollback()

	_, err := services.WithTransactionResult(context.Background(), txm, func(ctx context.Context, tx repositories.Transaction) (int64, error) {
		return repo.ReplaceRole(ctx, access.RoleClient, []access.Permission{access.PermissionDashboardAccess}, nil)
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to lock role table versions")
	assert.NoError(t, mock.ExpectationsWereMet())
}
