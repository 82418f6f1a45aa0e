package access

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestResolver(t *testing.T, policy UnknownRolePolicy) *Resolver {
	t.Helper()
	r, err := NewResolver(DefaultTable(), policy, zap.NewNop())
	require.NoError(t, err)
	return r
}

func TestPermissionsFor(t *testing.T) {
	r := newTestResolver(t, UnknownRoleDeny)

	t.Run("every role has a non-empty subset of the catalog", func(t *testing.T) {
		for _, role := range Roles() {
			set, err := r.PermissionsFor(role)
			require.NoError(t, err)
			assert.NotZero(t, set.Len(), "role %s", role)
			for p := range set {
				assert.True(t, p.Valid(), "role %s has %s outside the catalog", role, p)
			}
		}
	})

	t.Run("invalid role returns InvalidRoleError", func(t *testing.T) {
		set, err := r.PermissionsFor(Role("superuser"))
		assert.Nil(t, set)
		require.Error(t, err)
		assert.True(t, IsInvalidRole(err))
	})

	t.Run("returned set is a copy", func(t *testing.T) {
		set, err := r.PermissionsFor(RoleClient)
		require.NoError(t, err)
		set[PermissionSystemManage] = struct{}{}

		assert.False(t, r.HasPermission(RoleClient, PermissionSystemManage))
	})

	t.Run("deterministic", func(t *testing.T) {
		first, err := r.PermissionsFor(RoleManager)
		require.NoError(t, err)
		second, err := r.PermissionsFor(RoleManager)
		require.NoError(t, err)
		assert.Equal(t, first.Sorted(), second.Sorted())
	})
}

func TestDefaultTable(t *testing.T) {
	r := newTestResolver(t, UnknownRoleDeny)

	tests := []struct {
		role Role
		want []Permission
	}{
		{role: RoleAdmin, want: Catalog()},
		{role: RoleManager, want: []Permission{
			PermissionDashboardAccess, PermissionTasksManage, PermissionTasksView, PermissionTasksUpdate,
			PermissionProjectsManage, PermissionProjectsView, PermissionInvoicesView,
			PermissionEstimatesManage, PermissionEstimatesView, PermissionReportsAccess,
			PermissionCategoriesManage, PermissionTeamManage, PermissionTeamView,
			PermissionClientsManage, PermissionTimeTrack, PermissionProfileManage, PermissionSupportAccess,
		}},
		{role: RoleEmployee, want: []Permission{
			PermissionDashboardAccess, PermissionTasksView, PermissionTasksUpdate, PermissionProjectsView,
			PermissionTeamView, PermissionTimeTrack, PermissionProfileManage, PermissionSupportAccess,
		}},
		{role: RoleClient, want: []Permission{
			PermissionDashboardAccess, PermissionProjectsView, PermissionInvoicesView,
			PermissionEstimatesView, PermissionProfileManage, PermissionSupportAccess,
		}},
	}

	for _, tt := range tests {
		t.Run(string(tt.role), func(t *testing.T) {
			set, err := r.PermissionsFor(tt.role)
			require.NoError(t, err)
			assert.Equal(t, NewPermissionSet(tt.want...).Sorted(), set.Sorted())
		})
	}
}

func TestHasPermission(t *testing.T) {
	r := newTestResolver(t, UnknownRoleDeny)

	tests := []struct {
		name       string
		role       Role
		permission Permission
		want       bool
	}{
		{"admin manages system", RoleAdmin, PermissionSystemManage, true},
		{"client cannot manage system", RoleClient, PermissionSystemManage, false},
		{"employee views tasks", RoleEmployee, PermissionTasksView, true},
		{"employee cannot manage users", RoleEmployee, PermissionUsersManage, false},
		{"manager has no salary access", RoleManager, PermissionSalaryManage, false},
		{"client views invoices", RoleClient, PermissionInvoicesView, true},
		{"invalid role is denied", Role("root"), PermissionDashboardAccess, false},
		{"unknown permission is denied", RoleAdmin, Permission("tasks.*"), false},
		{"no case folding", RoleAdmin, Permission("System.Manage"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, r.HasPermission(tt.role, tt.permission))
		})
	}
}

func TestHasPermissionMatchesPermissionsFor(t *testing.T) {
	r := newTestResolver(t, UnknownRoleDeny)

	for _, role := range Roles() {
		set, err := r.PermissionsFor(role)
		require.NoError(t, err)
		for _, p := range Catalog() {
			assert.Equal(t, set.Has(p), r.HasPermission(role, p), "role %s permission %s", role, p)
		}
	}
}

func TestHasPermissionRandomStringsDenied(t *testing.T) {
	r := newTestResolver(t, UnknownRoleDeny)
	rng := rand.New(rand.NewSource(42))
	const alphabet = "abcdefghijklmnopqrstuvwxyz._-ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	for i := 0; i < 2000; i++ {
		n := 1 + rng.Intn(24)
		buf := make([]byte, n)
		for j := range buf {
			buf[j] = alphabet[rng.Intn(len(alphabet))]
		}
		p := Permission(buf)
		if p.Valid() {
			continue
		}
		for _, role := range Roles() {
			assert.False(t, r.HasPermission(role, p), "role %s granted random permission %q", role, p)
		}
	}
}

func TestResolveRole(t *testing.T) {
	t.Run("known labels", func(t *testing.T) {
		r := newTestResolver(t, UnknownRoleDeny)
		tests := map[string]Role{
			"Admin":     RoleAdmin,
			"Team Lead": RoleManager,
			"Member":    RoleEmployee,
			"Client":    RoleClient,
		}
		for label, want := range tests {
			got, err := r.ResolveRole(label)
			require.NoError(t, err, label)
			assert.Equal(t, want, got, label)
		}
	})

	t.Run("idempotent", func(t *testing.T) {
		r := newTestResolver(t, UnknownRoleDeny)
		first, err := r.ResolveRole("Team Lead")
		require.NoError(t, err)
		second, err := r.ResolveRole("Team Lead")
		require.NoError(t, err)
		assert.Equal(t, first, second)
	})

	t.Run("labels are case-sensitive", func(t *testing.T) {
		r := newTestResolver(t, UnknownRoleDeny)
		_, err := r.ResolveRole("admin")
		assert.True(t, IsUnknownRole(err))
	})

	t.Run("deny policy fails closed", func(t *testing.T) {
		r := newTestResolver(t, UnknownRoleDeny)
		role, err := r.ResolveRole("unknown-label")
		assert.Empty(t, role)
		require.Error(t, err)
		assert.True(t, IsUnknownRole(err))
		assert.Contains(t, err.Error(), "unknown-label")
	})

	t.Run("employee policy keeps legacy mapping", func(t *testing.T) {
		r := newTestResolver(t, UnknownRoleEmployee)
		role, err := r.ResolveRole("unknown-label")
		require.NoError(t, err)
		assert.Equal(t, RoleEmployee, role)
	})

	t.Run("invalid policy defaults to deny", func(t *testing.T) {
		r := newTestResolver(t, UnknownRolePolicy("allow"))
		assert.Equal(t, UnknownRoleDeny, r.Policy())
	})
}

func TestReplace(t *testing.T) {
	t.Run("new table is visible immediately", func(t *testing.T) {
		r := newTestResolver(t, UnknownRoleDeny)
		assert.False(t, r.HasPermission(RoleClient, PermissionTasksView))

		next := r.Table().WithRole(3, RoleClient, []Permission{PermissionDashboardAccess, PermissionTasksView})
		require.NoError(t, r.Replace(next))

		assert.True(t, r.HasPermission(RoleClient, PermissionTasksView))
		assert.False(t, r.HasPermission(RoleClient, PermissionInvoicesView))
		assert.Equal(t, int64(3), r.Table().Version)
	})

	t.Run("invalid table is rejected and old one kept", func(t *testing.T) {
		r := newTestResolver(t, UnknownRoleDeny)
		next := r.Table().WithRole(1, RoleEmployee, nil)

		err := r.Replace(next)
		require.Error(t, err)
		assert.True(t, IsTableError(err))
		assert.True(t, r.HasPermission(RoleEmployee, PermissionTasksView))
	})
}

func TestNewResolverRejectsInvalidTable(t *testing.T) {
	_, err := NewResolver(NewTable(0, map[Role][]Permission{RoleAdmin: Catalog()}), UnknownRoleDeny, nil)
	require.Error(t, err)
	assert.True(t, IsTableError(err))
}
