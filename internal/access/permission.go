package access

import (
	"encoding/json"
	"sort"
)

// Permission names a single capability. Equality is exact string match.
type Permission string

const (
	PermissionAdminAccess      Permission = "admin.access"
	PermissionUsersManage      Permission = "users.manage"
	PermissionRolesManage      Permission = "roles.manage"
	PermissionTasksManage      Permission = "tasks.manage"
	PermissionTasksView        Permission = "tasks.view"
	PermissionTasksUpdate      Permission = "tasks.update"
	PermissionProjectsManage   Permission = "projects.manage"
	PermissionProjectsView     Permission = "projects.view"
	PermissionInvoicesManage   Permission = "invoices.manage"
	PermissionInvoicesView     Permission = "invoices.view"
	PermissionSettingsManage   Permission = "settings.manage"
	PermissionReportsAccess    Permission = "reports.access"
	PermissionCategoriesManage Permission = "categories.manage"
	PermissionSalaryManage     Permission = "salary.manage"
	PermissionTeamManage       Permission = "team.manage"
	PermissionTeamView         Permission = "team.view"
	PermissionSystemManage     Permission = "system.manage"
	PermissionClientsManage    Permission = "clients.manage"
	PermissionEstimatesManage  Permission = "estimates.manage"
	PermissionEstimatesView    Permission = "estimates.view"
	PermissionTimeTrack        Permission = "time.track"
	PermissionProfileManage    Permission = "profile.manage"
	PermissionSupportAccess    Permission = "support.access"
	PermissionDashboardAccess  Permission = "dashboard.access"
)

var catalog = []Permission{
	PermissionAdminAccess,
	PermissionUsersManage,
	PermissionRolesManage,
	PermissionTasksManage,
	PermissionTasksView,
	PermissionTasksUpdate,
	PermissionProjectsManage,
	PermissionProjectsView,
	PermissionInvoicesManage,
	PermissionInvoicesView,
	PermissionSettingsManage,
	PermissionReportsAccess,
	PermissionCategoriesManage,
	PermissionSalaryManage,
	PermissionTeamManage,
	PermissionTeamView,
	PermissionSystemManage,
	PermissionClientsManage,
	PermissionEstimatesManage,
	PermissionEstimatesView,
	PermissionTimeTrack,
	PermissionProfileManage,
	PermissionSupportAccess,
	PermissionDashboardAccess,
}

var catalogIndex = func() map[Permission]struct{} {
	idx := make(map[Permission]struct{}, len(catalog))
	for _, p := range catalog {
		idx[p] = struct{}{}
	}
	return idx
}()

// Catalog returns every known permission in declaration order.
func Catalog() []Permission {
	out := make([]Permission, len(catalog))
	copy(out, catalog)
	return out
}

// Valid reports whether p belongs to the catalog.
func (p Permission) Valid() bool {
	_, ok := catalogIndex[p]
	return ok
}

func (p Permission) String() string {
	return string(p)
}

// ParsePermission returns the catalog permission equal to s. There is no
// case folding or trimming.
func ParsePermission(s string) (Permission, bool) {
	p := Permission(s)
	if !p.Valid() {
		return "", false
	}
	return p, true
}

// PermissionSet is an unordered set of permissions.
type PermissionSet map[Permission]struct{}

// NewPermissionSet builds a set from the given permissions.
func NewPermissionSet(perms ...Permission) PermissionSet {
	s := make(PermissionSet, len(perms))
	for _, p := range perms {
		s[p] = struct{}{}
	}
	return s
}

// Has reports membership.
func (s PermissionSet) Has(p Permission) bool {
	_, ok := s[p]
	return ok
}

// Len returns the number of permissions in the set.
func (s PermissionSet) Len() int {
	return len(s)
}

// Sorted returns the permissions in lexical order.
func (s PermissionSet) Sorted() []Permission {
	out := make([]Permission, 0, len(s))
	for p := range s {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Strings returns the sorted permissions as plain strings.
func (s PermissionSet) Strings() []string {
	sorted := s.Sorted()
	out := make([]string, len(sorted))
	for i, p := range sorted {
		out[i] = string(p)
	}
	return out
}

// Clone returns an independent copy.
func (s PermissionSet) Clone() PermissionSet {
	out := make(PermissionSet, len(s))
	for p := range s {
		out[p] = struct{}{}
	}
	return out
}

// MarshalJSON encodes the set as a sorted array.
func (s PermissionSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Strings())
}
