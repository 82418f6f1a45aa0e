package access

import "fmt"

// Table maps every role to its permission set. A Table is treated as
// immutable once installed in a Resolver.
type Table struct {
	Version int64
	grants  map[Role]PermissionSet
}

// NewTable builds a table from explicit grants. The grants are copied.
func NewTable(version int64, grants map[Role][]Permission) Table {
	t := Table{Version: version, grants: make(map[Role]PermissionSet, len(grants))}
	for role, perms := range grants {
		t.grants[role] = NewPermissionSet(perms...)
	}
	return t
}

// Grants returns a copy of the permissions granted to role, or nil when the
// table has no entry for it.
func (t Table) Grants(role Role) PermissionSet {
	set, ok := t.grants[role]
	if !ok {
		return nil
	}
	return set.Clone()
}

// Roles returns the roles present in the table in the canonical order.
func (t Table) Roles() []Role {
	out := make([]Role, 0, len(t.grants))
	for _, r := range allRoles {
		if _, ok := t.grants[r]; ok {
			out = append(out, r)
		}
	}
	return out
}

// WithRole returns a copy of t where role is granted perms and the version
// is set to version.
func (t Table) WithRole(version int64, role Role, perms []Permission) Table {
	out := Table{Version: version, grants: make(map[Role]PermissionSet, len(t.grants)+1)}
	for r, set := range t.grants {
		out.grants[r] = set.Clone()
	}
	out.grants[role] = NewPermissionSet(perms...)
	return out
}

// Validate checks that the table covers all four roles, that no role has an
// empty set and that every permission is in the catalog.
func (t Table) Validate() error {
	for role := range t.grants {
		if !role.Valid() {
			return &TableError{Role: role, Reason: "role is not part of the role enum"}
		}
	}
	for _, role := range allRoles {
		set, ok := t.grants[role]
		if !ok {
			return &TableError{Role: role, Reason: "missing entry"}
		}
		if len(set) == 0 {
			return &TableError{Role: role, Reason: "permission set is empty"}
		}
		for p := range set {
			if !p.Valid() {
				return &TableError{Role: role, Reason: fmt.Sprintf("permission %q is not in the catalog", p)}
			}
		}
	}
	return nil
}

// DefaultTable returns the build-time table. Each role is listed
// explicitly; no role inherits from another.
func DefaultTable() Table {
	return NewTable(0, map[Role][]Permission{
		RoleAdmin: Catalog(),
		RoleManager: {
			PermissionDashboardAccess,
			PermissionTasksManage,
			PermissionTasksView,
			PermissionTasksUpdate,
			PermissionProjectsManage,
			PermissionProjectsView,
			PermissionInvoicesView,
			PermissionEstimatesManage,
			PermissionEstimatesView,
			PermissionReportsAccess,
			PermissionCategoriesManage,
			PermissionTeamManage,
			PermissionTeamView,
			PermissionClientsManage,
			PermissionTimeTrack,
			PermissionProfileManage,
			PermissionSupportAccess,
		},
		RoleEmployee: {
			PermissionDashboardAccess,
			PermissionTasksView,
			PermissionTasksUpdate,
			PermissionProjectsView,
			PermissionTeamView,
			PermissionTimeTrack,
			PermissionProfileManage,
			PermissionSupportAccess,
		},
		RoleClient: {
			PermissionDashboardAccess,
			PermissionProjectsView,
			PermissionInvoicesView,
			PermissionEstimatesView,
			PermissionProfileManage,
			PermissionSupportAccess,
		},
	})
}
