package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/upb/workdesk/internal/access"
)

// RolePermission is a single persisted grant of a permission to a role
type RolePermission struct {
	Role       access.Role       `json:"role" db:"role"`
	Permission access.Permission `json:"permission" db:"permission"`
}

// TableName returns the table name for the RolePermission model
func (RolePermission) TableName() string {
	return "role_permissions"
}

// RoleTableVersion records one change to the role permission table
type RoleTableVersion struct {
	Version   int64       `json:"version" db:"version"`
	Role      access.Role `json:"role" db:"role"`
	ChangedBy *uuid.UUID  `json:"changed_by,omitempty" db:"changed_by"`
	ChangedAt time.Time   `json:"changed_at" db:"changed_at"`
}

// TableName returns the table name for the RoleTableVersion model
func (RoleTableVersion) TableName() string {
	return "role_table_versions"
}

// BuildTable assembles grants into an access.Table at the given version.
// Rows naming roles or permissions outside the enums are kept so that
// Table.Validate can reject them.
func BuildTable(version int64, grants []RolePermission) access.Table {
	byRole := make(map[access.Role][]access.Permission)
	for _, g := range grants {
		byRole[g.Role] = append(byRole[g.Role], g.Permission)
	}
	return access.NewTable(version, byRole)
}

// GrantsFromTable flattens a table into rows in canonical order
func GrantsFromTable(table access.Table) []RolePermission {
	var out []RolePermission
	for _, role := range table.Roles() {
		for _, p := range table.Grants(role).Sorted() {
			out = append(out, RolePermission{Role: role, Permission: p})
		}
	}
	return out
}
