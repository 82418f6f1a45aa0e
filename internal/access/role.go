package access

// Role is the single capability grouping active for a session.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleManager  Role = "manager"
	RoleEmployee Role = "employee"
	RoleClient   Role = "client"
)

var allRoles = []Role{RoleAdmin, RoleManager, RoleEmployee, RoleClient}

// Roles returns every role in a stable order.
func Roles() []Role {
	out := make([]Role, len(allRoles))
	copy(out, allRoles)
	return out
}

// Valid reports whether r is one of the four known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleManager, RoleEmployee, RoleClient:
		return true
	}
	return false
}

func (r Role) String() string {
	return string(r)
}

// ParseRole converts a canonical role value. Identity-provider labels such
// as "Team Lead" go through Resolver.ResolveRole instead.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", &InvalidRoleError{Role: s}
	}
	return r, nil
}

// UnknownRolePolicy decides what happens to identity-provider labels that
// have no mapping.
type UnknownRolePolicy string

const (
	// UnknownRoleDeny rejects the label with *UnknownRoleError.
	UnknownRoleDeny UnknownRolePolicy = "deny"
	// UnknownRoleEmployee maps the label to RoleEmployee (legacy behaviour).
	UnknownRoleEmployee UnknownRolePolicy = "employee"
)

// Valid reports whether p is a supported policy.
func (p UnknownRolePolicy) Valid() bool {
	return p == UnknownRoleDeny || p == UnknownRoleEmployee
}

// roleLabels maps identity-provider labels to roles. Matching is
// case-sensitive.
var roleLabels = map[string]Role{
	"Admin":     RoleAdmin,
	"Team Lead": RoleManager,
	"Member":    RoleEmployee,
	"Client":    RoleClient,
}

// Labels returns the identity-provider labels the resolver understands.
func Labels() []string {
	return []string{"Admin", "Team Lead", "Member", "Client"}
}

// Label returns the identity-provider label for r, or "" for an invalid role.
func (r Role) Label() string {
	for label, role := range roleLabels {
		if role == r {
			return label
		}
	}
	return ""
}
