package access

import (
	"sync/atomic"

	"go.uber.org/zap"
)

// Resolver answers access questions against the currently installed table.
// Queries are lock-free; Replace swaps the whole table atomically so a
// query never observes a partially updated table.
type Resolver struct {
	table  atomic.Pointer[Table]
	policy UnknownRolePolicy
	logger *zap.Logger
}

// NewResolver creates a resolver over table. The table must satisfy
// Table.Validate. An invalid policy falls back to UnknownRoleDeny.
func NewResolver(table Table, policy UnknownRolePolicy, logger *zap.Logger) (*Resolver, error) {
	if err := table.Validate(); err != nil {
		return nil, err
	}
	if !policy.Valid() {
		policy = UnknownRoleDeny
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Resolver{policy: policy, logger: logger}
	r.table.Store(&table)
	return r, nil
}

// Policy returns the configured unknown-label policy.
func (r *Resolver) Policy() UnknownRolePolicy {
	return r.policy
}

// Table returns the installed table.
func (r *Resolver) Table() Table {
	return *r.table.Load()
}

// Replace validates and installs a new table.
func (r *Resolver) Replace(table Table) error {
	if err := table.Validate(); err != nil {
		return err
	}
	prev := r.table.Swap(&table)
	r.logger.Info("role table replaced",
		zap.Int64("previous_version", prev.Version),
		zap.Int64("version", table.Version))
	return nil
}

// PermissionsFor returns the permissions granted to role. The returned set
// is a copy and may be modified by the caller.
func (r *Resolver) PermissionsFor(role Role) (PermissionSet, error) {
	if !role.Valid() {
		return nil, &InvalidRoleError{Role: string(role)}
	}
	set := r.table.Load().Grants(role)
	if set == nil {
		// unreachable: tables only enter through NewResolver and Replace
		return nil, &TableError{Role: role, Reason: "missing entry"}
	}
	return set, nil
}

// HasPermission reports whether role holds permission. Invalid roles and
// permissions outside the catalog are denied.
func (r *Resolver) HasPermission(role Role, permission Permission) bool {
	if !role.Valid() {
		return false
	}
	set, ok := r.table.Load().grants[role]
	if !ok {
		return false
	}
	return set.Has(permission)
}

// ResolveRole translates an identity-provider label into a role.
func (r *Resolver) ResolveRole(label string) (Role, error) {
	if role, ok := roleLabels[label]; ok {
		return role, nil
	}
	if r.policy == UnknownRoleEmployee {
		r.logger.Warn("unknown role label mapped to employee",
			zap.String("label", label))
		return RoleEmployee, nil
	}
	return "", &UnknownRoleError{Label: label}
}
