package access

import (
	"errors"
	"fmt"
)

// ErrNoSession is returned whenever an access decision is requested without
// an active session. Callers must treat it as unauthenticated.
var ErrNoSession = errors.New("no active session")

// InvalidRoleError is returned when a value outside the Role enum reaches
// the resolver.
type InvalidRoleError struct {
	Role string
}

func (e *InvalidRoleError) Error() string {
	return fmt.Sprintf("invalid role %q", e.Role)
}

// UnknownRoleError is returned when the identity provider supplies a role
// label that has no mapping and the resolver is configured to fail closed.
type UnknownRoleError struct {
	Label string
}

func (e *UnknownRoleError) Error() string {
	return fmt.Sprintf("unknown role label %q", e.Label)
}

// TableError reports a violated invariant of a role permission table.
type TableError struct {
	Role   Role
	Reason string
}

func (e *TableError) Error() string {
	if e.Role == "" {
		return "invalid role table: " + e.Reason
	}
	return fmt.Sprintf("invalid role table for %s: %s", e.Role, e.Reason)
}

// IsInvalidRole reports whether err is an *InvalidRoleError.
func IsInvalidRole(err error) bool {
	var target *InvalidRoleError
	return errors.As(err, &target)
}

// IsUnknownRole reports whether err is an *UnknownRoleError.
func IsUnknownRole(err error) bool {
	var target *UnknownRoleError
	return errors.As(err, &target)
}

// IsTableError reports whether err is a *TableError.
func IsTableError(err error) bool {
	var target *TableError
	return errors.As(err, &target)
}
