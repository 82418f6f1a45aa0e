package access

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Identity is what the identity provider tells us about the user behind a
// session. None of it takes part in access decisions.
type Identity struct {
	UserID  uuid.UUID
	Subject string
	Email   string
	Name    string
	Label   string // role label as sent by the identity provider
}

// Session holds the active role for one connected client. The permission
// set is always derived from the resolver, never cached here.
type Session struct {
	ID        uuid.UUID
	Identity  Identity
	CreatedAt time.Time

	mu                sync.RWMutex
	authenticatedRole Role
	role              Role
}

// NewSession creates a session for identity with an explicit role.
func NewSession(id uuid.UUID, identity Identity, role Role) (*Session, error) {
	if !role.Valid() {
		return nil, &InvalidRoleError{Role: string(role)}
	}
	return &Session{
		ID:                id,
		Identity:          identity,
		CreatedAt:         time.Now().UTC(),
		authenticatedRole: role,
		role:              role,
	}, nil
}

// Role returns the active role.
func (s *Session) Role() Role {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.role
}

// AuthenticatedRole returns the role assigned at login. It does not change
// when the active role is overridden.
func (s *Session) AuthenticatedRole() Role {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.authenticatedRole
}

// SetRole overwrites the active role. Any transition is allowed.
func (s *Session) SetRole(role Role) error {
	if s == nil {
		return ErrNoSession
	}
	if !role.Valid() {
		return &InvalidRoleError{Role: string(role)}
	}
	s.mu.Lock()
	s.role = role
	s.mu.Unlock()
	return nil
}

// Simulating reports whether the active role differs from the role assigned
// at login.
func (s *Session) Simulating() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.role != s.authenticatedRole
}

// Permissions derives the permission set of the active role.
func (s *Session) Permissions(r *Resolver) (PermissionSet, error) {
	if s == nil {
		return nil, ErrNoSession
	}
	return r.PermissionsFor(s.Role())
}

// Can reports whether the active role holds p.
func (s *Session) Can(r *Resolver, p Permission) (bool, error) {
	if s == nil {
		return false, ErrNoSession
	}
	return r.HasPermission(s.Role(), p), nil
}
