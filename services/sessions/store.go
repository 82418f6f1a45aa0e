// Package sessions keeps the in-memory sessions of logged-in users.
package sessions

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/upb/workdesk/internal/access"
	"github.com/upb/workdesk/internal/observability"
	"github.com/upb/workdesk/models"
	"github.com/upb/workdesk/repositories"
	"github.com/upb/workdesk/services"
	"go.uber.org/zap"
)

// Auditor records session lifecycle events
type Auditor interface {
	LogSessionCreated(ctx context.Context, sess *access.Session) error
	LogSessionDestroyed(ctx context.Context, sess *access.Session) error
	LogRoleSimulated(ctx context.Context, sess *access.Session, from access.Role) error
	LogRoleReset(ctx context.Context, sess *access.Session, from access.Role) error
	LogUnknownRoleRejected(ctx context.Context, identity access.Identity) error
}

// Config holds Store settings
type Config struct {
	TTL              time.Duration
	MaxEntries       int
	SimulatorEnabled bool
}

// Store issues sessions at login and looks them up on every request.
// Sessions expire TTL after creation; when MaxEntries is reached the
// least recently used session is evicted.
type Store struct {
	cache     *expirable.LRU[uuid.UUID, *access.Session]
	users     repositories.UserRepository
	resolver  *access.Resolver
	auditor   Auditor
	metrics   *observability.Metrics
	logger    *zap.Logger
	simulator bool
}

// NewStore creates a new session store
func NewStore(cfg Config, users repositories.UserRepository, resolver *access.Resolver, auditor Auditor, metrics *observability.Metrics, logger *zap.Logger) *Store {
	s := &Store{
		users:     users,
		resolver:  resolver,
		auditor:   auditor,
		metrics:   metrics,
		logger:    logger,
		simulator: cfg.SimulatorEnabled,
	}
	s.cache = expirable.NewLRU[uuid.UUID, *access.Session](cfg.MaxEntries, s.onEvict, cfg.TTL)
	return s
}

func (s *Store) onEvict(id uuid.UUID, sess *access.Session) {
	s.logger.Debug("session evicted", zap.String("session_id", id.String()))
}

// SimulatorEnabled reports whether role simulation is allowed
func (s *Store) SimulatorEnabled() bool {
	return s.simulator
}

// Create resolves the identity provider label to a role, records the login
// on the user and issues a new session. Unknown labels are rejected unless
// the resolver maps them to employee.
func (s *Store) Create(ctx context.Context, identity access.Identity, label string) (*access.Session, error) {
	identity.Label = label

	role, err := s.resolver.ResolveRole(label)
	if err != nil {
		s.metrics.RecordRoleResolution(observability.OutcomeRejected)
		s.logger.Warn("login rejected: unknown role label",
			zap.String("label", label),
			zap.String("subject", identity.Subject))
		if auditErr := s.auditor.LogUnknownRoleRejected(ctx, identity); auditErr != nil {
			s.logger.Warn("failed to queue audit event", zap.Error(auditErr))
		}
		return nil, services.FromAccessError(err)
	}
	if slices.Contains(access.Labels(), label) {
		s.metrics.RecordRoleResolution(observability.OutcomeResolved)
	} else {
		s.metrics.RecordRoleResolution(observability.OutcomeFallback)
	}

	user, err := s.recordLogin(ctx, identity, role)
	if err != nil {
		return nil, err
	}
	identity.UserID = user.ID

	sess, err := access.NewSession(uuid.New(), identity, role)
	if err != nil {
		return nil, services.FromAccessError(err)
	}
	s.cache.Add(sess.ID, sess)

	s.logger.Info("session created",
		zap.String("session_id", sess.ID.String()),
		zap.String("user_id", user.ID.String()),
		zap.String("role", role.String()))

	if err := s.auditor.LogSessionCreated(ctx, sess); err != nil {
		s.logger.Warn("failed to queue audit event", zap.Error(err))
	}
	return sess, nil
}

// recordLogin creates the user on first login and refreshes it afterwards
func (s *Store) recordLogin(ctx context.Context, identity access.Identity, role access.Role) (*models.User, error) {
	user, err := s.users.GetByCognitoSub(ctx, identity.Subject)
	switch {
	case errors.Is(err, repositories.ErrNotFound):
		user = models.NewUser(identity.Email, identity.Name, identity.Subject, identity.Label, role)
		user.MarkLogin(identity.Label, role)
		if err := s.users.Create(ctx, user); err != nil {
			return nil, services.WrapInternal("failed to create user", err)
		}
		return user, nil
	case err != nil:
		return nil, services.WrapInternal("failed to load user", err)
	}

	user.Email = identity.Email
	if identity.Name != "" {
		user.Name = identity.Name
	}
	user.MarkLogin(identity.Label, role)
	if err := s.users.Update(ctx, user); err != nil {
		return nil, services.WrapInternal("failed to update user", err)
	}
	return user, nil
}

// Get returns the live session with id
func (s *Store) Get(id uuid.UUID) (*access.Session, error) {
	sess, ok := s.cache.Get(id)
	if !ok {
		return nil, services.ErrNoSession
	}
	return sess, nil
}

// Lookup parses a session id as sent by a client and returns the session
func (s *Store) Lookup(raw string) (*access.Session, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, services.ErrNoSession
	}
	return s.Get(id)
}

// Destroy ends a session
func (s *Store) Destroy(ctx context.Context, id uuid.UUID) error {
	sess, ok := s.cache.Peek(id)
	if !ok {
		return services.ErrNoSession
	}
	s.cache.Remove(id)

	s.logger.Info("session destroyed", zap.String("session_id", id.String()))
	if err := s.auditor.LogSessionDestroyed(ctx, sess); err != nil {
		s.logger.Warn("failed to queue audit event", zap.Error(err))
	}
	return nil
}

// SimulateRole switches the active role of a session. Only sessions whose
// authenticated role holds roles.manage may simulate, and only while the
// simulator is enabled.
func (s *Store) SimulateRole(ctx context.Context, id uuid.UUID, role string) (*access.Session, error) {
	if !s.simulator {
		return nil, services.ErrSimulatorDisabled
	}

	sess, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	if !s.resolver.HasPermission(sess.AuthenticatedRole(), access.PermissionRolesManage) {
		return nil, services.NewDomainError(services.ErrorTypeForbidden,
			services.ErrInsufficientPermissions.Message, nil).WithDetail("permission", access.PermissionRolesManage)
	}

	target, err := access.ParseRole(role)
	if err != nil {
		return nil, services.FromAccessError(err)
	}

	from := sess.Role()
	if err := sess.SetRole(target); err != nil {
		return nil, services.FromAccessError(err)
	}

	s.logger.Info("role simulated",
		zap.String("session_id", sess.ID.String()),
		zap.String("from", from.String()),
		zap.String("to", target.String()))
	if err := s.auditor.LogRoleSimulated(ctx, sess, from); err != nil {
		s.logger.Warn("failed to queue audit event", zap.Error(err))
	}
	return sess, nil
}

// ResetRole restores the authenticated role of a session
func (s *Store) ResetRole(ctx context.Context, id uuid.UUID) (*access.Session, error) {
	sess, err := s.Get(id)
	if err != nil {
		return nil, err
	}

	from := sess.Role()
	if from == sess.AuthenticatedRole() {
		return sess, nil
	}
	if err := sess.SetRole(sess.AuthenticatedRole()); err != nil {
		return nil, services.FromAccessError(err)
	}

	if err := s.auditor.LogRoleReset(ctx, sess, from); err != nil {
		s.logger.Warn("failed to queue audit event", zap.Error(err))
	}
	return sess, nil
}

// Len returns the number of live sessions
func (s *Store) Len() int {
	return s.cache.Len()
}
