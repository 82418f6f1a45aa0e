package audit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/upb/workdesk/internal/access"
	"github.com/upb/workdesk/internal/observability"
	"github.com/upb/workdesk/models"
	"github.com/upb/workdesk/repositories"
	"go.uber.org/zap"
)

// AuditEvent represents an event to be audited
type AuditEvent struct {
	Log *models.AuditLog
}

// AuditService handles asynchronous audit logging
type AuditService struct {
	auditRepo   repositories.AuditRepository
	logger      *zap.Logger
	metrics     *observability.Metrics
	eventChan   chan *AuditEvent
	workerCount int
	bufferSize  int
	wg          sync.WaitGroup
	ctx         context.Context
	cancel      context.CancelFunc

	// mu guards the lifecycle flags. Senders hold the read lock so Stop
	// cannot close eventChan underneath them.
	mu      sync.RWMutex
	started bool
	stopped bool
}

// Config holds configuration for the AuditService
type Config struct {
	BufferSize  int // Size of the event buffer channel
	WorkerCount int // Number of concurrent workers
	Metrics     *observability.Metrics
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		BufferSize:  10000, // Buffer up to 10k events
		WorkerCount: 5,     // 5 concurrent workers
	}
}

// NewAuditService creates a new AuditService instance
func NewAuditService(auditRepo repositories.AuditRepository, logger *zap.Logger, config Config) *AuditService {
	ctx, cancel := context.WithCancel(context.Background())

	return &AuditService{
		auditRepo:   auditRepo,
		logger:      logger,
		metrics:     config.Metrics,
		eventChan:   make(chan *AuditEvent, config.BufferSize),
		workerCount: config.WorkerCount,
		bufferSize:  config.BufferSize,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start starts the background workers
func (s *AuditService) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return fmt.Errorf("audit service already started")
	}

	for i := 0; i < s.workerCount; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}

	s.started = true
	s.logger.Info("started audit service",
		zap.Int("worker_count", s.workerCount),
		zap.Int("buffer_size", s.bufferSize))

	return nil
}

// Stop gracefully stops the audit service.
// Waits for all pending events to be processed.
func (s *AuditService) Stop(timeout time.Duration) error {
	s.mu.Lock()
	if !s.started || s.stopped {
		s.mu.Unlock()
		return fmt.Errorf("audit service not running")
	}
	s.stopped = true
	s.logger.Info("stopping audit service", zap.Int("pending_events", len(s.eventChan)))

	// No more events will be accepted
	close(s.eventChan)
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("audit service stopped gracefully")
		s.cancel()
		return nil
	case <-time.After(timeout):
		s.cancel()
		return fmt.Errorf("audit service stop timeout after %v", timeout)
	}
}

// LogEvent logs an event asynchronously (non-blocking).
// The event is dropped when the buffer is full.
func (s *AuditService) LogEvent(event *AuditEvent) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.started || s.stopped {
		s.metrics.RecordAuditDropped()
		return fmt.Errorf("audit service not running")
	}

	select {
	case s.eventChan <- event:
		return nil
	default:
		s.metrics.RecordAuditDropped()
		s.logger.Warn("audit event channel full, dropping event",
			zap.String("action", string(event.Log.Action)),
			zap.String("resource_type", event.Log.ResourceType))
		return fmt.Errorf("audit event buffer full")
	}
}

// LogEventBlocking waits until the event is queued or ctx is cancelled
func (s *AuditService) LogEventBlocking(ctx context.Context, event *AuditEvent) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.started || s.stopped {
		return fmt.Errorf("audit service not running")
	}

	select {
	case s.eventChan <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.ctx.Done():
		return fmt.Errorf("audit service stopped")
	}
}

// worker processes events from the channel
func (s *AuditService) worker(id int) {
	defer s.wg.Done()

	s.logger.Debug("audit worker started", zap.Int("worker_id", id))

	for event := range s.eventChan {
		if err := s.processEvent(event); err != nil {
			s.metrics.RecordAuditDropped()
			s.logger.Error("failed to process audit event",
				zap.Int("worker_id", id),
				zap.Error(err),
				zap.String("action", string(event.Log.Action)),
				zap.String("request_id", event.Log.RequestID))
		}
	}

	s.logger.Debug("audit worker stopped", zap.Int("worker_id", id))
}

// processEvent processes a single audit event
func (s *AuditService) processEvent(event *AuditEvent) error {
	ctx, cancel := context.WithTimeout(s.ctx, 5*time.Second)
	defer cancel()

	if err := s.auditRepo.Insert(ctx, event.Log); err != nil {
		return fmt.Errorf("failed to insert audit log: %w", err)
	}

	return nil
}

// GetStats returns statistics about the audit service
func (s *AuditService) GetStats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Stats{
		BufferSize:    s.bufferSize,
		PendingEvents: len(s.eventChan),
		WorkerCount:   s.workerCount,
		Started:       s.started && !s.stopped,
	}
}

// Stats represents audit service statistics
type Stats struct {
	BufferSize    int  `json:"buffer_size"`
	PendingEvents int  `json:"pending_events"`
	WorkerCount   int  `json:"worker_count"`
	Started       bool `json:"started"`
}

// Convenience methods for logging access events.
// Request metadata is taken from ctx when the HTTP layer attached it.

func (s *AuditService) submit(ctx context.Context, log *models.AuditLog) error {
	if info, ok := RequestInfoFrom(ctx); ok {
		log.WithRequest(info.RequestID, info.IPAddress, info.UserAgent)
	}
	return s.LogEvent(&AuditEvent{Log: log})
}

func sessionLog(action models.AuditAction, sess *access.Session) *models.AuditLog {
	return models.NewAuditLog(action, "session", sess.ID.String()).
		WithUser(sess.Identity.UserID).
		WithSession(sess.ID, sess.Role().String())
}

// LogSessionCreated logs a login
func (s *AuditService) LogSessionCreated(ctx context.Context, sess *access.Session) error {
	log := sessionLog(models.AuditActionSessionCreated, sess).WithDetails(map[string]interface{}{
		"label": sess.Identity.Label,
		"email": sess.Identity.Email,
	})
	return s.submit(ctx, log)
}

// LogSessionDestroyed logs a logout
func (s *AuditService) LogSessionDestroyed(ctx context.Context, sess *access.Session) error {
	return s.submit(ctx, sessionLog(models.AuditActionSessionDestroyed, sess))
}

// LogRoleSimulated logs a role simulator switch
func (s *AuditService) LogRoleSimulated(ctx context.Context, sess *access.Session, from access.Role) error {
	log := sessionLog(models.AuditActionRoleSimulated, sess).WithDetails(map[string]interface{}{
		"from":               from,
		"to":                 sess.Role(),
		"authenticated_role": sess.AuthenticatedRole(),
	})
	return s.submit(ctx, log)
}

// LogRoleReset logs the return to the authenticated role
func (s *AuditService) LogRoleReset(ctx context.Context, sess *access.Session, from access.Role) error {
	log := sessionLog(models.AuditActionRoleReset, sess).WithDetails(map[string]interface{}{
		"from": from,
		"to":   sess.Role(),
	})
	return s.submit(ctx, log)
}

// LogAccessDenied logs a route guard denial
func (s *AuditService) LogAccessDenied(ctx context.Context, sess *access.Session, permission access.Permission, route string) error {
	log := models.NewAuditLog(models.AuditActionAccessDenied, "permission", permission.String()).
		WithUser(sess.Identity.UserID).
		WithSession(sess.ID, sess.Role().String()).
		WithDetails(map[string]interface{}{
			"route":      route,
			"simulating": sess.Simulating(),
		})
	return s.submit(ctx, log)
}

// LogRolePermissionsUpdated logs an edit of the role permission table
func (s *AuditService) LogRolePermissionsUpdated(ctx context.Context, actor *access.Session, role access.Role, version int64, perms access.PermissionSet) error {
	log := models.NewAuditLog(models.AuditActionRolePermissionsUpdated, "role", role.String()).
		WithDetails(map[string]interface{}{
			"version":     version,
			"permissions": perms,
		})
	if actor != nil {
		log.WithUser(actor.Identity.UserID).WithSession(actor.ID, actor.Role().String())
	}
	return s.submit(ctx, log)
}

// LogUnknownRoleRejected logs a login refused because its role label
// has no mapping
func (s *AuditService) LogUnknownRoleRejected(ctx context.Context, identity access.Identity) error {
	log := models.NewAuditLog(models.AuditActionUnknownRoleRejected, "identity", identity.Subject).
		WithUser(identity.UserID).
		WithDetails(map[string]interface{}{
			"label": identity.Label,
			"email": identity.Email,
		})
	return s.submit(ctx, log)
}
