package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AuditAction represents the type of action being audited
type AuditAction string

const (
	AuditActionSessionCreated         AuditAction = "session_created"
	AuditActionSessionDestroyed       AuditAction = "session_destroyed"
	AuditActionRoleSimulated          AuditAction = "role_simulated"
	AuditActionRoleReset              AuditAction = "role_reset"
	AuditActionAccessDenied           AuditAction = "access_denied"
	AuditActionRolePermissionsUpdated AuditAction = "role_permissions_updated"
	AuditActionUnknownRoleRejected    AuditAction = "unknown_role_rejected"
)

// Valid reports whether a is one of the recorded actions
func (a AuditAction) Valid() bool {
	switch a {
	case AuditActionSessionCreated, AuditActionSessionDestroyed, AuditActionRoleSimulated,
		AuditActionRoleReset, AuditActionAccessDenied, AuditActionRolePermissionsUpdated,
		AuditActionUnknownRoleRejected:
		return true
	}
	return false
}

// AuditLog represents an audit trail entry
type AuditLog struct {
	ID           uuid.UUID       `json:"id" db:"id"`
	UserID       *uuid.UUID      `json:"user_id,omitempty" db:"user_id"`
	SessionID    *uuid.UUID      `json:"session_id,omitempty" db:"session_id"`
	Action       AuditAction     `json:"action" db:"action"`
	ResourceType string          `json:"resource_type" db:"resource_type"` // session, role, permission
	ResourceID   string          `json:"resource_id,omitempty" db:"resource_id"`
	Role         string          `json:"role,omitempty" db:"role"` // active role at the time of the event
	Details      json.RawMessage `json:"details,omitempty" db:"details"`
	IPAddress    string          `json:"ip_address" db:"ip_address"`
	UserAgent    string          `json:"user_agent" db:"user_agent"`
	RequestID    string          `json:"request_id" db:"request_id"`
	Timestamp    time.Time       `json:"timestamp" db:"timestamp"`
}

// TableName returns the table name for the AuditLog model
func (AuditLog) TableName() string {
	return "audit_logs"
}

// NewAuditLog creates a new AuditLog instance
func NewAuditLog(action AuditAction, resourceType, resourceID string) *AuditLog {
	return &AuditLog{
		ID:           uuid.New(),
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Timestamp:    time.Now(),
	}
}

// WithUser sets the user ID
func (a *AuditLog) WithUser(userID uuid.UUID) *AuditLog {
	if userID != uuid.Nil {
		a.UserID = &userID
	}
	return a
}

// WithSession sets the session ID and the role active in it
func (a *AuditLog) WithSession(sessionID uuid.UUID, role string) *AuditLog {
	a.SessionID = &sessionID
	a.Role = role
	return a
}

// WithDetails sets the details
func (a *AuditLog) WithDetails(details interface{}) *AuditLog {
	if data, err := json.Marshal(details); err == nil {
		a.Details = data
	}
	return a
}

// WithRequest sets request metadata
func (a *AuditLog) WithRequest(requestID, ipAddress, userAgent string) *AuditLog {
	a.RequestID = requestID
	a.IPAddress = ipAddress
	a.UserAgent = userAgent
	return a
}
