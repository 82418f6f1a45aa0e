package services

import (
	"errors"
	"fmt"

	"github.com/upb/workdesk/internal/access"
	"github.com/upb/workdesk/repositories"
)

// ErrorType represents the type/category of error
type ErrorType string

const (
	ErrorTypeNotFound     ErrorType = "not_found"
	ErrorTypeValidation   ErrorType = "validation"
	ErrorTypeUnauthorized ErrorType = "unauthorized"
	ErrorTypeForbidden    ErrorType = "forbidden"
	ErrorTypeConflict     ErrorType = "conflict"
	ErrorTypeInternal     ErrorType = "internal"
	ErrorTypeExternal     ErrorType = "external"
)

// DomainError represents a structured error with additional context
type DomainError struct {
	Type    ErrorType
	Message string
	Err     error
	Details map[string]interface{}
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is. Two domain errors match when their types match.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

// WithDetail adds a detail to the error. Do not call it on the shared
// Err* variables; build a new error with NewDomainError instead.
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// NewDomainError creates a new domain error
func NewDomainError(errType ErrorType, message string, err error) *DomainError {
	return &DomainError{
		Type:    errType,
		Message: message,
		Err:     err,
		Details: make(map[string]interface{}),
	}
}

// Domain error variables

var (
	// Not Found Errors
	ErrAuditLogNotFound = NewDomainError(ErrorTypeNotFound, "audit log not found", nil)

	// Validation Errors
	ErrInvalidRole        = NewDomainError(ErrorTypeValidation, "invalid role", nil)
	ErrInvalidPermission  = NewDomainError(ErrorTypeValidation, "permission is not in the catalog", nil)
	ErrEmptyPermissionSet = NewDomainError(ErrorTypeValidation, "a role must keep at least one permission", nil)

	// Authorization Errors
	ErrNoSession = NewDomainError(ErrorTypeUnauthorized, "no active session", nil)

	// Permission Errors
	ErrInsufficientPermissions = NewDomainError(ErrorTypeForbidden, "insufficient permissions", nil)
	ErrUnknownRole             = NewDomainError(ErrorTypeForbidden, "role label is not recognised", nil)
	ErrSimulatorDisabled       = NewDomainError(ErrorTypeForbidden, "role simulator is disabled", nil)

	// Conflict Errors
	ErrRoleTableReadOnly = NewDomainError(ErrorTypeConflict, "role permission table is read-only", nil)

	// Internal Errors
	ErrInternal      = NewDomainError(ErrorTypeInternal, "internal server error", nil)
	ErrDatabaseError = NewDomainError(ErrorTypeInternal, "database error", nil)

	// External Errors
	ErrIdentityProvider = NewDomainError(ErrorTypeExternal, "identity provider error", nil)
)

// FromAccessError translates errors from the access package, and
// repositories.ErrNotFound, into domain errors. Domain errors pass through
// unchanged; anything else becomes an internal error.
func FromAccessError(err error) error {
	if err == nil {
		return nil
	}

	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return err
	}

	var invalidRole *access.InvalidRoleError
	var unknownRole *access.UnknownRoleError
	var tableErr *access.TableError

	switch {
	case errors.Is(err, access.ErrNoSession):
		return NewDomainError(ErrorTypeUnauthorized, "no active session", err)
	case errors.As(err, &invalidRole):
		return NewDomainError(ErrorTypeValidation, "invalid role", err).
			WithDetail("role", invalidRole.Role)
	case errors.As(err, &unknownRole):
		return NewDomainError(ErrorTypeForbidden, "role label is not recognised", err).
			WithDetail("label", unknownRole.Label)
	case errors.As(err, &tableErr):
		d := NewDomainError(ErrorTypeValidation, "invalid role permission table", err).
			WithDetail("reason", tableErr.Reason)
		if tableErr.Role != "" {
			d.WithDetail("role", string(tableErr.Role))
		}
		return d
	case errors.Is(err, repositories.ErrNotFound):
		return NewDomainError(ErrorTypeNotFound, "resource not found", err)
	default:
		return WrapInternal("unexpected error", err)
	}
}

// Error type checking helper functions

func hasType(err error, errType ErrorType) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type == errType
	}
	return false
}

// IsNotFoundError checks if an error is a not found error
func IsNotFoundError(err error) bool {
	return hasType(err, ErrorTypeNotFound)
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	return hasType(err, ErrorTypeValidation)
}

// IsUnauthorizedError checks if an error is an unauthorized error
func IsUnauthorizedError(err error) bool {
	return hasType(err, ErrorTypeUnauthorized)
}

// IsForbiddenError checks if an error is a forbidden error
func IsForbiddenError(err error) bool {
	return hasType(err, ErrorTypeForbidden)
}

// IsConflictError checks if an error is a conflict error
func IsConflictError(err error) bool {
	return hasType(err, ErrorTypeConflict)
}

// IsInternalError checks if an error is an internal error
func IsInternalError(err error) bool {
	return hasType(err, ErrorTypeInternal)
}

// IsExternalError checks if an error is an external error
func IsExternalError(err error) bool {
	return hasType(err, ErrorTypeExternal)
}

// GetErrorType returns the ErrorType of a domain error, or empty string if not a domain error
func GetErrorType(err error) ErrorType {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type
	}
	return ""
}

// GetErrorDetails returns the details map of a domain error, or nil if not a domain error
func GetErrorDetails(err error) map[string]interface{} {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Details
	}
	return nil
}

// WrapError wraps an error with additional context
func WrapError(errType ErrorType, message string, err error) error {
	return NewDomainError(errType, message, err)
}

// WrapInternal wraps an error as an internal error
func WrapInternal(message string, err error) error {
	return NewDomainError(ErrorTypeInternal, message, err)
}

// WrapExternal wraps an error as an external error
func WrapExternal(message string, err error) error {
	return NewDomainError(ErrorTypeExternal, message, err)
}
