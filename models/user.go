package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/upb/workdesk/internal/access"
)

// User represents a dashboard user authenticated via Cognito
type User struct {
	ID         uuid.UUID   `json:"id" db:"id"`
	Email      string      `json:"email" db:"email"`
	Name       string      `json:"name" db:"name"`
	CognitoSub string      `json:"cognito_sub" db:"cognito_sub"` // Cognito user identifier
	RoleLabel  string      `json:"role_label" db:"role_label"`   // label as sent by the identity provider
	Role       access.Role `json:"role" db:"role"`
	LastLogin  *time.Time  `json:"last_login,omitempty" db:"last_login"`
	CreatedAt  time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at" db:"updated_at"`
}

// TableName returns the table name for the User model
func (User) TableName() string {
	return "users"
}

// NewUser creates a new User instance
func NewUser(email, name, cognitoSub, roleLabel string, role access.Role) *User {
	now := time.Now()
	return &User{
		ID:         uuid.New(),
		Email:      email,
		Name:       name,
		CognitoSub: cognitoSub,
		RoleLabel:  roleLabel,
		Role:       role,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// MarkLogin records a successful login with the role resolved for it
func (u *User) MarkLogin(roleLabel string, role access.Role) {
	now := time.Now()
	u.RoleLabel = roleLabel
	u.Role = role
	u.LastLogin = &now
	u.UpdatedAt = now
}
