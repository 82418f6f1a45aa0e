package cognito

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/upb/workdesk/internal/access"
)

var (
	// ErrMissingClaim is returned when a required claim is missing
	ErrMissingClaim = errors.New("missing required claim")

	// ErrInvalidClaimType is returned when a claim has an unexpected type
	ErrInvalidClaimType = errors.New("invalid claim type")
)

// Claims represents the claims carried by a Cognito ID or access token
type Claims struct {
	jwt.RegisteredClaims
	Sub             string `json:"sub"`
	Email           string `json:"email"`
	Name            string `json:"name"`
	EmailVerified   bool   `json:"email_verified"`
	TokenUse        string `json:"token_use"`
	AuthTime        int64  `json:"auth_time"`
	CognitoUsername string `json:"cognito:username"`

	// RoleLabel is the user's role as the identity provider names it
	// ("Admin", "Team Lead", "Member", "Client").
	RoleLabel string `json:"custom:userRole"`
}

// ParsedClaims represents parsed and validated claims
type ParsedClaims struct {
	Sub           uuid.UUID
	Email         string
	Name          string
	RoleLabel     string
	EmailVerified bool
	Username      string
	IssuedAt      time.Time
	ExpiresAt     time.Time
}

// ExtractClaimsFromValidatedToken extracts claims from an already validated jwt.Token
func ExtractClaimsFromValidatedToken(token *jwt.Token) (*ParsedClaims, error) {
	claims, ok := token.Claims.(*Claims)
	if !ok {
		return nil, ErrInvalidClaimType
	}

	return parseClaims(claims)
}

// parseClaims converts Claims to ParsedClaims. The role label is passed
// through untouched; mapping it to a role is the resolver's job.
func parseClaims(claims *Claims) (*ParsedClaims, error) {
	if claims.Sub == "" {
		return nil, fmt.Errorf("%w: sub", ErrMissingClaim)
	}
	sub, err := uuid.Parse(claims.Sub)
	if err != nil {
		return nil, fmt.Errorf("invalid sub UUID: %w", err)
	}

	parsed := &ParsedClaims{
		Sub:           sub,
		Email:         claims.Email,
		Name:          claims.Name,
		RoleLabel:     claims.RoleLabel,
		EmailVerified: claims.EmailVerified,
		Username:      claims.CognitoUsername,
	}

	if claims.IssuedAt != nil {
		parsed.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		parsed.ExpiresAt = claims.ExpiresAt.Time
	}

	return parsed, nil
}

// Identity converts the claims into the identity recorded on a session.
// UserID is left empty; it is assigned when the user record is stored.
func (p *ParsedClaims) Identity() access.Identity {
	name := p.Name
	if name == "" {
		name = p.Username
	}
	return access.Identity{
		Subject: p.Sub.String(),
		Email:   p.Email,
		Name:    name,
		Label:   p.RoleLabel,
	}
}
