package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// JWTClaims is the payload of a privileged session token
type JWTClaims struct {
	jwt.RegisteredClaims
	UID        string `json:"uid,omitempty"`
	Email      string `json:"email,omitempty"`
	ActorRole  string `json:"role,omitempty"`
	ActorKind  string `json:"kind,omitempty"`
	Privileged bool   `json:"privileged"`
}

// Subject returns the subject claim
func (c *JWTClaims) Subject() string {
	return c.RegisteredClaims.Subject
}

// UserID returns the actor ID
func (c *JWTClaims) UserID() string {
	if c.UID != "" {
		return c.UID
	}
	return c.Subject()
}

// ActorID parses the actor ID
func (c *JWTClaims) ActorID() (uuid.UUID, error) {
	return uuid.Parse(c.UserID())
}

// Role returns the role at issue time. Authorization always uses the stored
// role, this value is informational.
func (c *JWTClaims) Role() string {
	return c.ActorRole
}

// Kind returns the actor kind the token was issued for
func (c *JWTClaims) Kind() ActorKind {
	return ActorKind(c.ActorKind)
}

// SessionID is the jti, matched against the stored session token
func (c *JWTClaims) SessionID() string {
	return c.RegisteredClaims.ID
}

// Expires returns the expiration time
func (c *JWTClaims) Expires() time.Time {
	if c.ExpiresAt != nil {
		return c.ExpiresAt.Time
	}
	return time.Time{}
}

// IssuedAt returns the issued at time
func (c *JWTClaims) IssuedAt() time.Time {
	if c.RegisteredClaims.IssuedAt != nil {
		return c.RegisteredClaims.IssuedAt.Time
	}
	return time.Time{}
}
