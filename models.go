package auth

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// ActorStatus is derived from the IsActive and IsVerified flags.
type ActorStatus string

const (
	// ActorStatusPending is active but not yet verified by a root or super actor
	ActorStatusPending ActorStatus = "pending"
	// ActorStatusActive can log in
	ActorStatusActive ActorStatus = "active"
	// ActorStatusDeactivated is soft disabled and refused at login
	ActorStatusDeactivated ActorStatus = "deactivated"
)

// Actor is a privileged account: a platform admin or a landlord staff member.
type Actor struct {
	bun.BaseModel `bun:"table:privileged_actors,alias:pa"`

	ID        uuid.UUID      `bun:"id,pk,type:uuid" json:"id"`
	Kind      ActorKind      `bun:"actor_kind,notnull" json:"kind"`
	Email     string         `bun:"email,notnull" json:"email"`
	FirstName string         `bun:"first_name,notnull" json:"first_name"`
	LastName  string         `bun:"last_name,notnull" json:"last_name"`
	Phone     string         `bun:"phone_number" json:"phone_number,omitempty"`
	Profile   map[string]any `bun:"profile" json:"profile,omitempty"`

	PasswordHash string        `bun:"password_hash,notnull" json:"-"`
	Role         Role          `bun:"actor_role,notnull" json:"role"`
	Permissions  PermissionSet `bun:"permissions,notnull" json:"permissions"`

	IsActive        bool       `bun:"is_active,notnull" json:"is_active"`
	IsVerified      bool       `bun:"is_verified,notnull" json:"is_verified"`
	FailedAttempts  int        `bun:"failed_attempts,notnull" json:"failed_attempts"`
	LockedUntil     *time.Time `bun:"locked_until,nullzero" json:"locked_until,omitempty"`
	SessionToken    string     `bun:"session_token" json:"-"`
	LastLogin       *time.Time `bun:"last_login,nullzero" json:"last_login,omitempty"`
	SecurityVersion int        `bun:"security_version,notnull" json:"-"`

	// Reserved. Nothing in this package reads or writes them.
	TwoFactorEnabled bool   `bun:"two_factor_enabled,notnull" json:"-"`
	TwoFactorSecret  string `bun:"two_factor_secret" json:"-"`

	CreatedBy       *uuid.UUID    `bun:"created_by,type:uuid,nullzero" json:"created_by,omitempty"`
	CreatedAt       time.Time     `bun:"created_at,notnull" json:"created_at"`
	LastModifiedBy  *uuid.UUID    `bun:"last_modified_by,type:uuid,nullzero" json:"last_modified_by,omitempty"`
	LastModifiedAt  *time.Time    `bun:"last_modified_at,nullzero" json:"last_modified_at,omitempty"`
	ActivityLog     ActivityTrail `bun:"activity_log,notnull" json:"-"`
	ActivityVersion int           `bun:"activity_version,notnull" json:"-"`
}

// FullName is the display name
func (a *Actor) FullName() string {
	return strings.TrimSpace(a.FirstName + " " + a.LastName)
}

// Status derives the lifecycle status from the security flags
func (a *Actor) Status() ActorStatus {
	switch {
	case !a.IsActive:
		return ActorStatusDeactivated
	case !a.IsVerified:
		return ActorStatusPending
	default:
		return ActorStatusActive
	}
}

// SecurityState returns the lockout slice of the actor
func (a *Actor) SecurityState() SecurityState {
	return SecurityState{
		FailedAttempts: a.FailedAttempts,
		LockedUntil:    a.LockedUntil,
	}
}

// Ref returns the reference used on activity events
func (a *Actor) Ref() ActorRef {
	if a == nil {
		return ActorRef{Type: "system"}
	}
	return ActorRef{ID: a.ID.String(), Type: string(a.Kind)}
}

// NormalizeEmail is the canonical form used for storage and lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ActorRef identifies who/what triggered an event.
type ActorRef struct {
	ID   string `json:"id,omitempty"`
	Type string `json:"type,omitempty"`
}
