package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// Config holds auth options
type Config interface {
	GetSigningKey() string
	GetSigningMethod() string
	GetContextKey() string
	GetTokenExpiration() int
	GetTokenLookup() string
	GetAuthScheme() string
	GetIssuer() string
	GetAudience() []string
	GetSingleSession() bool
}

// PasswordHasher hashes and verifies credentials
type PasswordHasher interface {
	HashPassword(password string) (string, error)
	ComparePasswordAndHash(password, hash string) error
}

// RequestMeta carries the network details recorded on audit entries
type RequestMeta struct {
	IP        string
	UserAgent string
}

// ActorStore is the persistence contract used by the services in this package.
// Actors implements it on top of bun.
type ActorStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Actor, error)
	GetByEmail(ctx context.Context, kind ActorKind, email string) (*Actor, error)
	List(ctx context.Context, filter ActorFilter) ([]*Actor, int, error)
	Create(ctx context.Context, actor *Actor) (*Actor, error)
	RootExists(ctx context.Context, kind ActorKind) (bool, error)
	CompareAndSwapSecurity(ctx context.Context, id uuid.UUID, expectedVersion int, update SecurityUpdate) (bool, error)
	CompareAndSwapActivity(ctx context.Context, id uuid.UUID, expectedVersion int, trail ActivityTrail) (bool, error)
	UpdateProfile(ctx context.Context, id uuid.UUID, update ProfileUpdate) error
	UpdatePasswordHash(ctx context.Context, id uuid.UUID, hash string, modifiedBy uuid.UUID, at time.Time) error
	UpdateStatus(ctx context.Context, id uuid.UUID, update StatusUpdate) error
	UpdatePermissions(ctx context.Context, id uuid.UUID, perms PermissionSet, modifiedBy uuid.UUID, at time.Time) error
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] AUTH "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] AUTH "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] AUTH "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] AUTH "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
