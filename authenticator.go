package auth

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// LoginResult is returned by a successful login
type LoginResult struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	Actor     *Actor    `json:"actor"`
}

// Auther authenticates privileged actors and authorizes their requests
type Auther struct {
	store         ActorStore
	hasher        PasswordHasher
	tokenService  TokenService
	audit         *AuditLogger
	policy        LockoutPolicy
	now           func() time.Time
	logger        Logger
	activitySink  ActivitySink
	singleSession bool

	dummyOnce sync.Once
	dummyHash string
}

// NewAuthenticator returns a new Authenticator
func NewAuthenticator(store ActorStore, tokenService TokenService, audit *AuditLogger) *Auther {
	return &Auther{
		store:        store,
		hasher:       NewBcryptHasher(),
		tokenService: tokenService,
		audit:        audit,
		policy:       DefaultLockoutPolicy(),
		now:          time.Now,
		logger:       defLogger{},
		activitySink: noopActivitySink{},
	}
}

func (s *Auther) WithLogger(logger Logger) *Auther {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// WithActivitySink configures an ActivitySink for emitting auth events.
func (s *Auther) WithActivitySink(sink ActivitySink) *Auther {
	s.activitySink = normalizeActivitySink(sink)
	return s
}

func (s *Auther) WithPasswordHasher(hasher PasswordHasher) *Auther {
	if hasher != nil {
		s.hasher = hasher
	}
	return s
}

func (s *Auther) WithLockoutPolicy(policy LockoutPolicy) *Auther {
	s.policy = policy.normalized()
	return s
}

// WithClock injects the clock used for lockout windows and login stamps.
func (s *Auther) WithClock(clock func() time.Time) *Auther {
	if clock != nil {
		s.now = clock
	}
	return s
}

// WithSingleSession makes Authenticate reject tokens whose jti is not the
// session token stored by the latest login.
func (s *Auther) WithSingleSession(enabled bool) *Auther {
	s.singleSession = enabled
	return s
}

// TokenService returns the TokenService instance used by this Authenticator
func (s *Auther) TokenService() TokenService {
	return s.tokenService
}

// Login verifies credentials for an actor of kind. The error distinguishes
// locked, deactivated and unverified accounts but never reveals whether the
// email exists.
func (s *Auther) Login(ctx context.Context, kind ActorKind, email, password string, meta RequestMeta) (*LoginResult, error) {
	if !kind.IsValid() {
		return nil, ErrValidation
	}

	actor, err := s.store.GetByEmail(ctx, kind, email)
	if err != nil {
		if errors.Is(err, ErrActorNotFound) {
			// keep timing close to the found path
			_ = s.hasher.ComparePasswordAndHash(password, s.dummyPasswordHash())
			s.emit(ctx, ActivityEventLoginFailure, nil, kind, map[string]any{
				"email":  NormalizeEmail(email),
				"reason": "unknown_email",
			})
			return nil, ErrInvalidCredentials
		}
		s.logger.Error("Login lookup error: %v", err)
		return nil, err
	}

	now := s.now()
	if s.policy.IsLocked(actor.SecurityState(), now) {
		s.emit(ctx, ActivityEventLoginFailure, actor, kind, map[string]any{"reason": "locked"})
		return nil, ErrAccountLocked
	}

	if err := s.hasher.ComparePasswordAndHash(password, actor.PasswordHash); err != nil {
		if !errors.Is(err, ErrMismatchedHashAndPassword) {
			s.logger.Error("Login password compare error for actor %s: %v", actor.ID, err)
		}
		return nil, s.failLogin(ctx, actor, now)
	}

	if !actor.IsActive {
		s.emit(ctx, ActivityEventLoginFailure, actor, kind, map[string]any{"reason": "deactivated"})
		return nil, ErrAccountDisabled
	}

	if !actor.IsVerified {
		s.emit(ctx, ActivityEventLoginFailure, actor, kind, map[string]any{"reason": "unverified"})
		return nil, ErrAccountUnverified
	}

	actor, err = s.succeedLogin(ctx, actor, now)
	if err != nil {
		return nil, err
	}

	token, expiresAt, err := s.tokenService.Issue(actor)
	if err != nil {
		s.logger.Error("Login token issue error for actor %s: %v", actor.ID, err)
		return nil, err
	}

	if err := s.audit.Log(ctx, actor.ID, ActivityEntry{
		Action:   AuditActionLogin,
		Resource: AuditResourceSession,
	}, meta); err != nil {
		s.logger.Error("Login audit error for actor %s: %v", actor.ID, err)
		return nil, err
	}

	s.emit(ctx, ActivityEventLoginSuccess, actor, kind, nil)

	return &LoginResult{
		Token:     token,
		ExpiresAt: expiresAt,
		Actor:     actor,
	}, nil
}

func (s *Auther) failLogin(ctx context.Context, actor *Actor, now time.Time) error {
	outcome, err := s.registerFailure(ctx, actor, now)
	if err != nil {
		s.logger.Error("Login failure tracking error for actor %s: %v", actor.ID, err)
		return err
	}

	switch outcome {
	case FailureLocked:
		s.logger.Warn("actor %s locked after %d failed attempts", actor.ID, s.policy.MaxAttempts)
		s.emit(ctx, ActivityEventAccountLocked, actor, actor.Kind, map[string]any{
			"locked_for": s.policy.LockDuration.String(),
		})
		return ErrAccountLocked
	case FailureRejected:
		return ErrAccountLocked
	default:
		s.emit(ctx, ActivityEventLoginFailure, actor, actor.Kind, map[string]any{"reason": "bad_password"})
		return ErrInvalidCredentials
	}
}

// registerFailure applies the lockout policy with a CAS loop so concurrent
// failures for the same actor never lose an increment.
func (s *Auther) registerFailure(ctx context.Context, actor *Actor, now time.Time) (FailureOutcome, error) {
	current := actor
	for attempt := 0; attempt < maxCASRetries; attempt++ {
		next, outcome := s.policy.RegisterFailure(current.SecurityState(), now)
		if outcome == FailureRejected {
			return outcome, nil
		}

		ok, err := s.store.CompareAndSwapSecurity(ctx, current.ID, current.SecurityVersion, SecurityUpdate{
			FailedAttempts: next.FailedAttempts,
			LockedUntil:    next.LockedUntil,
			SessionToken:   current.SessionToken,
			LastLogin:      current.LastLogin,
		})
		if err != nil {
			return outcome, err
		}
		if ok {
			return outcome, nil
		}

		if current, err = s.store.GetByID(ctx, current.ID); err != nil {
			return outcome, err
		}
	}
	return FailureCounted, ErrConcurrentUpdate
}

// succeedLogin clears lockout state and rotates the session token.
func (s *Auther) succeedLogin(ctx context.Context, actor *Actor, now time.Time) (*Actor, error) {
	current := actor
	for attempt := 0; attempt < maxCASRetries; attempt++ {
		state := s.policy.RegisterSuccess()
		session := uuid.NewString()
		loggedIn := now.UTC()

		ok, err := s.store.CompareAndSwapSecurity(ctx, current.ID, current.SecurityVersion, SecurityUpdate{
			FailedAttempts: state.FailedAttempts,
			LockedUntil:    state.LockedUntil,
			SessionToken:   session,
			LastLogin:      &loggedIn,
		})
		if err != nil {
			return nil, err
		}
		if ok {
			current.FailedAttempts = state.FailedAttempts
			current.LockedUntil = state.LockedUntil
			current.SessionToken = session
			current.LastLogin = &loggedIn
			current.SecurityVersion++
			return current, nil
		}

		if current, err = s.store.GetByID(ctx, current.ID); err != nil {
			return nil, err
		}
	}
	return nil, ErrConcurrentUpdate
}

// Authenticate validates raw and re-reads the actor it names. kind may be
// empty to accept either actor kind.
func (s *Auther) Authenticate(ctx context.Context, kind ActorKind, raw string) (*Actor, *JWTClaims, error) {
	claims, err := s.tokenService.Validate(raw)
	if err != nil {
		return nil, nil, err
	}
	return s.ActorFromClaims(ctx, kind, claims)
}

// ActorFromClaims re-fetches the actor behind validated claims and checks it
// may still act.
func (s *Auther) ActorFromClaims(ctx context.Context, kind ActorKind, claims *JWTClaims) (*Actor, *JWTClaims, error) {
	if claims == nil {
		return nil, nil, ErrTokenInvalid
	}

	if kind != "" && claims.Kind() != kind {
		return nil, nil, ErrKindMismatch
	}

	id, err := claims.ActorID()
	if err != nil {
		return nil, nil, ErrTokenInvalid
	}

	actor, err := s.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrActorNotFound) {
			return nil, nil, ErrTokenInvalid
		}
		return nil, nil, err
	}

	if actor.Kind != claims.Kind() {
		return nil, nil, ErrTokenInvalid
	}

	if !actor.IsActive {
		return nil, nil, ErrAccountDisabled
	}

	if !actor.IsVerified {
		return nil, nil, ErrAccountUnverified
	}

	if s.singleSession && actor.SessionToken != claims.SessionID() {
		return nil, nil, ErrTokenInvalid
	}

	return actor, claims, nil
}

// Authorize checks actor against (resource, action).
func (s *Auther) Authorize(ctx context.Context, actor *Actor, resource Resource, action Action) error {
	if HasPermission(actor, resource, action) {
		return nil
	}

	var kind ActorKind
	if actor != nil {
		kind = actor.Kind
	}
	s.emit(ctx, ActivityEventAccessDenied, actor, kind, map[string]any{
		"resource": string(resource),
		"action":   string(action),
	})
	return ErrPermissionDenied
}

// Logout clears the stored session token of actor.
func (s *Auther) Logout(ctx context.Context, actor *Actor, meta RequestMeta) error {
	current := actor
	for attempt := 0; attempt < maxCASRetries; attempt++ {
		ok, err := s.store.CompareAndSwapSecurity(ctx, current.ID, current.SecurityVersion, SecurityUpdate{
			FailedAttempts: current.FailedAttempts,
			LockedUntil:    current.LockedUntil,
			LastLogin:      current.LastLogin,
		})
		if err != nil {
			return err
		}
		if ok {
			actor.SessionToken = ""
			actor.SecurityVersion = current.SecurityVersion + 1
			if err := s.audit.Log(ctx, actor.ID, ActivityEntry{
				Action:   AuditActionLogout,
				Resource: AuditResourceSession,
			}, meta); err != nil {
				return err
			}
			s.emit(ctx, ActivityEventLogout, actor, actor.Kind, nil)
			return nil
		}

		if current, err = s.store.GetByID(ctx, current.ID); err != nil {
			return err
		}
	}
	return ErrConcurrentUpdate
}

func (s *Auther) dummyPasswordHash() string {
	s.dummyOnce.Do(func() {
		hash, err := s.hasher.HashPassword(uuid.NewString())
		if err != nil {
			s.logger.Error("failed to build dummy password hash: %v", err)
			return
		}
		s.dummyHash = hash
	})
	return s.dummyHash
}

func (s *Auther) emit(ctx context.Context, eventType ActivityEventType, actor *Actor, kind ActorKind, metadata map[string]any) {
	event := ActivityEvent{
		EventType: eventType,
		Kind:      kind,
		Metadata:  metadata,
	}
	if actor != nil {
		event.Actor = actor.Ref()
		event.ActorID = actor.ID.String()
	}
	emitActivity(ctx, s.activitySink, s.logger, s.now, event)
}
