package auth

import "time"

const (
	DefaultMaxLoginAttempts = 5
	DefaultLockDuration     = 2 * time.Hour
)

// SecurityState is the lockout relevant slice of an Actor.
type SecurityState struct {
	FailedAttempts int
	LockedUntil    *time.Time
}

// FailureOutcome describes what a failed login did to the lockout state.
type FailureOutcome int

const (
	// FailureCounted means the attempt counter was incremented.
	FailureCounted FailureOutcome = iota
	// FailureLocked means this attempt reached the threshold and locked the account.
	FailureLocked
	// FailureRejected means the account was already locked; nothing changed.
	FailureRejected
)

func (o FailureOutcome) String() string {
	switch o {
	case FailureCounted:
		return "counted"
	case FailureLocked:
		return "locked"
	case FailureRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// LockoutPolicy holds the lockout thresholds. Expiry is lazy: a lock whose
// time has passed is only cleared by the next failure or success.
type LockoutPolicy struct {
	MaxAttempts  int
	LockDuration time.Duration
}

// DefaultLockoutPolicy returns 5 attempts and a 2 hour lock.
func DefaultLockoutPolicy() LockoutPolicy {
	return LockoutPolicy{
		MaxAttempts:  DefaultMaxLoginAttempts,
		LockDuration: DefaultLockDuration,
	}
}

func (p LockoutPolicy) normalized() LockoutPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultMaxLoginAttempts
	}
	if p.LockDuration <= 0 {
		p.LockDuration = DefaultLockDuration
	}
	return p
}

// IsLocked reports whether state is locked at now.
func (p LockoutPolicy) IsLocked(state SecurityState, now time.Time) bool {
	return state.LockedUntil != nil && state.LockedUntil.After(now)
}

// RegisterFailure applies one failed attempt at now.
func (p LockoutPolicy) RegisterFailure(state SecurityState, now time.Time) (SecurityState, FailureOutcome) {
	p = p.normalized()

	if p.IsLocked(state, now) {
		return state, FailureRejected
	}

	attempts := state.FailedAttempts
	if state.LockedUntil != nil {
		// the previous lock expired, this failure opens a new window
		attempts = 0
	}
	attempts++

	if attempts >= p.MaxAttempts {
		until := now.Add(p.LockDuration)
		return SecurityState{FailedAttempts: 0, LockedUntil: &until}, FailureLocked
	}

	return SecurityState{FailedAttempts: attempts}, FailureCounted
}

// RegisterSuccess clears the counter and any lock.
func (p LockoutPolicy) RegisterSuccess() SecurityState {
	return SecurityState{}
}
