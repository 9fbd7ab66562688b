package auth_test

import (
	"context"
	"sync"
	"testing"
	"time"

	auth "github.com/goliatone/go-actor-auth"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var loginMeta = auth.RequestMeta{IP: "192.0.2.10", UserAgent: "curl/8.4"}

func TestLoginSuccess(t *testing.T) {
	f := newFixture(t)
	root := f.seedRoot(t, auth.KindPlatformAdmin)
	actor := f.createActor(t, root, "a@x.com", auth.RoleStandard, nil)

	res, err := f.auther.Login(f.ctx, auth.KindPlatformAdmin, "A@X.com", testPassword, loginMeta)
	require.NoError(t, err)
	require.NotEmpty(t, res.Token)
	assert.Equal(t, f.clock.Now().Add(8*time.Hour), res.ExpiresAt)
	assert.Equal(t, actor.ID, res.Actor.ID)

	claims, err := f.tokens.Validate(res.Token)
	require.NoError(t, err)
	assert.Equal(t, actor.ID.String(), claims.Subject())
	assert.Equal(t, auth.KindPlatformAdmin, claims.Kind())
	assert.Equal(t, "standard", claims.Role())

	stored := f.reload(t, actor)
	assert.Zero(t, stored.FailedAttempts)
	require.NotNil(t, stored.LastLogin)
	assert.True(t, stored.LastLogin.Equal(f.clock.Now()))
	assert.NotEmpty(t, stored.SessionToken)
	assert.Equal(t, stored.SessionToken, claims.SessionID())

	latest := stored.ActivityLog.Latest(1)
	require.Len(t, latest, 1)
	assert.Equal(t, auth.AuditActionLogin, latest[0].Action)
	assert.Equal(t, "192.0.2.10", latest[0].IP)
	assert.Equal(t, "curl/8.4", latest[0].UserAgent)

	assert.Contains(t, f.sink.types(), auth.ActivityEventLoginSuccess)
}

func TestLoginRotatesSessionToken(t *testing.T) {
	f := newFixture(t)
	root := f.seedRoot(t, auth.KindPlatformAdmin)
	actor := f.createActor(t, root, "a@x.com", auth.RoleStandard, nil)

	_, err := f.auther.Login(f.ctx, auth.KindPlatformAdmin, "a@x.com", testPassword, loginMeta)
	require.NoError(t, err)
	first := f.reload(t, actor).SessionToken

	_, err = f.auther.Login(f.ctx, auth.KindPlatformAdmin, "a@x.com", testPassword, loginMeta)
	require.NoError(t, err)
	second := f.reload(t, actor).SessionToken

	assert.NotEqual(t, first, second)
}

func TestLoginDoesNotRevealUnknownEmail(t *testing.T) {
	f := newFixture(t)
	root := f.seedRoot(t, auth.KindPlatformAdmin)
	f.createActor(t, root, "a@x.com", auth.RoleStandard, nil)

	_, unknownErr := f.auther.Login(f.ctx, auth.KindPlatformAdmin, "ghost@x.com", testPassword, loginMeta)
	_, wrongErr := f.auther.Login(f.ctx, auth.KindPlatformAdmin, "a@x.com", "not-the-password", loginMeta)

	requireCode(t, unknownErr, auth.TextCodeInvalidCredentials)
	requireCode(t, wrongErr, auth.TextCodeInvalidCredentials)
	assert.Equal(t, unknownErr.Error(), wrongErr.Error())

	_, err := f.auther.Login(f.ctx, auth.KindLandlordStaff, "a@x.com", testPassword, loginMeta)
	requireCode(t, err, auth.TextCodeInvalidCredentials)
}

func TestLoginLockout(t *testing.T) {
	f := newFixture(t)
	root := f.seedRoot(t, auth.KindPlatformAdmin)
	actor := f.createActor(t, root, "a@x.com", auth.RoleStandard, nil)

	for i := 1; i <= 4; i++ {
		_, err := f.auther.Login(f.ctx, auth.KindPlatformAdmin, "a@x.com", "wrong", loginMeta)
		requireCode(t, err, auth.TextCodeInvalidCredentials)
		assert.Equal(t, i, f.reload(t, actor).FailedAttempts)
	}

	_, err := f.auther.Login(f.ctx, auth.KindPlatformAdmin, "a@x.com", "wrong", loginMeta)
	requireCode(t, err, auth.TextCodeAccountLocked)

	stored := f.reload(t, actor)
	assert.Zero(t, stored.FailedAttempts)
	require.NotNil(t, stored.LockedUntil)
	assert.True(t, stored.LockedUntil.Equal(f.clock.Now().Add(2*time.Hour)))
	assert.Contains(t, f.sink.types(), auth.ActivityEventAccountLocked)

	version := stored.SecurityVersion

	f.clock.Advance(30 * time.Minute)
	_, err = f.auther.Login(f.ctx, auth.KindPlatformAdmin, "a@x.com", "wrong", loginMeta)
	requireCode(t, err, auth.TextCodeAccountLocked)

	_, err = f.auther.Login(f.ctx, auth.KindPlatformAdmin, "a@x.com", testPassword, loginMeta)
	requireCode(t, err, auth.TextCodeAccountLocked)

	stored = f.reload(t, actor)
	assert.Zero(t, stored.FailedAttempts, "attempts while locked are not counted")
	assert.Equal(t, version, stored.SecurityVersion, "locked rejections do not write")

	f.clock.Advance(90*time.Minute + time.Second)
	_, err = f.auther.Login(f.ctx, auth.KindPlatformAdmin, "a@x.com", "wrong", loginMeta)
	requireCode(t, err, auth.TextCodeInvalidCredentials)

	stored = f.reload(t, actor)
	assert.Equal(t, 1, stored.FailedAttempts)
	assert.Nil(t, stored.LockedUntil)
}

// racingSecurityStore lets a competing writer record one failed attempt just
// before each of the first races security swaps, so those swaps lose.
type racingSecurityStore struct {
	auth.ActorStore
	races int
	calls int
}

func (s *racingSecurityStore) CompareAndSwapSecurity(ctx context.Context, id uuid.UUID, version int, update auth.SecurityUpdate) (bool, error) {
	s.calls++
	if s.races > 0 {
		s.races--
		current, err := s.ActorStore.GetByID(ctx, id)
		if err != nil {
			return false, err
		}
		if _, err := s.ActorStore.CompareAndSwapSecurity(ctx, id, current.SecurityVersion, auth.SecurityUpdate{
			FailedAttempts: current.FailedAttempts + 1,
			LockedUntil:    current.LockedUntil,
			SessionToken:   current.SessionToken,
			LastLogin:      current.LastLogin,
		}); err != nil {
			return false, err
		}
	}
	return s.ActorStore.CompareAndSwapSecurity(ctx, id, version, update)
}

func TestLoginFailureKeepsCompetingIncrements(t *testing.T) {
	f := newFixture(t)
	root := f.seedRoot(t, auth.KindPlatformAdmin)
	actor := f.createActor(t, root, "a@x.com", auth.RoleStandard, nil)

	store := &racingSecurityStore{ActorStore: f.store, races: 1}
	auther := auth.NewAuthenticator(store, f.tokens, f.audit).
		WithPasswordHasher(f.hasher).
		WithClock(f.clock.Now)

	_, err := auther.Login(f.ctx, auth.KindPlatformAdmin, "a@x.com", "wrong", loginMeta)
	requireCode(t, err, auth.TextCodeInvalidCredentials)
	assert.Equal(t, 2, store.calls, "the lost swap is retried on a fresh read")
	assert.Equal(t, 2, f.reload(t, actor).FailedAttempts)

	// two more failures plus one competing failure reach the threshold
	_, err = f.auther.Login(f.ctx, auth.KindPlatformAdmin, "a@x.com", "wrong", loginMeta)
	requireCode(t, err, auth.TextCodeInvalidCredentials)

	store.races = 1
	_, err = auther.Login(f.ctx, auth.KindPlatformAdmin, "a@x.com", "wrong", loginMeta)
	requireCode(t, err, auth.TextCodeAccountLocked)

	stored := f.reload(t, actor)
	assert.Zero(t, stored.FailedAttempts)
	require.NotNil(t, stored.LockedUntil)
}

func TestLoginFailureGivesUpAfterRepeatedLostSwaps(t *testing.T) {
	f := newFixture(t)
	root := f.seedRoot(t, auth.KindPlatformAdmin)
	actor := f.createActor(t, root, "a@x.com", auth.RoleStandard, nil)

	store := &racingSecurityStore{ActorStore: f.store, races: 5}
	auther := auth.NewAuthenticator(store, f.tokens, f.audit).
		WithPasswordHasher(f.hasher).
		WithClock(f.clock.Now)

	_, err := auther.Login(f.ctx, auth.KindPlatformAdmin, "a@x.com", "wrong", loginMeta)
	requireCode(t, err, auth.TextCodeConcurrentUpdate)
	assert.Equal(t, 5, store.calls)
	assert.Equal(t, 5, f.reload(t, actor).FailedAttempts, "only the competing writes landed")
}

func TestConcurrentFailedLoginsAreAllCounted(t *testing.T) {
	f := newFixture(t)
	root := f.seedRoot(t, auth.KindPlatformAdmin)
	actor := f.createActor(t, root, "a@x.com", auth.RoleStandard, nil)

	const attempts = 4
	errs := make([]error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.auther.Login(f.ctx, auth.KindPlatformAdmin, "a@x.com", "wrong", loginMeta)
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		requireCode(t, err, auth.TextCodeInvalidCredentials)
	}
	assert.Equal(t, attempts, f.reload(t, actor).FailedAttempts)
}

func TestLoginSuccessResetsFailures(t *testing.T) {
	f := newFixture(t)
	root := f.seedRoot(t, auth.KindPlatformAdmin)
	actor := f.createActor(t, root, "a@x.com", auth.RoleStandard, nil)

	for i := 0; i < 3; i++ {
		_, _ = f.auther.Login(f.ctx, auth.KindPlatformAdmin, "a@x.com", "wrong", loginMeta)
	}
	require.Equal(t, 3, f.reload(t, actor).FailedAttempts)

	_, err := f.auther.Login(f.ctx, auth.KindPlatformAdmin, "a@x.com", testPassword, loginMeta)
	require.NoError(t, err)
	assert.Zero(t, f.reload(t, actor).FailedAttempts)
}

func TestLoginRejectsInactiveAccounts(t *testing.T) {
	f := newFixture(t)
	root := f.seedRoot(t, auth.KindPlatformAdmin)
	standard := f.createActor(t, root, "std@x.com", auth.RoleStandard, nil)

	pending := f.createActor(t, standard, "pending@x.com", auth.RoleAnalyst, nil)
	require.False(t, pending.IsVerified)

	_, err := f.auther.Login(f.ctx, auth.KindPlatformAdmin, "pending@x.com", testPassword, loginMeta)
	requireCode(t, err, auth.TextCodeAccountUnverified)

	disabled := f.createActor(t, root, "off@x.com", auth.RoleAnalyst, nil)
	_, err = f.lifecycle.Transition(f.ctx, root, disabled, auth.ActorStatusDeactivated, loginMeta)
	require.NoError(t, err)

	_, err = f.auther.Login(f.ctx, auth.KindPlatformAdmin, "off@x.com", testPassword, loginMeta)
	requireCode(t, err, auth.TextCodeAccountDisabled)

	// a wrong password on a disabled account still only reveals bad credentials
	_, err = f.auther.Login(f.ctx, auth.KindPlatformAdmin, "off@x.com", "wrong", loginMeta)
	requireCode(t, err, auth.TextCodeInvalidCredentials)
}

func TestAuthenticate(t *testing.T) {
	f := newFixture(t)
	root := f.seedRoot(t, auth.KindPlatformAdmin)
	actor := f.createActor(t, root, "a@x.com", auth.RoleStandard, nil)

	res, err := f.auther.Login(f.ctx, auth.KindPlatformAdmin, "a@x.com", testPassword, loginMeta)
	require.NoError(t, err)

	got, claims, err := f.auther.Authenticate(f.ctx, auth.KindPlatformAdmin, res.Token)
	require.NoError(t, err)
	assert.Equal(t, actor.ID, got.ID)
	assert.Equal(t, "a@x.com", claims.Email)

	_, _, err = f.auther.Authenticate(f.ctx, "", res.Token)
	assert.NoError(t, err, "empty kind accepts either kind")

	_, _, err = f.auther.Authenticate(f.ctx, auth.KindLandlordStaff, res.Token)
	requireCode(t, err, auth.TextCodeKindMismatch)

	f.clock.Advance(8*time.Hour + time.Minute)
	_, _, err = f.auther.Authenticate(f.ctx, auth.KindPlatformAdmin, res.Token)
	requireCode(t, err, auth.TextCodeTokenExpired)
}

func TestAuthenticateRereadsActor(t *testing.T) {
	f := newFixture(t)
	root := f.seedRoot(t, auth.KindPlatformAdmin)
	actor := f.createActor(t, root, "a@x.com", auth.RoleStandard, nil)

	res, err := f.auther.Login(f.ctx, auth.KindPlatformAdmin, "a@x.com", testPassword, loginMeta)
	require.NoError(t, err)

	_, err = f.lifecycle.Transition(f.ctx, root, actor, auth.ActorStatusDeactivated, loginMeta)
	require.NoError(t, err)

	_, _, err = f.auther.Authenticate(f.ctx, auth.KindPlatformAdmin, res.Token)
	requireCode(t, err, auth.TextCodeAccountDisabled)
}

func TestSingleSession(t *testing.T) {
	f := newFixture(t)
	root := f.seedRoot(t, auth.KindPlatformAdmin)
	actor := f.createActor(t, root, "a@x.com", auth.RoleStandard, nil)

	auther := auth.NewAuthenticator(f.store, f.tokens, f.audit).
		WithPasswordHasher(f.hasher).
		WithClock(f.clock.Now).
		WithSingleSession(true)

	first, err := auther.Login(f.ctx, auth.KindPlatformAdmin, "a@x.com", testPassword, loginMeta)
	require.NoError(t, err)
	second, err := auther.Login(f.ctx, auth.KindPlatformAdmin, "a@x.com", testPassword, loginMeta)
	require.NoError(t, err)

	_, _, err = auther.Authenticate(f.ctx, auth.KindPlatformAdmin, first.Token)
	requireCode(t, err, auth.TextCodeTokenInvalid)

	current, _, err := auther.Authenticate(f.ctx, auth.KindPlatformAdmin, second.Token)
	require.NoError(t, err)

	// the default authenticator does not enforce the session
	_, _, err = f.auther.Authenticate(f.ctx, auth.KindPlatformAdmin, first.Token)
	assert.NoError(t, err)

	require.NoError(t, auther.Logout(f.ctx, current, loginMeta))
	assert.Empty(t, f.reload(t, actor).SessionToken)

	_, _, err = auther.Authenticate(f.ctx, auth.KindPlatformAdmin, second.Token)
	requireCode(t, err, auth.TextCodeTokenInvalid)
}

func TestLogoutAudits(t *testing.T) {
	f := newFixture(t)
	root := f.seedRoot(t, auth.KindPlatformAdmin)
	actor := f.createActor(t, root, "a@x.com", auth.RoleStandard, nil)

	res, err := f.auther.Login(f.ctx, auth.KindPlatformAdmin, "a@x.com", testPassword, loginMeta)
	require.NoError(t, err)

	require.NoError(t, f.auther.Logout(f.ctx, res.Actor, loginMeta))

	stored := f.reload(t, actor)
	assert.Empty(t, stored.SessionToken)
	require.NotNil(t, stored.LastLogin, "logout keeps the last login stamp")
	assert.Equal(t, auth.AuditActionLogout, stored.ActivityLog.Latest(1)[0].Action)
	assert.Contains(t, f.sink.types(), auth.ActivityEventLogout)
}

func TestAuthorize(t *testing.T) {
	f := newFixture(t)
	root := f.seedRoot(t, auth.KindPlatformAdmin)
	actor := f.createActor(t, root, "a@x.com", auth.RoleStandard, []auth.Grant{
		{Resource: auth.ResourceProperties, Actions: []auth.Action{auth.ActionRead, auth.ActionUpdate}},
	})

	assert.NoError(t, f.auther.Authorize(f.ctx, actor, auth.ResourceProperties, auth.ActionRead))
	assert.NoError(t, f.auther.Authorize(f.ctx, actor, auth.ResourceProperties, auth.ActionUpdate))

	err := f.auther.Authorize(f.ctx, actor, auth.ResourceProperties, auth.ActionApprove)
	requireCode(t, err, auth.TextCodePermissionDenied)
	assert.Contains(t, f.sink.types(), auth.ActivityEventAccessDenied)

	assert.NoError(t, f.auther.Authorize(f.ctx, root, auth.ResourceActorManagement, auth.ActionDelete))

	err = f.auther.Authorize(f.ctx, nil, auth.ResourceProperties, auth.ActionRead)
	requireCode(t, err, auth.TextCodePermissionDenied)
}
