package auth_test

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	auth "github.com/goliatone/go-actor-auth"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"golang.org/x/crypto/bcrypt"
)

const (
	testPassword   = "correct-horse-1"
	testSigningKey = "test-signing-key-0123456789abcdef"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testConfig struct {
	singleSession bool
}

func (testConfig) GetSigningKey() string { return testSigningKey }
func (testConfig) GetSigningMethod() string { return "HS256" }
func (testConfig) GetContextKey() string { return "jwt" }
func (testConfig) GetTokenExpiration() int { return 8 }
func (testConfig) GetTokenLookup() string { return "header:Authorization" }
func (testConfig) GetAuthScheme() string { return "Bearer" }
func (testConfig) GetIssuer() string { return "actor-auth-test" }
func (testConfig) GetAudience() []string { return []string{"actor-auth"} }
func (c testConfig) GetSingleSession() bool { return c.singleSession }

type capturingSink struct {
	mu     sync.Mutex
	events []auth.ActivityEvent
}

func (c *capturingSink) Record(_ context.Context, evt auth.ActivityEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, evt)
	return nil
}

func (c *capturingSink) types() []auth.ActivityEventType {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]auth.ActivityEventType, 0, len(c.events))
	for _, e := range c.events {
		out = append(out, e.EventType)
	}
	return out
}

// newTestDB opens a private in-memory sqlite database with the schema applied.
func newTestDB(t *testing.T) *bun.DB {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, ":memory:")
	require.NoError(t, err)
	// every connection to :memory: is a new database, keep exactly one
	sqldb.SetMaxOpenConns(1)
	sqldb.SetMaxIdleConns(1)
	sqldb.SetConnMaxLifetime(0)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { _ = db.Close() })

	_, err = auth.Migrate(context.Background(), db)
	require.NoError(t, err)
	return db
}

type fixture struct {
	ctx         context.Context
	db          *bun.DB
	repo        auth.RepositoryManager
	store       *auth.Actors
	clock       *testClock
	hasher      auth.BcryptHasher
	sink        *capturingSink
	audit       *auth.AuditLogger
	tokens      *auth.TokenServiceImpl
	auther      *auth.Auther
	provisioner *auth.Provisioner
	profiles    *auth.ProfileService
	lifecycle   *auth.ActorStateMachine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := newTestDB(t)
	repo := auth.NewRepositoryManager(db)
	store := repo.Actors()
	clock := newTestClock()
	hasher := auth.NewBcryptHasher(bcrypt.MinCost)
	sink := &capturingSink{}

	tokens, err := auth.NewTokenServiceFromConfig(testConfig{}, auth.WithTokenClock(clock.Now))
	require.NoError(t, err)

	audit := auth.NewAuditLogger(store, auth.WithAuditClock(clock.Now))

	return &fixture{
		ctx:    context.Background(),
		db:     db,
		repo:   repo,
		store:  store,
		clock:  clock,
		hasher: hasher,
		sink:   sink,
		audit:  audit,
		tokens: tokens,
		auther: auth.NewAuthenticator(store, tokens, audit).
			WithPasswordHasher(hasher).
			WithClock(clock.Now).
			WithActivitySink(sink),
		provisioner: auth.NewProvisioner(repo, audit).
			WithPasswordHasher(hasher).
			WithClock(clock.Now).
			WithActivitySink(sink),
		profiles: auth.NewProfileService(store, audit).
			WithPasswordHasher(hasher).
			WithClock(clock.Now).
			WithActivitySink(sink),
		lifecycle: auth.NewActorStateMachine(store, audit,
			auth.WithStateMachineClock(clock.Now),
			auth.WithStateMachineActivitySink(sink),
		),
	}
}

func (f *fixture) seedRoot(t *testing.T, kind auth.ActorKind) *auth.Actor {
	t.Helper()
	root, err := f.provisioner.BootstrapRoot(f.ctx, kind, auth.BootstrapRootMessage{
		FirstName: "Root",
		LastName:  "Operator",
		Email:     "root-" + string(kind) + "@example.com",
		Password:  testPassword,
	})
	require.NoError(t, err)
	return root
}

// createActor provisions email with role. A nil grants slice applies the
// default template.
func (f *fixture) createActor(t *testing.T, creator *auth.Actor, email string, role auth.Role, grants []auth.Grant) *auth.Actor {
	t.Helper()
	actor, err := f.provisioner.CreateActor(f.ctx, creator, auth.CreateActorMessage{
		FirstName:   "Test",
		LastName:    "Actor",
		Email:       email,
		Password:    testPassword,
		Role:        string(role),
		Permissions: grants,
	}, auth.RequestMeta{IP: "10.0.0.1", UserAgent: "test"})
	require.NoError(t, err)
	return actor
}

func (f *fixture) reload(t *testing.T, actor *auth.Actor) *auth.Actor {
	t.Helper()
	fresh, err := f.store.GetByID(f.ctx, actor.ID)
	require.NoError(t, err)
	return fresh
}

func requireCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	require.Equalf(t, code, auth.ErrorTextCode(err), "unexpected error: %v", err)
}
