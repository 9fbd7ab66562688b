package auth_test

import (
	"errors"
	"testing"

	auth "github.com/goliatone/go-actor-auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createMessage(email, role string) auth.CreateActorMessage {
	return auth.CreateActorMessage{
		FirstName: "New",
		LastName:  "Actor",
		Email:     email,
		Password:  testPassword,
		Role:      role,
	}
}

func TestCreateActorRoleMatrix(t *testing.T) {
	f := newFixture(t)
	root := f.seedRoot(t, auth.KindPlatformAdmin)
	super := f.createActor(t, root, "super@x.com", auth.RoleSuper, nil)
	standard := f.createActor(t, root, "std@x.com", auth.RoleStandard, nil)
	analyst := f.createActor(t, root, "analyst@x.com", auth.RoleAnalyst, nil)

	tests := []struct {
		name    string
		creator *auth.Actor
		role    string
		code    string
	}{
		{name: "root creates super", creator: root, role: "super"},
		{name: "root creates via alias", creator: root, role: "admin"},
		{name: "super creates standard", creator: super, role: "standard"},
		{name: "standard creates moderator", creator: standard, role: "moderator"},
		{name: "root cannot create root", creator: root, role: "root", code: auth.TextCodeInvalidRoleRequested},
		{name: "alias for root is rejected", creator: root, role: "alpha_admin", code: auth.TextCodeInvalidRoleRequested},
		{name: "unknown role", creator: root, role: "wizard", code: auth.TextCodeInvalidRoleRequested},
		{name: "super cannot create super", creator: super, role: "super", code: auth.TextCodeInsufficientRoleToCreate},
		{name: "standard cannot create peer", creator: standard, role: "standard", code: auth.TextCodeInsufficientRoleToCreate},
		{name: "analyst cannot create", creator: analyst, role: "analyst", code: auth.TextCodeInsufficientRoleToCreate},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			email := "matrix" + string(rune('a'+i)) + "@x.com"
			actor, err := f.provisioner.CreateActor(f.ctx, tt.creator, createMessage(email, tt.role), auth.RequestMeta{})
			if tt.code != "" {
				requireCode(t, err, tt.code)
				_, lookupErr := f.store.GetByEmail(f.ctx, auth.KindPlatformAdmin, email)
				requireCode(t, lookupErr, auth.TextCodeActorNotFound)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.creator.Kind, actor.Kind)
		})
	}
}

func TestCreateActorPermissions(t *testing.T) {
	f := newFixture(t)
	root := f.seedRoot(t, auth.KindLandlordStaff)

	templated := f.createActor(t, root, "tpl@x.com", auth.RoleStandard, nil)
	expected, ok := auth.DefaultCatalog().Template(auth.KindLandlordStaff, auth.RoleStandard)
	require.True(t, ok)
	assert.Equal(t, expected.Grants(), templated.Permissions.Grants())

	explicit := f.createActor(t, root, "explicit@x.com", auth.RoleStandard, []auth.Grant{
		{Resource: auth.ResourceReports, Actions: []auth.Action{auth.ActionExport}},
	})
	assert.True(t, explicit.Permissions.Allows(auth.ResourceReports, auth.ActionExport))
	assert.False(t, explicit.Permissions.Allows(auth.ResourceProperties, auth.ActionRead))

	empty := f.createActor(t, root, "empty@x.com", auth.RoleAnalyst, []auth.Grant{})
	assert.True(t, f.reload(t, empty).Permissions.IsEmpty())

	_, err := f.provisioner.CreateActor(f.ctx, root, auth.CreateActorMessage{
		FirstName:   "Bad",
		LastName:    "Grant",
		Email:       "bad@x.com",
		Password:    testPassword,
		Role:        "standard",
		Permissions: []auth.Grant{{Resource: "spaceships", Actions: []auth.Action{auth.ActionRead}}},
	}, auth.RequestMeta{})
	requireCode(t, err, auth.TextCodeValidation)

	var vf *auth.ValidationFailure
	require.True(t, errors.As(err, &vf))
	assert.Contains(t, vf.Fields, "permissions")
}

func TestCreateActorVerificationAndProvenance(t *testing.T) {
	f := newFixture(t)
	root := f.seedRoot(t, auth.KindPlatformAdmin)

	super := f.createActor(t, root, "super@x.com", auth.RoleSuper, nil)
	assert.True(t, super.IsVerified)
	require.NotNil(t, super.CreatedBy)
	assert.Equal(t, root.ID, *super.CreatedBy)

	fromSuper := f.createActor(t, super, "fs@x.com", auth.RoleStandard, nil)
	assert.True(t, fromSuper.IsVerified)

	fromStandard := f.createActor(t, fromSuper, "fstd@x.com", auth.RoleModerator, nil)
	assert.False(t, fromStandard.IsVerified)
	assert.True(t, fromStandard.IsActive)
	assert.Equal(t, auth.ActorStatusPending, fromStandard.Status())

	trail := f.reload(t, root).ActivityLog.Latest(1)
	require.Len(t, trail, 1)
	assert.Equal(t, auth.AuditActionCreateActor, trail[0].Action)
	assert.Equal(t, super.ID.String(), trail[0].ResourceID)
	assert.Equal(t, "super@x.com", trail[0].Details["email"])

	assert.Contains(t, f.sink.types(), auth.ActivityEventActorCreated)
}

func TestCreateActorValidation(t *testing.T) {
	f := newFixture(t)
	root := f.seedRoot(t, auth.KindPlatformAdmin)

	tests := []struct {
		name  string
		msg   auth.CreateActorMessage
		field string
	}{
		{name: "bad email", msg: createMessage("not-an-email", "standard"), field: "email"},
		{name: "short password", msg: func() auth.CreateActorMessage {
			m := createMessage("short@x.com", "standard")
			m.Password = "short"
			return m
		}(), field: "password"},
		{name: "missing first name", msg: func() auth.CreateActorMessage {
			m := createMessage("nofirst@x.com", "standard")
			m.FirstName = ""
			return m
		}(), field: "first_name"},
		{name: "bad phone", msg: func() auth.CreateActorMessage {
			m := createMessage("phone@x.com", "standard")
			m.Phone = "12"
			return m
		}(), field: "phone_number"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.provisioner.CreateActor(f.ctx, root, tt.msg, auth.RequestMeta{})
			requireCode(t, err, auth.TextCodeValidation)
			var vf *auth.ValidationFailure
			require.True(t, errors.As(err, &vf))
			assert.Contains(t, vf.Fields, tt.field)
		})
	}

	_, err := f.provisioner.CreateActor(f.ctx, nil, createMessage("orphan@x.com", "analyst"), auth.RequestMeta{})
	requireCode(t, err, auth.TextCodePermissionDenied)
}

func TestCreateActorDuplicateEmail(t *testing.T) {
	f := newFixture(t)
	root := f.seedRoot(t, auth.KindPlatformAdmin)
	f.createActor(t, root, "dup@x.com", auth.RoleStandard, nil)

	_, err := f.provisioner.CreateActor(f.ctx, root, createMessage(" DUP@x.com ", "analyst"), auth.RequestMeta{})
	requireCode(t, err, auth.TextCodeDuplicateEmail)

	_, err = f.provisioner.CreateActor(f.ctx, root, createMessage("root-platform_admin@example.com", "analyst"), auth.RequestMeta{})
	requireCode(t, err, auth.TextCodeDuplicateEmail)
}

func TestBootstrapRoot(t *testing.T) {
	f := newFixture(t)

	root := f.seedRoot(t, auth.KindPlatformAdmin)
	assert.Equal(t, auth.RoleRoot, root.Role)
	assert.True(t, root.IsVerified)
	assert.Nil(t, root.CreatedBy)

	_, err := f.provisioner.BootstrapRoot(f.ctx, auth.KindPlatformAdmin, auth.BootstrapRootMessage{
		FirstName: "Second",
		LastName:  "Root",
		Email:     "second-root@example.com",
		Password:  testPassword,
	})
	requireCode(t, err, auth.TextCodeRootExists)

	_, err = f.store.GetByEmail(f.ctx, auth.KindPlatformAdmin, "second-root@example.com")
	requireCode(t, err, auth.TextCodeActorNotFound)

	other := f.seedRoot(t, auth.KindLandlordStaff)
	assert.NotEqual(t, root.ID, other.ID)

	_, err = f.provisioner.BootstrapRoot(f.ctx, "tenant", auth.BootstrapRootMessage{
		FirstName: "Bad",
		LastName:  "Kind",
		Email:     "kind@example.com",
		Password:  testPassword,
	})
	requireCode(t, err, auth.TextCodeValidation)
}

func TestEnsureRootIsIdempotent(t *testing.T) {
	f := newFixture(t)
	msg := auth.BootstrapRootMessage{
		FirstName: "Root",
		LastName:  "Operator",
		Email:     "root@example.com",
		Password:  testPassword,
	}

	created, err := f.provisioner.EnsureRoot(f.ctx, auth.KindLandlordStaff, msg)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = f.provisioner.EnsureRoot(f.ctx, auth.KindLandlordStaff, msg)
	require.NoError(t, err)
	assert.False(t, created)

	_, total, err := f.store.List(f.ctx, auth.ActorFilter{Kind: auth.KindLandlordStaff, Role: auth.RoleRoot})
	require.NoError(t, err)
	assert.Equal(t, 1, total)

	_, err = f.auther.Login(f.ctx, auth.KindLandlordStaff, "root@example.com", testPassword, loginMeta)
	assert.NoError(t, err)
}

func TestCreateActorHandler(t *testing.T) {
	f := newFixture(t)
	root := f.seedRoot(t, auth.KindPlatformAdmin)

	handler := auth.NewCreateActorHandler(f.provisioner)
	actor, err := handler.Execute(f.ctx, root, createMessage("cmd@x.com", "analyst"), auth.RequestMeta{})
	require.NoError(t, err)
	assert.Equal(t, auth.RoleAnalyst, actor.Role)
	assert.Equal(t, "actor.create", auth.CreateActorMessage{}.Type())
}
