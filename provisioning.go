package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// BootstrapRootMessage seeds the single root actor of a kind.
type BootstrapRootMessage struct {
	FirstName string
	LastName  string
	Email     string
	Password  string
}

// Provisioner creates actors while enforcing the role hierarchy
type Provisioner struct {
	repo         RepositoryManager
	hasher       PasswordHasher
	catalog      *Catalog
	audit        *AuditLogger
	now          func() time.Time
	logger       Logger
	activitySink ActivitySink
}

func NewProvisioner(repo RepositoryManager, audit *AuditLogger) *Provisioner {
	return &Provisioner{
		repo:         repo,
		hasher:       NewBcryptHasher(),
		catalog:      DefaultCatalog(),
		audit:        audit,
		now:          time.Now,
		logger:       defLogger{},
		activitySink: noopActivitySink{},
	}
}

func (p *Provisioner) WithPasswordHasher(hasher PasswordHasher) *Provisioner {
	if hasher != nil {
		p.hasher = hasher
	}
	return p
}

func (p *Provisioner) WithCatalog(catalog *Catalog) *Provisioner {
	if catalog != nil {
		p.catalog = catalog
	}
	return p
}

func (p *Provisioner) WithClock(clock func() time.Time) *Provisioner {
	if clock != nil {
		p.now = clock
	}
	return p
}

func (p *Provisioner) WithLogger(logger Logger) *Provisioner {
	if logger != nil {
		p.logger = logger
	}
	return p
}

func (p *Provisioner) WithActivitySink(sink ActivitySink) *Provisioner {
	p.activitySink = normalizeActivitySink(sink)
	return p
}

// CreateActor provisions a new actor of the creator's kind.
func (p *Provisioner) CreateActor(ctx context.Context, creator *Actor, msg CreateActorMessage, meta RequestMeta) (*Actor, error) {
	if creator == nil {
		return nil, ErrPermissionDenied
	}

	if err := msg.Validate(); err != nil {
		return nil, err
	}

	role, ok := ParseRole(msg.Role)
	if !ok || role == RoleRoot {
		return nil, ErrInvalidRoleRequested
	}

	if !creator.Role.CanProvision(role) {
		return nil, ErrInsufficientRoleToCreate
	}

	perms, err := p.resolvePermissions(creator.Kind, role, msg.Permissions)
	if err != nil {
		return nil, err
	}

	phone, err := NormalizePhone(msg.Phone, DefaultPhoneRegion)
	if err != nil {
		return nil, fieldFailure("phone_number", "must be a valid phone number")
	}

	hash, err := p.hasher.HashPassword(msg.Password)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
	}

	creatorID := creator.ID
	actor := &Actor{
		ID:           uuid.New(),
		Kind:         creator.Kind,
		Email:        NormalizeEmail(msg.Email),
		FirstName:    strings.TrimSpace(msg.FirstName),
		LastName:     strings.TrimSpace(msg.LastName),
		Phone:        phone,
		Profile:      msg.Profile,
		PasswordHash: hash,
		Role:         role,
		Permissions:  perms,
		IsActive:     true,
		IsVerified:   creator.Role.IsPrivilegedTier(),
		CreatedBy:    &creatorID,
		CreatedAt:    p.now().UTC(),
	}

	created, err := p.insert(ctx, actor, false)
	if err != nil {
		return nil, err
	}

	if err := p.audit.Log(ctx, creator.ID, ActivityEntry{
		Action:     AuditActionCreateActor,
		Resource:   string(ResourceActorManagement),
		ResourceID: created.ID.String(),
		Details: map[string]any{
			"email": created.Email,
			"role":  string(created.Role),
		},
	}, meta); err != nil {
		p.logger.Error("create actor audit error for creator %s: %v", creator.ID, err)
		return nil, err
	}

	emitActivity(ctx, p.activitySink, p.logger, p.now, ActivityEvent{
		EventType: ActivityEventActorCreated,
		Actor:     creator.Ref(),
		ActorID:   created.ID.String(),
		Kind:      created.Kind,
		ToStatus:  created.Status(),
		Metadata:  map[string]any{"role": string(created.Role)},
	})

	return created, nil
}

// BootstrapRoot creates the root actor for kind. It fails with ErrRootExists
// when one is already present and writes nothing in that case.
func (p *Provisioner) BootstrapRoot(ctx context.Context, kind ActorKind, msg BootstrapRootMessage) (*Actor, error) {
	if !kind.IsValid() {
		return nil, fieldFailure("kind", "must be a valid actor kind")
	}

	check := CreateActorMessage{
		FirstName: msg.FirstName,
		LastName:  msg.LastName,
		Email:     msg.Email,
		Password:  msg.Password,
		Role:      string(RoleRoot),
	}
	if err := check.Validate(); err != nil {
		return nil, err
	}

	hash, err := p.hasher.HashPassword(msg.Password)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
	}

	perms, _ := p.catalog.Template(kind, RoleRoot)
	actor := &Actor{
		ID:           uuid.New(),
		Kind:         kind,
		Email:        NormalizeEmail(msg.Email),
		FirstName:    strings.TrimSpace(msg.FirstName),
		LastName:     strings.TrimSpace(msg.LastName),
		PasswordHash: hash,
		Role:         RoleRoot,
		Permissions:  perms,
		IsActive:     true,
		IsVerified:   true,
		CreatedAt:    p.now().UTC(),
	}

	created, err := p.insert(ctx, actor, true)
	if err != nil {
		return nil, err
	}

	if err := p.audit.Log(ctx, created.ID, ActivityEntry{
		Action:     AuditActionBootstrapRoot,
		Resource:   string(ResourceActorManagement),
		ResourceID: created.ID.String(),
	}, RequestMeta{}); err != nil {
		return nil, err
	}

	p.logger.Info("bootstrapped root actor %s for %s", created.ID, kind)
	return created, nil
}

// EnsureRoot bootstraps the root of kind unless it already exists.
func (p *Provisioner) EnsureRoot(ctx context.Context, kind ActorKind, msg BootstrapRootMessage) (bool, error) {
	exists, err := p.repo.Actors().RootExists(ctx, kind)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}
	if _, err := p.BootstrapRoot(ctx, kind, msg); err != nil {
		if errors.Is(err, ErrRootExists) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (p *Provisioner) insert(ctx context.Context, actor *Actor, root bool) (*Actor, error) {
	var created *Actor
	err := p.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		actors := p.repo.Actors()

		if root {
			exists, err := actors.RootExistsTx(ctx, tx, actor.Kind)
			if err != nil {
				return err
			}
			if exists {
				return ErrRootExists
			}
		}

		_, err := actors.GetByEmailTx(ctx, tx, actor.Kind, actor.Email)
		switch {
		case err == nil:
			return ErrDuplicateEmail
		case !errors.Is(err, ErrActorNotFound):
			return err
		}

		created, err = actors.CreateTx(ctx, tx, actor)
		return err
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (p *Provisioner) resolvePermissions(kind ActorKind, role Role, grants []Grant) (PermissionSet, error) {
	if grants == nil {
		set, ok := p.catalog.Template(kind, role)
		if !ok {
			return PermissionSet{}, fmt.Errorf("no permission template for %s/%s: %w", kind, role, ErrInvalidRoleRequested)
		}
		return set, nil
	}

	set, err := NewPermissionSet(grants...)
	if err != nil {
		return PermissionSet{}, fieldFailure("permissions", err.Error())
	}
	return set, nil
}
