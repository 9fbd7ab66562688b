package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// ProfileService implements self-service changes for the authenticated actor.
type ProfileService struct {
	store        ActorStore
	hasher       PasswordHasher
	audit        *AuditLogger
	now          func() time.Time
	logger       Logger
	activitySink ActivitySink
}

func NewProfileService(store ActorStore, audit *AuditLogger) *ProfileService {
	return &ProfileService{
		store:        store,
		hasher:       NewBcryptHasher(),
		audit:        audit,
		now:          time.Now,
		logger:       defLogger{},
		activitySink: noopActivitySink{},
	}
}

func (p *ProfileService) WithPasswordHasher(hasher PasswordHasher) *ProfileService {
	if hasher != nil {
		p.hasher = hasher
	}
	return p
}

func (p *ProfileService) WithClock(clock func() time.Time) *ProfileService {
	if clock != nil {
		p.now = clock
	}
	return p
}

func (p *ProfileService) WithLogger(logger Logger) *ProfileService {
	if logger != nil {
		p.logger = logger
	}
	return p
}

func (p *ProfileService) WithActivitySink(sink ActivitySink) *ProfileService {
	p.activitySink = normalizeActivitySink(sink)
	return p
}

// UpdateProfile replaces the editable profile fields of actor.
func (p *ProfileService) UpdateProfile(ctx context.Context, actor *Actor, payload ProfilePayload, meta RequestMeta) (*Actor, error) {
	if err := payload.Validate(); err != nil {
		return nil, err
	}

	phone, err := NormalizePhone(payload.Phone, DefaultPhoneRegion)
	if err != nil {
		return nil, fieldFailure("phone_number", "must be a valid phone number")
	}

	update := ProfileUpdate{
		FirstName:  strings.TrimSpace(payload.FirstName),
		LastName:   strings.TrimSpace(payload.LastName),
		Phone:      phone,
		Profile:    payload.Profile,
		ModifiedBy: actor.ID,
		At:         p.now().UTC(),
	}
	if err := p.store.UpdateProfile(ctx, actor.ID, update); err != nil {
		return nil, err
	}

	actor.FirstName = update.FirstName
	actor.LastName = update.LastName
	actor.Phone = update.Phone
	actor.Profile = update.Profile
	actor.LastModifiedBy = &update.ModifiedBy
	actor.LastModifiedAt = &update.At

	if err := p.audit.Log(ctx, actor.ID, ActivityEntry{
		Action:     AuditActionUpdateProfile,
		Resource:   AuditResourceProfile,
		ResourceID: actor.ID.String(),
	}, meta); err != nil {
		return nil, err
	}

	return actor, nil
}

// ChangePassword requires the current password. A wrong current password
// returns ErrInvalidCredentials and does not count toward lockout.
func (p *ProfileService) ChangePassword(ctx context.Context, actor *Actor, payload ChangePasswordPayload, meta RequestMeta) error {
	if err := payload.Validate(); err != nil {
		return err
	}

	if err := p.hasher.ComparePasswordAndHash(payload.CurrentPassword, actor.PasswordHash); err != nil {
		if errors.Is(err, ErrMismatchedHashAndPassword) {
			return ErrInvalidCredentials
		}
		p.logger.Error("change password compare error for actor %s: %v", actor.ID, err)
		return err
	}

	hash, err := p.hasher.HashPassword(payload.NewPassword)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
	}

	at := p.now().UTC()
	if err := p.store.UpdatePasswordHash(ctx, actor.ID, hash, actor.ID, at); err != nil {
		return err
	}
	actor.PasswordHash = hash

	if err := p.audit.Log(ctx, actor.ID, ActivityEntry{
		Action:     AuditActionChangePassword,
		Resource:   AuditResourceProfile,
		ResourceID: actor.ID.String(),
	}, meta); err != nil {
		return err
	}

	emitActivity(ctx, p.activitySink, p.logger, p.now, ActivityEvent{
		EventType: ActivityEventPasswordChanged,
		Actor:     actor.Ref(),
		ActorID:   actor.ID.String(),
		Kind:      actor.Kind,
	})

	return nil
}
