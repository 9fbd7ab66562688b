package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/uptrace/bun"
)

var casSecuritySQL = `UPDATE "privileged_actors"
SET
	"failed_attempts" = ?,
	"locked_until" = ?,
	"session_token" = ?,
	"last_login" = ?,
	"security_version" = "security_version" + 1
WHERE
	"id" = ?
AND "security_version" = ?;`

var casActivitySQL = `UPDATE "privileged_actors"
SET
	"activity_log" = ?,
	"activity_version" = "activity_version" + 1
WHERE
	"id" = ?
AND "activity_version" = ?;`

// SecurityUpdate is the full lockout and session slice written by a CAS update.
type SecurityUpdate struct {
	FailedAttempts int
	LockedUntil    *time.Time
	SessionToken   string
	LastLogin      *time.Time
}

// ProfileUpdate carries self-service profile changes.
type ProfileUpdate struct {
	FirstName  string
	LastName   string
	Phone      string
	Profile    map[string]any
	ModifiedBy uuid.UUID
	At         time.Time
}

// StatusUpdate carries lifecycle flag changes.
type StatusUpdate struct {
	IsActive   bool
	IsVerified bool
	ModifiedBy uuid.UUID
	At         time.Time
}

// ActorFilter narrows List results.
type ActorFilter struct {
	Kind   ActorKind
	Role   Role
	Status ActorStatus
	Limit  int
	Offset int
}

// Actors is the bun backed ActorStore
type Actors struct {
	db   *bun.DB
	repo repository.Repository[*Actor]
}

var _ ActorStore = (*Actors)(nil)

func NewActorsRepository(db *bun.DB) *Actors {
	repo := repository.NewRepository[*Actor](db, repository.ModelHandlers[*Actor]{
		NewRecord: func() *Actor { return &Actor{} },
		GetID: func(a *Actor) uuid.UUID {
			if a == nil {
				return uuid.Nil
			}
			return a.ID
		},
		SetID: func(a *Actor, id uuid.UUID) {
			if a != nil {
				a.ID = id
			}
		},
		GetIdentifier: func() string {
			return "email"
		},
	})

	return &Actors{db: db, repo: repo}
}

func (r *Actors) GetByID(ctx context.Context, id uuid.UUID) (*Actor, error) {
	return r.GetByIDTx(ctx, r.db, id)
}

func (r *Actors) GetByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*Actor, error) {
	record := &Actor{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", id.String()).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, notFoundOr(err, "id", id.String())
	}
	return record, nil
}

func (r *Actors) GetByEmail(ctx context.Context, kind ActorKind, email string) (*Actor, error) {
	return r.GetByEmailTx(ctx, r.db, kind, email)
}

func (r *Actors) GetByEmailTx(ctx context.Context, tx bun.IDB, kind ActorKind, email string) (*Actor, error) {
	record := &Actor{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.actor_kind = ?", kind).
		Where("?TableAlias.email = ?", NormalizeEmail(email)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, notFoundOr(err, "email", NormalizeEmail(email))
	}
	return record, nil
}

func (r *Actors) List(ctx context.Context, filter ActorFilter) ([]*Actor, int, error) {
	records := []*Actor{}
	q := r.db.NewSelect().Model(&records)

	if filter.Kind != "" {
		q = q.Where("?TableAlias.actor_kind = ?", filter.Kind)
	}
	if filter.Role != "" {
		q = q.Where("?TableAlias.actor_role = ?", filter.Role)
	}
	switch filter.Status {
	case ActorStatusActive:
		q = q.Where("?TableAlias.is_active = ?", true).Where("?TableAlias.is_verified = ?", true)
	case ActorStatusPending:
		q = q.Where("?TableAlias.is_active = ?", true).Where("?TableAlias.is_verified = ?", false)
	case ActorStatusDeactivated:
		q = q.Where("?TableAlias.is_active = ?", false)
	}

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	count, err := q.Order("created_at ASC").Limit(limit).Offset(filter.Offset).ScanAndCount(ctx)
	if err != nil {
		return nil, 0, err
	}
	return records, count, nil
}

func (r *Actors) Create(ctx context.Context, actor *Actor) (*Actor, error) {
	return r.CreateTx(ctx, r.db, actor)
}

// CreateTx inserts actor. Unique index violations are reported as
// ErrDuplicateEmail or ErrRootExists.
func (r *Actors) CreateTx(ctx context.Context, tx bun.IDB, actor *Actor) (*Actor, error) {
	actor.Email = NormalizeEmail(actor.Email)
	if actor.ID == uuid.Nil {
		actor.ID = uuid.New()
	}

	created, err := r.repo.CreateTx(ctx, tx, actor)
	if err != nil {
		if uerr := uniqueViolation(err); uerr != nil {
			return nil, uerr
		}
		return nil, err
	}
	return created, nil
}

func (r *Actors) RootExists(ctx context.Context, kind ActorKind) (bool, error) {
	return r.RootExistsTx(ctx, r.db, kind)
}

func (r *Actors) RootExistsTx(ctx context.Context, tx bun.IDB, kind ActorKind) (bool, error) {
	return tx.NewSelect().
		Model((*Actor)(nil)).
		Where("?TableAlias.actor_kind = ?", kind).
		Where("?TableAlias.actor_role = ?", RoleRoot).
		Exists(ctx)
}

// CompareAndSwapSecurity writes update only if the stored security version
// still equals expectedVersion.
func (r *Actors) CompareAndSwapSecurity(ctx context.Context, id uuid.UUID, expectedVersion int, update SecurityUpdate) (bool, error) {
	var session any
	if update.SessionToken != "" {
		session = update.SessionToken
	}
	res, err := r.db.NewRaw(casSecuritySQL,
		update.FailedAttempts,
		update.LockedUntil,
		session,
		update.LastLogin,
		id.String(),
		expectedVersion,
	).Exec(ctx)
	if err != nil {
		return false, err
	}
	return affectedOne(res)
}

// CompareAndSwapActivity replaces the activity trail only if the stored
// activity version still equals expectedVersion.
func (r *Actors) CompareAndSwapActivity(ctx context.Context, id uuid.UUID, expectedVersion int, trail ActivityTrail) (bool, error) {
	res, err := r.db.NewRaw(casActivitySQL, trail, id.String(), expectedVersion).Exec(ctx)
	if err != nil {
		return false, err
	}
	return affectedOne(res)
}

func (r *Actors) UpdateProfile(ctx context.Context, id uuid.UUID, update ProfileUpdate) error {
	record := &Actor{
		ID:             id,
		FirstName:      update.FirstName,
		LastName:       update.LastName,
		Phone:          update.Phone,
		Profile:        update.Profile,
		LastModifiedBy: &update.ModifiedBy,
		LastModifiedAt: &update.At,
	}
	return r.updateColumns(ctx, record, "first_name", "last_name", "phone_number", "profile", "last_modified_by", "last_modified_at")
}

func (r *Actors) UpdatePasswordHash(ctx context.Context, id uuid.UUID, hash string, modifiedBy uuid.UUID, at time.Time) error {
	record := &Actor{
		ID:             id,
		PasswordHash:   hash,
		LastModifiedBy: &modifiedBy,
		LastModifiedAt: &at,
	}
	return r.updateColumns(ctx, record, "password_hash", "last_modified_by", "last_modified_at")
}

func (r *Actors) UpdateStatus(ctx context.Context, id uuid.UUID, update StatusUpdate) error {
	record := &Actor{
		ID:             id,
		IsActive:       update.IsActive,
		IsVerified:     update.IsVerified,
		LastModifiedBy: &update.ModifiedBy,
		LastModifiedAt: &update.At,
	}
	return r.updateColumns(ctx, record, "is_active", "is_verified", "last_modified_by", "last_modified_at")
}

func (r *Actors) UpdatePermissions(ctx context.Context, id uuid.UUID, perms PermissionSet, modifiedBy uuid.UUID, at time.Time) error {
	record := &Actor{
		ID:             id,
		Permissions:    perms,
		LastModifiedBy: &modifiedBy,
		LastModifiedAt: &at,
	}
	return r.updateColumns(ctx, record, "permissions", "last_modified_by", "last_modified_at")
}

func (r *Actors) updateColumns(ctx context.Context, record *Actor, columns ...string) error {
	res, err := r.db.NewUpdate().
		Model(record).
		Column(columns...).
		WherePK().
		Exec(ctx)
	if err != nil {
		return err
	}
	ok, err := affectedOne(res)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("update actor %s: %w", record.ID, ErrActorNotFound)
	}
	return nil
}

func affectedOne(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func notFoundOr(err error, column, value string) error {
	if repository.IsRecordNotFound(err) || errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("lookup actor by %s %q: %w", column, value, ErrActorNotFound)
	}
	return err
}

// uniqueViolation maps unique index errors from sqlite and postgres onto
// domain errors. It returns nil for any other error.
func uniqueViolation(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		if strings.Contains(pgErr.ConstraintName, "root") {
			return ErrRootExists
		}
		return ErrDuplicateEmail
	}

	msg := err.Error()
	if !strings.Contains(msg, "UNIQUE constraint failed") && !strings.Contains(msg, "duplicate key value") {
		return nil
	}
	if strings.Contains(msg, "email") {
		return ErrDuplicateEmail
	}
	return ErrRootExists
}
