package auth

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MaxActivityRecords bounds the per actor activity trail.
const MaxActivityRecords = 100

// maxCASRetries bounds optimistic write loops on a single actor record.
const maxCASRetries = 5

// Audit actions recorded by this package.
const (
	AuditActionLogin             = "login"
	AuditActionLogout            = "logout"
	AuditActionCreateActor       = "create_actor"
	AuditActionUpdateProfile     = "update_profile"
	AuditActionChangePassword    = "change_password"
	AuditActionChangeStatus      = "change_actor_status"
	AuditActionUpdatePermissions = "update_actor_permissions"
	AuditActionBootstrapRoot     = "bootstrap_root"
)

// Audit resources that are not permission resources.
const (
	AuditResourceSession = "session"
	AuditResourceProfile = "profile"
)

// ActivityRecord is one entry of an actor's own administrative history.
type ActivityRecord struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	ResourceID string         `json:"resource_id,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
	IP         string         `json:"ip,omitempty"`
	UserAgent  string         `json:"user_agent,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
}

// ActivityTrail is an insertion ordered, bounded list of records.
type ActivityTrail []ActivityRecord

// Append returns a new trail with rec at the end, evicting the oldest
// entries so the result holds at most limit records.
func (t ActivityTrail) Append(rec ActivityRecord, limit int) ActivityTrail {
	if limit <= 0 {
		limit = MaxActivityRecords
	}
	out := make(ActivityTrail, 0, min(len(t)+1, limit))
	start := 0
	if over := len(t) + 1 - limit; over > 0 {
		start = over
	}
	out = append(out, t[start:]...)
	return append(out, rec)
}

// Latest returns up to n records, newest first.
func (t ActivityTrail) Latest(n int) []ActivityRecord {
	if n <= 0 || n > len(t) {
		n = len(t)
	}
	out := make([]ActivityRecord, 0, n)
	for i := len(t) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, t[i])
	}
	return out
}

// Value implements driver.Valuer so the trail is stored as JSON.
func (t ActivityTrail) Value() (driver.Value, error) {
	if t == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]ActivityRecord(t))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (t *ActivityTrail) Scan(src any) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		*t = nil
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("activity trail: unsupported scan type %T", src)
	}
	if len(data) == 0 {
		*t = nil
		return nil
	}
	var records []ActivityRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return err
	}
	*t = records
	return nil
}

// ActivityEntry is what callers hand to AuditLogger.Log.
type ActivityEntry struct {
	Action     string
	Resource   string
	ResourceID string
	Details    map[string]any
}

// AuditLogger appends records to an actor's trail. Writes are synchronous and
// use a compare-and-swap on the trail version so concurrent appends are not lost.
type AuditLogger struct {
	store  ActorStore
	limit  int
	now    func() time.Time
	logger Logger
}

// AuditOption customizes the AuditLogger
type AuditOption func(*AuditLogger)

func WithAuditClock(clock func() time.Time) AuditOption {
	return func(a *AuditLogger) {
		if clock != nil {
			a.now = clock
		}
	}
}

func WithAuditLimit(limit int) AuditOption {
	return func(a *AuditLogger) {
		if limit > 0 {
			a.limit = limit
		}
	}
}

func WithAuditLogger(logger Logger) AuditOption {
	return func(a *AuditLogger) {
		if logger != nil {
			a.logger = logger
		}
	}
}

func NewAuditLogger(store ActorStore, opts ...AuditOption) *AuditLogger {
	a := &AuditLogger{
		store:  store,
		limit:  MaxActivityRecords,
		now:    time.Now,
		logger: defLogger{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a
}

// Log appends entry to the trail of actorID.
func (a *AuditLogger) Log(ctx context.Context, actorID uuid.UUID, entry ActivityEntry, meta RequestMeta) error {
	rec := ActivityRecord{
		Action:     entry.Action,
		Resource:   entry.Resource,
		ResourceID: entry.ResourceID,
		Details:    entry.Details,
		IP:         meta.IP,
		UserAgent:  meta.UserAgent,
		Timestamp:  a.now().UTC(),
	}

	for attempt := 0; attempt < maxCASRetries; attempt++ {
		actor, err := a.store.GetByID(ctx, actorID)
		if err != nil {
			return err
		}

		trail := actor.ActivityLog.Append(rec, a.limit)
		ok, err := a.store.CompareAndSwapActivity(ctx, actorID, actor.ActivityVersion, trail)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		a.logger.Debug("audit append lost race for actor %s, retrying", actorID)
	}

	return ErrConcurrentUpdate
}
