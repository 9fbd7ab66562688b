package auth

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// TransitionMetadata captures extra context for a transition.
type TransitionMetadata struct {
	Reason   string
	Metadata map[string]any
}

// TransitionOption customizes a single transition.
type TransitionOption func(*TransitionMetadata)

// WithTransitionReason sets the human-readable reason for the transition.
func WithTransitionReason(reason string) TransitionOption {
	return func(meta *TransitionMetadata) {
		meta.Reason = reason
	}
}

// WithTransitionMetadata merges metadata into the transition context.
func WithTransitionMetadata(metadata map[string]any) TransitionOption {
	return func(meta *TransitionMetadata) {
		if len(metadata) == 0 {
			return
		}
		if meta.Metadata == nil {
			meta.Metadata = make(map[string]any, len(metadata))
		}
		for k, v := range metadata {
			meta.Metadata[k] = v
		}
	}
}

// StateMachineOption customizes state machine construction.
type StateMachineOption func(*ActorStateMachine)

// WithStateMachineClock injects a custom clock (useful for tests).
func WithStateMachineClock(clock func() time.Time) StateMachineOption {
	return func(sm *ActorStateMachine) {
		if clock != nil {
			sm.now = clock
		}
	}
}

// WithStateMachineActivitySink sets the ActivitySink used to publish lifecycle events.
func WithStateMachineActivitySink(sink ActivitySink) StateMachineOption {
	return func(sm *ActorStateMachine) {
		sm.activitySink = normalizeActivitySink(sink)
	}
}

// WithStateMachineLogger overrides the logger used for sink failures.
func WithStateMachineLogger(logger Logger) StateMachineOption {
	return func(sm *ActorStateMachine) {
		if logger != nil {
			sm.logger = logger
		}
	}
}

// ActorStateMachine moves actors between pending, active and deactivated.
// Actors are never hard deleted.
type ActorStateMachine struct {
	store        ActorStore
	audit        *AuditLogger
	transitions  map[ActorStatus]map[ActorStatus]struct{}
	now          func() time.Time
	activitySink ActivitySink
	logger       Logger
}

// NewActorStateMachine returns the default implementation backed by store.
func NewActorStateMachine(store ActorStore, audit *AuditLogger, opts ...StateMachineOption) *ActorStateMachine {
	sm := &ActorStateMachine{
		store: store,
		audit: audit,
		transitions: map[ActorStatus]map[ActorStatus]struct{}{
			ActorStatusPending: {
				ActorStatusActive:      {},
				ActorStatusDeactivated: {},
			},
			ActorStatusActive: {
				ActorStatusDeactivated: {},
			},
			ActorStatusDeactivated: {
				ActorStatusActive:  {},
				ActorStatusPending: {},
			},
		},
		now:          time.Now,
		activitySink: noopActivitySink{},
		logger:       defLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(sm)
		}
	}

	return sm
}

// CanTransition reports whether from -> to is an edge of the lifecycle graph.
func (sm *ActorStateMachine) CanTransition(from, to ActorStatus) bool {
	if allowed, ok := sm.transitions[from]; ok {
		_, exists := allowed[to]
		return exists
	}
	return false
}

// Transition moves target to status on behalf of operator.
func (sm *ActorStateMachine) Transition(ctx context.Context, operator, target *Actor, status ActorStatus, meta RequestMeta, opts ...TransitionOption) (*Actor, error) {
	if operator == nil || target == nil {
		return nil, ErrInvalidTransition
	}

	if err := checkManagement(operator, target); err != nil {
		return nil, err
	}

	from := target.Status()
	if from == status {
		return target, nil
	}

	if !sm.CanTransition(from, status) {
		return nil, ErrInvalidTransition
	}

	var tm TransitionMetadata
	for _, opt := range opts {
		if opt != nil {
			opt(&tm)
		}
	}

	update := StatusUpdate{
		IsActive:   status != ActorStatusDeactivated,
		IsVerified: target.IsVerified,
		ModifiedBy: operator.ID,
		At:         sm.now().UTC(),
	}
	switch status {
	case ActorStatusActive:
		update.IsVerified = true
	case ActorStatusPending:
		update.IsVerified = false
	}

	if err := sm.store.UpdateStatus(ctx, target.ID, update); err != nil {
		return nil, err
	}

	target.IsActive = update.IsActive
	target.IsVerified = update.IsVerified
	target.LastModifiedBy = &update.ModifiedBy
	target.LastModifiedAt = &update.At

	details := map[string]any{
		"from": string(from),
		"to":   string(status),
	}
	if tm.Reason != "" {
		details["reason"] = tm.Reason
	}
	if err := sm.audit.Log(ctx, operator.ID, ActivityEntry{
		Action:     AuditActionChangeStatus,
		Resource:   string(ResourceActorManagement),
		ResourceID: target.ID.String(),
		Details:    details,
	}, meta); err != nil {
		return nil, err
	}

	emitActivity(ctx, sm.activitySink, sm.logger, sm.now, ActivityEvent{
		EventType:  ActivityEventActorStatusChanged,
		Actor:      operator.Ref(),
		ActorID:    target.ID.String(),
		Kind:       target.Kind,
		FromStatus: from,
		ToStatus:   status,
		Metadata:   transitionMetadata(tm),
	})

	return target, nil
}

// UpdatePermissions replaces the explicit permission set of target.
func (sm *ActorStateMachine) UpdatePermissions(ctx context.Context, operator, target *Actor, grants []Grant, meta RequestMeta) (*Actor, error) {
	if operator == nil || target == nil {
		return nil, ErrPermissionDenied
	}

	if err := checkManagement(operator, target); err != nil {
		return nil, err
	}

	set, err := NewPermissionSet(grants...)
	if err != nil {
		return nil, fieldFailure("permissions", err.Error())
	}

	at := sm.now().UTC()
	if err := sm.store.UpdatePermissions(ctx, target.ID, set, operator.ID, at); err != nil {
		return nil, err
	}

	target.Permissions = set
	modifiedBy := operator.ID
	target.LastModifiedBy = &modifiedBy
	target.LastModifiedAt = &at

	if err := sm.audit.Log(ctx, operator.ID, ActivityEntry{
		Action:     AuditActionUpdatePermissions,
		Resource:   string(ResourceActorManagement),
		ResourceID: target.ID.String(),
		Details:    map[string]any{"permissions": set.Grants()},
	}, meta); err != nil {
		return nil, err
	}

	emitActivity(ctx, sm.activitySink, sm.logger, sm.now, ActivityEvent{
		EventType: ActivityEventActorPermissionsChanged,
		Actor:     operator.Ref(),
		ActorID:   target.ID.String(),
		Kind:      target.Kind,
	})

	return target, nil
}

// checkManagement enforces that operator may change target: same kind, not
// self, operator is root or super, target is not root, and only root changes
// a super.
func checkManagement(operator, target *Actor) error {
	if operator.Kind != target.Kind {
		return ErrPermissionDenied
	}
	if operator.ID == target.ID || target.ID == uuid.Nil {
		return ErrPermissionDenied
	}
	if !operator.Role.CanManage(target.Role) {
		return ErrPermissionDenied
	}
	return nil
}

func transitionMetadata(meta TransitionMetadata) map[string]any {
	if meta.Reason == "" && len(meta.Metadata) == 0 {
		return nil
	}

	result := map[string]any{}
	if meta.Reason != "" {
		result["reason"] = meta.Reason
	}
	for k, v := range meta.Metadata {
		result[k] = v
	}
	return result
}
