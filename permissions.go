package auth

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Resource names a protected capability area.
type Resource string

const (
	ResourceUsers           Resource = "users"
	ResourceProperties      Resource = "properties"
	ResourceApplications    Resource = "applications"
	ResourcePayments        Resource = "payments"
	ResourceAnalytics       Resource = "analytics"
	ResourceSettings        Resource = "settings"
	ResourceActorManagement Resource = "actor_management"
	ResourceSystemLogs      Resource = "system_logs"
	ResourceReports         Resource = "reports"
)

// Resources is the closed set of resources.
var Resources = []Resource{
	ResourceUsers,
	ResourceProperties,
	ResourceApplications,
	ResourcePayments,
	ResourceAnalytics,
	ResourceSettings,
	ResourceActorManagement,
	ResourceSystemLogs,
	ResourceReports,
}

// Action is an operation on a Resource.
type Action string

const (
	ActionCreate  Action = "create"
	ActionRead    Action = "read"
	ActionUpdate  Action = "update"
	ActionDelete  Action = "delete"
	ActionApprove Action = "approve"
	ActionExport  Action = "export"
)

// Actions is the closed set of actions.
var Actions = []Action{
	ActionCreate,
	ActionRead,
	ActionUpdate,
	ActionDelete,
	ActionApprove,
	ActionExport,
}

func (r Resource) IsValid() bool {
	for _, res := range Resources {
		if res == r {
			return true
		}
	}
	return false
}

func (a Action) IsValid() bool {
	for _, act := range Actions {
		if act == a {
			return true
		}
	}
	return false
}

// Grant is one resource with the actions allowed on it.
type Grant struct {
	Resource Resource `json:"resource"`
	Actions  []Action `json:"actions"`
}

// PermissionSet is an immutable set of grants. The zero value grants nothing.
// Mutating helpers return a new set.
type PermissionSet struct {
	grants map[Resource]map[Action]struct{}
}

// NewPermissionSet builds a set from grants. Unknown resources or actions
// are rejected with ErrValidation.
func NewPermissionSet(grants ...Grant) (PermissionSet, error) {
	set := PermissionSet{grants: map[Resource]map[Action]struct{}{}}
	for _, g := range grants {
		if !g.Resource.IsValid() {
			return PermissionSet{}, fmt.Errorf("unknown resource %q: %w", g.Resource, ErrValidation)
		}
		actions, ok := set.grants[g.Resource]
		if !ok {
			actions = map[Action]struct{}{}
			set.grants[g.Resource] = actions
		}
		for _, a := range g.Actions {
			if !a.IsValid() {
				return PermissionSet{}, fmt.Errorf("unknown action %q on %s: %w", a, g.Resource, ErrValidation)
			}
			actions[a] = struct{}{}
		}
	}
	return set, nil
}

// MustPermissionSet is NewPermissionSet for static data.
func MustPermissionSet(grants ...Grant) PermissionSet {
	set, err := NewPermissionSet(grants...)
	if err != nil {
		panic(err)
	}
	return set
}

// Allows reports whether the set contains action on resource.
func (p PermissionSet) Allows(resource Resource, action Action) bool {
	actions, ok := p.grants[resource]
	if !ok {
		return false
	}
	_, ok = actions[action]
	return ok
}

// IsEmpty reports whether the set grants nothing.
func (p PermissionSet) IsEmpty() bool {
	for _, actions := range p.grants {
		if len(actions) > 0 {
			return false
		}
	}
	return true
}

// Grants returns a copy of the set in a stable order.
func (p PermissionSet) Grants() []Grant {
	out := make([]Grant, 0, len(p.grants))
	for _, res := range Resources {
		actions, ok := p.grants[res]
		if !ok || len(actions) == 0 {
			continue
		}
		g := Grant{Resource: res}
		for _, a := range Actions {
			if _, ok := actions[a]; ok {
				g.Actions = append(g.Actions, a)
			}
		}
		out = append(out, g)
	}
	return out
}

// Resources returns the resources with at least one granted action.
func (p PermissionSet) Resources() []Resource {
	out := make([]Resource, 0, len(p.grants))
	for _, g := range p.Grants() {
		out = append(out, g.Resource)
	}
	return out
}

func (p PermissionSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.Grants())
}

func (p *PermissionSet) UnmarshalJSON(data []byte) error {
	var grants []Grant
	if err := json.Unmarshal(data, &grants); err != nil {
		return err
	}
	set, err := NewPermissionSet(grants...)
	if err != nil {
		return err
	}
	*p = set
	return nil
}

// Value implements driver.Valuer so the set is stored as JSON.
func (p PermissionSet) Value() (driver.Value, error) {
	b, err := p.MarshalJSON()
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (p *PermissionSet) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*p = PermissionSet{}
		return nil
	case []byte:
		if len(v) == 0 {
			*p = PermissionSet{}
			return nil
		}
		return p.UnmarshalJSON(v)
	case string:
		if v == "" {
			*p = PermissionSet{}
			return nil
		}
		return p.UnmarshalJSON([]byte(v))
	default:
		return fmt.Errorf("permission set: unsupported scan type %T", src)
	}
}

// HasPermission decides whether actor may perform action on resource.
// Root is always allowed. Super is allowed everywhere except
// actor_management. Every other role is limited to its explicit set.
func HasPermission(actor *Actor, resource Resource, action Action) bool {
	if actor == nil {
		return false
	}
	switch actor.Role {
	case RoleRoot:
		return true
	case RoleSuper:
		return resource != ResourceActorManagement
	default:
		return actor.Permissions.Allows(resource, action)
	}
}

func grant(res Resource, actions ...Action) Grant {
	return Grant{Resource: res, Actions: actions}
}

func everything(except ...Resource) []Grant {
	out := []Grant{}
	for _, res := range Resources {
		skip := false
		for _, e := range except {
			if e == res {
				skip = true
			}
		}
		if !skip {
			out = append(out, grant(res, Actions...))
		}
	}
	return out
}

type templateKey struct {
	kind ActorKind
	role Role
}

// Catalog holds the default permission templates applied at provisioning.
// Root and super entries are informational: HasPermission never reads them.
type Catalog struct {
	templates map[templateKey]PermissionSet
}

// DefaultCatalog returns the built in templates for both actor kinds.
func DefaultCatalog() *Catalog {
	c := &Catalog{templates: map[templateKey]PermissionSet{}}

	for _, kind := range ActorKinds {
		c.Set(kind, RoleRoot, MustPermissionSet(everything()...))
		c.Set(kind, RoleSuper, MustPermissionSet(everything(ResourceActorManagement)...))
	}

	c.Set(KindPlatformAdmin, RoleStandard, MustPermissionSet(
		grant(ResourceUsers, ActionRead, ActionUpdate),
		grant(ResourceProperties, ActionRead, ActionUpdate, ActionApprove),
		grant(ResourceApplications, ActionRead, ActionUpdate, ActionApprove),
		grant(ResourcePayments, ActionRead),
		grant(ResourceAnalytics, ActionRead),
		grant(ResourceReports, ActionRead),
	))
	c.Set(KindPlatformAdmin, RoleModerator, MustPermissionSet(
		grant(ResourceProperties, ActionRead, ActionUpdate, ActionApprove),
		grant(ResourceApplications, ActionRead, ActionUpdate),
		grant(ResourceUsers, ActionRead),
	))
	c.Set(KindPlatformAdmin, RoleAnalyst, MustPermissionSet(
		grant(ResourceAnalytics, ActionRead, ActionExport),
		grant(ResourceReports, ActionRead, ActionExport),
		grant(ResourcePayments, ActionRead),
		grant(ResourceProperties, ActionRead),
	))

	c.Set(KindLandlordStaff, RoleStandard, MustPermissionSet(
		grant(ResourceProperties, ActionCreate, ActionRead, ActionUpdate, ActionDelete),
		grant(ResourceApplications, ActionRead, ActionUpdate, ActionApprove),
		grant(ResourcePayments, ActionRead),
		grant(ResourceAnalytics, ActionRead),
		grant(ResourceReports, ActionRead),
	))
	c.Set(KindLandlordStaff, RoleModerator, MustPermissionSet(
		grant(ResourceProperties, ActionRead, ActionUpdate),
		grant(ResourceApplications, ActionRead, ActionUpdate),
	))
	c.Set(KindLandlordStaff, RoleAnalyst, MustPermissionSet(
		grant(ResourceAnalytics, ActionRead, ActionExport),
		grant(ResourceReports, ActionRead, ActionExport),
		grant(ResourcePayments, ActionRead),
	))

	return c
}

// Set replaces the template for (kind, role).
func (c *Catalog) Set(kind ActorKind, role Role, set PermissionSet) *Catalog {
	c.templates[templateKey{kind: kind, role: role}] = set
	return c
}

// Template returns the default set for (kind, role).
func (c *Catalog) Template(kind ActorKind, role Role) (PermissionSet, bool) {
	set, ok := c.templates[templateKey{kind: kind, role: role}]
	return set, ok
}
