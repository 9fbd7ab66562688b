package auth

import "strings"

// ActorKind discriminates the two privileged populations sharing the Actor model.
type ActorKind string

const (
	KindPlatformAdmin ActorKind = "platform_admin"
	KindLandlordStaff ActorKind = "landlord_staff"
)

// ActorKinds lists every supported kind.
var ActorKinds = []ActorKind{KindPlatformAdmin, KindLandlordStaff}

// IsValid checks if the kind is one of the supported kinds
func (k ActorKind) IsValid() bool {
	switch k {
	case KindPlatformAdmin, KindLandlordStaff:
		return true
	default:
		return false
	}
}

func (k ActorKind) String() string {
	return string(k)
}

// Role is the privilege tier of an actor within its kind.
type Role string

const (
	RoleRoot      Role = "root"
	RoleSuper     Role = "super"
	RoleStandard  Role = "standard"
	RoleModerator Role = "moderator"
	RoleAnalyst   Role = "analyst"
)

var roleHierarchy = map[Role]int{
	RoleAnalyst:   0,
	RoleModerator: 1,
	RoleStandard:  2,
	RoleSuper:     3,
	RoleRoot:      4,
}

// roleAliases maps the names used by older deployments onto the tiers.
var roleAliases = map[string]Role{
	"alpha_admin":    RoleRoot,
	"alpha_landlord": RoleRoot,
	"super_admin":    RoleSuper,
	"super_landlord": RoleSuper,
	"admin":          RoleStandard,
	"landlord":       RoleStandard,
}

// ParseRole resolves a role name or legacy alias. It returns false when the
// name is unknown.
func ParseRole(s string) (Role, bool) {
	name := strings.ToLower(strings.TrimSpace(s))
	if r := Role(name); r.IsValid() {
		return r, true
	}
	if r, ok := roleAliases[name]; ok {
		return r, true
	}
	return "", false
}

// IsValid checks if the role is one of the predefined roles
func (r Role) IsValid() bool {
	_, ok := roleHierarchy[r]
	return ok
}

// IsAtLeast checks if this role meets the minimum required level
func (r Role) IsAtLeast(minRole Role) bool {
	userLevel, ok := roleHierarchy[r]
	if !ok {
		return false
	}
	minLevel, ok := roleHierarchy[minRole]
	if !ok {
		return false
	}
	return userLevel >= minLevel
}

// IsPrivilegedTier reports whether the role bypasses explicit permission sets.
func (r Role) IsPrivilegedTier() bool {
	return r == RoleRoot || r == RoleSuper
}

func (r Role) String() string {
	return string(r)
}

// CanProvision reports whether an actor with role r may create an actor with
// role target. Root is never provisioned and only root creates super. Below
// super an actor may only create roles strictly beneath its own.
func (r Role) CanProvision(target Role) bool {
	if !target.IsValid() || target == RoleRoot {
		return false
	}
	switch r {
	case RoleRoot:
		return true
	case RoleSuper:
		return target != RoleSuper
	default:
		return r.IsValid() && roleHierarchy[r] > roleHierarchy[target]
	}
}

// CanManage reports whether an actor with role r may change the lifecycle or
// permissions of an actor with role target. Only root and super manage, so
// actors created pending by lower roles are verified by a privileged tier.
func (r Role) CanManage(target Role) bool {
	if !r.IsPrivilegedTier() || target == RoleRoot {
		return false
	}
	return r.CanProvision(target)
}
