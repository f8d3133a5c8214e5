package auth

import "github.com/mikepea/bylines/pkg/bylines/models"

// Capability is a named permission granted through a role
type Capability string

const (
	// CapRead lets a user see their own profile
	CapRead Capability = "read"
	// CapEditPosts gates author assignment writes and the group lists used by editors
	CapEditPosts Capability = "edit_posts"
	// CapEditOthersPosts allows editing items authored by someone else
	CapEditOthersPosts Capability = "edit_others_posts"
	// CapManageGroups allows creating groups and changing their members
	CapManageGroups Capability = "manage_groups"
	// CapListUsers allows reading the user directory
	CapListUsers Capability = "list_users"
	// CapManageOptions allows site maintenance such as rebuilding the reference index
	CapManageOptions Capability = "manage_options"
)

var roleCapabilities = map[models.Role][]Capability{
	models.RoleAdministrator: {CapRead, CapEditPosts, CapEditOthersPosts, CapManageGroups, CapListUsers, CapManageOptions},
	models.RoleEditor:        {CapRead, CapEditPosts, CapEditOthersPosts, CapManageGroups},
	models.RoleAuthor:        {CapRead, CapEditPosts},
	models.RoleContributor:   {CapRead, CapEditPosts},
	models.RoleSubscriber:    {CapRead},
}

// RoleCan reports whether role grants capability
func RoleCan(role models.Role, capability Capability) bool {
	for _, c := range roleCapabilities[role] {
		if c == capability {
			return true
		}
	}
	return false
}

// ValidRole reports whether role is one of the known roles
func ValidRole(role models.Role) bool {
	_, ok := roleCapabilities[role]
	return ok
}

// CapabilitiesOf lists the capabilities granted by role
func CapabilitiesOf(role models.Role) []Capability {
	caps := roleCapabilities[role]
	out := make([]Capability, len(caps))
	copy(out, caps)
	return out
}

// Principal is the acting user of a request. The zero value is anonymous.
type Principal struct {
	UserID uint
	Role   models.Role
}

// Anonymous returns a principal without an identity
func Anonymous() Principal {
	return Principal{}
}

// IsAnonymous reports whether no user is attached
func (p Principal) IsAnonymous() bool {
	return p.UserID == 0
}

// Can reports whether p holds capability. Anonymous principals hold nothing.
func (p Principal) Can(capability Capability) bool {
	if p.IsAnonymous() {
		return false
	}
	return RoleCan(p.Role, capability)
}
