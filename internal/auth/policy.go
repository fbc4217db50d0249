package auth

// Requirement declares who may invoke a protected operation: either the
// wildcard (any established identity) or an explicit role allow-list.
type Requirement struct {
	wildcard bool
	roles    []Role
}

// AnyIdentity is the wildcard requirement. Both App and User identities pass.
var AnyIdentity = Requirement{wildcard: true}

// Roles builds a requirement satisfied by users holding at least one of the
// given roles.
func Roles(roles ...Role) Requirement {
	out := make([]Role, len(roles))
	copy(out, roles)
	return Requirement{roles: out}
}

// Operation allow-lists registered by the dispatch layer.
var (
	AllUsers          = Roles(RoleDeus, RoleAdmin, RoleBlogAdmin, RoleBlogWriter, RoleCommon)
	CanManageUsers    = Roles(RoleDeus, RoleAdmin)
	CanWriteArticle   = Roles(RoleDeus, RoleAdmin, RoleBlogAdmin, RoleBlogWriter)
	CanDeleteArticle  = Roles(RoleDeus, RoleAdmin, RoleBlogAdmin)
	CanManageComments = Roles(RoleDeus, RoleAdmin, RoleBlogAdmin)
)

// Decide reports whether the identity satisfies the requirement. Pure, no I/O.
//
// The wildcard passes any established identity. An explicit role set passes
// only User identities whose role set intersects it. Everything else,
// including an unestablished caller against the wildcard, is denied.
func Decide(id Identity, req Requirement) bool {
	if req.wildcard {
		return id.Established()
	}
	if id.Kind != IdentityUser {
		return false
	}
	for _, r := range req.roles {
		if id.HasRole(r) {
			return true
		}
	}
	return false
}
