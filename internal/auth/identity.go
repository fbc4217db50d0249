package auth

import "strings"

// Role is one of the closed set of user roles known to the service.
type Role string

const (
	RoleDeus       Role = "deus"
	RoleAdmin      Role = "admin"
	RoleBlogAdmin  Role = "blogAdmin"
	RoleBlogWriter Role = "blogWriter"
	RoleCommon     Role = "common"
)

var knownRoles = map[Role]struct{}{
	RoleDeus:       {},
	RoleAdmin:      {},
	RoleBlogAdmin:  {},
	RoleBlogWriter: {},
	RoleCommon:     {},
}

// ParseRole maps a stored role value onto the closed set. Matching is
// case-insensitive; unknown values are rejected rather than carried along.
func ParseRole(s string) (Role, bool) {
	s = strings.TrimSpace(s)
	for r := range knownRoles {
		if strings.EqualFold(string(r), s) {
			return r, true
		}
	}
	return "", false
}

// ParseRoles maps a stored role list onto the closed set, dropping
// unknown entries and duplicates.
func ParseRoles(values []string) []Role {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[Role]struct{}, len(values))
	var out []Role
	for _, v := range values {
		r, ok := ParseRole(v)
		if !ok {
			continue
		}
		if _, dup := seen[r]; dup {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	return out
}

// IdentityKind discriminates the resolved principal of a request.
type IdentityKind int

const (
	// IdentityNone is an unestablished caller: no credential, or a
	// credential that failed verification and was downgraded.
	IdentityNone IdentityKind = iota
	// IdentityApp is an anonymous app-level caller holding a Basic token.
	IdentityApp
	// IdentityUser is a signed-in user holding a Bearer token.
	IdentityUser
)

// Identity is the resolved principal of one request. User fields are always
// sourced fresh from the account store at resolution time; the token
// contributes only the id used as the lookup key.
type Identity struct {
	Kind    IdentityKind
	UserID  string
	Roles   []Role
	Blocked bool
	Deleted bool
}

// Established reports whether the caller holds any verified credential.
func (id Identity) Established() bool {
	return id.Kind != IdentityNone
}

// HasRole reports closed-set membership.
func (id Identity) HasRole(role Role) bool {
	for _, r := range id.Roles {
		if r == role {
			return true
		}
	}
	return false
}
