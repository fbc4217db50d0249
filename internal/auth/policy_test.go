package auth

import "testing"

func TestDecide(t *testing.T) {
	none := Identity{}
	app := Identity{Kind: IdentityApp}
	writer := Identity{Kind: IdentityUser, UserID: "u1", Roles: []Role{RoleBlogWriter}}
	admin := Identity{Kind: IdentityUser, UserID: "u2", Roles: []Role{RoleAdmin, RoleCommon}}

	cases := []struct {
		name string
		id   Identity
		req  Requirement
		want bool
	}{
		{"none against wildcard", none, AnyIdentity, false},
		{"app against wildcard", app, AnyIdentity, true},
		{"user against wildcard", writer, AnyIdentity, true},
		{"app against role set", app, CanWriteArticle, false},
		{"none against role set", none, CanWriteArticle, false},
		{"matching role", writer, CanWriteArticle, true},
		{"disjoint role", writer, CanManageUsers, false},
		{"intersecting role set", admin, CanDeleteArticle, true},
		{"empty role set", admin, Roles(), false},
	}
	for _, tc := range cases {
		if got := Decide(tc.id, tc.req); got != tc.want {
			t.Fatalf("%s: Decide=%v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestParseRoles(t *testing.T) {
	roles := ParseRoles([]string{"Admin", "blogwriter", "admin", "unknown", ""})
	if len(roles) != 2 {
		t.Fatalf("expected 2 roles, got %v", roles)
	}
	if roles[0] != RoleAdmin || roles[1] != RoleBlogWriter {
		t.Fatalf("unexpected roles: %v", roles)
	}
}
