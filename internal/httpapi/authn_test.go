package httpapi

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"penlight.org/internal/auth"
)

func TestCookieWinsOverHeader(t *testing.T) {
	engine := newTestEngine(t)
	dir := &fakeDirectory{accounts: map[string]*auth.Account{
		"user-1": {ID: "user-1", Roles: []auth.Role{auth.RoleCommon}},
	}}
	api := newTestAPI(t, engine, dir)

	// Cookie carries an anonymous Basic credential, header a user Bearer.
	// The session cookie must not be overridden by the header.
	req := httptest.NewRequest(http.MethodGet, "/v1/me", nil)
	req.AddCookie(&http.Cookie{Name: auth.CredentialKey, Value: basicCredential(t, engine)})
	req.Header.Set(auth.CredentialKey, bearerCredential(t, engine, "user-1"))

	rr := httptest.NewRecorder()
	api.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `"app"`) {
		t.Fatalf("expected App identity from cookie, got %s", rr.Body.String())
	}
}

func TestHeaderUsedWhenNoCookie(t *testing.T) {
	engine := newTestEngine(t)
	dir := &fakeDirectory{accounts: map[string]*auth.Account{
		"user-1": {ID: "user-1", Roles: []auth.Role{auth.RoleCommon}},
	}}
	api := newTestAPI(t, engine, dir)

	rr := doJSON(t, api, http.MethodGet, "/v1/me", nil, bearerCredential(t, engine, "user-1"))
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "user-1") {
		t.Fatalf("expected user identity, got %d %s", rr.Code, rr.Body.String())
	}
}

func TestBearerMissingAccountIsHardFailure(t *testing.T) {
	engine := newTestEngine(t)
	api := newTestAPI(t, engine, &fakeDirectory{})

	rr := doJSON(t, api, http.MethodGet, "/v1/me", nil, bearerCredential(t, engine, "ghost"))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
	if code := errorCode(t, rr); code != "INVALID_TOKEN" {
		t.Fatalf("expected INVALID_TOKEN, got %q", code)
	}
}

func TestBearerBlockedAccountIsHardFailure(t *testing.T) {
	engine := newTestEngine(t)
	dir := &fakeDirectory{accounts: map[string]*auth.Account{
		"user-1": {ID: "user-1", Roles: []auth.Role{auth.RoleCommon}, Blocked: true},
	}}
	api := newTestAPI(t, engine, dir)

	rr := doJSON(t, api, http.MethodGet, "/v1/me", nil, bearerCredential(t, engine, "user-1"))
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
	if code := errorCode(t, rr); code != "FORBIDDEN" {
		t.Fatalf("expected FORBIDDEN, got %q", code)
	}
}

func TestGarbledCredentialIsSoftFailure(t *testing.T) {
	engine := newTestEngine(t)
	api := newTestAPI(t, engine, &fakeDirectory{})

	// A garbled token downgrades; the public key endpoint still serves.
	rr := doJSON(t, api, http.MethodGet, "/v1/auth/key", nil, "Bearer garbage")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	cookie := authCookie(rr)
	if cookie == nil {
		t.Fatal("expected Expired rewrite cookie")
	}
	if cred, ok := auth.DecodeCredential(cookie.Value); !ok || cred.Type != auth.TypeExpired {
		t.Fatalf("expected Expired rewrite, got %q", cookie.Value)
	}
}
