package authclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"penlight.org/internal/auth"
	"penlight.org/internal/httpapi"
)

const testAppSecret = "test-app-secret"

type fakeDirectory struct{}

func (fakeDirectory) FindLive(ctx context.Context, id string) (*auth.Account, error) {
	return nil, auth.ErrAccountMissing
}

func (fakeDirectory) FindCredentials(ctx context.Context, identifier string) (auth.AccountCredentials, error) {
	return auth.AccountCredentials{}, auth.ErrAccountNotFound
}

func (fakeDirectory) PromoteRoles(ctx context.Context, id string, roles []auth.Role) error {
	return auth.ErrAccountMissing
}

func (fakeDirectory) Anonymize(ctx context.Context, id string, digest func(string) string) error {
	return auth.ErrAccountMissing
}

// newTestServer runs the real API so the orchestrator is exercised against
// the same handshake it meets in production. handshakes counts POSTs to the
// handshake endpoint.
func newTestServer(t *testing.T) (*httptest.Server, *auth.Engine, *atomic.Int64) {
	t.Helper()
	keys, err := auth.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	engine, err := auth.NewEngine(keys, "test-signing-secret")
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	api := httpapi.New(engine, fakeDirectory{}, httpapi.ReadyProbe{}, httpapi.Options{
		AppSecret:  testAppSecret,
		RateBurst:  1000,
		RatePerSec: 1000,
		Version:    "test",
	})

	var handshakes atomic.Int64
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && r.URL.Path == "/v1/auth/handshake" {
			handshakes.Add(1)
		}
		api.Handler().ServeHTTP(w, r)
	})
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv, engine, &handshakes
}

func TestUnestablishedTreePerformsHandshake(t *testing.T) {
	srv, engine, handshakes := newTestServer(t)
	client := New(srv.URL, testAppSecret)

	tree := NewTree("")
	ctx := WithTree(context.Background(), tree)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/v1/me", nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("wildcard operation after handshake: expected 200, got %d", resp.StatusCode)
	}
	if handshakes.Load() != 1 {
		t.Fatalf("expected exactly one handshake, got %d", handshakes.Load())
	}
	if tree.State() != StateVerified {
		t.Fatalf("expected Verified tree, got %v", tree.State())
	}

	cred, ok := auth.DecodeCredential(tree.Credential())
	if !ok || cred.Type != auth.TypeBasic {
		t.Fatalf("expected Basic credential, got %q", tree.Credential())
	}
	if _, err := engine.VerifyToken(cred.Token); err != nil {
		t.Fatalf("memoized token does not verify: %v", err)
	}
}

func TestVerifiedTreeSkipsFurtherRoundTrips(t *testing.T) {
	srv, _, handshakes := newTestServer(t)
	client := New(srv.URL, testAppSecret)

	tree := NewTree("")
	ctx := WithTree(context.Background(), tree)

	for i := 0; i < 3; i++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/v1/me", nil)
		if err != nil {
			t.Fatalf("NewRequest: %v", err)
		}
		resp, err := client.Do(req)
		if err != nil {
			t.Fatalf("Do %d: %v", i, err)
		}
		resp.Body.Close()
	}

	if handshakes.Load() != 1 {
		t.Fatalf("expected one handshake for the whole tree, got %d", handshakes.Load())
	}
}

func TestUnverifiedTreeReusesValidCredential(t *testing.T) {
	srv, engine, handshakes := newTestServer(t)
	client := New(srv.URL, testAppSecret)

	token, err := engine.SignToken(nil)
	if err != nil {
		t.Fatalf("SignToken: %v", err)
	}
	inherited := auth.EncodeCredential(auth.TypeBasic, token)

	tree := NewTree(inherited)
	if tree.State() != StateUnverified {
		t.Fatalf("expected Unverified seed, got %v", tree.State())
	}
	ctx := WithTree(context.Background(), tree)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/v1/me", nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	resp.Body.Close()

	if handshakes.Load() != 0 {
		t.Fatalf("a valid inherited credential must be reused, got %d handshakes", handshakes.Load())
	}
	if tree.Credential() != inherited {
		t.Fatalf("credential replaced: %q", tree.Credential())
	}
}

func TestUnverifiedTreeFallsBackOnStaleCredential(t *testing.T) {
	srv, _, handshakes := newTestServer(t)
	client := New(srv.URL, testAppSecret)

	tree := NewTree(auth.EncodeCredential(auth.TypeBasic, "stale-token"))
	ctx := WithTree(context.Background(), tree)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/v1/me", nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 after fallback, got %d", resp.StatusCode)
	}
	if handshakes.Load() != 1 {
		t.Fatalf("expected fallback to one handshake, got %d", handshakes.Load())
	}
}

func TestConcurrentCallsShareOneHandshake(t *testing.T) {
	srv, _, handshakes := newTestServer(t)
	client := New(srv.URL, testAppSecret)

	tree := NewTree("")
	ctx := WithTree(context.Background(), tree)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/v1/me", nil)
			if err != nil {
				errs <- err
				return
			}
			resp, err := client.Do(req)
			if err != nil {
				errs <- err
				return
			}
			resp.Body.Close()
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent Do: %v", err)
	}

	// The documented policy: calls serialize behind the first handshake.
	if handshakes.Load() != 1 {
		t.Fatalf("expected exactly one handshake, got %d", handshakes.Load())
	}
}

func TestRequestWithoutTreePassesThrough(t *testing.T) {
	srv, _, handshakes := newTestServer(t)
	client := New(srv.URL, testAppSecret)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/healthz", nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if handshakes.Load() != 0 {
		t.Fatalf("no tree, no handshake; got %d", handshakes.Load())
	}
	if req.Header.Get(auth.CredentialKey) != "" {
		t.Fatal("request without a tree must be sent untouched")
	}
}

func TestAuthFailureSurfacesWithoutRetry(t *testing.T) {
	srv, engine, handshakes := newTestServer(t)
	client := New(srv.URL, testAppSecret)

	// A verified tree whose bearer names a vanished account: the call's
	// own auth failure belongs to the caller, not the orchestrator.
	token, err := engine.SignToken(map[string]string{"id": "ghost"})
	if err != nil {
		t.Fatalf("SignToken: %v", err)
	}
	tree := NewTree("")
	tree.state = StateVerified
	tree.credential = auth.EncodeCredential(auth.TypeBearer, token)
	ctx := WithTree(context.Background(), tree)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/v1/me", nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 to surface, got %d", resp.StatusCode)
	}
	if handshakes.Load() != 0 {
		t.Fatalf("individual auth failures must not trigger a handshake, got %d", handshakes.Load())
	}
	if !strings.Contains(tree.Credential(), "Bearer") {
		t.Fatalf("credential must not be rewritten by the orchestrator: %q", tree.Credential())
	}
}
