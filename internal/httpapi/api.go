package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"penlight.org/internal/auth"
	"penlight.org/internal/obs"
)

// Directory is the account storage the API needs: the live lookup consumed
// by the resolver plus the sign-in and admin operations.
type Directory interface {
	auth.AccountStore
	FindCredentials(ctx context.Context, identifier string) (auth.AccountCredentials, error)
	PromoteRoles(ctx context.Context, id string, roles []auth.Role) error
	Anonymize(ctx context.Context, id string, digest func(string) string) error
}

// ReadyProbe pings the database for the readiness endpoint.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// Options carries the deployment-specific knobs of the HTTP layer.
type Options struct {
	AppSecret    string
	CookieDomain string
	RateBurst    int
	RatePerSec   int
	Version      string
}

// API is the HTTP layer of the auth core.
type API struct {
	mux        *http.ServeMux
	engine     *auth.Engine
	resolver   *auth.Resolver
	accounts   Directory
	readyProbe ReadyProbe
	opts       Options
}

// New wires the routes. Every handler runs behind the resolver middleware;
// protected operations additionally declare their requirement via protect.
func New(engine *auth.Engine, accounts Directory, rp ReadyProbe, opts Options) *API {
	a := &API{
		mux:        http.NewServeMux(),
		engine:     engine,
		resolver:   auth.NewResolver(engine, accounts),
		accounts:   accounts,
		readyProbe: rp,
		opts:       opts,
	}

	limited := func(h http.Handler) http.Handler {
		return RateLimit(h, opts.RateBurst, opts.RatePerSec)
	}

	a.mux.HandleFunc("GET /healthz", a.Healthz)
	a.mux.HandleFunc("GET /readyz", a.Ready)
	a.mux.Handle("GET /metrics", obs.Handler())

	a.mux.HandleFunc("GET /v1/auth/key", a.handlePublicKey)
	a.mux.Handle("POST /v1/auth/handshake", limited(http.HandlerFunc(a.handleHandshake)))
	a.mux.Handle("POST /v1/auth/signin", limited(a.protect(auth.AnyIdentity, a.handleSignIn)))
	a.mux.Handle("POST /v1/auth/signout", a.protect(auth.AnyIdentity, a.handleSignOut))
	a.mux.HandleFunc("GET /v1/auth/check", a.handleCheckAuth)

	a.mux.Handle("GET /v1/me", a.protect(auth.AnyIdentity, a.handleMe))

	a.mux.Handle("PUT /v1/accounts/{id}/roles", a.protect(auth.CanManageUsers, a.handlePromoteRoles))
	a.mux.Handle("DELETE /v1/accounts/{id}", a.protect(auth.CanManageUsers, a.handleDeleteAccount))

	return a
}

// Handler returns the fully wrapped handler for the server.
func (a *API) Handler() http.Handler {
	h := a.withAuth(a.mux)
	h = RequestID(h)
	h = SecurityHeaders(h)
	h = Logging(h)
	h = MaxBodyBytes(h, 1<<20)
	return obs.Instrument(h)
}

// protect gates a handler behind a role requirement. Resolution has already
// run; this is the pure policy decision.
func (a *API) protect(req auth.Requirement, h http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, _ := auth.IdentityFromContext(r.Context())
		if !auth.Decide(id, req) {
			if !id.Established() {
				writeError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "authentication required")
				return
			}
			writeError(w, http.StatusForbidden, "PERMISSION_DENIED", "permission denied")
			return
		}
		h(w, r)
	})
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "penlight-api",
		"version": a.opts.Version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

// setAuthCookie writes the credential cookie scoped to the deployment's
// parent domain. The same value travels back on the response body for
// header-based callers.
func (a *API) setAuthCookie(w http.ResponseWriter, t auth.CredentialType, token string) {
	cookie := &http.Cookie{
		Name:     auth.CredentialKey,
		Value:    auth.EncodeCredential(t, token),
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Expires:  time.Now().Add(a.engine.TokenTTL()),
	}
	if a.opts.CookieDomain != "" {
		cookie.Domain = "." + a.opts.CookieDomain
	}
	http.SetCookie(w, cookie)
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error errorInfo `json:"error"`
}

type errorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Error: errorInfo{Code: code, Message: message}})
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.New("invalid request body")
	}
	return nil
}
