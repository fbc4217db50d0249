package httpapi

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"penlight.org/internal/audit"
	"penlight.org/internal/auth"
	"penlight.org/internal/obs"
)

type handshakeRequest struct {
	// Secret is the shared application secret; when Key is present it is
	// the AES ciphertext of that secret instead.
	Secret string `json:"secret"`
	// Key is the RSA-wrapped ephemeral AES key, base64.
	Key string `json:"key,omitempty"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

type signInRequest struct {
	Email    string `json:"email,omitempty"`
	Username string `json:"username,omitempty"`
	Password string `json:"password"`
}

func (a *API) handlePublicKey(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(a.engine.PublicKeyPEM()))
}

// handleHandshake issues an anonymous Basic token to callers proving
// knowledge of the application secret. Every failure collapses into one
// generic response: the endpoint must not leak which step failed.
func (a *API) handleHandshake(w http.ResponseWriter, r *http.Request) {
	var req handshakeRequest
	if err := decodeJSON(r, &req); err != nil {
		obs.Handshake("invalid")
		writeError(w, http.StatusBadRequest, "INVALID_CREDENTIAL", "invalid credential")
		return
	}

	secret := req.Secret
	if req.Key != "" {
		plain, err := a.engine.DecryptHybrid(req.Key, req.Secret)
		if err != nil {
			obs.Handshake("invalid")
			writeError(w, http.StatusBadRequest, "INVALID_CREDENTIAL", "invalid credential")
			return
		}
		secret = plain
	}

	if subtle.ConstantTimeCompare([]byte(secret), []byte(a.opts.AppSecret)) != 1 {
		obs.Handshake("invalid")
		writeError(w, http.StatusBadRequest, "INVALID_CREDENTIAL", "invalid credential")
		return
	}

	token, err := a.engine.SignToken(nil)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL", "token generation failed")
		return
	}

	obs.Handshake("ok")
	_ = audit.LogEvent(r.Context(), "auth.handshake", map[string]any{"hybrid": req.Key != ""})
	a.setAuthCookie(w, auth.TypeBasic, token)
	writeJSON(w, http.StatusOK, tokenResponse{Token: token})
}

// handleSignIn exchanges account credentials for a Bearer token. Failure
// codes are distinct to support targeted client messaging; the resulting
// account-enumeration tradeoff is accepted.
func (a *API) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var req signInRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_INPUT", err.Error())
		return
	}

	identifier := strings.TrimSpace(req.Email)
	if identifier == "" {
		identifier = strings.TrimSpace(req.Username)
	}
	if identifier == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "INVALID_INPUT", "either email or username must be provided")
		return
	}

	creds, err := a.accounts.FindCredentials(r.Context(), identifier)
	if err != nil {
		if errors.Is(err, auth.ErrAccountNotFound) {
			obs.SignIn("not_found")
			writeError(w, http.StatusUnauthorized, "ACCOUNT_NOT_FOUND", "account not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "INTERNAL", "sign-in failed")
		return
	}
	if creds.Blocked {
		obs.SignIn("blocked")
		writeError(w, http.StatusForbidden, "ACCOUNT_BLOCKED", "account has been blocked")
		return
	}
	if subtle.ConstantTimeCompare([]byte(a.engine.Hash(req.Password)), []byte(creds.PasswordDigest)) != 1 {
		obs.SignIn("mismatch")
		writeError(w, http.StatusUnauthorized, "PASSWORD_MISMATCH", "password mismatch")
		return
	}

	token, err := a.engine.SignToken(map[string]string{"id": creds.ID})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL", "token generation failed")
		return
	}

	obs.SignIn("ok")
	_ = audit.LogEvent(r.Context(), "auth.signin", map[string]any{"account_id": creds.ID})
	a.setAuthCookie(w, auth.TypeBearer, token)
	writeJSON(w, http.StatusOK, tokenResponse{Token: token})
}

// handleSignOut replaces the caller's credential with a fresh anonymous
// Basic token rather than clearing it, leaving a valid credential behind.
func (a *API) handleSignOut(w http.ResponseWriter, r *http.Request) {
	token, err := a.engine.SignToken(nil)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL", "token generation failed")
		return
	}

	_ = audit.LogEvent(r.Context(), "auth.signout", nil)
	a.setAuthCookie(w, auth.TypeBasic, token)
	writeJSON(w, http.StatusOK, map[string]any{"result": true, "token": token})
}

// handleCheckAuth reports whether the supplied credential's signature and
// expiry are currently valid. Live account state is not consulted.
func (a *API) handleCheckAuth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"valid": auth.CredentialValidFromContext(r.Context()),
	})
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.IdentityFromContext(r.Context())
	switch id.Kind {
	case auth.IdentityUser:
		roles := make([]string, len(id.Roles))
		for i, role := range id.Roles {
			roles[i] = string(role)
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"kind":  "user",
			"id":    id.UserID,
			"roles": roles,
		})
	default:
		writeJSON(w, http.StatusOK, map[string]any{"kind": "app"})
	}
}

type promoteRequest struct {
	Roles []string `json:"roles"`
}

func (a *API) handlePromoteRoles(w http.ResponseWriter, r *http.Request) {
	accountID := r.PathValue("id")
	var req promoteRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_INPUT", err.Error())
		return
	}
	roles := auth.ParseRoles(req.Roles)
	if len(roles) == 0 {
		writeError(w, http.StatusBadRequest, "INVALID_INPUT", "at least one known role is required")
		return
	}

	if err := a.accounts.PromoteRoles(r.Context(), accountID, roles); err != nil {
		if errors.Is(err, auth.ErrAccountMissing) {
			writeError(w, http.StatusNotFound, "NOT_FOUND", "account not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "INTERNAL", "role update failed")
		return
	}

	_ = audit.LogEvent(r.Context(), "auth.promote", map[string]any{"account_id": accountID, "roles": req.Roles})
	writeJSON(w, http.StatusOK, map[string]any{"result": true})
}

func (a *API) handleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	accountID := r.PathValue("id")

	if err := a.accounts.Anonymize(r.Context(), accountID, a.engine.Hash); err != nil {
		if errors.Is(err, auth.ErrAccountMissing) {
			writeError(w, http.StatusNotFound, "NOT_FOUND", "account not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "INTERNAL", "account deletion failed")
		return
	}

	_ = audit.LogEvent(r.Context(), "auth.anonymize", map[string]any{"account_id": accountID})
	writeJSON(w, http.StatusOK, map[string]any{"result": true})
}
