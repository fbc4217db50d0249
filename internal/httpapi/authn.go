package httpapi

import (
	"errors"
	"net/http"

	"penlight.org/internal/auth"
	"penlight.org/internal/obs"
)

// credentialFromRequest reads the wire credential. When both the cookie and
// the header carry one, the cookie wins: an externally supplied header must
// not silently override an authenticated session cookie.
func credentialFromRequest(r *http.Request) *auth.Credential {
	if cookie, err := r.Cookie(auth.CredentialKey); err == nil {
		if cred, ok := auth.DecodeCredential(cookie.Value); ok {
			return &cred
		}
	}
	if cred, ok := auth.DecodeCredential(r.Header.Get(auth.CredentialKey)); ok {
		return &cred
	}
	return nil
}

// withAuth resolves the inbound credential exactly once per request, before
// any authorization decision. Soft failures proceed as anonymous with the
// credential rewritten to Expired; hard failures abort the request.
func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cred := credentialFromRequest(r)

		identity, rewrite, err := a.resolver.Resolve(r.Context(), cred)
		if err != nil {
			switch {
			case errors.Is(err, auth.ErrAccountMissing):
				obs.AuthResolution("rejected")
				writeError(w, http.StatusUnauthorized, "INVALID_TOKEN", "invalid authorization token")
			case errors.Is(err, auth.ErrAccountBlocked):
				obs.AuthResolution("rejected")
				writeError(w, http.StatusForbidden, "FORBIDDEN", "forbidden")
			default:
				obs.AuthResolution("error")
				writeError(w, http.StatusInternalServerError, "INTERNAL", "authentication error")
			}
			return
		}

		if rewrite != nil {
			obs.AuthResolution("downgraded")
			a.setAuthCookie(w, rewrite.Type, rewrite.Token)
		} else {
			switch identity.Kind {
			case auth.IdentityApp:
				obs.AuthResolution("app")
			case auth.IdentityUser:
				obs.AuthResolution("user")
			default:
				obs.AuthResolution("none")
			}
		}

		ctx := auth.ContextWithIdentity(r.Context(), identity)
		ctx = auth.ContextWithCredentialValid(ctx, cred != nil && rewrite == nil)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
