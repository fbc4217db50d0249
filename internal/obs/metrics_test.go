package obs

import "testing"

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                          "/",
		"/metrics":                  "/metrics",
		"/v1/auth/handshake":        "/v1/auth/handshake",
		"/v1/auth/check?verbose=1":  "/v1/auth/check",
		"/v1/accounts/01J9ABCDEF":   "/v1/accounts/:id",
		"/v1/accounts/":             "/v1/accounts/",
		"/v1/me":                    "/v1/me",
	}
	for input, expected := range cases {
		if got := CanonicalPath(input); got != expected {
			t.Fatalf("CanonicalPath(%q)=%q, want %q", input, got, expected)
		}
	}
}
