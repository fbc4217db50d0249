package auth

import "strings"

// CredentialType is the scheme half of a wire credential. Values are kept
// lowercased internally; EncodeCredential restores the canonical casing.
type CredentialType string

const (
	// TypeBasic is the anonymous app-level credential.
	TypeBasic CredentialType = "basic"
	// TypeBearer is a credential bound to one user id.
	TypeBearer CredentialType = "bearer"
	// TypeExpired is the sentinel written back after a failed verification.
	// It is not a cryptographic state; its token is always empty.
	TypeExpired CredentialType = "expired"
)

// CredentialKey is the cookie and header name the credential travels under.
const CredentialKey = "Authorization"

var wireNames = map[CredentialType]string{
	TypeBasic:   "Basic",
	TypeBearer:  "Bearer",
	TypeExpired: "Expired",
}

// Credential is a decoded wire credential.
type Credential struct {
	Type  CredentialType
	Token string
}

// EncodeCredential serializes a credential as "{Type} {token}".
func EncodeCredential(t CredentialType, token string) string {
	name, ok := wireNames[t]
	if !ok {
		name = string(t)
	}
	return name + " " + token
}

// DecodeCredential parses a raw "{Type} {token}" value. The type is
// lowercased; ok is false when raw is empty or lacks the separator.
func DecodeCredential(raw string) (Credential, bool) {
	if raw == "" {
		return Credential{}, false
	}
	typ, token, found := strings.Cut(raw, " ")
	if !found {
		return Credential{}, false
	}
	return Credential{Type: CredentialType(strings.ToLower(typ)), Token: token}, true
}
