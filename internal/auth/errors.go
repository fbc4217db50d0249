package auth

import "errors"

var (
	// ErrDecryption covers every malformed or mismatched hybrid payload.
	// Callers must map it to one generic invalid-credential response so the
	// handshake endpoint cannot be used as a decryption oracle.
	ErrDecryption = errors.New("auth: decryption failed")

	// ErrInvalidSignature indicates the token signature did not verify.
	ErrInvalidSignature = errors.New("auth: invalid token signature")

	// ErrExpiredToken indicates a well-formed token past its expiry.
	ErrExpiredToken = errors.New("auth: token expired")

	// ErrAccountMissing indicates a well-signed bearer token naming an
	// account that no longer exists.
	ErrAccountMissing = errors.New("auth: account missing")

	// ErrAccountBlocked indicates the token's account has been blocked.
	ErrAccountBlocked = errors.New("auth: account blocked")

	ErrAccountNotFound  = errors.New("auth: account not found")
	ErrPasswordMismatch = errors.New("auth: password mismatch")
	ErrPermissionDenied = errors.New("auth: permission denied")
)
