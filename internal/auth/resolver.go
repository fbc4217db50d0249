package auth

import (
	"context"
	"errors"
	"fmt"
)

// Account is the live account state consulted during Bearer resolution.
type Account struct {
	ID      string
	Roles   []Role
	Blocked bool
	Deleted bool
}

// AccountCredentials is the sign-in view of an account: the stored password
// digest plus the flags needed for the sign-in error taxonomy.
type AccountCredentials struct {
	ID             string
	PasswordDigest string
	Blocked        bool
}

// AccountStore is the live lookup consulted on every Bearer resolution. The
// lookup may block on I/O; implementations must honor ctx cancellation.
type AccountStore interface {
	// FindLive returns the account by id, excluding deleted rows.
	// Returns ErrAccountMissing when no such account exists.
	FindLive(ctx context.Context, id string) (*Account, error)
}

// Rewrite is a credential the transport layer must write back to the caller.
// It is the resolver's only side effect, made explicit.
type Rewrite struct {
	Type  CredentialType
	Token string
}

// Resolver turns an inbound credential into an Identity. One resolution per
// request, before any authorization decision; resolutions are independent
// and safe to run concurrently.
type Resolver struct {
	engine   *Engine
	accounts AccountStore
}

// NewResolver composes the engine with the live account store.
func NewResolver(engine *Engine, accounts AccountStore) *Resolver {
	return &Resolver{engine: engine, accounts: accounts}
}

// Resolve runs the per-request state machine. cred is nil when the request
// carried no credential.
//
// A failed verification is a soft failure: the identity degrades to None and
// the returned Rewrite downgrades the outgoing credential to Expired; the
// request proceeds as anonymous. A well-signed Bearer token naming a missing
// or blocked account is a hard failure: ErrAccountMissing or
// ErrAccountBlocked, and the request must be rejected. The asymmetry is
// deliberate: an expired or garbled token is a recoverable condition, a
// valid token for a disqualified account is a security violation.
func (r *Resolver) Resolve(ctx context.Context, cred *Credential) (Identity, *Rewrite, error) {
	if cred == nil {
		return Identity{}, nil, nil
	}

	payload, err := r.engine.VerifyToken(cred.Token)
	if err != nil {
		return Identity{}, &Rewrite{Type: TypeExpired, Token: ""}, nil
	}

	switch cred.Type {
	case TypeBasic:
		return Identity{Kind: IdentityApp}, nil, nil

	case TypeBearer:
		id := payload["id"]
		if id == "" {
			return Identity{}, nil, ErrAccountMissing
		}
		account, err := r.accounts.FindLive(ctx, id)
		if err != nil {
			if errors.Is(err, ErrAccountMissing) {
				return Identity{}, nil, ErrAccountMissing
			}
			// Identity cannot be safely assumed when the store is down.
			return Identity{}, nil, fmt.Errorf("auth: account lookup: %w", err)
		}
		if account.Blocked {
			return Identity{}, nil, ErrAccountBlocked
		}
		return Identity{
			Kind:    IdentityUser,
			UserID:  account.ID,
			Roles:   account.Roles,
			Blocked: false,
			Deleted: account.Deleted,
		}, nil, nil

	default:
		// A verifiable token under an unknown scheme establishes nothing.
		return Identity{}, nil, nil
	}
}
