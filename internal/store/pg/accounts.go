package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"penlight.org/internal/auth"
)

var _ auth.AccountStore = (*AccountStore)(nil)

// AccountStore implements the auth lookups over PostgreSQL. Account rows are
// owned by the blog's user management; this store only reads the fields the
// auth core needs and performs the anonymizing delete.
type AccountStore struct {
	db *sql.DB
}

// NewAccountStore wraps an open database handle.
func NewAccountStore(db *sql.DB) *AccountStore {
	return &AccountStore{db: db}
}

// FindLive returns the account by id, excluding deleted rows. Blocked rows
// are returned with the flag set; the resolver decides what that means.
func (s *AccountStore) FindLive(ctx context.Context, id string) (*auth.Account, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, roles, blocked, deleted from accounts where id=$1 and deleted=false`, id,
	)
	var (
		account auth.Account
		roles   []byte
	)
	if err := row.Scan(&account.ID, &roles, &account.Blocked, &account.Deleted); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, auth.ErrAccountMissing
		}
		return nil, fmt.Errorf("pg: find account %s: %w", id, err)
	}
	var names []string
	if len(roles) > 0 {
		if err := json.Unmarshal(roles, &names); err != nil {
			return nil, fmt.Errorf("pg: decode roles for %s: %w", id, err)
		}
	}
	account.Roles = auth.ParseRoles(names)
	return &account, nil
}

// FindCredentials returns the sign-in view of an account matched by email or
// username. Only email-provider accounts hold a password; social accounts
// never match here.
func (s *AccountStore) FindCredentials(ctx context.Context, identifier string) (auth.AccountCredentials, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, password, blocked from accounts
		 where deleted=false and provider='email' and (email=$1 or username=$1)`,
		identifier,
	)
	var creds auth.AccountCredentials
	if err := row.Scan(&creds.ID, &creds.PasswordDigest, &creds.Blocked); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return auth.AccountCredentials{}, auth.ErrAccountNotFound
		}
		return auth.AccountCredentials{}, fmt.Errorf("pg: find credentials: %w", err)
	}
	return creds, nil
}

// PromoteRoles replaces the account's role set. Visible on the very next
// resolution; tokens are never consulted for roles.
func (s *AccountStore) PromoteRoles(ctx context.Context, id string, roles []auth.Role) error {
	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = string(r)
	}
	encoded, err := json.Marshal(names)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`update accounts set roles=$2, updated_at=now() where id=$1 and deleted=false`,
		id, encoded,
	)
	if err != nil {
		return fmt.Errorf("pg: promote roles for %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return auth.ErrAccountMissing
	}
	return nil
}

// Anonymize irreversibly digests the personal fields of an account and
// marks it deleted. digest must be the engine's deterministic hash so the
// anonymized values stay tamper-evident.
func (s *AccountStore) Anonymize(ctx context.Context, id string, digest func(string) string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("pg: begin anonymize: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx,
		`select email, username from accounts where id=$1 and deleted=false for update`, id,
	)
	var email, username string
	if err := row.Scan(&email, &username); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return auth.ErrAccountMissing
		}
		return fmt.Errorf("pg: load account %s: %w", id, err)
	}

	_, err = tx.ExecContext(ctx,
		`update accounts set email=$2, username=$3, password='', deleted=true, updated_at=now() where id=$1`,
		id, digest(email), digest(username),
	)
	if err != nil {
		return fmt.Errorf("pg: anonymize account %s: %w", id, err)
	}
	return tx.Commit()
}
