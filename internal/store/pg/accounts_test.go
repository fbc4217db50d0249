package pg

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"penlight.org/internal/auth"
)

func newMockStore(t *testing.T) (*AccountStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewAccountStore(db), mock
}

func TestFindLive(t *testing.T) {
	store, mock := newMockStore(t)

	rows := sqlmock.NewRows([]string{"id", "roles", "blocked", "deleted"}).
		AddRow("user-1", []byte(`["admin","blogWriter","bogus"]`), false, false)
	mock.ExpectQuery("select id, roles, blocked, deleted from accounts").
		WithArgs("user-1").
		WillReturnRows(rows)

	account, err := store.FindLive(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("FindLive: %v", err)
	}
	if account.ID != "user-1" || account.Blocked {
		t.Fatalf("unexpected account: %+v", account)
	}
	if len(account.Roles) != 2 {
		t.Fatalf("unknown roles must be dropped: %v", account.Roles)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestFindLiveMissing(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("select id, roles, blocked, deleted from accounts").
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"id", "roles", "blocked", "deleted"}))

	if _, err := store.FindLive(context.Background(), "ghost"); !errors.Is(err, auth.ErrAccountMissing) {
		t.Fatalf("expected ErrAccountMissing, got %v", err)
	}
}

func TestFindCredentials(t *testing.T) {
	store, mock := newMockStore(t)

	rows := sqlmock.NewRows([]string{"id", "password", "blocked"}).
		AddRow("user-1", "digest-value", true)
	mock.ExpectQuery("select id, password, blocked from accounts").
		WithArgs("writer@example.org").
		WillReturnRows(rows)

	creds, err := store.FindCredentials(context.Background(), "writer@example.org")
	if err != nil {
		t.Fatalf("FindCredentials: %v", err)
	}
	if creds.ID != "user-1" || creds.PasswordDigest != "digest-value" || !creds.Blocked {
		t.Fatalf("unexpected credentials: %+v", creds)
	}
}

func TestFindCredentialsNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("select id, password, blocked from accounts").
		WithArgs("nobody").
		WillReturnRows(sqlmock.NewRows([]string{"id", "password", "blocked"}))

	if _, err := store.FindCredentials(context.Background(), "nobody"); !errors.Is(err, auth.ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
}

func TestPromoteRoles(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("update accounts set roles").
		WithArgs("user-1", []byte(`["admin","blogAdmin"]`)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.PromoteRoles(context.Background(), "user-1", []auth.Role{auth.RoleAdmin, auth.RoleBlogAdmin})
	if err != nil {
		t.Fatalf("PromoteRoles: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPromoteRolesMissing(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("update accounts set roles").
		WithArgs("ghost", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.PromoteRoles(context.Background(), "ghost", []auth.Role{auth.RoleCommon})
	if !errors.Is(err, auth.ErrAccountMissing) {
		t.Fatalf("expected ErrAccountMissing, got %v", err)
	}
}

func TestAnonymize(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("select email, username from accounts").
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"email", "username"}).AddRow("w@example.org", "writer"))
	mock.ExpectExec("update accounts set email").
		WithArgs("user-1", "digest:w@example.org", "digest:writer").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	digest := func(v string) string { return "digest:" + v }
	if err := store.Anonymize(context.Background(), "user-1", digest); err != nil {
		t.Fatalf("Anonymize: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
