package migrate

import (
	"context"
	"testing"
	"testing/fstest"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestUpAppliesPendingInOrder(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	fsys := fstest.MapFS{
		"0002_second.up.sql": {Data: []byte("create table b (id text);")},
		"0001_first.up.sql":  {Data: []byte("create table a (id text);")},
	}

	mock.ExpectExec("create table if not exists schema_migrations").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("select name from schema_migrations").
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("0001_first.up.sql"))

	mock.ExpectBegin()
	mock.ExpectExec("create table b").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()
	mock.ExpectExec("insert into schema_migrations").
		WithArgs("0002_second.up.sql", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	mgr := NewManager(db, fsys)
	if err := mgr.Up(context.Background()); err != nil {
		t.Fatalf("Up: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestDownRequiresCounterpart(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	fsys := fstest.MapFS{
		"0001_first.up.sql": {Data: []byte("create table a (id text);")},
	}

	mock.ExpectExec("create table if not exists schema_migrations").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("select name from schema_migrations order by applied_at asc").
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("0001_first.up.sql"))

	mgr := NewManager(db, fsys)
	if err := mgr.Down(context.Background()); err == nil {
		t.Fatal("expected error for missing down migration")
	}
}

func TestSplitStatements(t *testing.T) {
	stmts := splitStatements("insert into t values ('a;b'); create index i on t (x);")
	if len(stmts) != 2 {
		t.Fatalf("expected 2 statements, got %d: %q", len(stmts), stmts)
	}
}
