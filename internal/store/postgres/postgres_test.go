package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/crucial707/radar/internal/store"
	"github.com/lib/pq"
)

func TestTable_SelectOrderedPage(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`SELECT \* FROM "posts" ORDER BY "created_at" DESC, "id" DESC LIMIT \$1 OFFSET \$2`).
		WithArgs(2, 2).
		WillReturnRows(sqlmock.NewRows([]string{"id", "content", "created_at"}).
			AddRow(1, []byte("p1"), created))

	rows, err := New(db).Table("posts").Select(context.Background(), store.Query{
		Order:  []store.Order{store.Desc("created_at"), store.Desc("id")},
		Limit:  2,
		Offset: 2,
	})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if len(rows) != 1 || rows[0]["content"] != "p1" {
		t.Errorf("unexpected rows: %+v", rows)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestTable_SelectFilters(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(`SELECT "id", "username" FROM "users" WHERE "username" = \$1 AND "id" <> \$2 AND "id" IN \(\$3, \$4\) LIMIT \$5`).
		WithArgs("alice", 7, 1, 2, 1).
		WillReturnRows(sqlmock.NewRows([]string{"id", "username"}))

	rows, err := New(db).Table("users").Select(context.Background(), store.Query{
		Columns: []string{"id", "username"},
		Filters: []store.Filter{store.Eq("username", "alice"), store.Neq("id", 7), store.In("id", []int{1, 2})},
		Limit:   1,
	})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("expected no rows, got %+v", rows)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestTable_SelectEmptyInMatchesNothing(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(`SELECT \* FROM "users" WHERE FALSE`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	if _, err := New(db).Table("users").Select(context.Background(), store.Query{
		Filters: []store.Filter{store.In("id", []int{})},
	}); err != nil {
		t.Fatalf("Select: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestTable_Insert(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(`INSERT INTO "users" \("email", "hashed_password", "username"\) VALUES \(\$1, \$2, \$3\) RETURNING \*`).
		WithArgs("a@example.com", "hash", "alice").
		WillReturnRows(sqlmock.NewRows([]string{"id", "username", "email", "is_active"}).
			AddRow(1, "alice", "a@example.com", true))

	row, err := New(db).Table("users").Insert(context.Background(), store.Row{
		"username":        "alice",
		"email":           "a@example.com",
		"hashed_password": "hash",
	})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if row["username"] != "alice" || row["is_active"] != true {
		t.Errorf("unexpected row: %+v", row)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestTable_InsertUniqueViolation(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(`INSERT INTO "users"`).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "users_email_key"})

	_, err = New(db).Table("users").Insert(context.Background(), store.Row{"email": "a@example.com"})
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestTable_InsertReturnsNothing(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(`INSERT INTO "posts"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err = New(db).Table("posts").Insert(context.Background(), store.Row{"content": "x"})
	if !errors.Is(err, store.ErrEmptyResult) {
		t.Fatalf("expected ErrEmptyResult, got %v", err)
	}
}

func TestTable_Update(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(`UPDATE "users" SET "bio" = \$1, "username" = \$2 WHERE "id" = \$3 RETURNING \*`).
		WithArgs("hi", "alice2", 1).
		WillReturnRows(sqlmock.NewRows([]string{"id", "username", "bio"}).AddRow(1, "alice2", "hi"))

	rows, err := New(db).Table("users").Update(context.Background(),
		[]store.Filter{store.Eq("id", 1)},
		store.Row{"username": "alice2", "bio": "hi"})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if len(rows) != 1 || rows[0]["username"] != "alice2" {
		t.Errorf("unexpected rows: %+v", rows)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestTable_Delete(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectExec(`DELETE FROM "posts" WHERE "id" = \$1`).
		WithArgs(5).
		WillReturnResult(sqlmock.NewResult(0, 1))

	n, err := New(db).Table("posts").Delete(context.Background(), []store.Filter{store.Eq("id", 5)})
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if n != 1 {
		t.Errorf("deleted: got %d, want 1", n)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestTable_RejectsBadIdentifiers(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	_, err = New(db).Table("users").Select(context.Background(), store.Query{
		Filters: []store.Filter{store.Eq("id; DROP TABLE users", 1)},
	})
	if !errors.Is(err, store.ErrInvalidQuery) {
		t.Fatalf("expected ErrInvalidQuery, got %v", err)
	}
}
