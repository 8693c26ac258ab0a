package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"github.com/posterwatch/posterwatch/internal/app/domain/watch"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return New(db), mock
}

func TestCreateWatchNormalizesHandle(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO watches").
		WithArgs(sqlmock.AnyArg(), "exampleuser", "user", "", true, sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	created, err := store.CreateWatch(context.Background(), watch.Watch{Handle: " ExampleUser ", PageType: watch.PageTypeUser, Active: true})
	if err != nil {
		t.Fatalf("create watch: %v", err)
	}
	if created.Handle != "exampleuser" {
		t.Fatalf("expected normalized handle, got %q", created.Handle)
	}
	if created.ID == "" {
		t.Fatal("expected generated ID")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestGetWatchByHandle(t *testing.T) {
	store, mock := newMockStore(t)

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"id", "handle", "page_type", "schedule", "active", "last_checked_at", "created_at", "updated_at"}).
		AddRow("w1", "exampleuser", "user", "", true, now, now, now)
	mock.ExpectQuery("SELECT (.+) FROM watches WHERE handle").
		WithArgs("exampleuser").
		WillReturnRows(rows)

	got, err := store.GetWatchByHandle(context.Background(), "ExampleUser")
	if err != nil {
		t.Fatalf("get by handle: %v", err)
	}
	if got.ID != "w1" || got.PageType != watch.PageTypeUser {
		t.Fatalf("unexpected watch %+v", got)
	}
	if got.LastCheckedAt.IsZero() {
		t.Fatal("expected last checked timestamp")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestDeleteWatchNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("DELETE FROM watches WHERE id").
		WithArgs("missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.DeleteWatch(context.Background(), "missing")
	if !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected sql.ErrNoRows, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSeenPosters(t *testing.T) {
	store, mock := newMockStore(t)

	rows := sqlmock.NewRows([]string{"poster"}).AddRow("alice").AddRow("bob")
	mock.ExpectQuery("SELECT poster FROM sightings WHERE watch_id").
		WithArgs("w1").
		WillReturnRows(rows)

	posters, err := store.SeenPosters(context.Background(), "w1")
	if err != nil {
		t.Fatalf("seen posters: %v", err)
	}
	if len(posters) != 2 || posters[0] != "alice" || posters[1] != "bob" {
		t.Fatalf("unexpected posters %v", posters)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCountSightings(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT COUNT").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(5))

	total, err := store.CountSightings(context.Background())
	if err != nil {
		t.Fatalf("count sightings: %v", err)
	}
	if total != 5 {
		t.Fatalf("expected 5, got %d", total)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
