package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/bean-counter/internal/model"
	"github.com/iliyamo/bean-counter/internal/utils"
)

func newSessionRepo(t *testing.T) (*SessionRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewSessionRepo(db, utils.BcryptHasher{Cost: bcrypt.MinCost}), mock
}

func TestSessionCreateStoresHashOnly(t *testing.T) {
	repo, mock := newSessionRepo(t)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO sessions")).
		WithArgs(sqlmock.AnyArg(), "u1", sqlmock.AnyArg(), sqlmock.AnyArg(), false, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	s, err := repo.Create(context.Background(), "u1", "raw-refresh", time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if s.RefreshTokenHash == "raw-refresh" || s.RefreshTokenHash == utils.RefreshDigest("raw-refresh") {
		t.Fatal("refresh token stored without bcrypt")
	}
	if _, ok := repo.Match([]model.Session{s}, "raw-refresh"); !ok {
		t.Fatal("stored hash does not match its own token")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestSessionMatchPicksRightRow(t *testing.T) {
	repo, _ := newSessionRepo(t)
	h1, _ := repo.Hasher.Hash(utils.RefreshDigest("token-one"))
	h2, _ := repo.Hasher.Hash(utils.RefreshDigest("token-two"))
	rows := []model.Session{{ID: "s1", RefreshTokenHash: h1}, {ID: "s2", RefreshTokenHash: h2}}

	got, ok := repo.Match(rows, "token-two")
	if !ok || got.ID != "s2" {
		t.Fatalf("Match = %v %v, want s2", got.ID, ok)
	}
	if _, ok := repo.Match(rows, "token-three"); ok {
		t.Fatal("unknown token matched")
	}
}

func TestSessionRotate(t *testing.T) {
	repo, mock := newSessionRepo(t)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE sessions SET revoked=1 WHERE id=? AND revoked=0")).
		WithArgs("old").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO sessions")).
		WithArgs(sqlmock.AnyArg(), "u1", sqlmock.AnyArg(), sqlmock.AnyArg(), false, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	s, err := repo.Rotate(context.Background(), "old", "u1", "new-raw", time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("Rotate: %v", err)
	}
	if s.ID == "" || s.ID == "old" {
		t.Fatalf("unexpected new session id %q", s.ID)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestSessionRotateLosesRace(t *testing.T) {
	repo, mock := newSessionRepo(t)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE sessions SET revoked=1 WHERE id=? AND revoked=0")).
		WithArgs("old").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	_, err := repo.Rotate(context.Background(), "old", "u1", "new-raw", time.Now().Add(time.Hour))
	if !errors.Is(err, ErrAlreadyRevoked) {
		t.Fatalf("expected ErrAlreadyRevoked, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestSessionActiveForUser(t *testing.T) {
	repo, mock := newSessionRepo(t)
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("FROM sessions WHERE user_id=? AND revoked=0 AND expires_at>?")).
		WithArgs("u1", now).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "refresh_token_hash", "expires_at", "revoked", "created_at"}).
			AddRow("s1", "u1", "h", now.Add(time.Hour), false, now))

	got, err := repo.ActiveForUser(context.Background(), "u1", now)
	if err != nil {
		t.Fatalf("ActiveForUser: %v", err)
	}
	if len(got) != 1 || !got[0].Active(now) {
		t.Fatalf("unexpected sessions %+v", got)
	}
}

func TestSessionRevokeAllForUser(t *testing.T) {
	repo, mock := newSessionRepo(t)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE sessions SET revoked=1 WHERE user_id=? AND revoked=0")).
		WithArgs("u1").WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := repo.RevokeAllForUser(context.Background(), "u1")
	if err != nil || n != 3 {
		t.Fatalf("RevokeAllForUser = %d, %v", n, err)
	}
}

func TestSessionRevokeIsIdempotent(t *testing.T) {
	repo, mock := newSessionRepo(t)
	for _, n := range []int64{1, 0} {
		mock.ExpectExec(regexp.QuoteMeta("UPDATE sessions SET revoked=1 WHERE id=? AND revoked=0")).
			WithArgs("s1").WillReturnResult(sqlmock.NewResult(0, n))
	}

	for i := 0; i < 2; i++ {
		if err := repo.Revoke(context.Background(), "s1"); err != nil {
			t.Fatalf("revoke %d: %v", i+1, err)
		}
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}
