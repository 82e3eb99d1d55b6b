package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/bean-counter/internal/model"
	"github.com/iliyamo/bean-counter/internal/utils"
)

// SessionRepo is the credential store: one row per issued refresh token.
// Only bcrypt(sha256(token)) is persisted, so a lookup by token is a scan
// of the user's active rows with a hash compare on each.
type SessionRepo struct {
	DB     *sql.DB
	Hasher utils.Hasher
}

func NewSessionRepo(db *sql.DB, hasher utils.Hasher) *SessionRepo {
	return &SessionRepo{DB: db, Hasher: hasher}
}

const sessionCols = "id,user_id,refresh_token_hash,expires_at,revoked,created_at"

// Create hashes refreshRaw and inserts a new active session.
func (r *SessionRepo) Create(ctx context.Context, userID, refreshRaw string, exp time.Time) (model.Session, error) {
	hash, err := r.Hasher.Hash(utils.RefreshDigest(refreshRaw))
	if err != nil {
		return model.Session{}, err
	}
	s := model.Session{ID: uuid.NewString(), UserID: userID, RefreshTokenHash: hash, ExpiresAt: exp.UTC(), CreatedAt: time.Now().UTC()}
	if err := insertSession(ctx, r.DB, s); err != nil {
		return model.Session{}, err
	}
	return s, nil
}

func insertSession(ctx context.Context, q execer, s model.Session) error {
	_, err := q.ExecContext(ctx,
		"INSERT INTO sessions (id, user_id, refresh_token_hash, expires_at, revoked, created_at) VALUES (?,?,?,?,?,?)",
		s.ID, s.UserID, s.RefreshTokenHash, s.ExpiresAt, false, s.CreatedAt)
	return err
}

// ActiveForUser lists the user's non-revoked sessions expiring after now.
func (r *SessionRepo) ActiveForUser(ctx context.Context, userID string, now time.Time) ([]model.Session, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT "+sessionCols+" FROM sessions WHERE user_id=? AND revoked=0 AND expires_at>? ORDER BY created_at DESC",
		userID, now.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Session
	for rows.Next() {
		var s model.Session
		if err := rows.Scan(&s.ID, &s.UserID, &s.RefreshTokenHash, &s.ExpiresAt, &s.Revoked, &s.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Match returns the session whose stored hash matches refreshRaw.
func (r *SessionRepo) Match(sessions []model.Session, refreshRaw string) (model.Session, bool) {
	digest := utils.RefreshDigest(refreshRaw)
	for _, s := range sessions {
		if r.Hasher.Compare(s.RefreshTokenHash, digest) {
			return s, true
		}
	}
	return model.Session{}, false
}

// Revoke marks one session revoked.  Revoking a row that is already
// revoked is a no-op.
func (r *SessionRepo) Revoke(ctx context.Context, id string) error {
	if err := revokeSession(ctx, r.DB, id); err != nil && !errors.Is(err, ErrAlreadyRevoked) {
		return err
	}
	return nil
}

// revokeSession is the conditional flip Rotate relies on: ErrAlreadyRevoked
// means another caller revoked the row first.

func revokeSession(ctx context.Context, q execer, id string) error {
	res, err := q.ExecContext(ctx, "UPDATE sessions SET revoked=1 WHERE id=? AND revoked=0", id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrAlreadyRevoked
	}
	return nil
}

// Rotate revokes oldID and inserts the session for newRaw in one
// transaction.  When two refreshes race on the same row only one of them
// sees its revoke affect a row; the other gets ErrAlreadyRevoked and
// nothing is inserted.
func (r *SessionRepo) Rotate(ctx context.Context, oldID, userID, newRaw string, exp time.Time) (model.Session, error) {
	hash, err := r.Hasher.Hash(utils.RefreshDigest(newRaw))
	if err != nil {
		return model.Session{}, err
	}
	s := model.Session{ID: uuid.NewString(), UserID: userID, RefreshTokenHash: hash, ExpiresAt: exp.UTC(), CreatedAt: time.Now().UTC()}
	err = inTx(ctx, r.DB, func(tx *sql.Tx) error {
		if err := revokeSession(ctx, tx, oldID); err != nil {
			return err
		}
		return insertSession(ctx, tx, s)
	})
	if err != nil {
		return model.Session{}, err
	}
	return s, nil
}

// RevokeAllForUser revokes every active session of userID.
func (r *SessionRepo) RevokeAllForUser(ctx context.Context, userID string) (int64, error) {
	return revokeAllForUser(ctx, r.DB, userID)
}

func revokeAllForUser(ctx context.Context, q execer, userID string) (int64, error) {
	res, err := q.ExecContext(ctx, "UPDATE sessions SET revoked=1 WHERE user_id=? AND revoked=0", userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// PurgeExpired deletes sessions that expired before cutoff and revoked
// sessions created before it.
func (r *SessionRepo) PurgeExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.DB.ExecContext(ctx,
		"DELETE FROM sessions WHERE expires_at<? OR (revoked=1 AND created_at<?)",
		cutoff.UTC(), cutoff.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
