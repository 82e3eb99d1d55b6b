package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/bean-counter/internal/model"
)

// PasswordResetRepo stores single-use reset tokens.
type PasswordResetRepo struct{ DB *sql.DB }

func NewPasswordResetRepo(db *sql.DB) *PasswordResetRepo { return &PasswordResetRepo{DB: db} }

// Create stores a reset token for userID.
func (r *PasswordResetRepo) Create(ctx context.Context, userID, token string, exp time.Time) (model.PasswordReset, error) {
	pr := model.PasswordReset{ID: uuid.NewString(), UserID: userID, Token: token, ExpiresAt: exp.UTC(), CreatedAt: time.Now().UTC()}
	_, err := r.DB.ExecContext(ctx,
		"INSERT INTO password_resets (id,user_id,token,expires_at,created_at) VALUES (?,?,?,?,?)",
		pr.ID, pr.UserID, pr.Token, pr.ExpiresAt, pr.CreatedAt)
	if err != nil {
		return model.PasswordReset{}, err
	}
	return pr, nil
}

// GetByToken returns the reset row for token, used or not.
func (r *PasswordResetRepo) GetByToken(ctx context.Context, token string) (model.PasswordReset, error) {
	var (
		pr   model.PasswordReset
		used sql.NullTime
	)
	err := r.DB.QueryRowContext(ctx,
		"SELECT id,user_id,token,expires_at,used_at,created_at FROM password_resets WHERE token=? LIMIT 1", token).
		Scan(&pr.ID, &pr.UserID, &pr.Token, &pr.ExpiresAt, &used, &pr.CreatedAt)
	if err != nil {
		return model.PasswordReset{}, notFound(err)
	}
	if used.Valid {
		t := used.Time
		pr.UsedAt = &t
	}
	return pr, nil
}

// Consume marks the reset used, stores the new password hash and
// revokes every session of the user, all in one transaction.  A reset
// that was already used or has expired yields ErrNotFound.
func (r *PasswordResetRepo) Consume(ctx context.Context, resetID, userID, passwordHash string) (revoked int64, err error) {
	err = inTx(ctx, r.DB, func(tx *sql.Tx) error {
		now := time.Now().UTC()
		res, err := tx.ExecContext(ctx,
			"UPDATE password_resets SET used_at=? WHERE id=? AND used_at IS NULL AND expires_at>?", now, resetID, now)
		if err != nil {
			return err
		}
		if err := affectedOne(res); err != nil {
			return err
		}
		res, err = tx.ExecContext(ctx, "UPDATE users SET password_hash=?,updated_at=? WHERE id=?", passwordHash, now, userID)
		if err != nil {
			return err
		}
		if err := affectedOne(res); err != nil {
			return err
		}
		revoked, err = revokeAllForUser(ctx, tx, userID)
		return err
	})
	return revoked, err
}
