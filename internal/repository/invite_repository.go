package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/bean-counter/internal/model"
)

// InviteRepo persists pending registrations in user_invites.
type InviteRepo struct{ DB *sql.DB }

func NewInviteRepo(db *sql.DB) *InviteRepo { return &InviteRepo{DB: db} }

var _ Audited[model.UserInvite] = (*InviteRepo)(nil)

const inviteSelect = `SELECT i.id,i.email,i.first_name,i.last_name,i.role_id,COALESCE(r.name,''),i.token,
	i.expires_at,i.used_at,i.created_by,i.created_at
	FROM user_invites i LEFT JOIN roles r ON r.id=i.role_id`

func scanInvite(row scanner) (model.UserInvite, error) {
	var (
		inv  model.UserInvite
		used sql.NullTime
	)
	err := row.Scan(&inv.ID, &inv.Email, &inv.FirstName, &inv.LastName, &inv.RoleID, &inv.RoleName, &inv.Token,
		&inv.ExpiresAt, &used, &inv.CreatedBy, &inv.CreatedAt)
	if err != nil {
		return model.UserInvite{}, err
	}
	if used.Valid {
		t := used.Time
		inv.UsedAt = &t
	}
	return inv, nil
}

// GetByToken looks up an invite by its single-use token.
func (r *InviteRepo) GetByToken(ctx context.Context, token string) (model.UserInvite, error) {
	inv, err := scanInvite(r.DB.QueryRowContext(ctx, inviteSelect+" WHERE i.token=? LIMIT 1", token))
	return inv, notFound(err)
}

// GetByID looks up an invite by id.
func (r *InviteRepo) GetByID(ctx context.Context, id string) (model.UserInvite, error) {
	return getInvite(ctx, r.DB, id)
}

func getInvite(ctx context.Context, q execer, id string) (model.UserInvite, error) {
	inv, err := scanInvite(q.QueryRowContext(ctx, inviteSelect+" WHERE i.id=? LIMIT 1", id))
	return inv, notFound(err)
}

// EmailTaken reports whether an invite is pending for email.
func (r *InviteRepo) EmailTaken(ctx context.Context, email string) (bool, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM user_invites WHERE email=?", NormalizeEmail(email)).Scan(&n)
	return n > 0, err
}

// List returns pending invites, newest first.
func (r *InviteRepo) List(ctx context.Context) ([]model.UserInvite, error) {
	rows, err := r.DB.QueryContext(ctx, inviteSelect+" ORDER BY i.created_at DESC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.UserInvite
	for rows.Next() {
		inv, err := scanInvite(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

// CreateWithLog inserts the invite.  A duplicate email or token yields
// ErrEmailExists.
func (r *InviteRepo) CreateWithLog(ctx context.Context, inv *model.UserInvite, meta AuditMeta) error {
	if inv.ID == "" {
		inv.ID = uuid.NewString()
	}
	inv.Email = NormalizeEmail(inv.Email)
	inv.CreatedAt = time.Now().UTC()
	return inTx(ctx, r.DB, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO user_invites (id,email,first_name,last_name,role_id,token,expires_at,created_by,created_at)
			 VALUES (?,?,?,?,?,?,?,?,?)`,
			inv.ID, inv.Email, inv.FirstName, inv.LastName, inv.RoleID, inv.Token, inv.ExpiresAt.UTC(), inv.CreatedBy, inv.CreatedAt)
		if isDuplicate(err) {
			return ErrEmailExists
		}
		if err != nil {
			return err
		}
		return writeLog(ctx, tx, meta, ActionCreate, inv.ID, nil, auditInvite(*inv))
	})
}

// UpdateWithLog edits the invitee's email, names and role.  A duplicate
// email yields ErrEmailExists.
func (r *InviteRepo) UpdateWithLog(ctx context.Context, inv *model.UserInvite, meta AuditMeta) error {
	inv.Email = NormalizeEmail(inv.Email)
	return inTx(ctx, r.DB, func(tx *sql.Tx) error {
		before, err := getInvite(ctx, tx, inv.ID)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			"UPDATE user_invites SET email=?,first_name=?,last_name=?,role_id=? WHERE id=?",
			inv.Email, inv.FirstName, inv.LastName, inv.RoleID, inv.ID)
		if isDuplicate(err) {
			return ErrEmailExists
		}
		if err != nil {
			return err
		}
		return writeLog(ctx, tx, meta, ActionUpdate, inv.ID, auditInvite(before), auditInvite(*inv))
	})
}

// DeleteWithLog withdraws a pending invite.
func (r *InviteRepo) DeleteWithLog(ctx context.Context, id string, meta AuditMeta) (model.UserInvite, error) {
	var before model.UserInvite
	err := inTx(ctx, r.DB, func(tx *sql.Tx) error {
		var err error
		if before, err = getInvite(ctx, tx, id); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, "DELETE FROM user_invites WHERE id=?", id)
		if err != nil {
			return err
		}
		if err := affectedOne(res); err != nil {
			return err
		}
		return writeLog(ctx, tx, meta, ActionDelete, id, auditInvite(before), nil)
	})
	return before, err
}

// Accept consumes the invite and creates u in one transaction.  The
// invite row is deleted conditionally on it still being unexpired, so a
// second acceptance of the same token finds nothing and gets
// ErrNotFound.
func (r *InviteRepo) Accept(ctx context.Context, inviteID string, u *model.User, meta AuditMeta) error {
	return inTx(ctx, r.DB, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			"DELETE FROM user_invites WHERE id=? AND expires_at>?", inviteID, time.Now().UTC())
		if err != nil {
			return err
		}
		if err := affectedOne(res); err != nil {
			return err
		}
		if err := insertUser(ctx, tx, u); err != nil {
			return err
		}
		return writeLog(ctx, tx, meta, ActionCreate, u.ID, nil, auditUser(*u))
	})
}

func auditInvite(inv model.UserInvite) map[string]any {
	return map[string]any{
		"id":         inv.ID,
		"email":      inv.Email,
		"first_name": inv.FirstName,
		"last_name":  inv.LastName,
		"role_id":    inv.RoleID,
		"expires_at": inv.ExpiresAt,
		"created_by": inv.CreatedBy,
	}
}
