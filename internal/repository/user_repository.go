package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/bean-counter/internal/model"
)

type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

var _ Audited[model.User] = (*UserRepo)(nil)

const userSelect = `SELECT u.id,u.email,u.password_hash,u.first_name,u.last_name,u.full_name,u.phone_number,
	u.role_id,COALESCE(r.name,''),u.is_active,u.email_verified_at,u.created_at,u.updated_at
	FROM users u LEFT JOIN roles r ON r.id=u.role_id`

type scanner interface{ Scan(dest ...any) error }

func scanUser(row scanner) (model.User, error) {
	var (
		u        model.User
		phone    sql.NullString
		verified sql.NullTime
	)
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.FirstName, &u.LastName, &u.FullName, &phone,
		&u.RoleID, &u.RoleName, &u.IsActive, &verified, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return model.User{}, err
	}
	if phone.Valid {
		u.PhoneNumber = &phone.String
	}
	if verified.Valid {
		t := verified.Time
		u.EmailVerifiedAt = &t
	}
	return u, nil
}

// NormalizeEmail lower-cases and trims an email address.
func NormalizeEmail(email string) string { return strings.ToLower(strings.TrimSpace(email)) }

// GetByEmail fetches a user by normalized email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (model.User, error) {
	u, err := scanUser(r.DB.QueryRowContext(ctx, userSelect+" WHERE u.email=? LIMIT 1", NormalizeEmail(email)))
	return u, notFound(err)
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id string) (model.User, error) {
	return getUser(ctx, r.DB, id)
}

func getUser(ctx context.Context, q execer, id string) (model.User, error) {
	u, err := scanUser(q.QueryRowContext(ctx, userSelect+" WHERE u.id=? LIMIT 1", id))
	return u, notFound(err)
}

// EmailTaken reports whether a user already owns email.
func (r *UserRepo) EmailTaken(ctx context.Context, email string) (bool, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM users WHERE email=?", NormalizeEmail(email)).Scan(&n)
	return n > 0, err
}

// List returns all users with their role names, newest first.
func (r *UserRepo) List(ctx context.Context) ([]model.User, error) {
	rows, err := r.DB.QueryContext(ctx, userSelect+" ORDER BY u.created_at DESC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func insertUser(ctx context.Context, q execer, u *model.User) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	u.Email = NormalizeEmail(u.Email)
	now := time.Now().UTC()
	u.CreatedAt, u.UpdatedAt = now, now
	_, err := q.ExecContext(ctx,
		`INSERT INTO users (id,email,password_hash,first_name,last_name,full_name,phone_number,role_id,is_active,email_verified_at,created_at,updated_at)
		 VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		u.ID, u.Email, u.PasswordHash, u.FirstName, u.LastName, u.FullName, u.PhoneNumber,
		u.RoleID, u.IsActive, u.EmailVerifiedAt, u.CreatedAt, u.UpdatedAt)
	if isDuplicate(err) {
		return ErrEmailExists
	}
	return err
}

// CreateWithLog inserts u and its audit row.
func (r *UserRepo) CreateWithLog(ctx context.Context, u *model.User, meta AuditMeta) error {
	return inTx(ctx, r.DB, func(tx *sql.Tx) error {
		if err := insertUser(ctx, tx, u); err != nil {
			return err
		}
		return writeLog(ctx, tx, meta, ActionCreate, u.ID, nil, auditUser(*u))
	})
}

// UpdateWithLog writes the email, profile fields, role and active flag.
// The password is not touched here.  Deactivating the user revokes all
// of its sessions in the same transaction.
func (r *UserRepo) UpdateWithLog(ctx context.Context, u *model.User, meta AuditMeta) error {
	u.Email = NormalizeEmail(u.Email)
	return inTx(ctx, r.DB, func(tx *sql.Tx) error {
		before, err := getUser(ctx, tx, u.ID)
		if err != nil {
			return err
		}
		u.UpdatedAt = time.Now().UTC()
		_, err = tx.ExecContext(ctx,
			`UPDATE users SET email=?,first_name=?,last_name=?,full_name=?,phone_number=?,role_id=?,is_active=?,updated_at=? WHERE id=?`,
			u.Email, u.FirstName, u.LastName, u.FullName, u.PhoneNumber, u.RoleID, u.IsActive, u.UpdatedAt, u.ID)
		if isDuplicate(err) {
			return ErrEmailExists
		}
		if err != nil {
			return err
		}
		if before.IsActive && !u.IsActive {
			if _, err := revokeAllForUser(ctx, tx, u.ID); err != nil {
				return err
			}
		}
		return writeLog(ctx, tx, meta, ActionUpdate, u.ID, auditUser(before), auditUser(*u))
	})
}

// DeleteWithLog removes the user (sessions cascade) and returns the
// deleted row.
func (r *UserRepo) DeleteWithLog(ctx context.Context, id string, meta AuditMeta) (model.User, error) {
	var before model.User
	err := inTx(ctx, r.DB, func(tx *sql.Tx) error {
		var err error
		if before, err = getUser(ctx, tx, id); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, "DELETE FROM users WHERE id=?", id)
		if err != nil {
			return err
		}
		if err := affectedOne(res); err != nil {
			return err
		}
		return writeLog(ctx, tx, meta, ActionDelete, id, auditUser(before), nil)
	})
	return before, err
}

// auditUser is the snapshot stored in action_logs.  The password hash
// never leaves the users table.
func auditUser(u model.User) map[string]any {
	return map[string]any{
		"id":           u.ID,
		"email":        u.Email,
		"first_name":   u.FirstName,
		"last_name":    u.LastName,
		"full_name":    u.FullName,
		"phone_number": u.PhoneNumber,
		"role_id":      u.RoleID,
		"is_active":    u.IsActive,
	}
}
