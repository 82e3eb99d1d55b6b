package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/bean-counter/internal/model"
	"github.com/iliyamo/bean-counter/internal/rbac"
)

// RoleRepo persists roles and their permission links.  It also serves
// rbac.RoleStore, which is why RoleIDForUser lives here.
type RoleRepo struct{ DB *sql.DB }

func NewRoleRepo(db *sql.DB) *RoleRepo { return &RoleRepo{DB: db} }

var (
	_ Audited[model.Role] = (*RoleRepo)(nil)
	_ rbac.RoleStore      = (*RoleRepo)(nil)
)

// RoleIDForUser returns the user's current role id, read fresh on every
// call.  A deactivated user resolves like a missing one.
func (r *RoleRepo) RoleIDForUser(ctx context.Context, userID string) (string, error) {
	var roleID string
	err := r.DB.QueryRowContext(ctx, "SELECT role_id FROM users WHERE id=? AND is_active=1 LIMIT 1", userID).Scan(&roleID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", rbac.ErrUserNotFound
	}
	return roleID, err
}

// PermissionsForRole returns the permissions linked to roleID.
func (r *RoleRepo) PermissionsForRole(ctx context.Context, roleID string) ([]model.Permission, error) {
	return rolePermissions(ctx, r.DB, roleID)
}

func rolePermissions(ctx context.Context, q execer, roleID string) ([]model.Permission, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT p.id,p.module,p.action,p.submodule FROM permissions p
		 JOIN role_permissions rp ON rp.permission_id=p.id
		 WHERE rp.role_id=? ORDER BY p.module,p.submodule,p.action`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Permission
	for rows.Next() {
		var p model.Permission
		if err := rows.Scan(&p.ID, &p.Module, &p.Action, &p.Submodule); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// GetByID returns the role with its permissions.
func (r *RoleRepo) GetByID(ctx context.Context, id string) (model.Role, error) {
	return getRole(ctx, r.DB, id)
}

func getRole(ctx context.Context, q execer, id string) (model.Role, error) {
	var role model.Role
	err := q.QueryRowContext(ctx,
		`SELECT r.id,r.name,r.description,r.created_at,r.updated_at,
		 (SELECT COUNT(*) FROM users u WHERE u.role_id=r.id)
		 FROM roles r WHERE r.id=? LIMIT 1`, id).
		Scan(&role.ID, &role.Name, &role.Description, &role.CreatedAt, &role.UpdatedAt, &role.UsersCount)
	if err != nil {
		return model.Role{}, notFound(err)
	}
	if role.Permissions, err = rolePermissions(ctx, q, id); err != nil {
		return model.Role{}, err
	}
	return role, nil
}

// GetByName returns the role named name, without permissions.
func (r *RoleRepo) GetByName(ctx context.Context, name string) (model.Role, error) {
	var role model.Role
	err := r.DB.QueryRowContext(ctx,
		"SELECT id,name,description,created_at,updated_at FROM roles WHERE name=? LIMIT 1", strings.TrimSpace(name)).
		Scan(&role.ID, &role.Name, &role.Description, &role.CreatedAt, &role.UpdatedAt)
	return role, notFound(err)
}

// List returns every role with its user count and permissions.
func (r *RoleRepo) List(ctx context.Context) ([]model.Role, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT r.id,r.name,r.description,r.created_at,r.updated_at,COUNT(u.id)
		 FROM roles r LEFT JOIN users u ON u.role_id=r.id
		 GROUP BY r.id,r.name,r.description,r.created_at,r.updated_at
		 ORDER BY r.name`)
	if err != nil {
		return nil, err
	}
	var out []model.Role
	idx := map[string]int{}
	for rows.Next() {
		var role model.Role
		if err := rows.Scan(&role.ID, &role.Name, &role.Description, &role.CreatedAt, &role.UpdatedAt, &role.UsersCount); err != nil {
			rows.Close()
			return nil, err
		}
		idx[role.ID] = len(out)
		out = append(out, role)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	prow, err := r.DB.QueryContext(ctx,
		`SELECT rp.role_id,p.id,p.module,p.action,p.submodule FROM role_permissions rp
		 JOIN permissions p ON p.id=rp.permission_id ORDER BY p.module,p.submodule,p.action`)
	if err != nil {
		return nil, err
	}
	defer prow.Close()
	for prow.Next() {
		var (
			roleID string
			p      model.Permission
		)
		if err := prow.Scan(&roleID, &p.ID, &p.Module, &p.Action, &p.Submodule); err != nil {
			return nil, err
		}
		if i, ok := idx[roleID]; ok {
			out[i].Permissions = append(out[i].Permissions, p)
		}
	}
	return out, prow.Err()
}

// NameTaken reports whether another role (not exceptID) uses name.
func (r *RoleRepo) NameTaken(ctx context.Context, name, exceptID string) (bool, error) {
	var n int
	err := r.DB.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM roles WHERE name=? AND id<>?", strings.TrimSpace(name), exceptID).Scan(&n)
	return n > 0, err
}

// Assignments counts the users and pending invites holding roleID.
func (r *RoleRepo) Assignments(ctx context.Context, roleID string) (users, invites int, err error) {
	return roleAssignments(ctx, r.DB, roleID)
}

func roleAssignments(ctx context.Context, q execer, roleID string) (users, invites int, err error) {
	err = q.QueryRowContext(ctx,
		`SELECT (SELECT COUNT(*) FROM users WHERE role_id=?),
		        (SELECT COUNT(*) FROM user_invites WHERE role_id=?)`, roleID, roleID).Scan(&users, &invites)
	return users, invites, err
}

func linkPermissions(ctx context.Context, q execer, roleID string, perms []model.Permission) error {
	for _, p := range perms {
		if _, err := q.ExecContext(ctx,
			"INSERT INTO role_permissions (role_id, permission_id) VALUES (?,?)", roleID, p.ID); err != nil {
			return err
		}
	}
	return nil
}

// CreateWithLog inserts the role and links role.Permissions by id.
func (r *RoleRepo) CreateWithLog(ctx context.Context, role *model.Role, meta AuditMeta) error {
	if role.ID == "" {
		role.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	role.CreatedAt, role.UpdatedAt = now, now
	return inTx(ctx, r.DB, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			"INSERT INTO roles (id,name,description,created_at,updated_at) VALUES (?,?,?,?,?)",
			role.ID, role.Name, role.Description, role.CreatedAt, role.UpdatedAt)
		if isDuplicate(err) {
			return ErrConflict
		}
		if err != nil {
			return err
		}
		if err := linkPermissions(ctx, tx, role.ID, role.Permissions); err != nil {
			return err
		}
		return writeLog(ctx, tx, meta, ActionCreate, role.ID, nil, auditRole(*role))
	})
}

// UpdateWithLog rewrites name, description and the full permission list.
func (r *RoleRepo) UpdateWithLog(ctx context.Context, role *model.Role, meta AuditMeta) error {
	return inTx(ctx, r.DB, func(tx *sql.Tx) error {
		before, err := getRole(ctx, tx, role.ID)
		if err != nil {
			return err
		}
		role.CreatedAt = before.CreatedAt
		role.UpdatedAt = time.Now().UTC()
		_, err = tx.ExecContext(ctx, "UPDATE roles SET name=?,description=?,updated_at=? WHERE id=?",
			role.Name, role.Description, role.UpdatedAt, role.ID)
		if isDuplicate(err) {
			return ErrConflict
		}
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM role_permissions WHERE role_id=?", role.ID); err != nil {
			return err
		}
		if err := linkPermissions(ctx, tx, role.ID, role.Permissions); err != nil {
			return err
		}
		return writeLog(ctx, tx, meta, ActionUpdate, role.ID, auditRole(before), auditRole(*role))
	})
}

// DeleteWithLog deletes an unassigned role.  Assignment is re-checked
// inside the transaction; a role still held by a user or a pending
// invite yields ErrConflict.
func (r *RoleRepo) DeleteWithLog(ctx context.Context, id string, meta AuditMeta) (model.Role, error) {
	var before model.Role
	err := inTx(ctx, r.DB, func(tx *sql.Tx) error {
		var err error
		if before, err = getRole(ctx, tx, id); err != nil {
			return err
		}
		users, invites, err := roleAssignments(ctx, tx, id)
		if err != nil {
			return err
		}
		if users > 0 || invites > 0 {
			return ErrConflict
		}
		res, err := tx.ExecContext(ctx, "DELETE FROM roles WHERE id=?", id)
		if err != nil {
			return err
		}
		if err := affectedOne(res); err != nil {
			return err
		}
		return writeLog(ctx, tx, meta, ActionDelete, id, auditRole(before), nil)
	})
	return before, err
}

func auditRole(role model.Role) map[string]any {
	return map[string]any{
		"id":          role.ID,
		"name":        role.Name,
		"description": role.Description,
		"permissions": rbac.Keys(role.Permissions),
	}
}
