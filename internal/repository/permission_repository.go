package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/google/uuid"

	"github.com/iliyamo/bean-counter/internal/model"
)

// PermissionRepo reads the permission catalog.  Permissions are created
// by the seed command only.
type PermissionRepo struct{ DB *sql.DB }

func NewPermissionRepo(db *sql.DB) *PermissionRepo { return &PermissionRepo{DB: db} }

// List returns the whole catalog ordered by module, submodule, action.
func (r *PermissionRepo) List(ctx context.Context) ([]model.Permission, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT id,module,action,submodule FROM permissions ORDER BY module,submodule,action")
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

// ByIDs returns the permissions whose id is in ids.  Unknown ids are
// simply absent from the result.
func (r *PermissionRepo) ByIDs(ctx context.Context, ids []string) ([]model.Permission, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := r.DB.QueryContext(ctx,
		"SELECT id,module,action,submodule FROM permissions WHERE id IN (?"+strings.Repeat(",?", len(ids)-1)+")",
		args...)
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

// Ensure inserts p unless a row with the same key exists and returns the
// stored row either way.
func (r *PermissionRepo) Ensure(ctx context.Context, p model.Permission) (model.Permission, error) {
	if _, err := r.DB.ExecContext(ctx,
		"INSERT IGNORE INTO permissions (id,module,action,submodule) VALUES (?,?,?,?)",
		uuid.NewString(), p.Module, p.Action, p.Submodule); err != nil {
		return model.Permission{}, err
	}
	err := r.DB.QueryRowContext(ctx,
		"SELECT id,module,action,submodule FROM permissions WHERE module=? AND action=? AND submodule=? LIMIT 1",
		p.Module, p.Action, p.Submodule).Scan(&p.ID, &p.Module, &p.Action, &p.Submodule)
	return p, notFound(err)
}
