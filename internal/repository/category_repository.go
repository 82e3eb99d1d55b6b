package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/bean-counter/internal/model"
)

type CategoryRepo struct{ DB *sql.DB }

func NewCategoryRepo(db *sql.DB) *CategoryRepo { return &CategoryRepo{DB: db} }

var _ Audited[model.Category] = (*CategoryRepo)(nil)

const categoryCols = "id,name,description,icon,color,created_at,updated_at"

func scanCategory(row scanner) (model.Category, error) {
	var c model.Category
	err := row.Scan(&c.ID, &c.Name, &c.Description, &c.Icon, &c.Color, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

// List returns all categories ordered by name.
func (r *CategoryRepo) List(ctx context.Context) ([]model.Category, error) {
	rows, err := r.DB.QueryContext(ctx, "SELECT "+categoryCols+" FROM categories ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Category
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *CategoryRepo) GetByID(ctx context.Context, id string) (model.Category, error) {
	return getCategory(ctx, r.DB, id)
}

func getCategory(ctx context.Context, q execer, id string) (model.Category, error) {
	c, err := scanCategory(q.QueryRowContext(ctx, "SELECT "+categoryCols+" FROM categories WHERE id=? LIMIT 1", id))
	return c, notFound(err)
}

func (r *CategoryRepo) CreateWithLog(ctx context.Context, c *model.Category, meta AuditMeta) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	c.CreatedAt, c.UpdatedAt = now, now
	return inTx(ctx, r.DB, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO categories (id,name,description,icon,color,created_at,updated_at) VALUES (?,?,?,?,?,?,?)",
			c.ID, c.Name, c.Description, c.Icon, c.Color, c.CreatedAt, c.UpdatedAt); err != nil {
			return err
		}
		return writeLog(ctx, tx, meta, ActionCreate, c.ID, nil, c)
	})
}

func (r *CategoryRepo) UpdateWithLog(ctx context.Context, c *model.Category, meta AuditMeta) error {
	return inTx(ctx, r.DB, func(tx *sql.Tx) error {
		before, err := getCategory(ctx, tx, c.ID)
		if err != nil {
			return err
		}
		c.CreatedAt = before.CreatedAt
		c.UpdatedAt = time.Now().UTC()
		if _, err := tx.ExecContext(ctx,
			"UPDATE categories SET name=?,description=?,icon=?,color=?,updated_at=? WHERE id=?",
			c.Name, c.Description, c.Icon, c.Color, c.UpdatedAt, c.ID); err != nil {
			return err
		}
		return writeLog(ctx, tx, meta, ActionUpdate, c.ID, before, c)
	})
}

// DeleteWithLog removes a category that no inventory item references;
// otherwise ErrConflict.
func (r *CategoryRepo) DeleteWithLog(ctx context.Context, id string, meta AuditMeta) (model.Category, error) {
	var before model.Category
	err := inTx(ctx, r.DB, func(tx *sql.Tx) error {
		var err error
		if before, err = getCategory(ctx, tx, id); err != nil {
			return err
		}
		var items int
		if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM inventory_items WHERE category_id=?", id).Scan(&items); err != nil {
			return err
		}
		if items > 0 {
			return ErrConflict
		}
		res, err := tx.ExecContext(ctx, "DELETE FROM categories WHERE id=?", id)
		if err != nil {
			return err
		}
		if err := affectedOne(res); err != nil {
			return err
		}
		return writeLog(ctx, tx, meta, ActionDelete, id, before, nil)
	})
	return before, err
}
