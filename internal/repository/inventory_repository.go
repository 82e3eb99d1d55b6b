package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/bean-counter/internal/model"
)

type InventoryRepo struct{ DB *sql.DB }

func NewInventoryRepo(db *sql.DB) *InventoryRepo { return &InventoryRepo{DB: db} }

var _ Audited[model.InventoryItem] = (*InventoryRepo)(nil)

const inventoryCols = `id,name,description,category_id,unit,quantity,minimum_stock,unit_price_cents,status,
	created_by,updated_by,created_at,updated_at`

func scanItem(row scanner) (model.InventoryItem, error) {
	var (
		it                 model.InventoryItem
		createdBy, updated sql.NullString
	)
	err := row.Scan(&it.ID, &it.Name, &it.Description, &it.CategoryID, &it.Unit, &it.Quantity, &it.MinimumStock,
		&it.UnitPriceCents, &it.Status, &createdBy, &updated, &it.CreatedAt, &it.UpdatedAt)
	if err != nil {
		return model.InventoryItem{}, err
	}
	if createdBy.Valid {
		it.CreatedBy = &createdBy.String
	}
	if updated.Valid {
		it.UpdatedBy = &updated.String
	}
	return it, nil
}

// List returns items, optionally filtered by category.
func (r *InventoryRepo) List(ctx context.Context, categoryID string) ([]model.InventoryItem, error) {
	q := "SELECT " + inventoryCols + " FROM inventory_items"
	var args []any
	if categoryID != "" {
		q += " WHERE category_id=?"
		args = append(args, categoryID)
	}
	rows, err := r.DB.QueryContext(ctx, q+" ORDER BY name", args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.InventoryItem
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func (r *InventoryRepo) GetByID(ctx context.Context, id string) (model.InventoryItem, error) {
	return getItem(ctx, r.DB, id)
}

func getItem(ctx context.Context, q execer, id string) (model.InventoryItem, error) {
	it, err := scanItem(q.QueryRowContext(ctx, "SELECT "+inventoryCols+" FROM inventory_items WHERE id=? LIMIT 1", id))
	return it, notFound(err)
}

// deriveStatus recomputes the status unless the item is discontinued.
func deriveStatus(it *model.InventoryItem) {
	if it.Status == model.StatusDiscontinued {
		return
	}
	it.Status = model.InventoryStatus(it.Quantity, it.MinimumStock)
}

// CreateWithLog inserts the item; meta.UserID becomes created_by.
func (r *InventoryRepo) CreateWithLog(ctx context.Context, it *model.InventoryItem, meta AuditMeta) error {
	if it.ID == "" {
		it.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	it.CreatedAt, it.UpdatedAt = now, now
	it.CreatedBy, it.UpdatedBy = meta.UserID, meta.UserID
	deriveStatus(it)
	return inTx(ctx, r.DB, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO inventory_items (id,name,description,category_id,unit,quantity,minimum_stock,unit_price_cents,status,created_by,updated_by,created_at,updated_at)
			 VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
			it.ID, it.Name, it.Description, it.CategoryID, it.Unit, it.Quantity, it.MinimumStock, it.UnitPriceCents,
			it.Status, it.CreatedBy, it.UpdatedBy, it.CreatedAt, it.UpdatedAt); err != nil {
			return err
		}
		return writeLog(ctx, tx, meta, ActionCreate, it.ID, nil, it)
	})
}

// UpdateWithLog rewrites the item and recomputes its status.
func (r *InventoryRepo) UpdateWithLog(ctx context.Context, it *model.InventoryItem, meta AuditMeta) error {
	return inTx(ctx, r.DB, func(tx *sql.Tx) error {
		before, err := getItem(ctx, tx, it.ID)
		if err != nil {
			return err
		}
		it.CreatedAt, it.CreatedBy = before.CreatedAt, before.CreatedBy
		it.UpdatedAt, it.UpdatedBy = time.Now().UTC(), meta.UserID
		deriveStatus(it)
		if _, err := tx.ExecContext(ctx,
			`UPDATE inventory_items SET name=?,description=?,category_id=?,unit=?,quantity=?,minimum_stock=?,
			 unit_price_cents=?,status=?,updated_by=?,updated_at=? WHERE id=?`,
			it.Name, it.Description, it.CategoryID, it.Unit, it.Quantity, it.MinimumStock,
			it.UnitPriceCents, it.Status, it.UpdatedBy, it.UpdatedAt, it.ID); err != nil {
			return err
		}
		return writeLog(ctx, tx, meta, ActionUpdate, it.ID, before, it)
	})
}

func (r *InventoryRepo) DeleteWithLog(ctx context.Context, id string, meta AuditMeta) (model.InventoryItem, error) {
	var before model.InventoryItem
	err := inTx(ctx, r.DB, func(tx *sql.Tx) error {
		var err error
		if before, err = getItem(ctx, tx, id); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, "DELETE FROM inventory_items WHERE id=?", id)
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
