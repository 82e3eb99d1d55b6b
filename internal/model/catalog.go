package model

import "time"

// Inventory status values.  Discontinued is only ever set explicitly.
const (
	StatusInStock      = "in_stock"
	StatusLowStock     = "low_stock"
	StatusWarning      = "warning"
	StatusOutOfStock   = "out_of_stock"
	StatusDiscontinued = "discontinued"
)

// Category groups inventory items.
type Category struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Icon        string    `json:"icon"`
	Color       string    `json:"color"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// InventoryItem is a stocked item.  Prices are kept in cents.
type InventoryItem struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Description    string    `json:"description"`
	CategoryID     string    `json:"category_id"`
	Unit           string    `json:"unit"`
	Quantity       float64   `json:"quantity"`
	MinimumStock   float64   `json:"minimum_stock"`
	UnitPriceCents int64     `json:"unit_price_cents"`
	Status         string    `json:"status"`
	CreatedBy      *string   `json:"created_by,omitempty"`
	UpdatedBy      *string   `json:"updated_by,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// InventoryStatus derives the stock status from quantity and the
// configured minimum.  At or below the minimum is a warning; up to one
// and a half times the minimum is low stock.
func InventoryStatus(quantity, minimumStock float64) string {
	if quantity == 0 {
		return StatusOutOfStock
	}
	if minimumStock <= 0 {
		return StatusInStock
	}
	ratio := quantity / minimumStock
	switch {
	case ratio <= 1:
		return StatusWarning
	case ratio <= 1.5:
		return StatusLowStock
	default:
		return StatusInStock
	}
}

// ActionLog is an audit row written alongside every audited mutation.
// Before and After hold JSON snapshots of the record.
type ActionLog struct {
	ID        string
	UserID    *string
	Module    string
	Submodule string
	Action    string // create | update | delete
	RecordID  string
	Before    []byte
	After     []byte
	CreatedAt time.Time
}
