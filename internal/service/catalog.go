package service

import (
	"context"
	"errors"
	"strings"

	"github.com/iliyamo/bean-counter/internal/model"
	"github.com/iliyamo/bean-counter/internal/realtime"
	"github.com/iliyamo/bean-counter/internal/repository"
)

// CategoryStore is the category persistence.
type CategoryStore interface {
	repository.Audited[model.Category]
	List(ctx context.Context) ([]model.Category, error)
	GetByID(ctx context.Context, id string) (model.Category, error)
}

// InventoryStore is the inventory persistence.
type InventoryStore interface {
	repository.Audited[model.InventoryItem]
	List(ctx context.Context, categoryID string) ([]model.InventoryItem, error)
	GetByID(ctx context.Context, id string) (model.InventoryItem, error)
}

// CatalogService manages categories and inventory items.  Every mutation
// is audited by the store and announced on the activity channel.
type CatalogService struct {
	Categories CategoryStore
	Items      InventoryStore
	Activity   realtime.Emitter
}

func notFoundAs(err error, what string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return problem(repository.ErrNotFound, "%s not found", what)
	}
	return err
}

func (s *CatalogService) ListCategories(ctx context.Context) ([]model.Category, error) {
	return s.Categories.List(ctx)
}

func (s *CatalogService) GetCategory(ctx context.Context, id string) (model.Category, error) {
	c, err := s.Categories.GetByID(ctx, id)
	return c, notFoundAs(err, "category")
}

func (s *CatalogService) CreateCategory(ctx context.Context, actor Actor, c model.Category) (model.Category, error) {
	c.ID = ""
	c.Name = strings.TrimSpace(c.Name)
	if err := required("name", c.Name); err != nil {
		return model.Category{}, err
	}
	if err := s.Categories.CreateWithLog(ctx, &c, actor.meta(ModuleCategory, "")); err != nil {
		return model.Category{}, err
	}
	emit(ctx, s.Activity, actor, repository.ActionCreate, ModuleCategory, "", c.ID)
	return c, nil
}

func (s *CatalogService) UpdateCategory(ctx context.Context, actor Actor, id string, c model.Category) (model.Category, error) {
	c.ID = id
	c.Name = strings.TrimSpace(c.Name)
	if err := required("name", c.Name); err != nil {
		return model.Category{}, err
	}
	if err := s.Categories.UpdateWithLog(ctx, &c, actor.meta(ModuleCategory, "")); err != nil {
		return model.Category{}, notFoundAs(err, "category")
	}
	emit(ctx, s.Activity, actor, repository.ActionUpdate, ModuleCategory, "", c.ID)
	return c, nil
}

// DeleteCategory fails with a conflict while items reference it.
func (s *CatalogService) DeleteCategory(ctx context.Context, actor Actor, id string) error {
	if _, err := s.Categories.DeleteWithLog(ctx, id, actor.meta(ModuleCategory, "")); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return problem(repository.ErrConflict, "category still has inventory items")
		}
		return notFoundAs(err, "category")
	}
	emit(ctx, s.Activity, actor, repository.ActionDelete, ModuleCategory, "", id)
	return nil
}

func (s *CatalogService) ListItems(ctx context.Context, categoryID string) ([]model.InventoryItem, error) {
	return s.Items.List(ctx, categoryID)
}

func (s *CatalogService) GetItem(ctx context.Context, id string) (model.InventoryItem, error) {
	it, err := s.Items.GetByID(ctx, id)
	return it, notFoundAs(err, "inventory item")
}

func (s *CatalogService) validateItem(ctx context.Context, it *model.InventoryItem) error {
	it.Name = strings.TrimSpace(it.Name)
	if err := required("name", it.Name, "category", it.CategoryID); err != nil {
		return err
	}
	if it.Quantity < 0 || it.MinimumStock < 0 || it.UnitPriceCents < 0 {
		return problem(ErrInvalidInput, "quantity, minimum stock and price cannot be negative")
	}
	if it.Unit == "" {
		it.Unit = "pcs"
	}
	if it.Status != model.StatusDiscontinued {
		it.Status = ""
	}
	if _, err := s.Categories.GetByID(ctx, it.CategoryID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return problem(ErrInvalidInput, "category does not exist")
		}
		return err
	}
	return nil
}

func (s *CatalogService) CreateItem(ctx context.Context, actor Actor, it model.InventoryItem) (model.InventoryItem, error) {
	it.ID = ""
	if err := s.validateItem(ctx, &it); err != nil {
		return model.InventoryItem{}, err
	}
	if err := s.Items.CreateWithLog(ctx, &it, actor.meta(ModuleInventory, "")); err != nil {
		return model.InventoryItem{}, err
	}
	emit(ctx, s.Activity, actor, repository.ActionCreate, ModuleInventory, "", it.ID)
	return it, nil
}

func (s *CatalogService) UpdateItem(ctx context.Context, actor Actor, id string, it model.InventoryItem) (model.InventoryItem, error) {
	it.ID = id
	if err := s.validateItem(ctx, &it); err != nil {
		return model.InventoryItem{}, err
	}
	if err := s.Items.UpdateWithLog(ctx, &it, actor.meta(ModuleInventory, "")); err != nil {
		return model.InventoryItem{}, notFoundAs(err, "inventory item")
	}
	emit(ctx, s.Activity, actor, repository.ActionUpdate, ModuleInventory, "", it.ID)
	return it, nil
}

func (s *CatalogService) DeleteItem(ctx context.Context, actor Actor, id string) error {
	if _, err := s.Items.DeleteWithLog(ctx, id, actor.meta(ModuleInventory, "")); err != nil {
		return notFoundAs(err, "inventory item")
	}
	emit(ctx, s.Activity, actor, repository.ActionDelete, ModuleInventory, "", id)
	return nil
}
