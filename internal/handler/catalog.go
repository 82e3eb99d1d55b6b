package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/bean-counter/internal/model"
)

type categoryReq struct {
	Name        string `json:"name" validate:"required,max=100"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
	Color       string `json:"color"`
}

func (r categoryReq) model() model.Category {
	return model.Category{Name: r.Name, Description: r.Description, Icon: r.Icon, Color: r.Color}
}

type itemReq struct {
	Name           string  `json:"name" validate:"required,max=150"`
	Description    string  `json:"description"`
	CategoryID     string  `json:"categoryId" validate:"required"`
	Unit           string  `json:"unit"`
	Quantity       float64 `json:"quantity" validate:"gte=0"`
	MinimumStock   float64 `json:"minimumStock" validate:"gte=0"`
	UnitPriceCents int64   `json:"unitPriceCents" validate:"gte=0"`
	Discontinued   bool    `json:"discontinued"`
}

func (r itemReq) model() model.InventoryItem {
	it := model.InventoryItem{
		Name: r.Name, Description: r.Description, CategoryID: r.CategoryID, Unit: r.Unit,
		Quantity: r.Quantity, MinimumStock: r.MinimumStock, UnitPriceCents: r.UnitPriceCents,
	}
	if r.Discontinued {
		it.Status = model.StatusDiscontinued
	}
	return it
}

func (h *DashboardHandler) ListCategories(c echo.Context) error {
	ctx, cancel := timeout(c)
	defer cancel()
	cats, err := h.Catalog.ListCategories(ctx)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, cats)
}

func (h *DashboardHandler) GetCategory(c echo.Context) error {
	ctx, cancel := timeout(c)
	defer cancel()
	cat, err := h.Catalog.GetCategory(ctx, c.Param("id"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, cat)
}

func (h *DashboardHandler) CreateCategory(c echo.Context) error {
	var req categoryReq
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx, cancel := timeout(c)
	defer cancel()
	cat, err := h.Catalog.CreateCategory(ctx, h.actor(c), req.model())
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusCreated, cat)
}

func (h *DashboardHandler) UpdateCategory(c echo.Context) error {
	var req categoryReq
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx, cancel := timeout(c)
	defer cancel()
	cat, err := h.Catalog.UpdateCategory(ctx, h.actor(c), c.Param("id"), req.model())
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, cat)
}

func (h *DashboardHandler) DeleteCategory(c echo.Context) error {
	ctx, cancel := timeout(c)
	defer cancel()
	if err := h.Catalog.DeleteCategory(ctx, h.actor(c), c.Param("id")); err != nil {
		return fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *DashboardHandler) ListItems(c echo.Context) error {
	ctx, cancel := timeout(c)
	defer cancel()
	items, err := h.Catalog.ListItems(ctx, c.QueryParam("category"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *DashboardHandler) GetItem(c echo.Context) error {
	ctx, cancel := timeout(c)
	defer cancel()
	it, err := h.Catalog.GetItem(ctx, c.Param("id"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, it)
}

func (h *DashboardHandler) CreateItem(c echo.Context) error {
	var req itemReq
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx, cancel := timeout(c)
	defer cancel()
	it, err := h.Catalog.CreateItem(ctx, h.actor(c), req.model())
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusCreated, it)
}

func (h *DashboardHandler) UpdateItem(c echo.Context) error {
	var req itemReq
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx, cancel := timeout(c)
	defer cancel()
	it, err := h.Catalog.UpdateItem(ctx, h.actor(c), c.Param("id"), req.model())
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, it)
}

func (h *DashboardHandler) DeleteItem(c echo.Context) error {
	ctx, cancel := timeout(c)
	defer cancel()
	if err := h.Catalog.DeleteItem(ctx, h.actor(c), c.Param("id")); err != nil {
		return fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
