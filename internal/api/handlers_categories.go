package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/iot-monitor/dashboard/internal/models"
	"github.com/iot-monitor/dashboard/internal/upstream"
)

// HandleListCategories returns the full category list. Like the device list,
// it falls back to the offline snapshot when the upstream is unreachable.
func (h *Handler) HandleListCategories(c echo.Context) error {
	categories, err := h.categories.List(c.Request().Context())
	if err == nil {
		if h.snapshots != nil {
			if snapErr := h.snapshots.SaveCategories(categories); snapErr != nil {
				c.Logger().Warnf("snapshot save failed: %v", snapErr)
			}
		}
		return c.JSON(http.StatusOK, categories)
	}

	if ue, ok := err.(*upstream.Error); ok && ue.Status == 0 && h.snapshots != nil {
		if snap, snapErr := h.snapshots.Load(); snapErr == nil && len(snap.Categories) > 0 {
			return c.JSON(http.StatusOK, snap.Categories)
		}
	}
	return FromUpstream(err)
}

// HandleGetCategory returns one category.
func (h *Handler) HandleGetCategory(c echo.Context) error {
	id, err := pathInt(c, "id")
	if err != nil {
		return err
	}
	category, uerr := h.categories.Get(c.Request().Context(), id)
	if uerr != nil {
		return FromUpstream(uerr)
	}
	return c.JSON(http.StatusOK, category)
}

// HandleCreateCategory creates a category upstream.
func (h *Handler) HandleCreateCategory(c echo.Context) error {
	var req models.CategoryRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}
	if req.Name == "" {
		return NewValidationError("name")
	}

	category, err := h.categories.Create(c.Request().Context(), req)
	if err != nil {
		return FromUpstream(err)
	}
	return c.JSON(http.StatusCreated, category)
}

// HandleUpdateCategory replaces a category (PUT).
func (h *Handler) HandleUpdateCategory(c echo.Context) error {
	id, err := pathInt(c, "id")
	if err != nil {
		return err
	}
	var req models.CategoryRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}
	if req.Name == "" {
		return NewValidationError("name")
	}

	category, uerr := h.categories.Update(c.Request().Context(), id, req)
	if uerr != nil {
		return FromUpstream(uerr)
	}
	return c.JSON(http.StatusOK, category)
}

// HandlePatchCategory partially updates a category (PATCH).
func (h *Handler) HandlePatchCategory(c echo.Context) error {
	id, err := pathInt(c, "id")
	if err != nil {
		return err
	}
	var fields map[string]any
	if err := c.Bind(&fields); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}

	category, uerr := h.categories.PartialUpdate(c.Request().Context(), id, fields)
	if uerr != nil {
		return FromUpstream(uerr)
	}
	return c.JSON(http.StatusOK, category)
}

// HandleDeleteCategory removes a category.
func (h *Handler) HandleDeleteCategory(c echo.Context) error {
	id, err := pathInt(c, "id")
	if err != nil {
		return err
	}
	if uerr := h.categories.Delete(c.Request().Context(), id); uerr != nil {
		return FromUpstream(uerr)
	}
	return c.NoContent(http.StatusNoContent)
}
