package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// HandleListAlerts returns the alert feed. ?unresolved_only=true restricts it
// to open alerts, mirroring the upstream filter.
func (h *Handler) HandleListAlerts(c echo.Context) error {
	unresolvedOnly := c.QueryParam("unresolved_only") == "true"
	page, err := h.alerts.List(c.Request().Context(), unresolvedOnly)
	if err != nil {
		return FromUpstream(err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"alerts": page.Results,
		"count":  page.Count,
	})
}
