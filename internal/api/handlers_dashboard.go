package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/iot-monitor/dashboard/internal/models"
)

// dashboardView is the landing page payload: status buckets, a short preview
// of the device list and the open alerts.
type dashboardView struct {
	StatusCounts models.StatusCount `json:"statusCounts"`
	Devices      []models.Device    `json:"devices"`
	Alerts       []models.Alert     `json:"alerts"`
	AlertCount   int                `json:"alertCount"`
	Offline      bool               `json:"offline,omitempty"`
}

// dashboardPreviewSize caps the device preview on the landing page.
const dashboardPreviewSize = 5

// HandleDashboard assembles the landing page: full-collection status counts,
// the first few devices, and the unresolved alert feed. When the upstream is
// down the device half renders from the offline snapshot and the alert panel
// comes back empty rather than failing the whole page.
func (h *Handler) HandleDashboard(c echo.Context) error {
	devices, offline, err := h.fetchDevices(c)
	if err != nil {
		return err
	}

	view := dashboardView{
		StatusCounts: models.CountDevicesByStatus(devices),
		Devices:      devices,
		Offline:      offline,
	}
	if len(view.Devices) > dashboardPreviewSize {
		view.Devices = view.Devices[:dashboardPreviewSize]
	}

	if !offline {
		page, uerr := h.alerts.Unresolved(c.Request().Context())
		if uerr != nil {
			c.Logger().Warnf("alert fetch failed: %v", uerr)
		} else {
			view.Alerts = page.Results
			view.AlertCount = page.Count
		}
	}
	if view.Alerts == nil {
		view.Alerts = []models.Alert{}
	}

	return c.JSON(http.StatusOK, view)
}

// HandleStatusCounts returns just the status buckets, for the summary cards.
func (h *Handler) HandleStatusCounts(c echo.Context) error {
	devices, offline, err := h.fetchDevices(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{
		"counts":  models.CountDevicesByStatus(devices),
		"offline": offline,
	})
}
