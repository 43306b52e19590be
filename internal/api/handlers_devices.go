package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/iot-monitor/dashboard/internal/models"
	"github.com/iot-monitor/dashboard/internal/upstream"
)

// deviceListView is the device list page: the filtered slice plus the totals
// the paginator needs.
type deviceListView struct {
	Devices      []models.Device `json:"devices"`
	TotalRecords int             `json:"totalRecords"`
	Page         int             `json:"page"`
	PageSize     int             `json:"pageSize"`
	Offline      bool            `json:"offline,omitempty"`
}

// HandleListDevices fetches the whole collection upstream and applies the
// search/status/category filters and paging client-side, exactly as the
// browser build did over its already-fetched list.
func (h *Handler) HandleListDevices(c echo.Context) error {
	devices, offline, err := h.fetchDevices(c)
	if err != nil {
		return err
	}

	filtered := filterDevices(devices,
		c.QueryParam("search"),
		models.DeviceStatus(c.QueryParam("status")),
		c.QueryParam("category"),
	)

	page := queryInt(c, "page", 1)
	pageSize := queryInt(c, "page_size", 20)
	paged := paginateDevices(filtered, page, pageSize)

	return c.JSON(http.StatusOK, deviceListView{
		Devices:      paged,
		TotalRecords: len(filtered),
		Page:         page,
		PageSize:     pageSize,
		Offline:      offline,
	})
}

// fetchDevices loads the device collection, falling back to the offline
// snapshot when the upstream is unreachable.
func (h *Handler) fetchDevices(c echo.Context) ([]models.Device, bool, error) {
	page, err := h.devices.List(c.Request().Context())
	if err == nil {
		if h.snapshots != nil {
			if snapErr := h.snapshots.SaveDevices(page.Results); snapErr != nil {
				c.Logger().Warnf("snapshot save failed: %v", snapErr)
			}
		}
		return page.Results, false, nil
	}

	if ue, ok := err.(*upstream.Error); ok && ue.Status == 0 && h.snapshots != nil {
		snap, snapErr := h.snapshots.Load()
		if snapErr == nil && len(snap.Devices) > 0 {
			return snap.Devices, true, nil
		}
	}
	return nil, false, FromUpstream(err)
}

// HandleGetDevice returns one device.
func (h *Handler) HandleGetDevice(c echo.Context) error {
	id, err := pathInt(c, "id")
	if err != nil {
		return err
	}
	device, uerr := h.devices.Get(c.Request().Context(), id)
	if uerr != nil {
		return FromUpstream(uerr)
	}
	return c.JSON(http.StatusOK, device)
}

// HandleCreateDevice creates a device upstream.
func (h *Handler) HandleCreateDevice(c echo.Context) error {
	var req models.DeviceRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}
	if req.Name == "" {
		return NewValidationError("name")
	}
	if !models.ValidStatus(req.Status) {
		return NewValidationError("status")
	}

	device, err := h.devices.Create(c.Request().Context(), req)
	if err != nil {
		return FromUpstream(err)
	}
	return c.JSON(http.StatusCreated, device)
}

// HandleUpdateDevice replaces a device (PUT).
func (h *Handler) HandleUpdateDevice(c echo.Context) error {
	id, err := pathInt(c, "id")
	if err != nil {
		return err
	}
	var req models.DeviceRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}
	if !models.ValidStatus(req.Status) {
		return NewValidationError("status")
	}

	device, uerr := h.devices.Update(c.Request().Context(), id, req)
	if uerr != nil {
		return FromUpstream(uerr)
	}
	return c.JSON(http.StatusOK, device)
}

// HandlePatchDevice partially updates a device (PATCH).
func (h *Handler) HandlePatchDevice(c echo.Context) error {
	id, err := pathInt(c, "id")
	if err != nil {
		return err
	}
	var fields map[string]any
	if err := c.Bind(&fields); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}

	device, uerr := h.devices.PartialUpdate(c.Request().Context(), id, fields)
	if uerr != nil {
		return FromUpstream(uerr)
	}
	return c.JSON(http.StatusOK, device)
}

// HandleDeleteDevice removes a device.
func (h *Handler) HandleDeleteDevice(c echo.Context) error {
	id, err := pathInt(c, "id")
	if err != nil {
		return err
	}
	if uerr := h.devices.Delete(c.Request().Context(), id); uerr != nil {
		return FromUpstream(uerr)
	}
	return c.NoContent(http.StatusNoContent)
}

// deviceChartView is the device detail chart payload: series, statistics and
// the unit shared by the plotted measurements.
type deviceChartView struct {
	Chart      models.ChartData  `json:"chart"`
	Statistics models.Statistics `json:"statistics"`
	Unit       string            `json:"unit"`
	Count      int               `json:"count"`
	Offline    bool              `json:"offline,omitempty"`
}

// HandleDeviceChart builds the chart payload for a device: historical
// measurements (upstream, or the local archive when upstream is down),
// summary statistics and threshold reference lines for the selected metric.
func (h *Handler) HandleDeviceChart(c echo.Context) error {
	id, err := pathInt(c, "id")
	if err != nil {
		return err
	}

	period := models.TimePeriod(c.QueryParam("period"))
	if period != "" && !models.ValidPeriod(period) {
		return NewValidationError("period")
	}
	metric := c.QueryParam("metric")
	limit := queryInt(c, "limit", 0)

	ctx := c.Request().Context()
	device, uerr := h.devices.Get(ctx, id)
	if uerr != nil {
		return FromUpstream(uerr)
	}

	offline := false
	data, uerr := h.devices.AggregatedData(ctx, id, period, metric, limit)
	if uerr != nil {
		ue, ok := uerr.(*upstream.Error)
		if !ok || ue.Status != 0 || h.archive == nil {
			return FromUpstream(uerr)
		}
		data, err = h.archive.Aggregated(device.PublicID, period, metric, limit)
		if err != nil {
			return NewInternalError("history query failed", err)
		}
		offline = true
	}

	view := deviceChartView{Statistics: data.Statistics, Count: data.Count, Offline: offline}
	if len(data.Measurements) > 0 {
		view.Unit = data.Measurements[0].Unit
	}

	// Threshold overlay for the displayed metric; first-seen metric when none
	// was selected explicitly.
	chartMetric := metric
	if chartMetric == "" && len(data.Measurements) > 0 {
		chartMetric = data.Measurements[0].Metric
	}
	var th *models.Threshold
	if chartMetric != "" && !offline {
		if th, uerr = h.devices.ActiveThreshold(ctx, device.PublicID, chartMetric); uerr != nil {
			// The chart still renders without reference lines.
			c.Logger().Warnf("threshold lookup failed: %v", uerr)
			th = nil
		}
	}

	view.Chart = buildChart(data.Measurements, chartMetric, th)
	return c.JSON(http.StatusOK, view)
}

// HandleDeviceMetrics lists the metric names of a device, with a local
// archive fallback.
func (h *Handler) HandleDeviceMetrics(c echo.Context) error {
	id, err := pathInt(c, "id")
	if err != nil {
		return err
	}

	metrics, uerr := h.devices.Metrics(c.Request().Context(), id)
	if uerr == nil {
		return c.JSON(http.StatusOK, map[string][]string{"metrics": metrics})
	}

	if ue, ok := uerr.(*upstream.Error); ok && ue.Status == 0 && h.archive != nil {
		if device, derr := h.devices.Get(c.Request().Context(), id); derr == nil {
			if metrics, herr := h.archive.Metrics(device.PublicID); herr == nil {
				return c.JSON(http.StatusOK, map[string][]string{"metrics": metrics})
			}
		}
	}
	return FromUpstream(uerr)
}

// HandleListThresholds lists the thresholds of a device (public id addressed).
func (h *Handler) HandleListThresholds(c echo.Context) error {
	publicID := c.Param("id")
	if publicID == "" {
		return NewValidationError("id")
	}
	thresholds, err := h.devices.Thresholds(c.Request().Context(), publicID)
	if err != nil {
		return FromUpstream(err)
	}
	return c.JSON(http.StatusOK, thresholds)
}

// HandleCreateThreshold creates a threshold for a device.
func (h *Handler) HandleCreateThreshold(c echo.Context) error {
	publicID := c.Param("id")
	var req models.ThresholdRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}
	if len(req.MetricName) < 2 {
		return NewValidationError("metric_name")
	}
	if req.MinLimit == "" {
		return NewValidationError("min_limit")
	}
	if req.MaxLimit == "" {
		return NewValidationError("max_limit")
	}

	th, err := h.devices.CreateThreshold(c.Request().Context(), publicID, req)
	if err != nil {
		return FromUpstream(err)
	}
	return c.JSON(http.StatusCreated, th)
}

// HandleUpdateThreshold patches a threshold.
func (h *Handler) HandleUpdateThreshold(c echo.Context) error {
	publicID := c.Param("id")
	id, err := pathInt(c, "thresholdId")
	if err != nil {
		return err
	}
	var fields map[string]any
	if err := c.Bind(&fields); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}

	th, uerr := h.devices.UpdateThreshold(c.Request().Context(), publicID, id, fields)
	if uerr != nil {
		return FromUpstream(uerr)
	}
	return c.JSON(http.StatusOK, th)
}

// HandleDeleteThreshold removes a threshold.
func (h *Handler) HandleDeleteThreshold(c echo.Context) error {
	publicID := c.Param("id")
	id, err := pathInt(c, "thresholdId")
	if err != nil {
		return err
	}
	if uerr := h.devices.DeleteThreshold(c.Request().Context(), publicID, id); uerr != nil {
		return FromUpstream(uerr)
	}
	return c.NoContent(http.StatusNoContent)
}

// filterDevices applies the list filters over an already-fetched collection.
// Search matches name and description, case-insensitively.
func filterDevices(devices []models.Device, search string, status models.DeviceStatus, category string) []models.Device {
	search = strings.ToLower(strings.TrimSpace(search))
	categoryID := 0
	if category != "" {
		categoryID, _ = strconv.Atoi(category)
	}

	out := make([]models.Device, 0, len(devices))
	for _, d := range devices {
		if status != "" && d.Status != status {
			continue
		}
		if categoryID != 0 && (d.Category == nil || *d.Category != categoryID) {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(d.Name), search) &&
			!strings.Contains(strings.ToLower(d.Description), search) {
			continue
		}
		out = append(out, d)
	}
	return out
}

// paginateDevices slices one page out of the filtered collection. Pages are
// 1-based; an out-of-range page yields an empty slice.
func paginateDevices(devices []models.Device, page, pageSize int) []models.Device {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	start := (page - 1) * pageSize
	if start >= len(devices) {
		return []models.Device{}
	}
	end := start + pageSize
	if end > len(devices) {
		end = len(devices)
	}
	return devices[start:end]
}

func pathInt(c echo.Context, name string) (int, error) {
	v, err := strconv.Atoi(c.Param(name))
	if err != nil {
		return 0, NewValidationError(name)
	}
	return v, nil
}

func queryInt(c echo.Context, name string, fallback int) int {
	if raw := c.QueryParam(name); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			return v
		}
	}
	return fallback
}
