package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/iot-monitor/dashboard/internal/models"
	"github.com/iot-monitor/dashboard/internal/upstream"
	"github.com/iot-monitor/dashboard/internal/watch"
)

// watchView is the per-session detail payload: session stats plus the current
// projection of its rolling buffer.
type watchView struct {
	Session    models.WatchSession  `json:"session"`
	Chart      models.ChartData     `json:"chart"`
	Statistics models.Statistics    `json:"statistics"`
	Unit       string               `json:"unit"`
	Recent     []models.Measurement `json:"recent"`
}

// HandleStartWatch opens (or reuses) the live watch for a device, seeding the
// aggregator with a historical batch and the active threshold for the watched
// metric.
func (h *Handler) HandleStartWatch(c echo.Context) error {
	publicID := c.Param("publicId")
	if publicID == "" {
		return NewValidationError("publicId")
	}
	metric := c.QueryParam("metric")

	seed, th := h.watchSeed(c, publicID, metric)
	if metric == "" && len(seed) > 0 {
		metric = seed[0].Metric
	}

	session, err := h.watches.Start(publicID, seed, th, metric)
	if err != nil {
		return NewConflictError(err.Error())
	}
	return c.JSON(http.StatusCreated, h.watchViewFor(session))
}

// watchSeed fetches the historical batch and active threshold used to prime a
// new session. Both are best-effort: a cold start with an empty buffer is
// better than no watch at all.
func (h *Handler) watchSeed(c echo.Context, publicID, metric string) ([]models.Measurement, *models.Threshold) {
	ctx := c.Request().Context()

	var seed []models.Measurement
	device, err := h.deviceByPublicID(c, publicID)
	if err == nil {
		data, derr := h.devices.AggregatedData(ctx, device.ID, models.PeriodLast24h, metric, 0)
		if derr == nil {
			seed = data.Measurements
		} else {
			c.Logger().Warnf("watch seed fetch failed: %v", derr)
		}
	}

	var th *models.Threshold
	seedMetric := metric
	if seedMetric == "" && len(seed) > 0 {
		seedMetric = seed[0].Metric
	}
	if seedMetric != "" {
		if th, err = h.devices.ActiveThreshold(ctx, publicID, seedMetric); err != nil {
			c.Logger().Warnf("watch threshold lookup failed: %v", err)
			th = nil
		}
	}
	return seed, th
}

// deviceByPublicID resolves a public id against the fetched collection; the
// upstream addresses REST resources by numeric id only.
func (h *Handler) deviceByPublicID(c echo.Context, publicID string) (*models.Device, error) {
	page, err := h.devices.List(c.Request().Context())
	if err != nil {
		return nil, err
	}
	for i := range page.Results {
		if page.Results[i].PublicID == publicID {
			return &page.Results[i], nil
		}
	}
	return nil, &upstream.Error{Status: http.StatusNotFound, Message: "Erro 404: dispositivo não encontrado"}
}

// HandleListWatches returns stats for every active session.
func (h *Handler) HandleListWatches(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"sessions": h.watches.List(),
	})
}

// HandleGetWatch returns the current projection of one session. Reading it
// counts as activity for idle cleanup.
func (h *Handler) HandleGetWatch(c echo.Context) error {
	publicID := c.Param("publicId")
	session, ok := h.watches.Get(publicID)
	if !ok {
		return NewNotFoundError("watch", publicID)
	}
	session.Touch()
	return c.JSON(http.StatusOK, h.watchViewFor(session))
}

// HandleStopWatch tears down the watch for a device.
func (h *Handler) HandleStopWatch(c echo.Context) error {
	publicID := c.Param("publicId")
	if _, ok := h.watches.Get(publicID); !ok {
		return NewNotFoundError("watch", publicID)
	}
	h.watches.Stop(publicID)
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) watchViewFor(session *watch.Session) watchView {
	return watchView{
		Session:    session.Info(),
		Chart:      session.Aggregator.Chart(),
		Statistics: session.Aggregator.Statistics(),
		Unit:       session.Aggregator.Unit(),
		Recent:     session.Recent(),
	}
}
