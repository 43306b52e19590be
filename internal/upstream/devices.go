package upstream

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/iot-monitor/dashboard/internal/models"
)

// DeviceClient is the typed CRUD wrapper over the devices endpoints.
type DeviceClient struct {
	c *Client
}

// NewDeviceClient wraps the shared client with the device operations.
func NewDeviceClient(c *Client) *DeviceClient {
	return &DeviceClient{c: c}
}

// List returns the device collection, unwrapping the pagination envelope.
// A bare-array response is wrapped as results.
func (d *DeviceClient) List(ctx context.Context) (models.Page[models.Device], error) {
	var raw rawBody
	if err := d.c.doResource(ctx, http.MethodGet, "/devices/", nil, nil, &raw); err != nil {
		return models.Page[models.Device]{}, err
	}
	page, err := models.UnmarshalPage[models.Device](raw)
	if err != nil {
		return page, &Error{Status: 200, Message: "Erro 200: resposta inválida do servidor"}
	}
	return page, nil
}

// Get returns one device by numeric id.
func (d *DeviceClient) Get(ctx context.Context, id int) (*models.Device, error) {
	var dev models.Device
	if err := d.c.doResource(ctx, http.MethodGet, fmt.Sprintf("/devices/%d/", id), nil, nil, &dev); err != nil {
		return nil, err
	}
	return &dev, nil
}

// Create posts a new device.
func (d *DeviceClient) Create(ctx context.Context, req models.DeviceRequest) (*models.Device, error) {
	var dev models.Device
	if err := d.c.doResource(ctx, http.MethodPost, "/devices/", nil, req, &dev); err != nil {
		return nil, err
	}
	return &dev, nil
}

// Update replaces a device (PUT).
func (d *DeviceClient) Update(ctx context.Context, id int, req models.DeviceRequest) (*models.Device, error) {
	var dev models.Device
	if err := d.c.doResource(ctx, http.MethodPut, fmt.Sprintf("/devices/%d/", id), nil, req, &dev); err != nil {
		return nil, err
	}
	return &dev, nil
}

// PartialUpdate patches a device (PATCH).
func (d *DeviceClient) PartialUpdate(ctx context.Context, id int, fields map[string]any) (*models.Device, error) {
	var dev models.Device
	if err := d.c.doResource(ctx, http.MethodPatch, fmt.Sprintf("/devices/%d/", id), nil, fields, &dev); err != nil {
		return nil, err
	}
	return &dev, nil
}

// Delete removes a device.
func (d *DeviceClient) Delete(ctx context.Context, id int) error {
	return d.c.doResource(ctx, http.MethodDelete, fmt.Sprintf("/devices/%d/", id), nil, nil, nil)
}

// CountByStatus reduces the device list into the fixed dashboard buckets.
func (d *DeviceClient) CountByStatus(ctx context.Context) (models.StatusCount, error) {
	page, err := d.List(ctx)
	if err != nil {
		return models.StatusCount{}, err
	}
	return models.CountDevicesByStatus(page.Results), nil
}

// AggregatedData fetches historical measurements plus statistics for one
// device. Metric may be empty; limit <= 0 leaves the server default.
func (d *DeviceClient) AggregatedData(ctx context.Context, id int, period models.TimePeriod, metric string, limit int) (*models.AggregatedData, error) {
	query := url.Values{}
	if period != "" {
		if !models.ValidPeriod(period) {
			return nil, &Error{Status: 400, Message: fmt.Sprintf("Erro 400: período inválido %q", period)}
		}
		query.Set("period", string(period))
	}
	if metric != "" {
		query.Set("metric", metric)
	}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}

	var data models.AggregatedData
	if err := d.c.doResource(ctx, http.MethodGet, fmt.Sprintf("/devices/%d/aggregated-data/", id), query, nil, &data); err != nil {
		return nil, err
	}
	return &data, nil
}

// Metrics returns the metric names known for a device.
func (d *DeviceClient) Metrics(ctx context.Context, id int) ([]string, error) {
	var resp struct {
		Metrics []string `json:"metrics"`
	}
	if err := d.c.doResource(ctx, http.MethodGet, fmt.Sprintf("/devices/%d/metrics/", id), nil, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Metrics, nil
}

// Thresholds lists the thresholds of a device, addressed by public id.
func (d *DeviceClient) Thresholds(ctx context.Context, publicID string) ([]models.Threshold, error) {
	var raw rawBody
	if err := d.c.doResource(ctx, http.MethodGet, fmt.Sprintf("/devices/%s/thresholds/", publicID), nil, nil, &raw); err != nil {
		return nil, err
	}
	page, err := models.UnmarshalPage[models.Threshold](raw)
	if err != nil {
		return nil, &Error{Status: 200, Message: "Erro 200: resposta inválida do servidor"}
	}
	return page.Results, nil
}

// CreateThreshold posts a new threshold for a device.
func (d *DeviceClient) CreateThreshold(ctx context.Context, publicID string, req models.ThresholdRequest) (*models.Threshold, error) {
	var th models.Threshold
	if err := d.c.doResource(ctx, http.MethodPost, fmt.Sprintf("/devices/%s/thresholds/", publicID), nil, req, &th); err != nil {
		return nil, err
	}
	return &th, nil
}

// UpdateThreshold patches an existing threshold.
func (d *DeviceClient) UpdateThreshold(ctx context.Context, publicID string, id int, fields map[string]any) (*models.Threshold, error) {
	var th models.Threshold
	if err := d.c.doResource(ctx, http.MethodPatch, fmt.Sprintf("/devices/%s/thresholds/%d/", publicID, id), nil, fields, &th); err != nil {
		return nil, err
	}
	return &th, nil
}

// DeleteThreshold removes a threshold.
func (d *DeviceClient) DeleteThreshold(ctx context.Context, publicID string, id int) error {
	return d.c.doResource(ctx, http.MethodDelete, fmt.Sprintf("/devices/%s/thresholds/%d/", publicID, id), nil, nil, nil)
}

// ActiveThreshold returns the active threshold for a metric, or nil when none
// exists. Used to overlay reference lines on charts.
func (d *DeviceClient) ActiveThreshold(ctx context.Context, publicID, metric string) (*models.Threshold, error) {
	thresholds, err := d.Thresholds(ctx, publicID)
	if err != nil {
		return nil, err
	}
	for i := range thresholds {
		if thresholds[i].IsActive && thresholds[i].MetricName == metric {
			return &thresholds[i], nil
		}
	}
	return nil, nil
}

// rawBody defers JSON decoding so list endpoints can normalize bare arrays.
type rawBody []byte

func (r *rawBody) UnmarshalJSON(data []byte) error {
	*r = append((*r)[:0], data...)
	return nil
}
