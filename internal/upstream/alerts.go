package upstream

import (
	"context"
	"net/http"
	"net/url"

	"github.com/iot-monitor/dashboard/internal/models"
)

// AlertClient reads the alert feed. Alerts are read-only from the dashboard.
type AlertClient struct {
	c *Client
}

// NewAlertClient wraps the shared client with the alert operations.
func NewAlertClient(c *Client) *AlertClient {
	return &AlertClient{c: c}
}

// List returns alerts, optionally restricted to unresolved ones.
func (a *AlertClient) List(ctx context.Context, unresolvedOnly bool) (models.Page[models.Alert], error) {
	query := url.Values{}
	if unresolvedOnly {
		query.Set("unresolved_only", "true")
	}
	var raw rawBody
	if err := a.c.doResource(ctx, http.MethodGet, "/alerts", query, nil, &raw); err != nil {
		return models.Page[models.Alert]{}, err
	}
	page, err := models.UnmarshalPage[models.Alert](raw)
	if err != nil {
		return page, &Error{Status: 200, Message: "Erro 200: resposta inválida do servidor"}
	}
	return page, nil
}

// Unresolved is a convenience for the dashboard's alert panel.
func (a *AlertClient) Unresolved(ctx context.Context) (models.Page[models.Alert], error) {
	return a.List(ctx, true)
}
