package api

import (
	"github.com/iot-monitor/dashboard/internal/aggregate"
	"github.com/iot-monitor/dashboard/internal/models"
)

// buildChart projects a historical batch into the chart payload, with the
// active threshold (if any) overlaid as reference lines.
func buildChart(measurements []models.Measurement, metric string, th *models.Threshold) models.ChartData {
	agg := aggregate.New(0)
	if metric != "" {
		agg.SetLabel(metric)
	}
	agg.SetThreshold(th)
	agg.Load(measurements)
	return agg.Chart()
}
