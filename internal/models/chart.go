package models

// ChartDataset is one series of a rendered chart.
type ChartDataset struct {
	Label           string    `json:"label"`
	Data            []float64 `json:"data"`
	BorderColor     string    `json:"borderColor,omitempty"`
	BackgroundColor string    `json:"backgroundColor,omitempty"`
	Tension         float64   `json:"tension,omitempty"`
	Fill            bool      `json:"fill,omitempty"`
	BorderDash      []int     `json:"borderDash,omitempty"`
	PointRadius     int       `json:"pointRadius"`
}

// ChartData is the chart-ready projection of a measurement buffer: one label
// per point plus the live series and optional threshold reference series.
type ChartData struct {
	Labels   []string       `json:"labels"`
	Datasets []ChartDataset `json:"datasets"`
}
