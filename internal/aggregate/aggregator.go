// Package aggregate maintains a bounded, time-ordered buffer of measurements
// and projects it into summary statistics and chart-ready series.
package aggregate

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/iot-monitor/dashboard/internal/models"
)

// DefaultMaxPoints bounds the chart buffer, matching the aggregated-data
// endpoint's window.
const DefaultMaxPoints = 100

// Chart styling, carried over from the shipped frontend.
const (
	seriesColor      = "#3B82F6"
	seriesFill       = "rgba(59, 130, 246, 0.1)"
	thresholdMinName = "Limite mínimo"
	thresholdMaxName = "Limite máximo"
)

// point is one retained measurement with its parsed value and timestamp.
type point struct {
	measurement models.Measurement
	value       float64
	at          time.Time
}

// Aggregator owns the rolling buffer for one device/metric view. Every update
// is a full O(n) recompute over at most maxPoints entries; no incremental
// statistic maintenance.
type Aggregator struct {
	mu        sync.Mutex
	maxPoints int
	points    []point
	unit      string
	label     string
	threshold *models.Threshold
}

// New creates an aggregator bounded to maxPoints (<=0 means DefaultMaxPoints).
func New(maxPoints int) *Aggregator {
	if maxPoints <= 0 {
		maxPoints = DefaultMaxPoints
	}
	return &Aggregator{maxPoints: maxPoints, label: "Valor"}
}

// SetLabel names the live series in chart projections.
func (a *Aggregator) SetLabel(label string) {
	a.mu.Lock()
	a.label = label
	a.mu.Unlock()
}

// SetThreshold installs (or clears, with nil) the active threshold whose
// min/max bounds are overlaid as constant reference series.
func (a *Aggregator) SetThreshold(th *models.Threshold) {
	a.mu.Lock()
	a.threshold = th
	a.mu.Unlock()
}

// Load replaces the buffer with a historical batch: sorted ascending by
// timestamp, truncated to the most recent maxPoints, unit taken from the
// first retained element.
func (a *Aggregator) Load(measurements []models.Measurement) {
	pts := make([]point, 0, len(measurements))
	for _, m := range measurements {
		if p, ok := a.toPoint(m); ok {
			pts = append(pts, p)
		}
	}
	sortPoints(pts)
	if len(pts) > a.maxPoints {
		pts = pts[len(pts)-a.maxPoints:]
	}

	a.mu.Lock()
	a.points = pts
	if len(pts) > 0 {
		a.unit = pts[0].measurement.Unit
	} else {
		a.unit = ""
	}
	a.mu.Unlock()
}

// Append adds one live measurement, re-sorts, and evicts from the front when
// the buffer exceeds its bound. Ties on timestamp keep arrival order.
func (a *Aggregator) Append(m models.Measurement) {
	p, ok := a.toPoint(m)
	if !ok {
		return
	}

	a.mu.Lock()
	a.points = append(a.points, p)
	sortPoints(a.points)
	if len(a.points) > a.maxPoints {
		a.points = a.points[len(a.points)-a.maxPoints:]
	}
	if a.unit == "" {
		a.unit = m.Unit
	}
	a.mu.Unlock()
}

// toPoint parses value and timestamp. Measurements with an unparsable decimal
// value are dropped (logged) so series and statistics stay numeric.
func (a *Aggregator) toPoint(m models.Measurement) (point, bool) {
	value, err := m.FloatValue()
	if err != nil {
		fmt.Printf("[Aggregate] Dropping measurement %d with non-numeric value %q\n", m.ID, m.Value)
		return point{}, false
	}
	at, err := time.Parse(time.RFC3339, m.Timestamp)
	if err != nil {
		// Fall back to nanosecond-precision variants before giving up.
		at, err = time.Parse(time.RFC3339Nano, m.Timestamp)
		if err != nil {
			fmt.Printf("[Aggregate] Dropping measurement %d with bad timestamp %q\n", m.ID, m.Timestamp)
			return point{}, false
		}
	}
	return point{measurement: m, value: value, at: at}, true
}

func sortPoints(pts []point) {
	sort.SliceStable(pts, func(i, j int) bool {
		return pts[i].at.Before(pts[j].at)
	})
}

// Len returns the number of retained points.
func (a *Aggregator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.points)
}

// Unit returns the unit taken from the first element of the loaded set.
func (a *Aggregator) Unit() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.unit
}

// Measurements returns a copy of the retained buffer in ascending time order.
func (a *Aggregator) Measurements() []models.Measurement {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]models.Measurement, len(a.points))
	for i, p := range a.points {
		out[i] = p.measurement
	}
	return out
}

// Statistics recomputes mean/max/min over the retained buffer. An empty
// buffer yields all-nil statistics.
func (a *Aggregator) Statistics() models.Statistics {
	a.mu.Lock()
	defer a.mu.Unlock()
	return statsLocked(a.points)
}

func statsLocked(pts []point) models.Statistics {
	if len(pts) == 0 {
		return models.Statistics{}
	}
	sum := 0.0
	min := pts[0].value
	max := pts[0].value
	for _, p := range pts {
		sum += p.value
		if p.value < min {
			min = p.value
		}
		if p.value > max {
			max = p.value
		}
	}
	mean := sum / float64(len(pts))
	return models.Statistics{Mean: &mean, Max: &max, Min: &min}
}

// Chart rebuilds the full chart payload from scratch: one label per point,
// the live series, and, when an active threshold is installed, two
// constant-valued reference series spanning the same label set.
func (a *Aggregator) Chart() models.ChartData {
	a.mu.Lock()
	defer a.mu.Unlock()

	labels := make([]string, len(a.points))
	values := make([]float64, len(a.points))
	for i, p := range a.points {
		labels[i] = p.at.Format("15:04:05")
		values[i] = p.value
	}

	chart := models.ChartData{
		Labels: labels,
		Datasets: []models.ChartDataset{
			{
				Label:           a.label,
				Data:            values,
				BorderColor:     seriesColor,
				BackgroundColor: seriesFill,
				Tension:         0.4,
				Fill:            true,
			},
		},
	}

	if th := a.threshold; th != nil && th.IsActive {
		if minLine, ok := constantSeries(thresholdMinName, th.MinLimit, len(labels)); ok {
			chart.Datasets = append(chart.Datasets, minLine)
		}
		if maxLine, ok := constantSeries(thresholdMaxName, th.MaxLimit, len(labels)); ok {
			chart.Datasets = append(chart.Datasets, maxLine)
		}
	}
	return chart
}

// constantSeries builds a dashed horizontal reference line sized to the
// current label set.
func constantSeries(label, decimal string, length int) (models.ChartDataset, bool) {
	var value float64
	if _, err := fmt.Sscanf(decimal, "%g", &value); err != nil {
		return models.ChartDataset{}, false
	}
	data := make([]float64, length)
	for i := range data {
		data[i] = value
	}
	return models.ChartDataset{
		Label:       label,
		Data:        data,
		BorderColor: "#EF4444",
		BorderDash:  []int{6, 6},
		PointRadius: 0,
	}, true
}
