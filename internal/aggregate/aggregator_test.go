package aggregate

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/iot-monitor/dashboard/internal/models"
)

func m(id int, value string, at time.Time) models.Measurement {
	return models.Measurement{
		ID:        id,
		Device:    1,
		Metric:    "temperature",
		Value:     value,
		Unit:      "°C",
		Timestamp: at.Format(time.RFC3339),
	}
}

func TestLoadSortsAndSetsUnit(t *testing.T) {
	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	agg := New(100)
	agg.Load([]models.Measurement{
		m(3, "30", base.Add(2*time.Minute)),
		m(1, "10", base),
		m(2, "20", base.Add(time.Minute)),
	})

	got := agg.Measurements()
	assert.Equal(t, []int{1, 2, 3}, []int{got[0].ID, got[1].ID, got[2].ID})
	assert.Equal(t, "°C", agg.Unit())
}

func TestStatistics(t *testing.T) {
	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	agg := New(100)
	agg.Load([]models.Measurement{
		m(1, "10", base),
		m(2, "20", base.Add(time.Minute)),
		m(3, "30", base.Add(2*time.Minute)),
	})

	stats := agg.Statistics()
	assert.Equal(t, 20.0, *stats.Mean)
	assert.Equal(t, 30.0, *stats.Max)
	assert.Equal(t, 10.0, *stats.Min)
}

func TestStatisticsEmpty(t *testing.T) {
	stats := New(100).Statistics()
	assert.Nil(t, stats.Mean)
	assert.Nil(t, stats.Max)
	assert.Nil(t, stats.Min)
}

func TestAppendEvictsOldest(t *testing.T) {
	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	agg := New(100)

	var seed []models.Measurement
	for i := 0; i < 100; i++ {
		seed = append(seed, m(i+1, fmt.Sprintf("%d", i), base.Add(time.Duration(i)*time.Second)))
	}
	agg.Load(seed)
	assert.Equal(t, 100, agg.Len())

	agg.Append(m(101, "500", base.Add(101*time.Second)))
	assert.Equal(t, 100, agg.Len())

	got := agg.Measurements()
	assert.Equal(t, 2, got[0].ID, "oldest point evicted from the front")
	assert.Equal(t, 101, got[99].ID)
}

func TestAppendOutOfOrderKeepsTimeOrder(t *testing.T) {
	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	agg := New(100)
	agg.Load([]models.Measurement{
		m(1, "10", base),
		m(3, "30", base.Add(2*time.Minute)),
	})

	agg.Append(m(2, "20", base.Add(time.Minute)))

	got := agg.Measurements()
	assert.Equal(t, []int{1, 2, 3}, []int{got[0].ID, got[1].ID, got[2].ID})
}

func TestNonNumericValueDropped(t *testing.T) {
	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	agg := New(100)
	agg.Load([]models.Measurement{
		m(1, "10", base),
		m(2, "not-a-number", base.Add(time.Minute)),
	})

	assert.Equal(t, 1, agg.Len())
	stats := agg.Statistics()
	assert.Equal(t, 10.0, *stats.Mean)
}

func TestChartWithThresholdOverlay(t *testing.T) {
	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	agg := New(100)
	agg.SetLabel("temperature")
	agg.SetThreshold(&models.Threshold{
		MetricName: "temperature",
		MinLimit:   "5.0",
		MaxLimit:   "35.0",
		IsActive:   true,
	})
	agg.Load([]models.Measurement{
		m(1, "10", base),
		m(2, "20", base.Add(time.Minute)),
	})

	chart := agg.Chart()
	assert.Len(t, chart.Labels, 2)
	assert.Len(t, chart.Datasets, 3, "live series plus min and max reference lines")

	live := chart.Datasets[0]
	assert.Equal(t, "temperature", live.Label)
	assert.Equal(t, []float64{10, 20}, live.Data)

	minLine := chart.Datasets[1]
	assert.Equal(t, []float64{5, 5}, minLine.Data, "reference lines span the label set")
	maxLine := chart.Datasets[2]
	assert.Equal(t, []float64{35, 35}, maxLine.Data)
	assert.Equal(t, []int{6, 6}, maxLine.BorderDash)
}

func TestChartInactiveThresholdOmitted(t *testing.T) {
	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	agg := New(100)
	agg.SetThreshold(&models.Threshold{MinLimit: "5", MaxLimit: "35", IsActive: false})
	agg.Load([]models.Measurement{m(1, "10", base)})

	chart := agg.Chart()
	assert.Len(t, chart.Datasets, 1)
}

func TestChartEmpty(t *testing.T) {
	chart := New(100).Chart()
	assert.Len(t, chart.Labels, 0)
	assert.Len(t, chart.Datasets, 1)
	assert.Len(t, chart.Datasets[0].Data, 0)
}
