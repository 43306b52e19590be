package models

import "strconv"

// Measurement is a single sensor reading. Value is a decimal string as
// delivered by the upstream API; immutable once received.
type Measurement struct {
	ID        int    `json:"id"`
	Device    int    `json:"device"`
	Metric    string `json:"metric"`
	Value     string `json:"value"`
	Unit      string `json:"unit"`
	Timestamp string `json:"timestamp"`
}

// FloatValue parses the decimal string value with standard float parsing.
// No fixed-point precision guarantees are made.
func (m Measurement) FloatValue() (float64, error) {
	return strconv.ParseFloat(m.Value, 64)
}

// Statistics summarizes a measurement set. Nil means the set was empty.
type Statistics struct {
	Mean *float64 `json:"mean"`
	Max  *float64 `json:"max"`
	Min  *float64 `json:"min"`
}

// AggregatedData is the payload of the aggregated-data endpoint.
type AggregatedData struct {
	Measurements []Measurement `json:"measurements"`
	Statistics   Statistics    `json:"statistics"`
	Count        int           `json:"count"`
}

// TimePeriod selects the window for aggregated-data queries.
type TimePeriod string

const (
	PeriodLast24h TimePeriod = "last_24h"
	PeriodLast7d  TimePeriod = "last_7d"
	PeriodLast30d TimePeriod = "last_30d"
	PeriodAll     TimePeriod = "all"
)

// ValidPeriod reports whether p is a recognized time period.
func ValidPeriod(p TimePeriod) bool {
	switch p {
	case PeriodLast24h, PeriodLast7d, PeriodLast30d, PeriodAll:
		return true
	}
	return false
}

// AlertSeverity enumerates upstream alert severities.
type AlertSeverity string

const (
	SeverityLow      AlertSeverity = "low"
	SeverityMedium   AlertSeverity = "medium"
	SeverityHigh     AlertSeverity = "high"
	SeverityCritical AlertSeverity = "critical"
)

// Alert is read-only from the dashboard's perspective.
type Alert struct {
	ID         int           `json:"id"`
	Device     int           `json:"device"`
	Title      string        `json:"title"`
	Message    string        `json:"message"`
	Severity   AlertSeverity `json:"severity"`
	Status     string        `json:"status"` // pending|resolved
	CreatedAt  string        `json:"created_at"`
	UpdatedAt  string        `json:"updated_at"`
	ResolvedAt *string       `json:"resolved_at"`
}
