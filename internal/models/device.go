package models

// DeviceStatus enumerates the lifecycle states reported by the upstream API.
type DeviceStatus string

const (
	StatusActive      DeviceStatus = "active"
	StatusInactive    DeviceStatus = "inactive"
	StatusMaintenance DeviceStatus = "maintenance"
	StatusError       DeviceStatus = "error"
)

// ValidStatus reports whether s is one of the four recognized device statuses.
func ValidStatus(s DeviceStatus) bool {
	switch s {
	case StatusActive, StatusInactive, StatusMaintenance, StatusError:
		return true
	}
	return false
}

// Device is a monitored device. PublicID addresses the realtime socket,
// ID addresses the REST resource.
type Device struct {
	ID          int          `json:"id"`
	PublicID    string       `json:"public_id"`
	Name        string       `json:"name"`
	Category    *int         `json:"category,omitempty"`
	Status      DeviceStatus `json:"status"`
	Description string       `json:"description,omitempty"`
	CreatedAt   string       `json:"created_at"`
	UpdatedAt   string       `json:"updated_at"`
}

// DeviceRequest is the create/update payload for a device.
type DeviceRequest struct {
	Name        string       `json:"name"`
	Category    *int         `json:"category,omitempty"`
	Status      DeviceStatus `json:"status"`
	Description string       `json:"description,omitempty"`
}

// Category groups devices. Devices reference it by id, optionally null.
type Category struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

// CategoryRequest is the create/update payload for a category.
type CategoryRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// StatusCount holds the fixed dashboard buckets. Total always equals the
// number of devices counted, including devices with unrecognized statuses.
type StatusCount struct {
	Active      int `json:"active"`
	Inactive    int `json:"inactive"`
	Maintenance int `json:"maintenance"`
	Error       int `json:"error"`
	Total       int `json:"total"`
}

// CountDevicesByStatus reduces a device list into the fixed status buckets.
// Unknown statuses contribute to Total but to no bucket.
func CountDevicesByStatus(devices []Device) StatusCount {
	counts := StatusCount{Total: len(devices)}
	for _, d := range devices {
		switch d.Status {
		case StatusActive:
			counts.Active++
		case StatusInactive:
			counts.Inactive++
		case StatusMaintenance:
			counts.Maintenance++
		case StatusError:
			counts.Error++
		}
	}
	return counts
}

// Threshold is a per-device, per-metric alerting bound. Limits are decimal
// strings, mirroring the upstream serializer.
type Threshold struct {
	ID         int    `json:"id"`
	Device     int    `json:"device"`
	MetricName string `json:"metric_name"`
	MinLimit   string `json:"min_limit"`
	MaxLimit   string `json:"max_limit"`
	IsActive   bool   `json:"is_active"`
	CreatedAt  string `json:"created_at"`
	UpdatedAt  string `json:"updated_at"`
}

// ThresholdRequest is the create/update payload for a threshold.
type ThresholdRequest struct {
	MetricName string `json:"metric_name"`
	MinLimit   string `json:"min_limit"`
	MaxLimit   string `json:"max_limit"`
	IsActive   bool   `json:"is_active"`
}
