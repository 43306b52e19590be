package realtime

import (
	"encoding/json"

	"github.com/iot-monitor/dashboard/internal/models"
)

// ConnectionEstablished is the welcome frame the upstream consumer sends on
// accept. Parsed for completeness; only the raw stream carries it.
type ConnectionEstablished struct {
	Message    string `json:"message"`
	DeviceID   string `json:"device_id"`
	DeviceName string `json:"device_name,omitempty"`
}

// DecodeMeasurement applies the structural check to a measurement_update
// frame: numeric id/device, string metric/value/unit/timestamp. Frames
// failing the check are excluded from the derived stream.
func DecodeMeasurement(raw json.RawMessage) (models.Measurement, bool) {
	var frame struct {
		Measurement map[string]json.RawMessage `json:"measurement"`
	}
	if err := json.Unmarshal(raw, &frame); err != nil || frame.Measurement == nil {
		return models.Measurement{}, false
	}

	var m models.Measurement
	if !decodeInt(frame.Measurement["id"], &m.ID) ||
		!decodeInt(frame.Measurement["device"], &m.Device) ||
		!decodeString(frame.Measurement["metric"], &m.Metric) ||
		!decodeString(frame.Measurement["value"], &m.Value) ||
		!decodeString(frame.Measurement["unit"], &m.Unit) ||
		!decodeString(frame.Measurement["timestamp"], &m.Timestamp) {
		return models.Measurement{}, false
	}
	return m, true
}

// decodeInt accepts only JSON numbers, never numeric strings.
func decodeInt(raw json.RawMessage, out *int) bool {
	if len(raw) == 0 || raw[0] == '"' {
		return false
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return false
	}
	*out = int(f)
	return true
}

func decodeString(raw json.RawMessage, out *string) bool {
	if len(raw) == 0 || raw[0] != '"' {
		return false
	}
	return json.Unmarshal(raw, out) == nil
}
