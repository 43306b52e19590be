package models

// WatchStatus represents the state of a live device watch session.
type WatchStatus string

const (
	WatchStatusConnecting   WatchStatus = "connecting"
	WatchStatusConnected    WatchStatus = "connected"
	WatchStatusDisconnected WatchStatus = "disconnected"
	WatchStatusError        WatchStatus = "error"
)

// WatchSession describes one live measurement stream attached to a device.
type WatchSession struct {
	ID           string      `json:"id"`
	DevicePublic string      `json:"devicePublicId"`
	Status       WatchStatus `json:"status"`
	StartTime    int64       `json:"startTime,omitempty"` // Unix ms
	Measurements int         `json:"measurementCount"`
	DroppedIn    int         `json:"droppedInbound"`
	DroppedOut   int         `json:"droppedOutbound"`
	Reconnects   int         `json:"reconnectAttempts"`
}
