// Package realtime maintains one logical websocket connection per device and
// republishes inbound frames as typed events. Reconnection is sequential,
// bounded and positively cancelled on intentional disconnect.
package realtime

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/iot-monitor/dashboard/internal/models"
)

// Status is the connection state machine's observable state.
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusError        Status = "error"
)

// Frame type discriminators delivered by the upstream consumer.
const (
	TypeMeasurementUpdate     = "measurement_update"
	TypeConnectionEstablished = "connection_established"
)

// NormalCloseCode is the close code that signifies a deliberate disconnect
// and must suppress auto-reconnect.
const NormalCloseCode = websocket.CloseNormalClosure

// Event is one parsed inbound frame: the type discriminator plus the raw
// payload for consumers that need more than the measurement stream.
type Event struct {
	Type string
	Raw  json.RawMessage
}

// Config tunes the reconnect loop. Zero values fall back to the shipped
// frontend's constants.
type Config struct {
	MaxReconnectAttempts int
	ReconnectDelay       time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxReconnectAttempts == 0 {
		c.MaxReconnectAttempts = 5
	}
	if c.ReconnectDelay == 0 {
		c.ReconnectDelay = 3 * time.Second
	}
	return c
}

// Client owns at most one physical connection. Message delivery order follows
// transport delivery order; no reordering or deduplication happens here.
type Client struct {
	baseURL string
	cfg     Config
	dialer  *websocket.Dialer

	mu          sync.Mutex
	conn        *websocket.Conn
	deviceID    string
	status      Status
	attempts    int
	intentional bool
	gen         int
	retryTimer  *time.Timer

	statusSubs map[int]chan Status
	eventSubs  map[int]chan Event
	nextSub    int

	droppedInbound  int
	droppedOutbound int
}

// NewClient creates a realtime client for the given socket base URL
// (ws(s)://host, no trailing slash).
func NewClient(baseURL string, cfg Config) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		cfg:        cfg.withDefaults(),
		dialer:     websocket.DefaultDialer,
		status:     StatusDisconnected,
		statusSubs: make(map[int]chan Status),
		eventSubs:  make(map[int]chan Event),
	}
}

// DeviceURL returns the deterministic socket URL for a device public id.
func (c *Client) DeviceURL(publicID string) string {
	return fmt.Sprintf("%s/ws/device/%s/", c.baseURL, publicID)
}

// ConnectToDevice opens the socket for a device. A no-op when already
// connected or while another dial is in flight. Transitions to connecting,
// then connected on open; an abnormal close schedules a bounded reconnect.
func (c *Client) ConnectToDevice(publicID string) {
	c.mu.Lock()
	// A dial in flight counts as busy: only one physical connection may ever
	// exist, so a second connect must not race the first.
	if c.status == StatusConnecting || c.status == StatusConnected {
		c.mu.Unlock()
		return
	}
	if c.retryTimer != nil {
		c.retryTimer.Stop()
		c.retryTimer = nil
	}
	c.deviceID = publicID
	c.intentional = false
	c.gen++
	gen := c.gen
	c.setStatusLocked(StatusConnecting)
	c.mu.Unlock()

	conn, resp, err := c.dialer.Dial(c.DeviceURL(publicID), http.Header{})
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		fmt.Printf("[Realtime] Failed to connect to device %s: %v\n", publicID, err)
		c.mu.Lock()
		// A Disconnect (or a newer connect) during the dial bumps the
		// generation; a stale dial must not transition the state machine.
		if gen == c.gen {
			c.setStatusLocked(StatusError)
			c.setStatusLocked(StatusDisconnected)
			c.maybeScheduleReconnectLocked(websocket.CloseAbnormalClosure)
		}
		c.mu.Unlock()
		return
	}

	c.mu.Lock()
	if gen != c.gen {
		// Superseded while the handshake was in flight; the fresh socket
		// must not outlive whatever superseded it.
		c.mu.Unlock()
		conn.Close()
		return
	}
	c.conn = conn
	c.attempts = 0
	c.setStatusLocked(StatusConnected)
	c.mu.Unlock()
	fmt.Printf("[Realtime] Connected to device %s\n", publicID)

	go c.readLoop(conn, publicID)
}

// readLoop parses inbound frames until the transport closes, then drives the
// close/reconnect transition.
func (c *Client) readLoop(conn *websocket.Conn, publicID string) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			code := websocket.CloseAbnormalClosure
			if ce, ok := err.(*websocket.CloseError); ok {
				code = ce.Code
			}
			c.handleClose(conn, code)
			return
		}

		var event Event
		var frame struct {
			Type string `json:"type"`
		}
		if jsonErr := json.Unmarshal(data, &frame); jsonErr != nil || frame.Type == "" {
			// Malformed payloads are logged and dropped, never surfaced.
			fmt.Printf("[Realtime] Dropping malformed frame from device %s\n", publicID)
			c.mu.Lock()
			c.droppedInbound++
			c.mu.Unlock()
			continue
		}
		event.Type = frame.Type
		event.Raw = append(event.Raw, data...)
		c.publish(event)
	}
}

// handleClose runs the close transition for the given close code. Stale
// connections (already replaced) are ignored.
func (c *Client) handleClose(conn *websocket.Conn, code int) {
	c.mu.Lock()
	if c.conn != conn {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.setStatusLocked(StatusDisconnected)
	if !c.intentional {
		c.maybeScheduleReconnectLocked(code)
	}
	c.mu.Unlock()
	fmt.Printf("[Realtime] Disconnected (code %d)\n", code)
}

// maybeScheduleReconnectLocked schedules one retry after the fixed delay when
// the close was not intentional and the attempt ceiling is not reached.
// Caller holds the lock.
func (c *Client) maybeScheduleReconnectLocked(code int) {
	if code == NormalCloseCode {
		return
	}
	if c.attempts >= c.cfg.MaxReconnectAttempts {
		fmt.Printf("[Realtime] Giving up after %d reconnect attempts\n", c.attempts)
		return
	}
	c.attempts++
	attempt := c.attempts
	device := c.deviceID
	fmt.Printf("[Realtime] Reconnecting (%d/%d) in %s\n", attempt, c.cfg.MaxReconnectAttempts, c.cfg.ReconnectDelay)
	c.retryTimer = time.AfterFunc(c.cfg.ReconnectDelay, func() {
		c.ConnectToDevice(device)
	})
}

// Disconnect closes with the normal code and cancels any pending reconnect.
// No further auto-reconnect occurs until the next ConnectToDevice.
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.intentional = true
	c.attempts = 0
	c.gen++
	if c.retryTimer != nil {
		c.retryTimer.Stop()
		c.retryTimer = nil
	}
	conn := c.conn
	c.conn = nil
	c.setStatusLocked(StatusDisconnected)
	c.mu.Unlock()

	if conn != nil {
		deadline := time.Now().Add(time.Second)
		msg := websocket.FormatCloseMessage(NormalCloseCode, "Intentional disconnect")
		_ = conn.WriteControl(websocket.CloseMessage, msg, deadline)
		conn.Close()
	}
}

// Send serializes and sends only when the transport is open; otherwise the
// payload is dropped with a logged warning. The silent loss mirrors the
// shipped frontend and is tracked in DroppedOutbound.
func (c *Client) Send(payload any) error {
	c.mu.Lock()
	conn := c.conn
	open := conn != nil && c.status == StatusConnected
	if !open {
		c.droppedOutbound++
	}
	c.mu.Unlock()

	if !open {
		fmt.Println("[Realtime] Not connected; outbound message dropped")
		return nil
	}
	return conn.WriteJSON(payload)
}

// Status returns the current connection state.
func (c *Client) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// IsConnected reports whether the transport is open.
func (c *Client) IsConnected() bool {
	return c.Status() == StatusConnected
}

// ReconnectAttempts returns the current attempt counter.
func (c *Client) ReconnectAttempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

// Dropped returns the counters for silently dropped inbound frames and
// outbound messages.
func (c *Client) Dropped() (inbound, outbound int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.droppedInbound, c.droppedOutbound
}

// SubscribeStatus delivers the current status immediately, then every change.
func (c *Client) SubscribeStatus() (<-chan Status, func()) {
	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	ch := make(chan Status, 16)
	ch <- c.status
	c.statusSubs[id] = ch
	c.mu.Unlock()

	return ch, func() {
		c.mu.Lock()
		if sub, ok := c.statusSubs[id]; ok {
			delete(c.statusSubs, id)
			close(sub)
		}
		c.mu.Unlock()
	}
}

// Events subscribes to the raw event stream (every well-formed frame).
func (c *Client) Events() (<-chan Event, func()) {
	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	ch := make(chan Event, 64)
	c.eventSubs[id] = ch
	c.mu.Unlock()

	return ch, func() {
		c.mu.Lock()
		if sub, ok := c.eventSubs[id]; ok {
			delete(c.eventSubs, id)
			close(sub)
		}
		c.mu.Unlock()
	}
}

// MeasurementUpdates subscribes to the derived stream of structurally valid
// measurement_update frames. Frames failing the check stay visible on the raw
// stream but never reach this one.
func (c *Client) MeasurementUpdates() (<-chan models.Measurement, func()) {
	events, cancelEvents := c.Events()
	out := make(chan models.Measurement, 64)
	done := make(chan struct{})

	go func() {
		defer close(out)
		for {
			select {
			case ev, ok := <-events:
				if !ok {
					return
				}
				if ev.Type != TypeMeasurementUpdate {
					continue
				}
				if m, ok := DecodeMeasurement(ev.Raw); ok {
					out <- m
				}
			case <-done:
				return
			}
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			cancelEvents()
			close(done)
		})
	}
	return out, cancel
}

func (c *Client) setStatusLocked(status Status) {
	if c.status == status {
		return
	}
	c.status = status
	for _, ch := range c.statusSubs {
		select {
		case ch <- status:
		default:
		}
	}
}

func (c *Client) publish(event Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range c.eventSubs {
		select {
		case ch <- event:
		default:
			// Slow subscriber; drop rather than stall the read loop.
		}
	}
}
