package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/iot-monitor/dashboard/internal/realtime"
)

// WebSocket message types for the device stream protocol
const (
	// Client -> Server messages
	MsgTypePing  = "ping"
	MsgTypeSend  = "device:send"
	MsgTypeTouch = "watch:touch"

	// Server -> Client messages
	MsgTypeConnected   = "connected"
	MsgTypePong        = "pong"
	MsgTypeStatus      = "status"
	MsgTypeMeasurement = "measurement"
	MsgTypeChart       = "chart"
	MsgTypeError       = "error"
)

// WebSocket message structure
type WSMessage struct {
	Type      string          `json:"type"`
	ID        string          `json:"id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// Device send payload: an opaque JSON object relayed to the device socket.
type WSSendPayload struct {
	Data json.RawMessage `json:"data"`
}

// WebSocket error response
type WSErrorResponse struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// WebSocketHandler bridges browser connections onto the per-device watch
// sessions: one upgrade per viewer, fanning the session's status and
// measurement streams out as typed messages.
type WebSocketHandler struct {
	handler  *Handler
	upgrader websocket.Upgrader
}

// NewWebSocketHandler creates the browser-facing stream handler.
func NewWebSocketHandler(h *Handler) *WebSocketHandler {
	return &WebSocketHandler{
		handler: h,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// Allow connections from dev server
				return true
			},
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 16 * 1024,
		},
	}
}

// HandleDeviceStream upgrades the HTTP connection and streams one device's
// live session to the browser. The watch session is started on demand and
// shared between viewers; closing the browser socket never tears it down,
// only the watch DELETE endpoint does.
func (wsh *WebSocketHandler) HandleDeviceStream(c echo.Context) error {
	publicID := c.Param("publicId")
	if publicID == "" {
		return NewValidationError("publicId")
	}

	session, err := wsh.handler.watches.Start(publicID, nil, nil, c.QueryParam("metric"))
	if err != nil {
		return NewConflictError(err.Error())
	}

	ws, err := wsh.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer ws.Close()

	fmt.Printf("[WebSocket] Viewer connected for device %s\n", publicID)

	// Writes come from the fan-in goroutine and the read loop.
	var writeMu sync.Mutex

	wsh.sendMessage(ws, &writeMu, WSMessage{
		Type:      MsgTypeConnected,
		ID:        session.ID,
		Timestamp: time.Now().UnixMilli(),
	})

	done := make(chan struct{})
	statusCh, cancelStatus := session.Client.SubscribeStatus()
	defer cancelStatus()
	updates, cancelUpdates := session.Client.MeasurementUpdates()
	defer cancelUpdates()

	go func() {
		for {
			select {
			case status, ok := <-statusCh:
				if !ok {
					return
				}
				wsh.sendMessage(ws, &writeMu, WSMessage{
					Type:      MsgTypeStatus,
					ID:        session.ID,
					Timestamp: time.Now().UnixMilli(),
					Payload:   mustJSON(map[string]string{"status": string(status)}),
				})
			case m, ok := <-updates:
				if !ok {
					return
				}
				wsh.sendMessage(ws, &writeMu, WSMessage{
					Type:      MsgTypeMeasurement,
					ID:        session.ID,
					Timestamp: time.Now().UnixMilli(),
					Payload:   mustJSON(m),
				})
				wsh.sendMessage(ws, &writeMu, WSMessage{
					Type:      MsgTypeChart,
					ID:        session.ID,
					Timestamp: time.Now().UnixMilli(),
					Payload: mustJSON(map[string]any{
						"chart":      session.Aggregator.Chart(),
						"statistics": session.Aggregator.Statistics(),
						"unit":       session.Aggregator.Unit(),
					}),
				})
			case <-done:
				return
			}
		}
	}()

	// Main message loop
	for {
		var msg WSMessage
		if err := ws.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				fmt.Printf("[WebSocket] Connection error: %v\n", err)
			}
			break
		}
		session.Touch()

		switch msg.Type {
		case MsgTypePing:
			wsh.sendMessage(ws, &writeMu, WSMessage{Type: MsgTypePong, Timestamp: time.Now().UnixMilli()})
		case MsgTypeTouch:
			// Touch already happened above; nothing else to do.
		case MsgTypeSend:
			wsh.handleDeviceSend(ws, &writeMu, session.Client, msg)
		default:
			wsh.sendError(ws, &writeMu, "Unknown message type: "+msg.Type, "INVALID_TYPE")
		}
	}
	close(done)

	fmt.Printf("[WebSocket] Viewer disconnected from device %s\n", publicID)
	return nil
}

// handleDeviceSend relays an opaque payload to the device socket. When the
// upstream socket is not open the relay drops the payload; the client only
// gets an error frame for a malformed request.
func (wsh *WebSocketHandler) handleDeviceSend(ws *websocket.Conn, writeMu *sync.Mutex, client *realtime.Client, msg WSMessage) {
	var payload WSSendPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		wsh.sendError(ws, writeMu, "Invalid send payload: "+err.Error(), "INVALID_PAYLOAD")
		return
	}
	if len(payload.Data) == 0 {
		wsh.sendError(ws, writeMu, "Empty send payload", "INVALID_PAYLOAD")
		return
	}
	if err := client.Send(payload.Data); err != nil {
		fmt.Printf("[WebSocket] Relay dropped payload: %v\n", err)
	}
}

// sendMessage writes a message, logging failures rather than surfacing them.
func (wsh *WebSocketHandler) sendMessage(ws *websocket.Conn, writeMu *sync.Mutex, msg WSMessage) {
	writeMu.Lock()
	defer writeMu.Unlock()
	if err := ws.WriteJSON(msg); err != nil {
		fmt.Printf("[WebSocket] Failed to send message: %v\n", err)
	}
}

// sendError sends an error message to the client
func (wsh *WebSocketHandler) sendError(ws *websocket.Conn, writeMu *sync.Mutex, message, code string) {
	wsh.sendMessage(ws, writeMu, WSMessage{
		Type:      MsgTypeError,
		Timestamp: time.Now().UnixMilli(),
		Payload: mustJSON(WSErrorResponse{
			Type:    MsgTypeError,
			Message: message,
			Code:    code,
		}),
	})
}

// mustJSON marshals to a raw message, degrading to an empty object on error.
func mustJSON(v interface{}) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return []byte("{}")
	}
	return data
}
