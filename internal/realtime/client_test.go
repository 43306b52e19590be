package realtime

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
)

// newSocketServer starts a websocket endpoint that hands each accepted
// connection to handler, and returns the ws:// base URL.
func newSocketServer(t *testing.T, handler func(conn *websocket.Conn)) string {
	t.Helper()
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		handler(conn)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestDeviceURL(t *testing.T) {
	c := NewClient("ws://host:8000/", Config{})
	assert.Equal(t, "ws://host:8000/ws/device/abc-123/", c.DeviceURL("abc-123"))
}

func TestConnectAndReceiveMeasurement(t *testing.T) {
	frame := `{"type":"measurement_update","measurement":{"id":1,"device":2,"metric":"temperature","value":"21.5","unit":"°C","timestamp":"2025-06-01T10:00:00Z"}}`
	done := make(chan struct{})
	url := newSocketServer(t, func(conn *websocket.Conn) {
		conn.WriteMessage(websocket.TextMessage, []byte(frame))
		<-done
		conn.Close()
	})
	defer close(done)

	c := NewClient(url, Config{ReconnectDelay: time.Hour})
	updates, cancel := c.MeasurementUpdates()
	defer cancel()

	c.ConnectToDevice("abc-123")
	assert.Equal(t, StatusConnected, c.Status())

	select {
	case m := <-updates:
		assert.Equal(t, 1, m.ID)
		assert.Equal(t, "temperature", m.Metric)
		assert.Equal(t, "21.5", m.Value)
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for measurement")
	}
}

func TestMalformedFramesCountedAndDropped(t *testing.T) {
	done := make(chan struct{})
	url := newSocketServer(t, func(conn *websocket.Conn) {
		conn.WriteMessage(websocket.TextMessage, []byte(`not json`))
		conn.WriteMessage(websocket.TextMessage, []byte(`{"no_type":true}`))
		conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"connection_established","message":"ok"}`))
		<-done
		conn.Close()
	})
	defer close(done)

	c := NewClient(url, Config{ReconnectDelay: time.Hour})
	events, cancel := c.Events()
	defer cancel()

	c.ConnectToDevice("abc-123")

	select {
	case ev := <-events:
		assert.Equal(t, TypeConnectionEstablished, ev.Type)
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for event")
	}

	inbound, _ := c.Dropped()
	assert.Equal(t, 2, inbound)
}

func TestStringTypedMeasurementExcludedFromDerivedStream(t *testing.T) {
	// id arrives as a string; structurally invalid for the measurement stream
	// but still visible as a raw event.
	frame := `{"type":"measurement_update","measurement":{"id":"1","device":2,"metric":"t","value":"1","unit":"u","timestamp":"2025-06-01T10:00:00Z"}}`
	done := make(chan struct{})
	url := newSocketServer(t, func(conn *websocket.Conn) {
		conn.WriteMessage(websocket.TextMessage, []byte(frame))
		<-done
		conn.Close()
	})
	defer close(done)

	c := NewClient(url, Config{ReconnectDelay: time.Hour})
	events, cancelEvents := c.Events()
	defer cancelEvents()
	updates, cancelUpdates := c.MeasurementUpdates()
	defer cancelUpdates()

	c.ConnectToDevice("abc-123")

	select {
	case ev := <-events:
		assert.Equal(t, TypeMeasurementUpdate, ev.Type)
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for raw event")
	}

	select {
	case m := <-updates:
		t.Fatalf("Unexpected measurement on derived stream: %+v", m)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestNormalCloseSuppressesReconnect(t *testing.T) {
	url := newSocketServer(t, func(conn *websocket.Conn) {
		deadline := time.Now().Add(time.Second)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "done")
		conn.WriteControl(websocket.CloseMessage, msg, deadline)
		conn.Close()
	})

	c := NewClient(url, Config{ReconnectDelay: 10 * time.Millisecond})
	c.ConnectToDevice("abc-123")

	assert.Eventually(t, func() bool {
		return c.Status() == StatusDisconnected
	}, 2*time.Second, 10*time.Millisecond)

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 0, c.ReconnectAttempts())
	assert.Equal(t, StatusDisconnected, c.Status())
}

func TestAbnormalCloseSchedulesReconnect(t *testing.T) {
	url := newSocketServer(t, func(conn *websocket.Conn) {
		deadline := time.Now().Add(time.Second)
		msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "restarting")
		conn.WriteControl(websocket.CloseMessage, msg, deadline)
		conn.Close()
	})

	// A delay long enough that the pending retry never fires during the test.
	c := NewClient(url, Config{ReconnectDelay: time.Hour})
	c.ConnectToDevice("abc-123")

	assert.Eventually(t, func() bool {
		return c.ReconnectAttempts() == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestDisconnectCancelsPendingReconnect(t *testing.T) {
	url := newSocketServer(t, func(conn *websocket.Conn) {
		deadline := time.Now().Add(time.Second)
		msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "restarting")
		conn.WriteControl(websocket.CloseMessage, msg, deadline)
		conn.Close()
	})

	c := NewClient(url, Config{ReconnectDelay: time.Hour})
	c.ConnectToDevice("abc-123")

	assert.Eventually(t, func() bool {
		return c.ReconnectAttempts() == 1
	}, 2*time.Second, 10*time.Millisecond)

	c.Disconnect()
	assert.Equal(t, 0, c.ReconnectAttempts())
	assert.Equal(t, StatusDisconnected, c.Status())
}

func TestDialFailureSchedulesReconnect(t *testing.T) {
	// Nothing listens on port 1.
	c := NewClient("ws://127.0.0.1:1", Config{ReconnectDelay: time.Hour, MaxReconnectAttempts: 5})
	c.ConnectToDevice("abc-123")

	assert.Equal(t, 1, c.ReconnectAttempts())
	assert.Equal(t, StatusDisconnected, c.Status())

	c.Disconnect()
	assert.Equal(t, 0, c.ReconnectAttempts())
}

func TestSendWhileDisconnectedDrops(t *testing.T) {
	c := NewClient("ws://127.0.0.1:1", Config{ReconnectDelay: time.Hour})

	err := c.Send(map[string]string{"command": "refresh"})
	assert.NoError(t, err, "outbound drops are silent")

	_, outbound := c.Dropped()
	assert.Equal(t, 1, outbound)
}

// waitForStatus drains the status stream until want arrives.
func waitForStatus(t *testing.T, ch <-chan Status, want Status) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case s := <-ch:
			if s == want {
				return
			}
		case <-deadline:
			t.Fatalf("Timed out waiting for status %s", want)
		}
	}
}

func TestConcurrentConnectOpensOneConnection(t *testing.T) {
	var mu sync.Mutex
	accepted := 0
	done := make(chan struct{})
	url := newSocketServer(t, func(conn *websocket.Conn) {
		mu.Lock()
		accepted++
		mu.Unlock()
		<-done
		conn.Close()
	})
	defer close(done)

	c := NewClient(url, Config{ReconnectDelay: time.Hour})

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.ConnectToDevice("abc-123")
		}()
	}
	wg.Wait()

	assert.Equal(t, StatusConnected, c.Status())
	time.Sleep(100 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, accepted, "a dial in flight blocks a second connect")
}

func TestDisconnectDuringDialDiscardsSocket(t *testing.T) {
	gate := make(chan struct{})
	upgraded := make(chan *websocket.Conn, 1)
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-gate
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		upgraded <- conn
	}))
	t.Cleanup(srv.Close)
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	c := NewClient(url, Config{ReconnectDelay: time.Hour})
	statuses, cancel := c.SubscribeStatus()
	defer cancel()

	go c.ConnectToDevice("abc-123")
	waitForStatus(t, statuses, StatusConnecting)

	// Disconnect lands while the handshake is still blocked on the gate.
	c.Disconnect()
	close(gate)

	select {
	case conn := <-upgraded:
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, _, err := conn.ReadMessage()
		assert.Error(t, err, "the socket opened mid-disconnect is closed, not installed")
		conn.Close()
	case <-time.After(2 * time.Second):
		t.Fatal("Handshake never completed")
	}

	assert.Eventually(t, func() bool {
		return c.Status() == StatusDisconnected
	}, 2*time.Second, 10*time.Millisecond)
	assert.False(t, c.IsConnected())
	assert.Equal(t, 0, c.ReconnectAttempts())
}

func TestStatusSubscriptionReplays(t *testing.T) {
	c := NewClient("ws://127.0.0.1:1", Config{ReconnectDelay: time.Hour})
	ch, cancel := c.SubscribeStatus()
	defer cancel()

	assert.Equal(t, StatusDisconnected, <-ch)
}
