package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/iot-monitor/dashboard/internal/i18n"
	"github.com/iot-monitor/dashboard/internal/models"
	"github.com/iot-monitor/dashboard/internal/testutil"
	"github.com/iot-monitor/dashboard/internal/upstream"
	"github.com/iot-monitor/dashboard/internal/watch"
)

// newTestHandler wires a handler against the fake upstream, with local
// persistence disabled.
func newTestHandler(t *testing.T, up *testutil.Upstream) *Handler {
	t.Helper()
	tokens := newTokenStore(t)
	client := upstream.NewClient(up.URL(), 5*time.Second, tokens)
	watches := watch.NewManager(watch.Config{SocketURL: "ws://127.0.0.1:1"}, nil)
	t.Cleanup(watches.StopAll)

	return NewHandler(
		upstream.NewAuthClient(client),
		upstream.NewDeviceClient(client),
		upstream.NewCategoryClient(client),
		upstream.NewAlertClient(client),
		watches,
		nil,
		nil,
		tokens,
		i18n.Builtin(),
	)
}

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return req
}

func TestHandleLogin(t *testing.T) {
	access := testutil.AccessToken(time.Now().Add(time.Hour), "admin")
	up := testutil.NewUpstream()
	defer up.Close()
	up.HandleJSON("POST", "/token/", http.StatusOK, map[string]string{
		"access":  access,
		"refresh": "refresh-1",
	})

	h := newTestHandler(t, up)
	e := echo.New()
	req := jsonRequest(http.MethodPost, "/api/auth/login", `{"username":"alice","password":"secret"}`)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if assert.NoError(t, h.HandleLogin(c)) {
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"authenticated":true`)
		assert.Contains(t, rec.Body.String(), `"role":"admin"`)
	}
}

func TestHandleLoginMissingFields(t *testing.T) {
	up := testutil.NewUpstream()
	defer up.Close()
	h := newTestHandler(t, up)
	e := echo.New()

	req := jsonRequest(http.MethodPost, "/api/auth/login", `{"password":"secret"}`)
	c := e.NewContext(req, httptest.NewRecorder())

	err := h.HandleLogin(c)
	apiErr := err.(*APIError)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Contains(t, apiErr.Message, "username")
}

func TestHandleLoginBadCredentials(t *testing.T) {
	up := testutil.NewUpstream()
	defer up.Close()
	up.HandleJSON("POST", "/token/", http.StatusUnauthorized, map[string]string{
		"detail": "Credenciais inválidas",
	})

	h := newTestHandler(t, up)
	e := echo.New()
	req := jsonRequest(http.MethodPost, "/api/auth/login", `{"username":"alice","password":"wrong"}`)
	c := e.NewContext(req, httptest.NewRecorder())

	err := h.HandleLogin(c)
	apiErr := err.(*APIError)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.Equal(t, "UNAUTHORIZED", apiErr.Code)
	assert.Equal(t, "Credenciais inválidas", apiErr.Message)
}

func TestHandleLogoutStopsWatchesAndClears(t *testing.T) {
	up := testutil.NewUpstream()
	defer up.Close()
	h := newTestHandler(t, up)
	h.tokens.SetTokens(testutil.AccessToken(time.Now().Add(time.Hour), ""), "r1")

	e := echo.New()
	req := jsonRequest(http.MethodPost, "/api/auth/logout", ``)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if assert.NoError(t, h.HandleLogout(c)) {
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.False(t, h.tokens.IsAuthenticated())
		assert.Len(t, h.watches.List(), 0)
	}
}

const deviceListBody = `{
	"count": 4,
	"results": [
		{"id":1,"public_id":"d-1","name":"Boiler Sensor","status":"active","category":1,"description":"north wing"},
		{"id":2,"public_id":"d-2","name":"Pump Sensor","status":"inactive","category":1},
		{"id":3,"public_id":"d-3","name":"Cooling Fan","status":"active","category":2},
		{"id":4,"public_id":"d-4","name":"Door Contact","status":"error","category":2}
	]
}`

func TestHandleListDevicesFilters(t *testing.T) {
	up := testutil.NewUpstream()
	defer up.Close()
	up.Handle("GET", "/devices/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(deviceListBody))
	})

	h := newTestHandler(t, up)
	e := echo.New()

	// 1. Unfiltered list
	req := httptest.NewRequest(http.MethodGet, "/api/devices", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if assert.NoError(t, h.HandleListDevices(c)) {
		assert.Contains(t, rec.Body.String(), `"totalRecords":4`)
	}

	// 2. Status filter
	req = httptest.NewRequest(http.MethodGet, "/api/devices?status=active", nil)
	rec = httptest.NewRecorder()
	c = e.NewContext(req, rec)
	if assert.NoError(t, h.HandleListDevices(c)) {
		assert.Contains(t, rec.Body.String(), `"totalRecords":2`)
		assert.NotContains(t, rec.Body.String(), "Pump Sensor")
	}

	// 3. Search matches name and description, case-insensitively
	req = httptest.NewRequest(http.MethodGet, "/api/devices?search=NORTH", nil)
	rec = httptest.NewRecorder()
	c = e.NewContext(req, rec)
	if assert.NoError(t, h.HandleListDevices(c)) {
		assert.Contains(t, rec.Body.String(), `"totalRecords":1`)
		assert.Contains(t, rec.Body.String(), "Boiler Sensor")
	}

	// 4. Category filter combined with status
	req = httptest.NewRequest(http.MethodGet, "/api/devices?category=2&status=active", nil)
	rec = httptest.NewRecorder()
	c = e.NewContext(req, rec)
	if assert.NoError(t, h.HandleListDevices(c)) {
		assert.Contains(t, rec.Body.String(), `"totalRecords":1`)
		assert.Contains(t, rec.Body.String(), "Cooling Fan")
	}

	// 5. Paging
	req = httptest.NewRequest(http.MethodGet, "/api/devices?page=2&page_size=3", nil)
	rec = httptest.NewRecorder()
	c = e.NewContext(req, rec)
	if assert.NoError(t, h.HandleListDevices(c)) {
		assert.Contains(t, rec.Body.String(), `"totalRecords":4`)
		assert.Contains(t, rec.Body.String(), `"page":2`)
		assert.Contains(t, rec.Body.String(), "Door Contact")
		assert.NotContains(t, rec.Body.String(), "Boiler Sensor")
	}
}

func TestHandleDashboard(t *testing.T) {
	up := testutil.NewUpstream()
	defer up.Close()
	up.Handle("GET", "/devices/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(deviceListBody))
	})
	up.HandleJSON("GET", "/alerts", http.StatusOK, map[string]any{
		"count": 1,
		"results": []map[string]any{
			{"id": 10, "device": 4, "title": "Porta aberta", "severity": "high", "status": "pending"},
		},
	})

	h := newTestHandler(t, up)
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/dashboard", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if assert.NoError(t, h.HandleDashboard(c)) {
		body := rec.Body.String()
		assert.Contains(t, body, `"active":2`)
		assert.Contains(t, body, `"inactive":1`)
		assert.Contains(t, body, `"error":1`)
		assert.Contains(t, body, `"total":4`)
		assert.Contains(t, body, `"alertCount":1`)
		assert.Contains(t, body, "Porta aberta")
	}
}

func TestHandleDeviceChart(t *testing.T) {
	up := testutil.NewUpstream()
	defer up.Close()
	up.HandleJSON("GET", "/devices/1/", http.StatusOK, map[string]any{
		"id": 1, "public_id": "d-1", "name": "Boiler Sensor", "status": "active",
	})
	up.HandleJSON("GET", "/devices/1/aggregated-data/", http.StatusOK, map[string]any{
		"measurements": []map[string]any{
			{"id": 1, "device": 1, "metric": "temperature", "value": "10", "unit": "°C", "timestamp": "2025-06-01T10:00:00Z"},
			{"id": 2, "device": 1, "metric": "temperature", "value": "30", "unit": "°C", "timestamp": "2025-06-01T10:01:00Z"},
		},
		"statistics": map[string]any{"mean": 20.0, "max": 30.0, "min": 10.0},
		"count":      2,
	})
	up.HandleJSON("GET", "/devices/d-1/thresholds/", http.StatusOK, []map[string]any{
		{"id": 5, "metric_name": "temperature", "min_limit": "5", "max_limit": "35", "is_active": true},
	})

	h := newTestHandler(t, up)
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/devices/1/chart?period=last_24h", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues("1")

	if assert.NoError(t, h.HandleDeviceChart(c)) {
		body := rec.Body.String()
		assert.Contains(t, body, `"unit":"°C"`)
		assert.Contains(t, body, `"mean":20`)
		assert.Contains(t, body, "Limite máximo")
	}
}

func TestHandleDeviceChartBadPeriod(t *testing.T) {
	up := testutil.NewUpstream()
	defer up.Close()
	h := newTestHandler(t, up)
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/devices/1/chart?period=yesterday", nil)
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues("1")

	err := h.HandleDeviceChart(c)
	apiErr := err.(*APIError)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
}

func TestHandleSetLanguage(t *testing.T) {
	up := testutil.NewUpstream()
	defer up.Close()
	h := newTestHandler(t, up)
	e := echo.New()

	req := jsonRequest(http.MethodPut, "/api/language", `{"language":"en-US"}`)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if assert.NoError(t, h.HandleSetLanguage(c)) {
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "en-US", h.tokens.Language())
	}

	req = jsonRequest(http.MethodPut, "/api/language", `{"language":"fr-FR"}`)
	c = e.NewContext(req, httptest.NewRecorder())
	err := h.HandleSetLanguage(c)
	apiErr := err.(*APIError)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
}

func TestFromUpstreamMapsConnectivityTo502(t *testing.T) {
	apiErr := FromUpstream(&upstream.Error{Status: 0, Message: upstream.MsgNoConnection})
	assert.Equal(t, http.StatusBadGateway, apiErr.Status)
	assert.Equal(t, "UPSTREAM_UNREACHABLE", apiErr.Code)
	assert.Equal(t, upstream.MsgNoConnection, apiErr.Message)
}

func TestPaginateDevices(t *testing.T) {
	devices := make([]models.Device, 25)
	for i := range devices {
		devices[i].ID = i + 1
	}

	tests := []struct {
		name     string
		page     int
		pageSize int
		wantLen  int
		firstID  int
	}{
		{"first page", 1, 20, 20, 1},
		{"second page", 2, 20, 5, 21},
		{"out of range", 3, 20, 0, 0},
		{"zero page clamps to first", 0, 10, 10, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := paginateDevices(devices, tt.page, tt.pageSize)
			assert.Len(t, got, tt.wantLen)
			if tt.wantLen > 0 {
				assert.Equal(t, tt.firstID, got[0].ID)
			}
		})
	}
}
