package watch

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/iot-monitor/dashboard/internal/models"
	"github.com/iot-monitor/dashboard/internal/realtime"
)

func newTestManager() *Manager {
	// Nothing listens on port 1; sessions stay in their retry state, which is
	// enough to exercise the session lifecycle.
	return NewManager(Config{
		SocketURL:      "ws://127.0.0.1:1",
		Realtime:       realtime.Config{ReconnectDelay: time.Hour},
		MaxChartPoints: 100,
		RecentLimit:    10,
	}, nil)
}

func TestStartReusesExistingSession(t *testing.T) {
	m := newTestManager()
	defer m.StopAll()

	first, err := m.Start("d-1", nil, nil, "temperature")
	assert.NoError(t, err)
	second, err := m.Start("d-1", nil, nil, "temperature")
	assert.NoError(t, err)

	assert.Equal(t, first.ID, second.ID, "one session per device")
	assert.Len(t, m.List(), 1)
}

func TestSessionLimit(t *testing.T) {
	m := newTestManager()
	defer m.StopAll()

	for i := 0; i < MaxSessions; i++ {
		_, err := m.Start(fmt.Sprintf("d-%d", i), nil, nil, "")
		assert.NoError(t, err)
	}

	_, err := m.Start("d-too-many", nil, nil, "")
	assert.Error(t, err)
}

func TestStopRemovesSession(t *testing.T) {
	m := newTestManager()
	defer m.StopAll()

	_, err := m.Start("d-1", nil, nil, "")
	assert.NoError(t, err)

	m.Stop("d-1")
	_, ok := m.Get("d-1")
	assert.False(t, ok)
	assert.Len(t, m.List(), 0)
}

func TestSeedPrimesAggregator(t *testing.T) {
	m := newTestManager()
	defer m.StopAll()

	seed := []models.Measurement{
		{ID: 1, Metric: "temperature", Value: "10", Unit: "°C", Timestamp: "2025-06-01T10:00:00Z"},
		{ID: 2, Metric: "temperature", Value: "20", Unit: "°C", Timestamp: "2025-06-01T10:01:00Z"},
	}
	session, err := m.Start("d-1", seed, nil, "temperature")
	assert.NoError(t, err)

	assert.Equal(t, 2, session.Aggregator.Len())
	assert.Equal(t, "°C", session.Aggregator.Unit())
	stats := session.Aggregator.Statistics()
	assert.Equal(t, 15.0, *stats.Mean)
}

func TestCleanupIdleSessions(t *testing.T) {
	m := newTestManager()
	defer m.StopAll()

	stale, err := m.Start("d-stale", nil, nil, "")
	assert.NoError(t, err)
	fresh, err := m.Start("d-fresh", nil, nil, "")
	assert.NoError(t, err)

	// Age the first session past the cutoff.
	stale.mu.Lock()
	stale.lastAccessed = time.Now().Add(-time.Hour)
	stale.mu.Unlock()
	fresh.Touch()

	m.CleanupIdleSessions(30 * time.Minute)

	_, ok := m.Get("d-stale")
	assert.False(t, ok)
	_, ok = m.Get("d-fresh")
	assert.True(t, ok)
}

func TestRecentNewestFirst(t *testing.T) {
	m := newTestManager()
	defer m.StopAll()

	session, err := m.Start("d-1", nil, nil, "")
	assert.NoError(t, err)

	for i := 1; i <= 12; i++ {
		session.feed(models.Measurement{ID: i, Value: "1", Timestamp: "2025-06-01T10:00:00Z"})
	}

	recent := session.Recent()
	assert.Len(t, recent, 10, "recent list is capped")
	assert.Equal(t, 12, recent[0].ID, "newest first")
	assert.Equal(t, 3, recent[9].ID)
}

func TestPublishedSessionAlwaysStoppable(t *testing.T) {
	m := newTestManager()
	defer m.StopAll()

	// A Stop that observes the session through the map must always find the
	// feed cancel hook in place, even when it races Start.
	found := make(chan *Session, 1)
	go func() {
		deadline := time.Now().Add(2 * time.Second)
		for time.Now().Before(deadline) {
			if s, ok := m.Get("d-race"); ok {
				found <- s
				return
			}
		}
		found <- nil
	}()

	_, err := m.Start("d-race", nil, nil, "")
	assert.NoError(t, err)

	s := <-found
	if assert.NotNil(t, s, "session never became visible") {
		assert.NotNil(t, s.cancelFeed, "visible session must carry its cancel hook")
	}
	m.Stop("d-race")
	_, ok := m.Get("d-race")
	assert.False(t, ok)
}
