// Package watch manages live device watch sessions: one realtime client plus
// one aggregator per watched device, with idle cleanup.
package watch

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/iot-monitor/dashboard/internal/aggregate"
	"github.com/iot-monitor/dashboard/internal/models"
	"github.com/iot-monitor/dashboard/internal/realtime"
)

// MaxSessions limits concurrent watches to keep one socket per viewed device
// and prevent connection leaks.
const MaxSessions = 10

// Recorder receives every live measurement for local history retention.
type Recorder interface {
	Record(devicePublicID string, m models.Measurement)
}

// Session is one live watch: the socket, the rolling buffer, and the
// recent-measurement list (newest first).
type Session struct {
	ID           string
	DevicePublic string
	Client       *realtime.Client
	Aggregator   *aggregate.Aggregator

	mu           sync.Mutex
	recent       []models.Measurement
	recentLimit  int
	count        int
	startTime    time.Time
	lastAccessed time.Time
	cancelFeed   func()
}

// Recent returns a copy of the last measurements, newest first.
func (s *Session) Recent() []models.Measurement {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Measurement, len(s.recent))
	copy(out, s.recent)
	return out
}

// Touch marks the session as actively used (keep-alive).
func (s *Session) Touch() {
	s.mu.Lock()
	s.lastAccessed = time.Now()
	s.mu.Unlock()
}

// Info projects the session into its transport-facing model.
func (s *Session) Info() models.WatchSession {
	s.mu.Lock()
	count := s.count
	start := s.startTime
	s.mu.Unlock()

	in, out := s.Client.Dropped()
	return models.WatchSession{
		ID:           s.ID,
		DevicePublic: s.DevicePublic,
		Status:       models.WatchStatus(s.Client.Status()),
		StartTime:    start.UnixMilli(),
		Measurements: count,
		DroppedIn:    in,
		DroppedOut:   out,
		Reconnects:   s.Client.ReconnectAttempts(),
	}
}

func (s *Session) feed(m models.Measurement) {
	s.Aggregator.Append(m)
	s.mu.Lock()
	s.count++
	s.lastAccessed = time.Now()
	s.recent = append([]models.Measurement{m}, s.recent...)
	if len(s.recent) > s.recentLimit {
		s.recent = s.recent[:s.recentLimit]
	}
	s.mu.Unlock()
}

// Config tunes new sessions.
type Config struct {
	SocketURL      string
	Realtime       realtime.Config
	MaxChartPoints int
	RecentLimit    int
}

// Manager owns the active watch sessions, keyed by device public id.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	cfg      Config
	recorder Recorder
}

// NewManager creates a watch manager. recorder may be nil.
func NewManager(cfg Config, recorder Recorder) *Manager {
	if cfg.RecentLimit <= 0 {
		cfg.RecentLimit = 10
	}
	return &Manager{
		sessions: make(map[string]*Session),
		cfg:      cfg,
		recorder: recorder,
	}
}

// Start opens a watch for a device, seeding the aggregator with a historical
// batch. Starting an already-watched device returns the existing session.
func (m *Manager) Start(devicePublicID string, seed []models.Measurement, th *models.Threshold, label string) (*Session, error) {
	m.mu.Lock()
	if existing, ok := m.sessions[devicePublicID]; ok {
		m.mu.Unlock()
		existing.Touch()
		return existing, nil
	}
	if len(m.sessions) >= MaxSessions {
		m.mu.Unlock()
		return nil, fmt.Errorf("watch limit reached (%d active sessions)", MaxSessions)
	}

	agg := aggregate.New(m.cfg.MaxChartPoints)
	if label != "" {
		agg.SetLabel(label)
	}
	agg.SetThreshold(th)
	agg.Load(seed)

	session := &Session{
		ID:           uuid.New().String(),
		DevicePublic: devicePublicID,
		Client:       realtime.NewClient(m.cfg.SocketURL, m.cfg.Realtime),
		Aggregator:   agg,
		recentLimit:  m.cfg.RecentLimit,
		startTime:    time.Now(),
		lastAccessed: time.Now(),
	}
	// Subscribe before the session becomes visible so a racing Stop always
	// finds cancelFeed set.
	updates, cancel := session.Client.MeasurementUpdates()
	session.cancelFeed = cancel
	m.sessions[devicePublicID] = session
	m.mu.Unlock()

	go func() {
		for measurement := range updates {
			session.feed(measurement)
			if m.recorder != nil {
				m.recorder.Record(devicePublicID, measurement)
			}
		}
	}()

	session.Client.ConnectToDevice(devicePublicID)
	fmt.Printf("[Watch] Session %s started for device %s\n", session.ID, devicePublicID)
	return session, nil
}

// Get returns the active session for a device, if any.
func (m *Manager) Get(devicePublicID string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[devicePublicID]
	return s, ok
}

// Stop tears down the watch for a device: the socket is closed with the
// intentional code and any pending reconnect is cancelled.
func (m *Manager) Stop(devicePublicID string) {
	m.mu.Lock()
	session, ok := m.sessions[devicePublicID]
	if ok {
		delete(m.sessions, devicePublicID)
	}
	m.mu.Unlock()

	if !ok {
		return
	}
	session.Client.Disconnect()
	if session.cancelFeed != nil {
		session.cancelFeed()
	}
	fmt.Printf("[Watch] Session %s stopped for device %s\n", session.ID, devicePublicID)
}

// StopAll tears down every session. Called on shutdown; no orphaned
// connections are permitted.
func (m *Manager) StopAll() {
	m.mu.Lock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		m.Stop(id)
	}
}

// List returns the transport-facing view of all active sessions.
func (m *Manager) List() []models.WatchSession {
	m.mu.RLock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.RUnlock()

	out := make([]models.WatchSession, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.Info())
	}
	return out
}

// CleanupIdleSessions stops sessions not touched within maxAge.
func (m *Manager) CleanupIdleSessions(maxAge time.Duration) {
	cutoff := time.Now().Add(-maxAge)

	m.mu.RLock()
	var idle []string
	for id, s := range m.sessions {
		s.mu.Lock()
		last := s.lastAccessed
		s.mu.Unlock()
		if last.Before(cutoff) {
			idle = append(idle, id)
		}
	}
	m.mu.RUnlock()

	for _, id := range idle {
		fmt.Printf("[Watch] Cleaning up idle session for device %s\n", id)
		m.Stop(id)
	}
}
