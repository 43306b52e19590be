// Package snapshot persists the last-known device and category lists in a
// compact msgpack file so the dashboard can still render while the upstream
// is unreachable.
package snapshot

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	"github.com/iot-monitor/dashboard/internal/models"
)

// Snapshot is the persisted offline view.
type Snapshot struct {
	Devices    []models.Device   `msgpack:"devices"`
	Categories []models.Category `msgpack:"categories"`
	SavedAt    int64             `msgpack:"savedAt"` // Unix ms
}

// Store reads and writes the snapshot file. Writes are atomic
// (temp file + rename).
type Store struct {
	mu   sync.Mutex
	path string
}

// NewStore creates a snapshot store at the given path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// SaveDevices replaces the device list, keeping the stored categories.
func (s *Store) SaveDevices(devices []models.Device) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, _ := s.loadLocked()
	snap.Devices = devices
	snap.SavedAt = time.Now().UnixMilli()
	return s.writeLocked(snap)
}

// SaveCategories replaces the category list, keeping the stored devices.
func (s *Store) SaveCategories(categories []models.Category) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, _ := s.loadLocked()
	snap.Categories = categories
	snap.SavedAt = time.Now().UnixMilli()
	return s.writeLocked(snap)
}

// Load returns the stored snapshot. A missing file yields an empty snapshot.
func (s *Store) Load() (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked()
}

func (s *Store) loadLocked() (Snapshot, error) {
	var snap Snapshot
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return snap, nil
	}
	if err != nil {
		return snap, fmt.Errorf("reading snapshot: %w", err)
	}
	if err := msgpack.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("decoding snapshot: %w", err)
	}
	return snap, nil
}

func (s *Store) writeLocked(snap Snapshot) error {
	data, err := msgpack.Marshal(&snap)
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("writing snapshot: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replacing snapshot: %w", err)
	}
	return nil
}
