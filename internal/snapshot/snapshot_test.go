package snapshot

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/iot-monitor/dashboard/internal/models"
)

func TestSaveDevicesKeepsCategories(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "snapshot.msgpack"))

	assert.NoError(t, s.SaveCategories([]models.Category{{ID: 1, Name: "Sensores"}}))
	assert.NoError(t, s.SaveDevices([]models.Device{{ID: 1, Name: "Boiler", Status: models.StatusActive}}))

	snap, err := s.Load()
	assert.NoError(t, err)
	assert.Len(t, snap.Devices, 1)
	assert.Len(t, snap.Categories, 1, "device save must not drop stored categories")
	assert.Equal(t, "Sensores", snap.Categories[0].Name)
	assert.NotZero(t, snap.SavedAt)
}

func TestLoadMissingFileIsEmpty(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "missing.msgpack"))

	snap, err := s.Load()
	assert.NoError(t, err)
	assert.Len(t, snap.Devices, 0)
	assert.Len(t, snap.Categories, 0)
}

func TestSaveReplacesPreviousDevices(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "snapshot.msgpack"))

	assert.NoError(t, s.SaveDevices([]models.Device{{ID: 1}, {ID: 2}}))
	assert.NoError(t, s.SaveDevices([]models.Device{{ID: 3}}))

	snap, err := s.Load()
	assert.NoError(t, err)
	assert.Len(t, snap.Devices, 1)
	assert.Equal(t, 3, snap.Devices[0].ID)
}
