// Package history retains every live measurement in a local DuckDB file so
// charts keep working across restarts and while the upstream is unreachable.
package history

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"sync"
	"time"

	"github.com/marcboeker/go-duckdb"
	"github.com/iot-monitor/dashboard/internal/models"
)

// Store is the DuckDB-backed measurement archive. Writes are batched per
// Record call; queries serve the aggregated-data fallback.
type Store struct {
	db   *sql.DB
	path string

	mu        sync.Mutex
	lastError error
}

// Options tunes the embedded database.
type Options struct {
	Threads     int
	MemoryLimit string
}

// NewStore opens (or creates) the history database at path.
func NewStore(path string, opts Options) (*Store, error) {
	if opts.Threads <= 0 {
		opts.Threads = 2
	}
	if opts.MemoryLimit == "" {
		opts.MemoryLimit = "512MB"
	}

	connector, err := duckdb.NewConnector(path, func(execer driver.ExecerContext) error {
		pragmas := []string{
			fmt.Sprintf("PRAGMA memory_limit='%s'", opts.MemoryLimit),
			fmt.Sprintf("PRAGMA threads=%d", opts.Threads),
			"PRAGMA enable_progress_bar=false",
		}
		for _, pragma := range pragmas {
			if _, err := execer.ExecContext(context.Background(), pragma, nil); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create DuckDB connector: %w", err)
	}

	db := sql.OpenDB(connector)
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS measurements (
			id            INTEGER NOT NULL,
			device        INTEGER NOT NULL,
			device_public VARCHAR NOT NULL,
			metric        VARCHAR NOT NULL,
			value         DOUBLE NOT NULL,
			unit          VARCHAR NOT NULL,
			ts            TIMESTAMP NOT NULL
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create measurements table: %w", err)
	}

	fmt.Printf("[History] Database ready at %s\n", path)
	return &Store{db: db, path: path}, nil
}

// Record archives one live measurement. Failures are remembered, logged and
// otherwise swallowed; history is best-effort and must never stall the feed.
func (s *Store) Record(devicePublicID string, m models.Measurement) {
	value, err := m.FloatValue()
	if err != nil {
		return
	}
	ts, err := parseTimestamp(m.Timestamp)
	if err != nil {
		return
	}

	_, err = s.db.Exec(
		`INSERT INTO measurements (id, device, device_public, metric, value, unit, ts) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.Device, devicePublicID, m.Metric, value, m.Unit, ts,
	)
	if err != nil {
		s.mu.Lock()
		s.lastError = err
		s.mu.Unlock()
		fmt.Printf("[History] Failed to record measurement %d: %v\n", m.ID, err)
	}
}

// LastError returns the most recent write failure, if any.
func (s *Store) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastError
}

// Aggregated answers the aggregated-data shape from the local archive:
// measurements ascending by timestamp plus mean/max/min, bounded to limit.
func (s *Store) Aggregated(devicePublicID string, period models.TimePeriod, metric string, limit int) (*models.AggregatedData, error) {
	if limit <= 0 {
		limit = 100
	}

	where := "device_public = ?"
	args := []any{devicePublicID}
	if metric != "" {
		where += " AND metric = ?"
		args = append(args, metric)
	}
	if interval, ok := periodInterval(period); ok {
		where += " AND ts >= now() - INTERVAL " + interval
	}

	query := fmt.Sprintf(`
		SELECT id, device, metric, value, unit, ts FROM (
			SELECT id, device, metric, value, unit, ts
			FROM measurements WHERE %s
			ORDER BY ts DESC LIMIT %d
		) ORDER BY ts ASC
	`, where, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}
	defer rows.Close()

	data := &models.AggregatedData{Measurements: []models.Measurement{}}
	var sum, min, max float64
	for rows.Next() {
		var (
			m     models.Measurement
			value float64
			ts    time.Time
		)
		if err := rows.Scan(&m.ID, &m.Device, &m.Metric, &value, &m.Unit, &ts); err != nil {
			return nil, fmt.Errorf("scanning history row: %w", err)
		}
		m.Value = fmt.Sprintf("%g", value)
		m.Timestamp = ts.UTC().Format(time.RFC3339)
		data.Measurements = append(data.Measurements, m)

		if data.Count == 0 {
			min, max = value, value
		}
		sum += value
		if value < min {
			min = value
		}
		if value > max {
			max = value
		}
		data.Count++
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading history rows: %w", err)
	}

	if data.Count > 0 {
		mean := sum / float64(data.Count)
		data.Statistics = models.Statistics{Mean: &mean, Max: &max, Min: &min}
	}
	return data, nil
}

// Metrics lists the metric names archived for a device.
func (s *Store) Metrics(devicePublicID string) ([]string, error) {
	rows, err := s.db.Query(
		`SELECT DISTINCT metric FROM measurements WHERE device_public = ? ORDER BY metric`,
		devicePublicID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying metrics: %w", err)
	}
	defer rows.Close()

	var metrics []string
	for rows.Next() {
		var metric string
		if err := rows.Scan(&metric); err != nil {
			return nil, err
		}
		metrics = append(metrics, metric)
	}
	return metrics, rows.Err()
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func periodInterval(period models.TimePeriod) (string, bool) {
	switch period {
	case models.PeriodLast24h:
		return "24 HOUR", true
	case models.PeriodLast7d:
		return "7 DAY", true
	case models.PeriodLast30d:
		return "30 DAY", true
	}
	return "", false
}

func parseTimestamp(value string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, value); err == nil {
		return ts, nil
	}
	return time.Parse(time.RFC3339Nano, value)
}
