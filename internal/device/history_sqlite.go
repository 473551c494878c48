package device

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const (
	defaultEmissionLimit = 50
	maxEmissionLimit     = 200
)

// SQLiteEmissionHistory implements EmissionHistoryRepository using SQLite.
//
// It stores the published payload as JSON text in the emission_history table.
type SQLiteEmissionHistory struct {
	db *sql.DB
}

// NewSQLiteEmissionHistory creates a new SQLite emission history repository.
//
// Parameters:
//   - db: Open SQLite connection used for queries
func NewSQLiteEmissionHistory(db *sql.DB) *SQLiteEmissionHistory {
	return &SQLiteEmissionHistory{db: db}
}

// RecordEmission inserts one emission row.
func (r *SQLiteEmissionHistory) RecordEmission(ctx context.Context, e *Emission) error {
	if e == nil {
		return fmt.Errorf("emission is required")
	}
	if e.DeviceID == "" {
		return fmt.Errorf("device id is required")
	}

	record := e.Record
	if record == nil {
		record = []byte("{}")
	}

	publishedAt := e.PublishedAt
	if publishedAt.IsZero() {
		publishedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO emission_history (device_id, device_name, category, topic, record, published_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		e.DeviceID,
		e.DeviceName,
		e.Category,
		e.Topic,
		string(record),
		publishedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting emission history: %w", err)
	}

	return nil
}

// GetEmissions returns recent emissions for a device, ordered newest first.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - deviceID: Registry key of the device
//   - limit: Maximum entries to return (default 50, max 200)
func (r *SQLiteEmissionHistory) GetEmissions(ctx context.Context, deviceID string, limit int) ([]Emission, error) {
	if deviceID == "" {
		return nil, fmt.Errorf("device id is required")
	}
	if limit <= 0 {
		limit = defaultEmissionLimit
	}
	if limit > maxEmissionLimit {
		limit = maxEmissionLimit
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, device_id, device_name, category, topic, record, published_at
		 FROM emission_history
		 WHERE device_id = ?
		 ORDER BY published_at DESC
		 LIMIT ?`,
		deviceID,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying emission history: %w", err)
	}
	defer rows.Close()

	emissions := make([]Emission, 0, limit)
	for rows.Next() {
		var e Emission
		var record string
		var publishedAt string

		if err := rows.Scan(&e.ID, &e.DeviceID, &e.DeviceName, &e.Category, &e.Topic, &record, &publishedAt); err != nil {
			return nil, fmt.Errorf("scanning emission history: %w", err)
		}

		e.Record = []byte(record)

		timestamp, err := parseHistoryTimestamp(publishedAt)
		if err != nil {
			return nil, err
		}
		e.PublishedAt = timestamp

		emissions = append(emissions, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating emission history: %w", err)
	}

	return emissions, nil
}

// PruneEmissions deletes emissions older than the given duration.
//
// Returns the number of rows deleted.
func (r *SQLiteEmissionHistory) PruneEmissions(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, fmt.Errorf("olderThan must be positive")
	}

	cutoff := time.Now().UTC().Add(-olderThan).Format(time.RFC3339)
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM emission_history WHERE published_at < ?",
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("deleting emission history: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}

	return rowsAffected, nil
}

// parseHistoryTimestamp parses a timestamp stored in SQLite.
func parseHistoryTimestamp(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("published_at is empty")
	}

	timestamp, err := time.Parse(time.RFC3339, value)
	if err == nil {
		return timestamp, nil
	}

	fallback, fallbackErr := time.Parse("2006-01-02T15:04:05Z", value)
	if fallbackErr == nil {
		return fallback, nil
	}

	return time.Time{}, fmt.Errorf("parsing published_at: %w", err)
}
