package migrations

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-telemetry/internal/device"
	"github.com/nerrad567/gray-logic-telemetry/internal/infrastructure/database"
)

// TestEmbeddedMigrations applies the real embedded migrations to a scratch
// database and verifies the emission history schema comes up.
func TestEmbeddedMigrations(t *testing.T) {
	db, err := database.Open(database.Config{
		Path:        filepath.Join(t.TempDir(), "telemetry.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer db.Close() //nolint:errcheck // Test cleanup

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	var tableName string
	err = db.QueryRowContext(ctx,
		"SELECT name FROM sqlite_master WHERE type='table' AND name='emission_history'",
	).Scan(&tableName)
	if err != nil {
		t.Fatalf("emission_history table not created: %v", err)
	}

	for _, index := range []string{"idx_emission_history_device", "idx_emission_history_time"} {
		var count int
		err = db.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM sqlite_master WHERE type='index' AND name=?", index,
		).Scan(&count)
		if err != nil {
			t.Fatalf("index query error: %v", err)
		}
		if count != 1 {
			t.Errorf("index %s missing after migration", index)
		}
	}

	// Second run is a no-op.
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("second Migrate() error = %v", err)
	}
}

// TestEmbeddedMigrations_HistoryRepo runs the history repository against the
// migrated schema, pinning the migration and the repository together.
func TestEmbeddedMigrations_HistoryRepo(t *testing.T) {
	db, err := database.Open(database.Config{
		Path:        filepath.Join(t.TempDir(), "telemetry.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer db.Close() //nolint:errcheck // Test cleanup

	ctx := context.Background()
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	repo := device.NewSQLiteEmissionHistory(db.DB)

	published := time.Date(2025, 11, 2, 14, 0, 0, 0, time.UTC)
	err = repo.RecordEmission(ctx, &device.Emission{
		DeviceID:    "79",
		DeviceName:  "UNKNOWN_79",
		Category:    "other_weather_sensors",
		Topic:       "telemetry/attic/sensors/other_weather_sensors/UNKNOWN_79",
		Record:      json.RawMessage(`{"device_id":"79","temperature_C":22.5}`),
		PublishedAt: published,
	})
	if err != nil {
		t.Fatalf("RecordEmission() error = %v", err)
	}

	emissions, err := repo.GetEmissions(ctx, "79", 10)
	if err != nil {
		t.Fatalf("GetEmissions() error = %v", err)
	}
	if len(emissions) != 1 {
		t.Fatalf("GetEmissions() returned %d rows, want 1", len(emissions))
	}
	if emissions[0].Category != "other_weather_sensors" {
		t.Errorf("Category = %q, want other_weather_sensors", emissions[0].Category)
	}
	if !emissions[0].PublishedAt.Equal(published) {
		t.Errorf("PublishedAt = %v, want %v", emissions[0].PublishedAt, published)
	}
}
