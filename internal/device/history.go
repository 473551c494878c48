package device

import (
	"context"
	"encoding/json"
	"time"
)

// Emission records one scheduler publish of one device record.
//
// The emitted payload is stored verbatim so operators can replay exactly what
// downstream consumers saw, even after the record has moved on.
type Emission struct {
	// ID is the auto-incremented primary key for the history row.
	ID int64 `json:"id"`

	// DeviceID is the registry key of the emitted record.
	DeviceID string `json:"device_id"`

	// DeviceName is the resolved name at emission time.
	DeviceName string `json:"device_name"`

	// Category is the output classification segment (house_weather_sensors,
	// other_weather_sensors, other_pressure_sensors, unknown_other_sensors).
	Category string `json:"category"`

	// Topic is the full topic the record was published to.
	Topic string `json:"topic"`

	// Record is the flat JSON payload as published.
	Record json.RawMessage `json:"record"`

	// PublishedAt is the emission timestamp (UTC).
	PublishedAt time.Time `json:"published_at"`
}

// EmissionHistoryRepository stores and retrieves emission history.
//
// Implementations must be thread-safe and use UTC timestamps.
type EmissionHistoryRepository interface {
	// RecordEmission persists one emission.
	RecordEmission(ctx context.Context, e *Emission) error

	// GetEmissions returns recent emissions for the device, newest first.
	// Implementations may clamp limit.
	GetEmissions(ctx context.Context, deviceID string, limit int) ([]Emission, error)
}
