package mqtt

import "fmt"

// Topics builds every topic in the telemetry hierarchy from the configured
// root and source segments. Constructing one value at startup and passing it
// around keeps topic naming consistent across the daemon and the CLI.
//
//	topics := mqtt.NewTopics("telemetry", "attic")
//	topics.Sensor("house_weather_sensors", "garage_fridge")
//	// Returns: "telemetry/attic/sensors/house_weather_sensors/garage_fridge"
type Topics struct {
	// Root is the first segment of every topic, shared by all services
	// talking to the broker.
	Root string

	// Source identifies this receiver in outbound topics, so several
	// receivers can share a broker without colliding.
	Source string
}

// NewTopics returns a Topics value for the given root and source segments.
func NewTopics(root, source string) Topics {
	return Topics{Root: root, Source: source}
}

// =============================================================================
// Outbound Topics
// =============================================================================

// Sensor returns the aggregated record topic for one device in one category.
//
// Example: telemetry/attic/sensors/other_weather_sensors/UNKNOWN_79
func (t Topics) Sensor(category, deviceName string) string {
	return fmt.Sprintf("%s/%s/sensors/%s/%s", t.Root, t.Source, category, deviceName)
}

// Tracking returns the per-protocol stream topic for a tracked device.
// Records whose protocol id is in the tracked set are published here in
// addition to their category topic.
//
// Example: telemetry/attic/tracking/40/garage_fridge
func (t Topics) Tracking(protocolID, deviceName string) string {
	return fmt.Sprintf("%s/%s/tracking/%s/%s", t.Root, t.Source, protocolID, deviceName)
}

// Status returns the retained online/offline status topic. The LWT is
// registered against the same topic so crashes and graceful shutdowns are
// distinguishable by payload, not location.
//
// Example: telemetry/attic/status
func (t Topics) Status() string {
	return fmt.Sprintf("%s/%s/status", t.Root, t.Source)
}

// =============================================================================
// Inbound Topics
// =============================================================================

// SensorUpdates returns the reserved topic carrying full-replacement local
// sensor tables. Messages here are intercepted before attribute processing.
//
// Example: telemetry/config/local_sensors/update
func (t Topics) SensorUpdates() string {
	return fmt.Sprintf("%s/config/local_sensors/update", t.Root)
}

// =============================================================================
// Wildcard Patterns for Subscriptions
// =============================================================================

// RawDirect returns the pattern matching per-attribute messages published
// directly under the root, the layout rtl_433 uses when pointed at
// "<root>/raw".
//
// Pattern: telemetry/raw/#
func (t Topics) RawDirect() string {
	return fmt.Sprintf("%s/raw/#", t.Root)
}

// RawNested returns the pattern matching per-attribute messages nested one
// source segment deep, for radio heads that include their own identity.
//
// Pattern: telemetry/+/raw/#
func (t Topics) RawNested() string {
	return fmt.Sprintf("%s/+/raw/#", t.Root)
}

// All returns a pattern matching every topic under the root.
// Use with caution - this receives ALL traffic.
//
// Pattern: telemetry/#
func (t Topics) All() string {
	return fmt.Sprintf("%s/#", t.Root)
}
