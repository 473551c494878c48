package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteSensorReading records one numeric attribute from a field device.
//
// The ingest consumer calls this for every successfully applied numeric
// attribute, so a device reporting temperature, humidity and signal levels
// produces one point per attribute. The write is non-blocking; points are
// batched and sent asynchronously.
//
// Parameters:
//   - deviceID: Registry key parsed from the raw topic (e.g., "79")
//   - attribute: Canonical attribute name (e.g., "temperature_C")
//   - value: The numeric value to record
//
// Example:
//
//	client.WriteSensorReading("79", "temperature_C", 22.5)
//	client.WriteSensorReading("79", "humidity", 61)
func (c *Client) WriteSensorReading(deviceID string, attribute string, value float64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"sensor_readings",
		map[string]string{
			"device_id": deviceID,
			"attribute": attribute,
		},
		map[string]interface{}{
			"value": value,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}
