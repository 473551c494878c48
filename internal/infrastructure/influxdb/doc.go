// Package influxdb provides the optional time-series sink for sensor
// readings.
//
// It wraps the official influxdb-client-go v2 library with the patterns used
// across this codebase for connection management, batched writing, and health
// monitoring.
//
// # Purpose
//
// When enabled, every numeric attribute that the ingest consumer applies to
// the registry is also written here as one point in the sensor_readings
// measurement, tagged by device id and attribute name. That gives Grafana
// and friends a queryable history independent of the MQTT republish stream.
//
// # Usage
//
//	cfg := config.InfluxDBConfig{
//	    Enabled: true,
//	    URL:     "http://localhost:8086",
//	    Token:   "your-token",
//	    Org:     "telemetry",
//	    Bucket:  "sensors",
//	}
//
//	client, err := influxdb.Connect(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	client.WriteSensorReading("79", "temperature_C", 22.5)
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// The underlying write API uses non-blocking batched writes.
//
// # Error Handling
//
// Write operations are non-blocking; batch errors surface through the
// SetOnError callback and are logged, never fatal. Connection and health
// check errors are returned directly.
//
// # Performance
//
// Writes are batched according to config.yaml settings (batch_size,
// flush_interval). This reduces network overhead for high-frequency
// telemetry data.
package influxdb
