package ingest

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/nerrad567/gray-logic-telemetry/internal/device"
	"github.com/nerrad567/gray-logic-telemetry/internal/localsensor"
)

const defaultQueueSize = 1024

// Logger matches the logging interface without importing a concrete
// implementation.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// MetricsSink receives numeric attribute values for time-series storage.
// Implementations must not block the ingest loop.
type MetricsSink interface {
	WriteSensorReading(deviceID, attribute string, value float64)
}

// message is one raw MQTT message captured by the subscription callback.
type message struct {
	topic   string
	payload []byte
}

// Consumer decouples MQTT delivery from message processing. Enqueue runs on
// the MQTT client's callback goroutine and only buffers; Run drains the
// buffer on a single goroutine so registry writes never contend with each
// other. When the buffer is full new messages are dropped rather than
// blocking the network client.
type Consumer struct {
	queue chan message

	registry *device.Registry
	sensors  *localsensor.Manager

	// configTopic receives local sensor table updates instead of telemetry.
	// Empty disables the interception.
	configTopic string

	sink   MetricsSink
	logger Logger
}

// NewConsumer returns a consumer draining into registry. Messages arriving
// on configTopic are routed to the sensor manager instead of the registry.
// queueSize <= 0 selects a sensible default.
func NewConsumer(registry *device.Registry, sensors *localsensor.Manager, queueSize int, configTopic string) *Consumer {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}

	return &Consumer{
		queue:       make(chan message, queueSize),
		registry:    registry,
		sensors:     sensors,
		configTopic: configTopic,
		logger:      noopLogger{},
	}
}

// SetLogger replaces the no-op logger. Call before Run.
func (c *Consumer) SetLogger(logger Logger) {
	if logger != nil {
		c.logger = logger
	}
}

// SetMetricsSink enables forwarding of numeric attribute values. Call before
// Run; a nil sink leaves forwarding disabled.
func (c *Consumer) SetMetricsSink(sink MetricsSink) {
	c.sink = sink
}

// Enqueue buffers one raw message for processing. It satisfies the MQTT
// subscription handler signature and never blocks: when the queue is full
// the message is dropped with a warning and the broker connection stays
// healthy.
func (c *Consumer) Enqueue(topic string, payload []byte) error {
	select {
	case c.queue <- message{topic: topic, payload: payload}:
	default:
		c.logger.Warn("ingest queue full, dropping message",
			"topic", topic,
			"queue_capacity", cap(c.queue))
	}

	return nil
}

// Run drains the queue until ctx is cancelled. Malformed messages are logged
// and dropped; the loop itself only stops on cancellation.
func (c *Consumer) Run(ctx context.Context) error {
	c.logger.Info("ingest consumer started", "queue_capacity", cap(c.queue))

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("ingest consumer stopped", "queued", len(c.queue))
			return nil
		case msg := <-c.queue:
			c.handle(msg.topic, msg.payload)
		}
	}
}

// Pending reports how many messages are buffered but not yet processed.
func (c *Consumer) Pending() int {
	return len(c.queue)
}

func (c *Consumer) handle(topic string, payload []byte) {
	if c.configTopic != "" && topic == c.configTopic {
		c.handleSensorUpdate(payload)
		return
	}

	deviceID, tag, err := ParseTopic(topic)
	if err != nil {
		c.logger.Warn("dropping message", "topic", topic, "error", err)
		return
	}

	value, err := device.Normalize(tag, payload)
	if err != nil {
		c.logger.Warn("dropping message",
			"topic", topic,
			"tag", tag,
			"payload", string(payload),
			"error", err)
		return
	}

	attribute := device.CanonicalTag(tag)

	if err := c.registry.Apply(deviceID, attribute, value, time.Now()); err != nil {
		if errors.Is(err, device.ErrUnknownProtocol) {
			c.logger.Warn("unknown protocol id, message dropped",
				"device_id", deviceID,
				"protocol_id", value)
		} else {
			c.logger.Warn("dropping message",
				"device_id", deviceID,
				"attribute", attribute,
				"error", err)
		}
		return
	}

	c.forwardMetric(deviceID, attribute, value)
}

// handleSensorUpdate replaces the local sensor table and renames any live
// records that gained or lost a friendly name.
func (c *Consumer) handleSensorUpdate(payload []byte) {
	summary, err := c.sensors.ApplyRemoteUpdate(payload)
	if err != nil {
		c.logger.Error("rejected local sensor update", "error", err)
		return
	}

	renamed := c.registry.RefreshNames()
	c.logger.Info("applied local sensor update",
		"entries", summary.Entries,
		"renamed_devices", renamed,
		"backup", summary.BackupPath,
		"pruned_backups", summary.PrunedBackups)
}

// forwardMetric hands numeric readings to the time-series sink. Identifier
// attributes are skipped: they are tags on the reading, not measurements.
func (c *Consumer) forwardMetric(deviceID, attribute string, value any) {
	if c.sink == nil {
		return
	}

	switch attribute {
	case device.AttrProtocolID, device.AttrDeviceID:
		return
	}

	f, ok := metricValue(value)
	if !ok {
		return
	}

	c.sink.WriteSensorReading(deviceID, attribute, f)
}

// metricValue coerces a normalized value to float64. String attributes that
// parse as numbers (wind speed, UV index, rainfall) are forwarded alongside
// the typed floats; free text is not.
func metricValue(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}

	return 0, false
}
