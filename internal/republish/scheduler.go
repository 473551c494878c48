package republish

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nerrad567/gray-logic-telemetry/internal/classify"
	"github.com/nerrad567/gray-logic-telemetry/internal/device"
	"github.com/nerrad567/gray-logic-telemetry/internal/infrastructure/mqtt"
)

// Output category segments. Every aggregated record is published under
// exactly one of these; the local sensor table outranks protocol categories.
const (
	CategoryHouseWeather  = "house_weather_sensors"
	CategoryOtherWeather  = "other_weather_sensors"
	CategoryOtherPressure = "other_pressure_sensors"
	CategoryUnknown       = "unknown_other_sensors"
)

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

// Publisher is the transport subset the scheduler needs.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// Classifier resolves protocol ids against the category tables. Lookups are
// read-through; the store reloads itself when its files change.
type Classifier interface {
	InCategory(id, category string) bool
}

// TrackedLookup reports protocol ids singled out for the tracking stream.
type TrackedLookup interface {
	Tracked(id string) bool
}

// SensorTable is the local sensor subset the scheduler needs. ReloadIfStale
// is explicit rather than read-through so a table replacement and the
// registry-wide name refresh happen in the same pass.
type SensorTable interface {
	ReloadIfStale() (bool, error)
	IsLocal(deviceID string) bool
}

// Config carries the scheduler's timing and transport parameters.
type Config struct {
	// Interval is the pass cadence.
	Interval time.Duration

	// MaxStaleness forces a republish of records with no new data after this
	// long, keeping downstream consumers' views from going quiet.
	MaxStaleness time.Duration

	// EvictAfter drops devices not heard from for this long. Zero keeps
	// records forever.
	EvictAfter time.Duration

	// QoS applies to every outbound record.
	QoS byte
}

// Scheduler periodically drains due records from the registry and publishes
// them to their category topics. One Scheduler goroutine exists per daemon;
// passes never overlap.
type Scheduler struct {
	registry  *device.Registry
	sensors   SensorTable
	classes   Classifier
	tracked   TrackedLookup
	publisher Publisher
	topics    mqtt.Topics
	cfg       Config

	history device.EmissionHistoryRepository
	logger  Logger
	now     func() time.Time
}

// NewScheduler wires a scheduler. The tracked lookup may be nil when no
// tracked protocols file is configured.
func NewScheduler(
	registry *device.Registry,
	sensors SensorTable,
	classes Classifier,
	tracked TrackedLookup,
	publisher Publisher,
	topics mqtt.Topics,
	cfg Config,
) *Scheduler {
	return &Scheduler{
		registry:  registry,
		sensors:   sensors,
		classes:   classes,
		tracked:   tracked,
		publisher: publisher,
		topics:    topics,
		cfg:       cfg,
		logger:    noopLogger{},
		now:       time.Now,
	}
}

// SetLogger replaces the no-op logger. Call before Run.
func (s *Scheduler) SetLogger(logger Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// SetHistory enables emission history recording. Call before Run; nil leaves
// recording disabled.
func (s *Scheduler) SetHistory(history device.EmissionHistoryRepository) {
	s.history = history
}

// Run executes passes on the configured cadence until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.logger.Info("republish scheduler started",
		"interval", s.cfg.Interval,
		"max_staleness", s.cfg.MaxStaleness)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("republish scheduler stopped")
			return nil
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce executes a single pass: refresh the local sensor table, publish
// every due record, and evict devices gone silent past the eviction window.
func (s *Scheduler) RunOnce(ctx context.Context) {
	now := s.now()

	if reloaded, err := s.sensors.ReloadIfStale(); err != nil {
		s.logger.Warn("local sensor reload failed", "error", err)
	} else if reloaded {
		renamed := s.registry.RefreshNames()
		s.logger.Info("local sensor table reloaded", "renamed_devices", renamed)
	}

	due := s.registry.ClaimDue(now, s.cfg.MaxStaleness)
	for _, rec := range due {
		s.emit(ctx, rec)
	}

	if evicted := s.registry.EvictIdle(now, s.cfg.EvictAfter); len(evicted) > 0 {
		s.logger.Info("evicted idle devices", "count", len(evicted), "device_ids", evicted)
	}
}

// emit publishes one claimed record. The record is already stamped as
// published; a failed transport write drops this emission rather than
// re-queueing it, and the record surfaces again on new data or staleness.
func (s *Scheduler) emit(ctx context.Context, rec *device.Record) {
	payload, err := json.Marshal(rec)
	if err != nil {
		s.logger.Error("record serialization failed", "device_id", rec.DeviceID, "error", err)
		return
	}

	category := s.categorize(rec)
	topic := s.topics.Sensor(category, rec.DeviceName)

	if err := s.publisher.Publish(topic, payload, s.cfg.QoS, false); err != nil {
		s.logger.Warn("record publish failed",
			"topic", topic,
			"device_id", rec.DeviceID,
			"error", err)
		return
	}
	s.logger.Debug("record published", "topic", topic, "device_id", rec.DeviceID)

	if rec.ProtocolID != "" && s.tracked != nil && s.tracked.Tracked(rec.ProtocolID) {
		trackTopic := s.topics.Tracking(rec.ProtocolID, rec.DeviceName)
		if err := s.publisher.Publish(trackTopic, payload, s.cfg.QoS, false); err != nil {
			s.logger.Warn("tracking publish failed",
				"topic", trackTopic,
				"device_id", rec.DeviceID,
				"error", err)
		}
	}

	s.recordEmission(ctx, rec, category, topic, payload)
}

// categorize resolves the output category for one record. Devices in the
// local sensor table always publish as house weather sensors; everything else
// routes by protocol category, falling through to the catch-all.
func (s *Scheduler) categorize(rec *device.Record) string {
	if s.sensors.IsLocal(rec.DeviceID) {
		return CategoryHouseWeather
	}
	if rec.ProtocolID != "" {
		if s.classes.InCategory(rec.ProtocolID, classify.CategoryWeather) {
			return CategoryOtherWeather
		}
		if s.classes.InCategory(rec.ProtocolID, classify.CategoryPressure) {
			return CategoryOtherPressure
		}
	}
	return CategoryUnknown
}

func (s *Scheduler) recordEmission(ctx context.Context, rec *device.Record, category, topic string, payload []byte) {
	if s.history == nil {
		return
	}

	e := &device.Emission{
		DeviceID:    rec.DeviceID,
		DeviceName:  rec.DeviceName,
		Category:    category,
		Topic:       topic,
		Record:      payload,
		PublishedAt: rec.LastPublished.UTC(),
	}
	if err := s.history.RecordEmission(ctx, e); err != nil {
		s.logger.Warn("emission history write failed", "device_id", rec.DeviceID, "error", err)
	}
}
