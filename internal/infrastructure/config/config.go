package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for Gray Logic Telemetry.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	MQTT           MQTTConfig           `yaml:"mqtt"`
	Topics         TopicsConfig         `yaml:"topics"`
	Aggregation    AggregationConfig    `yaml:"aggregation"`
	Classification ClassificationConfig `yaml:"classification"`
	LocalSensors   LocalSensorsConfig   `yaml:"local_sensors"`
	Persistence    PersistenceConfig    `yaml:"persistence"`
	Database       DatabaseConfig       `yaml:"database"`
	InfluxDB       InfluxDBConfig       `yaml:"influxdb"`
	RTL433         RTL433Config         `yaml:"rtl433"`
	Logging        LoggingConfig        `yaml:"logging"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig `yaml:"broker"`
	Auth      MQTTAuthConfig   `yaml:"auth"`
	QoS       int              `yaml:"qos"`
	Retry     MQTTRetryConfig  `yaml:"retry"`
	QueueSize int              `yaml:"queue_size"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
// Host may be a literal IP or a hostname; hostnames are resolved on every
// connect cycle so broker failover behind DNS is picked up.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTRetryConfig bounds connect and reconnect attempts. The same policy
// applies to the initial connect and to recovery after an unexpected drop;
// exhausting it is fatal to the process.
type MQTTRetryConfig struct {
	MaxAttempts int `yaml:"max_attempts"`
	Delay       int `yaml:"delay"` // seconds between attempts
}

// RetryDelay returns the pause between connection attempts as a Duration.
func (c MQTTRetryConfig) RetryDelay() time.Duration {
	return time.Duration(c.Delay) * time.Second
}

// TopicsConfig describes the topic namespace the daemon lives in.
type TopicsConfig struct {
	// Root is the first topic segment shared by all traffic (e.g. "telemetry").
	Root string `yaml:"root"`

	// Source identifies this publisher in outbound topics. Defaults to the
	// machine hostname when empty.
	Source string `yaml:"source"`

	// Subscribe lists raw attribute topic patterns. When empty, defaults to
	// <root>/raw/# and <root>/+/raw/#.
	Subscribe []string `yaml:"subscribe"`

	// SensorUpdates is the reserved topic carrying full-replacement local
	// sensor table payloads. Defaults to <root>/config/local_sensors/update.
	SensorUpdates string `yaml:"sensor_updates"`
}

// AggregationConfig tunes the republish scheduler and registry behaviour.
type AggregationConfig struct {
	PublishInterval int `yaml:"publish_interval"` // scheduler cadence, seconds
	MaxStaleness    int `yaml:"max_staleness"`    // force republish after this many seconds
	EvictAfter      int `yaml:"evict_after"`      // drop silent devices after this many seconds; 0 keeps them forever
}

// PublishCadence returns the scheduler tick interval as a Duration.
func (c AggregationConfig) PublishCadence() time.Duration {
	return time.Duration(c.PublishInterval) * time.Second
}

// StalenessLimit returns the maximum age of an emission before a record is
// republished even without new data.
func (c AggregationConfig) StalenessLimit() time.Duration {
	return time.Duration(c.MaxStaleness) * time.Second
}

// EvictAge returns the eviction age, or zero when eviction is disabled.
func (c AggregationConfig) EvictAge() time.Duration {
	return time.Duration(c.EvictAfter) * time.Second
}

// ClassificationConfig locates the hot-reloaded classification sources.
type ClassificationConfig struct {
	Dir            string `yaml:"dir"`
	ProtocolsFile  string `yaml:"protocols_file"`
	CategoriesFile string `yaml:"categories_file"`
	TrackedFile    string `yaml:"tracked_file"`
	PollInterval   int    `yaml:"poll_interval"` // seconds between file staleness checks
}

// Poll returns the minimum interval between file change checks.
func (c ClassificationConfig) Poll() time.Duration {
	return time.Duration(c.PollInterval) * time.Second
}

// LocalSensorsConfig locates the operator-maintained sensor identity table
// and bounds its backup retention.
type LocalSensorsConfig struct {
	File          string `yaml:"file"`
	PollInterval  int    `yaml:"poll_interval"`  // seconds between file staleness checks
	MaxBackups    int    `yaml:"max_backups"`    // newest-first count cap
	RetentionDays int    `yaml:"retention_days"` // age cap; 0 disables the age check
}

// Poll returns the minimum interval between file change checks.
func (c LocalSensorsConfig) Poll() time.Duration {
	return time.Duration(c.PollInterval) * time.Second
}

// RetentionAge returns the backup age cap, or zero when disabled.
func (c LocalSensorsConfig) RetentionAge() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}

// PersistenceConfig controls the registry snapshot writer.
type PersistenceConfig struct {
	Path        string `yaml:"path"`
	Interval    int    `yaml:"interval"`     // snapshot tick cadence, seconds
	MinInterval int    `yaml:"min_interval"` // skip ticks firing sooner than this after a successful write
	WarmStart   bool   `yaml:"warm_start"`
}

// Cadence returns the snapshot tick interval as a Duration.
func (c PersistenceConfig) Cadence() time.Duration {
	return time.Duration(c.Interval) * time.Second
}

// MinGap returns the minimum spacing between successful snapshot writes.
func (c PersistenceConfig) MinGap() time.Duration {
	return time.Duration(c.MinInterval) * time.Second
}

// DatabaseConfig contains SQLite settings for the emission history store.
type DatabaseConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Path          string `yaml:"path"`
	WALMode       bool   `yaml:"wal_mode"`
	BusyTimeout   int    `yaml:"busy_timeout"`   // seconds
	RetentionDays int    `yaml:"retention_days"` // prune emissions older than this at startup; 0 keeps everything
}

// Retention returns the emission history retention window.
func (c DatabaseConfig) Retention() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}

// InfluxDBConfig contains InfluxDB connection settings for the optional
// numeric attribute sink.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"` // seconds
}

// RTL433Config controls optional supervision of a local rtl_433 process.
type RTL433Config struct {
	// Enabled starts rtl_433 as a managed child process. When false the
	// daemon is a pure consumer and the radio head runs elsewhere.
	Enabled bool `yaml:"enabled"`

	// Binary is the path to the rtl_433 executable.
	Binary string `yaml:"binary"`

	// Frequency is passed through as -f when set (e.g. "433.92M").
	Frequency string `yaml:"frequency"`

	// ExtraArgs are appended verbatim to the generated command line.
	ExtraArgs []string `yaml:"extra_args"`

	// RestartDelay is the pause before restarting a crashed process, seconds.
	RestartDelay int `yaml:"restart_delay"`

	// MaxRestarts limits restart attempts. 0 means unlimited.
	MaxRestarts int `yaml:"max_restarts"`
}

// RestartPause returns the delay before restarting a crashed rtl_433.
func (c RTL433Config) RestartPause() time.Duration {
	return time.Duration(c.RestartDelay) * time.Second
}

// LoggingConfig contains logging settings. Output accepts "stdout", "stderr",
// or a file path (opened append-only).
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: TELEMETRY_SECTION_KEY
// For example: TELEMETRY_MQTT_HOST, TELEMETRY_TOPIC_ROOT
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("applying environment overrides: %w", err)
	}

	applyDerivedDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "telemetryd",
			},
			QoS: 1,
			Retry: MQTTRetryConfig{
				MaxAttempts: 5,
				Delay:       5,
			},
			QueueSize: 1024,
		},
		Topics: TopicsConfig{
			Root: "telemetry",
		},
		Aggregation: AggregationConfig{
			PublishInterval: 10,
			MaxStaleness:    300,
			EvictAfter:      0,
		},
		Classification: ClassificationConfig{
			Dir:            "./config",
			ProtocolsFile:  "rtl_433_protocols.json",
			CategoriesFile: "device_categories.json",
			TrackedFile:    "tracked_protocols.json",
			PollInterval:   30,
		},
		LocalSensors: LocalSensorsConfig{
			File:          "./config/local_sensors.json",
			PollInterval:  30,
			MaxBackups:    10,
			RetentionDays: 30,
		},
		Persistence: PersistenceConfig{
			Path:        "./data/devices.json",
			Interval:    60,
			MinInterval: 60,
			WarmStart:   true,
		},
		Database: DatabaseConfig{
			Enabled:       false,
			Path:          "./data/telemetry.db",
			WALMode:       true,
			BusyTimeout:   5,
			RetentionDays: 30,
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		RTL433: RTL433Config{
			Binary:       "/usr/bin/rtl_433",
			RestartDelay: 5,
			MaxRestarts:  10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: TELEMETRY_SECTION_KEY
func applyEnvOverrides(cfg *Config) error {
	// MQTT
	if v := os.Getenv("TELEMETRY_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("TELEMETRY_MQTT_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("TELEMETRY_MQTT_PORT: %w", err)
		}
		cfg.MQTT.Broker.Port = port
	}
	if v := os.Getenv("TELEMETRY_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("TELEMETRY_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// Topics
	if v := os.Getenv("TELEMETRY_TOPIC_ROOT"); v != "" {
		cfg.Topics.Root = v
	}
	if v := os.Getenv("TELEMETRY_SOURCE"); v != "" {
		cfg.Topics.Source = v
	}
	if v := os.Getenv("TELEMETRY_SUBSCRIBE"); v != "" {
		parts := strings.Split(v, ",")
		topics := make([]string, 0, len(parts))
		for _, p := range parts {
			if t := strings.TrimSpace(p); t != "" {
				topics = append(topics, t)
			}
		}
		cfg.Topics.Subscribe = topics
	}
	if v := os.Getenv("TELEMETRY_SENSOR_UPDATES_TOPIC"); v != "" {
		cfg.Topics.SensorUpdates = v
	}

	// Aggregation
	if v := os.Getenv("TELEMETRY_MAX_STALENESS"); v != "" {
		secs, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("TELEMETRY_MAX_STALENESS: %w", err)
		}
		cfg.Aggregation.MaxStaleness = secs
	}

	// Local sensors
	if v := os.Getenv("TELEMETRY_LOCAL_SENSORS_FILE"); v != "" {
		cfg.LocalSensors.File = v
	}
	if v := os.Getenv("TELEMETRY_MAX_BACKUPS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("TELEMETRY_MAX_BACKUPS: %w", err)
		}
		cfg.LocalSensors.MaxBackups = n
	}
	if v := os.Getenv("TELEMETRY_BACKUP_RETENTION_DAYS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("TELEMETRY_BACKUP_RETENTION_DAYS: %w", err)
		}
		cfg.LocalSensors.RetentionDays = n
	}

	// Storage
	if v := os.Getenv("TELEMETRY_SNAPSHOT_PATH"); v != "" {
		cfg.Persistence.Path = v
	}
	if v := os.Getenv("TELEMETRY_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("TELEMETRY_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Logging
	if v := os.Getenv("TELEMETRY_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	return nil
}

// applyDerivedDefaults fills values whose defaults depend on other settings.
func applyDerivedDefaults(cfg *Config) {
	if cfg.Topics.Source == "" {
		if host, err := os.Hostname(); err == nil {
			cfg.Topics.Source = host
		}
	}
	if len(cfg.Topics.Subscribe) == 0 {
		cfg.Topics.Subscribe = []string{
			cfg.Topics.Root + "/raw/#",
			cfg.Topics.Root + "/+/raw/#",
		}
	}
	if cfg.Topics.SensorUpdates == "" {
		cfg.Topics.SensorUpdates = cfg.Topics.Root + "/config/local_sensors/update"
	}
	if cfg.Persistence.MinInterval == 0 {
		cfg.Persistence.MinInterval = cfg.Persistence.Interval
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// MQTT validation
	if c.MQTT.Broker.Host == "" {
		errs = append(errs, "mqtt.broker.host is required")
	}
	if c.MQTT.Broker.Port < 1 || c.MQTT.Broker.Port > 65535 {
		errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
	}
	if c.MQTT.Broker.ClientID == "" {
		errs = append(errs, "mqtt.broker.client_id is required")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Retry.MaxAttempts < 1 {
		errs = append(errs, "mqtt.retry.max_attempts must be at least 1")
	}
	if c.MQTT.Retry.Delay < 0 {
		errs = append(errs, "mqtt.retry.delay must not be negative")
	}
	if c.MQTT.QueueSize < 1 {
		errs = append(errs, "mqtt.queue_size must be at least 1")
	}

	// Topics validation
	if c.Topics.Root == "" {
		errs = append(errs, "topics.root is required")
	}
	if c.Topics.Source == "" {
		errs = append(errs, "topics.source is required (hostname lookup failed; set TELEMETRY_SOURCE)")
	}

	// Aggregation validation
	if c.Aggregation.PublishInterval < 1 {
		errs = append(errs, "aggregation.publish_interval must be at least 1 second")
	}
	if c.Aggregation.MaxStaleness < 1 {
		errs = append(errs, "aggregation.max_staleness must be at least 1 second")
	}
	if c.Aggregation.EvictAfter < 0 {
		errs = append(errs, "aggregation.evict_after must not be negative")
	}

	// Classification validation
	if c.Classification.Dir == "" {
		errs = append(errs, "classification.dir is required")
	}
	if c.Classification.ProtocolsFile == "" {
		errs = append(errs, "classification.protocols_file is required")
	}
	if c.Classification.CategoriesFile == "" {
		errs = append(errs, "classification.categories_file is required")
	}
	if c.Classification.PollInterval < 1 {
		errs = append(errs, "classification.poll_interval must be at least 1 second")
	}

	// Local sensors validation
	if c.LocalSensors.File == "" {
		errs = append(errs, "local_sensors.file is required")
	}
	if c.LocalSensors.MaxBackups < 0 {
		errs = append(errs, "local_sensors.max_backups must not be negative")
	}
	if c.LocalSensors.RetentionDays < 0 {
		errs = append(errs, "local_sensors.retention_days must not be negative")
	}

	// Persistence validation
	if c.Persistence.Path == "" {
		errs = append(errs, "persistence.path is required")
	}
	if c.Persistence.Interval < 1 {
		errs = append(errs, "persistence.interval must be at least 1 second")
	}
	if c.Persistence.MinInterval < 1 {
		errs = append(errs, "persistence.min_interval must be at least 1 second")
	}

	// Database validation
	if c.Database.Enabled && c.Database.Path == "" {
		errs = append(errs, "database.path is required when database.enabled is true")
	}
	if c.Database.RetentionDays < 0 {
		errs = append(errs, "database.retention_days must not be negative")
	}

	// InfluxDB validation
	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" {
			errs = append(errs, "influxdb.url is required when influxdb.enabled is true")
		}
		if c.InfluxDB.Token == "" {
			errs = append(errs, "influxdb.token is required when influxdb.enabled is true (set TELEMETRY_INFLUXDB_TOKEN)")
		}
		if c.InfluxDB.Org == "" {
			errs = append(errs, "influxdb.org is required when influxdb.enabled is true")
		}
		if c.InfluxDB.Bucket == "" {
			errs = append(errs, "influxdb.bucket is required when influxdb.enabled is true")
		}
	}

	// rtl_433 validation
	if c.RTL433.Enabled {
		if c.RTL433.Binary == "" {
			errs = append(errs, "rtl433.binary is required when rtl433.enabled is true")
		}
		if c.RTL433.RestartDelay < 0 {
			errs = append(errs, "rtl433.restart_delay must not be negative")
		}
		if c.RTL433.MaxRestarts < 0 {
			errs = append(errs, "rtl433.max_restarts must not be negative")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// ProtocolsPath returns the full path of the protocol metadata file.
func (c *Config) ProtocolsPath() string {
	return filepath.Join(c.Classification.Dir, c.Classification.ProtocolsFile)
}

// CategoriesPath returns the full path of the protocol category file.
func (c *Config) CategoriesPath() string {
	return filepath.Join(c.Classification.Dir, c.Classification.CategoriesFile)
}

// TrackedPath returns the full path of the tracked protocols file.
func (c *Config) TrackedPath() string {
	return filepath.Join(c.Classification.Dir, c.Classification.TrackedFile)
}
