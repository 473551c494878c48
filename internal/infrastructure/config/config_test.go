package config

import (
	"os"
	"path/filepath"
	"testing"
)

// validConfig returns a Config that passes Validate, for tests to break
// one field at a time.
func validConfig() *Config {
	cfg := defaultConfig()
	cfg.Topics.Source = "test-host"
	return cfg
}

func TestLoad_ValidConfig(t *testing.T) {
	content := `
mqtt:
  broker:
    host: "broker.example.com"
    port: 1883
    client_id: "test-client"
  qos: 1
  retry:
    max_attempts: 3
    delay: 2
topics:
  root: "KTBMES"
  source: "station-1"
aggregation:
  publish_interval: 5
  max_staleness: 120
persistence:
  path: "/tmp/devices.json"
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.MQTT.Broker.Host != "broker.example.com" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "broker.example.com")
	}

	if cfg.Topics.Root != "KTBMES" {
		t.Errorf("Topics.Root = %q, want %q", cfg.Topics.Root, "KTBMES")
	}

	if cfg.Aggregation.MaxStaleness != 120 {
		t.Errorf("Aggregation.MaxStaleness = %d, want 120", cfg.Aggregation.MaxStaleness)
	}

	if cfg.Persistence.Path != "/tmp/devices.json" {
		t.Errorf("Persistence.Path = %q, want %q", cfg.Persistence.Path, "/tmp/devices.json")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("invalid: [yaml: content"), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_DerivedDefaults(t *testing.T) {
	content := `
topics:
  root: "farm"
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Topics.Source == "" {
		t.Error("Topics.Source should default to the hostname")
	}

	wantSubs := []string{"farm/raw/#", "farm/+/raw/#"}
	if len(cfg.Topics.Subscribe) != len(wantSubs) {
		t.Fatalf("Topics.Subscribe = %v, want %v", cfg.Topics.Subscribe, wantSubs)
	}
	for i, want := range wantSubs {
		if cfg.Topics.Subscribe[i] != want {
			t.Errorf("Topics.Subscribe[%d] = %q, want %q", i, cfg.Topics.Subscribe[i], want)
		}
	}

	if cfg.Topics.SensorUpdates != "farm/config/local_sensors/update" {
		t.Errorf("Topics.SensorUpdates = %q, want %q",
			cfg.Topics.SensorUpdates, "farm/config/local_sensors/update")
	}

	if cfg.Persistence.MinInterval != cfg.Persistence.Interval {
		t.Errorf("Persistence.MinInterval = %d, want interval %d",
			cfg.Persistence.MinInterval, cfg.Persistence.Interval)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid config",
			mutate:  func(*Config) {},
			wantErr: false,
		},
		{
			name:    "missing broker host",
			mutate:  func(c *Config) { c.MQTT.Broker.Host = "" },
			wantErr: true,
		},
		{
			name:    "invalid port low",
			mutate:  func(c *Config) { c.MQTT.Broker.Port = 0 },
			wantErr: true,
		},
		{
			name:    "invalid port high",
			mutate:  func(c *Config) { c.MQTT.Broker.Port = 70000 },
			wantErr: true,
		},
		{
			name:    "invalid QoS",
			mutate:  func(c *Config) { c.MQTT.QoS = 3 },
			wantErr: true,
		},
		{
			name:    "zero retry attempts",
			mutate:  func(c *Config) { c.MQTT.Retry.MaxAttempts = 0 },
			wantErr: true,
		},
		{
			name:    "missing topic root",
			mutate:  func(c *Config) { c.Topics.Root = "" },
			wantErr: true,
		},
		{
			name:    "zero publish interval",
			mutate:  func(c *Config) { c.Aggregation.PublishInterval = 0 },
			wantErr: true,
		},
		{
			name:    "zero max staleness",
			mutate:  func(c *Config) { c.Aggregation.MaxStaleness = 0 },
			wantErr: true,
		},
		{
			name:    "negative evict_after",
			mutate:  func(c *Config) { c.Aggregation.EvictAfter = -1 },
			wantErr: true,
		},
		{
			name:    "missing persistence path",
			mutate:  func(c *Config) { c.Persistence.Path = "" },
			wantErr: true,
		},
		{
			name:    "negative max backups",
			mutate:  func(c *Config) { c.LocalSensors.MaxBackups = -1 },
			wantErr: true,
		},
		{
			name: "database enabled without path",
			mutate: func(c *Config) {
				c.Database.Enabled = true
				c.Database.Path = ""
			},
			wantErr: true,
		},
		{
			name: "influxdb enabled without token",
			mutate: func(c *Config) {
				c.InfluxDB.Enabled = true
				c.InfluxDB.URL = "http://localhost:8086"
				c.InfluxDB.Org = "org"
				c.InfluxDB.Bucket = "bucket"
			},
			wantErr: true,
		},
		{
			name: "rtl433 enabled without binary",
			mutate: func(c *Config) {
				c.RTL433.Enabled = true
				c.RTL433.Binary = ""
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_DurationHelpers(t *testing.T) {
	cfg := &Config{
		Aggregation: AggregationConfig{
			PublishInterval: 10,
			MaxStaleness:    300,
			EvictAfter:      3600,
		},
		Persistence: PersistenceConfig{
			Interval:    60,
			MinInterval: 45,
		},
		LocalSensors: LocalSensorsConfig{
			RetentionDays: 2,
		},
	}

	if got := cfg.Aggregation.PublishCadence().Seconds(); got != 10 {
		t.Errorf("PublishCadence() = %vs, want 10s", got)
	}

	if got := cfg.Aggregation.StalenessLimit().Seconds(); got != 300 {
		t.Errorf("StalenessLimit() = %vs, want 300s", got)
	}

	if got := cfg.Aggregation.EvictAge().Hours(); got != 1 {
		t.Errorf("EvictAge() = %vh, want 1h", got)
	}

	if got := cfg.Persistence.Cadence().Seconds(); got != 60 {
		t.Errorf("Cadence() = %vs, want 60s", got)
	}

	if got := cfg.Persistence.MinGap().Seconds(); got != 45 {
		t.Errorf("MinGap() = %vs, want 45s", got)
	}

	if got := cfg.LocalSensors.RetentionAge().Hours(); got != 48 {
		t.Errorf("RetentionAge() = %vh, want 48h", got)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := defaultConfig()

	t.Setenv("TELEMETRY_MQTT_HOST", "mqtt.example.com")
	t.Setenv("TELEMETRY_MQTT_PORT", "8883")
	t.Setenv("TELEMETRY_MQTT_USERNAME", "testuser")
	t.Setenv("TELEMETRY_MQTT_PASSWORD", "testpass")
	t.Setenv("TELEMETRY_TOPIC_ROOT", "KTBMES")
	t.Setenv("TELEMETRY_SOURCE", "station-9")
	t.Setenv("TELEMETRY_SUBSCRIBE", "KTBMES/raw/#, KTBMES/shed/raw/#")
	t.Setenv("TELEMETRY_MAX_STALENESS", "600")
	t.Setenv("TELEMETRY_MAX_BACKUPS", "4")
	t.Setenv("TELEMETRY_SNAPSHOT_PATH", "/custom/devices.json")
	t.Setenv("TELEMETRY_INFLUXDB_TOKEN", "secret-token")

	if err := applyEnvOverrides(cfg); err != nil {
		t.Fatalf("applyEnvOverrides() error = %v", err)
	}

	if cfg.MQTT.Broker.Host != "mqtt.example.com" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "mqtt.example.com")
	}

	if cfg.MQTT.Broker.Port != 8883 {
		t.Errorf("MQTT.Broker.Port = %d, want 8883", cfg.MQTT.Broker.Port)
	}

	if cfg.MQTT.Auth.Username != "testuser" {
		t.Errorf("MQTT.Auth.Username = %q, want %q", cfg.MQTT.Auth.Username, "testuser")
	}

	if cfg.MQTT.Auth.Password != "testpass" {
		t.Errorf("MQTT.Auth.Password = %q, want %q", cfg.MQTT.Auth.Password, "testpass")
	}

	if cfg.Topics.Root != "KTBMES" {
		t.Errorf("Topics.Root = %q, want %q", cfg.Topics.Root, "KTBMES")
	}

	if cfg.Topics.Source != "station-9" {
		t.Errorf("Topics.Source = %q, want %q", cfg.Topics.Source, "station-9")
	}

	wantSubs := []string{"KTBMES/raw/#", "KTBMES/shed/raw/#"}
	if len(cfg.Topics.Subscribe) != 2 || cfg.Topics.Subscribe[0] != wantSubs[0] || cfg.Topics.Subscribe[1] != wantSubs[1] {
		t.Errorf("Topics.Subscribe = %v, want %v", cfg.Topics.Subscribe, wantSubs)
	}

	if cfg.Aggregation.MaxStaleness != 600 {
		t.Errorf("Aggregation.MaxStaleness = %d, want 600", cfg.Aggregation.MaxStaleness)
	}

	if cfg.LocalSensors.MaxBackups != 4 {
		t.Errorf("LocalSensors.MaxBackups = %d, want 4", cfg.LocalSensors.MaxBackups)
	}

	if cfg.Persistence.Path != "/custom/devices.json" {
		t.Errorf("Persistence.Path = %q, want %q", cfg.Persistence.Path, "/custom/devices.json")
	}

	if cfg.InfluxDB.Token != "secret-token" {
		t.Errorf("InfluxDB.Token = %q, want %q", cfg.InfluxDB.Token, "secret-token")
	}
}

func TestApplyEnvOverrides_BadInt(t *testing.T) {
	cfg := defaultConfig()

	t.Setenv("TELEMETRY_MQTT_PORT", "not-a-number")

	if err := applyEnvOverrides(cfg); err == nil {
		t.Error("applyEnvOverrides() expected error for non-numeric port, got nil")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("defaultConfig MQTT.Broker.Port = %d, want 1883", cfg.MQTT.Broker.Port)
	}

	if cfg.Topics.Root == "" {
		t.Error("defaultConfig should have non-empty Topics.Root")
	}

	if cfg.Aggregation.MaxStaleness != 300 {
		t.Errorf("defaultConfig Aggregation.MaxStaleness = %d, want 300", cfg.Aggregation.MaxStaleness)
	}

	if cfg.Persistence.Path == "" {
		t.Error("defaultConfig should have non-empty Persistence.Path")
	}

	if cfg.Database.Enabled {
		t.Error("defaultConfig should leave the emission history database disabled")
	}
}

func TestConfig_ClassificationPaths(t *testing.T) {
	cfg := defaultConfig()
	cfg.Classification.Dir = "/etc/telemetry"

	if got := cfg.ProtocolsPath(); got != "/etc/telemetry/rtl_433_protocols.json" {
		t.Errorf("ProtocolsPath() = %q", got)
	}

	if got := cfg.CategoriesPath(); got != "/etc/telemetry/device_categories.json" {
		t.Errorf("CategoriesPath() = %q", got)
	}

	if got := cfg.TrackedPath(); got != "/etc/telemetry/tracked_protocols.json" {
		t.Errorf("TrackedPath() = %q", got)
	}
}
