package rtl433

import (
	"context"
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestNewManager_Defaults(t *testing.T) {
	cfg := Config{
		Enabled:    true,
		BrokerHost: "localhost",
		TopicRoot:  "telemetry",
	}

	m, err := NewManager(cfg)
	if err != nil {
		t.Fatalf("NewManager() error: %v", err)
	}

	// Verify defaults are applied
	if m.config.Binary != "/usr/bin/rtl_433" {
		t.Errorf("Binary = %q, want %q", m.config.Binary, "/usr/bin/rtl_433")
	}
	if m.config.BrokerPort != 1883 {
		t.Errorf("BrokerPort = %d, want %d", m.config.BrokerPort, 1883)
	}
	if m.config.RestartDelay != 5*time.Second {
		t.Errorf("RestartDelay = %v, want %v", m.config.RestartDelay, 5*time.Second)
	}
	if m.config.GracefulTimeout != 10*time.Second {
		t.Errorf("GracefulTimeout = %v, want %v", m.config.GracefulTimeout, 10*time.Second)
	}
}

func TestNewManager_CustomConfig(t *testing.T) {
	cfg := Config{
		Enabled:      true,
		Binary:       "/opt/rtl/bin/rtl_433",
		Frequency:    "868M",
		BrokerHost:   "broker.lan",
		BrokerPort:   8883,
		TopicRoot:    "house",
		RestartDelay: 10 * time.Second,
		MaxRestarts:  5,
	}

	m, err := NewManager(cfg)
	if err != nil {
		t.Fatalf("NewManager() error: %v", err)
	}

	if m.config.Binary != "/opt/rtl/bin/rtl_433" {
		t.Errorf("Binary = %q, want %q", m.config.Binary, "/opt/rtl/bin/rtl_433")
	}
	if m.config.BrokerPort != 8883 {
		t.Errorf("BrokerPort = %d, want %d", m.config.BrokerPort, 8883)
	}
	if m.config.RestartDelay != 10*time.Second {
		t.Errorf("RestartDelay = %v, want %v", m.config.RestartDelay, 10*time.Second)
	}
}

func TestNewManager_InvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{
			name: "missing broker host",
			cfg: Config{
				Enabled:   true,
				TopicRoot: "telemetry",
			},
		},
		{
			name: "missing topic root",
			cfg: Config{
				Enabled:    true,
				BrokerHost: "localhost",
			},
		},
		{
			name: "broker port out of range",
			cfg: Config{
				Enabled:    true,
				BrokerHost: "localhost",
				BrokerPort: 99999,
				TopicRoot:  "telemetry",
			},
		},
		{
			name: "invalid frequency",
			cfg: Config{
				Enabled:    true,
				BrokerHost: "localhost",
				TopicRoot:  "telemetry",
				Frequency:  "fast",
			},
		},
		{
			name: "frequency with bad suffix",
			cfg: Config{
				Enabled:    true,
				BrokerHost: "localhost",
				TopicRoot:  "telemetry",
				Frequency:  "433.92X",
			},
		},
		{
			name: "negative restart delay",
			cfg: Config{
				Enabled:      true,
				BrokerHost:   "localhost",
				TopicRoot:    "telemetry",
				RestartDelay: -1 * time.Second,
			},
		},
		{
			name: "negative max restarts",
			cfg: Config{
				Enabled:     true,
				BrokerHost:  "localhost",
				TopicRoot:   "telemetry",
				MaxRestarts: -1,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewManager(tt.cfg)
			if err == nil {
				t.Error("NewManager() expected error, got nil")
			}
		})
	}
}

func TestNewManager_DisabledSkipsValidation(t *testing.T) {
	// A disabled supervisor never launches anything, so an otherwise-invalid
	// config must not block daemon startup.
	m, err := NewManager(Config{Enabled: false})
	if err != nil {
		t.Fatalf("NewManager() error: %v", err)
	}
	if m.IsEnabled() {
		t.Error("IsEnabled() = true, want false")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Enabled {
		t.Error("Enabled = true, want false")
	}
	if cfg.Binary != "/usr/bin/rtl_433" {
		t.Errorf("Binary = %q, want %q", cfg.Binary, "/usr/bin/rtl_433")
	}
	if cfg.BrokerPort != 1883 {
		t.Errorf("BrokerPort = %d, want 1883", cfg.BrokerPort)
	}
	if cfg.MaxRestarts != 10 {
		t.Errorf("MaxRestarts = %d, want 10", cfg.MaxRestarts)
	}

	// Default config should validate cleanly once enabled
	cfg.Enabled = true
	if err := cfg.Validate(); err != nil {
		t.Errorf("enabled DefaultConfig().Validate() error: %v", err)
	}
}

func TestValidate_Frequencies(t *testing.T) {
	tests := []struct {
		freq    string
		wantErr bool
	}{
		{"", false}, // unset, rtl_433 default tuning
		{"433920000", false},
		{"433.92M", false},
		{"868M", false},
		{"315k", false},
		{"1.090G", false},
		{"fast", true},
		{"433.92X", true},
		{"-433M", true},
		{"433.92 M", true},
	}

	for _, tt := range tests {
		t.Run(tt.freq, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Enabled = true
			cfg.Frequency = tt.freq
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() with frequency %q error = %v, wantErr %v", tt.freq, err, tt.wantErr)
			}
		})
	}
}

func TestBuildArgs(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want []string
	}{
		{
			name: "minimal",
			cfg: Config{
				BrokerHost: "localhost",
				BrokerPort: 1883,
				TopicRoot:  "telemetry",
			},
			want: []string{"-F", "mqtt://localhost:1883,retain=0,devices=telemetry/raw"},
		},
		{
			name: "with frequency",
			cfg: Config{
				Frequency:  "433.92M",
				BrokerHost: "localhost",
				BrokerPort: 1883,
				TopicRoot:  "telemetry",
			},
			want: []string{"-f", "433.92M", "-F", "mqtt://localhost:1883,retain=0,devices=telemetry/raw"},
		},
		{
			name: "with auth",
			cfg: Config{
				BrokerHost: "broker.lan",
				BrokerPort: 1883,
				Username:   "iot",
				Password:   "hunter2",
				TopicRoot:  "telemetry",
			},
			want: []string{"-F", "mqtt://broker.lan:1883,user=iot,pass=hunter2,retain=0,devices=telemetry/raw"},
		},
		{
			name: "extra args appended last",
			cfg: Config{
				Frequency:  "868M",
				BrokerHost: "localhost",
				BrokerPort: 1883,
				TopicRoot:  "house",
				ExtraArgs:  []string{"-M", "level", "-R", "40"},
			},
			want: []string{
				"-f", "868M",
				"-F", "mqtt://localhost:1883,retain=0,devices=house/raw",
				"-M", "level", "-R", "40",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.cfg.BuildArgs()
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("BuildArgs() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRedactArgs(t *testing.T) {
	args := []string{
		"-f", "433.92M",
		"-F", "mqtt://broker.lan:1883,user=iot,pass=hunter2,retain=0,devices=telemetry/raw",
	}

	got := redactArgs(args)

	joined := strings.Join(got, " ")
	if strings.Contains(joined, "hunter2") {
		t.Errorf("redactArgs() leaked password: %v", got)
	}
	if !strings.Contains(joined, "pass=****") {
		t.Errorf("redactArgs() missing mask: %v", got)
	}
	if !strings.Contains(joined, "user=iot") {
		t.Errorf("redactArgs() should keep username: %v", got)
	}
	if got[0] != "-f" || got[1] != "433.92M" {
		t.Errorf("redactArgs() altered unrelated args: %v", got)
	}

	// Input must not be mutated
	if !strings.Contains(args[3], "pass=hunter2") {
		t.Errorf("redactArgs() mutated input: %v", args)
	}
}

func TestManager_StartDisabled(t *testing.T) {
	m, err := NewManager(Config{Enabled: false})
	if err != nil {
		t.Fatalf("NewManager() error: %v", err)
	}

	if err := m.Start(context.Background()); err != nil {
		t.Errorf("Start() on disabled supervisor error = %v, want nil", err)
	}
	if m.IsRunning() {
		t.Error("IsRunning() = true, want false")
	}
	if err := m.Stop(); err != nil {
		t.Errorf("Stop() on disabled supervisor error = %v, want nil", err)
	}
}

func TestManager_StopWhenNeverStarted(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = true

	m, err := NewManager(cfg)
	if err != nil {
		t.Fatalf("NewManager() error: %v", err)
	}

	if err := m.Stop(); err != nil {
		t.Errorf("Stop() before Start() error = %v, want nil", err)
	}
	if m.RestartCount() != 0 {
		t.Errorf("RestartCount() = %d, want 0", m.RestartCount())
	}
}
