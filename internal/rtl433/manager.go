package rtl433

import (
	"context"
	"fmt"
	"strings"

	"github.com/nerrad567/gray-logic-telemetry/internal/process"
)

// Logger defines the logging interface for the rtl_433 supervisor.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Manager supervises an rtl_433 child process.
type Manager struct {
	config  Config
	process *process.Manager
	logger  Logger
}

// NewManager creates a new rtl_433 supervisor.
func NewManager(cfg Config) (*Manager, error) {
	// Apply defaults for zero values
	if cfg.Binary == "" {
		cfg.Binary = defaultBinary
	}
	if cfg.BrokerPort == 0 {
		cfg.BrokerPort = defaultBrokerPort
	}
	if cfg.RestartDelay == 0 {
		cfg.RestartDelay = defaultRestartDelay
	}
	if cfg.GracefulTimeout == 0 {
		cfg.GracefulTimeout = defaultGracefulTimeout
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid rtl_433 config: %w", err)
	}

	return &Manager{
		config: cfg,
		logger: noopLogger{},
	}, nil
}

// SetLogger sets the logger for the supervisor.
func (m *Manager) SetLogger(logger Logger) {
	m.logger = logger
}

// Start launches rtl_433. There is no readiness probe: the process announces
// itself by publishing, and the consumer picks those messages up whenever
// they arrive.
func (m *Manager) Start(ctx context.Context) error {
	if !m.config.Enabled {
		m.logger.Info("rtl_433 supervision disabled, expecting external radio head")
		return nil
	}

	args := m.config.BuildArgs()

	m.logger.Info("starting rtl_433",
		"binary", m.config.Binary,
		"args", redactArgs(args),
		"frequency", m.config.Frequency,
	)

	procConfig := process.Config{
		Name:               "rtl_433",
		Binary:             m.config.Binary,
		Args:               args,
		RestartOnFailure:   true,
		RestartDelay:       m.config.RestartDelay,
		MaxRestartAttempts: m.config.MaxRestarts,
		GracefulTimeout:    m.config.GracefulTimeout,
		OnStart: func() {
			m.logger.Info("rtl_433 process started", "pid", m.process.PID())
		},
		OnStop: func(err error) {
			if err != nil {
				m.logger.Warn("rtl_433 process stopped", "error", err)
			} else {
				m.logger.Info("rtl_433 process stopped")
			}
		},
		OnRestart: func(attempt int) {
			m.logger.Info("rtl_433 restarting", "attempt", attempt)
		},
	}

	m.process = process.NewManager(procConfig)
	m.process.SetLogger(m.logger)

	if err := m.process.Start(ctx); err != nil {
		return fmt.Errorf("starting rtl_433: %w", err)
	}

	return nil
}

// Stop gracefully stops rtl_433.
func (m *Manager) Stop() error {
	if !m.config.Enabled || m.process == nil {
		return nil
	}

	m.logger.Info("stopping rtl_433")
	return m.process.Stop()
}

// IsRunning returns true if rtl_433 is currently running.
func (m *Manager) IsRunning() bool {
	if m.process == nil {
		return false
	}
	return m.process.IsRunning()
}

// IsEnabled returns true if this supervisor is managing rtl_433.
func (m *Manager) IsEnabled() bool {
	return m.config.Enabled
}

// RestartCount returns how many times rtl_433 has been restarted.
func (m *Manager) RestartCount() int {
	if m.process == nil {
		return 0
	}
	return m.process.RestartCount()
}

// redactArgs returns a copy of args safe for logging: MQTT passwords inside
// -F values are masked.
func redactArgs(args []string) []string {
	out := make([]string, len(args))
	for i, arg := range args {
		if !strings.Contains(arg, "pass=") {
			out[i] = arg
			continue
		}
		parts := strings.Split(arg, ",")
		for j, part := range parts {
			if strings.HasPrefix(part, "pass=") {
				parts[j] = "pass=****"
			}
		}
		out[i] = strings.Join(parts, ",")
	}
	return out
}
