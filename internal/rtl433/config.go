package rtl433

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Defaults applied by NewManager for zero-valued fields.
const (
	defaultBinary          = "/usr/bin/rtl_433"
	defaultBrokerPort      = 1883
	defaultRestartDelay    = 5 * time.Second
	defaultMaxRestarts     = 10
	defaultGracefulTimeout = 10 * time.Second
)

// Config holds everything needed to launch rtl_433 pointed at the broker the
// daemon itself consumes from.
type Config struct {
	// Enabled starts rtl_433 as a managed child process. When false the
	// daemon is a pure consumer and the radio head runs elsewhere.
	Enabled bool

	// Binary is the path to the rtl_433 executable.
	// Default: "/usr/bin/rtl_433"
	Binary string

	// Frequency is passed through as -f when set (e.g. "433.92M").
	// When empty, rtl_433 uses its own default tuning.
	Frequency string

	// ExtraArgs are appended verbatim after the generated arguments, so
	// operators can reach any rtl_433 flag without a config schema change.
	ExtraArgs []string

	// BrokerHost and BrokerPort locate the MQTT broker rtl_433 publishes to.
	BrokerHost string
	BrokerPort int

	// Username and Password are passed to rtl_433's MQTT output when set.
	Username string
	Password string

	// TopicRoot is the first segment of the raw topic tree. rtl_433 publishes
	// per-attribute messages under <TopicRoot>/raw/<model>/<id>/<field>.
	TopicRoot string

	// RestartDelay is the base pause before restarting a crashed process.
	// Default: 5s
	RestartDelay time.Duration

	// MaxRestarts limits restart attempts. 0 means unlimited.
	// Default: 10
	MaxRestarts int

	// GracefulTimeout is how long to wait for graceful shutdown.
	// Default: 10s
	GracefulTimeout time.Duration
}

// DefaultConfig returns a Config pointed at a local broker. Supervision stays
// disabled until the operator switches it on.
func DefaultConfig() Config {
	return Config{
		Enabled:         false,
		Binary:          defaultBinary,
		BrokerHost:      "localhost",
		BrokerPort:      defaultBrokerPort,
		TopicRoot:       "telemetry",
		RestartDelay:    defaultRestartDelay,
		MaxRestarts:     defaultMaxRestarts,
		GracefulTimeout: defaultGracefulTimeout,
	}
}

// frequencyPattern accepts rtl_433 tuning values: plain Hz or a decimal with
// a k/M/G suffix (e.g. "433920000", "433.92M").
var frequencyPattern = regexp.MustCompile(`^\d+(\.\d+)?[kMG]?$`)

// Validate checks the configuration for errors. Only enabled configurations
// are checked; a disabled supervisor never launches anything, so its
// remaining fields are irrelevant.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}

	if c.Binary == "" {
		return fmt.Errorf("rtl_433 binary path is required")
	}
	if c.BrokerHost == "" {
		return fmt.Errorf("broker host is required")
	}
	if c.BrokerPort < 1 || c.BrokerPort > 65535 {
		return fmt.Errorf("broker port must be between 1 and 65535")
	}
	if c.TopicRoot == "" {
		return fmt.Errorf("topic root is required")
	}
	if c.Frequency != "" && !frequencyPattern.MatchString(c.Frequency) {
		return fmt.Errorf("invalid frequency %q (use Hz or a k/M/G suffix, e.g. 433.92M)", c.Frequency)
	}
	if c.RestartDelay < 0 {
		return fmt.Errorf("restart delay must not be negative")
	}
	if c.MaxRestarts < 0 {
		return fmt.Errorf("max restarts must not be negative")
	}

	return nil
}

// BuildArgs constructs the command-line arguments for rtl_433.
func (c *Config) BuildArgs() []string {
	var args []string

	// Tuning (-f), only when the operator pinned a frequency
	if c.Frequency != "" {
		args = append(args, "-f", c.Frequency)
	}

	// MQTT output (-F) pointed at the broker the daemon consumes from
	args = append(args, "-F", c.OutputArg())

	// Operator escape hatch, appended last so it can override anything
	args = append(args, c.ExtraArgs...)

	return args
}

// OutputArg constructs the -F value wiring rtl_433's per-attribute output
// into the raw topic tree. retain=0 keeps stale attribute values from
// greeting late subscribers; devices= makes rtl_433 publish one topic per
// decoded field under <root>/raw.
func (c *Config) OutputArg() string {
	var b strings.Builder
	fmt.Fprintf(&b, "mqtt://%s:%d", c.BrokerHost, c.BrokerPort)
	if c.Username != "" {
		fmt.Fprintf(&b, ",user=%s", c.Username)
	}
	if c.Password != "" {
		fmt.Fprintf(&b, ",pass=%s", c.Password)
	}
	fmt.Fprintf(&b, ",retain=0,devices=%s/raw", c.TopicRoot)
	return b.String()
}
