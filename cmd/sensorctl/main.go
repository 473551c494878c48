// Local sensor table publisher.
//
// sensorctl pushes a replacement local-sensor table to running telemetryd
// instances over MQTT. The file is validated with the same rules the daemon
// applies on receipt, so a broken table is rejected before it leaves the
// operator's machine instead of being dropped silently on the other end.
//
// Usage:
//
//	sensorctl -config configs/config.yaml -file sensors.json
//	sensorctl -file sensors.json -topic telemetry/config/local_sensors/update
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/nerrad567/gray-logic-telemetry/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-telemetry/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-telemetry/internal/localsensor"
)

// Version information - set at build time via ldflags
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	configFlag := flag.String("config", "", "path to the configuration file")
	fileFlag := flag.String("file", "", "path to the local sensor table JSON file")
	topicFlag := flag.String("topic", "", "override the update topic from the config")
	versionFlag := flag.Bool("version", false, "print version information and exit")
	flag.Parse()

	if *versionFlag {
		fmt.Printf("sensorctl %s (commit %s, built %s)\n", version, commit, date)
		return
	}

	if *fileFlag == "" {
		fmt.Fprintln(os.Stderr, "Error: -file is required")
		flag.Usage()
		os.Exit(2)
	}

	if err := run(*configFlag, *fileFlag, *topicFlag); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run validates the table file and publishes it, separated from main for
// testability.
func run(configPath, filePath, topicOverride string) error {
	if configPath == "" {
		configPath = getConfigPath()
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	payload, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("reading sensor table: %w", err)
	}

	entries, err := localsensor.ValidateUpdate(payload)
	if err != nil {
		return fmt.Errorf("validating %s: %w", filePath, err)
	}
	fmt.Printf("validated %s: %d entries\n", filePath, entries)

	topic := topicOverride
	if topic == "" {
		topic = cfg.Topics.SensorUpdates
	}

	// Own identity on the broker: reusing the daemon's client id would kick
	// it off the broker, and reusing its source would clobber the retained
	// status topic it maintains.
	cfg.MQTT.Broker.ClientID = fmt.Sprintf("%s-sensorctl-%d", cfg.MQTT.Broker.ClientID, os.Getpid())
	topics := mqtt.NewTopics(cfg.Topics.Root, "sensorctl")

	fmt.Printf("connecting to %s:%d\n", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port)
	client, err := mqtt.Connect(cfg.MQTT, topics)
	if err != nil {
		return fmt.Errorf("connecting to broker: %w", err)
	}
	defer client.Close()

	qos := byte(cfg.MQTT.QoS) //nolint:gosec // G115: validated 0-2
	if err := client.Publish(topic, payload, qos, false); err != nil {
		return fmt.Errorf("publishing update: %w", err)
	}

	fmt.Printf("published %d entries to %s\n", entries, topic)
	return nil
}

// getConfigPath determines the configuration file path from the environment.
func getConfigPath() string {
	if path := os.Getenv("TELEMETRY_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
