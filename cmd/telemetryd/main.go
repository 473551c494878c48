// Telemetry aggregation daemon.
//
// telemetryd consumes per-attribute radio sensor messages from an MQTT
// broker, aggregates them into per-device records, and republishes each
// record to a category topic whenever it has new data or has gone stale.
// Along the way it keeps a JSON snapshot of the registry for warm restarts,
// optionally records every emission in SQLite, optionally forwards numeric
// attributes to InfluxDB, and optionally supervises a local rtl_433 process.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	_ "github.com/nerrad567/gray-logic-telemetry/migrations"

	"github.com/nerrad567/gray-logic-telemetry/internal/classify"
	"github.com/nerrad567/gray-logic-telemetry/internal/device"
	"github.com/nerrad567/gray-logic-telemetry/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-telemetry/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-telemetry/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-telemetry/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-telemetry/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-telemetry/internal/ingest"
	"github.com/nerrad567/gray-logic-telemetry/internal/localsensor"
	"github.com/nerrad567/gray-logic-telemetry/internal/persist"
	"github.com/nerrad567/gray-logic-telemetry/internal/republish"
	"github.com/nerrad567/gray-logic-telemetry/internal/rtl433"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	configFlag := flag.String("config", "", "path to the configuration file")
	versionFlag := flag.Bool("version", false, "print version information and exit")
	flag.Parse()

	if *versionFlag {
		fmt.Printf("telemetryd %s (commit %s, built %s)\n", version, commit, date)
		return
	}

	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cancel, *configFlag); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// cancel is invoked when a fatal background failure (exhausted MQTT
// reconnection) should bring the whole process down.
func run(ctx context.Context, cancel context.CancelFunc, configPath string) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting telemetryd",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	if configPath == "" {
		configPath = getConfigPath()
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	topics := mqtt.NewTopics(cfg.Topics.Root, cfg.Topics.Source)

	// Classification tables; a missing or broken table fails startup
	classes := classify.NewStore(cfg.ProtocolsPath(), cfg.CategoriesPath(), cfg.Classification.Poll())
	classes.SetLogger(log)
	if loadErr := classes.Load(); loadErr != nil {
		return fmt.Errorf("loading classification tables: %w", loadErr)
	}
	log.Info("classification tables loaded", "protocols", classes.ProtocolCount())

	// Tracked protocols are optional; a missing file disables the stream
	var trackedLookup republish.TrackedLookup
	if cfg.Classification.TrackedFile != "" {
		trackedSet := classify.NewTrackedSet(cfg.TrackedPath(), cfg.Classification.Poll())
		trackedSet.SetLogger(log)
		if loadErr := trackedSet.Load(); loadErr != nil {
			return fmt.Errorf("loading tracked protocols: %w", loadErr)
		}
		log.Info("tracked protocols loaded", "count", trackedSet.Len())
		trackedLookup = trackedSet
	}

	// Local sensor identity table; a missing file starts empty
	sensors := localsensor.NewManager(
		cfg.LocalSensors.File,
		cfg.LocalSensors.Poll(),
		cfg.LocalSensors.MaxBackups,
		cfg.LocalSensors.RetentionAge(),
	)
	sensors.SetLogger(log)
	if loadErr := sensors.Load(); loadErr != nil {
		return fmt.Errorf("loading local sensor table: %w", loadErr)
	}
	log.Info("local sensor table loaded", "sensors", sensors.Count(), "path", sensors.Path())

	// Device registry
	registry := device.NewRegistry(classes, sensors)
	registry.SetLogger(log)

	// Registry snapshots, with warm start when a snapshot survives a restart
	writer := persist.NewWriter(registry, persist.Config{
		Path:     cfg.Persistence.Path,
		Interval: cfg.Persistence.Cadence(),
		MinGap:   cfg.Persistence.MinGap(),
	})
	writer.SetLogger(log)
	if cfg.Persistence.WarmStart {
		restored, loadErr := writer.Load()
		if loadErr != nil {
			log.Warn("registry snapshot unusable, starting empty",
				"path", cfg.Persistence.Path,
				"error", loadErr,
			)
		} else if restored > 0 {
			log.Info("registry warm start", "devices", restored)
		}
	}

	// Emission history (optional)
	var history *device.SQLiteEmissionHistory
	if cfg.Database.Enabled {
		db, dbErr := database.Open(database.Config{
			Path:        cfg.Database.Path,
			WALMode:     cfg.Database.WALMode,
			BusyTimeout: cfg.Database.BusyTimeout,
		})
		if dbErr != nil {
			return fmt.Errorf("opening database: %w", dbErr)
		}
		defer func() {
			log.Info("closing database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		}()

		if migrateErr := db.Migrate(ctx); migrateErr != nil {
			return fmt.Errorf("running migrations: %w", migrateErr)
		}
		log.Info("database ready", "path", cfg.Database.Path)

		history = device.NewSQLiteEmissionHistory(db.DB)
		if retention := cfg.Database.Retention(); retention > 0 {
			pruned, pruneErr := history.PruneEmissions(ctx, retention)
			if pruneErr != nil {
				log.Warn("emission history prune failed", "error", pruneErr)
			} else if pruned > 0 {
				log.Info("emission history pruned", "rows", pruned, "older_than", retention)
			}
		}
	} else {
		log.Info("emission history disabled")
	}

	// InfluxDB sink (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Connect to the MQTT broker; exhausting the bounded retry is fatal
	mqttClient, err := mqtt.Connect(cfg.MQTT, topics)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	mqttClient.SetLogger(log)
	mqttClient.SetOnReconnectExhausted(func(err error) {
		log.Error("MQTT reconnection exhausted, shutting down", "error", err)
		cancel()
	})
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	// Ingest consumer: paho's callback goroutine enqueues, one worker drains
	consumer := ingest.NewConsumer(registry, sensors, cfg.MQTT.QueueSize, cfg.Topics.SensorUpdates)
	consumer.SetLogger(log)
	if influxClient != nil {
		consumer.SetMetricsSink(influxClient)
	}

	// Republish scheduler
	sched := republish.NewScheduler(registry, sensors, classes, trackedLookup, mqttClient, topics, republish.Config{
		Interval:     cfg.Aggregation.PublishCadence(),
		MaxStaleness: cfg.Aggregation.StalenessLimit(),
		EvictAfter:   cfg.Aggregation.EvictAge(),
		QoS:          byte(cfg.MQTT.QoS), //nolint:gosec // G115: validated 0-2
	})
	sched.SetLogger(log)
	if history != nil {
		sched.SetHistory(history)
	}

	// Workers start before subscriptions so messages flow as soon as the
	// broker delivers them
	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		if runErr := consumer.Run(ctx); runErr != nil {
			log.Error("ingest consumer exited", "error", runErr)
		}
	}()
	go func() {
		defer wg.Done()
		if runErr := sched.Run(ctx); runErr != nil {
			log.Error("republish scheduler exited", "error", runErr)
		}
	}()
	go func() {
		defer wg.Done()
		if runErr := writer.Run(ctx); runErr != nil {
			log.Error("snapshot writer exited", "error", runErr)
		}
	}()

	// Subscriptions: raw attribute patterns plus the sensor table update topic
	qos := byte(cfg.MQTT.QoS) //nolint:gosec // G115: validated 0-2
	for _, pattern := range cfg.Topics.Subscribe {
		if subErr := mqttClient.Subscribe(pattern, qos, consumer.Enqueue); subErr != nil {
			return fmt.Errorf("subscribing to %s: %w", pattern, subErr)
		}
		log.Info("subscribed", "topic", pattern)
	}
	if subErr := mqttClient.Subscribe(cfg.Topics.SensorUpdates, qos, consumer.Enqueue); subErr != nil {
		return fmt.Errorf("subscribing to %s: %w", cfg.Topics.SensorUpdates, subErr)
	}
	log.Info("subscribed", "topic", cfg.Topics.SensorUpdates)

	// rtl_433 supervision (optional)
	radio, err := rtl433.NewManager(rtl433.Config{
		Enabled:      cfg.RTL433.Enabled,
		Binary:       cfg.RTL433.Binary,
		Frequency:    cfg.RTL433.Frequency,
		ExtraArgs:    cfg.RTL433.ExtraArgs,
		BrokerHost:   cfg.MQTT.Broker.Host,
		BrokerPort:   cfg.MQTT.Broker.Port,
		Username:     cfg.MQTT.Auth.Username,
		Password:     cfg.MQTT.Auth.Password,
		TopicRoot:    cfg.Topics.Root,
		RestartDelay: cfg.RTL433.RestartPause(),
		MaxRestarts:  cfg.RTL433.MaxRestarts,
	})
	if err != nil {
		return fmt.Errorf("configuring rtl_433 supervision: %w", err)
	}
	radio.SetLogger(log)
	if startErr := radio.Start(ctx); startErr != nil {
		return fmt.Errorf("starting rtl_433: %w", startErr)
	}
	defer func() {
		if stopErr := radio.Stop(); stopErr != nil {
			log.Error("error stopping rtl_433", "error", stopErr)
		}
	}()

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Let the workers finish their current pass before the final snapshot,
	// so nothing mutates the registry mid-export
	wg.Wait()

	if flushErr := writer.Flush(); flushErr != nil {
		log.Error("final registry snapshot failed", "error", flushErr)
	} else {
		log.Info("final registry snapshot written", "path", cfg.Persistence.Path)
	}

	// Deferred Close() calls run in reverse order:
	// 1. rtl_433 (if managed)
	// 2. MQTT (publishes the graceful offline status)
	// 3. InfluxDB (if enabled)
	// 4. Database (if enabled)

	log.Info("telemetryd stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses TELEMETRY_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("TELEMETRY_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
