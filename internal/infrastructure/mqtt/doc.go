// Package mqtt provides MQTT client connectivity for the telemetry service.
//
// This package manages:
//   - Connection to the broker with bounded, DNS-aware retry
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament (LWT) for offline detection
//   - Connection health monitoring
//
// # Architecture
//
// MQTT is both the inbound and outbound transport: rtl_433 (or any radio
// head) publishes per-attribute messages the service subscribes to, and the
// service publishes aggregated records back to the same broker.
//
//	rtl_433 → MQTT Broker → telemetryd → MQTT Broker → downstream consumers
//
// # Connection Policy
//
// Paho's built-in auto-reconnect is disabled. Connects and reconnects run a
// bounded loop instead: resolve the broker host (literal IPs skip DNS), dial,
// and on failure sleep the configured delay before the next attempt. Running
// out of attempts is fatal - at startup Connect returns ErrRetryExhausted,
// and after a mid-run drop the OnReconnectExhausted callback fires so the
// daemon can exit instead of idling without a transport. Graceful Close
// never triggers reconnection.
//
// # Security Considerations
//
//   - TLS is required for production deployments (cfg.Broker.TLS=true)
//   - Credentials are validated against broker ACL
//   - Anonymous access is only for local development
//   - Message payloads are not encrypted beyond TLS transport
//
// # Usage
//
//	topics := mqtt.NewTopics(cfg.Topics.Root, cfg.Topics.Source)
//	client, err := mqtt.Connect(cfg.MQTT, topics)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	// Subscribe to raw attribute messages
//	err = client.Subscribe(topics.RawDirect(), 1,
//	    func(topic string, payload []byte) error {
//	        log.Printf("Received: %s = %s", topic, payload)
//	        return nil
//	    })
//
//	// Publish an aggregated record
//	topic := topics.Sensor("house_weather_sensors", "garage_fridge")
//	client.Publish(topic, record, 1, false)
package mqtt
