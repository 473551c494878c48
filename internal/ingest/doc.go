// Package ingest turns raw per-attribute MQTT messages into registry updates.
//
// rtl_433 publishes each decoded attribute on its own topic, so a single
// sensor transmission arrives as a burst of small messages:
//
//	telemetry/attic/raw/79/time         "2025-11-02 14:05:31"
//	telemetry/attic/raw/79/protocol     "40"
//	telemetry/attic/raw/79/temperature_C "22.5"
//
// The Consumer buffers these bursts in a bounded queue and processes them on
// one goroutine: parse the topic for device id and tag, normalize the payload
// for that tag, and apply the result to the device registry. A configured
// control topic is intercepted before parsing and routed to the local sensor
// manager instead.
//
// Backpressure is resolved by dropping: a full queue sheds the newest message
// with a warning rather than stalling the MQTT client's callback goroutine.
package ingest
