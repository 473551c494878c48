// Package rtl433 supervises an optional local rtl_433 process.
//
// The daemon normally consumes per-attribute messages from whatever radio
// head publishes them. On single-box installs it is convenient for the
// daemon to own that process too: this package builds the rtl_433 command
// line from configuration (tuning, MQTT output pointed at the raw topic
// tree) and delegates lifecycle to internal/process, which restarts the
// child with exponential backoff when it crashes.
//
// Supervision is disabled by default. When disabled, Start is a no-op and
// the daemon remains a pure consumer.
package rtl433
