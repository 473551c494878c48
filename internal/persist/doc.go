// Package persist snapshots the device registry to disk and primes it back
// on startup.
//
// The snapshot is a single JSON object: device id to flat record, the same
// shape the republish scheduler emits. One Writer runs on its own ticker,
// independent of the republish cadence, and skips ticks that land within the
// configured minimum gap of the last successful write. Shutdown calls Flush
// to capture the final state unconditionally.
//
// Warm start is opt-in at the daemon level: when enabled, Load reads the
// snapshot before the first message arrives, so devices resume with their
// previous attribute sets instead of rediscovering from placeholders.
package persist
