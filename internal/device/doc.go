// Package device provides the telemetry record registry for Gray Logic
// Telemetry.
//
// Field devices broadcast one attribute per MQTT message. This package turns
// that stream back into whole devices: it normalizes each payload by tag,
// aggregates attributes into per-device records, enriches them from the
// protocol classification table, and tracks which records have changed since
// their last emission.
//
// # Architecture
//
//	       raw payloads                     classification
//	            │                                 │
//	            ▼                                 ▼
//	┌──────────────────┐  canonical tag  ┌──────────────────┐
//	│    Normalize     │───────────────▶ │     Registry     │
//	│  (normalize.go)  │     value       │  (registry.go)   │
//	│                  │                 │                  │
//	│ • per-tag rules  │                 │ • Apply/ClaimDue │
//	│ • typed scalars  │                 │ • naming         │
//	│ • pure function  │                 │ • Export/Restore │
//	└──────────────────┘                 └──────────────────┘
//	                                              │
//	                                              ▼
//	                                     ┌──────────────────┐
//	                                     │ EmissionHistory  │
//	                                     │  (history*.go)   │
//	                                     │ • SQLite audit   │
//	                                     └──────────────────┘
//
// # Key Types
//
//   - Record: flat aggregate of one device's attributes plus freshness marks
//   - Registry: mutex-guarded owner of all records
//   - ProtocolLookup / NameResolver: injected classification and naming tables
//   - EmissionHistoryRepository: optional audit trail of published records
//
// # Usage
//
//	registry := device.NewRegistry(protocols, sensors)
//	registry.SetLogger(log)
//
//	value, err := device.Normalize(tag, payload)
//	if err != nil {
//	    // malformed payload: drop the message, keep consuming
//	}
//	if err := registry.Apply(deviceID, device.CanonicalTag(tag), value, time.Now()); err != nil {
//	    // unknown protocol or bad derived field: record untouched
//	}
//
//	for _, rec := range registry.ClaimDue(time.Now(), 5*time.Minute) {
//	    publish(rec)
//	}
//
// # Thread Safety
//
// The Registry is safe for concurrent use. Apply runs on the single ingest
// consumer goroutine; ClaimDue and Export may run concurrently from the
// scheduler and snapshot loops.
package device
