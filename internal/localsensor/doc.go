// Package localsensor manages the operator's local sensor table for Gray
// Logic Telemetry.
//
// The table names the devices that belong to this installation, separating
// them from whatever else the radio happens to pick up. It is one JSON file
// of device id → {sensor_name, id_sensor_name, comment}, replaced wholesale
// and never merged.
//
// Replacements come from two directions:
//
//   - File edits, detected by the shared poll gate (interval + mtime) and
//     applied by ReloadIfStale.
//   - Remote updates over the configuration topic, applied by
//     ApplyRemoteUpdate: validate, back up the current file, prune old
//     backups by count and age, persist, reload.
//
// A rejected or failed update leaves both the file and the in-memory table
// exactly as they were. After any replacement the caller re-derives device
// names across the registry so renames take effect without waiting for each
// device's next transmission.
package localsensor
