// Package classify provides hot-reloading classification tables for Gray
// Logic Telemetry.
//
// Three JSON files drive routing decisions: the protocol table (id → name and
// description), the category sets (weather and pressure protocol id lists),
// and the tracked protocol list. Each is watched by a FilePoll gate that
// re-reads the file only when the poll interval has elapsed and the file's
// modification time has advanced, so tables can be edited on a live system
// without a restart.
//
// Loads are atomic-replace: a file that fails to read or parse leaves the
// previous table in effect and surfaces ErrConfigLoad; the load is retried on
// the next poll. Queries are read-through and safe for concurrent use.
package classify
