// Package republish emits aggregated device records back to the broker.
//
// A single scheduler ticks on a fixed cadence. Each pass claims every due
// record from the registry (new data since the last emission, or stale past
// the configured window), resolves its output category, and publishes the
// flat JSON record to
//
//	<root>/<source>/sensors/<category>/<device_name>
//
// Category resolution: devices named in the local sensor table publish as
// house_weather_sensors; otherwise the protocol id picks
// other_weather_sensors or other_pressure_sensors; anything left lands in
// unknown_other_sensors. Records whose protocol id is in the tracked set are
// additionally published to <root>/<source>/tracking/<protocol_id>/<name>.
//
// Records are stamped as published before the transport write, so a slow or
// failed publish cannot double-emit on the next pass.
package republish
