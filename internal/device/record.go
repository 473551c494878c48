package device

import (
	"encoding/json"
	"math"
	"time"
)

// Placeholder values seeded on newly discovered devices. Consumers of the
// published records rely on every conventional field being present from the
// first emission, so unknown values are filled rather than omitted.
const (
	PlaceholderDeviceName          = "NO_DEV_NAME"
	PlaceholderProtocolID          = "-1"
	placeholderProtocolName        = "NO_PROTOCOL_NAME"
	placeholderProtocolDescription = "NO_PROTOCOL_DESCRIPTION"
	placeholderTime                = "NO_TIME"
	placeholderMIC                 = "NO_MIC"
	placeholderMod                 = "NO_MOD"
	placeholderNumber              = -999.0
)

// UnknownNamePrefix prefixes the derived name of a device that is absent from
// the local sensor table.
const UnknownNamePrefix = "UNKNOWN_"

// neverPublishedISO marks records that have not yet been emitted.
const neverPublishedISO = "NEVER"

// Flat serialisation keys that map to Record struct fields rather than the
// open attribute map.
const (
	keyDeviceID            = "device_id"
	keyDeviceName          = "device_name"
	keyProtocolID          = "protocol_id"
	keyProtocolName        = "protocol_name"
	keyProtocolDescription = "protocol_description"
	keyLastSeenTS          = "time_last_seen_ts"
	keyLastSeenISO         = "time_last_seen_iso"
	keyLastPublishedTS     = "time_last_published_ts"
	keyLastPublishedISO    = "time_last_published_iso"
)

// Record is the aggregated attribute set for one field device, keyed by the
// device identifier parsed from raw topics.
//
// A Record serialises as a single flat JSON object: identity and protocol
// fields, every attribute, and the seen/published timestamps side by side.
// That shape is both the republish payload and the snapshot format.
type Record struct {
	// DeviceID is the immutable registry key.
	DeviceID string

	// DeviceName is derived: the local sensor table name when the device is
	// known to the operator, otherwise UNKNOWN_<id>.
	DeviceName string

	// ProtocolID, ProtocolName and ProtocolDescription hold the rtl_433
	// protocol classification once a protocol attribute has arrived.
	ProtocolID          string
	ProtocolName        string
	ProtocolDescription string

	// Attrs holds every other attribute by canonical tag name.
	Attrs map[string]any

	// LastSeen advances on every successful attribute application.
	LastSeen time.Time

	// LastPublished is written only by the republish scheduler, immediately
	// before the transport write. Zero means never emitted.
	LastPublished time.Time
}

// newRecord seeds a record with the conventional placeholder attribute set.
func newRecord(deviceID string, at time.Time) *Record {
	return &Record{
		DeviceID:            deviceID,
		DeviceName:          PlaceholderDeviceName,
		ProtocolID:          PlaceholderProtocolID,
		ProtocolName:        placeholderProtocolName,
		ProtocolDescription: placeholderProtocolDescription,
		Attrs: map[string]any{
			"time":          placeholderTime,
			"temperature_C": placeholderNumber,
			"temperature_F": placeholderNumber,
			"humidity":      placeholderNumber,
			"battery_ok":    -1,
			"channel":       "-1",
			"rssi":          placeholderNumber,
			"snr":           placeholderNumber,
			"noise":         placeholderNumber,
			"freq":          placeholderNumber,
			"mic":           placeholderMIC,
			"mod":           placeholderMod,
		},
		LastSeen: at,
	}
}

// Due reports whether the record should be emitted now: new data arrived since
// the last emission, or the last emission is older than maxStaleness.
func (r *Record) Due(now time.Time, maxStaleness time.Duration) bool {
	if r.LastSeen.After(r.LastPublished) {
		return true
	}
	return now.Sub(r.LastPublished) > maxStaleness
}

// DeepCopy returns an independent copy of the record.
// Attribute values are scalars, so copying the map is sufficient.
func (r *Record) DeepCopy() *Record {
	clone := *r
	clone.Attrs = make(map[string]any, len(r.Attrs))
	for k, v := range r.Attrs {
		clone.Attrs[k] = v
	}
	return &clone
}

// DerivedName is the fallback device name for ids absent from the local
// sensor table.
func DerivedName(deviceID string) string {
	return UnknownNamePrefix + deviceID
}

// MarshalJSON emits the flat record object.
func (r *Record) MarshalJSON() ([]byte, error) {
	flat := make(map[string]any, len(r.Attrs)+9)
	for k, v := range r.Attrs {
		flat[k] = v
	}
	flat[keyDeviceID] = r.DeviceID
	flat[keyDeviceName] = r.DeviceName
	flat[keyProtocolID] = r.ProtocolID
	flat[keyProtocolName] = r.ProtocolName
	flat[keyProtocolDescription] = r.ProtocolDescription
	flat[keyLastSeenTS] = timeToSeconds(r.LastSeen)
	flat[keyLastSeenISO] = r.LastSeen.Format(time.RFC3339Nano)
	if r.LastPublished.IsZero() {
		flat[keyLastPublishedTS] = 0.0
		flat[keyLastPublishedISO] = neverPublishedISO
	} else {
		flat[keyLastPublishedTS] = timeToSeconds(r.LastPublished)
		flat[keyLastPublishedISO] = r.LastPublished.Format(time.RFC3339Nano)
	}
	return json.Marshal(flat)
}

// UnmarshalJSON restores a record from its flat object form. Used by the warm
// start path; unknown keys land in Attrs, timestamp keys are rebuilt from the
// numeric twins, and ISO strings are ignored as derived data.
func (r *Record) UnmarshalJSON(data []byte) error {
	var flat map[string]any
	if err := json.Unmarshal(data, &flat); err != nil {
		return err
	}

	rec := Record{
		DeviceName:          PlaceholderDeviceName,
		ProtocolID:          PlaceholderProtocolID,
		ProtocolName:        placeholderProtocolName,
		ProtocolDescription: placeholderProtocolDescription,
		Attrs:               make(map[string]any, len(flat)),
	}

	for k, v := range flat {
		switch k {
		case keyDeviceID:
			if s, ok := v.(string); ok {
				rec.DeviceID = s
			}
		case keyDeviceName:
			if s, ok := v.(string); ok {
				rec.DeviceName = s
			}
		case keyProtocolID:
			if s, ok := v.(string); ok {
				rec.ProtocolID = s
			}
		case keyProtocolName:
			if s, ok := v.(string); ok {
				rec.ProtocolName = s
			}
		case keyProtocolDescription:
			if s, ok := v.(string); ok {
				rec.ProtocolDescription = s
			}
		case keyLastSeenTS:
			if f, ok := v.(float64); ok && f > 0 {
				rec.LastSeen = secondsToTime(f)
			}
		case keyLastPublishedTS:
			if f, ok := v.(float64); ok && f > 0 {
				rec.LastPublished = secondsToTime(f)
			}
		case keyLastSeenISO, keyLastPublishedISO:
			// Derived from the _ts twins; nothing to restore.
		default:
			rec.Attrs[k] = v
		}
	}

	*r = rec
	return nil
}

// timeToSeconds converts a time to Unix seconds with fractional precision.
func timeToSeconds(t time.Time) float64 {
	if t.IsZero() {
		return 0
	}
	return float64(t.UnixNano()) / float64(time.Second)
}

// secondsToTime converts fractional Unix seconds back to a time.
func secondsToTime(s float64) time.Time {
	sec, frac := math.Modf(s)
	return time.Unix(int64(sec), int64(frac*float64(time.Second))).UTC()
}
