package device

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Logger defines the logging interface used by the Registry.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// ProtocolInfo is the classification metadata for one protocol id.
type ProtocolInfo struct {
	Name        string
	Description string
}

// ProtocolLookup resolves protocol ids against the hot-reloaded
// classification table.
type ProtocolLookup interface {
	LookupProtocol(id string) (ProtocolInfo, bool)
}

// NameResolver resolves device ids against the local sensor table.
type NameResolver interface {
	SensorName(deviceID string) (string, bool)
}

// kpaToPSI converts kilopascal to pound-force per square inch.
const kpaToPSI = 0.14503773773020923

// Registry owns the per-device aggregate records.
//
// All attribute mutation arrives through Apply on the single ingest consumer
// goroutine; the republish scheduler and snapshot writer read records and the
// scheduler claims emission timestamps. One registry-wide mutex keeps those
// accesses exclusive per record.
type Registry struct {
	mu      sync.RWMutex
	records map[string]*Record

	protocols ProtocolLookup
	names     NameResolver
	logger    Logger
}

// NewRegistry creates an empty registry.
//
// Parameters:
//   - protocols: classification table consulted when protocol attributes arrive
//   - names: local sensor table consulted for device naming (may be nil)
func NewRegistry(protocols ProtocolLookup, names NameResolver) *Registry {
	return &Registry{
		records:   make(map[string]*Record),
		protocols: protocols,
		names:     names,
		logger:    noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// Apply applies one normalized attribute to the record for deviceID,
// creating the record on first sight.
//
// tag must be the canonical attribute name (see CanonicalTag). Protocol
// attributes are enriched from the classification table; temperature and
// pressure attributes derive their converted twins. The device name is
// re-resolved on every application so a table change is picked up on the next
// message even without a refresh signal.
//
// Returns:
//   - error: ErrUnknownProtocol when a protocol id has no classification;
//     ErrMalformedPayload when a derived field cannot coerce its input.
//     On error the record is left untouched (and not created).
func (r *Registry) Apply(deviceID, tag string, value any, at time.Time) error {
	if deviceID == "" {
		return fmt.Errorf("%w: empty device id", ErrMalformedPayload)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	rec, exists := r.records[deviceID]
	if !exists {
		rec = newRecord(deviceID, at)
	}

	switch tag {
	case AttrProtocolID:
		id, ok := value.(string)
		if !ok {
			return fmt.Errorf("%w: protocol id must be a string, got %T", ErrMalformedPayload, value)
		}
		info, found := r.lookupProtocol(id)
		if !found {
			return fmt.Errorf("%w: id %q", ErrUnknownProtocol, id)
		}
		rec.ProtocolID = id
		rec.ProtocolName = info.Name
		rec.ProtocolDescription = info.Description

	case AttrDeviceID:
		// The registry key is authoritative; devices echoing their own id
		// add nothing beyond freshness.

	case AttrTemperature:
		c, err := toFloat(value)
		if err != nil {
			return err
		}
		rec.Attrs["temperature_C"] = c
		rec.Attrs["temperature_F"] = c*9/5 + 32

	case AttrPressureKPA:
		kpa, err := toFloat(value)
		if err != nil {
			return err
		}
		rec.Attrs["pressure_kPa"] = kpa
		rec.Attrs["pressure_psi"] = kpa * kpaToPSI

	default:
		rec.Attrs[tag] = value
	}

	rec.DeviceName = r.resolveName(deviceID)
	rec.LastSeen = at

	if !exists {
		r.records[deviceID] = rec
		r.logger.Info("new device discovered", "device_id", deviceID, "first_tag", tag)
	}

	return nil
}

// Get returns a deep copy of the record for deviceID.
func (r *Registry) Get(deviceID string) (*Record, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.records[deviceID]
	if !ok {
		return nil, false
	}
	return rec.DeepCopy(), true
}

// Len returns the number of records.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}

// RefreshNames re-derives every record's device name against the current
// local sensor table. Called after the table is replaced so existing records
// pick up renames without waiting for their next message.
//
// Returns the number of records whose name changed.
func (r *Registry) RefreshNames() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	changed := 0
	for id, rec := range r.records {
		if name := r.resolveName(id); name != rec.DeviceName {
			r.logger.Debug("device renamed", "device_id", id, "old", rec.DeviceName, "new", name)
			rec.DeviceName = name
			changed++
		}
	}
	return changed
}

// ClaimDue marks every due record as published at now and returns deep copies
// for emission. Marking happens before the transport write so a slow publish
// cannot double-emit on the next scan.
func (r *Registry) ClaimDue(now time.Time, maxStaleness time.Duration) []*Record {
	r.mu.Lock()
	defer r.mu.Unlock()

	var due []*Record
	for _, rec := range r.records {
		if rec.Due(now, maxStaleness) {
			rec.LastPublished = now
			due = append(due, rec.DeepCopy())
		}
	}
	return due
}

// EvictIdle removes records not seen for longer than age. A zero or negative
// age disables eviction entirely.
//
// Returns the evicted device ids.
func (r *Registry) EvictIdle(now time.Time, age time.Duration) []string {
	if age <= 0 {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var evicted []string
	for id, rec := range r.records {
		if now.Sub(rec.LastSeen) > age {
			delete(r.records, id)
			evicted = append(evicted, id)
		}
	}
	return evicted
}

// Export returns a deep copy of the whole registry keyed by device id,
// suitable for snapshot serialisation.
func (r *Registry) Export() map[string]*Record {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]*Record, len(r.records))
	for id, rec := range r.records {
		out[id] = rec.DeepCopy()
	}
	return out
}

// Restore primes the registry from a snapshot, replacing any records with the
// same id. Entries with an empty id are skipped.
//
// Returns the number of records restored.
func (r *Registry) Restore(records map[string]*Record) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	count := 0
	for id, rec := range records {
		if id == "" || rec == nil {
			continue
		}
		clone := rec.DeepCopy()
		if clone.DeviceID == "" {
			clone.DeviceID = id
		}
		if clone.Attrs == nil {
			clone.Attrs = make(map[string]any)
		}
		r.records[id] = clone
		count++
	}
	return count
}

// lookupProtocol guards against a nil classification table.
func (r *Registry) lookupProtocol(id string) (ProtocolInfo, bool) {
	if r.protocols == nil {
		return ProtocolInfo{}, false
	}
	return r.protocols.LookupProtocol(id)
}

// resolveName applies the naming rule: local sensor table name when present,
// UNKNOWN_<id> otherwise.
func (r *Registry) resolveName(deviceID string) string {
	if r.names != nil {
		if name, ok := r.names.SensorName(deviceID); ok {
			return name
		}
	}
	return DerivedName(deviceID)
}

// toFloat coerces an applied value into a float64 for derived fields.
// Pressure arrives as a free-form tag (string), so string parsing is part of
// the contract rather than a convenience.
func toFloat(value any) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q is not a number", ErrMalformedPayload, v)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("%w: unsupported value type %T", ErrMalformedPayload, value)
	}
}
