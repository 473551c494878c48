package localsensor

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-telemetry/internal/classify"
)

// File permission constants.
const (
	// dirPermissions is the permission mode for the config directory.
	dirPermissions = 0750

	// filePermissions is the permission mode for the sensor table and its
	// backups.
	filePermissions = 0600
)

// Logger defines the logging interface used by the Manager.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Sensor is one operator-named local sensor.
type Sensor struct {
	// SensorName is the human-readable name used in output topics.
	SensorName string `json:"sensor_name"`

	// IDSensorName is the name keyed by transmitted id, used when a device
	// family shares a protocol but rotates ids.
	IDSensorName string `json:"id_sensor_name"`

	// Comment is free-form operator notes.
	Comment string `json:"comment,omitempty"`
}

// UpdateSummary reports what a remote update did.
type UpdateSummary struct {
	// Entries is the size of the replacement table.
	Entries int

	// BackupPath is the backup written before the replacement, empty when no
	// backup could be made.
	BackupPath string

	// PrunedBackups is the number of old backups removed.
	PrunedBackups int
}

// Manager owns the local sensor table: the operator's mapping from device id
// to sensor identity.
//
// The table lives in one JSON file. It is replaced wholesale from two
// directions: edits to the file itself (picked up by ReloadIfStale) and
// validated remote updates via ApplyRemoteUpdate. Queries answer from the
// in-memory table only, so callers control exactly when a replacement becomes
// visible and can fan out name re-derivation afterwards.
//
// Manager implements device.NameResolver.
type Manager struct {
	mu      sync.Mutex
	sensors map[string]Sensor

	path       string
	poll       *classify.FilePoll
	maxBackups int
	retention  time.Duration
	logger     Logger
	now        func() time.Time
}

// NewManager creates a manager over the sensor table file.
//
// Parameters:
//   - path: JSON file holding the table (object of id → sensor entry)
//   - poll: minimum interval between file change checks
//   - maxBackups: backups kept per retention pass (0 keeps none)
//   - retention: backup age limit (0 or negative disables the age rule)
func NewManager(path string, poll time.Duration, maxBackups int, retention time.Duration) *Manager {
	return &Manager{
		sensors:    make(map[string]Sensor),
		path:       path,
		poll:       classify.NewFilePoll(path, poll),
		maxBackups: maxBackups,
		retention:  retention,
		logger:     noopLogger{},
		now:        time.Now,
	}
}

// SetLogger sets the logger for the manager.
func (m *Manager) SetLogger(logger Logger) {
	m.logger = logger
}

// Path returns the backing file path.
func (m *Manager) Path() string {
	return m.path
}

// Load performs the initial load. A missing file starts with an empty table;
// the first remote update will create it.
func (m *Manager) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := os.Stat(m.path); os.IsNotExist(err) {
		m.logger.Warn("local sensor table missing, starting empty", "path", m.path)
		return nil
	}
	_, err := m.poll.Reload(time.Now(), m.load)
	return err
}

// ReloadIfStale re-reads the table when the poll is due and the file changed.
// Callers re-derive device names after a true return.
//
// Returns true iff the table was replaced.
func (m *Manager) ReloadIfStale() (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.poll.Reload(time.Now(), m.load)
}

// SensorName returns the configured name for a device id.
func (m *Manager) SensorName(deviceID string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sensor, ok := m.sensors[deviceID]
	if !ok {
		return "", false
	}
	return sensor.SensorName, true
}

// IDSensorName returns the id-keyed name for a device id.
func (m *Manager) IDSensorName(deviceID string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sensor, ok := m.sensors[deviceID]
	if !ok {
		return "", false
	}
	return sensor.IDSensorName, true
}

// IsLocal reports whether a device id is in the local sensor table.
func (m *Manager) IsLocal(deviceID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.sensors[deviceID]
	return ok
}

// Count returns the number of configured sensors.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sensors)
}

// ApplyRemoteUpdate replaces the sensor table from a remote payload.
//
// Steps, in order: parse, validate, backup the current file (best-effort),
// prune old backups, persist the replacement wholesale, reload the in-memory
// table from the just-written file. A validation or persist failure leaves
// both the file and the in-memory table unchanged.
func (m *Manager) ApplyRemoteUpdate(payload []byte) (UpdateSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var summary UpdateSummary

	table, err := parseUpdate(payload)
	if err != nil {
		return summary, err
	}
	summary.Entries = len(table)

	backupPath, err := m.createBackup()
	if err != nil {
		m.logger.Warn("backup failed, proceeding with update", "error", err)
	} else if backupPath != "" {
		summary.BackupPath = backupPath
		m.logger.Info("created sensor table backup", "path", backupPath)
	}

	pruned := m.pruneBackups(m.now())
	summary.PrunedBackups = pruned
	if pruned > 0 {
		m.logger.Info("pruned old sensor table backups", "removed", pruned)
	}

	if err := m.persist(table); err != nil {
		return summary, err
	}

	if err := m.load(m.path); err != nil {
		return summary, fmt.Errorf("reloading after update: %w", err)
	}

	m.logger.Info("local sensor table replaced", "entries", len(m.sensors))
	return summary, nil
}

// load replaces the in-memory table from path. Callers hold m.mu.
func (m *Manager) load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%w: reading %s: %v", classify.ErrConfigLoad, path, err)
	}

	var table map[string]Sensor
	if err := json.Unmarshal(data, &table); err != nil {
		return fmt.Errorf("%w: parsing %s: %v", classify.ErrConfigLoad, path, err)
	}

	if table == nil {
		table = make(map[string]Sensor)
	}
	m.sensors = table
	return nil
}

// persist writes the replacement table to disk. Callers hold m.mu.
func (m *Manager) persist(table map[string]Sensor) error {
	if err := os.MkdirAll(filepath.Dir(m.path), dirPermissions); err != nil {
		return fmt.Errorf("%w: creating config dir: %v", ErrPersist, err)
	}

	data, err := json.MarshalIndent(table, "", "    ")
	if err != nil {
		return fmt.Errorf("%w: encoding table: %v", ErrPersist, err)
	}

	if err := os.WriteFile(m.path, data, filePermissions); err != nil {
		return fmt.Errorf("%w: writing %s: %v", ErrPersist, m.path, err)
	}
	return nil
}

// ValidateUpdate checks a replacement payload against the same rules
// ApplyRemoteUpdate enforces, without touching any state. It returns the
// number of entries the payload carries.
//
// Tooling that pushes table updates over MQTT uses this to reject bad
// payloads before they leave the operator's machine.
func ValidateUpdate(payload []byte) (int, error) {
	table, err := parseUpdate(payload)
	if err != nil {
		return 0, err
	}
	return len(table), nil
}

// parseUpdate parses and validates a remote update payload.
//
// Every entry must be an object with non-empty string sensor_name and
// id_sensor_name; comment is optional but must be a string when present.
func parseUpdate(payload []byte) (map[string]Sensor, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, fmt.Errorf("%w: payload is not a JSON object: %v", ErrValidation, err)
	}

	table := make(map[string]Sensor, len(raw))
	for id, entry := range raw {
		if strings.TrimSpace(id) == "" {
			return nil, fmt.Errorf("%w: empty sensor id", ErrValidation)
		}

		var fields map[string]json.RawMessage
		if err := json.Unmarshal(entry, &fields); err != nil {
			return nil, fmt.Errorf("%w: entry %q is not an object", ErrValidation, id)
		}

		sensorName, err := requiredString(fields, "sensor_name", id)
		if err != nil {
			return nil, err
		}
		idSensorName, err := requiredString(fields, "id_sensor_name", id)
		if err != nil {
			return nil, err
		}

		sensor := Sensor{SensorName: sensorName, IDSensorName: idSensorName}

		if comment, ok := fields["comment"]; ok {
			var s string
			if err := json.Unmarshal(comment, &s); err != nil {
				return nil, fmt.Errorf("%w: comment for sensor %q must be a string", ErrValidation, id)
			}
			sensor.Comment = s
		}

		table[id] = sensor
	}
	return table, nil
}

// requiredString extracts a mandatory non-empty string field from an entry.
func requiredString(fields map[string]json.RawMessage, field, id string) (string, error) {
	raw, ok := fields[field]
	if !ok {
		return "", fmt.Errorf("%w: missing required field %q for sensor %q", ErrValidation, field, id)
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", fmt.Errorf("%w: field %q for sensor %q must be a string", ErrValidation, field, id)
	}
	if strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("%w: field %q for sensor %q is empty", ErrValidation, field, id)
	}
	return s, nil
}
