package classify

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-telemetry/internal/device"
)

// Category keys carried by the categories file. Each maps to a set of
// protocol ids.
const (
	CategoryWeather  = "weather_sensor_protocol_ids"
	CategoryPressure = "pressure_sensor_protocol_ids"
)

// Logger defines the logging interface used by the classification store.
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

// protocolEntry is the on-disk shape of one protocol record.
type protocolEntry struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Store serves protocol metadata and category membership from two JSON files,
// hot-reloading each when it changes on disk.
//
// Queries are read-through: every query first offers the poll gates a chance
// to refresh, so callers never coordinate reloads. A load failure keeps the
// previous tables and logs the error; queries keep answering from the last
// good data.
//
// Store implements device.ProtocolLookup.
type Store struct {
	mu sync.Mutex

	protocols  map[string]device.ProtocolInfo
	categories map[string]map[string]struct{}

	protocolPoll *FilePoll
	categoryPoll *FilePoll
	logger       Logger
}

// NewStore creates a classification store over the two source files.
//
// Parameters:
//   - protocolsPath: JSON object of protocol id → {name, description}
//   - categoriesPath: JSON object of category key → list of protocol ids
//   - poll: minimum interval between file change checks
func NewStore(protocolsPath, categoriesPath string, poll time.Duration) *Store {
	return &Store{
		protocols:    make(map[string]device.ProtocolInfo),
		categories:   make(map[string]map[string]struct{}),
		protocolPoll: NewFilePoll(protocolsPath, poll),
		categoryPoll: NewFilePoll(categoriesPath, poll),
		logger:       noopLogger{},
	}
}

// SetLogger sets the logger for the store.
func (s *Store) SetLogger(logger Logger) {
	s.logger = logger
}

// Load performs the initial load of both files. Called once at startup so a
// missing or broken table fails fast; the poll gates are fresh, so both files
// load unconditionally.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.reloadLocked(time.Now())
	return err
}

// ReloadIfStale refreshes whichever source files have changed, gated per file.
//
// Returns true iff at least one table was replaced.
func (s *Store) ReloadIfStale() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reloadLocked(time.Now())
}

// reloadLocked runs both poll gates. Callers hold s.mu.
func (s *Store) reloadLocked(now time.Time) (bool, error) {
	protocolsReloaded, protoErr := s.protocolPoll.Reload(now, s.loadProtocols)
	categoriesReloaded, catErr := s.categoryPoll.Reload(now, s.loadCategories)

	if protocolsReloaded {
		s.logger.Info("protocol table reloaded", "protocols", len(s.protocols))
	}
	if categoriesReloaded {
		s.logger.Info("category table reloaded", "categories", len(s.categories))
	}

	if protoErr != nil {
		return protocolsReloaded || categoriesReloaded, protoErr
	}
	return protocolsReloaded || categoriesReloaded, catErr
}

// LookupProtocol returns the classification metadata for a protocol id.
func (s *Store) LookupProtocol(id string) (device.ProtocolInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.reloadLocked(time.Now()); err != nil {
		s.logger.Error("classification reload failed", "error", err)
	}

	info, ok := s.protocols[id]
	return info, ok
}

// InCategory reports whether a protocol id belongs to the named category.
func (s *Store) InCategory(id, category string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.reloadLocked(time.Now()); err != nil {
		s.logger.Error("classification reload failed", "error", err)
	}

	set, ok := s.categories[category]
	if !ok {
		return false
	}
	_, member := set[id]
	return member
}

// ProtocolCount returns the number of known protocols.
func (s *Store) ProtocolCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.protocols)
}

// loadProtocols replaces the protocol table from path. Callers hold s.mu.
func (s *Store) loadProtocols(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%w: reading %s: %v", ErrConfigLoad, path, err)
	}

	var raw map[string]protocolEntry
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: parsing %s: %v", ErrConfigLoad, path, err)
	}

	table := make(map[string]device.ProtocolInfo, len(raw))
	for id, entry := range raw {
		table[id] = device.ProtocolInfo{
			Name:        entry.Name,
			Description: entry.Description,
		}
	}

	s.protocols = table
	return nil
}

// loadCategories replaces the category sets from path. Callers hold s.mu.
//
// Protocol ids appear as strings or bare numbers in the wild; both spellings
// normalize to the canonical string form.
func (s *Store) loadCategories(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%w: reading %s: %v", ErrConfigLoad, path, err)
	}

	var raw map[string][]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: parsing %s: %v", ErrConfigLoad, path, err)
	}

	table := make(map[string]map[string]struct{}, len(raw))
	for category, ids := range raw {
		set := make(map[string]struct{}, len(ids))
		for _, id := range ids {
			canonical, err := canonicalID(id)
			if err != nil {
				return fmt.Errorf("%w: category %q in %s: %v", ErrConfigLoad, category, path, err)
			}
			set[canonical] = struct{}{}
		}
		table[category] = set
	}

	s.categories = table
	return nil
}

// canonicalID normalizes a JSON protocol id (string or number) to its string
// spelling.
func canonicalID(id any) (string, error) {
	switch v := id.(type) {
	case string:
		return v, nil
	case float64:
		if v != float64(int64(v)) {
			return "", fmt.Errorf("protocol id %v is not an integer", v)
		}
		return fmt.Sprintf("%d", int64(v)), nil
	default:
		return "", fmt.Errorf("protocol id %v has unsupported type %T", id, id)
	}
}
