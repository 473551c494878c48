package classify

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// trackedKey is the top-level key carrying the protocol id list.
const trackedKey = "protocols"

// TrackedSet is the hot-reloading set of protocol ids singled out for an
// extra per-protocol topic stream.
//
// A missing file is not an error at startup; tracking is simply disabled
// until the file appears.
type TrackedSet struct {
	mu     sync.Mutex
	ids    map[string]struct{}
	poll   *FilePoll
	logger Logger
}

// NewTrackedSet creates a tracked protocol set over the source file.
func NewTrackedSet(path string, poll time.Duration) *TrackedSet {
	return &TrackedSet{
		ids:    make(map[string]struct{}),
		poll:   NewFilePoll(path, poll),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the tracked set.
func (t *TrackedSet) SetLogger(logger Logger) {
	t.logger = logger
}

// Load performs the initial load. A missing file leaves the set empty
// without error; the poll gate is fresh, so an existing file loads
// unconditionally.
func (t *TrackedSet) Load() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, err := os.Stat(t.poll.Path()); os.IsNotExist(err) {
		return nil
	}
	_, err := t.poll.Reload(time.Now(), t.load)
	return err
}

// Tracked reports whether a protocol id is in the tracked set.
func (t *TrackedSet) Tracked(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if reloaded, err := t.poll.Reload(time.Now(), t.load); err != nil {
		t.logger.Error("tracked protocol reload failed", "error", err)
	} else if reloaded {
		t.logger.Info("tracked protocols reloaded", "count", len(t.ids))
	}

	_, ok := t.ids[id]
	return ok
}

// Len returns the number of tracked protocol ids.
func (t *TrackedSet) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.ids)
}

// load replaces the set from path. Callers hold t.mu.
func (t *TrackedSet) load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%w: reading %s: %v", ErrConfigLoad, path, err)
	}

	var raw map[string][]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: parsing %s: %v", ErrConfigLoad, path, err)
	}

	ids, ok := raw[trackedKey]
	if !ok {
		return fmt.Errorf("%w: key %q not found in %s", ErrConfigLoad, trackedKey, path)
	}

	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		canonical, err := canonicalID(id)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrConfigLoad, path, err)
		}
		set[canonical] = struct{}{}
	}

	t.ids = set
	return nil
}
