package classify

import (
	"fmt"
	"os"
	"time"
)

// FilePoll gates reloads of a file-backed table behind two independent
// conditions: the poll interval must have elapsed since the last check, and
// the file's modification time must have advanced since the last successful
// load. Every hot-reloadable table holds one.
//
// Not safe for concurrent use; callers serialize access with their own lock.
type FilePoll struct {
	path      string
	interval  time.Duration
	lastCheck time.Time
	lastMod   time.Time
}

// NewFilePoll creates a poll gate for path checked at most once per interval.
func NewFilePoll(path string, interval time.Duration) *FilePoll {
	return &FilePoll{
		path:     path,
		interval: interval,
	}
}

// Path returns the backing file path.
func (p *FilePoll) Path() string {
	return p.path
}

// Reload invokes load with the backing path when a reload is due.
//
// The check time advances even when the load fails, so a broken file is
// retried once per interval rather than on every query. The recorded
// modification time advances only after a successful load, keeping the
// previous table in effect until the file parses again.
//
// Returns:
//   - bool: true iff load ran and succeeded
//   - error: ErrConfigLoad when the file cannot be stat'd, or load's error
func (p *FilePoll) Reload(now time.Time, load func(path string) error) (bool, error) {
	if !p.lastCheck.IsZero() && now.Sub(p.lastCheck) < p.interval {
		return false, nil
	}
	p.lastCheck = now

	info, err := os.Stat(p.path)
	if err != nil {
		return false, fmt.Errorf("%w: stat %s: %v", ErrConfigLoad, p.path, err)
	}
	mod := info.ModTime()
	if !mod.After(p.lastMod) {
		return false, nil
	}

	if err := load(p.path); err != nil {
		return false, err
	}
	p.lastMod = mod
	return true, nil
}
