package persist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-telemetry/internal/device"
)

// File permission constants.
const (
	dirPermissions  = 0750
	filePermissions = 0600
)

// defaultInterval is used when the configured tick cadence is not positive.
const defaultInterval = 300 * time.Second

// Logger defines the logging interface used by the Writer.
type Logger interface {
	Debug(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Error(string, ...any) {}

// Config holds the snapshot writer settings.
type Config struct {
	// Path is the snapshot file.
	Path string

	// Interval is the tick cadence of Run.
	Interval time.Duration

	// MinGap is the minimum spacing between successful writes. Ticks firing
	// sooner are skipped, bounding disk churn when the cadence is short.
	MinGap time.Duration
}

// Writer snapshots the device registry to a JSON file.
//
// Snapshots are full-registry: one flat record object per device, keyed by
// device id. The same shape primes the registry on warm start, so a process
// restart resumes with the attribute sets and publish timestamps it had when
// the last snapshot was taken.
//
// Writes go through a temp file in the snapshot directory and land by rename,
// so readers never observe a partially written snapshot.
type Writer struct {
	registry *device.Registry
	cfg      Config

	mu        sync.Mutex
	lastWrite time.Time

	logger Logger
	now    func() time.Time
}

// NewWriter creates a snapshot writer over the registry.
func NewWriter(registry *device.Registry, cfg Config) *Writer {
	return &Writer{
		registry: registry,
		cfg:      cfg,
		logger:   noopLogger{},
		now:      time.Now,
	}
}

// SetLogger sets the logger for the writer.
func (w *Writer) SetLogger(logger Logger) {
	w.logger = logger
}

// Load primes the registry from the snapshot file.
//
// A missing file is not an error: the registry simply starts empty. Read and
// parse failures are returned for the caller to decide; the registry is left
// untouched in that case.
//
// Returns the number of records restored.
func (w *Writer) Load() (int, error) {
	data, err := os.ReadFile(w.cfg.Path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading snapshot %s: %w", w.cfg.Path, err)
	}

	var records map[string]*device.Record
	if err := json.Unmarshal(data, &records); err != nil {
		return 0, fmt.Errorf("parsing snapshot %s: %w", w.cfg.Path, err)
	}
	return w.registry.Restore(records), nil
}

// Save writes a snapshot unless one was written successfully less than MinGap
// ago. A skipped tick is not an error.
func (w *Writer) Save() error {
	return w.save(false)
}

// Flush writes a snapshot unconditionally. Used on shutdown so the warm start
// resumes from the freshest state.
func (w *Writer) Flush() error {
	return w.save(true)
}

// Run ticks at the configured interval, saving on each tick, until the
// context is cancelled. Write failures are logged and retried next tick.
func (w *Writer) Run(ctx context.Context) error {
	interval := w.cfg.Interval
	if interval <= 0 {
		interval = defaultInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := w.Save(); err != nil {
				w.logger.Error("registry snapshot failed",
					"path", w.cfg.Path,
					"error", err,
				)
			}
		}
	}
}

func (w *Writer) save(force bool) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	if !force && !w.lastWrite.IsZero() && now.Sub(w.lastWrite) < w.cfg.MinGap {
		w.logger.Debug("registry snapshot skipped",
			"path", w.cfg.Path,
			"since_last", now.Sub(w.lastWrite),
			"min_gap", w.cfg.MinGap,
		)
		return nil
	}

	count, err := w.write()
	if err != nil {
		return err
	}

	// Only a successful write arms the gate, so a failure is retried on the
	// very next tick.
	w.lastWrite = now
	w.logger.Debug("registry snapshot written",
		"path", w.cfg.Path,
		"records", count,
	)
	return nil
}

// write serialises the registry and lands it atomically. Callers hold w.mu.
func (w *Writer) write() (int, error) {
	if err := os.MkdirAll(filepath.Dir(w.cfg.Path), dirPermissions); err != nil {
		return 0, fmt.Errorf("%w: creating snapshot dir: %v", ErrSnapshot, err)
	}

	records := w.registry.Export()
	data, err := json.MarshalIndent(records, "", "    ")
	if err != nil {
		return 0, fmt.Errorf("%w: encoding registry: %v", ErrSnapshot, err)
	}

	tmp := w.cfg.Path + ".tmp"
	if err := os.WriteFile(tmp, data, filePermissions); err != nil {
		return 0, fmt.Errorf("%w: writing %s: %v", ErrSnapshot, tmp, err)
	}
	if err := os.Rename(tmp, w.cfg.Path); err != nil {
		os.Remove(tmp)
		return 0, fmt.Errorf("%w: renaming %s: %v", ErrSnapshot, tmp, err)
	}
	return len(records), nil
}
