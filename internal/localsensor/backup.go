package localsensor

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// backupTimeFormat names backups so they sort lexically by age.
const backupTimeFormat = "20060102_150405"

// createBackup copies the current table file to a timestamped sibling.
// Callers hold m.mu.
//
// Returns:
//   - string: backup path, empty when there is no current file to back up
//   - error: copy failure (callers treat this as best-effort)
func (m *Manager) createBackup() (string, error) {
	data, err := os.ReadFile(m.path)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", m.path, err)
	}

	backupPath := fmt.Sprintf("%s.backup.%s", m.path, m.now().Format(backupTimeFormat))
	if err := os.WriteFile(backupPath, data, filePermissions); err != nil {
		return "", fmt.Errorf("writing %s: %w", backupPath, err)
	}
	return backupPath, nil
}

// pruneBackups removes backups beyond the count limit or older than the
// retention age, keeping the newest. Callers hold m.mu.
//
// Returns the number of backups removed.
func (m *Manager) pruneBackups(now time.Time) int {
	prefix := filepath.Base(m.path) + ".backup."
	dir := filepath.Dir(m.path)

	entries, err := os.ReadDir(dir)
	if err != nil {
		m.logger.Error("backup prune failed", "dir", dir, "error", err)
		return 0
	}

	type backup struct {
		path string
		mod  time.Time
	}
	var backups []backup
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), prefix) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		backups = append(backups, backup{
			path: filepath.Join(dir, entry.Name()),
			mod:  info.ModTime(),
		})
	}

	// Newest first; retention keeps from the top. Names tie-break equal
	// mtimes because the timestamp suffix sorts lexically by age.
	sort.Slice(backups, func(i, j int) bool {
		if backups[i].mod.Equal(backups[j].mod) {
			return backups[i].path > backups[j].path
		}
		return backups[i].mod.After(backups[j].mod)
	})

	removed := 0
	for i, b := range backups {
		overCount := i >= m.maxBackups
		overAge := m.retention > 0 && now.Sub(b.mod) > m.retention
		if !overCount && !overAge {
			continue
		}

		if err := os.Remove(b.path); err != nil {
			m.logger.Error("failed to remove backup", "path", b.path, "error", err)
			continue
		}
		removed++
		m.logger.Debug("removed backup", "path", b.path, "over_count", overCount, "over_age", overAge)
	}
	return removed
}
