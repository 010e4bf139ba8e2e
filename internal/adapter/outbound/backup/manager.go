// Package backup snapshots the settings file with content-hash naming,
// enforces a bounded retention set, and restores snapshots with a pre-restore
// safety copy so a restore is itself reversible.
package backup

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/mcpgate/mcpgate/internal/adapter/outbound/settings"
)

// Backup failure taxonomy.
var (
	// ErrBackupNotFound is returned when the named backup does not exist.
	ErrBackupNotFound = errors.New("backup not found")
	// ErrBackupValidationFailed is returned when a backup does not parse as
	// a well-formed settings document.
	ErrBackupValidationFailed = errors.New("backup validation failed")
)

// DefaultRetention is the number of backups kept when none is configured.
const DefaultRetention = 10

// backupFilePattern matches backup filenames:
// settings-YYYYMMDD-HHMMSS-<16 hex>.json
var backupFilePattern = regexp.MustCompile(`^settings-(\d{8}-\d{6})-([0-9a-f]{16})\.json$`)

const timestampLayout = "20060102-150405"

// Record describes one stored backup.
type Record struct {
	// Timestamp is the backup creation time (UTC, second precision).
	Timestamp time.Time `json:"timestamp"`
	// ContentHash is the first 16 hex characters of the SHA-256 digest of
	// the backup content. Identical content yields identical hashes.
	ContentHash string `json:"content_hash"`
	// Size is the backup size in bytes.
	Size int64 `json:"size"`
	// Location is the backup filename within the backup directory.
	Location string `json:"location"`
}

// Manager snapshots and restores the settings file.
type Manager struct {
	store     *settings.FileStore
	dir       string
	retention int
	mu        sync.Mutex
	logger    *slog.Logger
}

// NewManager creates a backup manager for the given settings store.
// retention <= 0 falls back to DefaultRetention.
func NewManager(store *settings.FileStore, dir string, retention int, logger *slog.Logger) *Manager {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Manager{
		store:     store,
		dir:       dir,
		retention: retention,
		logger:    logger,
	}
}

// Create snapshots the current settings file. It returns nil (no record, no
// error) when the settings file does not exist yet. After a successful
// snapshot it runs retention cleanup.
func (m *Manager) Create() (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, err := m.createLocked()
	if err != nil {
		return nil, err
	}
	if rec != nil {
		m.sweepLocked()
	}
	return rec, nil
}

// createLocked snapshots the live file without running retention.
// Caller must hold m.mu.
func (m *Manager) createLocked() (*Record, error) {
	data, err := os.ReadFile(m.store.Path())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read settings file: %w", err)
	}

	if err := os.MkdirAll(m.dir, 0700); err != nil {
		return nil, fmt.Errorf("create backup directory: %w", err)
	}

	now := time.Now().UTC().Truncate(time.Second)
	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])[:16]
	name := fmt.Sprintf("settings-%s-%s.json", now.Format(timestampLayout), hash)
	path := filepath.Join(m.dir, name)

	if err := os.WriteFile(path, data, 0600); err != nil {
		return nil, fmt.Errorf("write backup: %w", err)
	}

	rec := &Record{
		Timestamp:   now,
		ContentHash: hash,
		Size:        int64(len(data)),
		Location:    name,
	}
	m.logger.Info("backup created", "file", name, "size", rec.Size)
	return rec, nil
}

// CreateQuiet is Create with the error logged and swallowed. It is the
// settings store's post-save hook: a failed backup must never fail the write
// that triggered it.
func (m *Manager) CreateQuiet() {
	if _, err := m.Create(); err != nil {
		m.logger.Warn("backup creation failed", "error", err)
	}
}

// List returns all backup records newest-first (by timestamp, then name).
// Files in the backup directory that do not match the naming scheme are
// ignored.
func (m *Manager) List() ([]Record, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []Record{}, nil
		}
		return nil, fmt.Errorf("read backup directory: %w", err)
	}

	records := make([]Record, 0, len(entries))
	for _, e := range entries {
		rec, ok := parseBackupFilename(e.Name())
		if !ok {
			continue
		}
		if info, err := e.Info(); err == nil {
			rec.Size = info.Size()
		}
		records = append(records, rec)
	}

	sort.Slice(records, func(i, j int) bool {
		if !records[i].Timestamp.Equal(records[j].Timestamp) {
			return records[i].Timestamp.After(records[j].Timestamp)
		}
		return records[i].Location > records[j].Location
	})
	return records, nil
}

// Restore overwrites the live settings file with the named backup.
// The target must exist and parse as a settings document. Before touching
// the live file, the current state is snapshotted so the restore can itself
// be undone.
//
// The backup bytes are written back verbatim through the store's atomic
// write path, so the restored file hashes identically to the backup it came
// from. The store's post-save hook fires and snapshots the restored state
// too; Restore must therefore not hold m.mu across the write.
func (m *Manager) Restore(location string) error {
	// Reject path traversal; a backup location is always a bare filename.
	if location != filepath.Base(location) {
		return ErrBackupNotFound
	}

	path := filepath.Join(m.dir, location)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return ErrBackupNotFound
		}
		return fmt.Errorf("read backup: %w", err)
	}

	if _, err := settings.Parse(data); err != nil {
		return fmt.Errorf("%w: %v", ErrBackupValidationFailed, err)
	}

	// Safety snapshot of the pre-restore state.
	m.mu.Lock()
	_, err = m.createLocked()
	m.mu.Unlock()
	if err != nil {
		return fmt.Errorf("pre-restore snapshot: %w", err)
	}

	if err := m.store.Restore(data); err != nil {
		return fmt.Errorf("write restored settings: %w", err)
	}

	m.logger.Info("settings restored from backup", "file", location)
	return nil
}

// sweepLocked deletes the oldest backups beyond the retention cap. A failure
// deleting one backup does not abort deletion of the others.
// Caller must hold m.mu.
func (m *Manager) sweepLocked() {
	records, err := m.List()
	if err != nil {
		m.logger.Warn("retention sweep: failed to list backups", "error", err)
		return
	}
	if len(records) <= m.retention {
		return
	}

	for _, rec := range records[m.retention:] {
		path := filepath.Join(m.dir, rec.Location)
		if err := os.Remove(path); err != nil {
			m.logger.Warn("retention sweep: failed to delete backup",
				"file", rec.Location, "error", err)
			continue
		}
		m.logger.Debug("retention sweep: deleted backup", "file", rec.Location)
	}
}

// parseBackupFilename extracts a Record from a backup filename.
func parseBackupFilename(name string) (Record, bool) {
	matches := backupFilePattern.FindStringSubmatch(name)
	if matches == nil {
		return Record{}, false
	}
	ts, err := time.Parse(timestampLayout, matches[1])
	if err != nil {
		return Record{}, false
	}
	return Record{
		Timestamp:   ts.UTC(),
		ContentHash: matches[2],
		Location:    name,
	}, true
}
