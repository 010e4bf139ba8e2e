package settings

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"sync"
	"time"
)

// ErrCorrupt is returned when the settings file exists but does not parse as
// a well-formed settings document.
var ErrCorrupt = errors.New("settings file is corrupt")

// FileStore manages reading and writing the settings file.
// It provides atomic writes (write-tmp-then-rename), file locking (flock for
// cross-process, mutex for in-process), and first-boot initialization with
// safe routing defaults.
type FileStore struct {
	path   string
	mu     sync.Mutex
	logger *slog.Logger

	// onSave, when set, runs after every successful write (Save, Update,
	// Restore). Used to trigger backup creation; its failures must never
	// fail the write.
	onSave func(*Document)
}

// NewFileStore creates a new FileStore for the given file path.
func NewFileStore(path string, logger *slog.Logger) *FileStore {
	return &FileStore{
		path:   path,
		logger: logger,
	}
}

// SetOnSave registers a hook invoked after each successful Save with the
// document just written. Must be called before the store is shared.
func (s *FileStore) SetOnSave(fn func(*Document)) {
	s.onSave = fn
}

// Load reads and parses the settings file.
// If the file does not exist, it returns DefaultDocument().
// If the file contains invalid JSON, it returns ErrCorrupt.
// Warns if the existing file has permissions more open than 0600.
func (s *FileStore) Load() (*Document, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.logger.Info("settings file not found, using defaults", "path", s.path)
			return DefaultDocument(), nil
		}
		return nil, fmt.Errorf("read settings file: %w", err)
	}

	// The file holds password hashes and access tokens; warn when group or
	// other can read it. Skip on Windows where Unix permission bits are not
	// supported.
	if runtime.GOOS != "windows" {
		if info, statErr := os.Stat(s.path); statErr == nil {
			mode := info.Mode().Perm()
			if mode&0077 != 0 {
				s.logger.Warn("settings file has too-open permissions, should be 0600",
					"path", s.path, "current_mode", fmt.Sprintf("%04o", mode))
			}
		}
	}

	doc, err := Parse(data)
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// Parse decodes raw bytes into a settings document. It is also used by the
// backup manager to validate a backup before restoring it.
func Parse(data []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return &doc, nil
}

// Save writes the document to disk atomically.
//
// The write sequence is:
//  1. Acquire in-process mutex
//  2. Acquire flock on path+".lock"
//  3. Marshal document as indented JSON
//  4. Write to path+".tmp" with 0600 permissions
//  5. Fsync the temp file
//  6. Rename path+".tmp" -> path
//  7. Release flock, release mutex
//  8. Run the onSave hook (outside the lock)
func (s *FileStore) Save(doc *Document) error {
	if err := s.save(doc); err != nil {
		return err
	}
	if s.onSave != nil {
		s.onSave(doc)
	}
	return nil
}

func (s *FileStore) save(doc *Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked(doc)
}

// Update atomically applies fn to the current document and persists the
// result. Load, mutate, and save happen under one lock, so concurrent
// writers (token issuance, restores, settings edits) serialize and no reader
// ever observes a partial transition.
func (s *FileStore) Update(fn func(*Document) error) error {
	var saved *Document
	err := func() error {
		s.mu.Lock()
		defer s.mu.Unlock()

		doc, err := s.loadLocked()
		if err != nil {
			return err
		}
		if err := fn(doc); err != nil {
			return err
		}
		if err := s.saveLocked(doc); err != nil {
			return err
		}
		saved = doc
		return nil
	}()
	if err != nil {
		return err
	}
	if s.onSave != nil {
		s.onSave(saved)
	}
	return nil
}

// loadLocked is Load without the permission warning, for use under s.mu.
func (s *FileStore) loadLocked() (*Document, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultDocument(), nil
		}
		return nil, fmt.Errorf("read settings file: %w", err)
	}
	return Parse(data)
}

// saveLocked stamps UpdatedAt, marshals, and commits. Caller must hold s.mu.
func (s *FileStore) saveLocked(doc *Document) error {
	doc.UpdatedAt = time.Now().UTC()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = doc.UpdatedAt
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	data = append(data, '\n')

	if err := s.commitLocked(data); err != nil {
		return err
	}

	s.logger.Debug("settings saved", "path", s.path, "users", len(doc.Users))
	return nil
}

// commitLocked performs the flock + atomic-rename write of raw bytes.
// Caller must hold s.mu.
func (s *FileStore) commitLocked(data []byte) error {
	// Cross-process file lock.
	lockPath := s.path + ".lock"
	lockFile, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return fmt.Errorf("open lock file: %w", err)
	}
	defer func() { _ = lockFile.Close() }()

	if err := flockLock(lockFile.Fd()); err != nil {
		return fmt.Errorf("acquire file lock: %w", err)
	}
	defer flockUnlock(lockFile.Fd()) //nolint:errcheck

	if err := s.writeAtomic(data); err != nil {
		return err
	}

	// Ensure 0600 permissions after rename as a safety net.
	if err := os.Chmod(s.path, 0600); err != nil {
		s.logger.Warn("failed to set permissions on settings file", "error", err)
	}
	return nil
}

// Restore replaces the settings file with data verbatim, using the same
// flock + atomic-rename path as Save. The bytes must parse as a settings
// document. No timestamp is re-stamped and nothing is re-marshaled, so
// writing back a previously saved file reproduces it byte for byte.
// The onSave hook runs as it does for Save.
func (s *FileStore) Restore(data []byte) error {
	doc, err := Parse(data)
	if err != nil {
		return err
	}

	err = func() error {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.commitLocked(data)
	}()
	if err != nil {
		return err
	}

	s.logger.Debug("settings restored", "path", s.path, "users", len(doc.Users))
	if s.onSave != nil {
		s.onSave(doc)
	}
	return nil
}

// writeAtomic writes data to a temp file, fsyncs it, and renames it over the
// target path. On any error the temp file is cleaned up.
func (s *FileStore) writeAtomic(data []byte) error {
	tmpPath := s.path + ".tmp"

	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}

	cleanup := func() {
		_ = f.Close()
		_ = os.Remove(tmpPath)
	}

	if _, err := f.Write(data); err != nil {
		cleanup()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("fsync temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename temp to settings: %w", err)
	}
	return nil
}

// DefaultDocument returns a new Document with default routing flags:
// both route-enable flags on, every auth mode off, no users.
func DefaultDocument() *Document {
	now := time.Now().UTC()
	return &Document{
		Version: "1",
		SystemConfig: SystemConfig{
			Routing: RoutingConfig{
				EnableGlobalRoute:    true,
				EnableGroupNameRoute: true,
			},
		},
		Users:     []UserEntry{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Exists returns true if the settings file exists on disk.
func (s *FileStore) Exists() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

// Path returns the configured file path.
func (s *FileStore) Path() string {
	return s.path
}
