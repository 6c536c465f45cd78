// Package lock persists the time the alarm last fired and decides whether the
// once-a-day ambient lock is in force.
package lock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/sweeney/sleep-machine/internal/logger"
)

// Store answers lock queries and records alarm firings.
type Store interface {
	IsLocked(ctx context.Context, now time.Time) bool
	RecordFired(ctx context.Context, now time.Time) error
}

// ErrNoRecord is returned by Last when nothing has been recorded yet.
var ErrNoRecord = errors.New("no alarm record")

// DefaultReleaseHour is the hour from which the lock is lifted on the day it was set.
const DefaultReleaseHour = 21

// recordLayouts are accepted when reading. The second covers records written
// without a zone offset, which are read in the local zone of the query.
var recordLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999999"}

// Locked reports whether a record fired at last locks ambient sound at now:
// same calendar day as now (in now's zone) and before releaseHour.
func Locked(last, now time.Time, releaseHour int) bool {
	ly, lm, ld := last.In(now.Location()).Date()
	ny, nm, nd := now.Date()
	if ly != ny || lm != nm || ld != nd {
		return false
	}
	return now.Hour() < releaseHour
}

// FileStore keeps the record as a single ISO-8601 timestamp in a text file.
type FileStore struct {
	path        string
	releaseHour int
	mu          sync.Mutex
	// warned is the last unreadable-record error logged, so a bad file is
	// reported once rather than on every query.
	warned string
}

// NewFileStore creates a store at path releasing the lock at releaseHour.
func NewFileStore(path string, releaseHour int) *FileStore {
	return &FileStore{
		path:        filepath.Clean(path),
		releaseHour: releaseHour,
	}
}

// Last reads the recorded firing time.
func (s *FileStore) Last(now time.Time) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	contents, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return time.Time{}, ErrNoRecord
		}
		return time.Time{}, fmt.Errorf("read lock file: %w", err)
	}

	text := strings.TrimSpace(string(contents))
	for _, layout := range recordLayouts {
		if t, err := time.ParseInLocation(layout, text, now.Location()); err == nil {
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("parse lock file %q: unrecognised timestamp %q", s.path, text)
}

// IsLocked fails open: a missing or unreadable record means unlocked.
func (s *FileStore) IsLocked(ctx context.Context, now time.Time) bool {
	last, err := s.Last(now)
	if err != nil && !errors.Is(err, ErrNoRecord) {
		if s.noteUnreadable(err.Error()) {
			logger.WarnKV(ctx, "Ignoring unreadable lock record", "path", s.path, "error", err)
		}
		return false
	}
	s.noteUnreadable("")
	if err != nil {
		return false
	}
	return Locked(last, now, s.releaseHour)
}

// noteUnreadable records msg as the current read failure ("" once the file
// reads cleanly again) and reports whether it differs from the previous one.
func (s *FileStore) noteUnreadable(msg string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	changed := msg != s.warned
	s.warned = msg
	return changed
}

// RecordFired overwrites the record with now.
func (s *FileStore) RecordFired(_ context.Context, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create lock dir: %w", err)
	}

	if err := os.WriteFile(s.path, []byte(now.Format(time.RFC3339)+"\n"), 0o644); err != nil {
		return fmt.Errorf("write lock file: %w", err)
	}

	return nil
}

// MemoryStore is an in-memory Store for tests.
type MemoryStore struct {
	mu          sync.Mutex
	last        time.Time
	set         bool
	ReleaseHour int
	// RecordErr, if set, is returned by RecordFired without recording.
	RecordErr error
	Recorded  []time.Time
}

// NewMemoryStore returns an empty MemoryStore releasing at DefaultReleaseHour.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{ReleaseHour: DefaultReleaseHour}
}

// Set stores last as the recorded firing time.
func (m *MemoryStore) Set(last time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.last, m.set = last, true
}

// IsLocked implements Store.
func (m *MemoryStore) IsLocked(_ context.Context, now time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.set && Locked(m.last, now, m.ReleaseHour)
}

// RecordFired implements Store.
func (m *MemoryStore) RecordFired(_ context.Context, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.RecordErr != nil {
		return m.RecordErr
	}
	m.last, m.set = now, true
	m.Recorded = append(m.Recorded, now)
	return nil
}
