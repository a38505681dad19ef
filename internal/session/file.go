package session

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// recordExt is the file name suffix for session blobs: <session_id>.json
// under the store directory. File modification time is the store's only
// notion of recency.
const recordExt = ".json"

// fileRecord is the on-disk blob layout.
type fileRecord struct {
	Schema    int               `json:"_schema"`
	Permanent bool              `json:"_permanent"`
	Flags     map[string]string `json:"flags"`
	Links     []json.RawMessage `json:"tpr_download_links,omitempty"`
}

// FileStore keeps one JSON blob per session under a directory. It is the
// fallback backend: no eviction, no cross-process coordination, last writer
// wins. The process-local mutex only keeps this process's own
// read-modify-write cycles from interleaving; writes are made atomic per
// record via a temp file and rename so a blob can never be half-written.
type FileStore struct {
	dir string
	mu  sync.Mutex
}

// NewFileStore creates the session directory if needed and returns the store.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		dir = "sessions"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("session: create dir %s: %w", dir, err)
	}
	return &FileStore{dir: dir}, nil
}

// Dir returns the session directory path.
func (s *FileStore) Dir() string { return s.dir }

func (s *FileStore) path(sessionID string) string {
	return filepath.Join(s.dir, sessionID+recordExt)
}

// load reads and decodes one record. A missing file is an empty record; a
// file that exists but cannot be decoded is a CorruptRecordError naming the
// session, never silently replaced.
func (s *FileStore) load(sessionID string) (*fileRecord, error) {
	data, err := os.ReadFile(s.path(sessionID))
	if os.IsNotExist(err) {
		return &fileRecord{Schema: SchemaVersion, Flags: map[string]string{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("session: read record %s: %w", sessionID, err)
	}

	var rec fileRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, &CorruptRecordError{SessionID: sessionID, Err: err}
	}
	if rec.Flags == nil {
		rec.Flags = map[string]string{}
	}
	// Pre-versioning blob: upgrade in place on the next save.
	if rec.Schema == 0 {
		rec.Schema = SchemaVersion
	}
	return &rec, nil
}

// save writes the record through a temp file and renames it into place.
func (s *FileStore) save(sessionID string, rec *fileRecord) error {
	rec.Permanent = true
	rec.Schema = SchemaVersion

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("session: encode record %s: %w", sessionID, err)
	}

	tmp, err := os.CreateTemp(s.dir, sessionID+".tmp-*")
	if err != nil {
		return fmt.Errorf("session: temp file for %s: %w", sessionID, err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("session: write record %s: %w", sessionID, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("session: close record %s: %w", sessionID, err)
	}
	if err := os.Rename(tmp.Name(), s.path(sessionID)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("session: rename record %s: %w", sessionID, err)
	}
	return nil
}

// Get returns the current value of a flag, or def when the session or the
// flag does not exist.
func (s *FileStore) Get(ctx context.Context, sessionID, flag, def string) (string, error) {
	if err := validateSessionID(sessionID); err != nil {
		return def, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.load(sessionID)
	if err != nil {
		return def, err
	}
	v, ok := rec.Flags[flag]
	if !ok {
		return def, nil
	}
	return v, nil
}

// Set upserts one flag and persists the whole record immediately.
func (s *FileStore) Set(ctx context.Context, sessionID, flag, value string) error {
	if err := validateSessionID(sessionID); err != nil {
		return err
	}
	if err := validateFlag(flag); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.load(sessionID)
	if err != nil {
		return err
	}
	rec.Flags[flag] = value
	return s.save(sessionID, rec)
}

// SetDownloadLinks replaces the stored download link list.
func (s *FileStore) SetDownloadLinks(ctx context.Context, sessionID string, links []json.RawMessage) error {
	if err := validateSessionID(sessionID); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.load(sessionID)
	if err != nil {
		return err
	}
	rec.Links = links
	return s.save(sessionID, rec)
}

// Snapshot returns the typed state of one session. This is best-effort with
// respect to concurrent writers from other processes: it reads whatever blob
// is on disk at call time.
func (s *FileStore) Snapshot(ctx context.Context, sessionID string) (*State, error) {
	if err := validateSessionID(sessionID); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.load(sessionID)
	if err != nil {
		return nil, err
	}
	return stateFromRaw(sessionID, rec.Flags, rec.Links), nil
}

// Delete removes the session blob. Deleting a session that does not exist is
// not an error.
func (s *FileStore) Delete(ctx context.Context, sessionID string) error {
	if err := validateSessionID(sessionID); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path(sessionID))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("session: delete record %s: %w", sessionID, err)
	}
	return nil
}

// ListRecent enumerates stored sessions sorted by modification time
// descending, returning at most n entries. Temp files from in-flight writes
// are skipped.
func (s *FileStore) ListRecent(n int) ([]RecentEntry, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("session: read dir %s: %w", s.dir, err)
	}

	recent := make([]RecentEntry, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, recordExt) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue // deleted between ReadDir and Stat
		}
		recent = append(recent, RecentEntry{
			SessionID:  strings.TrimSuffix(name, recordExt),
			ModifiedAt: info.ModTime(),
		})
	}

	sort.Slice(recent, func(i, j int) bool {
		return recent[i].ModifiedAt.After(recent[j].ModifiedAt)
	})
	if n > 0 && len(recent) > n {
		recent = recent[:n]
	}
	return recent, nil
}

func (s *FileStore) Backend() string { return "file" }

func (s *FileStore) Close() error { return nil }
