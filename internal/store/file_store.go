package store

import (
	"fmt"
	"path/filepath"
	"sync"

	"olmera/internal/domain"
)

const (
	accountFilename  = "account.json"
	sessionsFilename = "sessions.json"
)

// accountFile is the on-disk wrapper around the account blob.
type accountFile struct {
	Blob string `json:"blob"`
}

// FileStore persists the account blob and session records as JSON on disk.
type FileStore struct {
	dir string
	mu  sync.Mutex
}

// NewFileStore returns a FileStore rooted at dir.
func NewFileStore(dir string) *FileStore { return &FileStore{dir: dir} }

// LoadAccount returns the stored account blob, if any.
func (s *FileStore) LoadAccount() (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var af accountFile
	if err := readJSON(filepath.Join(s.dir, accountFilename), &af); err != nil {
		return "", false, fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	return af.Blob, af.Blob != "", nil
}

// StoreAccount writes the account blob.
func (s *FileStore) StoreAccount(blob string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := writeJSON(filepath.Join(s.dir, accountFilename), accountFile{Blob: blob}, 0o600); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	return nil
}

// GetSessionsForDevice returns the device's records, most-recently-used first.
func (s *FileStore) GetSessionsForDevice(deviceKey domain.DeviceKey) ([]domain.SessionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.readSessions()
	if err != nil {
		return nil, err
	}
	return m[deviceKey], nil
}

// StoreSession upserts rec and moves it to the head of the device's list.
func (s *FileStore) StoreSession(deviceKey domain.DeviceKey, rec domain.SessionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.readSessions()
	if err != nil {
		return err
	}
	list := m[deviceKey]
	kept := make([]domain.SessionRecord, 0, len(list)+1)
	kept = append(kept, rec)
	for _, r := range list {
		if r.SessionID != rec.SessionID {
			kept = append(kept, r)
		}
	}
	m[deviceKey] = kept

	if err := writeJSON(filepath.Join(s.dir, sessionsFilename), m, 0o600); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	return nil
}

// Sessions returns every stored record across all devices.
func (s *FileStore) Sessions() ([]domain.SessionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.readSessions()
	if err != nil {
		return nil, err
	}
	var out []domain.SessionRecord
	for _, list := range m {
		out = append(out, list...)
	}
	return out, nil
}

// ReplaceSessions swaps the whole session set in one atomic file write.
func (s *FileStore) ReplaceSessions(recs []domain.SessionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := make(map[domain.DeviceKey][]domain.SessionRecord, len(recs))
	for _, rec := range recs {
		m[rec.DeviceKey] = append(m[rec.DeviceKey], rec)
	}
	if err := writeJSON(filepath.Join(s.dir, sessionsFilename), m, 0o600); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	return nil
}

func (s *FileStore) readSessions() (map[domain.DeviceKey][]domain.SessionRecord, error) {
	m := map[domain.DeviceKey][]domain.SessionRecord{}
	if err := readJSON(filepath.Join(s.dir, sessionsFilename), &m); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	return m, nil
}

// Compile-time assertion that FileStore implements domain.SessionStore.
var _ domain.SessionStore = (*FileStore)(nil)
