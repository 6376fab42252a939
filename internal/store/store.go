// Package store persists small pieces of state in a single JSON file: the
// last uploaded document, the last live session and file tail offsets.
package store

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/atikulmunna/flowscope/internal/model"
)

const (
	KeyDocument     = "splunk-json-viewer-data"
	KeyDocumentName = "splunk-json-viewer-file-name"
	KeySession      = "kafka-listener-session"

	offsetPrefix = "offset:"
)

// Session is the last live session as it is persisted.
type Session struct {
	Broker   string                `json:"broker"`
	Topics   []string              `json:"topics"`
	Messages []model.ParsedMessage `json:"messages"`
	SavedAt  time.Time             `json:"savedAt"`
}

// Store is a JSON key-value file. Writes go to a temp file that is renamed
// over the original.
type Store struct {
	mu     sync.RWMutex
	saveMu sync.Mutex
	path   string
	data   map[string]json.RawMessage
}

// Open loads the store at path. A missing file yields an empty store.
func Open(path string) (*Store, error) {
	s := &Store{path: path, data: make(map[string]json.RawMessage)}

	raw, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return s, nil
	case err != nil:
		return nil, fmt.Errorf("read state file: %w", err)
	}
	if len(strings.TrimSpace(string(raw))) == 0 {
		return s, nil
	}
	if err := json.Unmarshal(raw, &s.data); err != nil {
		return nil, fmt.Errorf("decode state file %s: %w", path, err)
	}
	if s.data == nil {
		s.data = make(map[string]json.RawMessage)
	}
	return s, nil
}

// Path returns the backing file.
func (s *Store) Path() string { return s.path }

// SaveDocument records an uploaded document and its file name, then writes
// the store.
func (s *Store) SaveDocument(name string, entries []model.RawLogEntry) error {
	raw, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	nameRaw, _ := json.Marshal(name)

	s.mu.Lock()
	s.data[KeyDocument] = raw
	s.data[KeyDocumentName] = nameRaw
	s.mu.Unlock()
	return s.Save()
}

// LoadDocument returns the saved document. ok is false when either half is
// missing or unreadable.
func (s *Store) LoadDocument() (name string, entries []model.RawLogEntry, ok bool) {
	s.mu.RLock()
	raw, hasDoc := s.data[KeyDocument]
	nameRaw, hasName := s.data[KeyDocumentName]
	s.mu.RUnlock()
	if !hasDoc || !hasName {
		return "", nil, false
	}
	if err := json.Unmarshal(nameRaw, &name); err != nil || name == "" {
		return "", nil, false
	}
	if err := json.Unmarshal(raw, &entries); err != nil {
		return "", nil, false
	}
	return name, entries, true
}

// ClearDocument forgets the saved document.
func (s *Store) ClearDocument() error {
	s.mu.Lock()
	delete(s.data, KeyDocument)
	delete(s.data, KeyDocumentName)
	s.mu.Unlock()
	return s.Save()
}

// SaveSession records the last live session, then writes the store.
func (s *Store) SaveSession(sess Session) error {
	if sess.SavedAt.IsZero() {
		sess.SavedAt = time.Now().UTC()
	}
	raw, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	s.mu.Lock()
	s.data[KeySession] = raw
	s.mu.Unlock()
	return s.Save()
}

// LoadSession returns the last saved live session.
func (s *Store) LoadSession() (Session, bool) {
	s.mu.RLock()
	raw, ok := s.data[KeySession]
	s.mu.RUnlock()
	if !ok {
		return Session{}, false
	}
	var sess Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return Session{}, false
	}
	return sess, true
}

// Offset returns the saved read offset for a file path.
func (s *Store) Offset(path string) (int64, bool) {
	s.mu.RLock()
	raw, ok := s.data[offsetPrefix+path]
	s.mu.RUnlock()
	if !ok {
		return 0, false
	}
	var off int64
	if err := json.Unmarshal(raw, &off); err != nil {
		return 0, false
	}
	return off, true
}

// SetOffset records the current offset for a file path. It is kept in
// memory until Save.
func (s *Store) SetOffset(path string, offset int64) {
	raw, _ := json.Marshal(offset)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[offsetPrefix+path] = raw
}

// Save writes the store to disk atomically.
func (s *Store) Save() error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	s.mu.RLock()
	raw, err := json.MarshalIndent(s.data, "", "  ")
	s.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create state dir: %w", err)
		}
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("write state file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace state file: %w", err)
	}
	return nil
}
