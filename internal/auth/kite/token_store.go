package kite

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"
)

// TokenStore persists a single token record as a JSON file on disk. The
// process tracks exactly one Kite session, so every save overwrites the
// previous record.
type TokenStore struct {
	mu   sync.Mutex
	path string
}

// NewTokenStore creates a store backed by the given file path.
func NewTokenStore(path string) *TokenStore {
	return &TokenStore{path: strings.TrimSpace(path)}
}

// Path returns the file path backing the store.
func (s *TokenStore) Path() string {
	return s.path
}

// Load reads the persisted record. A missing or unreadable record is not an
// error: it returns (nil, nil) so callers treat it like an expired session
// and start a fresh login instead of crashing on leftover state.
func (s *TokenStore) Load() (*TokenRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path == "" {
		return nil, fmt.Errorf("token store: path not configured")
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("token store: read failed: %w", err)
	}
	if len(data) == 0 {
		return nil, nil
	}
	var record TokenRecord
	if err = json.Unmarshal(data, &record); err != nil {
		log.Warnf("token store: ignoring corrupt record at %s: %v", s.path, err)
		return nil, nil
	}
	if record.AccessToken == "" {
		return nil, nil
	}
	return &record, nil
}

// Save writes the record atomically: it writes a temporary file in the target
// directory and renames it over the destination so concurrent readers never
// observe a partial record.
func (s *TokenStore) Save(record *TokenRecord) error {
	if record == nil {
		return fmt.Errorf("token store: record is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path == "" {
		return fmt.Errorf("token store: path not configured")
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("token store: create dir failed: %w", err)
	}
	raw, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("token store: marshal failed: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".kite-token-*.tmp")
	if err != nil {
		return fmt.Errorf("token store: create temp failed: %w", err)
	}
	tmpName := tmp.Name()
	if _, err = tmp.Write(raw); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("token store: write failed: %w", err)
	}
	if err = tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("token store: close failed: %w", err)
	}
	if err = os.Chmod(tmpName, 0o600); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("token store: chmod failed: %w", err)
	}
	if err = os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("token store: rename failed: %w", err)
	}
	return nil
}

// Clear removes the persisted record. Removing an already missing file is not
// an error.
func (s *TokenStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path == "" {
		return nil
	}
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("token store: delete failed: %w", err)
	}
	return nil
}
