// Package session persists remote-client session state, one JSON file per username.
package session

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrInvalidUsername = errors.New("invalid username for session file")
)

// Store saves and loads opaque session blobs keyed by username.
type Store interface {
	Save(username string, blob []byte) error
	Load(username string) ([]byte, error)
}

// FileStore keeps sessions under dir as <username>.json. Writes for the same
// username are serialized; different usernames proceed in parallel.
type FileStore struct {
	dir   string
	locks sync.Map // username -> *sync.Mutex
}

var _ Store = (*FileStore)(nil)

// NewFileStore creates dir if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create session dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Dir returns the directory sessions are kept in.
func (s *FileStore) Dir() string { return s.dir }

// Save writes blob atomically: a temp file in the same directory is renamed
// over the previous session.
func (s *FileStore) Save(username string, blob []byte) error {
	path, err := s.path(username)
	if err != nil {
		return err
	}

	mu := s.lock(username)
	mu.Lock()
	defer mu.Unlock()

	tmp, err := os.CreateTemp(s.dir, "."+username+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp session file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(blob); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write session: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to sync session: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close session file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to store session: %w", err)
	}
	return nil
}

// Load returns the stored blob or ErrSessionNotFound.
func (s *FileStore) Load(username string) ([]byte, error) {
	path, err := s.path(username)
	if err != nil {
		return nil, err
	}

	blob, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to read session: %w", err)
	}
	return blob, nil
}

// Delete removes a stored session. Missing sessions are not an error.
func (s *FileStore) Delete(username string) error {
	path, err := s.path(username)
	if err != nil {
		return err
	}

	mu := s.lock(username)
	mu.Lock()
	defer mu.Unlock()

	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

func (s *FileStore) lock(username string) *sync.Mutex {
	mu, _ := s.locks.LoadOrStore(username, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

func (s *FileStore) path(username string) (string, error) {
	if username == "" || username == "." || strings.Contains(username, "..") ||
		strings.ContainsAny(username, `/\`) || strings.ContainsRune(username, 0) {
		return "", fmt.Errorf("%w: %q", ErrInvalidUsername, username)
	}
	return filepath.Join(s.dir, username+".json"), nil
}
