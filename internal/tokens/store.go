package tokens

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gofrs/flock"
)

var ErrNoTokens = errors.New("no stored tokens")

// Pair is the access/refresh token couple. Both fields are always written
// together.
type Pair struct {
	AccessToken  string `json:"token"`
	RefreshToken string `json:"refresh_token"`
}

// Store persists a Pair as a JSON file. Writes are atomic (temp file and
// rename) and serialized across processes with a sibling .lock file, so a
// concurrent reader never observes a partially written pair.
type Store struct {
	path string
	lock *flock.Flock
	mu   sync.Mutex

	// written is the last pair this store put on disk (zero after Clear);
	// Watch uses it to tell its own writes from other processes'.
	written    Pair
	hasWritten bool
}

func DefaultPath() (string, error) {
	root, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(root, "place-client", "tokens.json"), nil
}

// Open returns a store backed by path, or DefaultPath when path is empty.
// The file itself is created lazily by Save.
func Open(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		var err error
		if path, err = DefaultPath(); err != nil {
			return nil, fmt.Errorf("resolve token path: %w", err)
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create token dir: %w", err)
	}
	return &Store{path: path, lock: flock.New(path + ".lock")}, nil
}

func (s *Store) Path() string {
	return s.path
}

func (s *Store) Save(access, refresh string) error {
	payload, err := json.MarshalIndent(Pair{AccessToken: access, RefreshToken: refresh}, "", "  ")
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.lock.Lock(); err != nil {
		return fmt.Errorf("lock token file: %w", err)
	}
	defer func() { _ = s.lock.Unlock() }()

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".tokens-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer func() { _ = os.Remove(tmpPath) }()

	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return err
	}
	if _, err := tmp.Write(payload); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return err
	}
	s.markWrittenLocked(Pair{AccessToken: access, RefreshToken: refresh})
	return nil
}

func (s *Store) markWrittenLocked(pair Pair) {
	s.written = pair
	s.hasWritten = true
}

// ownWrite reports whether pair is what this store last wrote.
func (s *Store) ownWrite(pair Pair) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hasWritten && s.written == pair
}

// Load returns the stored pair, or ErrNoTokens when nothing is stored or the
// file cannot be decoded.
func (s *Store) Load() (Pair, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.lock.RLock(); err != nil {
		return Pair{}, fmt.Errorf("lock token file: %w", err)
	}
	defer func() { _ = s.lock.Unlock() }()
	return s.readLocked()
}

func (s *Store) readLocked() (Pair, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return Pair{}, ErrNoTokens
	}
	if err != nil {
		return Pair{}, err
	}
	var pair Pair
	if err := json.Unmarshal(data, &pair); err != nil {
		return Pair{}, ErrNoTokens
	}
	if pair.AccessToken == "" && pair.RefreshToken == "" {
		return Pair{}, ErrNoTokens
	}
	return pair, nil
}

func (s *Store) Get() (string, bool) {
	pair, err := s.Load()
	if err != nil || pair.AccessToken == "" {
		return "", false
	}
	return pair.AccessToken, true
}

func (s *Store) GetRefresh() (string, bool) {
	pair, err := s.Load()
	if err != nil || pair.RefreshToken == "" {
		return "", false
	}
	return pair.RefreshToken, true
}

func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.lock.Lock(); err != nil {
		return fmt.Errorf("lock token file: %w", err)
	}
	defer func() { _ = s.lock.Unlock() }()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	s.markWrittenLocked(Pair{})
	return nil
}
