package credstore

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

// CredentialsFile is the plaintext fallback file name inside the config dir.
const CredentialsFile = "credentials.json"

// LockTimeout bounds how long a write waits for another process's lock.
const LockTimeout = time.Second

// FileStore keeps credentials in a 0600 JSON file keyed by origin. Writes are
// atomic (temp file + rename) and serialized across processes with a file lock.
type FileStore struct {
	dir    string
	origin string
	mu     sync.Mutex
}

// NewFileStore creates a file-backed store for origin rooted at dir.
func NewFileStore(dir, origin string) *FileStore {
	return &FileStore{dir: dir, origin: origin}
}

// Path returns the credentials file path.
func (s *FileStore) Path() string {
	return filepath.Join(s.dir, CredentialsFile)
}

func (s *FileStore) lockPath() string {
	return filepath.Join(s.dir, ".credentials.lock")
}

// Get implements Store.
func (s *FileStore) Get(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if fl, err := s.lock(false); err == nil && fl != nil {
		defer fl.Unlock() //nolint:errcheck
	}

	all, err := s.loadAll()
	if err != nil {
		return "", false
	}
	v, ok := all[s.origin][key]
	return v, ok && v != ""
}

// Set implements Store.
func (s *FileStore) Set(key, value string) error {
	return s.update(key, func(values map[string]string) bool {
		values[key] = value
		return true
	})
}

// Remove implements Store.
func (s *FileStore) Remove(key string) error {
	return s.update(key, func(values map[string]string) bool {
		if _, ok := values[key]; !ok {
			return false
		}
		delete(values, key)
		return true
	})
}

// update applies mutate to this origin's values under an exclusive lock and
// persists the result when mutate reports a change.
func (s *FileStore) update(key string, mutate func(map[string]string) bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	fl, err := s.lock(true)
	if err != nil {
		return &StoreError{Operation: "set", Key: key, Cause: err}
	}
	defer fl.Unlock() //nolint:errcheck

	all, err := s.loadAll()
	if err != nil {
		return &StoreError{Operation: "set", Key: key, Cause: err}
	}
	values := all[s.origin]
	if values == nil {
		values = make(map[string]string)
	}
	if !mutate(values) {
		return nil
	}
	if len(values) == 0 {
		delete(all, s.origin)
	} else {
		all[s.origin] = values
	}
	if err := s.saveAll(all); err != nil {
		return &StoreError{Operation: "set", Key: key, Cause: err}
	}
	return nil
}

// lock takes the cross-process file lock. Shared locks are best effort and
// return (nil, nil) on timeout; exclusive locks fail on timeout.
func (s *FileStore) lock(exclusive bool) (*flock.Flock, error) {
	if err := os.MkdirAll(s.dir, 0700); err != nil {
		return nil, err
	}

	fl := flock.New(s.lockPath())
	ctx, cancel := context.WithTimeout(context.Background(), LockTimeout)
	defer cancel()

	var locked bool
	var err error
	if exclusive {
		locked, err = fl.TryLockContext(ctx, 10*time.Millisecond)
	} else {
		locked, err = fl.TryRLockContext(ctx, 10*time.Millisecond)
	}
	if err != nil {
		if !exclusive && errors.Is(err, context.DeadlineExceeded) {
			return nil, nil
		}
		return nil, err
	}
	if !locked {
		if exclusive {
			return nil, errors.New("credentials file is locked by another process")
		}
		return nil, nil
	}
	return fl, nil
}

func (s *FileStore) loadAll() (map[string]map[string]string, error) {
	data, err := os.ReadFile(s.Path()) //nolint:gosec // G304: path is under the trusted config dir
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]map[string]string), nil
		}
		return nil, err
	}

	all := make(map[string]map[string]string)
	if len(data) == 0 {
		return all, nil
	}
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, err
	}
	return all, nil
}

func (s *FileStore) saveAll(all map[string]map[string]string) error {
	data, err := json.MarshalIndent(all, "", "  ")
	if err != nil {
		return err
	}

	tmpFile, err := os.CreateTemp(s.dir, "credentials-*.json.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmpFile.Name()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmpFile.Chmod(0600); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmpFile.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}

	// Windows: rename fails when the destination exists.
	destPath := s.Path()
	if err := os.Rename(tmpPath, destPath); err != nil {
		if runtime.GOOS == "windows" {
			_ = os.Remove(destPath)
			return os.Rename(tmpPath, destPath)
		}
		os.Remove(tmpPath)
		return err
	}
	return nil
}
