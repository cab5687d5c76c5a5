package credstore

import (
	"encoding/json"
	"errors"
	"sync"

	"github.com/zalando/go-keyring"
)

const serviceName = "taskr"

// KeyringAvailable reports whether the system keyring accepts writes.
func KeyringAvailable() bool {
	testKey := "taskr::probe"
	if err := keyring.Set(serviceName, testKey, "probe"); err != nil {
		return false
	}
	_ = keyring.Delete(serviceName, testKey) // Best-effort cleanup
	return true
}

// KeyringStore keeps all values for one origin in a single keychain secret.
type KeyringStore struct {
	origin string
	mu     sync.Mutex
}

// NewKeyringStore creates a keyring-backed store for origin.
func NewKeyringStore(origin string) *KeyringStore {
	return &KeyringStore{origin: origin}
}

func (s *KeyringStore) account() string {
	return "taskr::" + s.origin
}

func (s *KeyringStore) load() (map[string]string, error) {
	data, err := keyring.Get(serviceName, s.account())
	if errors.Is(err, keyring.ErrNotFound) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, err
	}
	values := map[string]string{}
	if err := json.Unmarshal([]byte(data), &values); err != nil {
		return nil, err
	}
	return values, nil
}

func (s *KeyringStore) save(values map[string]string) error {
	if len(values) == 0 {
		err := keyring.Delete(serviceName, s.account())
		if errors.Is(err, keyring.ErrNotFound) {
			return nil
		}
		return err
	}
	data, err := json.Marshal(values)
	if err != nil {
		return err
	}
	return keyring.Set(serviceName, s.account(), string(data))
}

// Get implements Store.
func (s *KeyringStore) Get(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	values, err := s.load()
	if err != nil {
		return "", false
	}
	v, ok := values[key]
	return v, ok && v != ""
}

// Set implements Store.
func (s *KeyringStore) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	values, err := s.load()
	if err != nil {
		// Writing over it would drop the other keys it holds.
		return &StoreError{Operation: "set", Key: key, Cause: err}
	}
	values[key] = value
	if err := s.save(values); err != nil {
		return &StoreError{Operation: "set", Key: key, Cause: err}
	}
	return nil
}

// Remove implements Store.
func (s *KeyringStore) Remove(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	values, err := s.load()
	if err != nil {
		return &StoreError{Operation: "remove", Key: key, Cause: err}
	}
	if _, ok := values[key]; !ok {
		return nil
	}
	delete(values, key)
	if err := s.save(values); err != nil {
		return &StoreError{Operation: "remove", Key: key, Cause: err}
	}
	return nil
}
