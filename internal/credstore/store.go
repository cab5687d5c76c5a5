// Package credstore persists the access token, refresh token and identity hint.
//
// A Store is a plain key/value slot: absence is a normal state (logged out),
// writes overwrite, removals are idempotent. It performs no validation of
// token structure or expiry.
package credstore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Well-known keys.
const (
	KeyAccessToken  = "access_token"
	KeyRefreshToken = "refresh_token"
	KeyUserID       = "user_id"
	KeyUsername     = "username"
)

// AllKeys lists every key the application writes.
var AllKeys = []string{KeyAccessToken, KeyRefreshToken, KeyUserID, KeyUsername}

// Store provides synchronous key/value access to session credentials.
type Store interface {
	// Get returns the value for key and whether it was present. It never fails:
	// backend errors read as absent.
	Get(key string) (string, bool)

	// Set stores value under key, replacing any previous value.
	Set(key, value string) error

	// Remove deletes key. Removing an absent key is a no-op.
	Remove(key string) error
}

// Backend names accepted by Open.
const (
	BackendAuto    = "auto"
	BackendKeyring = "keyring"
	BackendFile    = "file"
	BackendMemory  = "memory"
)

// StoreError indicates a credential storage error.
type StoreError struct {
	Operation string // "set", "remove", "open"
	Key       string
	Cause     error
}

func (e *StoreError) Error() string {
	msg := e.Operation + " credentials"
	if e.Key != "" {
		msg += " (" + e.Key + ")"
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *StoreError) Unwrap() error {
	return e.Cause
}

// Open returns the store for origin using backend. With BackendAuto the system
// keyring is preferred and the file store is the fallback. TASKR_NO_KEYRING
// forces the file store.
func Open(backend, dir, origin string) (Store, error) {
	switch backend {
	case "", BackendAuto:
		if os.Getenv("TASKR_NO_KEYRING") == "" && KeyringAvailable() {
			return NewKeyringStore(origin), nil
		}
		if os.Getenv("TASKR_NO_KEYRING") == "" {
			fmt.Fprintf(os.Stderr, "warning: system keyring unavailable, credentials stored in plaintext at %s\n",
				filepath.Join(dir, CredentialsFile))
		}
		return NewFileStore(dir, origin), nil
	case BackendKeyring:
		if !KeyringAvailable() {
			return nil, &StoreError{Operation: "open", Cause: errors.New("system keyring unavailable")}
		}
		return NewKeyringStore(origin), nil
	case BackendFile:
		return NewFileStore(dir, origin), nil
	case BackendMemory:
		return NewMemoryStore(), nil
	}
	return nil, &StoreError{Operation: "open", Cause: fmt.Errorf("unknown credential backend %q", backend)}
}

// Clear removes every application key from s. All removals are attempted;
// the first error is returned.
func Clear(s Store) error {
	var first error
	for _, k := range AllKeys {
		if err := s.Remove(k); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Snapshot returns the present keys and values, for status display.
func Snapshot(s Store) map[string]string {
	out := make(map[string]string)
	for _, k := range AllKeys {
		if v, ok := s.Get(k); ok {
			out[k] = v
		}
	}
	return out
}

// Describe names the backend behind s.
func Describe(s Store) string {
	switch s.(type) {
	case *KeyringStore:
		return BackendKeyring
	case *FileStore:
		return BackendFile
	case *MemoryStore:
		return BackendMemory
	}
	return "custom"
}
