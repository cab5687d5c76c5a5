// Package completion provides tab completion support for the taskr CLI.
// It keeps a small file-based cache of tasks and users so shell completions
// never have to call the API.
package completion

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/productivity/taskr/internal/models"
)

// CachedTask holds task data for tab completion.
type CachedTask struct {
	ID       int64  `json:"id"`
	Title    string `json:"title"`
	State    string `json:"state,omitempty"`
	Priority string `json:"priority,omitempty"`
}

// CachedUser holds user data for tab completion.
type CachedUser struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
}

// Cache stores completion data with metadata for staleness detection.
type Cache struct {
	Origin         string       `json:"origin,omitempty"`
	Tasks          []CachedTask `json:"tasks,omitempty"`
	Users          []CachedUser `json:"users,omitempty"`
	TasksUpdatedAt time.Time    `json:"tasks_updated_at,omitempty"`
	UsersUpdatedAt time.Time    `json:"users_updated_at,omitempty"`
	Version        int          `json:"version"`
}

const (
	// CacheVersion is the current cache schema version.
	CacheVersion = 1

	// DefaultMaxAge is the default cache staleness threshold.
	DefaultMaxAge = time.Hour

	// CacheFileName is the default cache file name.
	CacheFileName = "completion.json"
)

// Store handles reading and writing the completion cache for one server origin.
// A cache written for another origin reads as empty.
type Store struct {
	dir    string
	origin string
	mu     sync.RWMutex
}

// NewStore creates a cache store. An empty dir means DefaultCacheDir.
func NewStore(dir, origin string) *Store {
	if dir == "" {
		dir = DefaultCacheDir()
	}
	return &Store{dir: dir, origin: origin}
}

// DefaultCacheDir returns $XDG_CACHE_HOME/taskr, or ~/.cache/taskr.
func DefaultCacheDir() string {
	cacheDir := os.Getenv("XDG_CACHE_HOME")
	if cacheDir == "" {
		home, _ := os.UserHomeDir()
		cacheDir = filepath.Join(home, ".cache")
	}
	return filepath.Join(cacheDir, "taskr")
}

// Path returns the full path to the cache file.
func (s *Store) Path() string {
	return filepath.Join(s.dir, CacheFileName)
}

// Load reads the cache from disk. Missing, corrupt or foreign-origin files
// read as an empty cache.
func (s *Store) Load() *Cache {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loadUnsafe()
}

func (s *Store) loadUnsafe() *Cache {
	empty := &Cache{Origin: s.origin, Version: CacheVersion}

	data, err := os.ReadFile(s.Path())
	if err != nil {
		return empty
	}
	var cache Cache
	if err := json.Unmarshal(data, &cache); err != nil {
		return empty
	}
	if cache.Version != CacheVersion || (s.origin != "" && cache.Origin != s.origin) {
		return empty
	}
	return &cache
}

func (s *Store) saveUnsafe(cache *Cache) error {
	if err := os.MkdirAll(s.dir, 0700); err != nil {
		return err
	}
	cache.Version = CacheVersion
	cache.Origin = s.origin

	data, err := json.MarshalIndent(cache, "", "  ")
	if err != nil {
		return err
	}

	tmpPath := s.Path() + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return err
	}
	return os.Rename(tmpPath, s.Path())
}

// UpdateTasks replaces the cached tasks.
func (s *Store) UpdateTasks(tasks []models.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cache := s.loadUnsafe()
	cache.Tasks = make([]CachedTask, len(tasks))
	for i, t := range tasks {
		cache.Tasks[i] = CachedTask{ID: t.ID, Title: t.Title, State: t.State, Priority: t.Priority}
	}
	cache.TasksUpdatedAt = time.Now()
	return s.saveUnsafe(cache)
}

// UpdateUsers replaces the cached users.
func (s *Store) UpdateUsers(users []models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cache := s.loadUnsafe()
	cache.Users = make([]CachedUser, len(users))
	for i, u := range users {
		cache.Users[i] = CachedUser{ID: u.ID, Username: u.Username, Email: u.Email}
	}
	cache.UsersUpdatedAt = time.Now()
	return s.saveUnsafe(cache)
}

// IsStale reports whether either section is missing or older than maxAge.
func (s *Store) IsStale(maxAge time.Duration) bool {
	cache := s.Load()
	if cache.TasksUpdatedAt.IsZero() || cache.UsersUpdatedAt.IsZero() {
		return true
	}
	oldest := cache.TasksUpdatedAt
	if cache.UsersUpdatedAt.Before(oldest) {
		oldest = cache.UsersUpdatedAt
	}
	return time.Since(oldest) > maxAge
}

// Clear removes the cache file.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.Path())
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// Tasks returns the cached tasks.
func (s *Store) Tasks() []CachedTask {
	return s.Load().Tasks
}

// Users returns the cached users.
func (s *Store) Users() []CachedUser {
	return s.Load().Users
}
