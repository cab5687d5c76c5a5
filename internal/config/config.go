// Package config provides layered configuration loading.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// Config holds the resolved configuration.
type Config struct {
	// API settings
	BaseURL     string        `json:"base_url"`
	LoginPath   string        `json:"login_path"`
	RefreshPath string        `json:"refresh_path"`
	Timeout     time.Duration `json:"-"`

	// Session settings
	CredentialBackend string `json:"credential_backend"`
	RefreshCoalesce   bool   `json:"refresh_coalesce"`
	LoginCheck        string `json:"login_check"`

	// Output settings
	Format   string `json:"format"`
	PageSize int    `json:"page_size"`

	// Behavior preferences (persisted via config set, overridable by flags)
	Stats   *bool `json:"stats,omitempty"`
	Verbose *int  `json:"verbose,omitempty"`

	// Sources tracks where each value came from (for debugging).
	Sources map[string]string `json:"-"`
}

// Source indicates where a config value came from.
type Source string

const (
	SourceDefault Source = "default"
	SourceSystem  Source = "system"
	SourceGlobal  Source = "global"
	SourceRepo    Source = "repo"
	SourceLocal   Source = "local"
	SourceEnv     Source = "env"
	SourceFlag    Source = "flag"
)

// Login check modes.
const (
	LoginCheckPresence = "presence"
	LoginCheckExpiry   = "expiry"
)

// Keys lists the settable configuration keys.
var Keys = []string{
	"base_url", "login_path", "refresh_path", "timeout",
	"credential_backend", "refresh_coalesce", "login_check",
	"format", "page_size", "stats", "verbose",
}

// authorityKeys decide where credentials are sent; they are never read from
// repo or local config.
var authorityKeys = map[string]bool{
	"base_url":     true,
	"login_path":   true,
	"refresh_path": true,
}

// FlagOverrides holds command-line flag values.
type FlagOverrides struct {
	BaseURL string
	Format  string
	Backend string
	Verbose int
	Stats   bool
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		BaseURL:           "http://localhost:8000/api",
		LoginPath:         "/token/",
		RefreshPath:       "/token/refresh/",
		Timeout:           30 * time.Second,
		CredentialBackend: "auto",
		RefreshCoalesce:   true,
		LoginCheck:        LoginCheckExpiry,
		Format:            "auto",
		PageSize:          10,
		Sources:           make(map[string]string),
	}
}

// Load loads configuration from all sources with proper precedence.
// Precedence: flags > env > .env > local > repo > global > system > defaults
func Load(overrides FlagOverrides) (*Config, error) {
	cfg := Default()

	loadFromFile(cfg, systemConfigPath(), SourceSystem)
	loadFromFile(cfg, GlobalConfigPath(), SourceGlobal)

	repoPath := repoConfigPath()
	if repoPath != "" {
		loadFromFile(cfg, repoPath, SourceRepo)
	}
	for _, path := range localConfigPaths(repoPath) {
		loadFromFile(cfg, path, SourceLocal)
	}

	if err := LoadDotEnv(".env"); err != nil {
		return nil, err
	}
	if err := LoadFromEnv(cfg); err != nil {
		return nil, err
	}

	ApplyOverrides(cfg, overrides)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks enumerated settings.
func (cfg *Config) Validate() error {
	switch cfg.CredentialBackend {
	case "auto", "keyring", "file", "memory":
	default:
		return fmt.Errorf("credential_backend must be one of auto, keyring, file, memory (got %q)", cfg.CredentialBackend)
	}
	switch cfg.LoginCheck {
	case LoginCheckPresence, LoginCheckExpiry:
	default:
		return fmt.Errorf("login_check must be presence or expiry (got %q)", cfg.LoginCheck)
	}
	if cfg.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if cfg.PageSize < 0 {
		return fmt.Errorf("page_size must not be negative")
	}
	return nil
}

func loadFromFile(cfg *Config, path string, source Source) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: Path is from trusted config locations
	if err != nil {
		return
	}

	var fileCfg map[string]any
	if err := json.Unmarshal(data, &fileCfg); err != nil {
		fmt.Fprintf(os.Stderr, "warning: skipping malformed config at %s: %v\n", path, err)
		return
	}

	untrusted := source == SourceLocal || source == SourceRepo
	set := func(key string) {
		cfg.Sources[key] = string(source)
	}

	for _, key := range []string{"base_url", "login_path", "refresh_path"} {
		v, ok := fileCfg[key].(string)
		if !ok || v == "" {
			continue
		}
		if untrusted && authorityKeys[key] {
			fmt.Fprintf(os.Stderr, "warning: ignoring %s %q from %s config at %s (authority keys are not trusted from local/repo config)\n", key, v, source, path)
			continue
		}
		switch key {
		case "base_url":
			cfg.BaseURL = v
		case "login_path":
			cfg.LoginPath = v
		case "refresh_path":
			cfg.RefreshPath = v
		}
		set(key)
	}

	if d, ok := durationValue(fileCfg["timeout"]); ok {
		cfg.Timeout = d
		set("timeout")
	}
	if v, ok := fileCfg["credential_backend"].(string); ok && v != "" {
		cfg.CredentialBackend = v
		set("credential_backend")
	}
	if v, ok := fileCfg["refresh_coalesce"].(bool); ok {
		cfg.RefreshCoalesce = v
		set("refresh_coalesce")
	}
	if v, ok := fileCfg["login_check"].(string); ok && v != "" {
		cfg.LoginCheck = v
		set("login_check")
	}
	if v, ok := fileCfg["format"].(string); ok && v != "" {
		cfg.Format = v
		set("format")
	}
	if fv, ok := fileCfg["page_size"].(float64); ok && fv >= 0 && fv == float64(int(fv)) {
		cfg.PageSize = int(fv)
		set("page_size")
	}
	if v, ok := fileCfg["stats"].(bool); ok {
		cfg.Stats = &v
		set("stats")
	}
	if fv, ok := fileCfg["verbose"].(float64); ok {
		iv := int(fv)
		if iv >= 0 && iv <= 2 && fv == float64(iv) {
			cfg.Verbose = &iv
			set("verbose")
		}
	}
}

// durationValue accepts a Go duration string ("45s") or a number of seconds.
func durationValue(v any) (time.Duration, bool) {
	switch val := v.(type) {
	case string:
		d, err := time.ParseDuration(val)
		return d, err == nil && d > 0
	case float64:
		if val > 0 {
			return time.Duration(val * float64(time.Second)), true
		}
	}
	return 0, false
}

// envConfig is decoded from TASKR_* variables. Empty values mean unset.
type envConfig struct {
	BaseURL           string        `env:"TASKR_BASE_URL"`
	LoginPath         string        `env:"TASKR_LOGIN_PATH"`
	RefreshPath       string        `env:"TASKR_REFRESH_PATH"`
	Timeout           time.Duration `env:"TASKR_TIMEOUT"`
	CredentialBackend string        `env:"TASKR_CREDENTIAL_BACKEND"`
	RefreshCoalesce   string        `env:"TASKR_REFRESH_COALESCE"`
	LoginCheck        string        `env:"TASKR_LOGIN_CHECK"`
	Format            string        `env:"TASKR_FORMAT"`
	PageSize          int           `env:"TASKR_PAGE_SIZE"`
	Stats             string        `env:"TASKR_STATS"`
	Verbose           string        `env:"TASKR_VERBOSE"`
}

// LoadDotEnv loads variables from a dotenv file into the process environment.
// Variables already set win. A missing file is not an error.
func LoadDotEnv(path string) error {
	err := godotenv.Load(path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("failed to read %s: %w", path, err)
}

// LoadFromEnv loads configuration from TASKR_* environment variables.
func LoadFromEnv(cfg *Config) error {
	var env envConfig
	if err := cleanenv.ReadEnv(&env); err != nil {
		return fmt.Errorf("invalid environment configuration: %w", err)
	}

	setString := func(dst *string, v, key string) {
		if v != "" {
			*dst = v
			cfg.Sources[key] = string(SourceEnv)
		}
	}
	setString(&cfg.BaseURL, env.BaseURL, "base_url")
	setString(&cfg.LoginPath, env.LoginPath, "login_path")
	setString(&cfg.RefreshPath, env.RefreshPath, "refresh_path")
	setString(&cfg.CredentialBackend, env.CredentialBackend, "credential_backend")
	setString(&cfg.LoginCheck, env.LoginCheck, "login_check")
	setString(&cfg.Format, env.Format, "format")

	if env.Timeout > 0 {
		cfg.Timeout = env.Timeout
		cfg.Sources["timeout"] = string(SourceEnv)
	}
	if env.PageSize > 0 {
		cfg.PageSize = env.PageSize
		cfg.Sources["page_size"] = string(SourceEnv)
	}
	if b, ok := parseEnvBool(env.RefreshCoalesce); ok {
		cfg.RefreshCoalesce = b
		cfg.Sources["refresh_coalesce"] = string(SourceEnv)
	}
	if b, ok := parseEnvBool(env.Stats); ok {
		cfg.Stats = &b
		cfg.Sources["stats"] = string(SourceEnv)
	}
	if n, err := strconv.Atoi(env.Verbose); err == nil && n >= 0 && n <= 2 {
		cfg.Verbose = &n
		cfg.Sources["verbose"] = string(SourceEnv)
	}
	return nil
}

// parseEnvBool parses a boolean environment variable strictly.
// Returns (value, true) for recognized values, (false, false) for unrecognized.
func parseEnvBool(v string) (bool, bool) {
	switch strings.ToLower(v) {
	case "true", "1":
		return true, true
	case "false", "0":
		return false, true
	default:
		return false, false
	}
}

// ApplyOverrides applies non-zero flag overrides to cfg.
func ApplyOverrides(cfg *Config, o FlagOverrides) {
	if o.BaseURL != "" {
		cfg.BaseURL = o.BaseURL
		cfg.Sources["base_url"] = string(SourceFlag)
	}
	if o.Format != "" {
		cfg.Format = o.Format
		cfg.Sources["format"] = string(SourceFlag)
	}
	if o.Backend != "" {
		cfg.CredentialBackend = o.Backend
		cfg.Sources["credential_backend"] = string(SourceFlag)
	}
	if o.Verbose > 0 {
		v := o.Verbose
		cfg.Verbose = &v
		cfg.Sources["verbose"] = string(SourceFlag)
	}
	if o.Stats {
		b := true
		cfg.Stats = &b
		cfg.Sources["stats"] = string(SourceFlag)
	}
}

// Values returns every key with its effective value as a string.
func (cfg *Config) Values() map[string]string {
	stats, verbose := false, 0
	if cfg.Stats != nil {
		stats = *cfg.Stats
	}
	if cfg.Verbose != nil {
		verbose = *cfg.Verbose
	}
	return map[string]string{
		"base_url":           cfg.BaseURL,
		"login_path":         cfg.LoginPath,
		"refresh_path":       cfg.RefreshPath,
		"timeout":            cfg.Timeout.String(),
		"credential_backend": cfg.CredentialBackend,
		"refresh_coalesce":   strconv.FormatBool(cfg.RefreshCoalesce),
		"login_check":        cfg.LoginCheck,
		"format":             cfg.Format,
		"page_size":          strconv.Itoa(cfg.PageSize),
		"stats":              strconv.FormatBool(stats),
		"verbose":            strconv.Itoa(verbose),
	}
}

// SourceOf reports where key came from.
func (cfg *Config) SourceOf(key string) string {
	if s := cfg.Sources[key]; s != "" {
		return s
	}
	return string(SourceDefault)
}

// ParseValue validates value for key and returns its JSON representation.
func ParseValue(key, value string) (any, error) {
	switch key {
	case "refresh_coalesce", "stats":
		b, ok := parseBoolValue(value)
		if !ok {
			return nil, fmt.Errorf("%s must be true/false (or 1/0)", key)
		}
		return b, nil
	case "verbose":
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 || n > 2 {
			return nil, errors.New("verbose must be 0, 1, or 2")
		}
		return n, nil
	case "page_size":
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 {
			return nil, errors.New("page_size must be a non-negative integer")
		}
		return n, nil
	case "timeout":
		d, err := time.ParseDuration(value)
		if err != nil || d <= 0 {
			return nil, errors.New("timeout must be a positive duration such as 30s")
		}
		return d.String(), nil
	case "credential_backend":
		switch value {
		case "auto", "keyring", "file", "memory":
			return value, nil
		}
		return nil, errors.New("credential_backend must be one of auto, keyring, file, memory")
	case "login_check":
		if value == LoginCheckPresence || value == LoginCheckExpiry {
			return value, nil
		}
		return nil, errors.New("login_check must be presence or expiry")
	}
	for _, k := range Keys {
		if k == key {
			return value, nil
		}
	}
	names := append([]string(nil), Keys...)
	sort.Strings(names)
	return nil, fmt.Errorf("invalid config key %q. Valid keys: %s", key, strings.Join(names, ", "))
}

func parseBoolValue(value string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "true", "1", "yes", "on":
		return true, true
	case "false", "0", "no", "off":
		return false, true
	default:
		return false, false
	}
}

// SetValue validates and writes key=value into the JSON config file at path.
// It returns the stored representation.
func SetValue(path, key, value string) (any, error) {
	v, err := ParseValue(key, value)
	if err != nil {
		return nil, err
	}
	data, err := readFileMap(path)
	if err != nil {
		return nil, err
	}
	data[key] = v
	return v, writeFileMap(path, data)
}

// UnsetValue removes key from the config file at path. It reports whether the
// key was present.
func UnsetValue(path, key string) (bool, error) {
	data, err := readFileMap(path)
	if err != nil {
		return false, err
	}
	if _, ok := data[key]; !ok {
		return false, nil
	}
	delete(data, key)
	return true, writeFileMap(path, data)
}

func readFileMap(path string) (map[string]any, error) {
	out := make(map[string]any)
	raw, err := os.ReadFile(path) //nolint:gosec // G304: Path is from trusted config location
	if errors.Is(err, fs.ErrNotExist) {
		return out, nil
	}
	if err != nil {
		return nil, err
	}
	_ = json.Unmarshal(raw, &out) // start fresh if invalid
	if out == nil {
		out = make(map[string]any)
	}
	return out, nil
}

func writeFileMap(path string, data map[string]any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return atomicWriteFile(path, append(b, '\n'))
}

// atomicWriteFile writes data to a file atomically using temp+rename.
// Files are always created with 0600 permissions (owner read/write only).
func atomicWriteFile(path string, data []byte) error {
	tmpFile, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
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

	err = os.Rename(tmpPath, path)
	if err != nil && runtime.GOOS == "windows" {
		_ = os.Remove(path)
		err = os.Rename(tmpPath, path)
	}
	return err
}

// Path helpers

func systemConfigPath() string {
	return "/etc/taskr/config.json"
}

// GlobalConfigDir returns the global config directory path. Credentials
// written by the file store live here too.
func GlobalConfigDir() string {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		home, _ := os.UserHomeDir()
		configDir = filepath.Join(home, ".config")
	}
	return filepath.Join(configDir, "taskr")
}

// GlobalConfigPath returns the global config file path.
func GlobalConfigPath() string {
	return filepath.Join(GlobalConfigDir(), "config.json")
}

// LocalConfigPath returns the config file for the current directory.
func LocalConfigPath() string {
	return filepath.Join(".taskr", "config.json")
}

func repoConfigPath() string {
	// Bounded by $HOME: a .git outside the home tree never anchors a repo config.
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	resolved, err := filepath.EvalSymlinks(dir)
	if err != nil {
		return ""
	}
	dir = resolved
	home, _ := os.UserHomeDir()
	if resolved, err := filepath.EvalSymlinks(home); err == nil {
		home = resolved
	}
	if home != "" && !isInsideDir(dir, home) {
		return ""
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
			cfgPath := filepath.Join(dir, ".taskr", "config.json")
			if _, err := os.Stat(cfgPath); err == nil {
				return cfgPath
			}
			return ""
		}

		parent := filepath.Dir(dir)
		if parent == dir || (home != "" && dir == home) {
			return ""
		}
		dir = parent
	}
}

// isInsideDir reports whether child is the same as or a subdirectory of parent.
func isInsideDir(child, parent string) bool {
	if child == parent {
		return true
	}
	prefix := parent
	if !strings.HasSuffix(prefix, string(filepath.Separator)) {
		prefix += string(filepath.Separator)
	}
	return strings.HasPrefix(child, prefix)
}

// localConfigPaths returns .taskr/config.json paths between the trust boundary
// and the working directory, furthest first, excluding the repo config.
//
// Trust boundary:
//   - Inside a git repo: only paths at or below the repo root
//   - Outside a git repo: only the current working directory
func localConfigPaths(repoConfigPath string) []string {
	dir, err := os.Getwd()
	if err != nil {
		return nil
	}
	resolved, err := filepath.EvalSymlinks(dir)
	if err != nil {
		return nil
	}
	dir = resolved

	boundary := dir
	if repoConfigPath != "" {
		boundary = filepath.Dir(filepath.Dir(repoConfigPath))
	}
	if resolved, err := filepath.EvalSymlinks(boundary); err == nil {
		boundary = resolved
	}

	var paths []string
	for {
		cfgPath := filepath.Join(dir, ".taskr", "config.json")
		if _, err := os.Stat(cfgPath); err == nil && cfgPath != repoConfigPath {
			paths = append(paths, cfgPath)
		}
		parent := filepath.Dir(dir)
		if parent == dir || dir == boundary {
			break
		}
		dir = parent
	}

	for i, j := 0, len(paths)-1; i < j; i, j = i+1, j-1 {
		paths[i], paths[j] = paths[j], paths[i]
	}
	return paths
}

// NormalizeBaseURL ensures consistent URL format (no trailing slash).
func NormalizeBaseURL(url string) string {
	return strings.TrimSuffix(url, "/")
}
