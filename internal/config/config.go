package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
)

// Config holds application configuration.
type Config struct {
	// DefaultOwner is used when a surface does not supply an owner explicitly.
	DefaultOwner string `json:"default_owner,omitempty"`

	// DailyLimitMinutes caps the total logged time per (owner, date).
	DailyLimitMinutes int `json:"daily_limit_minutes"`

	// CommentMaxChars caps the comment length in runes.
	CommentMaxChars int `json:"comment_max_chars"`

	// SearchPageSize is the fixed page size for remote work item lookups.
	SearchPageSize int `json:"search_page_size"`

	// SearchTTLSeconds is the cache lifetime for non-empty search pages.
	SearchTTLSeconds int `json:"search_ttl_seconds"`

	// SearchEmptyTTLSeconds is the shorter cache lifetime for empty pages.
	SearchEmptyTTLSeconds int `json:"search_empty_ttl_seconds"`

	// DebounceMillis is the quiet window before a search query fires.
	DebounceMillis int `json:"debounce_millis"`

	// MaxSyncWorkers bounds concurrent per-work-item sync workers.
	MaxSyncWorkers int `json:"max_sync_workers"`

	// MaxSyncAttempts bounds retries before a transient failure turns terminal.
	MaxSyncAttempts int `json:"max_sync_attempts"`

	// BackoffBaseMillis and BackoffCapMillis shape the retry schedule.
	BackoffBaseMillis int `json:"backoff_base_millis"`
	BackoffCapMillis  int `json:"backoff_cap_millis"`

	// RemoteTimeoutSeconds bounds each remote call; exceeding it is transient.
	RemoteTimeoutSeconds int `json:"remote_timeout_seconds"`

	// Remote tracker connection. Token may also come from TALLY_REMOTE_TOKEN.
	RemoteBaseURL string `json:"remote_base_url,omitempty"`
	RemoteProject string `json:"remote_project,omitempty"`

	// DBMaxOpenConns limits the maximum number of open database connections.
	// If set to 1, all database access is serialized. 0 means sql.DB default.
	DBMaxOpenConns int `json:"db_max_open_conns,omitempty"`

	// DBMaxIdleConns limits idle connections. 0 means sql.DB default.
	DBMaxIdleConns int `json:"db_max_idle_conns,omitempty"`

	// DisabledTools is a list of MCP tool names to exclude from registration.
	DisabledTools []string `json:"disabled_tools,omitempty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		DefaultOwner:          "default",
		DailyLimitMinutes:     1440,
		CommentMaxChars:       500,
		SearchPageSize:        10,
		SearchTTLSeconds:      300,
		SearchEmptyTTLSeconds: 60,
		DebounceMillis:        300,
		MaxSyncWorkers:        4,
		MaxSyncAttempts:       5,
		BackoffBaseMillis:     1000,
		BackoffCapMillis:      60000,
		RemoteTimeoutSeconds:  10,
	}
}

// Load loads configuration from baseDir/config.json.
// Returns default config if the file doesn't exist.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.tally.
func Load(baseDir string) (*Config, error) {
	overlay, err := loadFileRaw(filepath.Join(baseDir, "config.json"))
	if err != nil {
		return nil, err
	}
	return Merge(DefaultConfig(), overlay), nil
}

// loadFileRaw loads configuration from a specific file path.
// Returns zero-valued config if the file doesn't exist (not defaults).
func loadFileRaw(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, err
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Merge combines base and overlay configs.
// Overlay values take precedence for scalars; arrays are concatenated deduplicated.
func Merge(base, overlay *Config) *Config {
	result := &Config{}

	result.DefaultOwner = pickString(base.DefaultOwner, overlay.DefaultOwner)
	result.RemoteBaseURL = pickString(base.RemoteBaseURL, overlay.RemoteBaseURL)
	result.RemoteProject = pickString(base.RemoteProject, overlay.RemoteProject)

	result.DailyLimitMinutes = pickInt(base.DailyLimitMinutes, overlay.DailyLimitMinutes)
	result.CommentMaxChars = pickInt(base.CommentMaxChars, overlay.CommentMaxChars)
	result.SearchPageSize = pickInt(base.SearchPageSize, overlay.SearchPageSize)
	result.SearchTTLSeconds = pickInt(base.SearchTTLSeconds, overlay.SearchTTLSeconds)
	result.SearchEmptyTTLSeconds = pickInt(base.SearchEmptyTTLSeconds, overlay.SearchEmptyTTLSeconds)
	result.DebounceMillis = pickInt(base.DebounceMillis, overlay.DebounceMillis)
	result.MaxSyncWorkers = pickInt(base.MaxSyncWorkers, overlay.MaxSyncWorkers)
	result.MaxSyncAttempts = pickInt(base.MaxSyncAttempts, overlay.MaxSyncAttempts)
	result.BackoffBaseMillis = pickInt(base.BackoffBaseMillis, overlay.BackoffBaseMillis)
	result.BackoffCapMillis = pickInt(base.BackoffCapMillis, overlay.BackoffCapMillis)
	result.RemoteTimeoutSeconds = pickInt(base.RemoteTimeoutSeconds, overlay.RemoteTimeoutSeconds)
	result.DBMaxOpenConns = pickInt(base.DBMaxOpenConns, overlay.DBMaxOpenConns)
	result.DBMaxIdleConns = pickInt(base.DBMaxIdleConns, overlay.DBMaxIdleConns)

	result.DisabledTools = mergeStringSlice(base.DisabledTools, overlay.DisabledTools)

	return result
}

// RemoteToken returns the remote tracker token from the environment.
func RemoteToken() string {
	return os.Getenv("TALLY_REMOTE_TOKEN")
}

func pickInt(base, overlay int) int {
	if overlay != 0 {
		return overlay
	}
	return base
}

func pickString(base, overlay string) string {
	if overlay != "" {
		return overlay
	}
	return base
}

// mergeStringSlice combines two slices and removes duplicates.
func mergeStringSlice(a, b []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(a)+len(b))
	for _, s := range append(append([]string{}, a...), b...) {
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}
	if len(result) == 0 {
		return nil
	}
	return result
}
