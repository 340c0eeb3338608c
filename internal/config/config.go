package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// DefaultListURL is the public blacklist used when no sources are configured.
const DefaultListURL = "https://raw.githubusercontent.com/jiaweiding/telegram-ad-filter/refs/heads/master/blacklist.json"

// Fetch modes. See keywords.Mode for semantics.
const (
	FetchModeTolerant = "tolerant"
	FetchModeStrict   = "strict"
)

// Config holds application configuration.
type Config struct {
	// ListURLs is a newline-separated block of blacklist locations, one per line.
	// Lines that are not absolute http(s) URLs are skipped.
	ListURLs string `json:"list_urls,omitempty"`

	// FetchMode selects the failure policy for building the keyword set:
	// "tolerant" unions whatever sources succeed, "strict" aborts on the first failure.
	FetchMode string `json:"fetch_mode,omitempty"`

	// FetchTimeoutSeconds bounds each list request. 0 means no timeout.
	FetchTimeoutSeconds int `json:"fetch_timeout_seconds,omitempty"`

	// MaxListBytes caps the size of a single list body. 0 means unlimited.
	MaxListBytes int64 `json:"max_list_bytes,omitempty"`

	// LogLevel is a zerolog level name (debug, info, warn, error).
	LogLevel string `json:"log_level,omitempty"`

	// WatchConfig rebuilds the keyword set whenever config.json is rewritten
	// (serve and watch modes only).
	WatchConfig bool `json:"watch_config,omitempty"`

	// DBMaxOpenConns limits the maximum number of open database connections.
	// 0 means use sql.DB default (unlimited).
	DBMaxOpenConns int `json:"db_max_open_conns,omitempty"`

	// DBMaxIdleConns limits the maximum number of idle database connections.
	DBMaxIdleConns int `json:"db_max_idle_conns,omitempty"`

	// DisabledTools is a list of MCP tool names to exclude from registration.
	// Unknown tool names are logged as warnings.
	DisabledTools []string `json:"disabled_tools,omitempty"`

	// DisabledTypes is a list of tool type names to disable entirely.
	// Known types: "keywords", "filter", "history".
	DisabledTypes []string `json:"disabled_types,omitempty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		ListURLs:  DefaultListURL,
		FetchMode: FetchModeTolerant,
		LogLevel:  "info",
	}
}

// FetchTimeout returns the per-request timeout, or 0 for none.
func (c *Config) FetchTimeout() time.Duration {
	if c.FetchTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(c.FetchTimeoutSeconds) * time.Second
}

// Path returns the config file location inside baseDir.
func Path(baseDir string) string {
	return filepath.Join(baseDir, "config.json")
}

// Load loads configuration from baseDir/config.json.
// Returns default config if the file doesn't exist.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.adsift.
func Load(baseDir string) (*Config, error) {
	return loadFile(Path(baseDir))
}

// LoadWithRepo loads configuration from both global (~/.adsift) and repo (.adsift) directories.
// Repo config is found by walking upward from startDir to find the nearest .adsift/config.json.
// Repo config takes precedence for scalar values; arrays are merged (deduplicated).
// Either or both configs may be missing.
func LoadWithRepo(globalDir, startDir string) (*Config, error) {
	global, err := loadFileRaw(Path(globalDir))
	if err != nil {
		return nil, err
	}

	repo, err := loadFileRaw(FindRepoConfig(startDir))
	if err != nil {
		return nil, err
	}

	return Merge(Merge(DefaultConfig(), global), repo), nil
}

// FindRepoConfig walks upward from startDir to find the nearest .adsift/config.json.
// Returns the path if found, or empty string if not found.
func FindRepoConfig(startDir string) string {
	dir := startDir
	for {
		configPath := filepath.Join(dir, ".adsift", "config.json")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// loadFileRaw loads configuration from a specific file path.
// Returns zero-valued config if the file doesn't exist (not defaults).
func loadFileRaw(configPath string) (*Config, error) {
	if configPath == "" {
		return &Config{}, nil
	}
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

// loadFile loads configuration from a specific file path.
// Returns default config if the file doesn't exist.
func loadFile(configPath string) (*Config, error) {
	cfg, err := loadFileRaw(configPath)
	if err != nil {
		return nil, err
	}
	return Merge(DefaultConfig(), cfg), nil
}

// Merge combines base and overlay configs.
// Overlay values take precedence for scalars; arrays are merged and deduplicated.
func Merge(base, overlay *Config) *Config {
	result := &Config{}

	// Scalars: overlay wins if non-zero, else base
	result.ListURLs = firstNonEmpty(overlay.ListURLs, base.ListURLs)
	result.FetchMode = firstNonEmpty(overlay.FetchMode, base.FetchMode)
	result.LogLevel = firstNonEmpty(overlay.LogLevel, base.LogLevel)

	result.FetchTimeoutSeconds = overlay.FetchTimeoutSeconds
	if result.FetchTimeoutSeconds == 0 {
		result.FetchTimeoutSeconds = base.FetchTimeoutSeconds
	}

	result.MaxListBytes = overlay.MaxListBytes
	if result.MaxListBytes == 0 {
		result.MaxListBytes = base.MaxListBytes
	}

	result.DBMaxOpenConns = overlay.DBMaxOpenConns
	if result.DBMaxOpenConns == 0 {
		result.DBMaxOpenConns = base.DBMaxOpenConns
	}

	result.DBMaxIdleConns = overlay.DBMaxIdleConns
	if result.DBMaxIdleConns == 0 {
		result.DBMaxIdleConns = base.DBMaxIdleConns
	}

	// Booleans: overlay wins if true, else base
	result.WatchConfig = base.WatchConfig || overlay.WatchConfig

	// Arrays: merge and deduplicate
	result.DisabledTools = mergeStringSlice(base.DisabledTools, overlay.DisabledTools)
	result.DisabledTypes = mergeStringSlice(base.DisabledTypes, overlay.DisabledTypes)

	return result
}

func firstNonEmpty(a, b string) string {
	if strings.TrimSpace(a) != "" {
		return a
	}
	return b
}

// mergeStringSlice combines two slices, trims whitespace, and removes duplicates.
func mergeStringSlice(a, b []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(a)+len(b))

	for _, s := range append(append([]string{}, a...), b...) {
		s = strings.TrimSpace(s)
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
