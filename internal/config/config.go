package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Config holds all configuration for the teamail client
type Config struct {
	Credentials string `json:"credentials"`
	Token       string `json:"token"`

	// BaseLabel is the hierarchical root under which teamail keeps its own
	// labels, e.g. "tm" -> "tm/keep"
	BaseLabel string `json:"base_label"`
	KeepLabel string `json:"keep_label,omitempty"`

	// Local snapshot cache
	CacheEnabled bool   `json:"cache_enabled"`
	CachePath    string `json:"cache_path,omitempty"`
	SnapshotTTL  string `json:"snapshot_ttl,omitempty"`

	// Saved queries YAML file
	Queries string `json:"queries,omitempty"`

	MaxResults int64  `json:"max_results,omitempty"`
	LogFile    string `json:"log_file,omitempty"`
}

// DefaultBaseLabel is the label root used when none is configured
const DefaultBaseLabel = "tm"

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		BaseLabel:    DefaultBaseLabel,
		CacheEnabled: true,
		SnapshotTTL:  "168h",
		MaxResults:   50,
	}
}

// LoadConfig loads configuration from a JSON file, applying defaults for
// anything the file leaves unset
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("could not parse config file: %w", err)
	}
	if strings.TrimSpace(cfg.BaseLabel) == "" {
		cfg.BaseLabel = DefaultBaseLabel
	}
	return cfg, nil
}

// KeepLabelName returns the configured keep label, deriving it from the base
// label when not set explicitly
func (c *Config) KeepLabelName() string {
	if strings.TrimSpace(c.KeepLabel) != "" {
		return c.KeepLabel
	}
	base := c.BaseLabel
	if strings.TrimSpace(base) == "" {
		base = DefaultBaseLabel
	}
	return base + "/keep"
}

// GetSnapshotTTL parses the snapshot TTL, falling back to one week
func (c *Config) GetSnapshotTTL() time.Duration {
	if d, err := time.ParseDuration(c.SnapshotTTL); err == nil && d > 0 {
		return d
	}
	return 168 * time.Hour
}

// DefaultConfigPath returns ~/.config/teamail/config.json
func DefaultConfigPath() string {
	return filepath.Join(configDir(), "config.json")
}

// DefaultCredentialsPath returns ~/.config/teamail/credentials.json
func DefaultCredentialsPath() string {
	return filepath.Join(configDir(), "credentials.json")
}

// DefaultTokenPath returns ~/.config/teamail/token.json
func DefaultTokenPath() string {
	return filepath.Join(configDir(), "token.json")
}

// DefaultCacheDir returns the directory for per-account snapshot databases
func DefaultCacheDir() string {
	return filepath.Join(configDir(), "cache")
}

func configDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".teamail")
	}
	return filepath.Join(home, ".config", "teamail")
}

// ExpandPath expands a leading ~ to the user's home directory
func ExpandPath(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, strings.TrimPrefix(strings.TrimPrefix(path, "~"), "/"))
	}
	return path
}
