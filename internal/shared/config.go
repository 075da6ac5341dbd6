package shared

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
//
// It is constructed once at startup and passed into the sync engine and
// provider constructors; nothing reads environment state after that.
type Config struct {
	Credentials CredentialsConfig `toml:"credentials"`
	Database    DatabaseConfig    `toml:"database"`
	Sync        SyncConfig        `toml:"sync"`
	Enrich      EnrichConfig      `toml:"enrich"`
	Import      ImportConfig      `toml:"import"`
}

// CredentialsConfig contains provider-specific credentials.
type CredentialsConfig struct {
	LastFM       LastFMConfig       `toml:"lastfm"`
	Discogs      DiscogsConfig      `toml:"discogs"`
	ListenBrainz ListenBrainzConfig `toml:"listenbrainz"`
}

// LastFMConfig contains Last.fm API credentials.
type LastFMConfig struct {
	APIKey string `toml:"api_key"`
}

// DiscogsConfig contains Discogs personal access tokens.
//
// Discogs is optional; with no tokens configured the client is constructed
// but never issues network calls. Multiple tokens rotate across enrichment
// workers to spread the per-token rate limit.
type DiscogsConfig struct {
	Tokens []string `toml:"tokens"`
}

// ListenBrainzConfig contains ListenBrainz API settings.
type ListenBrainzConfig struct {
	BaseURL   string `toml:"base_url"`
	UserAgent string `toml:"user_agent"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// SyncConfig controls the scrobble sync loop.
type SyncConfig struct {
	Users           []string `toml:"users"`
	PageSize        int      `toml:"page_size"`
	MaxPageFailures int      `toml:"max_page_failures"`
	RequestTimeout  int      `toml:"request_timeout_seconds"`
}

// EnrichConfig controls the metadata enrichment scheduler.
type EnrichConfig struct {
	Workers     int `toml:"workers"`
	EntityLimit int `toml:"entity_limit"`
	CacheTTLHrs int `toml:"cache_ttl_hours"`
}

// ImportConfig contains defaults for local ListenBrainz export imports.
type ImportConfig struct {
	SourceDir   string `toml:"source_dir"`
	DefaultUser string `toml:"default_user"`
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := toml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return &config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks that the configuration can support a sync run.
//
// Called before any network activity; a failure here exits the process.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Credentials.LastFM.APIKey) == "" {
		return fmt.Errorf("%w: lastfm api_key", ErrMissingCredentials)
	}
	if len(c.Sync.Users) == 0 {
		return fmt.Errorf("%w: sync users list is empty", ErrInvalidConfig)
	}
	for _, u := range c.Sync.Users {
		if strings.TrimSpace(u) == "" {
			return fmt.Errorf("%w: blank sync user", ErrInvalidConfig)
		}
	}
	return nil
}
