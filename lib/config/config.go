// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// EnvConfig names the environment variable [Load] reads.
const EnvConfig = "CASC_CONFIG"

// EnvKeysURL overrides the remote key list location when the config
// file does not set keys.remote_url.
const EnvKeysURL = "TACT_KEYS_URL"

// DefaultKeysURL is the community-maintained key list.
const DefaultKeysURL = "https://raw.githubusercontent.com/wowdev/TACTKeys/master/WoW.txt"

// Config is the master configuration for the CASC client.
type Config struct {
	// Storage locates the installation being read.
	Storage StorageConfig `yaml:"storage"`

	// Keys configures decryption key sources.
	Keys KeysConfig `yaml:"keys"`

	// CDN configures the network fallback for assets missing locally.
	CDN CDNConfig `yaml:"cdn"`

	// Cache configures the on-disk decoded asset cache.
	Cache CacheConfig `yaml:"cache"`

	// Debug holds diagnostics that are off by default.
	Debug DebugConfig `yaml:"debug"`

	// Log configures the process logger.
	Log LogConfig `yaml:"log"`
}

// StorageConfig locates the installation.
type StorageConfig struct {
	// Root is the installation directory containing .build.info (or
	// whose Data subdirectory does).
	Root string `yaml:"root"`

	// Product selects a .build.info row. Empty selects the first row
	// with a build key.
	Product string `yaml:"product"`

	// Locale restricts root manifest variants to one locale, by name
	// (enUS, deDE, ...). Empty accepts every locale.
	Locale string `yaml:"locale"`

	// Listfile is an optional id;name listing enabling name lookup.
	Listfile string `yaml:"listfile"`
}

// KeysConfig configures decryption key sources.
type KeysConfig struct {
	// Files are key files loaded at startup and rescanned when a key
	// is missing.
	Files []string `yaml:"files"`

	// RemoteURL is the key list fetched at most once per process when
	// a key is missing. Set to "off" to disable remote fetching.
	RemoteURL string `yaml:"remote_url"`

	// CacheDir receives the downloaded key list. Empty uses the
	// system temporary directory.
	CacheDir string `yaml:"cache_dir"`

	// Strict turns undecryptable chunks into errors instead of
	// zero-filled output.
	Strict bool `yaml:"strict"`
}

// CDNConfig configures network fallback.
type CDNConfig struct {
	// Enabled turns on CDN lookups for assets absent from local archives.
	Enabled bool `yaml:"enabled"`

	// Timeout bounds each request, as a Go duration string.
	Timeout string `yaml:"timeout"`

	// HostsOverride replaces the hosts listed in .build.info.
	HostsOverride []string `yaml:"hosts_override"`

	// FetchIndices downloads archive .index files that are not
	// present under Data/indices.
	FetchIndices bool `yaml:"fetch_indices"`
}

// CacheConfig configures the decoded asset cache.
type CacheConfig struct {
	// Dir enables the cache when non-empty.
	Dir string `yaml:"dir"`

	// Compression is "zstd", "lz4", "none", or "auto".
	Compression string `yaml:"compression"`
}

// DebugConfig holds diagnostic switches.
type DebugConfig struct {
	// DumpDir receives the raw bytes of BLTE chunks that fail to decode.
	DumpDir string `yaml:"dump_dir"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	// Level is debug, info, warn, or error.
	Level string `yaml:"level"`

	// Format is json, text, or auto (text on a terminal).
	Format string `yaml:"format"`
}

// Default returns the default configuration. LoadFile starts from
// these values and overlays the file.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	return &Config{
		Keys: KeysConfig{
			CacheDir: os.TempDir(),
		},
		CDN: CDNConfig{
			Enabled:      true,
			Timeout:      "30s",
			FetchIndices: true,
		},
		Cache: CacheConfig{
			Compression: "auto",
		},
		Storage: StorageConfig{
			Root: filepath.Join(homeDir, "Games", "World of Warcraft"),
		},
		Log: LogConfig{
			Level:  "info",
			Format: "auto",
		},
	}
}

// Load loads configuration from the CASC_CONFIG environment variable.
// There is no fallback: if the variable is unset this fails.
func Load() (*Config, error) {
	configPath := os.Getenv(EnvConfig)
	if configPath == "" {
		return nil, fmt.Errorf("%s environment variable not set; "+
			"set it to the path of your casc.yaml config file, or use --config flag", EnvConfig)
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path. Files named
// *.json or *.jsonc may carry comments and trailing commas.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		data = jsonc.ToJSON(data)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	cfg.expandVariables()
	return cfg, nil
}

// KeysURL returns the remote key list location: the configured value,
// then TACT_KEYS_URL, then DefaultKeysURL. "off" yields "".
func (c *Config) KeysURL() string {
	url := c.Keys.RemoteURL
	if url == "" {
		url = os.Getenv(EnvKeysURL)
	}
	if url == "" {
		url = DefaultKeysURL
	}
	if url == "off" {
		return ""
	}
	return url
}

// CDNTimeout parses CDN.Timeout, returning 30s when it is empty.
func (c *Config) CDNTimeout() (time.Duration, error) {
	if c.CDN.Timeout == "" {
		return 30 * time.Second, nil
	}
	timeout, err := time.ParseDuration(c.CDN.Timeout)
	if err != nil {
		return 0, fmt.Errorf("cdn.timeout: %w", err)
	}
	return timeout, nil
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in paths.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME": os.Getenv("HOME"),
	}

	c.Storage.Root = expandVars(c.Storage.Root, vars)
	vars["CASC_ROOT"] = c.Storage.Root

	c.Storage.Listfile = expandVars(c.Storage.Listfile, vars)
	for i, file := range c.Keys.Files {
		c.Keys.Files[i] = expandVars(file, vars)
	}
	c.Keys.CacheDir = expandVars(c.Keys.CacheDir, vars)
	c.Cache.Dir = expandVars(c.Cache.Dir, vars)
	c.Debug.DumpDir = expandVars(c.Debug.DumpDir, vars)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVars expands ${VAR} and ${VAR:-default} patterns, consulting
// vars before the process environment.
func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Storage.Root == "" {
		errs = append(errs, errors.New("storage.root is required"))
	}

	if _, err := c.CDNTimeout(); err != nil {
		errs = append(errs, err)
	}

	compressions := []string{"", "auto", "none", "zstd", "lz4"}
	if !slices.Contains(compressions, c.Cache.Compression) {
		errs = append(errs, fmt.Errorf("cache.compression must be one of: %v", compressions[1:]))
	}

	levels := []string{"", "debug", "info", "warn", "error"}
	if !slices.Contains(levels, c.Log.Level) {
		errs = append(errs, fmt.Errorf("log.level must be one of: %v", levels[1:]))
	}

	formats := []string{"", "json", "text", "auto"}
	if !slices.Contains(formats, c.Log.Format) {
		errs = append(errs, fmt.Errorf("log.format must be one of: %v", formats[1:]))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// EnsurePaths creates the cache and dump directories if configured.
func (c *Config) EnsurePaths() error {
	for _, path := range []string{c.Cache.Dir, c.Debug.DumpDir} {
		if path == "" {
			continue
		}
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", path, err)
		}
	}
	return nil
}
