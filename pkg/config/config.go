// Package config loads sxsearch settings from a YAML file and the
// environment variables exported by the picker host.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"gopkg.in/yaml.v3"
)

// AppName names the config and cache directories.
const AppName = "sxsearch"

// Config holds all sxsearch configuration.
type Config struct {
	SiteID          string        `yaml:"site_id"`
	SiteName        string        `yaml:"site_name"`
	ResultCount     int           `yaml:"result_count"`
	CacheMaxAge     time.Duration `yaml:"cache_max_age"`
	SitesMaxAge     time.Duration `yaml:"sites_max_age"`
	IgnoreMetaSites bool          `yaml:"ignore_meta_sites"`
	CacheDir        string        `yaml:"cache_dir"`
	Output          string        `yaml:"output"`
	API             APIConfig     `yaml:"api"`
	Cache           CacheConfig   `yaml:"cache"`
	Jobs            JobsConfig    `yaml:"jobs"`
	Icons           IconsConfig   `yaml:"icons"`
	Log             LogConfig     `yaml:"log"`
}

// APIConfig points at the Stack Exchange API.
type APIConfig struct {
	URL      string        `yaml:"url"`
	Key      string        `yaml:"key"`
	ClientID string        `yaml:"client_id"`
	Timeout  time.Duration `yaml:"timeout"`
	RetryMax int           `yaml:"retry_max"`
}

// CacheConfig selects the cache backend.
// Backend is "sqlite" (default) or "memory".
type CacheConfig struct {
	Backend       string `yaml:"backend"`
	MemoryEntries int    `yaml:"memory_entries"`
}

// JobsConfig controls background refreshes.
// Mode is "process" (default) or "inline".
type JobsConfig struct {
	Mode    string        `yaml:"mode"`
	Timeout time.Duration `yaml:"timeout"`
}

// IconsConfig controls site icon caching.
type IconsConfig struct {
	Overlay     string `yaml:"overlay"`
	Concurrency int    `yaml:"concurrency"`
}

// LogConfig controls the log file.
type LogConfig struct {
	Level     string `yaml:"level"`
	Stderr    bool   `yaml:"stderr"`
	MaxSizeMB int    `yaml:"max_size_mb"`
	MaxFiles  int    `yaml:"max_files"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		SiteID:      "stackoverflow",
		SiteName:    "Stack Overflow",
		ResultCount: 50,
		CacheMaxAge: 20 * time.Second,
		SitesMaxAge: 24 * time.Hour,
		CacheDir:    filepath.Join(xdg.CacheHome, AppName),
		Output:      "auto",
		API: APIConfig{
			URL:      "https://api.stackexchange.com/2.3",
			Timeout:  15 * time.Second,
			RetryMax: 2,
		},
		Cache: CacheConfig{
			Backend:       "sqlite",
			MemoryEntries: 1000,
		},
		Jobs: JobsConfig{
			Mode:    "process",
			Timeout: 5 * time.Minute,
		},
		Icons: IconsConfig{
			Concurrency: 8,
		},
		Log: LogConfig{
			Level:     "info",
			MaxSizeMB: 5,
			MaxFiles:  2,
		},
	}
}

// DefaultPath returns the config file location under the XDG config home.
func DefaultPath() string {
	return filepath.Join(xdg.ConfigHome, AppName, "config.yaml")
}

// Load reads a YAML config file and expands environment variables.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return cfg, nil
}

// LoadOptional is Load, except that a missing file yields Default().
func LoadOptional(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// SetSite records siteID and siteName as the default site in the file at
// path. Only those two keys change: the rest of the file, including
// ${ENV} references and comments, is written back as it was on disk.
func SetSite(path, siteID, siteName string) error {
	var doc yaml.Node
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return fmt.Errorf("read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("parse config: %w", err)
		}
	}

	if doc.Kind == 0 {
		doc.Kind = yaml.DocumentNode
	}
	if len(doc.Content) == 0 {
		doc.Content = []*yaml.Node{{Kind: yaml.MappingNode, Tag: "!!map"}}
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return fmt.Errorf("parse config: %s: top level is not a mapping", path)
	}
	setScalar(root, "site_id", siteID)
	setScalar(root, "site_name", siteName)

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return writeFile(path, buf.Bytes())
}

func setScalar(m *yaml.Node, key, value string) {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			v := m.Content[i+1]
			v.Kind, v.Tag, v.Style, v.Value = yaml.ScalarNode, "!!str", 0, value
			v.Content, v.Alias = nil, nil
			return
		}
	}
	m.Content = append(m.Content,
		&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key},
		&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: value},
	)
}

// writeFile replaces path atomically.
func writeFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".config-*")
	if err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("save config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	return nil
}

// ApplyEnv overrides settings from the host's workflow variables.
// cache_max_age is in seconds.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("site_id"); ok && v != "" {
		c.SiteID = v
	}
	if v, ok := lookup("site_name"); ok && v != "" {
		c.SiteName = v
	}
	if v, ok := lookup("result_count"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("result_count: %w", err)
		}
		c.ResultCount = n
	}
	if v, ok := lookup("cache_max_age"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("cache_max_age: %w", err)
		}
		c.CacheMaxAge = time.Duration(n) * time.Second
	}
	if v, ok := lookup("ignore_meta_sites"); ok {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes":
			c.IgnoreMetaSites = true
		default:
			c.IgnoreMetaSites = false
		}
	}
	return nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch {
	case c.SiteID == "":
		return errors.New("site_id is required")
	case c.ResultCount <= 0:
		return fmt.Errorf("result_count must be positive, got %d", c.ResultCount)
	case c.CacheMaxAge < 0:
		return fmt.Errorf("cache_max_age must not be negative, got %v", c.CacheMaxAge)
	case c.SitesMaxAge < 0:
		return fmt.Errorf("sites_max_age must not be negative, got %v", c.SitesMaxAge)
	case c.CacheDir == "":
		return errors.New("cache_dir is required")
	}
	if c.Cache.Backend != "sqlite" && c.Cache.Backend != "memory" {
		return fmt.Errorf("cache.backend must be sqlite or memory, got %q", c.Cache.Backend)
	}
	if c.Jobs.Mode != "process" && c.Jobs.Mode != "inline" {
		return fmt.Errorf("jobs.mode must be process or inline, got %q", c.Jobs.Mode)
	}
	if c.Cache.Backend == "memory" && c.Jobs.Mode == "process" {
		return errors.New("cache.backend memory requires jobs.mode inline")
	}
	switch c.Output {
	case "auto", "json", "text":
	default:
		return fmt.Errorf("output must be auto, json or text, got %q", c.Output)
	}
	return nil
}

// CacheDBPath is the SQLite cache database.
func (c *Config) CacheDBPath() string { return filepath.Join(c.CacheDir, "cache.db") }

// QuotaDBPath is the API quota ledger.
func (c *Config) QuotaDBPath() string { return filepath.Join(c.CacheDir, "quota.db") }

// JobsDir holds background job markers.
func (c *Config) JobsDir() string { return filepath.Join(c.CacheDir, "jobs") }

// LogPath is the log file.
func (c *Config) LogPath() string { return filepath.Join(c.CacheDir, AppName+".log") }
