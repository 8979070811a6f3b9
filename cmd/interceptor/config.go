package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cygnal-app/interceptor/cache"
	"github.com/cygnal-app/interceptor/settings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	// Address of the forward proxy listener.
	Listen string `yaml:"listen"`
	// Address of the admin listener (messages, metrics, lifecycle).
	Admin string `yaml:"admin"`

	Origin          string   `yaml:"origin"`
	App             string   `yaml:"app"`
	Version         string   `yaml:"version"`
	APIPrefix       string   `yaml:"apiPrefix"`
	Manifest        []string `yaml:"manifest"`
	ManifestExclude []string `yaml:"manifestExclude"`
	DisableAssets   bool     `yaml:"disableAssetCache"`

	// Either a settings file, read live, or static tile settings.
	SettingsFile        string                `yaml:"settingsFile"`
	TileServers         []settings.TileServer `yaml:"tileServers"`
	TileCachingDuration *int64                `yaml:"tileCachingDuration"`

	TileRateLimit float64 `yaml:"tileRateLimit"`
	TileBurst     int     `yaml:"tileBurst"`

	Store StoreConfig `yaml:"store"`
}

type StoreConfig struct {
	// memory, sqlite, leveldb or s3
	Backend string         `yaml:"backend"`
	Path    string         `yaml:"path"`
	S3      cache.S3Config `yaml:"s3"`
}

func getConfig(filename string) (Config, error) {
	var config Config
	if filename != "" {
		configBytes, err := os.ReadFile(filename)
		if err != nil {
			return config, err
		}
		if err := yaml.Unmarshal(configBytes, &config); err != nil {
			return config, err
		}
		// relative paths are relative to the config file
		dir := filepath.Dir(filename)
		if config.SettingsFile != "" && !filepath.IsAbs(config.SettingsFile) {
			config.SettingsFile = filepath.Join(dir, config.SettingsFile)
		}
	}
	return config, nil
}

// defaults fills in unset values.
func (c *Config) defaults() {
	if c.Listen == "" {
		c.Listen = ":8080"
	}
	if c.Admin == "" {
		c.Admin = "127.0.0.1:8081"
	}
	if c.App == "" {
		c.App = "app"
	}
	if c.Version == "" {
		c.Version = "dev"
	}
	if c.Store.Backend == "" {
		c.Store.Backend = "sqlite"
	}
	if c.Store.Path == "" {
		switch c.Store.Backend {
		case "sqlite":
			c.Store.Path = "cache.db"
		case "leveldb":
			c.Store.Path = "cache.leveldb"
		}
	}
}

func (c Config) validate() error {
	if c.Origin == "" {
		return fmt.Errorf("origin is required")
	}
	if strings.ContainsAny(c.App, "/ ") {
		return fmt.Errorf("app %q must not contain slashes or spaces", c.App)
	}
	switch c.Store.Backend {
	case "memory", "sqlite", "leveldb":
	case "s3":
		if c.Store.S3.Endpoint == "" || c.Store.S3.Bucket == "" {
			return fmt.Errorf("store.s3.endpoint and store.s3.bucket are required")
		}
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	if c.TileRateLimit < 0 {
		return fmt.Errorf("tileRateLimit must not be negative")
	}
	return nil
}

func openStore(c StoreConfig) (cache.Store, error) {
	switch c.Backend {
	case "memory":
		return cache.NewMemoryStore(), nil
	case "sqlite":
		filename := c.Path
		if filename == "memory" {
			filename = ""
		}
		return cache.NewSQLiteStore(filename)
	case "leveldb":
		return cache.NewLevelDBStore(c.Path)
	case "s3":
		return cache.NewS3Store(c.S3)
	}
	return nil, fmt.Errorf("unknown store backend %q", c.Backend)
}

func (c Config) settingsProvider(f func(path string) settings.Provider) (settings.Provider, error) {
	if c.SettingsFile != "" {
		return f(c.SettingsFile), nil
	}
	s, err := settings.NewStatic(c.TileServers...)
	if err != nil {
		return nil, err
	}
	if c.TileCachingDuration != nil {
		s.SetTileCachingDuration(*c.TileCachingDuration)
	}
	return s, nil
}
