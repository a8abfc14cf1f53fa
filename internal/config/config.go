// Package config holds the process-level configuration of the mirror tool.
// Repository-level settings (filters, policies) live in the repository state
// file instead.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	yaml "gopkg.in/yaml.v2"

	"github.com/jgivc/paqmirror/internal/entity"
)

const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"

	DefaultReferenceURL  = "https://ftp.hp.com/pub/softpaq/cmit"
	FallbackReferenceURL = "https://ftp.ext.hp.com/pub/softpaq/cmit"

	defaultCacheDir = ".cache"
	defaultBitness  = "64"

	defaultHostVersionWin11 = "24H2"
	defaultHostVersionWin10 = "22H2"

	envPrefix = "PAQMIRROR_"
)

type CatalogConfig struct {
	ReferenceURL string `yaml:"reference_url"`
	FallbackURL  string `yaml:"fallback_url"`
	CacheDir     string `yaml:"cache_dir"`
	Offline      bool   `yaml:"offline"`
}

type DownloadConfig struct {
	RetryDelaySeconds int `yaml:"retry_delay_seconds"`
}

// RetryDelay is the pause between download attempts on a contended target,
// zero when unset so the engine default applies.
func (d DownloadConfig) RetryDelay() time.Duration {
	return time.Duration(d.RetryDelaySeconds) * time.Second
}

type HostConfig struct {
	// OS and Version describe the machine the mirror runs on, substituted
	// for the "*" operating system wildcard.
	OS      string `yaml:"os"`
	Version string `yaml:"version"`
	Bitness string `yaml:"bitness"`
}

type Config struct {
	LogLevel string         `yaml:"log_level"`
	Catalog  CatalogConfig  `yaml:"catalog"`
	Download DownloadConfig `yaml:"download"`
	Host     HostConfig     `yaml:"host"`
}

func (c *Config) applyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = LogLevelInfo
	}
	if c.Catalog.ReferenceURL == "" {
		c.Catalog.ReferenceURL = DefaultReferenceURL
	}
	if c.Catalog.FallbackURL == "" {
		c.Catalog.FallbackURL = FallbackReferenceURL
	}
	if c.Catalog.CacheDir == "" {
		c.Catalog.CacheDir = defaultCacheDir
	}
	if c.Host.OS == "" {
		c.Host.OS = entity.OSNameWin11
	}
	c.Host.OS = strings.ToLower(c.Host.OS)
	if c.Host.Version == "" {
		switch c.Host.OS {
		case entity.OSNameWin10:
			c.Host.Version = defaultHostVersionWin10
		default:
			c.Host.Version = defaultHostVersionWin11
		}
	}
	c.Host.Version = strings.ToUpper(c.Host.Version)
	if c.Host.Bitness == "" {
		c.Host.Bitness = defaultBitness
	}
}

// RunningOS is the host operating system as an OSSpec.
func (c *Config) RunningOS() entity.OSSpec {
	return entity.OSSpec{Name: c.Host.OS, Version: c.Host.Version}
}

// Load reads the yaml config file, overlaying a .env file when one sits next
// to the process. A missing config file yields the defaults.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	var cfg Config

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("cannot parse config %s: %w", path, err)
		}
	case os.IsNotExist(err):
	default:
		return nil, fmt.Errorf("cannot read config %s: %w", path, err)
	}

	cfg.overlayEnv()
	cfg.applyDefaults()

	return &cfg, nil
}

func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic(err)
	}

	return cfg
}

func (c *Config) overlayEnv() {
	if v := os.Getenv(envPrefix + "LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv(envPrefix + "REFERENCE_URL"); v != "" {
		c.Catalog.ReferenceURL = v
	}
	if v := os.Getenv(envPrefix + "CACHE_DIR"); v != "" {
		c.Catalog.CacheDir = v
	}
}
