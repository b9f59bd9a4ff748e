// Package config loads stackfind settings from YAML and the environment.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
	"github.com/ilyakaznacheev/cleanenv"
	"gopkg.in/yaml.v3"
)

// Failure policies for per-question follow-up requests
const (
	PolicyFailFast   = "fail-fast"
	PolicyBestEffort = "best-effort"
)

// Config is the root configuration.
// Sources, by priority:
//  1. explicit path passed to Load;
//  2. STACKFIND_CONFIG;
//  3. $XDG_CONFIG_HOME/stackfind/config.yaml if it exists;
//  4. environment variables and defaults only.
type Config struct {
	LogLevel string       `yaml:"log_level" env:"STACKFIND_LOG_LEVEL" env-default:"info"`
	Cache    CacheConfig  `yaml:"cache"`
	Search   SearchConfig `yaml:"search"`
	HTTP     HTTPConfig   `yaml:"http"`
}

// CacheConfig locates the response cache and sets how long entries live
type CacheConfig struct {
	Path string        `yaml:"path" env:"STACKFIND_CACHE_PATH"`
	TTL  time.Duration `yaml:"ttl"  env:"STACKFIND_CACHE_TTL" env-default:"24h"`
}

// SearchConfig describes the upstream service and how the finder talks to it
type SearchConfig struct {
	BaseURL    string `yaml:"base_url"    env:"STACKFIND_BASE_URL"    env-default:"https://api.stackexchange.com/2.3"`
	Site       string `yaml:"site"        env:"STACKFIND_SITE"        env-default:"stackoverflow"`
	Tag        string `yaml:"tag"         env:"STACKFIND_TAG"         env-default:"python"`
	Filter     string `yaml:"filter"      env:"STACKFIND_FILTER"      env-default:"withbody"`
	MaxResults int    `yaml:"max_results" env:"STACKFIND_MAX_RESULTS" env-default:"5"`
	// Concurrency caps in-flight answer requests
	Concurrency  int           `yaml:"concurrency"   env:"STACKFIND_CONCURRENCY"   env-default:"4"`
	Policy       string        `yaml:"policy"        env:"STACKFIND_POLICY"        env-default:"fail-fast"`
	CallTimeout  time.Duration `yaml:"call_timeout"  env:"STACKFIND_CALL_TIMEOUT"  env-default:"10s"`
	Timeout      time.Duration `yaml:"timeout"       env:"STACKFIND_TIMEOUT"       env-default:"30s"`
	Retries      int           `yaml:"retries"       env:"STACKFIND_RETRIES"       env-default:"2"`
	RetryBackoff time.Duration `yaml:"retry_backoff" env:"STACKFIND_RETRY_BACKOFF" env-default:"500ms"`
}

// HTTPConfig configures the REST server
type HTTPConfig struct {
	Addr           string        `yaml:"addr"            env:"STACKFIND_HTTP_ADDR"    env-default:":8080"`
	RequestTimeout time.Duration `yaml:"request_timeout" env:"STACKFIND_HTTP_TIMEOUT" env-default:"60s"`
}

// DefaultConfigPath is where Load looks when no path is given
func DefaultConfigPath() string {
	return filepath.Join(xdg.ConfigHome, "stackfind", "config.yaml")
}

// DefaultCachePath is used when cache.path is unset
func DefaultCachePath() string {
	return filepath.Join(xdg.CacheHome, "stackfind", "cache.db")
}

// Load reads the configuration following the priority documented on Config
func Load(path string) (*Config, error) {
	var cfg Config

	if path == "" {
		path = os.Getenv("STACKFIND_CONFIG")
	}

	switch {
	case path != "":
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("config file does not exist: %s", path)
		}
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	case fileExists(DefaultConfigPath()):
		if err := cleanenv.ReadConfig(DefaultConfigPath(), &cfg); err != nil {
			return nil, fmt.Errorf("read config %s: %w", DefaultConfigPath(), err)
		}
	default:
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("read env: %w", err)
		}
	}

	if cfg.Cache.Path == "" {
		cfg.Cache.Path = DefaultCachePath()
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// YAML renders the effective configuration
func (c *Config) YAML() ([]byte, error) {
	out, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return out, nil
}

func fileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}

func (c *Config) validate() error {
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("cache.ttl must be > 0")
	}
	u, err := url.Parse(c.Search.BaseURL)
	if err != nil {
		return fmt.Errorf("search.base_url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("search.base_url scheme must be http or https, got %q", u.Scheme)
	}
	if c.Search.Site == "" {
		return fmt.Errorf("search.site is required")
	}
	if c.Search.MaxResults <= 0 || c.Search.MaxResults > 100 {
		return fmt.Errorf("search.max_results must be between 1 and 100")
	}
	if c.Search.Concurrency <= 0 {
		return fmt.Errorf("search.concurrency must be > 0")
	}
	if c.Search.Policy != PolicyFailFast && c.Search.Policy != PolicyBestEffort {
		return fmt.Errorf("search.policy must be %q or %q, got %q", PolicyFailFast, PolicyBestEffort, c.Search.Policy)
	}
	if c.Search.Retries < 0 {
		return fmt.Errorf("search.retries must be >= 0")
	}
	return nil
}
