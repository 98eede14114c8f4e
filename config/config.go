package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/adamwoolhether/netlite/client"
	"github.com/adamwoolhether/netlite/client/download"
)

// Config defines configuration for a netlite client.
type Config struct {
	UserAgent         string         `yaml:"user_agent"`
	ConnectTimeout    time.Duration  `yaml:"connect_timeout" validate:"gte=0"`
	ReadTimeout       time.Duration  `yaml:"read_timeout" validate:"gte=0"`
	FollowRedirects   bool           `yaml:"follow_redirects"`
	DedupPolicy       string         `yaml:"dedup_policy" validate:"omitempty,oneof=overlay wait reject"`
	ResponseCacheSize int            `yaml:"response_cache_size" validate:"gte=0"`
	Cache             CacheConfig    `yaml:"cache"`
	Throttle          ThrottleConfig `yaml:"throttle"`
}

// CacheConfig defines the staging cache.
type CacheConfig struct {
	Dir          string `yaml:"dir" validate:"required_if=Staging true"`
	Staging      bool   `yaml:"staging"`
	UseGetCache  bool   `yaml:"use_get_cache"`
	DeleteOnExit bool   `yaml:"delete_on_exit"`
}

// ThrottleConfig defines per-host rate limiting. A zero RPS disables it.
type ThrottleConfig struct {
	RPS   int `yaml:"rps" validate:"gte=0"`
	Burst int `yaml:"burst" validate:"required_with=RPS,gte=0"`
}

// Default returns a Config with the client's defaults.
func Default() Config {
	return Config{
		UserAgent:         client.DefaultUserAgent,
		ConnectTimeout:    client.DefaultConnectTimeout,
		ReadTimeout:       client.DefaultReadTimeout,
		FollowRedirects:   true,
		ResponseCacheSize: client.DefaultResponseCacheSize,
		Cache: CacheConfig{
			UseGetCache:  true,
			DeleteOnExit: true,
		},
	}
}

// yamlConfig is used for YAML unmarshaling with string durations and
// optional booleans.
type yamlConfig struct {
	UserAgent         string             `yaml:"user_agent"`
	ConnectTimeout    string             `yaml:"connect_timeout"`
	ReadTimeout       string             `yaml:"read_timeout"`
	FollowRedirects   *bool              `yaml:"follow_redirects"`
	DedupPolicy       string             `yaml:"dedup_policy"`
	ResponseCacheSize *int               `yaml:"response_cache_size"`
	Cache             yamlCacheConfig    `yaml:"cache"`
	Throttle          yamlThrottleConfig `yaml:"throttle"`
}

type yamlCacheConfig struct {
	Dir          string `yaml:"dir"`
	Staging      *bool  `yaml:"staging"`
	UseGetCache  *bool  `yaml:"use_get_cache"`
	DeleteOnExit *bool  `yaml:"delete_on_exit"`
}

type yamlThrottleConfig struct {
	RPS   int `yaml:"rps"`
	Burst int `yaml:"burst"`
}

// LoadFromFile loads configuration from a YAML file. Keys missing from
// the file keep their defaults.
func LoadFromFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	var yc yamlConfig
	if err := yaml.Unmarshal(data, &yc); err != nil {
		return Config{}, fmt.Errorf("parse config file: %w", err)
	}

	cfg := Default()

	if yc.UserAgent != "" {
		cfg.UserAgent = yc.UserAgent
	}
	if yc.ConnectTimeout != "" {
		d, err := time.ParseDuration(yc.ConnectTimeout)
		if err != nil {
			return Config{}, fmt.Errorf("parse connect_timeout: %w", err)
		}
		cfg.ConnectTimeout = d
	}
	if yc.ReadTimeout != "" {
		d, err := time.ParseDuration(yc.ReadTimeout)
		if err != nil {
			return Config{}, fmt.Errorf("parse read_timeout: %w", err)
		}
		cfg.ReadTimeout = d
	}
	if yc.FollowRedirects != nil {
		cfg.FollowRedirects = *yc.FollowRedirects
	}
	if yc.DedupPolicy != "" {
		cfg.DedupPolicy = yc.DedupPolicy
	}
	if yc.ResponseCacheSize != nil {
		cfg.ResponseCacheSize = *yc.ResponseCacheSize
	}

	if yc.Cache.Dir != "" {
		cfg.Cache.Dir = yc.Cache.Dir
	}
	if yc.Cache.Staging != nil {
		cfg.Cache.Staging = *yc.Cache.Staging
	}
	if yc.Cache.UseGetCache != nil {
		cfg.Cache.UseGetCache = *yc.Cache.UseGetCache
	}
	if yc.Cache.DeleteOnExit != nil {
		cfg.Cache.DeleteOnExit = *yc.Cache.DeleteOnExit
	}

	if yc.Throttle.RPS != 0 {
		cfg.Throttle.RPS = yc.Throttle.RPS
	}
	if yc.Throttle.Burst != 0 {
		cfg.Throttle.Burst = yc.Throttle.Burst
	}

	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables.
// Environment variables use the NETLITE_ prefix.
func (c *Config) LoadFromEnv() error {
	if v := os.Getenv("NETLITE_USER_AGENT"); v != "" {
		c.UserAgent = v
	}
	if v := os.Getenv("NETLITE_DEDUP_POLICY"); v != "" {
		c.DedupPolicy = v
	}
	if v := os.Getenv("NETLITE_CACHE_DIR"); v != "" {
		c.Cache.Dir = v
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"NETLITE_CONNECT_TIMEOUT", &c.ConnectTimeout},
		{"NETLITE_READ_TIMEOUT", &c.ReadTimeout},
	}
	for _, d := range durations {
		if v := os.Getenv(d.key); v != "" {
			parsed, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("parse %s: %w", d.key, err)
			}
			*d.dst = parsed
		}
	}

	bools := []struct {
		key string
		dst *bool
	}{
		{"NETLITE_FOLLOW_REDIRECTS", &c.FollowRedirects},
		{"NETLITE_STAGING", &c.Cache.Staging},
		{"NETLITE_USE_GET_CACHE", &c.Cache.UseGetCache},
		{"NETLITE_DELETE_ON_EXIT", &c.Cache.DeleteOnExit},
	}
	for _, b := range bools {
		if v := os.Getenv(b.key); v != "" {
			parsed, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("parse %s: %w", b.key, err)
			}
			*b.dst = parsed
		}
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"NETLITE_RESPONSE_CACHE_SIZE", &c.ResponseCacheSize},
		{"NETLITE_THROTTLE_RPS", &c.Throttle.RPS},
		{"NETLITE_THROTTLE_BURST", &c.Throttle.Burst},
	}
	for _, i := range ints {
		if v := os.Getenv(i.key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("parse %s: %w", i.key, err)
			}
			*i.dst = n
		}
	}

	return nil
}

// Load reads path, if non-empty, applies environment overrides and
// validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		var err error
		if cfg, err = LoadFromFile(path); err != nil {
			return Config{}, err
		}
	}

	if err := cfg.LoadFromEnv(); err != nil {
		return Config{}, err
	}

	if err := Validate(cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Options converts the configuration into client options. The cache
// flags are applied separately by [Config.ConfigureCache].
func (c Config) Options() ([]client.Option, error) {
	opts := []client.Option{
		client.WithConnectTimeout(c.ConnectTimeout),
		client.WithReadTimeout(c.ReadTimeout),
		client.WithResponseCacheSize(c.ResponseCacheSize),
	}

	if c.UserAgent != "" {
		opts = append(opts, client.WithUserAgent(c.UserAgent))
	}
	if !c.FollowRedirects {
		opts = append(opts, client.WithNoFollowRedirects())
	}
	if c.Throttle.RPS > 0 {
		opts = append(opts, client.WithThrottle(c.Throttle.RPS, c.Throttle.Burst))
	}
	if c.DedupPolicy != "" {
		p, err := download.ParsePolicy(c.DedupPolicy)
		if err != nil {
			return nil, err
		}
		opts = append(opts, client.WithDedupPolicy(p))
	}
	if c.Cache.Staging {
		opts = append(opts, client.WithStagingDir(c.Cache.Dir))
	}

	return opts, nil
}

// ConfigureCache applies the cache section to cache.
func (c Config) ConfigureCache(cache *download.Cache) error {
	if cache == nil {
		return errors.New("cache must not be nil")
	}

	if c.Cache.Dir != "" && c.Cache.Dir != cache.Dir() {
		if err := cache.SetDir(c.Cache.Dir); err != nil {
			return err
		}
	}
	if err := cache.SetStaging(c.Cache.Staging); err != nil {
		return err
	}
	cache.SetUseGetCache(c.Cache.UseGetCache)
	cache.SetDeleteOnExit(c.Cache.DeleteOnExit)

	return nil
}
