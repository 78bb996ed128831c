package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all settings of the printer service.
type Config struct {
	Server struct {
		Host    string `yaml:"host"`
		Port    string `yaml:"port"`
		Prefork bool   `yaml:"prefork"`
	} `yaml:"server"`

	Logger struct {
		File       string `yaml:"file"`
		Level      string `yaml:"level"`
		MaxSizeMB  int    `yaml:"max_size_mb"`
		MaxBackups int    `yaml:"max_backups"`
		MaxAgeDays int    `yaml:"max_age_days"`
		Compress   bool   `yaml:"compress"`
	} `yaml:"logger"`

	Chrome ChromeConfig `yaml:"chrome"`

	Printer PrinterConfig `yaml:"printer"`

	Storage StorageConfig `yaml:"storage"`

	Cache struct {
		RedisHost       string        `yaml:"redis_host"`
		URLCacheEnabled bool          `yaml:"url_cache_enabled"`
		URLCacheTTL     time.Duration `yaml:"url_cache_ttl"`
		URLCacheDB      int           `yaml:"redis_url_db"`
		RateLimitDB     int           `yaml:"redis_rate_db"`
	} `yaml:"cache"`

	Auth struct {
		Enabled        bool           `yaml:"enabled"`
		// RequireKey rejects print requests without X-API-Key; otherwise they fall to the user limiter.
		RequireKey     bool           `yaml:"require_key"`
		ReloadInterval time.Duration  `yaml:"reload_interval"`
		Postgres       PostgresConfig `yaml:"postgres"`
	} `yaml:"auth"`

	RateLimiter struct {
		Interval               time.Duration `yaml:"interval"`
		EnableUserLimiter      bool          `yaml:"enable_user_limiter"`
		UserLimit              int           `yaml:"user_limit"`
		EnableTokenRateLimiter bool          `yaml:"enable_token_rate_limiter"`
	} `yaml:"rate_limiter"`
}

// ChromeConfig points at the remote headless browser.
type ChromeConfig struct {
	URL               string        `yaml:"url"`
	Token             string        `yaml:"token"`
	IgnoreHTTPSErrors bool          `yaml:"ignore_https_errors"`
	DefaultTimeout    time.Duration `yaml:"default_timeout"`
}

// PrinterConfig controls how documents are rendered.
type PrinterConfig struct {
	PublicURL         string        `yaml:"public_url"`
	StorageURL        string        `yaml:"storage_url"`
	PreviewPath       string        `yaml:"preview_path"`
	NavigationTimeout time.Duration `yaml:"navigation_timeout"`
	Retry             RetryConfig   `yaml:"retry"`
	Rewrite           RewriteConfig `yaml:"rewrite"`
}

// RetryConfig is the bounded, randomized retry policy around a render.
type RetryConfig struct {
	Attempts            int           `yaml:"attempts"`
	InitialInterval     time.Duration `yaml:"initial_interval"`
	MaxInterval         time.Duration `yaml:"max_interval"`
	RandomizationFactor float64       `yaml:"randomization_factor"`
}

// RewriteConfig maps loopback hosts to names reachable from the browser's network.
// Ports maps extra loopback ports to aliases; FallbackAlias covers any other port.
type RewriteConfig struct {
	AppAlias      string            `yaml:"app_alias"`
	StorageAlias  string            `yaml:"storage_alias"`
	FallbackAlias string            `yaml:"fallback_alias"`
	Ports         map[string]string `yaml:"ports"`
}

// StorageConfig describes the S3-compatible bucket rendered artifacts are written to.
// Requests use path-style addressing unless VirtualHostStyle is set.
type StorageConfig struct {
	Endpoint         string `yaml:"endpoint"`
	Region           string `yaml:"region"`
	Bucket           string `yaml:"bucket"`
	AccessKey        string `yaml:"access_key"`
	SecretKey        string `yaml:"secret_key"`
	VirtualHostStyle bool   `yaml:"virtual_host_style"`
}

// PostgresConfig locates the API token table.
type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode"`
}

const defaultConfigPath = "config.yaml"

// Load reads the file named by CONFIG_PATH (or config.yaml).
func Load() Config {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = defaultConfigPath
	}
	return LoadFrom(path)
}

// LoadFrom reads the YAML file at path, applies environment overrides and
// defaults, and validates the result. A missing file is allowed so the service
// can be configured from the environment alone; anything else invalid panics.
func LoadFrom(path string) Config {
	var cfg Config

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			panic(fmt.Sprintf("config: cannot parse %s: %v", path, err))
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		panic(fmt.Sprintf("config: cannot read %s: %v", path, err))
	}

	applyEnv(&cfg)
	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		panic("config: " + err.Error())
	}
	return cfg
}

func applyEnv(cfg *Config) {
	setString(&cfg.Chrome.URL, "CHROME_URL")
	setString(&cfg.Chrome.Token, "CHROME_TOKEN")
	setBool(&cfg.Chrome.IgnoreHTTPSErrors, "CHROME_IGNORE_HTTPS_ERRORS")
	setString(&cfg.Printer.PublicURL, "PUBLIC_URL")
	setString(&cfg.Printer.StorageURL, "STORAGE_URL")
	setString(&cfg.Storage.Endpoint, "STORAGE_ENDPOINT")
	setString(&cfg.Storage.Region, "STORAGE_REGION")
	setString(&cfg.Storage.Bucket, "STORAGE_BUCKET")
	setString(&cfg.Storage.AccessKey, "STORAGE_ACCESS_KEY")
	setString(&cfg.Storage.SecretKey, "STORAGE_SECRET_KEY")
	setString(&cfg.Cache.RedisHost, "REDIS_HOST")
	setString(&cfg.Logger.Level, "LOG_LEVEL")
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func setBool(dst *bool, key string) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		panic(fmt.Sprintf("config: %s must be a boolean, got %q", key, v))
	}
	*dst = b
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == "" {
		cfg.Server.Port = ":8080"
	}
	if cfg.Logger.Level == "" {
		cfg.Logger.Level = "info"
	}
	if cfg.Chrome.DefaultTimeout == 0 {
		cfg.Chrome.DefaultTimeout = 30 * time.Second
	}

	p := &cfg.Printer
	p.PublicURL = strings.TrimRight(p.PublicURL, "/")
	p.StorageURL = strings.TrimRight(p.StorageURL, "/")
	if p.PreviewPath == "" {
		p.PreviewPath = "/artboard/preview"
	}
	if p.NavigationTimeout == 0 {
		p.NavigationTimeout = 30 * time.Second
	}
	if p.Retry.Attempts == 0 {
		p.Retry.Attempts = 3
	}
	if p.Retry.InitialInterval == 0 {
		p.Retry.InitialInterval = time.Second
	}
	if p.Retry.MaxInterval == 0 {
		p.Retry.MaxInterval = 10 * time.Second
	}
	if p.Retry.RandomizationFactor == 0 {
		p.Retry.RandomizationFactor = 0.5
	}
	if p.Rewrite.AppAlias == "" {
		p.Rewrite.AppAlias = "host.docker.internal"
	}
	if p.Rewrite.StorageAlias == "" {
		p.Rewrite.StorageAlias = "minio"
	}
	if p.Rewrite.FallbackAlias == "" {
		p.Rewrite.FallbackAlias = p.Rewrite.AppAlias
	}

	if cfg.Storage.Region == "" {
		cfg.Storage.Region = "us-east-1"
	}
	if cfg.Cache.URLCacheTTL == 0 {
		cfg.Cache.URLCacheTTL = 24 * time.Hour
	}
	if cfg.Auth.ReloadInterval == 0 {
		cfg.Auth.ReloadInterval = time.Minute
	}
	if cfg.RateLimiter.Interval == 0 {
		cfg.RateLimiter.Interval = time.Minute
	}
}

// Validate reports the first setting that makes the service unusable.
func (c Config) Validate() error {
	if c.Chrome.URL == "" {
		return errors.New("chrome.url (CHROME_URL) is required")
	}
	if u, err := url.Parse(c.Chrome.URL); err != nil || (u.Scheme != "ws" && u.Scheme != "wss") || u.Host == "" {
		return errors.New("chrome.url (CHROME_URL) must be a ws:// or wss:// URL")
	}
	if c.Chrome.Token == "" {
		return errors.New("chrome.token (CHROME_TOKEN) is required")
	}
	if err := validBaseURL("printer.public_url (PUBLIC_URL)", c.Printer.PublicURL); err != nil {
		return err
	}
	if err := validBaseURL("printer.storage_url (STORAGE_URL)", c.Printer.StorageURL); err != nil {
		return err
	}
	if !strings.HasPrefix(c.Printer.PreviewPath, "/") {
		return fmt.Errorf("printer.preview_path must start with '/', got %q", c.Printer.PreviewPath)
	}
	if c.Printer.NavigationTimeout < 0 {
		return errors.New("printer.navigation_timeout must be positive")
	}
	if c.Printer.Retry.Attempts < 1 {
		return errors.New("printer.retry.attempts must be at least 1")
	}
	if f := c.Printer.Retry.RandomizationFactor; f < 0 || f > 1 {
		return fmt.Errorf("printer.retry.randomization_factor must be within [0,1], got %v", f)
	}
	if c.RateLimiter.UserLimit < 0 {
		return errors.New("rate_limiter.user_limit must not be negative")
	}
	if c.Auth.Enabled && c.Auth.Postgres.Host == "" {
		return errors.New("auth.postgres.host is required when auth is enabled")
	}
	return nil
}

func validBaseURL(name, raw string) error {
	if raw == "" {
		return fmt.Errorf("%s is required", name)
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%s must be an absolute http(s) URL, got %q", name, raw)
	}
	return nil
}
