// Package config loads the settings of the memocache command from a YAML
// file, an optional dotenv file and the process environment, in that order
// of increasing precedence.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/agentuity/go-memocache/cache"
	"github.com/agentuity/go-memocache/logger"
	"github.com/cockroachdb/errors"
	"github.com/xhit/go-str2duration/v2"
	"gopkg.in/yaml.v3"
)

// Environment variables recognised by ApplyEnv.
const (
	EnvStore        = "MEMOCACHE_STORE"
	EnvRedisURL     = "MEMOCACHE_REDIS_URL"
	EnvPrefix       = "MEMOCACHE_PREFIX"
	EnvTTL          = "MEMOCACHE_TTL"
	EnvFetchTimeout = "MEMOCACHE_FETCH_TIMEOUT"
	EnvQueryTimeout = "MEMOCACHE_QUERY_TIMEOUT"
	EnvSingleFlight = "MEMOCACHE_SINGLE_FLIGHT"
	EnvHistory      = "MEMOCACHE_HISTORY"
	EnvLogLevel     = logger.EnvLogLevel
	EnvLogFormat    = "MEMOCACHE_LOG_FORMAT"
	EnvDocstore     = "MEMOCACHE_DOCSTORE"
	EnvMarkdown     = "MEMOCACHE_MARKDOWN"
	EnvOTLPURL      = "MEMOCACHE_OTLP_URL"
	EnvOTLPToken    = "MEMOCACHE_OTLP_TOKEN"
	EnvOTLPSecret   = "MEMOCACHE_OTLP_SHARED_SECRET"
)

// Store backends.
const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
)

// History modes.
const (
	HistoryPaired     = "paired"
	HistoryInputFirst = "input-first"
)

// Log formats.
const (
	LogConsole = "console"
	LogJSON    = "json"
)

var ErrInvalid = errors.New("config: invalid value")

// Duration is a time.Duration that also accepts day and week units ("1d",
// "2w3h") in YAML and the environment.
type Duration time.Duration

func ParseDuration(s string) (Duration, error) {
	d, err := str2duration.ParseDuration(strings.TrimSpace(s))
	if err != nil {
		return 0, errors.Mark(errors.Wrapf(err, "config: duration %q", s), ErrInvalid)
	}
	return Duration(d), nil
}

func (d Duration) String() string {
	return str2duration.String(time.Duration(d))
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	v, err := ParseDuration(s)
	if err != nil {
		return err
	}
	*d = v
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return d.String(), nil
}

// Config holds the command settings.
type Config struct {
	Store        string   `yaml:"store"`
	RedisURL     string   `yaml:"redis_url,omitempty"`
	Prefix       string   `yaml:"prefix,omitempty"`
	TTL          Duration `yaml:"ttl"`
	FetchTimeout Duration `yaml:"fetch_timeout,omitempty"`
	QueryTimeout Duration `yaml:"query_timeout,omitempty"`
	SingleFlight bool     `yaml:"single_flight,omitempty"`
	History      string   `yaml:"history"`
	LogLevel     string   `yaml:"log_level"`
	LogFormat    string   `yaml:"log_format"`
	Docstore     string   `yaml:"docstore,omitempty"`
	Markdown     bool     `yaml:"markdown,omitempty"`
	EnvFile      string   `yaml:"env_file,omitempty"`

	// BreakerFailures enables a per-host circuit breaker on web fetches
	// that opens after this many consecutive failures.
	BreakerFailures int      `yaml:"breaker_failures,omitempty"`
	BreakerTimeout  Duration `yaml:"breaker_timeout,omitempty"`

	// OTLPURL enables span export to an OTLP/HTTP collector.
	OTLPURL    string `yaml:"otlp_url,omitempty"`
	OTLPToken  string `yaml:"otlp_token,omitempty"`
	OTLPSecret string `yaml:"otlp_shared_secret,omitempty"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		Store:          StoreMemory,
		TTL:            Duration(cache.DefaultFetchTTL),
		QueryTimeout:   Duration(cache.DefaultQueryTimeout),
		History:        HistoryPaired,
		LogLevel:       logger.LevelInfo.String(),
		LogFormat:      LogConsole,
		Docstore:       "memocache.db",
		BreakerTimeout: Duration(30 * time.Second),
	}
}

// Load reads the YAML file at path over the defaults, then the dotenv file
// it names (if any), then the process environment. An empty path skips the
// file.
func Load(path string) (*Config, error) {
	c := Default()
	if path != "" {
		of, err := os.Open(path)
		if err != nil {
			return nil, errors.Wrapf(err, "config: open %s", path)
		}
		defer of.Close()
		if err := yaml.NewDecoder(of).Decode(c); err != nil {
			return nil, errors.Wrapf(err, "config: decode %s", path)
		}
	}
	if c.EnvFile != "" {
		envs, err := ParseEnvFile(c.EnvFile)
		if err != nil {
			return nil, err
		}
		if err := c.ApplyEnv(envs.Lookup); err != nil {
			return nil, err
		}
	}
	if err := c.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// LookupFunc has the shape of os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// ApplyEnv overrides fields from lookup.
func (c *Config) ApplyEnv(lookup LookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	dur := func(key string, dst *Duration) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		d, err := ParseDuration(v)
		if err != nil {
			return errors.Wrapf(err, "%s", key)
		}
		*dst = d
		return nil
	}
	boolean := func(key string, dst *bool) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return errors.Mark(errors.Wrapf(err, "config: %s", key), ErrInvalid)
		}
		*dst = b
		return nil
	}

	str(EnvStore, &c.Store)
	str(EnvRedisURL, &c.RedisURL)
	str(EnvPrefix, &c.Prefix)
	str(EnvHistory, &c.History)
	str(EnvLogLevel, &c.LogLevel)
	str(EnvLogFormat, &c.LogFormat)
	str(EnvDocstore, &c.Docstore)
	str(EnvOTLPURL, &c.OTLPURL)
	str(EnvOTLPToken, &c.OTLPToken)
	str(EnvOTLPSecret, &c.OTLPSecret)
	for key, dst := range map[string]*Duration{
		EnvTTL:          &c.TTL,
		EnvFetchTimeout: &c.FetchTimeout,
		EnvQueryTimeout: &c.QueryTimeout,
	} {
		if err := dur(key, dst); err != nil {
			return err
		}
	}
	if err := boolean(EnvSingleFlight, &c.SingleFlight); err != nil {
		return err
	}
	return boolean(EnvMarkdown, &c.Markdown)
}

// Validate checks enumerated fields and ranges.
func (c *Config) Validate() error {
	switch c.Store {
	case StoreMemory:
	case StoreRedis:
		if c.RedisURL == "" {
			return errors.Wrapf(ErrInvalid, "redis store requires %s", EnvRedisURL)
		}
	default:
		return errors.Wrapf(ErrInvalid, "unknown store %q", c.Store)
	}
	switch c.History {
	case HistoryPaired, HistoryInputFirst:
	default:
		return errors.Wrapf(ErrInvalid, "unknown history mode %q", c.History)
	}
	switch c.LogFormat {
	case LogConsole, LogJSON:
	default:
		return errors.Wrapf(ErrInvalid, "unknown log format %q", c.LogFormat)
	}
	if _, ok := logger.ParseLevel(c.LogLevel); !ok {
		return errors.Wrapf(ErrInvalid, "unknown log level %q", c.LogLevel)
	}
	if c.TTL < 0 || c.FetchTimeout < 0 || c.QueryTimeout < 0 || c.BreakerTimeout < 0 || c.BreakerFailures < 0 {
		return errors.Wrap(ErrInvalid, "durations and counts must not be negative")
	}
	return nil
}

// Level returns the parsed log level.
func (c *Config) Level() logger.LogLevel {
	level, _ := logger.ParseLevel(c.LogLevel)
	return level
}

// HistoryMode maps History onto cache.HistoryMode.
func (c *Config) HistoryMode() cache.HistoryMode {
	if c.History == HistoryInputFirst {
		return cache.HistoryInputFirst
	}
	return cache.HistoryPaired
}

// NewLogger builds the logger described by LogLevel and LogFormat.
func (c *Config) NewLogger() logger.Logger {
	if c.LogFormat == LogJSON {
		return logger.NewJSONLogger(c.Level())
	}
	return logger.NewConsoleLogger(c.Level())
}
