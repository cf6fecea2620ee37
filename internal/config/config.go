// Package config loads the cadence daemon configuration from YAML and CADENCE_* environment variables.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	yaml "go.yaml.in/yaml/v3"

	"github.com/velmie/cadence"
	"github.com/velmie/cadence/internal/logging"
	"github.com/velmie/cadence/mysql"
)

const (
	DriverMemory = "memory"
	DriverMySQL  = "mysql"

	DispatchNone    = "none"
	DispatchLog     = "log"
	DispatchWebhook = "webhook"
	DispatchRedis   = "redis"

	defaultStream = "cadence:steps"
)

// ScheduleParser accepts 5-field and 6-field (with seconds) cron specs and descriptors such as @every 1m.
var ScheduleParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

type Config struct {
	Store    StoreConfig    `yaml:"store"`
	Engine   EngineConfig   `yaml:"engine"`
	Dispatch DispatchConfig `yaml:"dispatch"`
	Logging  logging.Config `yaml:"logging"`
	Seed     SeedConfig     `yaml:"seed"`
}

type StoreConfig struct {
	Driver       string      `yaml:"driver"`
	DSN          string      `yaml:"dsn"`
	MaxOpenConns int         `yaml:"max_open_conns"`
	Tables       mysql.Tables `yaml:"tables"`
}

// EngineConfig mirrors the cadence options. Durations are Go duration strings.
type EngineConfig struct {
	BatchSize      int           `yaml:"batch_size"`
	PollInterval   time.Duration `yaml:"poll_interval"`
	// Schedule switches serve from polling to cron ticks.
	Schedule       string        `yaml:"schedule"`
	TickLock       string        `yaml:"tick_lock"`
	Timezone       string        `yaml:"timezone"`
	DefaultTime    string        `yaml:"default_time"`
	ClaimTTL       time.Duration `yaml:"claim_ttl"`
	AdvanceTimeout time.Duration `yaml:"advance_timeout"`
	DueInterval    time.Duration `yaml:"due_interval"`
	MaxAttempts    int           `yaml:"max_attempts"`
	Backoff        time.Duration `yaml:"backoff"`
}

type DispatchConfig struct {
	Kind    string        `yaml:"kind"`
	Webhook WebhookConfig `yaml:"webhook"`
	Redis   RedisConfig   `yaml:"redis"`
	Queue   QueueConfig   `yaml:"queue"`
}

type WebhookConfig struct {
	URL     string        `yaml:"url"`
	Token   string        `yaml:"token"`
	Timeout time.Duration `yaml:"timeout"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Stream   string `yaml:"stream"`
	MaxLen   int64  `yaml:"max_len"`
}

type QueueConfig struct {
	Size       int           `yaml:"size"`
	Workers    int           `yaml:"workers"`
	RatePerSec float64       `yaml:"rate_per_sec"`
	Burst      int           `yaml:"burst"`
	Retries    int           `yaml:"retries"`
	RetryDelay time.Duration `yaml:"retry_delay"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Store:    StoreConfig{Driver: DriverMemory},
		Engine:   EngineConfig{BatchSize: 10, PollInterval: 30 * time.Second, Timezone: "UTC", DefaultTime: "09:00"},
		Dispatch: DispatchConfig{Kind: DispatchLog},
		Logging:  logging.Config{Level: "info", Format: logging.FormatConsole},
	}
}

// Load reads path (skipped when empty), applies environment variables, then overrides,
// and validates the result.
func Load(path string, overrides ...func(*Config)) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if cfg, err = Parse(data); err != nil {
			return Config{}, fmt.Errorf("config: %s: %w", path, err)
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	for _, override := range overrides {
		override(&cfg)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Parse decodes YAML over the defaults. Unknown keys are rejected.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("config: decode yaml: %w", err)
	}

	return cfg, nil
}

// Location resolves the engine time zone.
func (c EngineConfig) Location() (*time.Location, error) {
	if strings.TrimSpace(c.Timezone) == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("config: engine.timezone: %w", err)
	}

	return loc, nil
}

// TimeOfDay parses the default step time.
func (c EngineConfig) TimeOfDay() (cadence.TimeOfDay, error) {
	if strings.TrimSpace(c.DefaultTime) == "" {
		return cadence.DefaultTimeOfDay, nil
	}
	tod, err := cadence.ParseTimeOfDay(c.DefaultTime)
	if err != nil {
		return cadence.TimeOfDay{}, fmt.Errorf("config: engine.default_time: %w", err)
	}

	return tod, nil
}

// Validate checks the configuration and fills stream defaults.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("config: "+format, args...))
	}

	switch c.Store.Driver {
	case DriverMemory:
	case DriverMySQL:
		if strings.TrimSpace(c.Store.DSN) == "" {
			add("store.dsn is required for the mysql driver")
		}
	default:
		add("store.driver must be %q or %q, got %q", DriverMemory, DriverMySQL, c.Store.Driver)
	}

	e := c.Engine
	if e.BatchSize < 0 {
		add("engine.batch_size must be >= 0")
	}
	if e.MaxAttempts < 0 {
		add("engine.max_attempts must be >= 0")
	}
	for name, d := range map[string]time.Duration{
		"poll_interval": e.PollInterval,
		"claim_ttl":     e.ClaimTTL,
		"due_interval":  e.DueInterval,
		"backoff":       e.Backoff,
	} {
		if d < 0 {
			add("engine.%s must be >= 0", name)
		}
	}
	if e.Schedule != "" {
		if _, err := ScheduleParser.Parse(e.Schedule); err != nil {
			add("engine.schedule %q: %v", e.Schedule, err)
		}
	}
	if _, err := e.Location(); err != nil {
		errs = append(errs, err)
	}
	if _, err := e.TimeOfDay(); err != nil {
		errs = append(errs, err)
	}

	switch c.Dispatch.Kind {
	case "", DispatchNone, DispatchLog:
	case DispatchWebhook:
		if strings.TrimSpace(c.Dispatch.Webhook.URL) == "" {
			add("dispatch.webhook.url is required")
		}
	case DispatchRedis:
		if strings.TrimSpace(c.Dispatch.Redis.Addr) == "" {
			add("dispatch.redis.addr is required")
		}
		if c.Dispatch.Redis.Stream == "" {
			c.Dispatch.Redis.Stream = defaultStream
		}
	default:
		add("dispatch.kind %q is not supported", c.Dispatch.Kind)
	}

	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, fmt.Errorf("config: %w", err))
	}
	if err := c.Seed.validate(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}
