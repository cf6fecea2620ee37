package config

import (
	"fmt"
	"strconv"
	"time"
)

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// ApplyEnv overrides file values with CADENCE_* variables.
func (c *Config) ApplyEnv(lookup LookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: %s: %w", key, err)
		}
		*dst = n
		return nil
	}
	dur := func(key string, dst *time.Duration) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("config: %s: %w", key, err)
		}
		*dst = d
		return nil
	}

	str("CADENCE_STORE_DRIVER", &c.Store.Driver)
	str("CADENCE_STORE_DSN", &c.Store.DSN)
	str("CADENCE_SCHEDULE", &c.Engine.Schedule)
	str("CADENCE_TIMEZONE", &c.Engine.Timezone)
	str("CADENCE_DISPATCH_KIND", &c.Dispatch.Kind)
	str("CADENCE_WEBHOOK_URL", &c.Dispatch.Webhook.URL)
	str("CADENCE_WEBHOOK_TOKEN", &c.Dispatch.Webhook.Token)
	str("CADENCE_REDIS_ADDR", &c.Dispatch.Redis.Addr)
	str("CADENCE_REDIS_PASSWORD", &c.Dispatch.Redis.Password)
	str("CADENCE_REDIS_STREAM", &c.Dispatch.Redis.Stream)
	str("CADENCE_LOG_LEVEL", &c.Logging.Level)
	str("CADENCE_LOG_FORMAT", &c.Logging.Format)

	if err := num("CADENCE_BATCH_SIZE", &c.Engine.BatchSize); err != nil {
		return err
	}
	if err := num("CADENCE_MAX_ATTEMPTS", &c.Engine.MaxAttempts); err != nil {
		return err
	}
	if err := dur("CADENCE_POLL_INTERVAL", &c.Engine.PollInterval); err != nil {
		return err
	}

	return nil
}
