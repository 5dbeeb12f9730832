// Package config loads the ~20 domain tunables of §6's environment-knobs
// table (pool sizing, polling cadence, queue endpoints, notification sink)
// using the same layered-koanf shape as the pack's bot orchestrator: hardcoded
// defaults, then an optional YAML file, then GRIDGEN_-prefixed env vars, each
// layer overriding the last.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// PoolConfig is the autoscaler parameter set for one pool instance.
type PoolConfig struct {
	Min               int           `koanf:"min"`
	Max               int           `koanf:"max"`
	Step              int           `koanf:"step"`
	ScaleUpInterval   time.Duration `koanf:"scale_up_interval"`
	ScaleDownInterval time.Duration `koanf:"scale_down_interval"`
}

// QueueConfig is one of the three external image-API queue endpoint pairs.
type QueueConfig struct {
	SubmitURL          string        `koanf:"submit_url"`
	StatusURL          string        `koanf:"status_url"`
	PollingInterval    time.Duration `koanf:"polling_interval"`
	MaxPollingAttempts int           `koanf:"max_polling_attempts"`
}

// Config is the full set of settings this module reads from the
// environment.
type Config struct {
	DefaultPool PoolConfig `koanf:"default_pool"`
	LuminaPool  PoolConfig `koanf:"lumina_pool"`

	Queues map[string]QueueConfig `koanf:"queues"`

	MakeAPIToken string `koanf:"make_api_token"`

	LuminaEmptyTimeout time.Duration `koanf:"lumina_empty_timeout"`
	AutoscalerTick     time.Duration `koanf:"autoscaler_tick"`
	MonitorTick        time.Duration `koanf:"monitor_tick"`

	NotificationURL string `koanf:"notification_url"`

	TaskRetentionDays int    `koanf:"task_retention_days"`
	SweepCron         string `koanf:"sweep_cron"`
}

const envPrefix = "GRIDGEN_"

// Load builds a Config from hardcoded defaults, an optional YAML file at
// configPath (if non-empty) or $HOME/.gridgen/config.yaml, and finally
// GRIDGEN_-prefixed environment variables. In an env var name a double
// underscore separates nested keys (GRIDGEN_DEFAULT_POOL__MIN sets
// default_pool.min); single underscores are kept (GRIDGEN_MAKE_API_TOKEN
// sets make_api_token).
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	defaults := map[string]any{
		"default_pool.min":                 10,
		"default_pool.max":                 50,
		"default_pool.step":                5,
		"default_pool.scale_up_interval":   "60s",
		"default_pool.scale_down_interval": "180s",

		"lumina_pool.min":                 20,
		"lumina_pool.max":                 20,
		"lumina_pool.step":                2,
		"lumina_pool.scale_up_interval":   "60s",
		"lumina_pool.scale_down_interval": "180s",

		"queues.prod.submit_url":           "https://image-api.internal/prod/submit",
		"queues.prod.status_url":           "https://image-api.internal/prod/status",
		"queues.prod.polling_interval":     "2s",
		"queues.prod.max_polling_attempts": 30,

		"queues.dev.submit_url":           "https://image-api.internal/dev/submit",
		"queues.dev.status_url":           "https://image-api.internal/dev/status",
		"queues.dev.polling_interval":     "2s",
		"queues.dev.max_polling_attempts": 30,

		"queues.ops.submit_url":           "https://image-api.internal/ops/submit",
		"queues.ops.status_url":           "https://image-api.internal/ops/status",
		"queues.ops.polling_interval":     "5s",
		"queues.ops.max_polling_attempts": 60,

		"lumina_empty_timeout": "180s",
		"autoscaler_tick":      "10s",
		"monitor_tick":         "5s",

		"task_retention_days": 30,
		"sweep_cron":          "0 3 * * *",
	}
	for key, value := range defaults {
		k.Set(key, value)
	}

	if configPath == "" {
		if home, err := os.UserHomeDir(); err == nil {
			configPath = filepath.Join(home, ".gridgen", "config.yaml")
		}
	}
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
				return nil, err
			}
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, envPrefix)), "__", ".")
	}), nil); err != nil {
		return nil, err
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Queue returns the settings of the named queue (the make_api_queue value a
// subtask carries) and whether that queue is configured.
func (c *Config) Queue(name string) (QueueConfig, bool) {
	q, ok := c.Queues[name]
	return q, ok
}
