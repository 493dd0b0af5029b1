package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	yaml "go.yaml.in/yaml/v3"
)

const (
	EnvCronSecret  = "PINGFLOW_CRON_SECRET"
	EnvDatabaseURL = "DATABASE_URL"
)

type Config struct {
	Addr      string          `yaml:"addr"`
	Debug     bool            `yaml:"debug"`
	Database  DatabaseConfig  `yaml:"database"`
	Cron      CronConfig      `yaml:"cron"`
	Invoker   InvokerConfig   `yaml:"invoker"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Log       LogConfig       `yaml:"log"`
}

type DatabaseConfig struct {
	// Driver is sqlite, postgres or memory.
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

type CronConfig struct {
	Secret string `yaml:"secret"`
	// LocalSchedule, when set, runs cycles in-process on this cron spec
	// (e.g. "@every 1m") instead of waiting for an external caller.
	LocalSchedule string `yaml:"local_schedule"`
}

type InvokerConfig struct {
	Timeout       string  `yaml:"timeout"`
	UserAgent     string  `yaml:"user_agent"`
	RatePerSecond float64 `yaml:"rate_per_second"`
	Burst         int     `yaml:"burst"`
}

type SchedulerConfig struct {
	MaxConcurrency int `yaml:"max_concurrency"`
}

type LogConfig struct {
	Level   string `yaml:"level"`
	Console bool   `yaml:"console"`
}

func Default() Config {
	return Config{
		Addr:     ":8080",
		Database: DatabaseConfig{Driver: "sqlite", DSN: "pingflow.db"},
		Invoker:  InvokerConfig{Timeout: "30s"},
		Log:      LogConfig{Level: "info", Console: true},
	}
}

// Load reads an optional YAML file over the defaults, then applies
// environment overrides. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return Config{}, fmt.Errorf("open config: %w", err)
		}
		defer f.Close()
		if err := decode(f, &cfg); err != nil {
			return Config{}, fmt.Errorf("%s: %w", path, err)
		}
	}
	applyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := decode(bytes.NewReader(data), &cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decode(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("yaml decode: %w", err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv(EnvCronSecret)); v != "" {
		cfg.Cron.Secret = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvDatabaseURL)); v != "" {
		cfg.Database.DSN = v
	}
}

func (c Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite", "postgres", "memory":
	default:
		return fmt.Errorf("database.driver: unsupported driver %q", c.Database.Driver)
	}
	if c.Database.Driver != "memory" && strings.TrimSpace(c.Database.DSN) == "" {
		return errors.New("database.dsn: required")
	}
	if _, err := c.InvokerTimeout(); err != nil {
		return err
	}
	if c.Invoker.RatePerSecond < 0 {
		return errors.New("invoker.rate_per_second: must be >= 0")
	}
	if c.Scheduler.MaxConcurrency < 0 {
		return errors.New("scheduler.max_concurrency: must be >= 0")
	}
	return nil
}

func (c Config) InvokerTimeout() (time.Duration, error) {
	return ParseDurationOrDefault("invoker.timeout", c.Invoker.Timeout, 30*time.Second)
}
