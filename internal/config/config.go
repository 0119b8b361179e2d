// Package config provides configuration management for the ledger service.
// Values come from an optional YAML file, then from environment variables
// (a .env file in the working directory is loaded first if present).
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Ledger   LedgerConfig   `yaml:"ledger"`
	Storage  StorageConfig  `yaml:"storage"`
	Locks    LocksConfig    `yaml:"locks"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	RabbitMQ RabbitMQConfig `yaml:"rabbitmq"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig represents the HTTP listener.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// LedgerConfig represents engine limits.
type LedgerConfig struct {
	MaxAmount         string        `yaml:"max_amount"`
	LockTimeout       time.Duration `yaml:"lock_timeout"`
	SideEffectTimeout time.Duration `yaml:"side_effect_timeout"`
	Currency          string        `yaml:"currency"`
}

// StorageConfig selects the ledger store. Driver is one of memory, postgres or sqlite.
// AccountsFile optionally seeds the account directory (or the accounts table).
type StorageConfig struct {
	Driver       string `yaml:"driver"`
	DSN          string `yaml:"dsn"`
	AccountsFile string `yaml:"accounts_file"`
}

// LocksConfig selects the lock coordinator. Backend is local or redis.
type LocksConfig struct {
	Backend       string        `yaml:"backend"`
	RedisAddr     string        `yaml:"redis_addr"`
	RedisPassword string        `yaml:"redis_password"`
	Expiry        time.Duration `yaml:"expiry"`
}

// KafkaConfig represents the audit stream. Empty Brokers disables it.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// RabbitMQConfig represents the e-mail queue. Empty URL disables it.
type RabbitMQConfig struct {
	URL   string `yaml:"url"`
	Queue string `yaml:"queue"`
}

// LogConfig represents logger settings. Format is json or console.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Addr: ":8080", ShutdownTimeout: 15 * time.Second},
		Ledger: LedgerConfig{
			MaxAmount:         "1000000.00",
			LockTimeout:       5 * time.Second,
			SideEffectTimeout: 10 * time.Second,
			Currency:          "USD",
		},
		Storage:  StorageConfig{Driver: "memory"},
		Locks:    LocksConfig{Backend: "local", Expiry: 30 * time.Second},
		Kafka:    KafkaConfig{Topic: "ledger.balance-changes"},
		RabbitMQ: RabbitMQConfig{Queue: "ledger.emails"},
		Log:      LogConfig{Level: "info", Format: "json"},
	}
}

// Load builds the configuration. path names an optional YAML file; when empty,
// LEDGER_CONFIG is consulted. Environment variables override file values.
func Load(path string) (*Config, error) {
	// Missing .env is fine.
	_ = godotenv.Load()

	cfg := Default()

	if path == "" {
		path = os.Getenv("LEDGER_CONFIG")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	setString(&c.Server.Addr, "HTTP_ADDR")
	setString(&c.Ledger.MaxAmount, "LEDGER_MAX_AMOUNT")
	setString(&c.Ledger.Currency, "LEDGER_CURRENCY")
	setString(&c.Storage.Driver, "STORAGE_DRIVER")
	setString(&c.Storage.DSN, "STORAGE_DSN")
	setString(&c.Storage.AccountsFile, "ACCOUNTS_FILE")
	setString(&c.Locks.Backend, "LOCKS_BACKEND")
	setString(&c.Locks.RedisAddr, "REDIS_ADDR")
	setString(&c.Locks.RedisPassword, "REDIS_PASSWORD")
	setString(&c.Kafka.Topic, "KAFKA_TOPIC")
	setString(&c.RabbitMQ.URL, "RABBITMQ_URL")
	setString(&c.RabbitMQ.Queue, "RABBITMQ_QUEUE")
	setString(&c.Log.Level, "LOG_LEVEL")
	setString(&c.Log.Format, "LOG_FORMAT")

	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = splitList(v)
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"SHUTDOWN_TIMEOUT", &c.Server.ShutdownTimeout},
		{"LEDGER_LOCK_TIMEOUT", &c.Ledger.LockTimeout},
		{"LEDGER_SIDE_EFFECT_TIMEOUT", &c.Ledger.SideEffectTimeout},
		{"LOCK_EXPIRY", &c.Locks.Expiry},
	}
	for _, d := range durations {
		if err := setDuration(d.dst, d.key); err != nil {
			return err
		}
	}
	return nil
}

// MaxAmount returns the configured per-operation ceiling.
func (c *Config) MaxAmount() (decimal.Decimal, error) {
	d, err := decimal.NewFromString(c.Ledger.MaxAmount)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid ledger.max_amount %q: %w", c.Ledger.MaxAmount, err)
	}
	return d, nil
}

// Validate checks that the selected backends have what they need.
func (c *Config) Validate() error {
	var errs []error

	if ceiling, err := c.MaxAmount(); err != nil {
		errs = append(errs, err)
	} else if !ceiling.IsPositive() {
		errs = append(errs, fmt.Errorf("ledger.max_amount must be positive"))
	}
	if c.Ledger.LockTimeout <= 0 {
		errs = append(errs, fmt.Errorf("ledger.lock_timeout must be positive"))
	}
	if c.Ledger.SideEffectTimeout <= 0 {
		errs = append(errs, fmt.Errorf("ledger.side_effect_timeout must be positive"))
	}

	switch c.Storage.Driver {
	case "memory":
	case "postgres", "sqlite":
		if c.Storage.DSN == "" {
			errs = append(errs, fmt.Errorf("storage.dsn is required for driver %s", c.Storage.Driver))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage.driver %q", c.Storage.Driver))
	}

	switch c.Locks.Backend {
	case "local":
	case "redis":
		if c.Locks.RedisAddr == "" {
			errs = append(errs, fmt.Errorf("locks.redis_addr is required for the redis backend"))
		}
		if c.Locks.Expiry <= c.Ledger.LockTimeout {
			errs = append(errs, fmt.Errorf("locks.expiry must exceed ledger.lock_timeout"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown locks.backend %q", c.Locks.Backend))
	}

	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		errs = append(errs, fmt.Errorf("kafka.topic is required when brokers are set"))
	}
	if c.RabbitMQ.URL != "" && c.RabbitMQ.Queue == "" {
		errs = append(errs, fmt.Errorf("rabbitmq.queue is required when url is set"))
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		// Bare numbers are seconds.
		secs, convErr := strconv.Atoi(v)
		if convErr != nil {
			return fmt.Errorf("invalid duration for %s: %s", key, v)
		}
		d = time.Duration(secs) * time.Second
	}
	*dst = d
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
