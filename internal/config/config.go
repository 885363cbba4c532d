// Package config loads service configuration from an optional YAML file
// layered under environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all runtime settings for the service.
type Config struct {
	ServerAddress string `yaml:"server_address"`
	Environment   string `yaml:"environment"`

	Store  StoreConfig  `yaml:"store"`
	Chat   ChatConfig   `yaml:"chat"`
	Hydrat HydrerConfig `yaml:"hydrator"`
}

// Duration wraps time.Duration so YAML values like "250ms" parse.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped standard library duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// StoreConfig configures the DynamoDB-backed key-value store.
type StoreConfig struct {
	TableName string `yaml:"table_name"`
	Region    string `yaml:"region"`

	// Endpoint points at a local cloud emulator when non-empty.
	Endpoint string `yaml:"endpoint"`

	MaxRetries int      `yaml:"max_retries"`
	BaseDelay  Duration `yaml:"base_delay"`
	MaxDelay   Duration `yaml:"max_delay"`
}

// ChatConfig configures the streaming chat bridge.
type ChatConfig struct {
	Namespace   string   `yaml:"namespace"`
	MaxAttempts int      `yaml:"max_attempts"`
	BaseDelay   Duration `yaml:"base_delay"`
}

// HydrerConfig configures read-time reference resolution.
type HydrerConfig struct {
	MaxInFlight int `yaml:"max_in_flight"`
}

// Load reads the optional config file named by CONFIG_FILE and applies
// environment variable overrides on top of the defaults.
func Load() (Config, error) {
	cfg := defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	applyEnv(&cfg)

	if cfg.Store.TableName == "" {
		return Config{}, fmt.Errorf("store table name must not be empty")
	}
	return cfg, nil
}

func defaults() Config {
	return Config{
		ServerAddress: ":8080",
		Environment:   "development",
		Store: StoreConfig{
			TableName:  "cloudantic-dev",
			Region:     "us-east-1",
			MaxRetries: 3,
			BaseDelay:  Duration(100 * time.Millisecond),
			MaxDelay:   Duration(5 * time.Second),
		},
		Chat: ChatConfig{
			Namespace:   "chat",
			MaxAttempts: 3,
			BaseDelay:   Duration(250 * time.Millisecond),
		},
		Hydrat: HydrerConfig{
			MaxInFlight: 8,
		},
	}
}

func applyEnv(cfg *Config) {
	if val := os.Getenv("SERVER_ADDRESS"); val != "" {
		cfg.ServerAddress = val
	}
	if val := os.Getenv("ENVIRONMENT"); val != "" {
		cfg.Environment = val
	}
	if val := os.Getenv("TABLE_NAME"); val != "" {
		cfg.Store.TableName = val
	}
	if val := os.Getenv("AWS_REGION"); val != "" {
		cfg.Store.Region = val
	}
	if val := os.Getenv("DYNAMODB_ENDPOINT"); val != "" {
		cfg.Store.Endpoint = val
	}
	if val := os.Getenv("STORE_MAX_RETRIES"); val != "" {
		if n, err := strconv.Atoi(val); err == nil && n > 0 {
			cfg.Store.MaxRetries = n
		}
	}
	if val := os.Getenv("CHAT_NAMESPACE"); val != "" {
		cfg.Chat.Namespace = val
	}
	if val := os.Getenv("HYDRATOR_MAX_IN_FLIGHT"); val != "" {
		if n, err := strconv.Atoi(val); err == nil && n > 0 {
			cfg.Hydrat.MaxInFlight = n
		}
	}
}

// IsDevelopment reports whether the service runs against local emulators.
func (c Config) IsDevelopment() bool {
	return c.Environment == "development"
}
