// Package config loads engine configuration from YAML. All fields have
// working defaults so an empty document yields a usable single-process
// configuration on the in-memory store.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type (
	// Config holds the engine settings consumed by embedders.
	Config struct {
		// Worker configures the polling loop.
		Worker Worker `yaml:"worker"`
		// Mongo configures the durable store. Empty URI means the in-memory
		// store is used.
		Mongo Mongo `yaml:"mongo"`
		// Redis configures the distributed run lock and the Pulse lifecycle
		// sink. Empty address disables both.
		Redis Redis `yaml:"redis"`
	}

	// Worker holds polling loop settings.
	Worker struct {
		// Interval between polls. Defaults to 1s.
		Interval Duration `yaml:"interval"`
		// Batch bounds each poll. Defaults to 10.
		Batch int `yaml:"batch"`
	}

	// Mongo holds durable store settings.
	Mongo struct {
		// URI is the MongoDB connection string.
		URI string `yaml:"uri"`
		// Database names the target database. Required when URI is set.
		Database string `yaml:"database"`
	}

	// Redis holds lock and stream settings.
	Redis struct {
		// Addr is the Redis host:port.
		Addr string `yaml:"addr"`
		// LockLease bounds how long a run may hold a workflow lock.
		LockLease Duration `yaml:"lock_lease"`
		// PublishEvents enables the Pulse lifecycle sink.
		PublishEvents bool `yaml:"publish_events"`
	}

	// Duration wraps time.Duration so YAML documents can use Go duration
	// strings like "250ms" or "1h30m".
	Duration time.Duration
)

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Load reads and validates a YAML configuration file.
func Load(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return Parse(raw)
}

// Parse decodes and validates a YAML configuration document.
func Parse(raw []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Worker.Interval <= 0 {
		c.Worker.Interval = Duration(time.Second)
	}
	if c.Worker.Batch <= 0 {
		c.Worker.Batch = 10
	}
}

func (c *Config) validate() error {
	if c.Mongo.URI != "" && c.Mongo.Database == "" {
		return errors.New("mongo.database is required when mongo.uri is set")
	}
	if c.Redis.PublishEvents && c.Redis.Addr == "" {
		return errors.New("redis.addr is required when redis.publish_events is set")
	}
	return nil
}
