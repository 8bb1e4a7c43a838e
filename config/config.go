// Package config loads the server configuration from YAML, then applies
// LEDGERBOOK_* environment overrides and validates the result.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"ledgerbook/domain/account"
)

type Config struct {
	// Root is the address allowed to mint the friend capability and host
	// markets.
	Root string `yaml:"root"`

	Store struct {
		Dir                string        `yaml:"dir"`
		// CheckpointDir enables periodic store checkpoints when set.
		CheckpointDir      string        `yaml:"checkpoint_dir"`
		CheckpointInterval time.Duration `yaml:"checkpoint_interval"`
	} `yaml:"store"`

	WAL struct {
		Dir             string        `yaml:"dir"`
		SegmentSize     int64         `yaml:"segment_size"`
		SegmentDuration time.Duration `yaml:"segment_duration"`
		SyncEveryWrite  bool          `yaml:"sync_every_write"`
	} `yaml:"wal"`

	// CompactionInterval is how often applied WAL segments and acked
	// events are dropped.
	CompactionInterval time.Duration `yaml:"compaction_interval"`

	GRPC struct {
		Addr string `yaml:"addr"`
	} `yaml:"grpc"`

	Kafka struct {
		// Driver is "kafka-go", "sarama" or "" to disable publishing.
		Driver     string        `yaml:"driver"`
		Brokers    []string      `yaml:"brokers"`
		Topic      string        `yaml:"topic"`
		Interval   time.Duration `yaml:"interval"`
		MaxRetries uint32        `yaml:"max_retries"`
	} `yaml:"kafka"`

	Log struct {
		Level       string `yaml:"level"`
		Development bool   `yaml:"development"`
	} `yaml:"log"`
}

// Default returns a config usable for local runs.
func Default() *Config {
	var c Config
	c.applyDefaults()
	return &c
}

// Load reads path. An empty path means defaults plus environment.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	if err := overrideWithEnv(&cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Root == "" {
		c.Root = "0x1"
	}
	if c.Store.Dir == "" {
		c.Store.Dir = "./data/store"
	}
	if c.Store.CheckpointInterval == 0 {
		c.Store.CheckpointInterval = 10 * time.Minute
	}
	if c.WAL.Dir == "" {
		c.WAL.Dir = "./data/wal_entry"
	}
	if c.WAL.SegmentSize == 0 {
		c.WAL.SegmentSize = 2 * 1024 * 1024
	}
	if c.WAL.SegmentDuration == 0 {
		c.WAL.SegmentDuration = time.Minute
	}
	if c.CompactionInterval == 0 {
		c.CompactionInterval = 30 * time.Second
	}
	if c.GRPC.Addr == "" {
		c.GRPC.Addr = ":50051"
	}
	if c.Kafka.Topic == "" {
		c.Kafka.Topic = "ledgerbook.events"
	}
	if c.Kafka.Interval == 0 {
		c.Kafka.Interval = 250 * time.Millisecond
	}
	if c.Kafka.MaxRetries == 0 {
		c.Kafka.MaxRetries = 5
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// RootAddress parses Root.
func (c *Config) RootAddress() (account.Address, error) {
	return account.ParseAddress(c.Root)
}

func (c *Config) Validate() error {
	root, err := c.RootAddress()
	if err != nil {
		return fmt.Errorf("root: %w", err)
	}
	if root.IsZero() {
		return errors.New("root must not be the zero address")
	}
	if c.WAL.SegmentSize < 0 {
		return errors.New("wal segment size must be positive")
	}
	switch c.Kafka.Driver {
	case "":
	case "kafka-go", "sarama":
		if len(c.Kafka.Brokers) == 0 {
			return fmt.Errorf("kafka driver %s needs at least one broker", c.Kafka.Driver)
		}
	default:
		return fmt.Errorf("unknown kafka driver %q", c.Kafka.Driver)
	}
	return nil
}

// overrideWithEnv applies LEDGERBOOK_* variables over the file values.
func overrideWithEnv(cfg *Config) error {
	if v := os.Getenv("LEDGERBOOK_ROOT"); v != "" {
		cfg.Root = v
	}
	if v := os.Getenv("LEDGERBOOK_STORE_DIR"); v != "" {
		cfg.Store.Dir = v
	}
	if v := os.Getenv("LEDGERBOOK_CHECKPOINT_DIR"); v != "" {
		cfg.Store.CheckpointDir = v
	}
	if v := os.Getenv("LEDGERBOOK_WAL_DIR"); v != "" {
		cfg.WAL.Dir = v
	}
	if v := os.Getenv("LEDGERBOOK_GRPC_ADDR"); v != "" {
		cfg.GRPC.Addr = v
	}
	if v := os.Getenv("LEDGERBOOK_KAFKA_DRIVER"); v != "" {
		cfg.Kafka.Driver = v
	}
	if v := os.Getenv("LEDGERBOOK_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("LEDGERBOOK_KAFKA_TOPIC"); v != "" {
		cfg.Kafka.Topic = v
	}
	if v := os.Getenv("LEDGERBOOK_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LEDGERBOOK_WAL_SYNC"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("LEDGERBOOK_WAL_SYNC: %w", err)
		}
		cfg.WAL.SyncEveryWrite = b
	}
	return nil
}
