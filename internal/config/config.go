package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration loaded from config.yaml.
type Config struct {
	HTTPAddr string `yaml:"http_addr"`
	DBPath   string `yaml:"db_path"`
	LogLevel string `yaml:"log_level"`

	// RipgrepPath overrides the ripgrep binary location. Empty means look it
	// up on PATH; scanning falls back to the in-process matcher if absent.
	RipgrepPath string `yaml:"ripgrep_path"`

	// BatchSize is the distinct-token threshold at which a scan flushes its
	// batch to the registry.
	BatchSize int `yaml:"batch_size"`
	// PollIntervalMS bounds how long a pause or cancellation goes unnoticed.
	PollIntervalMS int `yaml:"poll_interval_ms"`
	// EnumerateWorkers is the concurrency of the submission-time walk.
	EnumerateWorkers int `yaml:"enumerate_workers"`

	// ScanPaths are scanned automatically on the Schedule cron expression.
	// Scheduled scans are disabled when either is empty.
	ScanPaths []string `yaml:"scan_paths"`
	Schedule  string   `yaml:"schedule"`

	// JobRetentionDays is how long finished job records are kept before the
	// daily purge removes them. The email registry is never purged.
	JobRetentionDays int `yaml:"job_retention_days"`
}

// applyDefaults fills zero/empty fields with sensible defaults.
func (c *Config) applyDefaults() {
	if c.HTTPAddr == "" {
		c.HTTPAddr = ":8080"
	}
	if c.DBPath == "" {
		c.DBPath = "emailintel.db"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.BatchSize == 0 {
		c.BatchSize = 2000
	}
	if c.PollIntervalMS == 0 {
		c.PollIntervalMS = 500
	}
	if c.EnumerateWorkers == 0 {
		c.EnumerateWorkers = 4
	}
	if c.JobRetentionDays == 0 {
		c.JobRetentionDays = 30
	}
}

// Load reads and parses the YAML config file at path.
// If the file does not exist, Load returns a default Config so the server
// can start without a config file.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		var cfg Config
		cfg.applyDefaults()
		return &cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open config %q: %w", path, err)
	}
	defer f.Close()

	var cfg Config
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parse config %q: %w", path, err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}
