package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	AppEnv   string `yaml:"app_env"`
	HTTPAddr string `yaml:"http_addr"`
	DataDir  string `yaml:"data_dir"`

	Concurrency        int `yaml:"concurrency"`
	PollIntervalMs     int `yaml:"poll_interval_ms"`
	StableForMs        int `yaml:"stable_for_ms"`
	MaxPostLoadDelayMs int `yaml:"max_post_load_delay_ms"`
	ShutdownGraceMs    int `yaml:"shutdown_grace_ms"`
}

func getenv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func getenvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

// Load builds the configuration from an optional YAML file (CONFIG_FILE)
// overlaid with environment variables. Environment always wins.
func Load() Config {
	cfg := Config{
		AppEnv:             "development",
		HTTPAddr:           ":8081",
		DataDir:            "./data",
		Concurrency:        2,
		PollIntervalMs:     500,
		StableForMs:        300,
		MaxPostLoadDelayMs: 30000,
		ShutdownGraceMs:    60000,
	}

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			panic(fmt.Errorf("read config file %s: %w", path, err))
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			panic(fmt.Errorf("parse config file %s: %w", path, err))
		}
	}

	cfg.AppEnv = getenv("APP_ENV", cfg.AppEnv)
	cfg.HTTPAddr = getenv("HTTP_ADDR", cfg.HTTPAddr)
	cfg.DataDir = getenv("DATA_DIR", cfg.DataDir)
	cfg.Concurrency = getenvInt("CONCURRENCY", cfg.Concurrency)
	cfg.PollIntervalMs = getenvInt("POLL_INTERVAL_MS", cfg.PollIntervalMs)
	cfg.StableForMs = getenvInt("STABLE_FOR_MS", cfg.StableForMs)
	cfg.MaxPostLoadDelayMs = getenvInt("MAX_POST_LOAD_DELAY_MS", cfg.MaxPostLoadDelayMs)
	cfg.ShutdownGraceMs = getenvInt("SHUTDOWN_GRACE_MS", cfg.ShutdownGraceMs)

	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	return cfg
}

func (c Config) InboxDir() string      { return filepath.Join(c.DataDir, "inbox") }
func (c Config) ProcessingDir() string { return filepath.Join(c.DataDir, "processing") }
func (c Config) OutputDir() string     { return filepath.Join(c.DataDir, "output") }

func (c Config) PollInterval() time.Duration  { return time.Duration(c.PollIntervalMs) * time.Millisecond }
func (c Config) StableFor() time.Duration     { return time.Duration(c.StableForMs) * time.Millisecond }
func (c Config) ShutdownGrace() time.Duration { return time.Duration(c.ShutdownGraceMs) * time.Millisecond }
func (c Config) MaxPostLoadDelay() time.Duration {
	return time.Duration(c.MaxPostLoadDelayMs) * time.Millisecond
}
