package scheduler

import (
	"time"

	"github.com/smallbiznis/insightsync/internal/config"
)

// Config controls how often accounts are polled and how many refresh at once.
type Config struct {
	Enabled         bool
	RunInterval     time.Duration
	RefreshInterval time.Duration
	BatchSize       int
	Concurrency     int
	RunTimeout      time.Duration
	LockTTL         time.Duration
}

func DefaultConfig() Config {
	return Config{
		Enabled:         true,
		RunInterval:     time.Minute,
		RefreshInterval: 24 * time.Hour,
		BatchSize:       50,
		Concurrency:     4,
		RunTimeout:      30 * time.Minute,
		LockTTL:         30 * time.Minute,
	}
}

func ProvideConfig(cfg config.Config) Config {
	return Config{
		Enabled:         cfg.Scheduler.Enabled,
		RunInterval:     time.Duration(cfg.Scheduler.RunIntervalSeconds) * time.Second,
		RefreshInterval: time.Duration(cfg.Scheduler.RefreshIntervalHours) * time.Hour,
		BatchSize:       cfg.Scheduler.BatchSize,
		Concurrency:     cfg.Scheduler.Concurrency,
		RunTimeout:      time.Duration(cfg.Scheduler.RunTimeoutMinutes) * time.Minute,
		LockTTL:         time.Duration(cfg.Redis.RefreshLockTTLSeconds) * time.Second,
	}.withDefaults()
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.RefreshInterval <= 0 {
		c.RefreshInterval = defaults.RefreshInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	if c.Concurrency <= 0 {
		c.Concurrency = defaults.Concurrency
	}
	if c.RunTimeout <= 0 {
		c.RunTimeout = defaults.RunTimeout
	}
	if c.LockTTL <= 0 {
		c.LockTTL = defaults.LockTTL
	}
	return c
}
