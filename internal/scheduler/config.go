package scheduler

import (
	"errors"
	"time"

	"github.com/smallbiznis/payflow/internal/config"
)

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

// Config controls scheduler intervals, timeouts and batch sizes.
type Config struct {
	DailyInterval      time.Duration
	WeeklyInterval     time.Duration
	RecoveryInterval   time.Duration
	JobTimeout         time.Duration
	LockTTL            time.Duration
	StaleProcessingAge time.Duration
	BatchSize          int
	EnabledJobs        []string
}

func DefaultConfig() Config {
	return Config{
		DailyInterval:      24 * time.Hour,
		WeeklyInterval:     7 * 24 * time.Hour,
		RecoveryInterval:   time.Hour,
		JobTimeout:         10 * time.Minute,
		StaleProcessingAge: 30 * time.Minute,
		BatchSize:          100,
	}
}

func ProvideConfig(cfg config.Config) Config {
	return Config{
		DailyInterval:      cfg.Scheduler.DailyInterval,
		WeeklyInterval:     cfg.Scheduler.WeeklyInterval,
		RecoveryInterval:   cfg.Scheduler.RecoveryInterval,
		JobTimeout:         cfg.Scheduler.JobTimeout,
		StaleProcessingAge: cfg.Scheduler.StaleProcessingAge,
		BatchSize:          cfg.Scheduler.BatchSize,
		EnabledJobs:        cfg.Scheduler.EnabledJobs,
	}.withDefaults()
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.DailyInterval <= 0 {
		c.DailyInterval = defaults.DailyInterval
	}
	if c.WeeklyInterval <= 0 {
		c.WeeklyInterval = defaults.WeeklyInterval
	}
	if c.RecoveryInterval <= 0 {
		c.RecoveryInterval = defaults.RecoveryInterval
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	// The lock must outlive a run that hits its soft timeout.
	if c.LockTTL <= c.JobTimeout {
		c.LockTTL = c.JobTimeout + time.Minute
	}
	if c.StaleProcessingAge <= 0 {
		c.StaleProcessingAge = defaults.StaleProcessingAge
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	return c
}
