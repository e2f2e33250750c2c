package scheduler

import (
	"time"

	"github.com/smallbiznis/obligo/internal/config"
)

const (
	JobContractHorizon    = "contract_horizon"
	JobRecurringTemplates = "recurring_templates"
	JobOrphanSweep        = "orphan_sweep"
	JobCommissionSync     = "commission_sync"
)

// Config controls scheduler intervals and batch sizes.
type Config struct {
	RunInterval time.Duration
	JobTimeout  time.Duration
	BatchSize   int
	EnabledJobs []string
	SweepDryRun bool
}

func DefaultConfig() Config {
	return Config{
		RunInterval: time.Hour,
		JobTimeout:  5 * time.Minute,
		BatchSize:   100,
	}
}

func ProvideConfig(cfg config.Config) Config {
	return Config{
		RunInterval: cfg.Scheduler.RunInterval,
		JobTimeout:  cfg.Scheduler.JobTimeout,
		EnabledJobs: cfg.Scheduler.EnabledJobs,
		SweepDryRun: cfg.Scheduler.SweepDryRun,
	}.withDefaults()
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	return c
}
