package scheduler

import (
	"time"

	"github.com/Nikjeremic/uptiomio/internal/config"
)

// Config controls tick specs and job bounds.
type Config struct {
	Enabled          bool
	ReminderSpec     string
	OverdueSpec      string
	Location         *time.Location
	ReminderTimeout  time.Duration
	OverdueTimeout   time.Duration
	// LockTTL bounds the distributed job lock; it must outlive the job timeout.
	LockTTL          time.Duration
	DistributedLocks bool
}

func DefaultConfig() Config {
	return Config{
		Enabled:          true,
		ReminderSpec:     config.DefaultReminderSpec,
		OverdueSpec:      config.DefaultOverdueSpec,
		Location:         time.Local,
		ReminderTimeout:  4 * time.Minute,
		OverdueTimeout:   10 * time.Minute,
		LockTTL:          15 * time.Minute,
		DistributedLocks: true,
	}
}

func ProvideConfig(cfg config.Config) Config {
	return Config{
		Enabled:          cfg.Scheduler.Enabled,
		ReminderSpec:     cfg.Scheduler.ReminderSpec,
		OverdueSpec:      cfg.Scheduler.OverdueSpec,
		Location:         cfg.Scheduler.Location(),
		DistributedLocks: cfg.Scheduler.DistributedLocks,
	}.withDefaults()
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.ReminderSpec == "" {
		c.ReminderSpec = defaults.ReminderSpec
	}
	if c.OverdueSpec == "" {
		c.OverdueSpec = defaults.OverdueSpec
	}
	if c.Location == nil {
		c.Location = defaults.Location
	}
	if c.ReminderTimeout <= 0 {
		c.ReminderTimeout = defaults.ReminderTimeout
	}
	if c.OverdueTimeout <= 0 {
		c.OverdueTimeout = defaults.OverdueTimeout
	}
	if c.LockTTL <= 0 {
		c.LockTTL = defaults.LockTTL
	}
	return c
}
