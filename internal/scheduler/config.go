package scheduler

import (
	"fmt"
	"strings"
	"time"

	"github.com/smallbiznis/crmsync/internal/config"
)

const (
	JobFullSync  = "full_sync"
	JobUsageSync = "usage_sync"
)

// Config controls job cadence and the optional run lock.
type Config struct {
	Enabled           bool
	FullSyncInterval  time.Duration
	FullSyncAt        string
	UsageSyncInterval time.Duration
	UsageSyncAt       string
	RunLockEnabled    bool
	RunLockTTL        time.Duration
}

func DefaultConfig() Config {
	return Config{
		Enabled:           true,
		FullSyncInterval:  24 * time.Hour,
		FullSyncAt:        "02:00",
		UsageSyncInterval: 6 * time.Hour,
		UsageSyncAt:       "00:00",
		RunLockTTL:        2 * time.Hour,
	}
}

func ProvideConfig(cfg config.Config) Config {
	return Config{
		Enabled:           cfg.Scheduler.Enabled,
		FullSyncInterval:  cfg.Scheduler.FullSyncInterval,
		FullSyncAt:        cfg.Scheduler.FullSyncAt,
		UsageSyncInterval: cfg.Scheduler.UsageSyncInterval,
		RunLockEnabled:    cfg.Sync.RunLockEnabled,
		RunLockTTL:        cfg.Sync.RunLockTTL,
	}.withDefaults()
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.FullSyncInterval <= 0 {
		c.FullSyncInterval = defaults.FullSyncInterval
	}
	if strings.TrimSpace(c.FullSyncAt) == "" {
		c.FullSyncAt = defaults.FullSyncAt
	}
	if c.UsageSyncInterval <= 0 {
		c.UsageSyncInterval = defaults.UsageSyncInterval
	}
	if strings.TrimSpace(c.UsageSyncAt) == "" {
		c.UsageSyncAt = defaults.UsageSyncAt
	}
	if c.RunLockTTL <= 0 {
		c.RunLockTTL = defaults.RunLockTTL
	}
	return c
}

// ParseTimeOfDay reads "HH:MM" as an offset from UTC midnight.
func ParseTimeOfDay(value string) (time.Duration, error) {
	parsed, err := time.Parse("15:04", strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTimeOfDay, value)
	}
	return time.Duration(parsed.Hour())*time.Hour + time.Duration(parsed.Minute())*time.Minute, nil
}
