package module

import (
	"time"

	"hangar/internal/platform/config"
)

// Options for the archivist module
type Options struct {
	BatchSize       int
	Workers         int
	SafetyMargin    time.Duration
	InitialLookback time.Duration
	TickEvery       time.Duration
	DrainEvery      time.Duration
	CleanupEvery    time.Duration
	TaskRetention   time.Duration
	TaskMaxRetries  int
	RetryBaseMs     int
	MaxAttempts     int
	MaxSpeedMS      float64
	EnableLeases    bool
}

// FromConfig fills options from environment
// CORE_ARCHIVIST_BATCH_SIZE (default 1000) rows per committed batch
// CORE_ARCHIVIST_WORKERS (default 2) parallel tasks; sequential within one
// CORE_ARCHIVIST_SAFETY_MARGIN (default 1h) keeps range end behind live writes
// CORE_ARCHIVIST_LEASES (default true) enables the advisory lock around scheduling
func FromConfig(cfg config.Conf) Options {
	a := cfg.Prefix("CORE_ARCHIVIST_")
	return Options{
		BatchSize:       a.MayInt("BATCH_SIZE", 1000),
		Workers:         a.MayInt("WORKERS", 2),
		SafetyMargin:    a.MayDuration("SAFETY_MARGIN", time.Hour),
		InitialLookback: a.MayDuration("INITIAL_LOOKBACK", 30*24*time.Hour),
		TickEvery:       a.MayDuration("TICK_EVERY", time.Minute),
		DrainEvery:      a.MayDuration("DRAIN_EVERY", 2*time.Second),
		CleanupEvery:    a.MayDuration("CLEANUP_EVERY", 24*time.Hour),
		TaskRetention:   a.MayDuration("TASK_RETENTION", 30*24*time.Hour),
		TaskMaxRetries:  a.MayInt("TASK_MAX_RETRIES", 3),
		RetryBaseMs:     a.MayInt("RETRY_BASE_MS", 500),
		MaxAttempts:     a.MayInt("MAX_ATTEMPTS", 5),
		MaxSpeedMS:      a.MayFloat("MAX_SPEED_MS", 80),
		EnableLeases:    a.MayBool("LEASES", true),
	}
}
