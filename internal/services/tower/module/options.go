package module

import (
	"time"

	"hangar/internal/platform/config"
)

// Options for the tower module
type Options struct {
	Concurrency       int
	TimeoutAfter      time.Duration
	ExecTimeout       time.Duration
	DispatchEvery     time.Duration
	SweepEvery        time.Duration
	CleanupEvery      time.Duration
	DefaultMaxRetries int
	Retention         time.Duration
}

// FromConfig fills options from environment
// CORE_TOWER_CONCURRENCY (default 4) bounds simultaneous per drone dispatches
// CORE_TOWER_TIMEOUT (default 30m) fails running commands without an ack
// CORE_TOWER_EXEC_TIMEOUT (default 30s) bounds one device round trip
func FromConfig(cfg config.Conf) Options {
	t := cfg.Prefix("CORE_TOWER_")
	return Options{
		Concurrency:       t.MayInt("CONCURRENCY", 4),
		TimeoutAfter:      t.MayDuration("TIMEOUT", 30*time.Minute),
		ExecTimeout:       t.MayDuration("EXEC_TIMEOUT", 30*time.Second),
		DispatchEvery:     t.MayDuration("DISPATCH_EVERY", 500*time.Millisecond),
		SweepEvery:        t.MayDuration("SWEEP_EVERY", time.Minute),
		CleanupEvery:      t.MayDuration("CLEANUP_EVERY", 24*time.Hour),
		DefaultMaxRetries: t.MayInt("MAX_RETRIES", 3),
		Retention:         t.MayDuration("RETENTION", 30*24*time.Hour),
	}
}
