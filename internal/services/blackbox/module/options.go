package module

import (
	"time"

	"hangar/internal/platform/config"
)

// Options for the blackbox module
type Options struct {
	Retention time.Duration
}

// FromConfig fills options from environment
// CORE_BLACKBOX_RETENTION (default 2160h = 90d) bounds observation age
func FromConfig(cfg config.Conf) Options {
	b := cfg.Prefix("CORE_BLACKBOX_")
	return Options{
		Retention: b.MayDuration("RETENTION", 90*24*time.Hour),
	}
}
