// Package module wires up the archivist service as a modkit.Module
package module

import (
	"hangar/internal/modkit"
	modreg "hangar/internal/modkit/module"
	"hangar/internal/platform/metrics"

	arcdom "hangar/internal/services/archivist/domain"
	arcservice "hangar/internal/services/archivist/service"
)

// Ports exported by the archivist module
type Ports struct {
	Scheduler arcdom.SchedulerPort
	Executor  arcdom.ExecutorPort
	Compactor arcdom.CompactorPort
	Janitor   arcdom.JanitorPort

	// Daemon runs every loop until ctx ends
	Daemon *arcservice.Svc
}

// Module implements modkit.Module for archivist
type Module struct {
	deps  modkit.Deps
	ports Ports
}

// New constructs and wires the archivist module using deps.Cfg
func New(deps modkit.Deps, met *metrics.Archival) *Module {
	opts := FromConfig(deps.Cfg)

	svc := arcservice.New(deps, arcservice.Config{
		BatchSize:       opts.BatchSize,
		Workers:         opts.Workers,
		SafetyMargin:    opts.SafetyMargin,
		InitialLookback: opts.InitialLookback,
		TickEvery:       opts.TickEvery,
		DrainEvery:      opts.DrainEvery,
		CleanupEvery:    opts.CleanupEvery,
		TaskRetention:   opts.TaskRetention,
		TaskMaxRetries:  opts.TaskMaxRetries,
		RetryBaseMs:     opts.RetryBaseMs,
		MaxAttempts:     opts.MaxAttempts,
		MaxSpeedMS:      opts.MaxSpeedMS,
		EnableLeases:    opts.EnableLeases,
	})
	svc.Met = met

	m := &Module{deps: deps}
	m.ports = Ports{
		Scheduler: svc,
		Executor:  svc,
		Compactor: svc,
		Janitor:   svc,
		Daemon:    svc,
	}
	return m
}

// Name returns the module name
func (m *Module) Name() string { return "archivist" }

// Ports returns the module ports
func (m *Module) Ports() any { return m.ports }

// Register convenience: allow others to resolve our ports via registry
func Register(deps modkit.Deps, met *metrics.Archival) {
	modreg.Register("archivist", New(deps, met).Ports())
}
