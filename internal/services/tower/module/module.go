// Package module wires up the tower service as a modkit.Module
package module

import (
	"hangar/internal/modkit"
	modreg "hangar/internal/modkit/module"
	"hangar/internal/platform/metrics"

	twrdom "hangar/internal/services/tower/domain"
	twrservice "hangar/internal/services/tower/service"
)

// Ports exported by the tower module
type Ports struct {
	Queue      twrdom.QueuePort
	Dispatcher twrdom.DispatcherPort
}

// Module implements modkit.Module for tower
type Module struct {
	deps  modkit.Deps
	ports Ports
}

// New constructs and wires the tower module using deps.Cfg
func New(deps modkit.Deps, link twrdom.DeviceLink, met *metrics.Dispatch) *Module {
	opts := FromConfig(deps.Cfg)

	svc := twrservice.New(deps, twrservice.Config{
		Concurrency:       opts.Concurrency,
		TimeoutAfter:      opts.TimeoutAfter,
		ExecTimeout:       opts.ExecTimeout,
		DispatchEvery:     opts.DispatchEvery,
		SweepEvery:        opts.SweepEvery,
		CleanupEvery:      opts.CleanupEvery,
		DefaultMaxRetries: opts.DefaultMaxRetries,
		Retention:         opts.Retention,
	}, link)
	svc.Met = met

	m := &Module{deps: deps}
	m.ports = Ports{Queue: svc, Dispatcher: svc}
	return m
}

// Name returns the module name
func (m *Module) Name() string { return "tower" }

// Ports returns the module ports
func (m *Module) Ports() any { return m.ports }

// Register convenience: allow others to resolve our ports via registry
func Register(deps modkit.Deps, link twrdom.DeviceLink, met *metrics.Dispatch) {
	modreg.Register("tower", New(deps, link, met).Ports())
}
