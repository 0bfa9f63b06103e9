// Package module wires up the blackbox service as a modkit.Module
package module

import (
	"hangar/internal/modkit"
	modreg "hangar/internal/modkit/module"

	bbdom "hangar/internal/services/blackbox/domain"
	bbservice "hangar/internal/services/blackbox/service"
)

// Ports exported by the blackbox module
type Ports struct {
	Recorder bbdom.RecorderPort
	Reader   bbdom.ReaderPort
	Janitor  bbdom.JanitorPort
}

// Module implements modkit.Module for blackbox
type Module struct {
	deps  modkit.Deps
	ports Ports
}

// New constructs and wires the blackbox module using deps.Cfg
func New(deps modkit.Deps) *Module {
	opts := FromConfig(deps.Cfg)

	svc := bbservice.New(deps, bbservice.Config{
		Retention: opts.Retention,
	})

	m := &Module{deps: deps}
	m.ports = Ports{Recorder: svc, Reader: svc, Janitor: svc}
	return m
}

// Name returns the module name
func (m *Module) Name() string { return "blackbox" }

// Ports returns the module ports
func (m *Module) Ports() any { return m.ports }

// Register convenience: allow others to resolve our ports via registry
func Register(deps modkit.Deps) {
	modreg.Register("blackbox", New(deps).Ports())
}
