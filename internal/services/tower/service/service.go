// Package service contains tower workflows
package service

import (
	"context"
	"sync"
	"time"

	"hangar/internal/modkit"
	"hangar/internal/modkit/repokit"
	"hangar/internal/platform/metrics"
	ptime "hangar/internal/platform/time"
	twrdom "hangar/internal/services/tower/domain"
	twrrepo "hangar/internal/services/tower/repo"
)

// Service defines the tower service contract
type Service interface {
	twrdom.QueuePort
	twrdom.DispatcherPort
}

// Config carries runtime knobs for dispatch and sweeps
type Config struct {
	// Concurrency bounds simultaneous per drone dispatches
	Concurrency int

	// TimeoutAfter fails running commands whose device ack never arrived
	TimeoutAfter time.Duration

	// ExecTimeout bounds one device round trip
	ExecTimeout time.Duration

	DispatchEvery time.Duration
	SweepEvery    time.Duration
	CleanupEvery  time.Duration

	// DefaultMaxRetries applies when an enqueue leaves max retries unset
	DefaultMaxRetries int

	// Retention bounds how long terminal command rows are kept
	Retention time.Duration
}

func withDefaults(cfg Config) Config {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.TimeoutAfter <= 0 {
		cfg.TimeoutAfter = 30 * time.Minute
	}
	if cfg.ExecTimeout <= 0 {
		cfg.ExecTimeout = 30 * time.Second
	}
	if cfg.DispatchEvery <= 0 {
		cfg.DispatchEvery = 500 * time.Millisecond
	}
	if cfg.SweepEvery <= 0 {
		cfg.SweepEvery = time.Minute
	}
	if cfg.CleanupEvery <= 0 {
		cfg.CleanupEvery = 24 * time.Hour
	}
	if cfg.DefaultMaxRetries <= 0 {
		cfg.DefaultMaxRetries = 3
	}
	if cfg.Retention <= 0 {
		cfg.Retention = 30 * 24 * time.Hour
	}
	return cfg
}

// deviceLocks hands out one mutex per drone id.
// The mutex serializes only the promotion decision, never device execution
type deviceLocks struct {
	mu sync.Mutex
	m  map[int64]*sync.Mutex
}

func (d *deviceLocks) get(droneID int64) *sync.Mutex {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.m == nil {
		d.m = make(map[int64]*sync.Mutex)
	}
	l, ok := d.m[droneID]
	if !ok {
		l = &sync.Mutex{}
		d.m[droneID] = l
	}
	return l
}

// Svc implements the tower service
type Svc struct {
	DB     repokit.TxRunner
	Binder repokit.Binder[twrdom.StorageRepo]
	Cfg    Config

	// Link is the device transport collaborator
	Link twrdom.DeviceLink

	// Clock is injectable for deterministic sweeps in tests
	Clock ptime.Clock

	// Met is optional; nil disables instrumentation
	Met *metrics.Dispatch

	deps  modkit.Deps
	locks deviceLocks
}

// New constructs a tower service
func New(deps modkit.Deps, cfg Config, link twrdom.DeviceLink) *Svc {
	if deps.PG == nil {
		panic("tower.Service requires a non nil TxRunner")
	}
	if link == nil {
		panic("tower.Service requires a device link")
	}
	return &Svc{
		DB:     deps.PG,
		Binder: twrrepo.NewPG(),
		Cfg:    withDefaults(cfg),
		Link:   link,
		Clock:  ptime.Real{},
		deps:   deps,
	}
}

// Run drives the dispatch loop, the timeout sweep and retention until ctx ends
func (s *Svc) Run(ctx context.Context) error {
	errCh := make(chan error, 3)
	go func() { errCh <- s.runDispatchLoop(ctx) }()
	go func() { errCh <- s.runSweepLoop(ctx) }()
	go func() { errCh <- s.runCleanupLoop(ctx) }()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

func (s *Svc) runDispatchLoop(ctx context.Context) error {
	t := time.NewTicker(s.Cfg.DispatchEvery)
	defer t.Stop()

	sem := make(chan struct{}, s.Cfg.Concurrency)
	var wg sync.WaitGroup

	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			return ctx.Err()
		case <-t.C:
			drones, err := s.repo().DronesWithPending(ctx, s.Clock.Now(), 256)
			if err != nil {
				s.deps.Log.Warn().Err(err).Msg("tower: pending scan failed")
				continue
			}
			for _, id := range drones {
				sem <- struct{}{}
				wg.Add(1)
				go func(droneID int64) {
					defer wg.Done()
					defer func() { <-sem }()
					if err := s.DispatchDrone(ctx, droneID); err != nil {
						s.deps.Log.Warn().Int64("drone_id", droneID).Err(err).Msg("tower: dispatch failed")
					}
				}(id)
			}
			wg.Wait()
		}
	}
}

func (s *Svc) runSweepLoop(ctx context.Context) error {
	t := time.NewTicker(s.Cfg.SweepEvery)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			if _, err := s.HandleTimeouts(ctx, s.Cfg.TimeoutAfter); err != nil {
				s.deps.Log.Warn().Err(err).Msg("tower: timeout sweep failed")
			}
		}
	}
}

func (s *Svc) runCleanupLoop(ctx context.Context) error {
	t := time.NewTicker(s.Cfg.CleanupEvery)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			cutoff := s.Clock.Now().UTC().Add(-s.Cfg.Retention)
			if _, err := s.repo().PurgeTerminalCommands(ctx, cutoff); err != nil {
				s.deps.Log.Warn().Err(err).Msg("tower: command retention sweep failed")
			}
		}
	}
}

func (s *Svc) repo() twrdom.StorageRepo { return s.Binder.Bind(s.DB) }
