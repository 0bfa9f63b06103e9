// Package service contains archivist workflows
package service

import (
	"context"
	"time"

	"hangar/internal/modkit"
	"hangar/internal/modkit/repokit"
	"hangar/internal/platform/metrics"
	ptime "hangar/internal/platform/time"
	arcdom "hangar/internal/services/archivist/domain"
	"hangar/internal/services/archivist/guardrails"
	arcrepo "hangar/internal/services/archivist/repo"
)

// Service defines the archivist service contract
type Service interface {
	arcdom.SchedulerPort
	arcdom.ExecutorPort
	arcdom.CompactorPort
	arcdom.JanitorPort
}

// Config carries runtime knobs for scheduling and task execution
type Config struct {
	// BatchSize is the number of rows per committed archive batch
	BatchSize int

	// Workers bounds parallel task execution; one task is always sequential internally
	Workers int

	// SafetyMargin keeps the range end away from rows still being written
	SafetyMargin time.Duration

	// InitialLookback seeds range start when a job type has no completed task yet
	InitialLookback time.Duration

	TickEvery    time.Duration
	DrainEvery   time.Duration
	CleanupEvery time.Duration

	// TaskRetention bounds how long terminal task rows are kept
	TaskRetention time.Duration

	// TaskMaxRetries bounds continuation tasks per failed lineage
	TaskMaxRetries int

	// RetryBaseMs / MaxAttempts shape the in batch transient retry
	RetryBaseMs int
	MaxAttempts int

	// MaxSpeedMS is the compaction anomaly threshold in meters per second
	MaxSpeedMS float64

	// EnableLeases adds the cross process advisory lock around scheduling
	EnableLeases bool
}

func withDefaults(cfg Config) Config {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 1000
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.SafetyMargin <= 0 {
		cfg.SafetyMargin = time.Hour
	}
	if cfg.InitialLookback <= 0 {
		cfg.InitialLookback = 30 * 24 * time.Hour
	}
	if cfg.TickEvery <= 0 {
		cfg.TickEvery = time.Minute
	}
	if cfg.DrainEvery <= 0 {
		cfg.DrainEvery = 2 * time.Second
	}
	if cfg.CleanupEvery <= 0 {
		cfg.CleanupEvery = 24 * time.Hour
	}
	if cfg.TaskRetention <= 0 {
		cfg.TaskRetention = 30 * 24 * time.Hour
	}
	if cfg.TaskMaxRetries <= 0 {
		cfg.TaskMaxRetries = 3
	}
	if cfg.RetryBaseMs <= 0 {
		cfg.RetryBaseMs = 500
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.MaxSpeedMS <= 0 {
		cfg.MaxSpeedMS = 80
	}
	return cfg
}

// Svc implements the archivist service
type Svc struct {
	DB     repokit.TxRunner
	Binder repokit.Binder[arcdom.StorageRepo]
	Cfg    Config

	// Clock is injectable for deterministic range computation in tests
	Clock ptime.Clock

	// Detector flags anomalous consecutive samples during compaction
	Detector arcdom.AnomalyDetector

	// Met is optional; nil disables instrumentation
	Met *metrics.Archival

	// Lease(ctx, jobType, do) takes a job type scoped advisory lock around do
	Lease func(ctx context.Context, j arcdom.JobType, do func(context.Context) error) error

	deps     modkit.Deps
	tickBusy chan struct{}
}

// New constructs the archivist service
func New(deps modkit.Deps, cfg Config) *Svc {
	if deps.PG == nil {
		panic("archivist.Service requires a non nil TxRunner")
	}
	cfg = withDefaults(cfg)

	s := &Svc{
		DB:       deps.PG,
		Binder:   arcrepo.NewHybrid(deps.CH),
		Cfg:      cfg,
		Clock:    ptime.Real{},
		Detector: SpeedDetector{MaxSpeedMS: cfg.MaxSpeedMS},
		deps:     deps,
		tickBusy: make(chan struct{}, 1),
	}
	if cfg.EnableLeases {
		s.Lease = guardrails.MakeJobLease(deps)
	}
	return s
}

// RunDaemon drives the scheduler, executor and cleanup loops until ctx ends
func (s *Svc) RunDaemon(ctx context.Context) error {
	errCh := make(chan error, 3)
	go func() { errCh <- s.runSchedulerLoop(ctx) }()
	go func() { errCh <- s.runExecutorLoop(ctx) }()
	go func() { errCh <- s.runCleanupLoop(ctx) }()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

func (s *Svc) runSchedulerLoop(ctx context.Context) error {
	t := time.NewTicker(s.Cfg.TickEvery)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			if err := s.Tick(ctx); err != nil {
				return err
			}
		}
	}
}

func (s *Svc) runExecutorLoop(ctx context.Context) error {
	t := time.NewTicker(s.Cfg.DrainEvery)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			if err := s.Run(ctx); err != nil && ctx.Err() == nil {
				s.deps.Log.Warn().Err(err).Msg("archivist: executor drain failed")
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
			cutoff := s.Clock.Now().UTC().Add(-s.Cfg.TaskRetention)
			if _, err := s.PurgeTasks(ctx, cutoff); err != nil {
				s.deps.Log.Warn().Err(err).Msg("archivist: task retention sweep failed")
			}
		}
	}
}

// repo binds the storage repo against the shared pool for single statement work
func (s *Svc) repo() arcdom.StorageRepo { return s.Binder.Bind(s.DB) }
