// Package service contains blackbox workflows
package service

import (
	"context"
	"time"

	"hangar/internal/modkit"
	"hangar/internal/modkit/repokit"
	perr "hangar/internal/platform/errors"
	"hangar/internal/platform/logger"
	ptime "hangar/internal/platform/time"
	"hangar/internal/platform/validate"
	bbdom "hangar/internal/services/blackbox/domain"
	bbrepo "hangar/internal/services/blackbox/repo"
)

// Service defines the blackbox service contract
type Service interface {
	bbdom.RecorderPort
	bbdom.ReaderPort
	bbdom.JanitorPort
}

// Config carries runtime knobs for the status archive
type Config struct {
	// Retention bounds how long observations are kept
	Retention time.Duration
}

func withDefaults(cfg Config) Config {
	if cfg.Retention <= 0 {
		cfg.Retention = 90 * 24 * time.Hour
	}
	return cfg
}

// Svc implements the blackbox service
type Svc struct {
	DB     repokit.TxRunner
	Binder repokit.Binder[bbdom.StorageRepo]
	Cfg    Config

	// Clock is injectable for deterministic recorded_at stamps in tests
	Clock ptime.Clock

	deps modkit.Deps
}

// New constructs a blackbox service
func New(deps modkit.Deps, cfg Config) *Svc {
	if deps.PG == nil {
		panic("blackbox.Service requires a non nil TxRunner")
	}
	return &Svc{
		DB:     deps.PG,
		Binder: bbrepo.NewPG(),
		Cfg:    withDefaults(cfg),
		Clock:  ptime.Real{},
		deps:   deps,
	}
}

// RecordStatusChange validates, flags and appends one observation.
// Invalid transitions are written with transition_valid=false and a warning;
// the archive is evidence of device behavior, not a gate on it
func (s *Svc) RecordStatusChange(ctx context.Context, req bbdom.RecordRequest) (bbdom.StatusRecord, error) {
	if err := validate.Struct(req); err != nil {
		return bbdom.StatusRecord{}, err
	}
	next, err := bbdom.ParseStatus(req.Status)
	if err != nil {
		return bbdom.StatusRecord{}, err
	}
	var prev *bbdom.DroneStatus
	if req.PreviousStatus != nil {
		p, err := bbdom.ParseStatus(*req.PreviousStatus)
		if err != nil {
			return bbdom.StatusRecord{}, err
		}
		prev = &p
	}

	recordedAt := s.Clock.Now().UTC()
	if req.RecordedAt != nil {
		recordedAt = req.RecordedAt.UTC()
	}

	rec := bbdom.StatusRecord{
		DroneID:         req.DroneID,
		Status:          next,
		PreviousStatus:  prev,
		Reason:          req.Reason,
		RecordedAt:      recordedAt,
		CreatedBy:       req.CreatedBy,
		TransitionValid: bbdom.TransitionValid(prev, next),
	}
	if err := repokit.WithTx(ctx, s.DB, func(q repokit.Queryer) error {
		return s.Binder.Bind(q).Append(ctx, &rec)
	}); err != nil {
		return bbdom.StatusRecord{}, err
	}

	if !rec.TransitionValid {
		logger.C(logger.WithDrone(ctx, rec.DroneID)).Warn().
			Str("previous", string(*prev)).
			Str("status", string(next)).
			Str("reason", rec.Reason).
			Msg("blackbox: invalid status transition observed")
	}
	return rec, nil
}

// ByDrone lists recent observations for one drone
func (s *Svc) ByDrone(ctx context.Context, droneID int64, limit int) ([]bbdom.StatusRecord, error) {
	if droneID <= 0 {
		return nil, perr.InvalidArgf("drone id %d", droneID)
	}
	return s.repo().ByDrone(ctx, droneID, limit)
}

// InRange lists observations inside [from, to)
func (s *Svc) InRange(ctx context.Context, from, to time.Time, limit int) ([]bbdom.StatusRecord, error) {
	if !from.Before(to) {
		return nil, perr.Validationf("range start %s is not before end %s", from, to)
	}
	return s.repo().InRange(ctx, from, to, limit)
}

// ByStatus lists observations with one status
func (s *Svc) ByStatus(ctx context.Context, st bbdom.DroneStatus, limit int) ([]bbdom.StatusRecord, error) {
	if !st.Valid() {
		return nil, perr.InvalidArgf("unknown drone status %q", st)
	}
	return s.repo().ByStatus(ctx, st, limit)
}

// ByTransition lists observations for one (previous, next) pair
func (s *Svc) ByTransition(ctx context.Context, from, to bbdom.DroneStatus, limit int) ([]bbdom.StatusRecord, error) {
	if !from.Valid() || !to.Valid() {
		return nil, perr.InvalidArgf("unknown transition %q -> %q", from, to)
	}
	return s.repo().ByTransition(ctx, from, to, limit)
}

// Statistics aggregates counts per status and transition pair over [from, to)
func (s *Svc) Statistics(ctx context.Context, from, to time.Time) (bbdom.Stats, error) {
	if !from.Before(to) {
		return bbdom.Stats{}, perr.Validationf("range start %s is not before end %s", from, to)
	}
	return s.repo().Statistics(ctx, from, to)
}

// PurgeOlderThan deletes observations recorded before the cutoff
func (s *Svc) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	n, err := s.repo().PurgeOlderThan(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		logger.C(ctx).Info().
			Int64("purged", n).
			Time("cutoff", cutoff.UTC()).
			Msg("blackbox: aged observations purged")
	}
	return n, nil
}

func (s *Svc) repo() bbdom.StorageRepo { return s.Binder.Bind(s.DB) }
