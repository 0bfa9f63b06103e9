package service

import (
	"context"

	"github.com/google/uuid"

	"hangar/internal/modkit/repokit"
	perr "hangar/internal/platform/errors"
	"hangar/internal/platform/logger"
	"hangar/internal/platform/validate"
	twrdom "hangar/internal/services/tower/domain"
)

// Enqueue validates and inserts a pending command.
// An incompatible type against the running command rejects with a conflict
// before any store mutation
func (s *Svc) Enqueue(ctx context.Context, req twrdom.EnqueueRequest) (twrdom.Command, error) {
	if err := validate.Struct(req); err != nil {
		return twrdom.Command{}, err
	}
	ct, err := twrdom.ParseCommandType(req.CommandType)
	if err != nil {
		return twrdom.Command{}, err
	}

	ctx = logger.WithDrone(ctx, req.DroneID)
	r := s.repo()

	running, active, err := r.RunningCommand(ctx, req.DroneID)
	if err != nil {
		return twrdom.Command{}, err
	}
	if active && !twrdom.Compatible(running.Type, ct) {
		if s.Met != nil {
			s.Met.Conflicts.Inc()
		}
		return twrdom.Command{}, perr.Conflictf(
			"command %s conflicts with running %s on drone %d", ct, running.Type, req.DroneID)
	}

	maxRetries := req.MaxRetries
	if maxRetries == 0 {
		maxRetries = s.Cfg.DefaultMaxRetries
	}

	cmd := twrdom.Command{
		DroneID:     req.DroneID,
		Type:        ct,
		Parameters:  req.Parameters,
		Priority:    req.Priority,
		ScheduledAt: req.ScheduledAt,
		MaxRetries:  maxRetries,
	}
	if err := repokit.WithTx(ctx, s.DB, func(q repokit.Queryer) error {
		return s.Binder.Bind(q).InsertCommand(ctx, &cmd)
	}); err != nil {
		return twrdom.Command{}, err
	}

	if s.Met != nil {
		s.Met.Enqueued.Inc()
	}
	logger.C(ctx).Info().
		Str("command_type", string(ct)).
		Int("priority", cmd.Priority).
		Str("command_id", cmd.ID.String()).
		Msg("tower: command enqueued")
	return cmd, nil
}

// Next returns the minimum (priority, created_at) dispatchable command
func (s *Svc) Next(ctx context.Context, droneID int64) (twrdom.Command, bool, error) {
	if droneID <= 0 {
		return twrdom.Command{}, false, perr.InvalidArgf("drone id %d", droneID)
	}
	return s.repo().NextPending(ctx, droneID, s.Clock.Now())
}

// Cancel tombstones a pending command.
// Running commands finish their round trip or hit the timeout sweep
func (s *Svc) Cancel(ctx context.Context, id uuid.UUID, reason string) error {
	return s.repo().CancelPending(ctx, id, reason)
}

// RetryFailedCommand creates a fresh pending attempt with identical
// parameters while the retry budget allows it
func (s *Svc) RetryFailedCommand(ctx context.Context, id uuid.UUID) (twrdom.Command, error) {
	r := s.repo()
	c, err := r.CommandByID(ctx, id)
	if err != nil {
		return twrdom.Command{}, err
	}
	if c.Status != twrdom.CmdFailed {
		return twrdom.Command{}, perr.Conflictf("command %s is %s, only failed commands retry", id, c.Status)
	}
	if c.RetryCount >= c.MaxRetries {
		return twrdom.Command{}, perr.Conflictf("command %s exhausted its retry budget of %d", id, c.MaxRetries)
	}

	nc := twrdom.Command{
		DroneID:     c.DroneID,
		Type:        c.Type,
		Parameters:  c.Parameters,
		Priority:    c.Priority,
		RetryCount:  c.RetryCount + 1,
		MaxRetries:  c.MaxRetries,
		RetriedFrom: &c.ID,
	}
	if err := repokit.WithTx(ctx, s.DB, func(q repokit.Queryer) error {
		return s.Binder.Bind(q).InsertCommand(ctx, &nc)
	}); err != nil {
		return twrdom.Command{}, err
	}

	logger.C(logger.WithDrone(ctx, nc.DroneID)).Info().
		Str("command_id", nc.ID.String()).
		Str("retried_from", c.ID.String()).
		Int("retry_count", nc.RetryCount).
		Msg("tower: retry attempt enqueued")
	return nc, nil
}
