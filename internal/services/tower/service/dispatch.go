package service

import (
	"context"
	"time"

	"hangar/internal/platform/logger"
)

// DispatchDrone promotes and executes at most one command for the drone.
// The device mutex covers only the promotion decision; the device round trip
// runs outside it so other drones and enqueues are never blocked by a slow
// device
func (s *Svc) DispatchDrone(ctx context.Context, droneID int64) error {
	ctx = logger.WithDrone(ctx, droneID)
	r := s.repo()

	lock := s.locks.get(droneID)
	lock.Lock()
	cmd, ok, err := r.NextPending(ctx, droneID, s.Clock.Now())
	if err != nil || !ok {
		lock.Unlock()
		return err
	}
	promoted, err := r.PromoteToRunning(ctx, cmd.ID, droneID, s.Clock.Now())
	lock.Unlock()
	if err != nil {
		return err
	}
	if !promoted {
		// another command is still running for this drone
		logger.C(ctx).Debug().Str("command_id", cmd.ID.String()).Msg("tower: promotion skipped")
		return nil
	}

	if s.Met != nil {
		s.Met.Dispatched.Inc()
	}

	execCtx, cancel := context.WithTimeout(ctx, s.Cfg.ExecTimeout)
	started := time.Now()
	ack, execErr := s.Link.Execute(execCtx, cmd)
	cancel()
	if s.Met != nil {
		s.Met.ExecSeconds.Observe(time.Since(started).Seconds())
	}

	switch {
	case execErr != nil:
		if s.Met != nil {
			s.Met.Failed.Inc()
		}
		logger.C(ctx).Warn().Str("command_id", cmd.ID.String()).Err(execErr).Msg("tower: device execution failed")
		return r.MarkFailed(ctx, cmd.ID, trimErr(execErr))
	case !ack.OK:
		if s.Met != nil {
			s.Met.Failed.Inc()
		}
		logger.C(ctx).Warn().
			Str("command_id", cmd.ID.String()).
			Str("detail", ack.Detail).
			Msg("tower: device nacked command")
		return r.MarkFailed(ctx, cmd.ID, ack.Detail)
	default:
		if s.Met != nil {
			s.Met.Completed.Inc()
		}
		logger.C(ctx).Info().
			Str("command_id", cmd.ID.String()).
			Str("command_type", string(cmd.Type)).
			Dur("took", time.Since(started)).
			Msg("tower: command completed")
		return r.MarkCompleted(ctx, cmd.ID)
	}
}

// HandleTimeouts fails running commands whose execution started before the
// threshold. This is the liveness valve that frees a drone when an ack never
// arrives
func (s *Svc) HandleTimeouts(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := s.Clock.Now().UTC().Add(-olderThan)
	n, err := s.repo().TimeoutRunning(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		if s.Met != nil {
			s.Met.TimedOut.Add(float64(n))
		}
		logger.C(ctx).Warn().
			Int64("commands", n).
			Time("cutoff", cutoff).
			Msg("tower: running commands timed out")
	}
	return n, nil
}

func trimErr(err error) string {
	const n = 500
	s := err.Error()
	if len(s) <= n {
		return s
	}
	return s[:n]
}
