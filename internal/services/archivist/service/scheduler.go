package service

import (
	"context"
	"errors"
	"time"

	"hangar/internal/modkit/repokit"
	perr "hangar/internal/platform/errors"
	"hangar/internal/platform/logger"
	arcdom "hangar/internal/services/archivist/domain"
	"hangar/internal/services/archivist/guardrails"
)

// ErrNothingToArchive means the computed range is empty for the job type
var ErrNothingToArchive = errors.New("archivist: nothing to archive yet")

// Tick runs one scheduling pass over every job type.
// A second overlapping tick returns immediately
func (s *Svc) Tick(ctx context.Context) error {
	select {
	case s.tickBusy <- struct{}{}:
	default:
		logger.C(ctx).Debug().Msg("archivist: tick already running; skip")
		return nil
	}
	defer func() { <-s.tickBusy }()

	for _, j := range arcdom.JobTypes() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		t, err := s.schedule(ctx, j, "scheduler")
		switch {
		case err == nil:
			logger.C(ctx).Info().
				Str("job_type", string(j)).
				Str("batch_id", t.BatchID).
				Time("range_start", t.RangeStart).
				Time("range_end", t.RangeEnd).
				Msg("archivist: task scheduled")
		case errors.Is(err, ErrNothingToArchive),
			errors.Is(err, guardrails.ErrLeaseHeld),
			perr.IsCode(err, perr.ErrorCodeConflict):
			logger.C(ctx).Debug().Str("job_type", string(j)).Err(err).Msg("archivist: tick skip")
		default:
			logger.C(ctx).Error().Str("job_type", string(j)).Err(err).Msg("archivist: tick scheduling failed")
		}
	}
	return nil
}

// TriggerArchive creates a task for one job type outside the cadence
func (s *Svc) TriggerArchive(ctx context.Context, j arcdom.JobType, requestedBy string) (arcdom.Task, error) {
	if !j.Valid() {
		return arcdom.Task{}, perr.InvalidArgf("unknown job type %q", j)
	}
	if requestedBy == "" {
		requestedBy = "manual"
	}
	t, err := s.schedule(ctx, j, requestedBy)
	if errors.Is(err, guardrails.ErrLeaseHeld) {
		return arcdom.Task{}, perr.Conflictf("job type %s is being scheduled elsewhere", j)
	}
	if errors.Is(err, ErrNothingToArchive) {
		return arcdom.Task{}, perr.Conflictf("job type %s has no rows past the safety margin", j)
	}
	return t, err
}

func (s *Svc) schedule(ctx context.Context, j arcdom.JobType, requestedBy string) (arcdom.Task, error) {
	var task arcdom.Task

	plan := func(ctx context.Context) error {
		r := s.repo()

		open, err := r.OpenTaskExists(ctx, j)
		if err != nil {
			return err
		}
		if open {
			return perr.Conflictf("job type %s already has an open task", j)
		}

		end := s.Clock.Now().UTC().Add(-s.Cfg.SafetyMargin).Truncate(time.Second)
		start, ok, err := r.LastCompletedRangeEnd(ctx, j)
		if err != nil {
			return err
		}
		if !ok {
			start = end.Add(-s.Cfg.InitialLookback)
		}
		if !start.Before(end) {
			return ErrNothingToArchive
		}

		seq, err := r.NextBatchSeq(ctx, j, end)
		if err != nil {
			return err
		}

		src, dst := j.Tables()
		task = arcdom.Task{
			JobType:      j,
			SourceTable:  src,
			ArchiveTable: dst,
			RangeStart:   start,
			RangeEnd:     end,
			BatchID:      arcdom.BatchID(j, end, seq),
			CreatedBy:    requestedBy,
		}
		return repokit.WithTx(ctx, s.DB, func(q repokit.Queryer) error {
			return s.Binder.Bind(q).CreateTask(ctx, &task)
		})
	}

	var err error
	if s.Lease != nil {
		err = s.Lease(ctx, j, plan)
	} else {
		err = plan(ctx)
	}
	if err != nil {
		return arcdom.Task{}, err
	}
	return task, nil
}
