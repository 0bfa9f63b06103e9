package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"hangar/internal/modkit/repokit"
	perr "hangar/internal/platform/errors"
	"hangar/internal/platform/logger"
	arcdom "hangar/internal/services/archivist/domain"
)

// Run drains pending tasks oldest first through the bounded worker pool.
// Tasks run in parallel with each other; one task is always sequential inside
func (s *Svc) Run(ctx context.Context) error {
	sem := make(chan struct{}, s.Cfg.Workers)
	var wg sync.WaitGroup

	for ctx.Err() == nil {
		var t arcdom.Task
		var ok bool
		err := s.DB.Tx(ctx, func(q repokit.Queryer) error {
			tt, claimed, e := s.Binder.Bind(q).ClaimNextPending(ctx)
			t, ok = tt, claimed
			return e
		})
		if err != nil {
			wg.Wait()
			return err
		}
		if !ok {
			break
		}

		sem <- struct{}{}
		wg.Add(1)
		go func(task arcdom.Task) {
			defer wg.Done()
			defer func() { <-sem }()
			if err := s.executeClaimed(ctx, task); err != nil {
				logger.C(ctx).Error().Str("batch_id", task.BatchID).Err(err).Msg("archivist: task failed")
			}
		}(t)
	}

	wg.Wait()
	return nil
}

// ExecuteTask runs one task to a terminal state, resuming a running one
func (s *Svc) ExecuteTask(ctx context.Context, id uuid.UUID) error {
	r := s.repo()
	t, err := r.TaskByID(ctx, id)
	if err != nil {
		return err
	}
	switch t.Status {
	case arcdom.TaskPending:
		if err := r.MarkRunning(ctx, t.ID); err != nil {
			return err
		}
		t.Status = arcdom.TaskRunning
	case arcdom.TaskRunning:
		// resume after a crash; committed batches are already gone from the source
	default:
		return perr.Conflictf("archive task %s is %s, not runnable", id, t.Status)
	}
	return s.executeClaimed(ctx, t)
}

// executeClaimed owns a running task until it reaches a terminal state.
// Ordering per batch is copy, verify, delete, persist progress; a crash
// between copy and delete duplicates rows, it never loses them
func (s *Svc) executeClaimed(ctx context.Context, t arcdom.Task) error {
	ctx = logger.WithJob(ctx, t.BatchID)
	l := logger.C(ctx).With().Str("mod", "archivist").Str("job_type", string(t.JobType)).Logger()
	l.Info().Int64("archived", t.ArchivedRecords).Msg("archivist: task start")

	if s.Met != nil {
		s.Met.TasksStarted.Inc()
	}

	r := s.repo()

	total := t.TotalRecords
	if total == 0 {
		var err error
		if err = s.withRetry(ctx, func() error {
			var e error
			total, e = r.CountSource(ctx, t)
			return e
		}); err != nil {
			return s.failTask(ctx, t, t.ArchivedRecords, err)
		}
		if err = r.MarkTotals(ctx, t.ID, total); err != nil {
			return s.failTask(ctx, t, t.ArchivedRecords, err)
		}
	}

	archived := t.ArchivedRecords
	started := time.Now()

	for {
		if ctx.Err() != nil {
			return s.failTask(ctx, t, archived, ctx.Err())
		}

		var wantCancel bool
		if err := s.withRetry(ctx, func() error {
			var e error
			wantCancel, e = r.CancelRequested(ctx, t.ID)
			return e
		}); err != nil {
			return s.failTask(ctx, t, archived, err)
		}
		if wantCancel {
			if err := r.MarkCancelled(ctx, t.ID, archived, "cancel requested"); err != nil {
				return err
			}
			if s.Met != nil {
				s.Met.TasksCancelled.Inc()
			}
			l.Info().Int64("archived", archived).Msg("archivist: task cancelled at batch boundary")
			return nil
		}

		batchStart := time.Now()

		var n int64
		var lo, hi arcdom.Cursor
		if err := s.withRetry(ctx, func() error {
			var e error
			n, lo, hi, e = r.CopyBatch(ctx, t, s.Cfg.BatchSize)
			return e
		}); err != nil {
			return s.failTask(ctx, t, archived, err)
		}

		if n == 0 {
			if err := r.MarkCompleted(ctx, t.ID, archived); err != nil {
				return err
			}
			if s.Met != nil {
				s.Met.TasksCompleted.Inc()
			}
			l.Info().
				Int64("archived", archived).
				Int64("total", total).
				Dur("took", time.Since(started)).
				Msg("archivist: task completed")
			return nil
		}

		if err := s.withRetry(ctx, func() error {
			return r.VerifyBatch(ctx, t, lo, hi, n)
		}); err != nil {
			return s.failTask(ctx, t, archived, err)
		}

		if err := s.withRetry(ctx, func() error {
			_, e := r.DeleteBatch(ctx, t, lo, hi)
			return e
		}); err != nil {
			return s.failTask(ctx, t, archived, err)
		}

		archived += n
		if err := s.withRetry(ctx, func() error {
			return r.RecordProgress(ctx, t.ID, archived)
		}); err != nil {
			return s.failTask(ctx, t, archived, err)
		}

		if s.Met != nil {
			s.Met.BatchesCommitted.Inc()
			s.Met.RowsArchived.Add(float64(n))
			s.Met.BatchSeconds.Observe(time.Since(batchStart).Seconds())
		}
	}
}

// RetryTask creates a continuation task for a failed one.
// Committed batches were deleted from the source already, so the continuation
// resumes from the failed task's committed boundary without a stored cursor
func (s *Svc) RetryTask(ctx context.Context, id uuid.UUID) (arcdom.Task, error) {
	r := s.repo()
	t, err := r.TaskByID(ctx, id)
	if err != nil {
		return arcdom.Task{}, err
	}
	if t.Status != arcdom.TaskFailed {
		return arcdom.Task{}, perr.Conflictf("archive task %s is %s, only failed tasks retry", id, t.Status)
	}
	if t.RetryCount >= s.Cfg.TaskMaxRetries {
		return arcdom.Task{}, perr.Conflictf("archive task %s exhausted its retry budget of %d", id, s.Cfg.TaskMaxRetries)
	}

	seq, err := r.NextBatchSeq(ctx, t.JobType, t.RangeEnd)
	if err != nil {
		return arcdom.Task{}, err
	}

	src, dst := t.JobType.Tables()
	nt := arcdom.Task{
		JobType:       t.JobType,
		SourceTable:   src,
		ArchiveTable:  dst,
		RangeStart:    t.RangeStart,
		RangeEnd:      t.RangeEnd,
		BatchID:       arcdom.BatchID(t.JobType, t.RangeEnd, seq),
		CreatedBy:     t.CreatedBy,
		RetryCount:    t.RetryCount + 1,
		ContinuedFrom: &t.ID,
	}
	if err := repokit.WithTx(ctx, s.DB, func(q repokit.Queryer) error {
		return s.Binder.Bind(q).CreateTask(ctx, &nt)
	}); err != nil {
		return arcdom.Task{}, err
	}

	logger.C(ctx).Info().
		Str("batch_id", nt.BatchID).
		Str("continued_from", t.BatchID).
		Int("retry_count", nt.RetryCount).
		Msg("archivist: continuation task created")
	return nt, nil
}

// RequestCancel stops a pending task immediately or asks a running one to
// stop at the next batch boundary
func (s *Svc) RequestCancel(ctx context.Context, id uuid.UUID, reason string) error {
	r := s.repo()
	t, err := r.TaskByID(ctx, id)
	if err != nil {
		return err
	}
	switch t.Status {
	case arcdom.TaskPending:
		if err := r.MarkCancelled(ctx, t.ID, t.ArchivedRecords, reason); err != nil {
			return err
		}
		if s.Met != nil {
			s.Met.TasksCancelled.Inc()
		}
		return nil
	case arcdom.TaskRunning:
		return r.RequestCancel(ctx, t.ID)
	default:
		return perr.Conflictf("archive task %s is already terminal", id)
	}
}

func (s *Svc) failTask(ctx context.Context, t arcdom.Task, archived int64, cause error) error {
	if err := s.repo().MarkFailed(ctx, t.ID, archived, trimErr(cause)); err != nil {
		logger.C(ctx).Error().Str("batch_id", t.BatchID).Err(err).Msg("archivist: failed to mark task failed")
	}
	if s.Met != nil {
		s.Met.TasksFailed.Inc()
	}
	logger.C(ctx).Error().
		Str("batch_id", t.BatchID).
		Int64("archived", archived).
		Err(cause).
		Msg("archivist: task failed")
	return cause
}

func (s *Svc) withRetry(ctx context.Context, op func() error) error {
	var err error
	for attempt := 0; attempt < s.Cfg.MaxAttempts; attempt++ {
		if err = op(); err == nil {
			return nil
		}
		if !perr.Retryable(err) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoffFor(attempt, s.Cfg.RetryBaseMs)):
		}
	}
	return err
}

func trimErr(err error) string {
	const n = 500
	s := err.Error()
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func backoffFor(attempts int, baseMs int) time.Duration {
	if baseMs <= 0 {
		baseMs = 500
	}
	if attempts < 0 {
		attempts = 0
	}
	ms := min(int64(baseMs)<<uint(attempts), int64(10*time.Minute/time.Millisecond))
	return time.Duration(ms) * time.Millisecond
}
