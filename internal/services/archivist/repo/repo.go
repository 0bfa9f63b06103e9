// Package repo provides the archivist storage repository implementation
package repo

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"hangar/internal/modkit/repokit"
	perr "hangar/internal/platform/errors"
	"hangar/internal/platform/store"
	arcdom "hangar/internal/services/archivist/domain"
)

// NewHybrid returns a binder that uses
// - Postgres for archive_tasks coordination and PG bound payloads
// - ClickHouse for the positions cold store
func NewHybrid(ch store.Clickhouse) repokit.Binder[arcdom.StorageRepo] {
	return &hybridBinder{ch: ch}
}

type hybridBinder struct{ ch store.Clickhouse }

func (b *hybridBinder) Bind(q repokit.Queryer) arcdom.StorageRepo {
	return &hybridStore{pg: q, ch: b.ch}
}

type hybridStore struct {
	pg repokit.Queryer
	ch store.Clickhouse
}

const taskCols = `
	id, job_type, source_table, archive_table,
	range_start, range_end, batch_id, status,
	total_records, archived_records,
	created_by, created_at, started_at, completed_at,
	COALESCE(error_message, ''), retry_count, cancel_requested, continued_from`

func scanTask(row store.Row) (arcdom.Task, error) {
	var t arcdom.Task
	err := row.Scan(
		&t.ID, &t.JobType, &t.SourceTable, &t.ArchiveTable,
		&t.RangeStart, &t.RangeEnd, &t.BatchID, &t.Status,
		&t.TotalRecords, &t.ArchivedRecords,
		&t.CreatedBy, &t.CreatedAt, &t.StartedAt, &t.CompletedAt,
		&t.ErrorMessage, &t.RetryCount, &t.CancelRequested, &t.ContinuedFrom,
	)
	if err != nil {
		return arcdom.Task{}, err
	}
	t.RangeStart = t.RangeStart.UTC()
	t.RangeEnd = t.RangeEnd.UTC()
	return t, nil
}

func noRows(err error) bool {
	return err != nil && strings.Contains(err.Error(), "no rows")
}

func (s *hybridStore) CreateTask(ctx context.Context, t *arcdom.Task) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	_, err := s.pg.Exec(ctx, `
		INSERT INTO archive_tasks
			(id, job_type, source_table, archive_table,
			 range_start, range_end, batch_id, status,
			 total_records, archived_records,
			 created_by, retry_count, continued_from)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		t.ID, t.JobType, t.SourceTable, t.ArchiveTable,
		t.RangeStart.UTC(), t.RangeEnd.UTC(), t.BatchID, arcdom.TaskPending,
		t.TotalRecords, t.ArchivedRecords,
		t.CreatedBy, t.RetryCount, t.ContinuedFrom,
	)
	if perr.IsDuplicateKey(err) {
		return perr.Conflictf("archive task overlaps an open task or reuses batch id %s", t.BatchID)
	}
	if err != nil {
		return perr.FromPostgres(err, "create archive task")
	}
	t.Status = arcdom.TaskPending
	return nil
}

func (s *hybridStore) TaskByID(ctx context.Context, id uuid.UUID) (arcdom.Task, error) {
	t, err := scanTask(s.pg.QueryRow(ctx, `SELECT `+taskCols+` FROM archive_tasks WHERE id = $1`, id))
	if noRows(err) {
		return arcdom.Task{}, perr.NotFoundf("archive task %s", id)
	}
	return t, err
}

func (s *hybridStore) TaskByBatchID(ctx context.Context, batchID string) (arcdom.Task, error) {
	t, err := scanTask(s.pg.QueryRow(ctx, `SELECT `+taskCols+` FROM archive_tasks WHERE batch_id = $1`, batchID))
	if noRows(err) {
		return arcdom.Task{}, perr.NotFoundf("archive task batch %s", batchID)
	}
	return t, err
}

func (s *hybridStore) TasksByStatus(ctx context.Context, st arcdom.TaskStatus, limit int) ([]arcdom.Task, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pg.Query(ctx, `
		SELECT `+taskCols+`
		FROM archive_tasks
		WHERE status = $1
		ORDER BY created_at
		LIMIT $2`, st, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []arcdom.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *hybridStore) OpenTaskExists(ctx context.Context, j arcdom.JobType) (bool, error) {
	var exists bool
	err := s.pg.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM archive_tasks
			WHERE job_type = $1 AND status IN ('pending','running')
		)`, j).Scan(&exists)
	return exists, err
}

func (s *hybridStore) LastCompletedRangeEnd(ctx context.Context, j arcdom.JobType) (time.Time, bool, error) {
	var end time.Time
	err := s.pg.QueryRow(ctx, `
		SELECT range_end FROM archive_tasks
		WHERE job_type = $1 AND status = 'completed'
		ORDER BY range_end DESC
		LIMIT 1`, j).Scan(&end)
	if noRows(err) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	return end.UTC(), true, nil
}

// NextBatchSeq allocates the next same-day sequence from the highest suffix
// in use, so purged or concurrently created rows never produce a duplicate id
func (s *hybridStore) NextBatchSeq(ctx context.Context, j arcdom.JobType, day time.Time) (int, error) {
	prefix := string(j) + "_BATCH_" + day.UTC().Format("20060102") + "_"
	var seq int
	err := s.pg.QueryRow(ctx, `
		SELECT COALESCE(MAX((substring(batch_id FROM char_length($2::text) + 1))::int), 0) + 1
		FROM archive_tasks
		WHERE job_type = $1 AND batch_id LIKE $2 || '%'`, j, prefix).Scan(&seq)
	return seq, err
}

func (s *hybridStore) ClaimNextPending(ctx context.Context) (arcdom.Task, bool, error) {
	t, err := scanTask(s.pg.QueryRow(ctx, `
		WITH next AS (
			SELECT id FROM archive_tasks
			WHERE status = 'pending'
			ORDER BY created_at
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		UPDATE archive_tasks at
		   SET status = 'running',
		       started_at = COALESCE(at.started_at, now())
		  FROM next
		 WHERE at.id = next.id
		RETURNING `+taskCols))
	if noRows(err) {
		return arcdom.Task{}, false, nil
	}
	if err != nil {
		return arcdom.Task{}, false, err
	}
	return t, true, nil
}

func (s *hybridStore) MarkRunning(ctx context.Context, id uuid.UUID) error {
	res, err := s.pg.Exec(ctx, `
		UPDATE archive_tasks
		   SET status = 'running', started_at = COALESCE(started_at, now())
		 WHERE id = $1 AND status = 'pending'`, id)
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		return perr.Conflictf("archive task %s is not pending", id)
	}
	return nil
}

func (s *hybridStore) MarkTotals(ctx context.Context, id uuid.UUID, total int64) error {
	_, err := s.pg.Exec(ctx, `
		UPDATE archive_tasks SET total_records = $2
		WHERE id = $1 AND status = 'running'`, id, total)
	return err
}

func (s *hybridStore) RecordProgress(ctx context.Context, id uuid.UUID, archived int64) error {
	_, err := s.pg.Exec(ctx, `
		UPDATE archive_tasks SET archived_records = $2
		WHERE id = $1 AND status = 'running' AND $2 <= total_records`, id, archived)
	return err
}

func (s *hybridStore) MarkCompleted(ctx context.Context, id uuid.UUID, archived int64) error {
	res, err := s.pg.Exec(ctx, `
		UPDATE archive_tasks
		   SET status = 'completed', archived_records = LEAST($2::bigint, total_records),
		       completed_at = now()
		 WHERE id = $1 AND status = 'running'`, id, archived)
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		return perr.Conflictf("archive task %s is not running", id)
	}
	return nil
}

func (s *hybridStore) MarkFailed(ctx context.Context, id uuid.UUID, archived int64, errText string) error {
	_, err := s.pg.Exec(ctx, `
		UPDATE archive_tasks
		   SET status = 'failed', archived_records = LEAST($2::bigint, total_records),
		       error_message = $3, completed_at = now()
		 WHERE id = $1 AND status IN ('pending','running')`, id, archived, errText)
	return err
}

func (s *hybridStore) MarkCancelled(ctx context.Context, id uuid.UUID, archived int64, reason string) error {
	res, err := s.pg.Exec(ctx, `
		UPDATE archive_tasks
		   SET status = 'cancelled', archived_records = LEAST($2::bigint, total_records),
		       error_message = NULLIF($3,''), completed_at = now()
		 WHERE id = $1 AND status IN ('pending','running')`, id, archived, reason)
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		return perr.Conflictf("archive task %s is already terminal", id)
	}
	return nil
}

func (s *hybridStore) RequestCancel(ctx context.Context, id uuid.UUID) error {
	res, err := s.pg.Exec(ctx, `
		UPDATE archive_tasks SET cancel_requested = true
		WHERE id = $1 AND status IN ('pending','running')`, id)
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		return perr.Conflictf("archive task %s is already terminal", id)
	}
	return nil
}

func (s *hybridStore) CancelRequested(ctx context.Context, id uuid.UUID) (bool, error) {
	var flag bool
	err := s.pg.QueryRow(ctx, `
		SELECT cancel_requested FROM archive_tasks WHERE id = $1`, id).Scan(&flag)
	if noRows(err) {
		return false, perr.NotFoundf("archive task %s", id)
	}
	return flag, err
}

func (s *hybridStore) PurgeTerminalTasks(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := s.pg.Exec(ctx, `
		DELETE FROM archive_tasks
		WHERE status IN ('completed','failed','cancelled')
		  AND completed_at < $1`, olderThan.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected(), nil
}
