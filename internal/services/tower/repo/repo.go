// Package repo provides the tower storage repository implementation
package repo

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"

	"hangar/internal/modkit/repokit"
	perr "hangar/internal/platform/errors"
	"hangar/internal/platform/store"
	twrdom "hangar/internal/services/tower/domain"
)

// NewPG returns a binder for the postgres backed command queue
func NewPG() repokit.Binder[twrdom.StorageRepo] {
	return repokit.BindFunc[twrdom.StorageRepo](func(q repokit.Queryer) twrdom.StorageRepo {
		return &pgStore{q: q}
	})
}

type pgStore struct {
	q repokit.Queryer
}

const cmdCols = `
	id, drone_id, command_type, parameters, priority, status,
	created_at, scheduled_at, executed_at, completed_at,
	retry_count, max_retries, COALESCE(error_message, ''), retried_from`

func scanCommand(row store.Row) (twrdom.Command, error) {
	var c twrdom.Command
	var params []byte
	err := row.Scan(
		&c.ID, &c.DroneID, &c.Type, &params, &c.Priority, &c.Status,
		&c.CreatedAt, &c.ScheduledAt, &c.ExecutedAt, &c.CompletedAt,
		&c.RetryCount, &c.MaxRetries, &c.ErrorMessage, &c.RetriedFrom,
	)
	if err != nil {
		return twrdom.Command{}, err
	}
	if len(params) > 0 {
		if err := json.Unmarshal(params, &c.Parameters); err != nil {
			return twrdom.Command{}, perr.Wrap(err, perr.ErrorCodeDB, "decode command parameters")
		}
	}
	return c, nil
}

func noRows(err error) bool {
	return err != nil && strings.Contains(err.Error(), "no rows")
}

func (s *pgStore) InsertCommand(ctx context.Context, c *twrdom.Command) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	params, err := json.Marshal(c.Parameters)
	if err != nil {
		return perr.Wrap(err, perr.ErrorCodeInvalidArgument, "encode command parameters")
	}
	_, err = s.q.Exec(ctx, `
		INSERT INTO drone_commands
			(id, drone_id, command_type, parameters, priority, status,
			 scheduled_at, retry_count, max_retries, retried_from)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		c.ID, c.DroneID, c.Type, params, c.Priority, twrdom.CmdPending,
		c.ScheduledAt, c.RetryCount, c.MaxRetries, c.RetriedFrom,
	)
	if err != nil {
		return perr.FromPostgres(err, "insert command")
	}
	c.Status = twrdom.CmdPending
	return nil
}

func (s *pgStore) CommandByID(ctx context.Context, id uuid.UUID) (twrdom.Command, error) {
	c, err := scanCommand(s.q.QueryRow(ctx, `SELECT `+cmdCols+` FROM drone_commands WHERE id = $1`, id))
	if noRows(err) {
		return twrdom.Command{}, perr.NotFoundf("command %s", id)
	}
	return c, err
}

func (s *pgStore) CommandsByStatus(ctx context.Context, st twrdom.CommandStatus, limit int) ([]twrdom.Command, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.q.Query(ctx, `
		SELECT `+cmdCols+`
		FROM drone_commands
		WHERE status = $1
		ORDER BY created_at
		LIMIT $2`, st, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []twrdom.Command
	for rows.Next() {
		c, err := scanCommand(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *pgStore) RunningCommand(ctx context.Context, droneID int64) (twrdom.Command, bool, error) {
	c, err := scanCommand(s.q.QueryRow(ctx, `
		SELECT `+cmdCols+`
		FROM drone_commands
		WHERE drone_id = $1 AND status = 'running'
		LIMIT 1`, droneID))
	if noRows(err) {
		return twrdom.Command{}, false, nil
	}
	if err != nil {
		return twrdom.Command{}, false, err
	}
	return c, true, nil
}

func (s *pgStore) NextPending(ctx context.Context, droneID int64, now time.Time) (twrdom.Command, bool, error) {
	c, err := scanCommand(s.q.QueryRow(ctx, `
		SELECT `+cmdCols+`
		FROM drone_commands
		WHERE drone_id = $1 AND status = 'pending'
		  AND (scheduled_at IS NULL OR scheduled_at <= $2)
		ORDER BY priority, created_at
		LIMIT 1`, droneID, now.UTC()))
	if noRows(err) {
		return twrdom.Command{}, false, nil
	}
	if err != nil {
		return twrdom.Command{}, false, err
	}
	return c, true, nil
}

func (s *pgStore) PromoteToRunning(ctx context.Context, id uuid.UUID, droneID int64, now time.Time) (bool, error) {
	// the NOT EXISTS re-check makes promotion safe even if another process
	// raced past the in process device mutex
	res, err := s.q.Exec(ctx, `
		UPDATE drone_commands
		   SET status = 'running', executed_at = $3
		 WHERE id = $1 AND status = 'pending'
		   AND NOT EXISTS (
				SELECT 1 FROM drone_commands
				WHERE drone_id = $2 AND status = 'running'
		   )`, id, droneID, now.UTC())
	if err != nil {
		return false, err
	}
	return res.RowsAffected() == 1, nil
}

func (s *pgStore) MarkCompleted(ctx context.Context, id uuid.UUID) error {
	res, err := s.q.Exec(ctx, `
		UPDATE drone_commands
		   SET status = 'completed', completed_at = now()
		 WHERE id = $1 AND status = 'running'`, id)
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		return perr.Conflictf("command %s is not running", id)
	}
	return nil
}

func (s *pgStore) MarkFailed(ctx context.Context, id uuid.UUID, errText string) error {
	res, err := s.q.Exec(ctx, `
		UPDATE drone_commands
		   SET status = 'failed', error_message = $2, completed_at = now()
		 WHERE id = $1 AND status = 'running'`, id, errText)
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		return perr.Conflictf("command %s is not running", id)
	}
	return nil
}

func (s *pgStore) CancelPending(ctx context.Context, id uuid.UUID, reason string) error {
	res, err := s.q.Exec(ctx, `
		UPDATE drone_commands
		   SET status = 'cancelled', error_message = NULLIF($2,''), completed_at = now()
		 WHERE id = $1 AND status = 'pending'`, id, reason)
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		return perr.Conflictf("command %s is not pending", id)
	}
	return nil
}

func (s *pgStore) TimeoutRunning(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.q.Exec(ctx, `
		UPDATE drone_commands
		   SET status = 'failed', error_message = 'timeout', completed_at = now()
		 WHERE status = 'running' AND executed_at < $1`, cutoff.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected(), nil
}

func (s *pgStore) DronesWithPending(ctx context.Context, now time.Time, limit int) ([]int64, error) {
	if limit <= 0 {
		limit = 256
	}
	rows, err := s.q.Query(ctx, `
		SELECT DISTINCT drone_id FROM drone_commands
		WHERE status = 'pending'
		  AND (scheduled_at IS NULL OR scheduled_at <= $1)
		ORDER BY drone_id
		LIMIT $2`, now.UTC(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *pgStore) PurgeTerminalCommands(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := s.q.Exec(ctx, `
		DELETE FROM drone_commands
		WHERE status IN ('completed','failed','cancelled')
		  AND completed_at < $1`, olderThan.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected(), nil
}
