package repo

import (
	"context"

	"github.com/google/uuid"

	perr "hangar/internal/platform/errors"
	arcdom "hangar/internal/services/archivist/domain"
)

// terminal command states are the only ones eligible for archival;
// pending and running rows still belong to the dispatcher
const terminalCmdStates = `('completed','failed','cancelled')`

func (s *hybridStore) CountSource(ctx context.Context, t arcdom.Task) (int64, error) {
	var n int64
	var err error
	switch t.JobType {
	case arcdom.JobPositions:
		err = s.pg.QueryRow(ctx, `
			SELECT count(*) FROM drone_positions
			WHERE recorded_at >= $1 AND recorded_at < $2`,
			t.RangeStart, t.RangeEnd).Scan(&n)
	case arcdom.JobCommands:
		err = s.pg.QueryRow(ctx, `
			SELECT count(*) FROM drone_commands
			WHERE created_at >= $1 AND created_at < $2
			  AND status IN `+terminalCmdStates,
			t.RangeStart, t.RangeEnd).Scan(&n)
	case arcdom.JobStatus:
		err = s.pg.QueryRow(ctx, `
			SELECT count(*) FROM drone_status_archive
			WHERE recorded_at >= $1 AND recorded_at < $2`,
			t.RangeStart, t.RangeEnd).Scan(&n)
	default:
		return 0, perr.InvalidArgf("unknown job type %q", t.JobType)
	}
	return n, err
}

func (s *hybridStore) CopyBatch(
	ctx context.Context,
	t arcdom.Task,
	limit int,
) (int64, arcdom.Cursor, arcdom.Cursor, error) {
	switch t.JobType {
	case arcdom.JobPositions:
		return s.copyPositionsBatch(ctx, t, limit)
	case arcdom.JobCommands:
		return s.copyKeyedBatch(ctx, t, limit, `
			SELECT created_at, id FROM drone_commands
			WHERE created_at >= $1 AND created_at < $2
			  AND status IN `+terminalCmdStates+`
			ORDER BY created_at, id
			LIMIT $3`, `
			INSERT INTO drone_commands_archive
			SELECT c.* FROM drone_commands c
			WHERE c.created_at >= $1 AND (c.created_at, c.id) >= ($1, $2::uuid)
			  AND c.created_at <= $3 AND (c.created_at, c.id) <= ($3, $4::uuid)
			  AND c.status IN `+terminalCmdStates+`
			ON CONFLICT (id) DO NOTHING`)
	case arcdom.JobStatus:
		return s.copyKeyedBatch(ctx, t, limit, `
			SELECT recorded_at, id FROM drone_status_archive
			WHERE recorded_at >= $1 AND recorded_at < $2
			ORDER BY recorded_at, id
			LIMIT $3`, `
			INSERT INTO drone_status_archive_cold
			SELECT a.* FROM drone_status_archive a
			WHERE a.recorded_at >= $1 AND (a.recorded_at, a.id) >= ($1, $2::uuid)
			  AND a.recorded_at <= $3 AND (a.recorded_at, a.id) <= ($3, $4::uuid)
			ON CONFLICT (id) DO NOTHING`)
	default:
		return 0, arcdom.Cursor{}, arcdom.Cursor{}, perr.InvalidArgf("unknown job type %q", t.JobType)
	}
}

// copyPositionsBatch streams one key ordered slice of hot samples into clickhouse
func (s *hybridStore) copyPositionsBatch(
	ctx context.Context,
	t arcdom.Task,
	limit int,
) (int64, arcdom.Cursor, arcdom.Cursor, error) {
	var zero arcdom.Cursor
	rows, err := s.pg.Query(ctx, `
		SELECT id, drone_id, recorded_at, lat, lon, alt, speed, heading
		FROM drone_positions
		WHERE recorded_at >= $1 AND recorded_at < $2
		ORDER BY recorded_at, id
		LIMIT $3`, t.RangeStart, t.RangeEnd, limit)
	if err != nil {
		return 0, zero, zero, err
	}
	defer rows.Close()

	var batch [][]any
	var lo, hi arcdom.Cursor
	for rows.Next() {
		var p arcdom.Position
		if err := rows.Scan(&p.ID, &p.DroneID, &p.RecordedAt, &p.Lat, &p.Lon, &p.Alt, &p.Speed, &p.Heading); err != nil {
			return 0, zero, zero, err
		}
		if lo.Zero() {
			lo = arcdom.Cursor{At: p.RecordedAt, ID: p.ID}
		}
		hi = arcdom.Cursor{At: p.RecordedAt, ID: p.ID}
		batch = append(batch, []any{p.ID, p.DroneID, p.RecordedAt.UTC(), p.Lat, p.Lon, p.Alt, p.Speed, p.Heading})
	}
	if err := rows.Err(); err != nil {
		return 0, zero, zero, err
	}
	if len(batch) == 0 {
		return 0, zero, zero, nil
	}

	if err := s.ch.InsertBatch(ctx, `
		INSERT INTO positions_archive
		(id, drone_id, recorded_at, lat, lon, alt, speed, heading)`, batch); err != nil {
		return 0, zero, zero, err
	}
	return int64(len(batch)), lo, hi, nil
}

// copyKeyedBatch moves one key ordered slice between two postgres tables.
// keySQL selects (key_ts, id) for the next batch; insertSQL copies the
// [$1 lo.At, $2 lo.ID, $3 hi.At, $4 hi.ID] key window into the archive table
func (s *hybridStore) copyKeyedBatch(
	ctx context.Context,
	t arcdom.Task,
	limit int,
	keySQL, insertSQL string,
) (int64, arcdom.Cursor, arcdom.Cursor, error) {
	var zero arcdom.Cursor
	rows, err := s.pg.Query(ctx, keySQL, t.RangeStart, t.RangeEnd, limit)
	if err != nil {
		return 0, zero, zero, err
	}
	defer rows.Close()

	var n int64
	var lo, hi arcdom.Cursor
	for rows.Next() {
		var c arcdom.Cursor
		if err := rows.Scan(&c.At, &c.ID); err != nil {
			return 0, zero, zero, err
		}
		if lo.Zero() {
			lo = c
		}
		hi = c
		n++
	}
	if err := rows.Err(); err != nil {
		return 0, zero, zero, err
	}
	if n == 0 {
		return 0, zero, zero, nil
	}

	if _, err := s.pg.Exec(ctx, insertSQL, lo.At, lo.ID, hi.At, hi.ID); err != nil {
		return 0, zero, zero, err
	}
	return n, lo, hi, nil
}

func (s *hybridStore) VerifyBatch(ctx context.Context, t arcdom.Task, lo, hi arcdom.Cursor, want int64) error {
	var got int64
	switch t.JobType {
	case arcdom.JobPositions:
		n, err := s.ch.ScalarUInt64(ctx, `
			SELECT toUInt64(count()) FROM positions_archive
			WHERE (recorded_at, id) >= (?, ?) AND (recorded_at, id) <= (?, ?)`,
			lo.At.UTC(), lo.ID, hi.At.UTC(), hi.ID)
		if err != nil {
			return err
		}
		got = int64(n)
	case arcdom.JobCommands:
		if err := s.pg.QueryRow(ctx, `
			SELECT count(*) FROM drone_commands_archive
			WHERE created_at >= $1 AND (created_at, id) >= ($1, $2::uuid)
			  AND created_at <= $3 AND (created_at, id) <= ($3, $4::uuid)`,
			lo.At, lo.ID, hi.At, hi.ID).Scan(&got); err != nil {
			return err
		}
	case arcdom.JobStatus:
		if err := s.pg.QueryRow(ctx, `
			SELECT count(*) FROM drone_status_archive_cold
			WHERE recorded_at >= $1 AND (recorded_at, id) >= ($1, $2::uuid)
			  AND recorded_at <= $3 AND (recorded_at, id) <= ($3, $4::uuid)`,
			lo.At, lo.ID, hi.At, hi.ID).Scan(&got); err != nil {
			return err
		}
	default:
		return perr.InvalidArgf("unknown job type %q", t.JobType)
	}
	if got < want {
		return perr.DBf("archive verify for %s: want %d rows in window, found %d", t.BatchID, want, got)
	}
	return nil
}

// DeleteBatch removes the rows the batch archived. The PG bound paths delete
// only ids present in the archive table, so a row that entered the key window
// after CopyBatch (a command turned terminal by the dispatcher, a backdated
// status append) survives and is picked up by a later batch instead of being
// destroyed un-archived. Positions cannot consult their cold store from here;
// their window delete is sound because recorded_at is assigned at generation
// time and the safety margin keeps the range behind live writes
func (s *hybridStore) DeleteBatch(ctx context.Context, t arcdom.Task, lo, hi arcdom.Cursor) (int64, error) {
	var sql string
	switch t.JobType {
	case arcdom.JobPositions:
		sql = `
			DELETE FROM drone_positions
			WHERE recorded_at >= $1 AND (recorded_at, id) >= ($1, $2::uuid)
			  AND recorded_at <= $3 AND (recorded_at, id) <= ($3, $4::uuid)`
	case arcdom.JobCommands:
		sql = `
			DELETE FROM drone_commands
			WHERE created_at >= $1 AND (created_at, id) >= ($1, $2::uuid)
			  AND created_at <= $3 AND (created_at, id) <= ($3, $4::uuid)
			  AND id IN (
				SELECT id FROM drone_commands_archive
				WHERE created_at >= $1 AND created_at <= $3)`
	case arcdom.JobStatus:
		sql = `
			DELETE FROM drone_status_archive
			WHERE recorded_at >= $1 AND (recorded_at, id) >= ($1, $2::uuid)
			  AND recorded_at <= $3 AND (recorded_at, id) <= ($3, $4::uuid)
			  AND id IN (
				SELECT id FROM drone_status_archive_cold
				WHERE recorded_at >= $1 AND recorded_at <= $3)`
	default:
		return 0, perr.InvalidArgf("unknown job type %q", t.JobType)
	}
	res, err := s.pg.Exec(ctx, sql, lo.At, lo.ID, hi.At, hi.ID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected(), nil
}

func (s *hybridStore) PositionsInWindow(
	ctx context.Context,
	droneID int64,
	w arcdom.Window,
) ([]arcdom.Position, error) {
	rows, err := s.ch.Query(ctx, `
		SELECT id, drone_id, recorded_at, lat, lon, alt, speed, heading
		FROM positions_archive
		WHERE drone_id = ? AND recorded_at >= ? AND recorded_at < ?
		ORDER BY recorded_at, id`,
		droneID, w.From.UTC(), w.To.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []arcdom.Position
	for rows.Next() {
		var p arcdom.Position
		if err := rows.Scan(&p.ID, &p.DroneID, &p.RecordedAt, &p.Lat, &p.Lon, &p.Alt, &p.Speed, &p.Heading); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *hybridStore) DeleteArchivedPositions(
	ctx context.Context,
	droneID int64,
	ids []uuid.UUID,
) (int64, error) {
	const chunk = 500
	var removed int64
	for len(ids) > 0 {
		n := min(chunk, len(ids))
		part := ids[:n]
		ids = ids[n:]

		// synchronous mutation so a follow-up optimize sees the delete applied
		if err := s.ch.Exec(ctx, `
			ALTER TABLE positions_archive
			DELETE WHERE drone_id = ? AND id IN (?)
			SETTINGS mutations_sync=1`,
			droneID, part); err != nil {
			return removed, err
		}
		removed += int64(n)
	}
	return removed, nil
}
