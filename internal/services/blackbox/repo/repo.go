// Package repo provides the blackbox storage repository implementation
package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"hangar/internal/modkit/repokit"
	perr "hangar/internal/platform/errors"
	"hangar/internal/platform/store"
	bbdom "hangar/internal/services/blackbox/domain"
)

// NewPG returns a binder for the postgres backed status archive
func NewPG() repokit.Binder[bbdom.StorageRepo] {
	return repokit.BindFunc[bbdom.StorageRepo](func(q repokit.Queryer) bbdom.StorageRepo {
		return &pgStore{q: q}
	})
}

type pgStore struct {
	q repokit.Queryer
}

const recCols = `
	id, drone_id, status, previous_status,
	COALESCE(reason, ''), recorded_at, COALESCE(created_by, ''), transition_valid`

func scanRecord(row store.Row) (bbdom.StatusRecord, error) {
	var r bbdom.StatusRecord
	err := row.Scan(
		&r.ID, &r.DroneID, &r.Status, &r.PreviousStatus,
		&r.Reason, &r.RecordedAt, &r.CreatedBy, &r.TransitionValid,
	)
	if err != nil {
		return bbdom.StatusRecord{}, err
	}
	r.RecordedAt = r.RecordedAt.UTC()
	return r, nil
}

func (s *pgStore) Append(ctx context.Context, rec *bbdom.StatusRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	_, err := s.q.Exec(ctx, `
		INSERT INTO drone_status_archive
			(id, drone_id, status, previous_status, reason, recorded_at, created_by, transition_valid)
		VALUES ($1,$2,$3,$4,NULLIF($5,''),$6,NULLIF($7,''),$8)`,
		rec.ID, rec.DroneID, rec.Status, rec.PreviousStatus,
		rec.Reason, rec.RecordedAt.UTC(), rec.CreatedBy, rec.TransitionValid,
	)
	if err != nil {
		return perr.FromPostgres(err, "append status record")
	}
	return nil
}

func (s *pgStore) list(ctx context.Context, where string, limit int, args ...any) ([]bbdom.StatusRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)
	sql := fmt.Sprintf(`
		SELECT %s
		FROM drone_status_archive
		WHERE %s
		ORDER BY recorded_at DESC, id DESC
		LIMIT $%d`, recCols, where, len(args))
	rows, err := s.q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []bbdom.StatusRecord
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *pgStore) ByDrone(ctx context.Context, droneID int64, limit int) ([]bbdom.StatusRecord, error) {
	return s.list(ctx, `drone_id = $1`, limit, droneID)
}

func (s *pgStore) InRange(ctx context.Context, from, to time.Time, limit int) ([]bbdom.StatusRecord, error) {
	return s.list(ctx, `recorded_at >= $1 AND recorded_at < $2`, limit, from.UTC(), to.UTC())
}

func (s *pgStore) ByStatus(ctx context.Context, st bbdom.DroneStatus, limit int) ([]bbdom.StatusRecord, error) {
	return s.list(ctx, `status = $1`, limit, st)
}

func (s *pgStore) ByTransition(ctx context.Context, from, to bbdom.DroneStatus, limit int) ([]bbdom.StatusRecord, error) {
	return s.list(ctx, `previous_status = $1 AND status = $2`, limit, from, to)
}

func (s *pgStore) Statistics(ctx context.Context, from, to time.Time) (bbdom.Stats, error) {
	stats := bbdom.Stats{
		ByStatus:     make(map[bbdom.DroneStatus]int64),
		ByTransition: make(map[bbdom.TransitionKey]int64),
	}

	rows, err := s.q.Query(ctx, `
		SELECT COALESCE(previous_status, ''), status, count(*), count(*) FILTER (WHERE NOT transition_valid)
		FROM drone_status_archive
		WHERE recorded_at >= $1 AND recorded_at < $2
		GROUP BY 1, 2`, from.UTC(), to.UTC())
	if err != nil {
		return bbdom.Stats{}, err
	}
	defer rows.Close()

	for rows.Next() {
		var prev, next string
		var n, invalid int64
		if err := rows.Scan(&prev, &next, &n, &invalid); err != nil {
			return bbdom.Stats{}, err
		}
		k := bbdom.TransitionKey{From: bbdom.DroneStatus(prev), To: bbdom.DroneStatus(next)}
		stats.ByTransition[k] += n
		stats.ByStatus[k.To] += n
		stats.Total += n
		stats.Invalid += invalid
	}
	return stats, rows.Err()
}

func (s *pgStore) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.q.Exec(ctx, `
		DELETE FROM drone_status_archive
		WHERE recorded_at < $1`, cutoff.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected(), nil
}
