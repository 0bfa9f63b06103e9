package store

import (
	"context"

	"hangar/internal/platform/store/ch"
)

// chAdapter adapts *ch.CH to the store.Clickhouse seam
type chAdapter struct {
	c *ch.CH
}

func newCHAdapter(c *ch.CH) Clickhouse { return &chAdapter{c: c} }

func (a *chAdapter) Exec(ctx context.Context, sql string, args ...any) error {
	return a.c.Exec(ctx, sql, args...)
}

func (a *chAdapter) Query(ctx context.Context, sql string, args ...any) (Rows, error) {
	rs, err := a.c.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return &chRows{rs: rs}, nil
}

func (a *chAdapter) ScalarUInt64(ctx context.Context, sql string, args ...any) (uint64, error) {
	var n uint64
	if err := a.c.QueryRow(ctx, sql, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (a *chAdapter) InsertBatch(ctx context.Context, insertSQL string, rows [][]any) error {
	return a.c.InsertBatch(ctx, insertSQL, rows)
}

func (a *chAdapter) Ping(ctx context.Context) error { return a.c.Ping(ctx) }

func (a *chAdapter) Close() error { return a.c.Close() }

// chRows narrows driver rows to the store.Rows contract
type chRows struct {
	rs ch.Rows
}

func (r *chRows) Next() bool             { return r.rs.Next() }
func (r *chRows) Scan(dest ...any) error { return r.rs.Scan(dest...) }
func (r *chRows) Err() error             { return r.rs.Err() }
func (r *chRows) Close()                 { _ = r.rs.Close() }
func (r *chRows) Columns() []string      { return r.rs.Columns() }
