package store

import (
	"context"
	"errors"
	"fmt"
)

// test doubles shared by the store package tests

type fakeTag struct{ s string }

func (t fakeTag) String() string { return t.s }
func (t fakeTag) RowsAffected() int64 {
	var n int64
	_, _ = fmt.Sscanf(t.s, "UPDATE %d", &n)
	return n
}

type fakeRows struct {
	cols   []string
	data   [][]any
	pos    int
	err    error
	closed bool
}

func (r *fakeRows) Next() bool {
	if r.pos >= len(r.data) {
		return false
	}
	r.pos++
	return true
}

func (r *fakeRows) Scan(dest ...any) error {
	row := r.data[r.pos-1]
	if len(dest) > len(row) {
		return errors.New("scan arity mismatch")
	}
	for i := range dest {
		switch d := dest[i].(type) {
		case *int:
			d2, ok := row[i].(int)
			if !ok {
				return errors.New("not an int")
			}
			*d = d2
		case *string:
			d2, ok := row[i].(string)
			if !ok {
				return errors.New("not a string")
			}
			*d = d2
		default:
			return fmt.Errorf("unsupported scan target %T", dest[i])
		}
	}
	return nil
}

func (r *fakeRows) Err() error        { return r.err }
func (r *fakeRows) Close()            { r.closed = true }
func (r *fakeRows) Columns() []string { return r.cols }

type fakeRow struct {
	vals []any
	err  error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	for i := range dest {
		switch d := dest[i].(type) {
		case *int:
			*d = r.vals[i].(int)
		case *uint64:
			*d = r.vals[i].(uint64)
		case *string:
			*d = r.vals[i].(string)
		default:
			return fmt.Errorf("unsupported scan target %T", dest[i])
		}
	}
	return nil
}

type fakeQuerier struct {
	tag      CommandTag
	execErr  error
	rows     *fakeRows
	queryErr error
	row      fakeRow

	gotSQL  string
	gotArgs []any
}

func (q *fakeQuerier) Exec(_ context.Context, sql string, args ...any) (CommandTag, error) {
	q.gotSQL, q.gotArgs = sql, args
	return q.tag, q.execErr
}

func (q *fakeQuerier) Query(_ context.Context, sql string, args ...any) (Rows, error) {
	q.gotSQL, q.gotArgs = sql, args
	if q.queryErr != nil {
		return nil, q.queryErr
	}
	return q.rows, nil
}

func (q *fakeQuerier) QueryRow(_ context.Context, sql string, args ...any) Row {
	q.gotSQL, q.gotArgs = sql, args
	return q.row
}
