package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"hangar/internal/modkit/repokit"
	"hangar/internal/platform/store"
	ptime "hangar/internal/platform/time"
	arcdom "hangar/internal/services/archivist/domain"
)

// fakeTx satisfies the TxRunner seam; repos in these tests never touch SQL
type fakeTx struct{}

func (fakeTx) Exec(context.Context, string, ...any) (store.CommandTag, error) { return nil, nil }
func (fakeTx) Query(context.Context, string, ...any) (store.Rows, error)      { return nil, nil }
func (fakeTx) QueryRow(context.Context, string, ...any) store.Row             { return nil }
func (f fakeTx) Tx(ctx context.Context, fn func(q store.RowQuerier) error) error {
	return fn(f)
}

// fakeRepo is an in memory StorageRepo with an injectable source row model
type fakeRepo struct {
	mu sync.Mutex

	tasks            map[uuid.UUID]*arcdom.Task
	order            []uuid.UUID
	lastCompletedEnd map[arcdom.JobType]time.Time
	seq              map[arcdom.JobType]int

	// source model: remaining rows in the hot table, shrunk by DeleteBatch
	remaining     int64
	pendingDelete int64

	copyCalls   int
	verifyCalls int
	deleteCalls int

	// copyErrs are popped one per CopyBatch call; nil entries mean success
	copyErrs []error

	// cancelWhenArchived flips the cooperative flag once progress reaches it
	cancelWhenArchived int64

	positions  []arcdom.Position
	deletedIDs [][]uuid.UUID

	purged int64

	now func() time.Time
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		tasks:            map[uuid.UUID]*arcdom.Task{},
		lastCompletedEnd: map[arcdom.JobType]time.Time{},
		seq:              map[arcdom.JobType]int{},
		now:              func() time.Time { return time.Now().UTC() },
	}
}

func (f *fakeRepo) CreateTask(_ context.Context, t *arcdom.Task) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	t.Status = arcdom.TaskPending
	t.CreatedAt = f.now()
	cp := *t
	f.tasks[t.ID] = &cp
	f.order = append(f.order, t.ID)
	return nil
}

func (f *fakeRepo) TaskByID(_ context.Context, id uuid.UUID) (arcdom.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tasks[id]
	if !ok {
		return arcdom.Task{}, errNotFound
	}
	return *t, nil
}

func (f *fakeRepo) TaskByBatchID(_ context.Context, batchID string) (arcdom.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.tasks {
		if t.BatchID == batchID {
			return *t, nil
		}
	}
	return arcdom.Task{}, errNotFound
}

func (f *fakeRepo) TasksByStatus(_ context.Context, st arcdom.TaskStatus, _ int) ([]arcdom.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []arcdom.Task
	for _, id := range f.order {
		if t := f.tasks[id]; t.Status == st {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (f *fakeRepo) OpenTaskExists(_ context.Context, j arcdom.JobType) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.tasks {
		if t.JobType == j && !t.Status.Terminal() {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeRepo) LastCompletedRangeEnd(_ context.Context, j arcdom.JobType) (time.Time, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	end, ok := f.lastCompletedEnd[j]
	return end, ok, nil
}

func (f *fakeRepo) NextBatchSeq(_ context.Context, j arcdom.JobType, _ time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq[j]++
	return f.seq[j], nil
}

func (f *fakeRepo) ClaimNextPending(_ context.Context) (arcdom.Task, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range f.order {
		if t := f.tasks[id]; t.Status == arcdom.TaskPending {
			t.Status = arcdom.TaskRunning
			return *t, true, nil
		}
	}
	return arcdom.Task{}, false, nil
}

func (f *fakeRepo) MarkRunning(_ context.Context, id uuid.UUID) error {
	return f.setStatus(id, arcdom.TaskPending, arcdom.TaskRunning, 0, "")
}

func (f *fakeRepo) MarkTotals(_ context.Context, id uuid.UUID, total int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tasks[id].TotalRecords = total
	return nil
}

func (f *fakeRepo) RecordProgress(_ context.Context, id uuid.UUID, archived int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tasks[id].ArchivedRecords = archived
	return nil
}

func (f *fakeRepo) MarkCompleted(_ context.Context, id uuid.UUID, archived int64) error {
	return f.setStatus(id, arcdom.TaskRunning, arcdom.TaskCompleted, archived, "")
}

func (f *fakeRepo) MarkFailed(_ context.Context, id uuid.UUID, archived int64, errText string) error {
	return f.setStatus(id, "", arcdom.TaskFailed, archived, errText)
}

func (f *fakeRepo) MarkCancelled(_ context.Context, id uuid.UUID, archived int64, reason string) error {
	return f.setStatus(id, "", arcdom.TaskCancelled, archived, reason)
}

func (f *fakeRepo) setStatus(id uuid.UUID, from, to arcdom.TaskStatus, archived int64, errText string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tasks[id]
	if !ok {
		return errNotFound
	}
	if from != "" && t.Status != from {
		return errConflict
	}
	t.Status = to
	if archived > 0 {
		t.ArchivedRecords = archived
	}
	if errText != "" {
		t.ErrorMessage = errText
	}
	if to == arcdom.TaskCompleted {
		f.lastCompletedEnd[t.JobType] = t.RangeEnd
	}
	return nil
}

func (f *fakeRepo) RequestCancel(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tasks[id].CancelRequested = true
	return nil
}

func (f *fakeRepo) CancelRequested(_ context.Context, id uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := f.tasks[id]
	if t.CancelRequested {
		return true, nil
	}
	return f.cancelWhenArchived > 0 && t.ArchivedRecords >= f.cancelWhenArchived, nil
}

func (f *fakeRepo) PurgeTerminalTasks(_ context.Context, _ time.Time) (int64, error) {
	return f.purged, nil
}

func (f *fakeRepo) CountSource(_ context.Context, _ arcdom.Task) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.remaining, nil
}

func (f *fakeRepo) CopyBatch(_ context.Context, _ arcdom.Task, limit int) (int64, arcdom.Cursor, arcdom.Cursor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.copyCalls++
	if len(f.copyErrs) > 0 {
		err := f.copyErrs[0]
		f.copyErrs = f.copyErrs[1:]
		if err != nil {
			return 0, arcdom.Cursor{}, arcdom.Cursor{}, err
		}
	}
	n := f.remaining
	if int64(limit) < n {
		n = int64(limit)
	}
	f.pendingDelete = n
	if n == 0 {
		return 0, arcdom.Cursor{}, arcdom.Cursor{}, nil
	}
	at := f.now()
	lo := arcdom.Cursor{At: at, ID: uuid.New()}
	hi := arcdom.Cursor{At: at.Add(time.Second), ID: uuid.New()}
	return n, lo, hi, nil
}

func (f *fakeRepo) VerifyBatch(_ context.Context, _ arcdom.Task, _, _ arcdom.Cursor, want int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.verifyCalls++
	if want != f.pendingDelete {
		return errConflict
	}
	return nil
}

func (f *fakeRepo) DeleteBatch(_ context.Context, _ arcdom.Task, _, _ arcdom.Cursor) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleteCalls++
	n := f.pendingDelete
	f.remaining -= n
	f.pendingDelete = 0
	return n, nil
}

func (f *fakeRepo) PositionsInWindow(_ context.Context, _ int64, _ arcdom.Window) ([]arcdom.Position, error) {
	out := make([]arcdom.Position, len(f.positions))
	copy(out, f.positions)
	return out, nil
}

func (f *fakeRepo) DeleteArchivedPositions(_ context.Context, _ int64, ids []uuid.UUID) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletedIDs = append(f.deletedIDs, ids)

	doomed := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		doomed[id] = struct{}{}
	}
	kept := f.positions[:0:0]
	for _, p := range f.positions {
		if _, gone := doomed[p.ID]; !gone {
			kept = append(kept, p)
		}
	}
	removed := int64(len(f.positions) - len(kept))
	f.positions = kept
	return removed, nil
}

var (
	errNotFound = notFoundError{}
	errConflict = conflictError{}
)

type notFoundError struct{}

func (notFoundError) Error() string { return "no rows in result set" }

type conflictError struct{}

func (conflictError) Error() string { return "fake repo conflict" }

// newTestSvc wires a Svc against the fake repo with a deterministic clock
func newTestSvc(cfg Config, repo *fakeRepo) (*Svc, *ptime.Manual) {
	clock := ptime.NewManual(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	repo.now = clock.Now
	s := &Svc{
		DB:       fakeTx{},
		Binder:   repokit.BindFunc[arcdom.StorageRepo](func(repokit.Queryer) arcdom.StorageRepo { return repo }),
		Cfg:      withDefaults(cfg),
		Clock:    clock,
		tickBusy: make(chan struct{}, 1),
	}
	s.Detector = SpeedDetector{MaxSpeedMS: s.Cfg.MaxSpeedMS}
	return s, clock
}
