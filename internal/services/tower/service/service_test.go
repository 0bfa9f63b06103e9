package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"hangar/internal/modkit/repokit"
	perr "hangar/internal/platform/errors"
	ptime "hangar/internal/platform/time"
	twrdom "hangar/internal/services/tower/domain"
)

// fakeTx satisfies repokit.TxRunner without a database
type fakeTx struct{}

func (fakeTx) Exec(context.Context, string, ...any) (repokit.CommandTag, error) { return nil, nil }
func (fakeTx) Query(context.Context, string, ...any) (repokit.Rows, error)      { return nil, nil }
func (fakeTx) QueryRow(context.Context, string, ...any) repokit.Row             { return nil }
func (f fakeTx) Tx(ctx context.Context, fn func(repokit.Queryer) error) error   { return fn(f) }

// fakeRepo is an in memory StorageRepo with the same promotion and ordering
// semantics the SQL layer enforces
type fakeRepo struct {
	mu    sync.Mutex
	cmds  map[uuid.UUID]*twrdom.Command
	order []uuid.UUID

	purged int64
	now    func() time.Time
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		cmds: make(map[uuid.UUID]*twrdom.Command),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func (f *fakeRepo) InsertCommand(_ context.Context, c *twrdom.Command) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	c.Status = twrdom.CmdPending
	c.CreatedAt = f.now()
	cp := *c
	f.cmds[c.ID] = &cp
	f.order = append(f.order, c.ID)
	return nil
}

func (f *fakeRepo) CommandByID(_ context.Context, id uuid.UUID) (twrdom.Command, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.cmds[id]
	if !ok {
		return twrdom.Command{}, perr.NotFoundf("command %s", id)
	}
	return *c, nil
}

func (f *fakeRepo) CommandsByStatus(_ context.Context, st twrdom.CommandStatus, limit int) ([]twrdom.Command, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []twrdom.Command
	for _, id := range f.order {
		if c := f.cmds[id]; c.Status == st {
			out = append(out, *c)
			if limit > 0 && len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (f *fakeRepo) RunningCommand(_ context.Context, droneID int64) (twrdom.Command, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range f.order {
		if c := f.cmds[id]; c.DroneID == droneID && c.Status == twrdom.CmdRunning {
			return *c, true, nil
		}
	}
	return twrdom.Command{}, false, nil
}

func (f *fakeRepo) NextPending(_ context.Context, droneID int64, now time.Time) (twrdom.Command, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var best *twrdom.Command
	for _, id := range f.order {
		c := f.cmds[id]
		if c.DroneID != droneID || c.Status != twrdom.CmdPending {
			continue
		}
		if c.ScheduledAt != nil && c.ScheduledAt.After(now) {
			continue
		}
		if best == nil ||
			c.Priority < best.Priority ||
			(c.Priority == best.Priority && c.CreatedAt.Before(best.CreatedAt)) {
			best = c
		}
	}
	if best == nil {
		return twrdom.Command{}, false, nil
	}
	return *best, true, nil
}

func (f *fakeRepo) PromoteToRunning(_ context.Context, id uuid.UUID, droneID int64, now time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, other := range f.cmds {
		if other.DroneID == droneID && other.Status == twrdom.CmdRunning {
			return false, nil
		}
	}
	c, ok := f.cmds[id]
	if !ok || c.Status != twrdom.CmdPending {
		return false, nil
	}
	c.Status = twrdom.CmdRunning
	c.ExecutedAt = ptime.Ptr(now)
	return true, nil
}

func (f *fakeRepo) MarkCompleted(_ context.Context, id uuid.UUID) error {
	return f.finish(id, twrdom.CmdCompleted, "")
}

func (f *fakeRepo) MarkFailed(_ context.Context, id uuid.UUID, errText string) error {
	return f.finish(id, twrdom.CmdFailed, errText)
}

func (f *fakeRepo) finish(id uuid.UUID, st twrdom.CommandStatus, errText string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.cmds[id]
	if !ok {
		return perr.NotFoundf("command %s", id)
	}
	c.Status = st
	c.ErrorMessage = errText
	c.CompletedAt = ptime.Ptr(f.now())
	return nil
}

func (f *fakeRepo) CancelPending(_ context.Context, id uuid.UUID, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.cmds[id]
	if !ok {
		return perr.NotFoundf("command %s", id)
	}
	if c.Status != twrdom.CmdPending {
		return perr.Conflictf("command %s is %s", id, c.Status)
	}
	c.Status = twrdom.CmdCancelled
	c.ErrorMessage = reason
	return nil
}

func (f *fakeRepo) TimeoutRunning(_ context.Context, cutoff time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, c := range f.cmds {
		if c.Status == twrdom.CmdRunning && c.ExecutedAt != nil && c.ExecutedAt.Before(cutoff) {
			c.Status = twrdom.CmdFailed
			c.ErrorMessage = "timeout"
			n++
		}
	}
	return n, nil
}

func (f *fakeRepo) DronesWithPending(_ context.Context, now time.Time, limit int) ([]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	seen := map[int64]struct{}{}
	for _, c := range f.cmds {
		if c.Status != twrdom.CmdPending {
			continue
		}
		if c.ScheduledAt != nil && c.ScheduledAt.After(now) {
			continue
		}
		seen[c.DroneID] = struct{}{}
	}
	out := make([]int64, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeRepo) PurgeTerminalCommands(_ context.Context, _ time.Time) (int64, error) {
	return f.purged, nil
}

// fakeLink scripts the device round trip
type fakeLink struct {
	mu    sync.Mutex
	got   []twrdom.Command
	ack   twrdom.Ack
	err   error
	block chan struct{} // when set, Execute waits for a receive
}

func (l *fakeLink) Execute(ctx context.Context, cmd twrdom.Command) (twrdom.Ack, error) {
	l.mu.Lock()
	l.got = append(l.got, cmd)
	block := l.block
	l.mu.Unlock()
	if block != nil {
		select {
		case block <- struct{}{}:
		case <-ctx.Done():
			return twrdom.Ack{}, ctx.Err()
		}
	}
	return l.ack, l.err
}

func (l *fakeLink) calls() []twrdom.Command {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]twrdom.Command, len(l.got))
	copy(out, l.got)
	return out
}

func newTestSvc(cfg Config, repo *fakeRepo, link *fakeLink) (*Svc, *ptime.Manual) {
	clock := ptime.NewManual(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	repo.now = clock.Now
	if link.ack == (twrdom.Ack{}) && link.err == nil {
		link.ack = twrdom.Ack{OK: true}
	}
	s := &Svc{
		DB:     fakeTx{},
		Binder: repokit.BindFunc[twrdom.StorageRepo](func(repokit.Queryer) twrdom.StorageRepo { return repo }),
		Cfg:    withDefaults(cfg),
		Link:   link,
		Clock:  clock,
	}
	return s, clock
}

func enqueue(s *Svc, droneID int64, ct twrdom.CommandType, prio int) (twrdom.Command, error) {
	return s.Enqueue(context.Background(), twrdom.EnqueueRequest{
		DroneID:     droneID,
		CommandType: string(ct),
		Priority:    prio,
	})
}
