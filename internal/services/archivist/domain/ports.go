package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// SchedulerPort plans archive tasks on a cadence
type SchedulerPort interface {
	// Tick runs one scheduling pass over every job type.
	// Overlapping ticks skip cleanly; per item failures are logged, not fatal
	Tick(ctx context.Context) error

	// TriggerArchive creates a task for one job type outside the cadence.
	// Returns a conflict error while a non terminal task for the type exists
	TriggerArchive(ctx context.Context, j JobType, requestedBy string) (Task, error)
}

// ExecutorPort drains and runs pending archive tasks
type ExecutorPort interface {
	// Run drains pending tasks oldest first through the bounded worker pool,
	// then returns once the queue is empty
	Run(ctx context.Context) error

	// ExecuteTask runs one task to a terminal state
	ExecuteTask(ctx context.Context, id uuid.UUID) error

	// RetryTask creates a continuation task for a failed one.
	// Committed rows are never reprocessed
	RetryTask(ctx context.Context, id uuid.UUID) (Task, error)

	// RequestCancel asks a pending or running task to stop at the next
	// batch boundary
	RequestCancel(ctx context.Context, id uuid.UUID, reason string) error
}

// CompactorPort removes duplicate and anomalous archived samples
type CompactorPort interface {
	Optimize(ctx context.Context, droneID int64, w Window) (CompactionReport, error)
}

// JanitorPort applies age based retention to terminal task rows
type JanitorPort interface {
	PurgeTasks(ctx context.Context, olderThan time.Time) (int64, error)
}

// AnomalyDetector flags implausible consecutive samples.
// prev and cur arrive in (recorded_at, id) order
type AnomalyDetector interface {
	Flag(prev, cur Position) bool
}

// StorageRepo encapsulates every store action archivist performs.
// Task lifecycle rows live in Postgres; POSITIONS payloads move to ClickHouse,
// COMMANDS and STATUS payloads move to Postgres archive tables
type StorageRepo interface {
	// task lifecycle

	CreateTask(ctx context.Context, t *Task) error
	TaskByID(ctx context.Context, id uuid.UUID) (Task, error)
	TaskByBatchID(ctx context.Context, batchID string) (Task, error)
	TasksByStatus(ctx context.Context, st TaskStatus, limit int) ([]Task, error)

	// OpenTaskExists reports a pending or running task for the job type
	OpenTaskExists(ctx context.Context, j JobType) (bool, error)

	// LastCompletedRangeEnd returns the exclusive end of the newest completed
	// task for the job type
	LastCompletedRangeEnd(ctx context.Context, j JobType) (time.Time, bool, error)

	// NextBatchSeq returns the next per type per UTC day sequence number
	NextBatchSeq(ctx context.Context, j JobType, day time.Time) (int, error)

	// ClaimNextPending promotes the oldest pending task to running and
	// returns it; ok=false when the queue is empty
	ClaimNextPending(ctx context.Context) (Task, bool, error)

	// MarkRunning promotes one specific pending task
	MarkRunning(ctx context.Context, id uuid.UUID) error

	MarkTotals(ctx context.Context, id uuid.UUID, total int64) error
	RecordProgress(ctx context.Context, id uuid.UUID, archived int64) error
	MarkCompleted(ctx context.Context, id uuid.UUID, archived int64) error
	MarkFailed(ctx context.Context, id uuid.UUID, archived int64, errText string) error
	MarkCancelled(ctx context.Context, id uuid.UUID, archived int64, reason string) error

	// RequestCancel flips the cooperative cancel flag on a non terminal task
	RequestCancel(ctx context.Context, id uuid.UUID) error
	CancelRequested(ctx context.Context, id uuid.UUID) (bool, error)

	PurgeTerminalTasks(ctx context.Context, olderThan time.Time) (int64, error)

	// movement, strictly ordered by (recorded_at, id) within the task range

	CountSource(ctx context.Context, t Task) (int64, error)

	// CopyBatch copies up to limit source rows into the archive destination
	// and returns how many moved plus the copied key window
	CopyBatch(ctx context.Context, t Task, limit int) (n int64, lo, hi Cursor, err error)

	// VerifyBatch confirms the archive destination holds at least want rows
	// inside the copied key window
	VerifyBatch(ctx context.Context, t Task, lo, hi Cursor, want int64) error

	// DeleteBatch removes the copied key window from the source table
	DeleteBatch(ctx context.Context, t Task, lo, hi Cursor) (int64, error)

	// compaction reads over the cold store

	PositionsInWindow(ctx context.Context, droneID int64, w Window) ([]Position, error)
	DeleteArchivedPositions(ctx context.Context, droneID int64, ids []uuid.UUID) (int64, error)
}
