package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// QueuePort is the enqueue side surface
type QueuePort interface {
	// Enqueue validates and inserts a pending command.
	// Incompatible types against the running command reject with a conflict
	Enqueue(ctx context.Context, req EnqueueRequest) (Command, error)

	// Next returns the minimum (priority, created_at) pending command
	Next(ctx context.Context, droneID int64) (Command, bool, error)

	// Cancel tombstones a pending command; running ones finish or time out
	Cancel(ctx context.Context, id uuid.UUID, reason string) error

	// RetryFailedCommand creates a fresh pending attempt while the retry
	// budget allows it
	RetryFailedCommand(ctx context.Context, id uuid.UUID) (Command, error)
}

// DispatcherPort drives command promotion and device execution
type DispatcherPort interface {
	// Run drives dispatch and timeout sweeps until ctx ends
	Run(ctx context.Context) error

	// DispatchDrone promotes and executes at most one command for the drone
	DispatchDrone(ctx context.Context, droneID int64) error

	// HandleTimeouts fails running commands whose execution started before
	// the threshold, freeing their drones
	HandleTimeouts(ctx context.Context, olderThan time.Duration) (int64, error)
}

// DeviceLink transmits a command to a device and waits for the result.
// Transport is injected; timeouts are enforced by the dispatcher
type DeviceLink interface {
	Execute(ctx context.Context, cmd Command) (Ack, error)
}

// StorageRepo encapsulates all storage actions tower performs
type StorageRepo interface {
	InsertCommand(ctx context.Context, c *Command) error
	CommandByID(ctx context.Context, id uuid.UUID) (Command, error)
	CommandsByStatus(ctx context.Context, st CommandStatus, limit int) ([]Command, error)

	// RunningCommand returns the active command for a drone, if any
	RunningCommand(ctx context.Context, droneID int64) (Command, bool, error)

	// NextPending returns the minimum (priority, created_at) pending command
	// whose schedule, if any, has arrived
	NextPending(ctx context.Context, droneID int64, now time.Time) (Command, bool, error)

	// PromoteToRunning performs the conditional pending to running update,
	// re-checking against store state that no other command runs for the drone
	PromoteToRunning(ctx context.Context, id uuid.UUID, droneID int64, now time.Time) (bool, error)

	MarkCompleted(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, errText string) error
	CancelPending(ctx context.Context, id uuid.UUID, reason string) error

	// TimeoutRunning fails running commands executed before the cutoff
	TimeoutRunning(ctx context.Context, cutoff time.Time) (int64, error)

	// DronesWithPending lists drones that have dispatchable work
	DronesWithPending(ctx context.Context, now time.Time, limit int) ([]int64, error)

	// PurgeTerminalCommands applies age based retention to terminal rows
	PurgeTerminalCommands(ctx context.Context, olderThan time.Time) (int64, error)
}
