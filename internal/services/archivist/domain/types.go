// Package domain defines archivist core ports and types
package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	perr "hangar/internal/platform/errors"
)

// JobType selects which telemetry family an archive task moves
type JobType string

// Known job types
const (
	JobPositions JobType = "POSITIONS"
	JobCommands  JobType = "COMMANDS"
	JobStatus    JobType = "STATUS"
)

// JobTypes lists every job type in scheduling order
func JobTypes() []JobType { return []JobType{JobPositions, JobCommands, JobStatus} }

// Valid reports whether j is a known job type
func (j JobType) Valid() bool {
	switch j {
	case JobPositions, JobCommands, JobStatus:
		return true
	}
	return false
}

// ParseJobType normalizes and validates a job type string
func ParseJobType(s string) (JobType, error) {
	j := JobType(s)
	if !j.Valid() {
		return "", perr.InvalidArgf("unknown job type %q", s)
	}
	return j, nil
}

// Tables returns the hot source table and cold destination for a job type
func (j JobType) Tables() (source, archive string) {
	switch j {
	case JobPositions:
		return "drone_positions", "positions_archive"
	case JobCommands:
		return "drone_commands", "drone_commands_archive"
	case JobStatus:
		return "drone_status_archive", "drone_status_archive_cold"
	}
	return "", ""
}

// TaskStatus is the archive task lifecycle state
type TaskStatus string

// Task lifecycle states
const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
	TaskCancelled TaskStatus = "cancelled"
)

// Terminal reports whether the state admits no further transitions
func (s TaskStatus) Terminal() bool {
	return s == TaskCompleted || s == TaskFailed || s == TaskCancelled
}

// Task is one unit of archival work over a half-open time range
type Task struct {
	ID              uuid.UUID
	JobType         JobType
	SourceTable     string
	ArchiveTable    string
	RangeStart      time.Time // inclusive, UTC
	RangeEnd        time.Time // exclusive, UTC
	BatchID         string
	Status          TaskStatus
	TotalRecords    int64
	ArchivedRecords int64
	CreatedBy       string
	CreatedAt       time.Time
	StartedAt       *time.Time
	CompletedAt     *time.Time
	ErrorMessage    string
	RetryCount      int
	CancelRequested bool
	ContinuedFrom   *uuid.UUID
}

// BatchID formats the unique, day-sortable batch identifier
// seq restarts at 1 per job type per UTC day
func BatchID(j JobType, day time.Time, seq int) string {
	return fmt.Sprintf("%s_BATCH_%s_%03d", j, day.UTC().Format("20060102"), seq)
}

// Cursor is a stable (recorded_at, id) position inside a task's source key order
type Cursor struct {
	At time.Time
	ID uuid.UUID
}

// Zero reports whether the cursor has not advanced yet
func (c Cursor) Zero() bool { return c.At.IsZero() }

// Position is one hot telemetry sample
type Position struct {
	ID         uuid.UUID
	DroneID    int64
	RecordedAt time.Time
	Lat        float64
	Lon        float64
	Alt        float64
	Speed      float64
	Heading    float64
}

// Window is a half-open UTC interval [From, To)
type Window struct {
	From time.Time
	To   time.Time
}

// Validate rejects empty or inverted windows
func (w Window) Validate() error {
	if w.From.IsZero() || w.To.IsZero() {
		return perr.Validationf("window requires both bounds")
	}
	if !w.From.Before(w.To) {
		return perr.Validationf("window start %s is not before end %s", w.From, w.To)
	}
	return nil
}

// CompactionReport summarizes one optimize pass
type CompactionReport struct {
	DuplicatesRemoved int64
	AnomaliesRemoved  int64
	TotalRemoved      int64
}
