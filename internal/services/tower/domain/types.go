// Package domain defines tower core ports and types
package domain

import (
	"time"

	"github.com/google/uuid"

	perr "hangar/internal/platform/errors"
)

// CommandType is the device instruction family
type CommandType string

// Known command types
const (
	CmdTakeoff       CommandType = "TAKEOFF"
	CmdLand          CommandType = "LAND"
	CmdHover         CommandType = "HOVER"
	CmdGoto          CommandType = "GOTO"
	CmdReturnHome    CommandType = "RETURN_HOME"
	CmdEmergencyStop CommandType = "EMERGENCY_STOP"
)

// Valid reports whether c is a known command type
func (c CommandType) Valid() bool {
	switch c {
	case CmdTakeoff, CmdLand, CmdHover, CmdGoto, CmdReturnHome, CmdEmergencyStop:
		return true
	}
	return false
}

// ParseCommandType normalizes and validates a command type string
func ParseCommandType(s string) (CommandType, error) {
	c := CommandType(s)
	if !c.Valid() {
		return "", perr.InvalidArgf("unknown command type %q", s)
	}
	return c, nil
}

// conflictsWhileRunning lists the enqueue types rejected while the key type
// is running on the same drone
var conflictsWhileRunning = map[CommandType][]CommandType{
	CmdTakeoff:       {CmdTakeoff, CmdLand},
	CmdLand:          {CmdTakeoff, CmdLand, CmdGoto, CmdHover},
	CmdGoto:          {CmdLand},
	CmdReturnHome:    {CmdTakeoff, CmdGoto, CmdHover},
	CmdHover:         nil,
	CmdEmergencyStop: {CmdTakeoff, CmdLand, CmdHover, CmdGoto, CmdReturnHome},
}

// Compatible reports whether newType may be enqueued while running is active
// on the same drone. An emergency stop is always accepted
func Compatible(running, newType CommandType) bool {
	if newType == CmdEmergencyStop {
		return true
	}
	for _, blocked := range conflictsWhileRunning[running] {
		if blocked == newType {
			return false
		}
	}
	return true
}

// CommandStatus is the dispatch lifecycle state
type CommandStatus string

// Command lifecycle states
const (
	CmdPending   CommandStatus = "pending"
	CmdRunning   CommandStatus = "running"
	CmdCompleted CommandStatus = "completed"
	CmdFailed    CommandStatus = "failed"
	CmdCancelled CommandStatus = "cancelled"
)

// Terminal reports whether the state admits no further transitions
func (s CommandStatus) Terminal() bool {
	return s == CmdCompleted || s == CmdFailed || s == CmdCancelled
}

// Command is one queued device instruction
type Command struct {
	ID           uuid.UUID
	DroneID      int64
	Type         CommandType
	Parameters   map[string]any
	Priority     int // lower is more urgent
	Status       CommandStatus
	CreatedAt    time.Time
	ScheduledAt  *time.Time
	ExecutedAt   *time.Time
	CompletedAt  *time.Time
	RetryCount   int
	MaxRetries   int
	ErrorMessage string
	RetriedFrom  *uuid.UUID
}

// EnqueueRequest carries one new command into the queue
type EnqueueRequest struct {
	DroneID     int64          `json:"drone_id" validate:"required,gt=0"`
	CommandType string         `json:"command_type" validate:"required"`
	Parameters  map[string]any `json:"parameters"`
	Priority    int            `json:"priority" validate:"gte=0,lte=100"`
	MaxRetries  int            `json:"max_retries" validate:"gte=0,lte=10"`
	ScheduledAt *time.Time     `json:"scheduled_at"`
}

// Ack is the device round trip result
type Ack struct {
	OK     bool
	Detail string
}
