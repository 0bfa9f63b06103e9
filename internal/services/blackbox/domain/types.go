// Package domain defines blackbox core ports and types
package domain

import (
	"time"

	"github.com/google/uuid"

	perr "hangar/internal/platform/errors"
)

// DroneStatus is the reported device operating state
type DroneStatus string

// Known drone statuses
const (
	StatusInactive    DroneStatus = "INACTIVE"
	StatusActive      DroneStatus = "ACTIVE"
	StatusFlying      DroneStatus = "FLYING"
	StatusReturning   DroneStatus = "RETURNING"
	StatusCharging    DroneStatus = "CHARGING"
	StatusMaintenance DroneStatus = "MAINTENANCE"
	StatusError       DroneStatus = "ERROR"
)

// Valid reports whether s is a known status
func (s DroneStatus) Valid() bool {
	switch s {
	case StatusInactive, StatusActive, StatusFlying, StatusReturning,
		StatusCharging, StatusMaintenance, StatusError:
		return true
	}
	return false
}

// ParseStatus normalizes and validates a status string
func ParseStatus(v string) (DroneStatus, error) {
	s := DroneStatus(v)
	if !s.Valid() {
		return "", perr.InvalidArgf("unknown drone status %q", v)
	}
	return s, nil
}

// validTransitions is the static transition table.
// A nil previous status (first observation) is always valid
var validTransitions = map[DroneStatus][]DroneStatus{
	StatusInactive:    {StatusActive, StatusMaintenance},
	StatusActive:      {StatusFlying, StatusCharging, StatusMaintenance, StatusInactive},
	StatusFlying:      {StatusReturning, StatusActive, StatusError},
	StatusReturning:   {StatusActive, StatusCharging, StatusError},
	StatusCharging:    {StatusActive, StatusInactive},
	StatusMaintenance: {StatusActive, StatusInactive},
	StatusError:       {StatusMaintenance, StatusInactive},
}

// TransitionValid reports whether prev to next is in the transition table
func TransitionValid(prev *DroneStatus, next DroneStatus) bool {
	if prev == nil {
		return true
	}
	for _, allowed := range validTransitions[*prev] {
		if allowed == next {
			return true
		}
	}
	return false
}

// StatusRecord is one appended status observation
type StatusRecord struct {
	ID              uuid.UUID
	DroneID         int64
	Status          DroneStatus
	PreviousStatus  *DroneStatus
	Reason          string
	RecordedAt      time.Time
	CreatedBy       string
	TransitionValid bool
}

// RecordRequest carries one observed status change
type RecordRequest struct {
	DroneID        int64      `json:"drone_id" validate:"required,gt=0"`
	Status         string     `json:"status" validate:"required"`
	PreviousStatus *string    `json:"previous_status"`
	Reason         string     `json:"reason" validate:"max=500"`
	RecordedAt     *time.Time `json:"recorded_at"`
	CreatedBy      string     `json:"created_by" validate:"max=120"`
}

// TransitionKey identifies a (previous, next) pair in statistics.
// From is empty for first observations
type TransitionKey struct {
	From DroneStatus
	To   DroneStatus
}

// Stats aggregates counts over a window
type Stats struct {
	Total        int64
	Invalid      int64
	ByStatus     map[DroneStatus]int64
	ByTransition map[TransitionKey]int64
}
