package domain

import (
	"context"
	"time"
)

// RecorderPort appends status observations
type RecorderPort interface {
	// RecordStatusChange always writes the observation; invalid transitions
	// are flagged and warned about, never discarded
	RecordStatusChange(ctx context.Context, req RecordRequest) (StatusRecord, error)
}

// ReaderPort is the query surface over the archive
type ReaderPort interface {
	ByDrone(ctx context.Context, droneID int64, limit int) ([]StatusRecord, error)
	InRange(ctx context.Context, from, to time.Time, limit int) ([]StatusRecord, error)
	ByStatus(ctx context.Context, st DroneStatus, limit int) ([]StatusRecord, error)
	ByTransition(ctx context.Context, from, to DroneStatus, limit int) ([]StatusRecord, error)

	// Statistics aggregates counts per status and per transition pair
	Statistics(ctx context.Context, from, to time.Time) (Stats, error)
}

// JanitorPort applies age based retention
type JanitorPort interface {
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// StorageRepo encapsulates all storage actions blackbox performs
type StorageRepo interface {
	Append(ctx context.Context, rec *StatusRecord) error
	ByDrone(ctx context.Context, droneID int64, limit int) ([]StatusRecord, error)
	InRange(ctx context.Context, from, to time.Time, limit int) ([]StatusRecord, error)
	ByStatus(ctx context.Context, st DroneStatus, limit int) ([]StatusRecord, error)
	ByTransition(ctx context.Context, from, to DroneStatus, limit int) ([]StatusRecord, error)
	Statistics(ctx context.Context, from, to time.Time) (Stats, error)
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
