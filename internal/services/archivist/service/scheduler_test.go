package service

import (
	"context"
	"testing"
	"time"

	perr "hangar/internal/platform/errors"
	arcdom "hangar/internal/services/archivist/domain"
	"hangar/internal/services/archivist/guardrails"
)

func TestTriggerArchiveComputesRange(t *testing.T) {
	repo := newFakeRepo()
	s, clock := newTestSvc(Config{SafetyMargin: time.Hour, InitialLookback: 720 * time.Hour}, repo)

	task, err := s.TriggerArchive(context.Background(), arcdom.JobPositions, "ops")
	if err != nil {
		t.Fatalf("TriggerArchive: %v", err)
	}

	wantEnd := clock.Now().Add(-time.Hour).Truncate(time.Second)
	if !task.RangeEnd.Equal(wantEnd) {
		t.Fatalf("range end = %v, want now minus safety margin (%v)", task.RangeEnd, wantEnd)
	}
	if !task.RangeStart.Equal(wantEnd.Add(-720 * time.Hour)) {
		t.Fatalf("first task seeds start from the initial lookback, got %v", task.RangeStart)
	}
	if task.CreatedBy != "ops" {
		t.Fatalf("created by = %q", task.CreatedBy)
	}
	if task.SourceTable != "drone_positions" || task.ArchiveTable != "positions_archive" {
		t.Fatalf("tables = %s/%s", task.SourceTable, task.ArchiveTable)
	}
	if task.BatchID != arcdom.BatchID(arcdom.JobPositions, wantEnd, 1) {
		t.Fatalf("batch id = %q", task.BatchID)
	}
}

func TestSuccessiveRangesAreContiguous(t *testing.T) {
	repo := newFakeRepo()
	s, clock := newTestSvc(Config{SafetyMargin: time.Hour}, repo)

	first, err := s.TriggerArchive(context.Background(), arcdom.JobPositions, "")
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	clock.Advance(6 * time.Hour)
	second, err := s.TriggerArchive(context.Background(), arcdom.JobPositions, "")
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if !second.RangeStart.Equal(first.RangeEnd) {
		t.Fatalf("ranges must chain: %v != %v", second.RangeStart, first.RangeEnd)
	}
}

func TestTriggerArchiveConflictsWithOpenTask(t *testing.T) {
	repo := newFakeRepo()
	s, _ := newTestSvc(Config{}, repo)

	if _, err := s.TriggerArchive(context.Background(), arcdom.JobPositions, ""); err != nil {
		t.Fatalf("first: %v", err)
	}
	_, err := s.TriggerArchive(context.Background(), arcdom.JobPositions, "")
	if !perr.IsCode(err, perr.ErrorCodeConflict) {
		t.Fatalf("second trigger should conflict, got %v", err)
	}

	// a different job type is unaffected
	if _, err := s.TriggerArchive(context.Background(), arcdom.JobCommands, ""); err != nil {
		t.Fatalf("other job type: %v", err)
	}
}

func TestTriggerArchiveNothingPastSafetyMargin(t *testing.T) {
	repo := newFakeRepo()
	s, clock := newTestSvc(Config{SafetyMargin: time.Hour}, repo)

	// the previous run already consumed up to the current safe end
	repo.lastCompletedEnd[arcdom.JobStatus] = clock.Now().Add(-time.Hour).Truncate(time.Second)

	_, err := s.TriggerArchive(context.Background(), arcdom.JobStatus, "")
	if !perr.IsCode(err, perr.ErrorCodeConflict) {
		t.Fatalf("empty range should surface as a conflict, got %v", err)
	}
}

func TestTriggerArchiveRejectsUnknownType(t *testing.T) {
	repo := newFakeRepo()
	s, _ := newTestSvc(Config{}, repo)
	_, err := s.TriggerArchive(context.Background(), arcdom.JobType("SELFIES"), "")
	if !perr.IsCode(err, perr.ErrorCodeInvalidArgument) {
		t.Fatalf("unknown type = %v", err)
	}
}

func TestTickSchedulesEveryJobType(t *testing.T) {
	repo := newFakeRepo()
	s, _ := newTestSvc(Config{}, repo)

	if err := s.Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}

	pending, _ := repo.TasksByStatus(context.Background(), arcdom.TaskPending, 0)
	if len(pending) != len(arcdom.JobTypes()) {
		t.Fatalf("tick scheduled %d tasks, want %d", len(pending), len(arcdom.JobTypes()))
	}

	// a second tick finds open tasks everywhere and schedules nothing new
	if err := s.Tick(context.Background()); err != nil {
		t.Fatalf("second Tick: %v", err)
	}
	pending, _ = repo.TasksByStatus(context.Background(), arcdom.TaskPending, 0)
	if len(pending) != len(arcdom.JobTypes()) {
		t.Fatalf("open tasks must block re-scheduling, have %d", len(pending))
	}
}

func TestTickSkipsWhenBusy(t *testing.T) {
	repo := newFakeRepo()
	s, _ := newTestSvc(Config{}, repo)

	// occupy the tick slot
	s.tickBusy <- struct{}{}
	if err := s.Tick(context.Background()); err != nil {
		t.Fatalf("busy tick should skip cleanly: %v", err)
	}
	pending, _ := repo.TasksByStatus(context.Background(), arcdom.TaskPending, 0)
	if len(pending) != 0 {
		t.Fatalf("busy tick must not schedule")
	}
	<-s.tickBusy
}

func TestLeaseWrapsScheduling(t *testing.T) {
	repo := newFakeRepo()
	s, _ := newTestSvc(Config{}, repo)

	var leased []arcdom.JobType
	s.Lease = func(ctx context.Context, j arcdom.JobType, do func(context.Context) error) error {
		leased = append(leased, j)
		return do(ctx)
	}

	if _, err := s.TriggerArchive(context.Background(), arcdom.JobPositions, ""); err != nil {
		t.Fatalf("TriggerArchive: %v", err)
	}
	if len(leased) != 1 || leased[0] != arcdom.JobPositions {
		t.Fatalf("scheduling must run under the job lease, got %v", leased)
	}
}

func TestLeaseHeldMapsToConflict(t *testing.T) {
	repo := newFakeRepo()
	s, _ := newTestSvc(Config{}, repo)
	s.Lease = func(context.Context, arcdom.JobType, func(context.Context) error) error {
		return guardrails.ErrLeaseHeld
	}

	_, err := s.TriggerArchive(context.Background(), arcdom.JobCommands, "")
	if !perr.IsCode(err, perr.ErrorCodeConflict) {
		t.Fatalf("held lease should conflict for the caller, got %v", err)
	}

	// Tick treats it as a skip, not an error
	if err := s.Tick(context.Background()); err != nil {
		t.Fatalf("Tick with held lease: %v", err)
	}
}
