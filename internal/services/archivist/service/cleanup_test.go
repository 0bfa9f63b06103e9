package service

import (
	"context"
	"testing"
	"time"
)

func TestPurgeTasks(t *testing.T) {
	repo := newFakeRepo()
	repo.purged = 12
	s, clock := newTestSvc(Config{}, repo)

	n, err := s.PurgeTasks(context.Background(), clock.Now().Add(-90*24*time.Hour))
	if err != nil {
		t.Fatalf("PurgeTasks: %v", err)
	}
	if n != 12 {
		t.Fatalf("purged %d, want 12", n)
	}
}
