package service

import (
	"context"
	"time"

	"hangar/internal/platform/logger"
)

// PurgeTasks deletes terminal task rows older than the cutoff
func (s *Svc) PurgeTasks(ctx context.Context, olderThan time.Time) (int64, error) {
	n, err := s.repo().PurgeTerminalTasks(ctx, olderThan)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		logger.C(ctx).Info().
			Int64("purged", n).
			Time("older_than", olderThan.UTC()).
			Msg("archivist: terminal tasks purged")
	}
	return n, nil
}
