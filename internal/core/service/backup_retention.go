package service

import (
	"context"
	"time"

	"github.com/dbferry/dbferry/internal/core/domain"
)

// retentionLoop runs the sweep periodically until the context is
// cancelled.
func (s *BackupService) retentionLoop(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunRetentionSweep(ctx)
		}
	}
}

// RunRetentionSweep deletes backups older than the retention window
// from every registered backend. The creation time is parsed from each
// backup's identifier. A backend error is logged and does not abort
// sweeping the remaining backends.
func (s *BackupService) RunRetentionSweep(ctx context.Context) {
	cutoff := time.Now().AddDate(0, 0, -s.cfg.RetentionDays)
	logger := s.logger.With().Str("component", "retention").Logger()

	for _, name := range s.backends.Names() {
		backend, err := s.backends.Get(name)
		if err != nil {
			continue
		}

		objects, err := backend.List(ctx)
		if err != nil {
			logger.Error().Err(err).Str("backend", name).Msg("retention list failed")
			continue
		}

		for _, obj := range objects {
			createdAt, err := domain.BackupIDTime(obj.ID)
			if err != nil {
				// Not a backup artifact; leave it alone.
				continue
			}
			if !createdAt.Before(cutoff) {
				continue
			}

			if err := backend.Delete(ctx, obj.ID); err != nil {
				logger.Error().Err(err).Str("backend", name).Str("backup_id", obj.ID).Msg("retention delete failed")
				continue
			}
			logger.Info().Str("backend", name).Str("backup_id", obj.ID).Msg("expired backup deleted")
			s.broker.emit(domain.Event{Type: domain.EventCleanup, JobID: obj.ID, Stage: name})
		}
	}
}
