package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/CaioWing/iotgateway/internal/domain"
)

// RetentionService prunes event logs older than a fixed age. It runs outside
// the dispatch path; dispatchers never delete.
type RetentionService struct {
	repo   domain.EventLogRepository
	maxAge time.Duration
	now    func() time.Time
	log    *slog.Logger
}

func NewRetentionService(repo domain.EventLogRepository, maxAge time.Duration, log *slog.Logger) *RetentionService {
	return &RetentionService{repo: repo, maxAge: maxAge, now: time.Now, log: log}
}

// StartScheduler runs pruning at the specified interval. Call in a goroutine.
func (s *RetentionService) StartScheduler(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.log.Info("event log retention started", "interval", interval, "max_age", s.maxAge)

	for {
		select {
		case <-ctx.Done():
			s.log.Info("event log retention stopped")
			return
		case <-ticker.C:
			s.Prune(ctx)
		}
	}
}

// Prune deletes entries older than maxAge and returns how many went.
func (s *RetentionService) Prune(ctx context.Context) int64 {
	cutoff := s.now().Add(-s.maxAge)
	n, err := s.repo.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		s.log.Warn("event log retention failed", "cutoff", cutoff, "err", err)
		return 0
	}
	if n > 0 {
		s.log.Info("event logs pruned", "removed", n, "cutoff", cutoff)
	}
	return n
}
