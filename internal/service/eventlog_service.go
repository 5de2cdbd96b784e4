package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/CaioWing/iotgateway/internal/domain"
)

// DispatchObserver is told about every recorded dispatch. Implementations must
// not block; they are called inline on the dispatch path.
type DispatchObserver interface {
	ObserveDispatch(kind domain.EventKind, result domain.Result, deviceID string, elapsed time.Duration)
}

// Observers fans one observation out to several observers.
type Observers []DispatchObserver

func (o Observers) ObserveDispatch(kind domain.EventKind, result domain.Result, deviceID string, elapsed time.Duration) {
	for _, obs := range o {
		if obs != nil {
			obs.ObserveDispatch(kind, result, deviceID, elapsed)
		}
	}
}

const recordTimeout = 5 * time.Second

type EventLogService struct {
	repo     domain.EventLogRepository
	observer DispatchObserver
	log      *slog.Logger
}

func NewEventLogService(repo domain.EventLogRepository, observer DispatchObserver, log *slog.Logger) *EventLogService {
	if observer == nil {
		observer = Observers(nil)
	}
	return &EventLogService{repo: repo, observer: observer, log: log}
}

// Record appends one dispatch outcome. Unlike management auditing this is not
// best-effort: a failed write is returned so the caller can report it.
func (s *EventLogService) Record(ctx context.Context, entry *domain.EventLog, elapsed time.Duration) error {
	// The side effect already happened; a caller hanging up must not lose
	// its trace.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()

	entry.Sanitize()
	if err := s.repo.Create(ctx, entry); err != nil {
		s.log.Error("failed to write event log",
			"event_kind", entry.EventKind, "result", entry.Result, "err", err)
		return fmt.Errorf("record event log: %w", err)
	}

	var deviceID string
	if entry.DeviceID != nil {
		deviceID = *entry.DeviceID
	}
	s.observer.ObserveDispatch(entry.EventKind, entry.Result, deviceID, elapsed)
	return nil
}

func (s *EventLogService) List(ctx context.Context, filter domain.EventLogFilter) ([]*domain.EventLog, int, error) {
	return s.repo.List(ctx, filter)
}
