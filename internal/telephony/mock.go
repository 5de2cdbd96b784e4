package telephony

import (
	"context"
	"log/slog"
)

// MockOriginator reports every call as placed without touching the network.
type MockOriginator struct {
	log *slog.Logger
}

func NewMockOriginator(log *slog.Logger) *MockOriginator {
	return &MockOriginator{log: log}
}

func (m *MockOriginator) Originate(_ context.Context, req OriginateRequest) CallResult {
	m.log.Info("simulated originate", "destination", req.Destination, "caller_id", req.CallerID)
	return CallResult{Success: true, Mock: true}
}

func (m *MockOriginator) Backend() string { return BackendMock }
